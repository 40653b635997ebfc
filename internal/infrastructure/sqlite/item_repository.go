package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finsight/internal/domain/item"
	"finsight/internal/infrastructure/crypto"
)

type ItemRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

var _ item.Repository = (*ItemRepository)(nil)

func NewItemRepository(db *DB, encryptor *crypto.Encryptor) *ItemRepository {
	return &ItemRepository{db: db, encryptor: encryptor}
}

func (r *ItemRepository) Upsert(ctx context.Context, params item.UpsertParams) (*item.Item, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	encrypted, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	query := `
		INSERT INTO items (user_id, item_id, access_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			item_id = excluded.item_id,
			access_token = excluded.access_token,
			updated_at = excluded.updated_at
	`

	ts := now()
	it := item.Item{UserID: params.UserID, ItemID: params.ItemID, AccessToken: params.AccessToken}
	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, params.UserID, params.ItemID, encrypted, ts, ts); err != nil {
			return err
		}
		// created_at survives a re-link, so read it back
		return tx.QueryRowContext(ctx,
			`SELECT created_at, updated_at FROM items WHERE user_id = ?`, params.UserID,
		).Scan(&it.CreatedAt, &it.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert item: %w", err)
	}
	return &it, nil
}

func (r *ItemRepository) GetByUserID(ctx context.Context, userID string) (*item.Item, error) {
	var it item.Item
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, item_id, access_token, created_at, updated_at FROM items WHERE user_id = ?`, userID,
	).Scan(&it.UserID, &it.ItemID, &it.AccessToken, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, item.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if it.AccessToken, err = r.encryptor.Decrypt(it.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return &it, nil
}

func (r *ItemRepository) List(ctx context.Context) ([]*item.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, item_id, access_token, created_at, updated_at FROM items ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		var it item.Item
		if err := rows.Scan(&it.UserID, &it.ItemID, &it.AccessToken, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if it.AccessToken, err = r.encryptor.Decrypt(it.AccessToken); err != nil {
			return nil, fmt.Errorf("failed to decrypt access token for user %s: %w", it.UserID, err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}
