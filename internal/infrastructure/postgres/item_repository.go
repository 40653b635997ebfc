package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finsight/internal/domain/item"
	"finsight/internal/infrastructure/crypto"
)

// ItemRepository implements item.Repository for PostgreSQL. Access tokens
// are encrypted before they reach the database.
type ItemRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

var _ item.Repository = (*ItemRepository)(nil)

func NewItemRepository(db *DB, encryptor *crypto.Encryptor) *ItemRepository {
	return &ItemRepository{db: db, encryptor: encryptor}
}

// Upsert stores the user's Item, replacing the item ID and access token of a
// previous link while keeping created_at.
func (r *ItemRepository) Upsert(ctx context.Context, params item.UpsertParams) (*item.Item, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	encrypted, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	query := `
		INSERT INTO items (user_id, item_id, access_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			access_token = EXCLUDED.access_token,
			updated_at = NOW()
		RETURNING user_id, item_id, created_at, updated_at
	`

	it := item.Item{AccessToken: params.AccessToken}
	err = r.db.QueryRowContext(ctx, query, params.UserID, params.ItemID, encrypted).Scan(
		&it.UserID, &it.ItemID, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert item: %w", err)
	}
	return &it, nil
}

func (r *ItemRepository) GetByUserID(ctx context.Context, userID string) (*item.Item, error) {
	query := `
		SELECT user_id, item_id, access_token, created_at, updated_at
		FROM items
		WHERE user_id = $1
	`

	var it item.Item
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&it.UserID, &it.ItemID, &it.AccessToken, &it.CreatedAt, &it.UpdatedAt,
	)
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
	query := `
		SELECT user_id, item_id, access_token, created_at, updated_at
		FROM items
		ORDER BY created_at, user_id
	`

	rows, err := r.db.QueryContext(ctx, query)
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

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}
