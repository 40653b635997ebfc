package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"finsight/internal/domain/account"
)

type AccountRepository struct {
	db *DB
}

var _ account.Repository = (*AccountRepository)(nil)

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) UpsertBatch(ctx context.Context, params []account.UpsertParams) (int, error) {
	if len(params) == 0 {
		return 0, nil
	}
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return 0, err
		}
	}

	query := `
		INSERT INTO accounts (
			account_id, user_id, item_id, name, official_name, type, subtype, mask,
			current_balance, available_balance, currency, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			user_id = excluded.user_id,
			item_id = COALESCE(excluded.item_id, accounts.item_id),
			name = excluded.name,
			official_name = excluded.official_name,
			type = excluded.type,
			subtype = excluded.subtype,
			mask = excluded.mask,
			current_balance = excluded.current_balance,
			available_balance = excluded.available_balance,
			currency = excluded.currency,
			updated_at = excluded.updated_at
	`

	ts := now()
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare account upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range params {
			_, err := stmt.ExecContext(ctx,
				p.ID, p.UserID, nullEmpty(p.ItemID), p.Name, nullString(p.OfficialName), p.Type,
				nullString(p.Subtype), nullString(p.Mask), p.CurrentBalance, p.AvailableBalance,
				nullString(p.Currency), ts, ts,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert account %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(params), nil
}

func (r *AccountRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
	query := `
		SELECT account_id, user_id, item_id, name, official_name, type, subtype, mask,
		       current_balance, available_balance, currency, created_at, updated_at
		FROM accounts
		WHERE user_id = ?
		ORDER BY created_at DESC, account_id
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*account.Account{}
	for rows.Next() {
		var acc account.Account
		var itemID, officialName, subtype, mask, currency sql.NullString

		err := rows.Scan(
			&acc.ID, &acc.UserID, &itemID, &acc.Name, &officialName, &acc.Type, &subtype, &mask,
			&acc.CurrentBalance, &acc.AvailableBalance, &currency, &acc.CreatedAt, &acc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		acc.ItemID = itemID.String
		acc.OfficialName = stringPtr(officialName)
		acc.Subtype = stringPtr(subtype)
		acc.Mask = stringPtr(mask)
		acc.Currency = stringPtr(currency)
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}
