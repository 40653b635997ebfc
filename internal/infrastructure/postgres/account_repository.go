package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"finsight/internal/domain/account"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// UpsertBatch writes all accounts in one transaction. Existing rows keep
// their created_at; every other column is overwritten.
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
			current_balance, available_balance, currency
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			item_id = COALESCE(EXCLUDED.item_id, accounts.item_id),
			name = EXCLUDED.name,
			official_name = EXCLUDED.official_name,
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype,
			mask = EXCLUDED.mask,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			currency = EXCLUDED.currency,
			updated_at = NOW()
	`

	err := r.db.WithTx(ctx, "accounts.upsert", func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare account upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range params {
			_, err := stmt.ExecContext(ctx,
				p.ID, p.UserID, nullEmpty(p.ItemID), p.Name, nullString(p.OfficialName), p.Type,
				nullString(p.Subtype), nullString(p.Mask), p.CurrentBalance, p.AvailableBalance,
				nullString(p.Currency),
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

// ListByUserID retrieves the user's accounts, newest first
func (r *AccountRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*account.Account, error) {
	query := `
		SELECT account_id, user_id, item_id, name, official_name, type, subtype, mask,
		       current_balance, available_balance, currency, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at DESC, account_id
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
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

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}
