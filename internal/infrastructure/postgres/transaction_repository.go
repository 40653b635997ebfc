package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finsight/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	db *DB
}

var _ transaction.Repository = (*TransactionRepository)(nil)

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// UpsertBatch writes all transactions in one database transaction, keyed by
// transaction_id.
func (r *TransactionRepository) UpsertBatch(ctx context.Context, params []transaction.UpsertParams) (int, error) {
	if len(params) == 0 {
		return 0, nil
	}
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return 0, err
		}
	}

	query := `
		INSERT INTO transactions (
			transaction_id, user_id, account_id, name, merchant_name, amount,
			currency, category, date, pending, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		ON CONFLICT (transaction_id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			account_id = EXCLUDED.account_id,
			name = EXCLUDED.name,
			merchant_name = EXCLUDED.merchant_name,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			category = EXCLUDED.category,
			date = EXCLUDED.date,
			pending = EXCLUDED.pending,
			raw_payload = EXCLUDED.raw_payload,
			updated_at = NOW()
	`

	err := r.db.WithTx(ctx, "transactions.upsert", func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare transaction upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range params {
			_, err := stmt.ExecContext(ctx,
				p.ID, p.UserID, p.AccountID, p.Name, nullString(p.MerchantName), p.Amount,
				nullString(p.Currency), nullString(p.Category), p.Date.Format(time.DateOnly),
				p.Pending, nullJSON(p.RawPayload),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert transaction %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(params), nil
}

func (r *TransactionRepository) ListRecentByUserID(ctx context.Context, userID string, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT transaction_id, user_id, account_id, name, merchant_name, amount,
		       currency, category, date, pending, raw_payload, created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, transaction_id
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := []*transaction.Transaction{}
	for rows.Next() {
		var tx transaction.Transaction
		var merchantName, currency, category sql.NullString
		var raw []byte

		err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.AccountID, &tx.Name, &merchantName, &tx.Amount,
			&currency, &category, &tx.Date, &tx.Pending, &raw, &tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.MerchantName = stringPtr(merchantName)
		tx.Currency = stringPtr(currency)
		tx.Category = stringPtr(category)
		if len(raw) > 0 {
			tx.RawPayload = raw
		}
		txs = append(txs, &tx)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

func (r *TransactionRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
