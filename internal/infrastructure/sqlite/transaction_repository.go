package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finsight/internal/domain/transaction"
)

type TransactionRepository struct {
	db *DB
}

var _ transaction.Repository = (*TransactionRepository)(nil)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

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
			currency, category, date, pending, raw_payload, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO UPDATE SET
			user_id = excluded.user_id,
			account_id = excluded.account_id,
			name = excluded.name,
			merchant_name = excluded.merchant_name,
			amount = excluded.amount,
			currency = excluded.currency,
			category = excluded.category,
			date = excluded.date,
			pending = excluded.pending,
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at
	`

	ts := now()
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare transaction upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range params {
			var raw sql.NullString
			if len(p.RawPayload) > 0 {
				raw = sql.NullString{String: string(p.RawPayload), Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				p.ID, p.UserID, p.AccountID, p.Name, nullString(p.MerchantName), p.Amount,
				nullString(p.Currency), nullString(p.Category), p.Date.Format(time.DateOnly),
				p.Pending, raw, ts, ts,
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
		WHERE user_id = ?
		ORDER BY date DESC, transaction_id
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
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
		var merchantName, currency, category, raw sql.NullString
		var date string

		err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.AccountID, &tx.Name, &merchantName, &tx.Amount,
			&currency, &category, &date, &tx.Pending, &raw, &tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if tx.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("invalid date %q for transaction %s: %w", date, tx.ID, err)
		}
		tx.MerchantName = stringPtr(merchantName)
		tx.Currency = stringPtr(currency)
		tx.Category = stringPtr(category)
		if raw.Valid {
			tx.RawPayload = []byte(raw.String)
		}
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}

func (r *TransactionRepository) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
