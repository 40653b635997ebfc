package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finsight/internal/domain/syncrun"
)

type SyncRunRepository struct {
	db *DB
}

var _ syncrun.Repository = (*SyncRunRepository)(nil)

func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func (r *SyncRunRepository) Save(ctx context.Context, run *syncrun.Run) error {
	query := `
		INSERT INTO sync_runs (
			id, user_id, item_id, trigger_type, status, window_start, window_end,
			accounts_upserted, transactions_upserted, error_kind, error_message,
			started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			status = EXCLUDED.status,
			accounts_upserted = EXCLUDED.accounts_upserted,
			transactions_upserted = EXCLUDED.transactions_upserted,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.UserID, nullEmpty(run.ItemID), string(run.Trigger), string(run.Status),
		nullDate(run.WindowStart), nullDate(run.WindowEnd),
		run.AccountsUpserted, run.TransactionsUpserted,
		nullEmpty(run.ErrorKind), nullEmpty(run.ErrorMessage),
		run.StartedAt, nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

func (r *SyncRunRepository) LatestByUserID(ctx context.Context, userID string) (*syncrun.Run, error) {
	query := `
		SELECT id, user_id, item_id, trigger_type, status, window_start, window_end,
		       accounts_upserted, transactions_upserted, error_kind, error_message,
		       started_at, finished_at
		FROM sync_runs
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	var run syncrun.Run
	var itemID, errorKind, errorMessage sql.NullString
	var windowStart, windowEnd, finishedAt sql.NullTime
	var trigger, status string

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&run.ID, &run.UserID, &itemID, &trigger, &status, &windowStart, &windowEnd,
		&run.AccountsUpserted, &run.TransactionsUpserted, &errorKind, &errorMessage,
		&run.StartedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncrun.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync run: %w", err)
	}

	run.ItemID = itemID.String
	run.Trigger = syncrun.Trigger(trigger)
	run.Status = syncrun.Status(status)
	run.WindowStart = windowStart.Time
	run.WindowEnd = windowEnd.Time
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMessage.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}
