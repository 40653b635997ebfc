package sqlite

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			item_id = excluded.item_id,
			status = excluded.status,
			accounts_upserted = excluded.accounts_upserted,
			transactions_upserted = excluded.transactions_upserted,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			finished_at = excluded.finished_at
	`

	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.UserID, nullEmpty(run.ItemID), string(run.Trigger), string(run.Status),
		nullDate(run.WindowStart), nullDate(run.WindowEnd),
		run.AccountsUpserted, run.TransactionsUpserted,
		nullEmpty(run.ErrorKind), nullEmpty(run.ErrorMessage),
		run.StartedAt.UTC(), finishedAt,
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
		WHERE user_id = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	var run syncrun.Run
	var itemID, windowStart, windowEnd, errorKind, errorMessage sql.NullString
	var finishedAt sql.NullTime
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

	if run.WindowStart, err = parseDate(windowStart); err != nil {
		return nil, fmt.Errorf("invalid window start: %w", err)
	}
	if run.WindowEnd, err = parseDate(windowEnd); err != nil {
		return nil, fmt.Errorf("invalid window end: %w", err)
	}
	run.ItemID = itemID.String
	run.Trigger = syncrun.Trigger(trigger)
	run.Status = syncrun.Status(status)
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMessage.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}
