package transaction

import "context"

// Repository defines the interface for transaction data access
type Repository interface {
	// UpsertBatch inserts or overwrites transactions keyed by transaction ID
	// and returns how many rows were written.
	UpsertBatch(ctx context.Context, params []UpsertParams) (int, error)

	// ListRecentByUserID returns the user's transactions by date, newest first.
	ListRecentByUserID(ctx context.Context, userID string, limit int) ([]*Transaction, error)

	CountByUserID(ctx context.Context, userID string) (int64, error)
}
