package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// UpsertBatch inserts or overwrites accounts keyed by account ID and
	// returns how many rows were written.
	UpsertBatch(ctx context.Context, params []UpsertParams) (int, error)

	// ListByUserID returns the user's accounts, most recently created first.
	// A limit <= 0 returns all of them.
	ListByUserID(ctx context.Context, userID string, limit int) ([]*Account, error)
}
