package item

import "context"

// Repository defines persistence for Items.
type Repository interface {
	// Upsert inserts or replaces the Item keyed by user ID.
	Upsert(ctx context.Context, params UpsertParams) (*Item, error)

	// GetByUserID returns ErrItemNotFound when the user has not linked.
	GetByUserID(ctx context.Context, userID string) (*Item, error)

	// List returns every linked Item, oldest first.
	List(ctx context.Context) ([]*Item, error)
}
