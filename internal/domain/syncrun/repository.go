package syncrun

import "context"

type Repository interface {
	// Save inserts the run or overwrites it by ID.
	Save(ctx context.Context, run *Run) error

	// LatestByUserID returns ErrRunNotFound when the user has no runs.
	LatestByUserID(ctx context.Context, userID string) (*Run, error)
}
