package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
type Job interface {
	// Execute runs the job. Implementations must respect ctx cancellation.
	Execute(ctx context.Context) error

	// UserID returns the user whose data the job touches.
	UserID() string

	// Description returns a human-readable description of the job.
	Description() string
}

// FuncJob adapts a plain function to the Job interface.
type FuncJob struct {
	User string
	Desc string
	Fn   func(ctx context.Context) error
}

func (j FuncJob) Execute(ctx context.Context) error { return j.Fn(ctx) }

func (j FuncJob) UserID() string { return j.User }

func (j FuncJob) Description() string { return j.Desc }
