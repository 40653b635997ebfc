// Package syncrun records every synchronization run so that failures,
// in particular background backfill failures, remain inspectable.
package syncrun

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a user has no recorded runs.
var ErrRunNotFound = errors.New("sync run not found")

type Trigger string

const (
	TriggerBackfill  Trigger = "backfill"
	TriggerResync    Trigger = "resync"
	TriggerScheduled Trigger = "scheduled"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Run struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	ItemID               string     `json:"item_id,omitempty"`
	Trigger              Trigger    `json:"trigger"`
	Status               Status     `json:"status"`
	WindowStart          time.Time  `json:"window_start"`
	WindowEnd            time.Time  `json:"window_end"`
	AccountsUpserted     int        `json:"accounts_upserted"`
	TransactionsUpserted int        `json:"transactions_upserted"`
	ErrorKind            string     `json:"error_kind,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

// Finish marks the run as done at t, recording err when non-nil.
func (r *Run) Finish(t time.Time, kind string, err error) {
	r.FinishedAt = &t
	if err != nil {
		r.Status = StatusFailed
		r.ErrorKind = kind
		r.ErrorMessage = err.Error()
		return
	}
	r.Status = StatusSucceeded
	r.ErrorKind = ""
	r.ErrorMessage = ""
}
