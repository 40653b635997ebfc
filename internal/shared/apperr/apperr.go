// Package apperr defines the error taxonomy shared by every layer of the
// service. Callers switch on Kind instead of inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and for the HTTP boundary.
type Kind int

const (
	// KindUnknown is reported for errors that did not pass through this package.
	KindUnknown Kind = iota
	// KindValidation means a required input was missing or malformed.
	KindValidation
	// KindUpstream means the aggregator call failed.
	KindUpstream
	// KindStore means a persistence operation failed.
	KindStore
	// KindPartialSync means the post-link backfill failed after the link succeeded.
	KindPartialSync
)

// String returns the stable, lowercase name of the kind. It is stored in
// sync_runs.error_kind, so values must not change.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindStore:
		return "store"
	case KindPartialSync:
		return "partial_sync"
	default:
		return "unknown"
	}
}

// Error is the concrete error carried across layers.
type Error struct {
	Kind  Kind
	Op    string // operation that failed, e.g. "aggregator.FetchAccounts"
	Field string // offending field for validation errors
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindValidation && e.Field != "" && e.Err == nil:
		return fmt.Sprintf("%s is required", e.Field)
	case e.Kind == KindValidation && e.Field != "":
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a missing required field.
func Validation(field string) error {
	return &Error{Kind: KindValidation, Field: field}
}

// Invalid reports a present but malformed field.
func Invalid(field string, err error) error {
	return &Error{Kind: KindValidation, Field: field, Err: err}
}

// Upstream wraps an aggregator failure.
func Upstream(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// Store wraps a persistence failure.
func Store(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

// PartialSync wraps a failed post-link backfill. The cause keeps its own
// kind and stays reachable through errors.As.
func PartialSync(op string, err error) error {
	return &Error{Kind: KindPartialSync, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
