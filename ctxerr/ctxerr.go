// Package ctxerr defines the error taxonomy surfaced by the orchestrator:
// a small Kind enum plus an Error wrapping the underlying cause, so
// callers can errors.As to inspect Kind instead of matching on strings.
package ctxerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the core raises or surfaces.
type Kind string

const (
	// KindInvalidInput marks a malformed request. Not retryable.
	KindInvalidInput Kind = "invalid_input"

	// KindCapacityExhausted marks a Long-Term write that failed after
	// rollback because a collaborator rejected capacity. Retryable.
	KindCapacityExhausted Kind = "capacity_exhausted"

	// KindCollaboratorFailure marks a non-critical read-path failure
	// against the vector or graph store. Degrades silently.
	KindCollaboratorFailure Kind = "collaborator_failure"

	// KindDeadlineExceeded marks a retrieval that exceeded its overall
	// deadline before any results were ready.
	KindDeadlineExceeded Kind = "deadline_exceeded"
)

// Error wraps an underlying cause with a Kind from the taxonomy above.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Invalid is a convenience constructor for KindInvalidInput.
func Invalid(op string, msg string) *Error {
	return New(op, KindInvalidInput, errors.New(msg))
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
