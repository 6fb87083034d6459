// Package apperr defines the error kinds shared across the workflow core.
// Callers classify failures with errors.Is against the sentinel kinds;
// everything else about an error is free-form wrapped context.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed input, rejected before any mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a reference that does not resolve to an entity.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an actor lacking the role or ownership for an action.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState marks a transition that is not legal from the current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrIO marks a storage medium failure; prior durable state is retained.
	ErrIO = errors.New("io failure")
)

func InvalidArgument(format string, args ...any) error {
	return kindf(ErrInvalidArgument, format, args...)
}

func NotFound(format string, args ...any) error {
	return kindf(ErrNotFound, format, args...)
}

func Forbidden(format string, args ...any) error {
	return kindf(ErrForbidden, format, args...)
}

func InvalidState(format string, args ...any) error {
	return kindf(ErrInvalidState, format, args...)
}

// IO wraps an underlying medium error so it both carries the ErrIO kind
// and remains inspectable via errors.Is/As on the cause.
func IO(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

func kindf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
