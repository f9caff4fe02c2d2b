package types

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core wraps exactly one of these so
// callers can classify with errors.Is.
var (
	// ErrNotFound marks an absent session or pointer. Usually a normal empty state.
	ErrNotFound = errors.New("not found")
	// ErrExternalServiceFailure marks a failed or timed out call to a store,
	// the scheduler or the publisher.
	ErrExternalServiceFailure = errors.New("external service failure")
	// ErrInvariantViolation marks data that breaks a model invariant.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidInput marks a caller-supplied value the core refuses.
	ErrInvalidInput = errors.New("invalid input")
)

// External wraps err as an ErrExternalServiceFailure raised by op.
// A nil err yields nil.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExternalServiceFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExternalServiceFailure, err)
}

// Invariant builds an ErrInvariantViolation for op.
func Invariant(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvariantViolation, fmt.Sprintf(format, args...))
}
