package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition indicates that a mutator was invoked from a state
	// that does not permit it.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConcurrencyConflict indicates that an aggregate was modified by
	// someone else since it was loaded. Callers may reload and retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// TransitionError names the current and attempted state of a rejected
// state-machine transition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: invalid state transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewTransitionError builds a TransitionError from any string-like states.
func NewTransitionError[S ~string](entity string, from, to S) error {
	return &TransitionError{Entity: entity, From: string(from), To: string(to)}
}

// ConflictError reports an optimistic concurrency mismatch at save time.
type ConflictError struct {
	Entity   string
	ID       string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: version %d expected, found %d: %v", e.Entity, e.ID, e.Expected, e.Actual, ErrConcurrencyConflict)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

// Retryable reports that the command can be retried after reloading.
func (e *ConflictError) Retryable() bool {
	return true
}

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}
