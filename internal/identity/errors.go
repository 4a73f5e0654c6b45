package identity

import (
	"errors"
	"fmt"
)

var (
	// store errors
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("email already registered")

	// lifecycle errors
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenMismatch      = errors.New("confirmation failed")
	ErrStepCompleted      = errors.New("verification step already completed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrReviewUnavailable  = errors.New("document review is not available")

	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError reports a store operation that failed for good, either because
// retries ran out or because the failure was not transient.
type PersistenceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
