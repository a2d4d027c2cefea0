package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the business-rule taxonomy. Callers match with
// errors.Is; messages wrapped around them explain which invariant blocked
// the action.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient unallocated funds")
	ErrGoalNotActive       = errors.New("goal is not active")
	ErrAlreadyResolved     = errors.New("approval already resolved")
	ErrNotReversible       = errors.New("event cannot be reversed")
	ErrConcurrencyConflict = errors.New("concurrent modification conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// Errorf wraps a sentinel with a formatted detail message.
func Errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
