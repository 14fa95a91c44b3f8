package fairlock

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// Acquisition errors
	ErrNotAcquired = errors.New("lock not acquired on a quorum of instances")
	ErrNotExtended = errors.New("lock not extended on a quorum of instances")

	// Auto-extend errors
	ErrAutoExtendRunning    = errors.New("auto-extend already running for this lock")
	ErrAutoExtendNotRunning = errors.New("no auto-extend running for this lock")

	// Instance errors
	ErrInstanceUnavailable = errors.New("instance unavailable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoInstances   = errors.New("at least one instance is required")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// Common error checking helpers

// IsNotAcquired checks if an error signals a failed acquisition
func IsNotAcquired(err error) bool {
	return errors.Is(err, ErrNotAcquired)
}

// IsRetryable checks if an error is safe to retry
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotAcquired) ||
		errors.Is(err, ErrNotExtended) ||
		errors.Is(err, ErrInstanceUnavailable)
}

// IsPermanent checks if an error is permanent (not retryable)
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrNoInstances) ||
		errors.Is(err, ErrAutoExtendRunning)
}
