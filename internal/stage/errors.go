package stage

import (
	"errors"

	"reelforge/internal/models"
	"reelforge/internal/queue"
)

// RetryableError forces a retry regardless of what the wrapped error is.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Permanent marks err as terminal for the queue.
func Permanent(err error) error {
	return queue.Permanent(err)
}

// IsRetryable is the classifier the worker process installs on the queue.
func IsRetryable(err error) bool {
	var r *RetryableError
	if errors.As(err, &r) {
		return true
	}
	var p *queue.PermanentError
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, models.ErrTransientUpstream) && !errors.Is(err, models.ErrTerminalUpstream) {
		return true
	}
	return queue.IsRetryable(err)
}
