package queue

import (
	"errors"

	"reelforge/internal/models"
)

var (
	// ErrLeaseLost means the job is no longer held by the caller, e.g. it was reaped.
	ErrLeaseLost = errors.New("job lease lost")
	// ErrJobAbandoned is reported to failure handlers for jobs whose worker vanished on the last attempt.
	ErrJobAbandoned = errors.New("job abandoned by worker")
)

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue fails the job without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var p *PermanentError
	if errors.As(err, &p) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsRetryable is the default classifier. Explicit permanent errors, missing entities, bad input
// and upstream rejections are terminal; everything else is retried.
func IsRetryable(err error) bool {
	var p *PermanentError
	switch {
	case errors.As(err, &p):
		return false
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrPlatformNotConnected),
		errors.Is(err, models.ErrTerminalUpstream):
		return false
	default:
		return true
	}
}
