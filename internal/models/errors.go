package models

import "errors"

// Application-wide errors. Callers compare with errors.Is.
var (
	// Request errors
	ErrInvalidInput        = errors.New("invalid input data")
	ErrInvalidState        = errors.New("operation not allowed in current state")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Resource errors
	ErrNotFound             = errors.New("resource not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrPlatformNotConnected = errors.New("video platform account not connected")

	// Upstream adapter errors
	ErrTransientUpstream = errors.New("transient upstream failure")
	ErrTerminalUpstream  = errors.New("upstream rejected the request")

	// Storage errors
	ErrLedgerConflict = errors.New("concurrent ledger mutation conflict")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenInvalid = errors.New("token is invalid")
)
