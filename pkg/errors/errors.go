package learnit_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyExists      = errors.New("already exists")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrLocked             = errors.New("resource locked")
)

// Pipeline errors
var (
	ErrTxRequired       = errors.New("transaction required")
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrMalformedMessage = errors.New("malformed bus message")
	ErrBusNotStarted    = errors.New("event bus not started")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
