package event

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects an emission before anything durable happens.
	ErrValidation = errors.New("event: validation failed")
	// ErrNotFound reports an unknown event id.
	ErrNotFound = errors.New("event: not found")
	// ErrVersionConflict reports a lost race on per-stream version assignment.
	// Stores retry internally; callers only see it when retries are exhausted.
	ErrVersionConflict = errors.New("event: stream version conflict")
)

// FlaggedError reports an event that was durably appended but whose dispatch
// failed. The event stays in the store with the error recorded for replay.
type FlaggedError struct {
	EventID string
	Cause   error
}

func (e *FlaggedError) Error() string {
	return fmt.Sprintf("event %s flagged: %v", e.EventID, e.Cause)
}

func (e *FlaggedError) Unwrap() error { return e.Cause }
