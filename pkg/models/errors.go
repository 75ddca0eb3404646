package models

import "errors"

// Sentinel errors shared by every registry in the engine. Callers check
// them with errors.Is; packages wrap them with fmt.Errorf("...: %w", ...)
// to add context.
var (
	// ErrNotFound indicates an unknown id in a registry.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation attempted from a state that
	// forbids it, such as accepting a non-pending handoff.
	ErrInvalidState = errors.New("invalid state")
	// ErrLockConflict indicates a write without holding the file lock.
	ErrLockConflict = errors.New("lock conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation error")
)
