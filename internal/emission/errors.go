package emission

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or out-of-range detection input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown event, asset or runbook item identifier.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a lifecycle operation attempted from a status that does not permit it.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStaleComputation marks derived SLA values read for an instant other than the one requested.
	ErrStaleComputation = errors.New("stale computation")
)

// ValidationError describes which detection field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports ErrValidation so callers can match with errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransitionError describes a rejected lifecycle operation.
type TransitionError struct {
	Op   string
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s from %s", e.Op, e.From)
}

// Is reports ErrInvalidTransition so callers can match with errors.Is.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
