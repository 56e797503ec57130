package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Lookup errors
	ErrNotFound      = errors.New("not found")
	ErrQuestNotFound = fmt.Errorf("quest %w", ErrNotFound)
	ErrLogNotFound   = fmt.Errorf("habit log %w", ErrNotFound)
	ErrGoalNotFound  = fmt.Errorf("habit goal %w", ErrNotFound)

	// Claim guards
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	ErrAlreadyClaimed   = errors.New("quest reward already claimed for this period")
	ErrNotCompleted     = errors.New("quest target not reached")

	// Habit log guards
	ErrLogClosed = errors.New("habit log belongs to a past day and can no longer change")

	// Store errors. Safe to retry the whole operation.
	ErrTransientStore = errors.New("store temporarily unavailable")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// FieldError names one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned before any write when input violates a constraint.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a single-field ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Transient wraps err so that errors.Is(err, ErrTransientStore) holds.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
}
