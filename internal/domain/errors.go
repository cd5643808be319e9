package domain

import (
	"fmt"
	"strings"
)

// Error types for consistent error handling across the pipeline engine.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in a store or remote call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates malformed input. Always raised before any write.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidTransition indicates a state change that is not legal from the
// current state. Always raised before any write.
type ErrInvalidTransition struct {
	Entity string // "lead" or "quote"
	ID     string
	From   string
	To     string
	Reason string
}

func (e *ErrInvalidTransition) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
	if e.ID != "" {
		msg += fmt.Sprintf(" (%s)", e.ID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ErrSequencingCollision indicates a generated quote number is already taken.
// Callers regenerate and retry; the existing quote is never overwritten.
type ErrSequencingCollision struct {
	Number string
}

func (e *ErrSequencingCollision) Error() string {
	return fmt.Sprintf("quote number already in use: %s", e.Number)
}

// ErrPartialSync reports a multi-step operation that failed after at least one
// step had already been committed. Completed steps are not rolled back; every
// step is idempotent, so the whole operation can be retried.
type ErrPartialSync struct {
	Operation string
	QuoteID   string
	LeadID    string
	Completed []string
	Failed    string
	Err       error
}

func (e *ErrPartialSync) Error() string {
	return fmt.Sprintf("partial synchronization in %s: completed [%s], failed at %s: %v",
		e.Operation, strings.Join(e.Completed, ", "), e.Failed, e.Err)
}

func (e *ErrPartialSync) Unwrap() error {
	return e.Err
}

// ErrConflict indicates the operation conflicts with existing data.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrUnauthorized indicates a missing or invalid operator token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
