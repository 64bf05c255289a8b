package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across repositories and services. Repositories map
// pgx.ErrNoRows to ErrNotFound so callers can distinguish "no match" from a
// transport failure.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyReturned = errors.New("loan already returned")
)

// ValidationError rejects malformed or duplicate input before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PolicyViolation rejects an operation that is well-formed but forbidden by a
// business rule, such as deactivating a person who still holds active loans.
type PolicyViolation struct {
	Reason string
}

func (e *PolicyViolation) Error() string {
	return e.Reason
}

func NewPolicyViolation(reason string) error {
	return &PolicyViolation{Reason: reason}
}
