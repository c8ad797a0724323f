// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every implementation.
var (
	ErrOrganizationNotFound    = errors.New("organization not found")
	ErrClientNotFound          = errors.New("client not found")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrWorkflowNotFound        = errors.New("workflow not found")
	ErrEnrollmentNotFound      = errors.New("enrollment not found")
	ErrScheduledActionNotFound = errors.New("scheduled action not found")

	// ErrAlreadyExists indicates an insert collided with an existing id.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStaleStatus indicates a conditional status transition observed a
	// precondition that no longer held.
	ErrStaleStatus = errors.New("stale status precondition")
)

// IsNotFound reports whether err is any of the entity not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrEnrollmentNotFound) ||
		errors.Is(err, ErrScheduledActionNotFound)
}

// StoreError wraps a storage failure with operation and entity context.
type StoreError struct {
	Op     string // operation being performed, e.g. "Enrollments.Create"
	Entity string // entity id if applicable
	Err    error
}

func (e *StoreError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, entity string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, Err: err}
}
