// Package workflow executes steps and manages enrollments.
package workflow

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Misconfiguration errors (unknown step type,
// unknown condition field or operator) are terminal and need an
// administrative fix; the rest follow the queue's retry policy.
var (
	// ErrMissingContactInfo means a messaging step found no phone/email on
	// the client. Terminal for the attempt.
	ErrMissingContactInfo = errors.New("client has no contact info for channel")

	// ErrUnknownStepType means the enrollment points at a step kind the
	// executor does not implement.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrUnknownConditionField means a conditional step references a field
	// outside the supported set.
	ErrUnknownConditionField = errors.New("unknown condition field")

	// ErrUnknownConditionOperator means the operator is not valid for the
	// condition's field category.
	ErrUnknownConditionOperator = errors.New("unknown condition operator")

	// ErrNotifierUnavailable wraps transient notifier failures so the queue
	// can retry them.
	ErrNotifierUnavailable = errors.New("notifier unavailable")
)

// StepExecutionError carries the step and enrollment context of a failed
// attempt up to the retry path.
type StepExecutionError struct {
	EnrollmentID string
	StepID       string
	Kind         string
	Err          error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s (%s) failed for enrollment %s: %v", e.StepID, e.Kind, e.EnrollmentID, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

func (e *StepExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsMisconfiguration reports whether err is a workflow definition problem
// that retrying can never fix.
func IsMisconfiguration(err error) bool {
	return errors.Is(err, ErrUnknownStepType) ||
		errors.Is(err, ErrUnknownConditionField) ||
		errors.Is(err, ErrUnknownConditionOperator)
}
