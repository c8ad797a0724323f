package models

import (
	"errors"
	"fmt"
)

// Workflow definition validation errors, reported at save time.
var (
	// ErrUnknownStepKind indicates a step kind outside the closed union.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// ErrMissingStepConfig indicates the config payload for the step's kind
	// is absent.
	ErrMissingStepConfig = errors.New("missing step config")

	// ErrAmbiguousStepConfig indicates config payloads for more than one
	// kind are attached to a single step.
	ErrAmbiguousStepConfig = errors.New("ambiguous step config")

	// ErrDanglingEdge indicates a successor edge references a step that is
	// not part of the workflow.
	ErrDanglingEdge = errors.New("successor edge references unknown step")
)

// StepError wraps a step-level validation failure with graph context.
type StepError struct {
	WorkflowID string
	StepID     string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s in workflow %s: %v", e.StepID, e.WorkflowID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStepError creates a step validation error with context.
func NewStepError(workflowID, stepID string, err error) *StepError {
	return &StepError{
		WorkflowID: workflowID,
		StepID:     stepID,
		Err:        err,
	}
}
