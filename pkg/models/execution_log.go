package models

import "time"

// ExecutionOutcome records how a step attempt ended.
type ExecutionOutcome string

const (
	OutcomeExecuted ExecutionOutcome = "executed"
	OutcomeFailed   ExecutionOutcome = "failed"
)

// ExecutionLog is one append-only audit record per step attempt. It exists
// for operators, never for control flow, and is never mutated after insert.
type ExecutionLog struct {
	ID           string `json:"id"`
	OrgID        string `json:"org_id"`
	WorkflowID   string `json:"workflow_id"`
	EnrollmentID string `json:"enrollment_id"`
	ClientID     string `json:"client_id"`
	StepID       string `json:"step_id,omitempty"`

	Action  string           `json:"action"`
	Outcome ExecutionOutcome `json:"outcome"`
	Message string           `json:"message,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
