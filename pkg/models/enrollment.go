package models

import "time"

// EnrollmentStatus is the lifecycle state of one client's run through a
// workflow.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment is a client's live instance of a workflow run. The enrollment
// manager owns every mutation; at most one active enrollment exists per
// (workflow, client) inside the workflow's duplicate-prevention window.
type Enrollment struct {
	ID         string `json:"id"          validate:"required"`
	OrgID      string `json:"org_id"      validate:"required"`
	WorkflowID string `json:"workflow_id" validate:"required"`
	ClientID   string `json:"client_id"   validate:"required"`

	// Reason records what triggered the enrollment, e.g. "trigger:toxins".
	Reason string `json:"reason,omitempty"`

	CurrentStepID   string           `json:"current_step_id"`
	Status          EnrollmentStatus `json:"status"`
	NextExecutionAt *time.Time       `json:"next_execution_at,omitempty"`

	// Metadata captures trigger context at enrollment time, e.g. the
	// appointment id and type. It is never rewritten afterwards.
	Metadata map[string]any `json:"metadata,omitempty"`

	EnrolledAt  time.Time  `json:"enrolled_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AppointmentID returns the triggering appointment id from the metadata bag,
// or "" when the enrollment was not appointment-triggered.
func (e *Enrollment) AppointmentID() string {
	if e.Metadata == nil {
		return ""
	}

	id, _ := e.Metadata["appointment_id"].(string)

	return id
}
