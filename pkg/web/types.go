package web

import (
	"time"

	"github.com/glowdesk/reflow/pkg/models"
)

// CreateWorkflowRequest is the admin payload for a new workflow. Steps ride
// through as full step definitions; their configs are schema-validated
// before the graph is checked.
type CreateWorkflowRequest struct {
	Name                    string         `json:"name"    validate:"required,min=3"`
	Trigger                 string         `json:"trigger" validate:"required"`
	Steps                   []*models.Step `json:"steps"   validate:"required,min=1"`
	Enabled                 bool           `json:"enabled"`
	PreventDuplicates       bool           `json:"prevent_duplicates"`
	DuplicatePreventionDays int            `json:"duplicate_prevention_days" validate:"gte=0"`
}

// UpdateWorkflowRequest carries the mutable workflow fields. Nil pointers
// leave the stored value untouched.
type UpdateWorkflowRequest struct {
	Name                    *string        `json:"name,omitempty" validate:"omitempty,min=3"`
	Trigger                 *string        `json:"trigger,omitempty"`
	Steps                   []*models.Step `json:"steps,omitempty"`
	PreventDuplicates       *bool          `json:"prevent_duplicates,omitempty"`
	DuplicatePreventionDays *int           `json:"duplicate_prevention_days,omitempty" validate:"omitempty,gte=0"`
}

// CreatePublishScheduleRequest defines a recurring social post.
type CreatePublishScheduleRequest struct {
	CronExpression string `json:"cron_expression" validate:"required"`
	Platform       string `json:"platform"        validate:"required"`
	Template       string `json:"template"        validate:"required"`
}

// EnrollmentListResponse pairs enrollments with the time they were listed,
// so admin UIs can render "next execution in ..." consistently.
type EnrollmentListResponse struct {
	Enrollments []*models.Enrollment `json:"enrollments"`
	AsOf        time.Time            `json:"as_of"`
}
