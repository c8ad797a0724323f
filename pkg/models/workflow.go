package models

import "time"

// Trigger event keys. Workflows match either a base event type or a derived
// service sub-key (see pkg/trigger).
const (
	TriggerAppointmentScheduled = "appointment_scheduled"
	TriggerAppointmentCompleted = "appointment_completed"
)

// Workflow is an org-owned automation definition: a trigger plus a directed
// graph of steps. Administrative edits never rewrite the step configs of
// enrollments already in flight; an enrollment resolves its steps from the
// workflow as stored at each advancement.
type Workflow struct {
	ID      string  `json:"id"      validate:"required"`
	OrgID   string  `json:"org_id"  validate:"required"`
	Name    string  `json:"name"    validate:"required,min=3"`
	Trigger string  `json:"trigger" validate:"required"`
	Steps   []*Step `json:"steps"   validate:"required,min=1,dive"`
	Enabled bool    `json:"enabled"`

	// Duplicate-prevention policy: when set, a client is not re-enrolled
	// while a prior enrollment for this workflow exists inside the window.
	PreventDuplicates       bool `json:"prevent_duplicates"`
	DuplicatePreventionDays int  `json:"duplicate_prevention_days" validate:"gte=0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StartStep returns the entry node of the graph. Steps are stored in
// definition order and the first one is the start node.
func (w *Workflow) StartStep() *Step {
	if len(w.Steps) == 0 {
		return nil
	}

	return w.Steps[0]
}

// StepByID looks up a step in the graph.
func (w *Workflow) StepByID(id string) (*Step, bool) {
	for _, s := range w.Steps {
		if s.ID == id {
			return s, true
		}
	}

	return nil, false
}

// Validate checks the step graph beyond struct tags: every step config must
// match its kind and every successor edge must reference an existing step.
// Run at save time so execution never meets a malformed graph.
func (w *Workflow) Validate() error {
	ids := make(map[string]struct{}, len(w.Steps))
	for _, s := range w.Steps {
		ids[s.ID] = struct{}{}
	}

	exists := func(id string) bool {
		if id == "" {
			return true // terminal edge
		}

		_, ok := ids[id]

		return ok
	}

	for _, s := range w.Steps {
		if err := s.ValidateConfig(); err != nil {
			return NewStepError(w.ID, s.ID, err)
		}

		if s.Kind == StepConditional {
			if !exists(s.Conditional.OnTrue) || !exists(s.Conditional.OnFalse) {
				return NewStepError(w.ID, s.ID, ErrDanglingEdge)
			}

			continue
		}

		if !exists(s.Next) {
			return NewStepError(w.ID, s.ID, ErrDanglingEdge)
		}
	}

	return nil
}
