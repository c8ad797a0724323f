package models

import "time"

// ActionKind tags what a durable scheduled action does when it fires.
type ActionKind string

const (
	ActionContinueWorkflow ActionKind = "continue_workflow"
	ActionPublishPost      ActionKind = "publish_post"
)

// ActionStatus is the scheduled-action state machine:
// pending -> running -> {completed | pending (retry) | failed}.
// cancelled is reachable from pending via the admin surface.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRunning   ActionStatus = "running"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
	ActionCancelled ActionStatus = "cancelled"
)

// ScheduledAction is a durable time-delayed continuation. The queue claims
// it with a conditional status transition so two concurrent drains can never
// both run it.
type ScheduledAction struct {
	ID    string     `json:"id"     validate:"required"`
	OrgID string     `json:"org_id" validate:"required"`
	Kind  ActionKind `json:"kind"   validate:"required"`

	// Args is the opaque continuation payload; its shape depends on Kind.
	Args map[string]any `json:"args,omitempty"`

	ScheduledFor time.Time    `json:"scheduled_for"`
	Status       ActionStatus `json:"status"`

	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StringArg reads a string field from the args bag.
func (a *ScheduledAction) StringArg(key string) string {
	if a.Args == nil {
		return ""
	}

	v, _ := a.Args[key].(string)

	return v
}
