// Package events defines the engine's lifecycle event types. Events feed
// observability consumers (admin UI, analytics); the engine never reads
// them back for control flow.
package events

import (
	"time"
)

type EventType string

// Topic is the bus topic all engine events are published to.
const Topic = "reflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	EnrollmentCreatedEvent   EventType = "enrollment.created"
	EnrollmentCompletedEvent EventType = "enrollment.completed"
	EnrollmentCancelledEvent EventType = "enrollment.cancelled"

	StepExecutedEvent EventType = "step.executed"
	StepFailedEvent   EventType = "step.failed"

	ActionScheduledEvent EventType = "action.scheduled"
	ActionCompletedEvent EventType = "action.completed"
	ActionFailedEvent    EventType = "action.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	OrgID     string         `json:"org_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type EnrollmentCreated struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ClientID     string `json:"client_id"`
	Reason       string `json:"reason,omitempty"`
}

func (e EnrollmentCreated) GetType() EventType {
	return EnrollmentCreatedEvent
}

type EnrollmentCompleted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ClientID     string `json:"client_id"`
}

func (e EnrollmentCompleted) GetType() EventType {
	return EnrollmentCompletedEvent
}

type EnrollmentCancelled struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ClientID     string `json:"client_id"`
}

func (e EnrollmentCancelled) GetType() EventType {
	return EnrollmentCancelledEvent
}

type StepExecuted struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	StepID       string `json:"step_id"`
	StepKind     string `json:"step_kind"`
}

func (e StepExecuted) GetType() EventType {
	return StepExecutedEvent
}

type StepFailed struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	StepID       string `json:"step_id"`
	StepKind     string `json:"step_kind"`
	Error        string `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type ActionScheduled struct {
	BaseEvent

	ActionID     string    `json:"action_id"`
	Kind         string    `json:"kind"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (e ActionScheduled) GetType() EventType {
	return ActionScheduledEvent
}

type ActionCompleted struct {
	BaseEvent

	ActionID string `json:"action_id"`
	Kind     string `json:"kind"`
	Attempts int    `json:"attempts"`
}

func (e ActionCompleted) GetType() EventType {
	return ActionCompletedEvent
}

type ActionFailed struct {
	BaseEvent

	ActionID string `json:"action_id"`
	Kind     string `json:"kind"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
	Terminal bool   `json:"terminal"`
}

func (e ActionFailed) GetType() EventType {
	return ActionFailedEvent
}
