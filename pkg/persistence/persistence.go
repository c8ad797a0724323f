// Package persistence provides the data storage abstraction for the
// workflow engine's entities.
package persistence

import (
	"context"
	"time"

	"github.com/glowdesk/reflow/pkg/models"
)

// Persistence aggregates the repositories backing the engine. The store is
// assumed to offer transactional single-record mutations; exclusivity is
// built on conditional status transitions, never on held locks.
type Persistence interface {
	Organizations() OrganizationRepository
	Clients() ClientRepository
	Appointments() AppointmentRepository
	Workflows() WorkflowRepository
	Enrollments() EnrollmentRepository
	ScheduledActions() ScheduledActionRepository
	ExecutionLogs() ExecutionLogRepository
	Messages() MessageRepository
	PublishSchedules() PublishScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type OrganizationRepository interface {
	List(ctx context.Context) ([]*models.Organization, error)
	ByID(ctx context.Context, id string) (*models.Organization, error)
	Save(ctx context.Context, org *models.Organization) error
}

// ClientRepository exposes the contact fields the executor reads and the
// tag mutations it performs.
type ClientRepository interface {
	ByID(ctx context.Context, orgID, id string) (*models.Client, error)
	Save(ctx context.Context, client *models.Client) error

	// AddTag appends tag to the client's tag set; it reports false when the
	// tag was already present (the caller logs tag_already_exists).
	AddTag(ctx context.Context, orgID, clientID, tag string) (bool, error)

	// RemoveTag strips tag from the client's tag set, one occurrence or all
	// of them depending on mode, and returns how many were removed.
	RemoveTag(ctx context.Context, orgID, clientID, tag string, mode models.RemoveTagMode) (int, error)
}

// AppointmentRepository is the engine's read/transition view over the
// appointment records owned by the external calendar sync.
type AppointmentRepository interface {
	ByID(ctx context.Context, orgID, id string) (*models.Appointment, error)
	Save(ctx context.Context, appointment *models.Appointment) error

	// CreatedBetween returns still-scheduled appointments created inside
	// (since, until], ordered by creation time.
	CreatedBetween(ctx context.Context, orgID string, since, until time.Time) ([]*models.Appointment, error)

	// StartedBefore returns still-scheduled appointments whose start time is
	// at or before the cutoff.
	StartedBefore(ctx context.Context, orgID string, cutoff time.Time) ([]*models.Appointment, error)

	// MarkCompleted transitions scheduled -> completed. It reports false
	// when the appointment was no longer scheduled, so two detectors racing
	// on the same appointment produce a single completion event.
	MarkCompleted(ctx context.Context, orgID, id string) (bool, error)

	CountByClient(ctx context.Context, orgID, clientID string) (int, error)

	// LastCompletedByClient returns the client's most recent completed
	// appointment, or ErrAppointmentNotFound when there is none.
	LastCompletedByClient(ctx context.Context, orgID, clientID string) (*models.Appointment, error)
}

type WorkflowRepository interface {
	ByID(ctx context.Context, orgID, id string) (*models.Workflow, error)
	ListByOrg(ctx context.Context, orgID string) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, orgID, id string) error

	// EnabledByTrigger returns enabled workflows whose trigger matches any
	// of the given keys.
	EnabledByTrigger(ctx context.Context, orgID string, keys []string) ([]*models.Workflow, error)
}

type EnrollmentRepository interface {
	ByID(ctx context.Context, id string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Save(ctx context.Context, enrollment *models.Enrollment) error
	ListByOrg(ctx context.Context, orgID string) ([]*models.Enrollment, error)

	// LatestByWorkflowAndClient returns the most recent enrollment of the
	// client into the workflow enrolled at or after since, or
	// ErrEnrollmentNotFound. Backs the duplicate-prevention window.
	LatestByWorkflowAndClient(ctx context.Context, workflowID, clientID string, since time.Time) (*models.Enrollment, error)
}

// ScheduledActionRepository is the durable continuation queue. Claim is the
// one hard exclusivity primitive in the system.
type ScheduledActionRepository interface {
	ByID(ctx context.Context, id string) (*models.ScheduledAction, error)
	Create(ctx context.Context, action *models.ScheduledAction) error
	ListByOrg(ctx context.Context, orgID string) ([]*models.ScheduledAction, error)

	// Due returns pending actions with scheduled_for <= now.
	Due(ctx context.Context, now time.Time) ([]*models.ScheduledAction, error)

	// Claim transitions pending -> running and increments attempts in one
	// conditional write. It reports false when another drain won the race.
	Claim(ctx context.Context, id string) (bool, error)

	// MarkCompleted finishes a running action.
	MarkCompleted(ctx context.Context, id string) error

	// Reschedule returns a running action to pending at the given time,
	// recording the error that caused the retry.
	Reschedule(ctx context.Context, id string, at time.Time, lastError string) error

	// MarkFailed terminally fails a running action.
	MarkFailed(ctx context.Context, id string, lastError string) error

	// Cancel transitions pending -> cancelled; cancelling in any other
	// status is a no-op.
	Cancel(ctx context.Context, id string) error
}

// ExecutionLogRepository is append-only; there is no update or delete.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLog, error)
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*models.ExecutionLog, error)
}

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	ListByClient(ctx context.Context, orgID, clientID string) ([]*models.Message, error)
}

type PublishScheduleRepository interface {
	Save(ctx context.Context, schedule *models.PublishSchedule) error
	ListByOrg(ctx context.Context, orgID string) ([]*models.PublishSchedule, error)

	// Due returns active schedules with next_due_at <= now.
	Due(ctx context.Context, now time.Time) ([]*models.PublishSchedule, error)
}
