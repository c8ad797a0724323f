package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glowdesk/reflow/pkg/eventbus"
	"github.com/glowdesk/reflow/pkg/events"
	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/protocol"
)

const defaultMaxActionAttempts = 3

// Enrollments owns every enrollment mutation: creation with the
// duplicate-prevention window, the advance loop, and the admin lifecycle
// transitions. Nothing else writes enrollment records.
type Enrollments struct {
	persistence persistence.Persistence
	executor    *Executor
	eventBus    eventbus.EventBus
	clock       protocol.Clock
	logger      *slog.Logger

	// maxActionAttempts seeds MaxAttempts on continuation actions.
	maxActionAttempts int
}

func NewEnrollments(
	p persistence.Persistence,
	executor *Executor,
	eventBus eventbus.EventBus,
	clock protocol.Clock,
	logger *slog.Logger,
	maxActionAttempts int,
) *Enrollments {
	if maxActionAttempts <= 0 {
		maxActionAttempts = defaultMaxActionAttempts
	}

	return &Enrollments{
		persistence:       p,
		executor:          executor,
		eventBus:          eventBus,
		clock:             clock,
		logger:            logger.With("module", "enrollments"),
		maxActionAttempts: maxActionAttempts,
	}
}

// Enroll starts a client on a workflow and synchronously advances the run
// until it defers or terminates. When the workflow's duplicate-prevention
// window still covers a prior enrollment the client is skipped and Enroll
// returns (nil, nil).
func (m *Enrollments) Enroll(ctx context.Context, wf *models.Workflow, client *models.Client, reason string, metadata map[string]any) (*models.Enrollment, error) {
	start := wf.StartStep()
	if start == nil {
		return nil, fmt.Errorf("workflow %s has no steps", wf.ID)
	}

	if wf.PreventDuplicates {
		skip, err := m.insideDuplicateWindow(ctx, wf, client.ID)
		if err != nil {
			return nil, err
		}

		if skip {
			m.logger.InfoContext(ctx, "Skipping enrollment inside duplicate-prevention window",
				"workflow_id", wf.ID, "client_id", client.ID)

			return nil, nil
		}
	}

	now := m.clock.Now()
	enrollment := &models.Enrollment{
		ID:            uuid.NewString(),
		OrgID:         wf.OrgID,
		WorkflowID:    wf.ID,
		ClientID:      client.ID,
		Reason:        reason,
		CurrentStepID: start.ID,
		Status:        models.EnrollmentActive,
		Metadata:      metadata,
		EnrolledAt:    now,
		UpdatedAt:     now,
	}

	if err := m.persistence.Enrollments().Create(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	m.appendEnrollLog(ctx, wf, enrollment)
	m.publishCreated(ctx, enrollment)

	if err := m.Advance(ctx, enrollment); err != nil {
		// The enrollment exists and the failed step attempt is logged; the
		// caller sees the enrollment along with the error.
		return enrollment, err
	}

	return enrollment, nil
}

// insideDuplicateWindow reports whether a prior enrollment of the client
// into wf exists within the prevention window. A window of zero days means
// "while any enrollment for this workflow exists at all".
func (m *Enrollments) insideDuplicateWindow(ctx context.Context, wf *models.Workflow, clientID string) (bool, error) {
	since := time.Time{}
	if wf.DuplicatePreventionDays > 0 {
		since = m.clock.Now().AddDate(0, 0, -wf.DuplicatePreventionDays)
	}

	_, err := m.persistence.Enrollments().LatestByWorkflowAndClient(ctx, wf.ID, clientID, since)
	if errors.Is(err, persistence.ErrEnrollmentNotFound) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to check duplicate window: %w", err)
	}

	return true, nil
}

// Advance executes steps until the run defers on a delay, reaches a
// terminal edge, or a step fails. The enrollment record is saved after each
// step so a crash resumes from the last completed one.
func (m *Enrollments) Advance(ctx context.Context, enrollment *models.Enrollment) error {
	for enrollment.Status == models.EnrollmentActive && enrollment.CurrentStepID != "" {
		wf, err := m.persistence.Workflows().ByID(ctx, enrollment.OrgID, enrollment.WorkflowID)
		if err != nil {
			return fmt.Errorf("failed to load workflow %s: %w", enrollment.WorkflowID, err)
		}

		step, ok := wf.StepByID(enrollment.CurrentStepID)
		if !ok {
			// The workflow was edited out from under the run. Nothing left
			// to execute; close the enrollment out.
			m.logger.WarnContext(ctx, "Current step no longer exists, completing enrollment",
				"enrollment_id", enrollment.ID, "step_id", enrollment.CurrentStepID)

			return m.complete(ctx, enrollment)
		}

		result, err := m.executor.Execute(ctx, wf, enrollment, step)
		if err != nil {
			return err
		}

		if result.Deferred && result.NextStepID != "" {
			return m.deferRun(ctx, enrollment, result)
		}

		enrollment.CurrentStepID = result.NextStepID
		enrollment.NextExecutionAt = nil
		enrollment.UpdatedAt = m.clock.Now()

		if err := m.persistence.Enrollments().Save(ctx, enrollment); err != nil {
			return fmt.Errorf("failed to save enrollment: %w", err)
		}
	}

	if enrollment.Status == models.EnrollmentActive && enrollment.CurrentStepID == "" {
		return m.complete(ctx, enrollment)
	}

	return nil
}

// Continue resumes a deferred enrollment from a fired continuation action.
// A non-active enrollment or a stale resume step makes it a no-op; stale
// actions must drain cleanly after admin edits.
func (m *Enrollments) Continue(ctx context.Context, enrollmentID, resumeStepID string) error {
	enrollment, err := m.persistence.Enrollments().ByID(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment %s: %w", enrollmentID, err)
	}

	if enrollment.Status != models.EnrollmentActive {
		m.logger.InfoContext(ctx, "Skipping continuation of non-active enrollment",
			"enrollment_id", enrollmentID, "status", enrollment.Status)

		return nil
	}

	if resumeStepID != "" && enrollment.CurrentStepID != resumeStepID {
		m.logger.InfoContext(ctx, "Skipping stale continuation",
			"enrollment_id", enrollmentID, "expected_step", resumeStepID, "current_step", enrollment.CurrentStepID)

		return nil
	}

	return m.Advance(ctx, enrollment)
}

// Cancel terminally stops an enrollment. Cancelling an already-terminal
// enrollment is a no-op.
func (m *Enrollments) Cancel(ctx context.Context, enrollmentID string) error {
	enrollment, err := m.persistence.Enrollments().ByID(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment %s: %w", enrollmentID, err)
	}

	switch enrollment.Status {
	case models.EnrollmentCompleted, models.EnrollmentCancelled:
		return nil
	}

	enrollment.Status = models.EnrollmentCancelled
	enrollment.NextExecutionAt = nil
	enrollment.UpdatedAt = m.clock.Now()

	if err := m.persistence.Enrollments().Save(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	m.publishCancelled(ctx, enrollment)

	return nil
}

// Pause suspends an active enrollment. A continuation firing while paused
// drains as a no-op; Resume re-mints it.
func (m *Enrollments) Pause(ctx context.Context, enrollmentID string) error {
	enrollment, err := m.persistence.Enrollments().ByID(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment %s: %w", enrollmentID, err)
	}

	if enrollment.Status != models.EnrollmentActive {
		return nil
	}

	enrollment.Status = models.EnrollmentPaused
	enrollment.UpdatedAt = m.clock.Now()

	if err := m.persistence.Enrollments().Save(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	return nil
}

// Resume reactivates a paused enrollment and schedules its continuation at
// the original wake time, or immediately when that has already passed.
func (m *Enrollments) Resume(ctx context.Context, enrollmentID string) error {
	enrollment, err := m.persistence.Enrollments().ByID(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment %s: %w", enrollmentID, err)
	}

	if enrollment.Status != models.EnrollmentPaused {
		return nil
	}

	enrollment.Status = models.EnrollmentActive
	enrollment.UpdatedAt = m.clock.Now()

	if err := m.persistence.Enrollments().Save(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	if enrollment.CurrentStepID == "" {
		return m.complete(ctx, enrollment)
	}

	at := m.clock.Now()
	if enrollment.NextExecutionAt != nil && enrollment.NextExecutionAt.After(at) {
		at = *enrollment.NextExecutionAt
	}

	return m.scheduleContinuation(ctx, enrollment, at)
}

// deferRun suspends the run on a delay step: the enrollment parks at the
// step after the delay and a durable continuation wakes it.
func (m *Enrollments) deferRun(ctx context.Context, enrollment *models.Enrollment, result *StepResult) error {
	enrollment.CurrentStepID = result.NextStepID
	enrollment.NextExecutionAt = &result.ResumeAt
	enrollment.UpdatedAt = m.clock.Now()

	if err := m.persistence.Enrollments().Save(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	return m.scheduleContinuation(ctx, enrollment, result.ResumeAt)
}

func (m *Enrollments) scheduleContinuation(ctx context.Context, enrollment *models.Enrollment, at time.Time) error {
	now := m.clock.Now()
	action := &models.ScheduledAction{
		ID:    uuid.NewString(),
		OrgID: enrollment.OrgID,
		Kind:  models.ActionContinueWorkflow,
		Args: map[string]any{
			"enrollment_id":  enrollment.ID,
			"resume_step_id": enrollment.CurrentStepID,
		},
		ScheduledFor: at,
		Status:       models.ActionPending,
		MaxAttempts:  m.maxActionAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.persistence.ScheduledActions().Create(ctx, action); err != nil {
		return fmt.Errorf("failed to schedule continuation: %w", err)
	}

	m.publishActionScheduled(ctx, action)

	return nil
}

func (m *Enrollments) complete(ctx context.Context, enrollment *models.Enrollment) error {
	now := m.clock.Now()
	enrollment.Status = models.EnrollmentCompleted
	enrollment.CurrentStepID = ""
	enrollment.NextExecutionAt = nil
	enrollment.CompletedAt = &now
	enrollment.UpdatedAt = now

	if err := m.persistence.Enrollments().Save(ctx, enrollment); err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	m.publishCompleted(ctx, enrollment)

	return nil
}

func (m *Enrollments) appendEnrollLog(ctx context.Context, wf *models.Workflow, enrollment *models.Enrollment) {
	entry := &models.ExecutionLog{
		ID:           uuid.NewString(),
		OrgID:        enrollment.OrgID,
		WorkflowID:   wf.ID,
		EnrollmentID: enrollment.ID,
		ClientID:     enrollment.ClientID,
		Action:       "enroll_client",
		Outcome:      models.OutcomeExecuted,
		Message:      enrollment.Reason,
		Metadata:     enrollment.Metadata,
		CreatedAt:    m.clock.Now(),
	}

	if err := m.persistence.ExecutionLogs().Append(ctx, entry); err != nil {
		m.logger.ErrorContext(ctx, "Failed to append enrollment log",
			"enrollment_id", enrollment.ID, "error", err)
	}
}

func (m *Enrollments) publishCreated(ctx context.Context, enrollment *models.Enrollment) {
	event := events.EnrollmentCreated{
		BaseEvent:    m.baseEvent(events.EnrollmentCreatedEvent, enrollment.OrgID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   enrollment.WorkflowID,
		ClientID:     enrollment.ClientID,
		Reason:       enrollment.Reason,
	}

	if err := m.eventBus.Publish(ctx, enrollment.ID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish enrollment event", "error", err)
	}
}

func (m *Enrollments) publishCompleted(ctx context.Context, enrollment *models.Enrollment) {
	event := events.EnrollmentCompleted{
		BaseEvent:    m.baseEvent(events.EnrollmentCompletedEvent, enrollment.OrgID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   enrollment.WorkflowID,
		ClientID:     enrollment.ClientID,
	}

	if err := m.eventBus.Publish(ctx, enrollment.ID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish enrollment event", "error", err)
	}
}

func (m *Enrollments) publishCancelled(ctx context.Context, enrollment *models.Enrollment) {
	event := events.EnrollmentCancelled{
		BaseEvent:    m.baseEvent(events.EnrollmentCancelledEvent, enrollment.OrgID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   enrollment.WorkflowID,
		ClientID:     enrollment.ClientID,
	}

	if err := m.eventBus.Publish(ctx, enrollment.ID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish enrollment event", "error", err)
	}
}

func (m *Enrollments) publishActionScheduled(ctx context.Context, action *models.ScheduledAction) {
	event := events.ActionScheduled{
		BaseEvent:    m.baseEvent(events.ActionScheduledEvent, action.OrgID),
		ActionID:     action.ID,
		Kind:         string(action.Kind),
		ScheduledFor: action.ScheduledFor,
	}

	if err := m.eventBus.Publish(ctx, action.ID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish action event", "error", err)
	}
}

func (m *Enrollments) baseEvent(t events.EventType, orgID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        m.eventBus.GenerateID(),
		Type:      t,
		Timestamp: m.clock.Now(),
		OrgID:     orgID,
	}
}
