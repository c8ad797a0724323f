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
	"github.com/glowdesk/reflow/pkg/template"
)

// StepResult tells the enrollment manager where the run goes next.
//
// Deferred means the step suspended the enrollment (delay); ResumeAt holds
// when it wakes and NextStepID the step it resumes at. A non-deferred result
// with an empty NextStepID marks the run complete.
type StepResult struct {
	NextStepID string
	Deferred   bool
	ResumeAt   time.Time
	Detail     string
}

// Executor runs a single step of an enrollment. Every attempt, success or
// failure, lands one execution-log entry; the entry is audit trail, never
// control flow.
type Executor struct {
	persistence persistence.Persistence
	notifier    protocol.Notifier
	conditions  *ConditionEvaluator
	eventBus    eventbus.EventBus
	clock       protocol.Clock
	logger      *slog.Logger
}

func NewExecutor(
	p persistence.Persistence,
	notifier protocol.Notifier,
	eventBus eventbus.EventBus,
	clock protocol.Clock,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		persistence: p,
		notifier:    notifier,
		conditions:  NewConditionEvaluator(p.Appointments(), clock),
		eventBus:    eventBus,
		clock:       clock,
		logger:      logger.With("module", "executor"),
	}
}

// Execute runs one step for the enrollment. On error the step has had no
// partial effect worth compensating: messaging steps either sent or did not,
// tag steps are idempotent, and the caller decides whether to retry.
func (ex *Executor) Execute(ctx context.Context, wf *models.Workflow, enrollment *models.Enrollment, step *models.Step) (*StepResult, error) {
	client, err := ex.persistence.Clients().ByID(ctx, enrollment.OrgID, enrollment.ClientID)
	if err != nil {
		return nil, ex.failed(ctx, wf, enrollment, step, fmt.Errorf("failed to load client: %w", err))
	}

	tmplCtx, err := ex.templateContext(ctx, enrollment, client)
	if err != nil {
		return nil, ex.failed(ctx, wf, enrollment, step, err)
	}

	var result *StepResult

	switch step.Kind {
	case models.StepSendSMS:
		result, err = ex.sendSMS(ctx, enrollment, step, client, tmplCtx)
	case models.StepSendEmail:
		result, err = ex.sendEmail(ctx, enrollment, step, client, tmplCtx)
	case models.StepAddTag:
		result, err = ex.addTag(ctx, enrollment, step)
	case models.StepRemoveTag:
		result, err = ex.removeTag(ctx, enrollment, step)
	case models.StepDelay:
		result = ex.delay(step)
	case models.StepConditional:
		result, err = ex.conditional(ctx, step, client, tmplCtx.Appointment)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownStepType, step.Kind)
	}

	if err != nil {
		return nil, ex.failed(ctx, wf, enrollment, step, err)
	}

	ex.appendLog(ctx, wf, enrollment, step, models.OutcomeExecuted, result.Detail)
	ex.publishStepExecuted(ctx, wf, enrollment, step)

	return result, nil
}

func (ex *Executor) sendSMS(ctx context.Context, enrollment *models.Enrollment, step *models.Step, client *models.Client, tmplCtx template.Context) (*StepResult, error) {
	to := client.PrimaryPhone()
	if to == "" {
		return nil, fmt.Errorf("%w: no phone on client %s", ErrMissingContactInfo, client.ID)
	}

	body := template.Render(step.SendSMS.Template, tmplCtx)

	ref, err := ex.notifier.SendSMS(ctx, to, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotifierUnavailable, err)
	}

	ex.recordMessage(ctx, enrollment, client, models.ChannelSMS, to, "", body, ref)

	return &StepResult{NextStepID: step.Next, Detail: "sms accepted"}, nil
}

func (ex *Executor) sendEmail(ctx context.Context, enrollment *models.Enrollment, step *models.Step, client *models.Client, tmplCtx template.Context) (*StepResult, error) {
	if client.Email == "" {
		return nil, fmt.Errorf("%w: no email on client %s", ErrMissingContactInfo, client.ID)
	}

	subject := template.Render(step.SendEmail.Subject, tmplCtx)
	body := template.Render(step.SendEmail.Template, tmplCtx)

	ref, err := ex.notifier.SendEmail(ctx, client.Email, subject, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotifierUnavailable, err)
	}

	ex.recordMessage(ctx, enrollment, client, models.ChannelEmail, client.Email, subject, body, ref)

	return &StepResult{NextStepID: step.Next, Detail: "email accepted"}, nil
}

func (ex *Executor) addTag(ctx context.Context, enrollment *models.Enrollment, step *models.Step) (*StepResult, error) {
	added, err := ex.persistence.Clients().AddTag(ctx, enrollment.OrgID, enrollment.ClientID, step.AddTag.Tag)
	if err != nil {
		return nil, fmt.Errorf("failed to add tag %q: %w", step.AddTag.Tag, err)
	}

	detail := "tag added"
	if !added {
		detail = "tag already exists"
	}

	return &StepResult{NextStepID: step.Next, Detail: detail}, nil
}

func (ex *Executor) removeTag(ctx context.Context, enrollment *models.Enrollment, step *models.Step) (*StepResult, error) {
	mode := step.RemoveTag.Mode
	if mode == "" {
		mode = models.RemoveTagSingle
	}

	removed, err := ex.persistence.Clients().RemoveTag(ctx, enrollment.OrgID, enrollment.ClientID, step.RemoveTag.Tag, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to remove tag %q: %w", step.RemoveTag.Tag, err)
	}

	detail := "tag not present"
	if removed > 0 {
		detail = fmt.Sprintf("removed %d tag(s)", removed)
	}

	return &StepResult{NextStepID: step.Next, Detail: detail}, nil
}

func (ex *Executor) delay(step *models.Step) *StepResult {
	return &StepResult{
		NextStepID: step.Next,
		Deferred:   true,
		ResumeAt:   ex.clock.Now().Add(step.Delay.Duration()),
		Detail:     fmt.Sprintf("delayed %d %s", step.Delay.Value, step.Delay.Unit),
	}
}

func (ex *Executor) conditional(ctx context.Context, step *models.Step, client *models.Client, appointment *models.Appointment) (*StepResult, error) {
	matched, err := ex.conditions.Evaluate(ctx, step.Conditional.Condition, client, appointment)
	if err != nil {
		return nil, err
	}

	next := step.Conditional.OnFalse
	detail := "condition false"

	if matched {
		next = step.Conditional.OnTrue
		detail = "condition true"
	}

	return &StepResult{NextStepID: next, Detail: detail}, nil
}

// templateContext resolves the org and the triggering appointment. A missing
// appointment record is tolerated; the calendar sync may have purged it.
func (ex *Executor) templateContext(ctx context.Context, enrollment *models.Enrollment, client *models.Client) (template.Context, error) {
	org, err := ex.persistence.Organizations().ByID(ctx, enrollment.OrgID)
	if err != nil {
		return template.Context{}, fmt.Errorf("failed to load organization %s: %w", enrollment.OrgID, err)
	}

	tmplCtx := template.Context{Client: client, Org: org}

	if id := enrollment.AppointmentID(); id != "" {
		appointment, err := ex.persistence.Appointments().ByID(ctx, enrollment.OrgID, id)
		if err != nil && !errors.Is(err, persistence.ErrAppointmentNotFound) {
			return template.Context{}, fmt.Errorf("failed to load appointment %s: %w", id, err)
		}

		tmplCtx.Appointment = appointment
	}

	return tmplCtx, nil
}

func (ex *Executor) recordMessage(ctx context.Context, enrollment *models.Enrollment, client *models.Client, channel models.MessageChannel, to, subject, body string, ref protocol.DeliveryRef) {
	msg := &models.Message{
		ID:           uuid.NewString(),
		OrgID:        enrollment.OrgID,
		ClientID:     client.ID,
		EnrollmentID: enrollment.ID,
		Channel:      channel,
		To:           to,
		Subject:      subject,
		Body:         body,
		DeliveryRef:  string(ref),
		SentAt:       ex.clock.Now(),
	}

	if err := ex.persistence.Messages().Create(ctx, msg); err != nil {
		ex.logger.ErrorContext(ctx, "Failed to record outbound message",
			"enrollment_id", enrollment.ID, "channel", channel, "error", err)
	}
}

func (ex *Executor) failed(ctx context.Context, wf *models.Workflow, enrollment *models.Enrollment, step *models.Step, err error) error {
	ex.appendLog(ctx, wf, enrollment, step, models.OutcomeFailed, err.Error())
	ex.publishStepFailed(ctx, wf, enrollment, step, err)

	return &StepExecutionError{
		EnrollmentID: enrollment.ID,
		StepID:       step.ID,
		Kind:         string(step.Kind),
		Err:          err,
	}
}

func (ex *Executor) appendLog(ctx context.Context, wf *models.Workflow, enrollment *models.Enrollment, step *models.Step, outcome models.ExecutionOutcome, message string) {
	entry := &models.ExecutionLog{
		ID:           uuid.NewString(),
		OrgID:        enrollment.OrgID,
		WorkflowID:   wf.ID,
		EnrollmentID: enrollment.ID,
		ClientID:     enrollment.ClientID,
		StepID:       step.ID,
		Action:       string(step.Kind),
		Outcome:      outcome,
		Message:      message,
		CreatedAt:    ex.clock.Now(),
	}

	if err := ex.persistence.ExecutionLogs().Append(ctx, entry); err != nil {
		ex.logger.ErrorContext(ctx, "Failed to append execution log",
			"enrollment_id", enrollment.ID, "step_id", step.ID, "error", err)
	}
}

func (ex *Executor) publishStepExecuted(ctx context.Context, wf *models.Workflow, enrollment *models.Enrollment, step *models.Step) {
	event := events.StepExecuted{
		BaseEvent: events.BaseEvent{
			ID:        ex.eventBus.GenerateID(),
			Type:      events.StepExecutedEvent,
			Timestamp: ex.clock.Now(),
			OrgID:     enrollment.OrgID,
		},
		EnrollmentID: enrollment.ID,
		WorkflowID:   wf.ID,
		StepID:       step.ID,
		StepKind:     string(step.Kind),
	}

	if err := ex.eventBus.Publish(ctx, enrollment.ID, event); err != nil {
		ex.logger.WarnContext(ctx, "Failed to publish step event", "error", err)
	}
}

func (ex *Executor) publishStepFailed(ctx context.Context, wf *models.Workflow, enrollment *models.Enrollment, step *models.Step, stepErr error) {
	event := events.StepFailed{
		BaseEvent: events.BaseEvent{
			ID:        ex.eventBus.GenerateID(),
			Type:      events.StepFailedEvent,
			Timestamp: ex.clock.Now(),
			OrgID:     enrollment.OrgID,
		},
		EnrollmentID: enrollment.ID,
		WorkflowID:   wf.ID,
		StepID:       step.ID,
		StepKind:     string(step.Kind),
		Error:        stepErr.Error(),
	}

	if err := ex.eventBus.Publish(ctx, enrollment.ID, event); err != nil {
		ex.logger.WarnContext(ctx, "Failed to publish step event", "error", err)
	}
}
