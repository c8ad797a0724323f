package workflow

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowdesk/reflow/pkg/events"
	"github.com/glowdesk/reflow/pkg/models"
	notifiermem "github.com/glowdesk/reflow/pkg/notifier/memory"
	"github.com/glowdesk/reflow/pkg/persistence/memory"
	"github.com/glowdesk/reflow/pkg/testutil"
)

type fixture struct {
	store       *memory.Persistence
	notifier    *notifiermem.Notifier
	bus         *testutil.RecordingBus
	clock       *testutil.FakeClock
	enrollments *Enrollments

	org    *models.Organization
	client *models.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	notifier := notifiermem.NewNotifier()
	bus := testutil.NewRecordingBus()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	logger := slog.Default()

	executor := NewExecutor(store, notifier, bus, clock, logger)
	enrollments := NewEnrollments(store, executor, bus, clock, logger, 3)

	org := testutil.CreateTestOrg()
	require.NoError(t, store.Organizations().Save(context.Background(), org))

	client := testutil.CreateTestClient(org.ID)
	require.NoError(t, store.Clients().Save(context.Background(), client))

	return &fixture{
		store:       store,
		notifier:    notifier,
		bus:         bus,
		clock:       clock,
		enrollments: enrollments,
		org:         org,
		client:      client,
	}
}

func (f *fixture) saveWorkflow(t *testing.T, wf *models.Workflow) {
	t.Helper()
	require.NoError(t, f.store.Workflows().Save(context.Background(), wf))
}

func TestEnroll_RunsToCompletion(t *testing.T) {
	f := newFixture(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.SMSStep("s1", "Hi {{first_name}}, thanks for visiting {{business_name}}!", "s2"),
		testutil.AddTagStep("s2", "thanked", ""),
	})
	f.saveWorkflow(t, wf)

	enrollment, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:appointment_completed", nil)
	require.NoError(t, err)
	require.NotNil(t, enrollment)

	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	assert.NotNil(t, enrollment.CompletedAt)

	sent := f.notifier.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi Sarah, thanks for visiting Glow Aesthetics!", sent[0].Body)

	client, err := f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.True(t, client.HasTag("thanked"))

	logs, err := f.store.ExecutionLogs().ListByEnrollment(context.Background(), enrollment.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3, "enroll_client plus two step entries")

	assert.Contains(t, f.bus.EventTypes(), events.EnrollmentCreatedEvent)
	assert.Contains(t, f.bus.EventTypes(), events.EnrollmentCompletedEvent)
}

func TestEnroll_DelayDefersAndContinueResumes(t *testing.T) {
	f := newFixture(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.SMSStep("s1", "Thanks for coming in!", "s2"),
		testutil.DelayStep("s2", 1, "days", "s3"),
		testutil.AddTagStep("s3", "followed_up", ""),
	})
	f.saveWorkflow(t, wf)

	enrollment, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:toxins", nil)
	require.NoError(t, err)
	require.NotNil(t, enrollment)

	assert.Equal(t, models.EnrollmentActive, enrollment.Status)
	assert.Equal(t, "s3", enrollment.CurrentStepID)
	require.NotNil(t, enrollment.NextExecutionAt)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *enrollment.NextExecutionAt)

	actions, err := f.store.ScheduledActions().ListByOrg(context.Background(), f.org.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionContinueWorkflow, actions[0].Kind)
	assert.Equal(t, models.ActionPending, actions[0].Status)
	assert.Equal(t, enrollment.ID, actions[0].StringArg("enrollment_id"))
	assert.Equal(t, "s3", actions[0].StringArg("resume_step_id"))

	f.clock.Advance(24 * time.Hour)

	require.NoError(t, f.enrollments.Continue(context.Background(), enrollment.ID, "s3"))

	client, err := f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.True(t, client.HasTag("followed_up"))

	reloaded, err := f.store.Enrollments().ByID(context.Background(), enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, reloaded.Status)
}

func TestEnroll_DuplicatePreventionWindow(t *testing.T) {
	f := newFixture(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentScheduled, []*models.Step{
		testutil.AddTagStep("s1", "welcomed", ""),
	}, func(w *models.Workflow) {
		w.PreventDuplicates = true
		w.DuplicatePreventionDays = 30
	})
	f.saveWorkflow(t, wf)

	first, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:appointment_scheduled", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	// 29 days later the window still covers the first enrollment.
	f.clock.Advance(29 * 24 * time.Hour)

	skipped, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:appointment_scheduled", nil)
	require.NoError(t, err)
	assert.Nil(t, skipped)

	// Two more days and it has aged out.
	f.clock.Advance(2 * 24 * time.Hour)

	second, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:appointment_scheduled", nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEnroll_MissingPhoneFailsStep(t *testing.T) {
	f := newFixture(t)

	f.client.Phones = nil
	require.NoError(t, f.store.Clients().Save(context.Background(), f.client))

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.SMSStep("s1", "Hi!", ""),
	})
	f.saveWorkflow(t, wf)

	enrollment, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:toxins", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingContactInfo)
	require.NotNil(t, enrollment, "the enrollment record still exists")

	logs, err := f.store.ExecutionLogs().ListByEnrollment(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.OutcomeFailed, logs[1].Outcome)

	assert.Contains(t, f.bus.EventTypes(), events.StepFailedEvent)
}

func TestEnroll_ConditionalRouting(t *testing.T) {
	f := newFixture(t)

	f.client.Tags = []string{"vip"}
	require.NoError(t, f.store.Clients().Save(context.Background(), f.client))

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.ConditionalStep("s1", models.Condition{
			Field:    models.ConditionTags,
			Operator: models.OpHasTag,
			Value:    "vip",
		}, "s2", "s3"),
		testutil.AddTagStep("s2", "vip_perk", ""),
		testutil.AddTagStep("s3", "standard_offer", ""),
	})
	f.saveWorkflow(t, wf)

	_, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:toxins", nil)
	require.NoError(t, err)

	client, err := f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.True(t, client.HasTag("vip_perk"))
	assert.False(t, client.HasTag("standard_offer"))
}

func TestCancel_IsIdempotent(t *testing.T) {
	f := newFixture(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.DelayStep("s1", 7, "days", "s2"),
		testutil.AddTagStep("s2", "reminded", ""),
	})
	f.saveWorkflow(t, wf)

	enrollment, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:toxins", nil)
	require.NoError(t, err)
	require.NotNil(t, enrollment)

	require.NoError(t, f.enrollments.Cancel(context.Background(), enrollment.ID))
	require.NoError(t, f.enrollments.Cancel(context.Background(), enrollment.ID))

	reloaded, err := f.store.Enrollments().ByID(context.Background(), enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCancelled, reloaded.Status)
	assert.Nil(t, reloaded.NextExecutionAt)

	// The parked continuation drains as a no-op.
	f.clock.Advance(7 * 24 * time.Hour)
	require.NoError(t, f.enrollments.Continue(context.Background(), enrollment.ID, "s2"))

	client, err := f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.False(t, client.HasTag("reminded"))
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.DelayStep("s1", 1, "days", "s2"),
		testutil.AddTagStep("s2", "reminded", ""),
	})
	f.saveWorkflow(t, wf)

	enrollment, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:toxins", nil)
	require.NoError(t, err)

	require.NoError(t, f.enrollments.Pause(context.Background(), enrollment.ID))

	// The original continuation fires while paused and is a no-op.
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.enrollments.Continue(context.Background(), enrollment.ID, "s2"))

	client, err := f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.False(t, client.HasTag("reminded"))

	// Resume re-mints the continuation; the wake time has passed so it runs
	// immediately once drained.
	require.NoError(t, f.enrollments.Resume(context.Background(), enrollment.ID))

	actions, err := f.store.ScheduledActions().ListByOrg(context.Background(), f.org.ID)
	require.NoError(t, err)

	pending := 0
	for _, a := range actions {
		if a.Status == models.ActionPending {
			pending++
		}
	}

	assert.Equal(t, 2, pending, "original no-op continuation plus the re-minted one")

	require.NoError(t, f.enrollments.Continue(context.Background(), enrollment.ID, "s2"))

	client, err = f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.True(t, client.HasTag("reminded"))
}

func TestContinue_StaleResumeStepIsNoOp(t *testing.T) {
	f := newFixture(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.DelayStep("s1", 1, "days", "s2"),
		testutil.AddTagStep("s2", "reminded", ""),
	})
	f.saveWorkflow(t, wf)

	enrollment, err := f.enrollments.Enroll(context.Background(), wf, f.client, "trigger:toxins", nil)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.enrollments.Continue(context.Background(), enrollment.ID, "some_old_step"))

	client, err := f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.False(t, client.HasTag("reminded"))
}

func TestDelayUnits(t *testing.T) {
	tests := []struct {
		unit string
		want time.Duration
	}{
		{"seconds", 2 * time.Second},
		{"minutes", 2 * time.Minute},
		{"hours", 2 * time.Hour},
		{"days", 48 * time.Hour},
		{"weeks", 2 * 7 * 24 * time.Hour},
		{"months", 2 * 30 * 24 * time.Hour},
		{"fortnights", 48 * time.Hour}, // unknown unit falls back to days
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			cfg := models.DelayConfig{Value: 2, Unit: tt.unit}
			assert.Equal(t, tt.want, cfg.Duration())
		})
	}
}
