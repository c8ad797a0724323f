package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/otelhelper"
	notifiermem "github.com/glowdesk/reflow/pkg/notifier/memory"
	"github.com/glowdesk/reflow/pkg/persistence/memory"
	"github.com/glowdesk/reflow/pkg/queue"
	"github.com/glowdesk/reflow/pkg/testutil"
	"github.com/glowdesk/reflow/pkg/trigger"
	"github.com/glowdesk/reflow/pkg/workflow"
)

type fakePublisher struct {
	mu    sync.Mutex
	posts []string
}

func (p *fakePublisher) Publish(_ context.Context, _, platform, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.posts = append(p.posts, platform+": "+body)

	return nil
}

type schedulerFixture struct {
	store     *memory.Persistence
	notifier  *notifiermem.Notifier
	publisher *fakePublisher
	clock     *testutil.FakeClock
	scheduler *Scheduler

	org    *models.Organization
	client *models.Client
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	store := memory.NewPersistence()
	notifier := notifiermem.NewNotifier()
	publisher := &fakePublisher{}
	bus := testutil.NewRecordingBus()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	logger := slog.Default()

	executor := workflow.NewExecutor(store, notifier, bus, clock, logger)
	enrollments := workflow.NewEnrollments(store, executor, bus, clock, logger, 3)
	detector := trigger.NewDetector(store, enrollments, clock, logger, time.Hour, 24*time.Hour)

	drainer := queue.NewDrainer(store.ScheduledActions(), bus, clock, logger, 5*time.Minute)
	drainer.Register(queue.NewContinueWorkflowHandler(enrollments))
	drainer.Register(queue.NewPublishPostHandler(store.Organizations(), publisher))

	sched := New(store, detector, drainer, nil, clock, logger, Config{
		TickInterval:   time.Minute,
		OrgConcurrency: 2,
	})

	org := testutil.CreateTestOrg()
	require.NoError(t, store.Organizations().Save(context.Background(), org))

	client := testutil.CreateTestClient(org.ID)
	require.NoError(t, store.Clients().Save(context.Background(), client))

	return &schedulerFixture{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		scheduler: sched,
		org:       org,
		client:    client,
	}
}

// The canonical follow-up scenario: an appointment completes, the client is
// enrolled, an SMS goes out, and a day later the follow-up tag lands.
func TestTick_EndToEndFollowUp(t *testing.T) {
	f := newSchedulerFixture(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, models.TriggerAppointmentCompleted, []*models.Step{
		testutil.SMSStep("s1", "Thanks for visiting, {{first_name}}!", "s2"),
		testutil.DelayStep("s2", 1, "days", "s3"),
		testutil.AddTagStep("s3", "followed_up", ""),
	})
	require.NoError(t, f.store.Workflows().Save(context.Background(), wf))

	// An appointment that started two hours ago is presumed finished.
	appt := testutil.CreateTestAppointment(f.org.ID, f.client.ID, func(a *models.Appointment) {
		a.CreatedAt = f.clock.Now().Add(-48 * time.Hour)
		a.StartsAt = f.clock.Now().Add(-2 * time.Hour)
	})
	require.NoError(t, f.store.Appointments().Save(context.Background(), appt))

	require.NoError(t, f.scheduler.Tick(context.Background()))

	enrollments, err := f.store.Enrollments().ListByOrg(context.Background(), f.org.ID)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.EnrollmentActive, enrollments[0].Status)

	sent := f.notifier.Messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Thanks for visiting, Sarah!", sent[0].Body)

	// A second tick minutes later changes nothing: the continuation is not
	// due and detection watermarks cover the window.
	f.clock.Advance(time.Minute)
	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.Len(t, f.notifier.Messages(), 1)

	// A day later the continuation fires and finishes the run.
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.scheduler.Tick(context.Background()))

	client, err := f.store.Clients().ByID(context.Background(), f.org.ID, f.client.ID)
	require.NoError(t, err)
	assert.True(t, client.HasTag("followed_up"))

	reloaded, err := f.store.Enrollments().ByID(context.Background(), enrollments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, reloaded.Status)

	logs, err := f.store.ExecutionLogs().ListByEnrollment(context.Background(), enrollments[0].ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(logs), 3, "enroll entry plus one entry per executed step")
}

func TestTick_PublishScheduleRollover(t *testing.T) {
	f := newSchedulerFixture(t)

	schedule, err := models.NewPublishSchedule("sch1", f.org.ID, "0 9 * * *", "instagram", "Book with {{business_name}}!")
	require.NoError(t, err)

	// Force the schedule due now regardless of wall clock.
	schedule.NextDueAt = f.clock.Now().Add(-time.Minute)
	require.NoError(t, f.store.PublishSchedules().Save(context.Background(), schedule))

	require.NoError(t, f.scheduler.Tick(context.Background()))

	require.Len(t, f.publisher.posts, 1)
	assert.Equal(t, "instagram: Book with Glow Aesthetics!", f.publisher.posts[0])

	schedules, err := f.store.PublishSchedules().ListByOrg(context.Background(), f.org.ID)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.True(t, schedules[0].NextDueAt.After(f.clock.Now()), "schedule rolled forward")

	// The next tick does not re-fire the rolled schedule.
	require.NoError(t, f.scheduler.Tick(context.Background()))
	assert.Len(t, f.publisher.posts, 1)
}

func TestTick_RecordsDetectionAndDrainSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	f := newSchedulerFixture(t)
	f.scheduler.config.Tracer = provider.Tracer("test")

	require.NoError(t, f.scheduler.Tick(context.Background()))

	names := make(map[string]int)

	var orgAttr bool

	for _, span := range recorder.Ended() {
		names[span.Name()]++

		for _, attr := range span.Attributes() {
			if string(attr.Key) == otelhelper.OrgIDKey && attr.Value.AsString() == f.org.ID {
				orgAttr = true
			}
		}
	}

	assert.Equal(t, 1, names["scheduler.detect"])
	assert.Equal(t, 1, names["scheduler.drain"])
	assert.True(t, orgAttr, "detection span carries the org id")
}
