package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence/memory"
	"github.com/glowdesk/reflow/pkg/testutil"
)

type stubHandler struct {
	kind     models.ActionKind
	calls    int
	failWith error
}

func (h *stubHandler) Kind() models.ActionKind { return h.kind }

func (h *stubHandler) Execute(_ context.Context, _ *models.ScheduledAction) error {
	h.calls++

	return h.failWith
}

func newAction(orgID string, at time.Time) *models.ScheduledAction {
	return &models.ScheduledAction{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		Kind:         models.ActionContinueWorkflow,
		Args:         map[string]any{"enrollment_id": uuid.NewString()},
		ScheduledFor: at,
		Status:       models.ActionPending,
		MaxAttempts:  3,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestDrain_CompletesSuccessfulAction(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	bus := testutil.NewRecordingBus()

	d := NewDrainer(store.ScheduledActions(), bus, clock, slog.Default(), 5*time.Minute)
	handler := &stubHandler{kind: models.ActionContinueWorkflow}
	d.Register(handler)

	action := newAction("org1", clock.Now().Add(-time.Minute))
	require.NoError(t, store.ScheduledActions().Create(context.Background(), action))

	stats, err := d.Drain(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, handler.calls)

	reloaded, err := store.ScheduledActions().ByID(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCompleted, reloaded.Status)
	assert.Equal(t, 1, reloaded.Attempts)
}

func TestDrain_SkipsFutureActions(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	d := NewDrainer(store.ScheduledActions(), testutil.NewRecordingBus(), clock, slog.Default(), 5*time.Minute)
	handler := &stubHandler{kind: models.ActionContinueWorkflow}
	d.Register(handler)

	action := newAction("org1", clock.Now().Add(time.Hour))
	require.NoError(t, store.ScheduledActions().Create(context.Background(), action))

	stats, err := d.Drain(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Claimed)
	assert.Equal(t, 0, handler.calls)
}

func TestDrain_RetriesUntilAttemptsExhausted(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	backoff := 5 * time.Minute
	d := NewDrainer(store.ScheduledActions(), testutil.NewRecordingBus(), clock, slog.Default(), backoff)
	handler := &stubHandler{kind: models.ActionContinueWorkflow, failWith: errors.New("provider down")}
	d.Register(handler)

	action := newAction("org1", clock.Now().Add(-time.Minute))
	require.NoError(t, store.ScheduledActions().Create(context.Background(), action))

	// First two attempts reschedule with backoff.
	for i := 1; i <= 2; i++ {
		stats, err := d.Drain(context.Background(), clock.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Rescheduled, "attempt %d", i)

		reloaded, err := store.ScheduledActions().ByID(context.Background(), action.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ActionPending, reloaded.Status)
		assert.Equal(t, i, reloaded.Attempts)
		assert.Equal(t, clock.Now().Add(backoff), reloaded.ScheduledFor)
		assert.Equal(t, "provider down", reloaded.LastError)

		clock.Advance(backoff)
	}

	// The third attempt exhausts maxAttempts and fails terminally.
	stats, err := d.Drain(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	reloaded, err := store.ScheduledActions().ByID(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, reloaded.Status)
	assert.Equal(t, 3, reloaded.Attempts)
	assert.Equal(t, 3, handler.calls, "exactly three executions, never a fourth")

	// A further drain finds nothing.
	stats, err = d.Drain(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Claimed)
	assert.Equal(t, 3, handler.calls)
}

func TestDrain_UnknownKindFailsTerminally(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	d := NewDrainer(store.ScheduledActions(), testutil.NewRecordingBus(), clock, slog.Default(), 5*time.Minute)

	action := newAction("org1", clock.Now().Add(-time.Minute))
	action.Kind = "teleport_client"
	require.NoError(t, store.ScheduledActions().Create(context.Background(), action))

	stats, err := d.Drain(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	reloaded, err := store.ScheduledActions().ByID(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionFailed, reloaded.Status)
}

func TestClaim_IsExclusive(t *testing.T) {
	store := memory.NewPersistence()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	action := newAction("org1", now.Add(-time.Minute))
	require.NoError(t, store.ScheduledActions().Create(context.Background(), action))

	won, err := store.ScheduledActions().Claim(context.Background(), action.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// A concurrent drain holding the same due snapshot loses the claim.
	won, err = store.ScheduledActions().Claim(context.Background(), action.ID)
	require.NoError(t, err)
	assert.False(t, won)
}

type countingHandler struct {
	kind models.ActionKind
	mu   sync.Mutex
	seen map[string]int
}

func (h *countingHandler) Kind() models.ActionKind { return h.kind }

func (h *countingHandler) Execute(_ context.Context, action *models.ScheduledAction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[action.ID]++

	return nil
}

func TestDrain_ConcurrentDrainersExecuteEachActionOnce(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	handler := &countingHandler{kind: models.ActionContinueWorkflow, seen: map[string]int{}}

	const actionCount = 25

	for range actionCount {
		action := newAction("org1", clock.Now().Add(-time.Minute))
		require.NoError(t, store.ScheduledActions().Create(context.Background(), action))
	}

	// Two drainers over the same queue, as two scheduler replicas whose
	// leases overlapped would run.
	drainers := []*Drainer{
		NewDrainer(store.ScheduledActions(), testutil.NewRecordingBus(), clock, slog.Default(), 5*time.Minute),
		NewDrainer(store.ScheduledActions(), testutil.NewRecordingBus(), clock, slog.Default(), 5*time.Minute),
	}

	results := make([]Stats, len(drainers))

	var wg sync.WaitGroup

	for i, d := range drainers {
		d.Register(handler)
		wg.Add(1)

		go func(i int, d *Drainer) {
			defer wg.Done()

			stats, err := d.Drain(context.Background(), clock.Now())
			assert.NoError(t, err)
			results[i] = stats
		}(i, d)
	}

	wg.Wait()

	assert.Equal(t, actionCount, results[0].Claimed+results[1].Claimed)
	assert.Equal(t, actionCount, results[0].Completed+results[1].Completed)

	require.Len(t, handler.seen, actionCount)
	for id, count := range handler.seen {
		assert.Equal(t, 1, count, "action %s executed more than once", id)
	}
}

func TestCancelledActionIsNotDrained(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	d := NewDrainer(store.ScheduledActions(), testutil.NewRecordingBus(), clock, slog.Default(), 5*time.Minute)
	handler := &stubHandler{kind: models.ActionContinueWorkflow}
	d.Register(handler)

	action := newAction("org1", clock.Now().Add(-time.Minute))
	require.NoError(t, store.ScheduledActions().Create(context.Background(), action))
	require.NoError(t, store.ScheduledActions().Cancel(context.Background(), action.ID))

	stats, err := d.Drain(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Claimed)
	assert.Equal(t, 0, handler.calls)
}
