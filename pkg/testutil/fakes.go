package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowdesk/reflow/pkg/eventbus"
	"github.com/glowdesk/reflow/pkg/events"
)

// FakeClock is a settable clock for deterministic tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

// RecordingBus is an EventBus that records published events in memory.
type RecordingBus struct {
	mu        sync.Mutex
	published []eventbus.Event
}

func NewRecordingBus() *RecordingBus {
	return &RecordingBus{}
}

func (b *RecordingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published = append(b.published, event)

	return nil
}

func (b *RecordingBus) Handle(_ events.EventType, _ eventbus.EventHandler) {}

func (b *RecordingBus) Subscribe(_ context.Context) error { return nil }

func (b *RecordingBus) GenerateID() string { return uuid.NewString() }

func (b *RecordingBus) Close() error { return nil }

// Published returns a copy of every event published so far.
func (b *RecordingBus) Published() []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]eventbus.Event, len(b.published))
	copy(out, b.published)

	return out
}

// EventTypes returns the types of published events in order.
func (b *RecordingBus) EventTypes() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]events.EventType, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, e.GetType())
	}

	return out
}
