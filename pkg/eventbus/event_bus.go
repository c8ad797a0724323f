// Package eventbus publishes engine lifecycle events over watermill.
package eventbus

import (
	"context"

	"github.com/glowdesk/reflow/pkg/events"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() events.EventType
}

// EventHandler processes one decoded event.
type EventHandler func(ctx context.Context, event any) error

// EventBus decouples the engine from its observers. Publish failures are
// the caller's to log and ignore; the engine never fails an action because
// an observer is down.
type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Handle(eventType events.EventType, handler EventHandler)
	Subscribe(ctx context.Context) error
	GenerateID() string
	Close() error
}
