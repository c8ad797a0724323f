// Package queue drains the durable scheduled-action queue with retry and
// backoff.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/glowdesk/reflow/pkg/eventbus"
	"github.com/glowdesk/reflow/pkg/events"
	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/otelhelper"
	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/protocol"
	"github.com/glowdesk/reflow/pkg/workflow"
)

const (
	defaultBackoff     = 5 * time.Minute
	defaultMaxAttempts = 3
)

// Handler executes one kind of scheduled action.
type Handler interface {
	Kind() models.ActionKind
	Execute(ctx context.Context, action *models.ScheduledAction) error
}

// Stats summarizes one drain pass.
type Stats struct {
	Claimed     int
	Completed   int
	Rescheduled int
	Failed      int
}

// Drainer claims due actions and dispatches them to their kind's handler.
// Exclusivity rests entirely on the store's conditional claim: any number
// of drains may run concurrently against the same queue.
type Drainer struct {
	actions  persistence.ScheduledActionRepository
	handlers map[models.ActionKind]Handler
	eventBus eventbus.EventBus
	clock    protocol.Clock
	logger   *slog.Logger
	tracer   trace.Tracer

	backoff time.Duration
}

func NewDrainer(
	actions persistence.ScheduledActionRepository,
	eventBus eventbus.EventBus,
	clock protocol.Clock,
	logger *slog.Logger,
	backoff time.Duration,
) *Drainer {
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	return &Drainer{
		actions:  actions,
		handlers: make(map[models.ActionKind]Handler),
		eventBus: eventBus,
		clock:    clock,
		logger:   logger.With("module", "queue"),
		tracer:   otel.Tracer("reflow-queue"),
		backoff:  backoff,
	}
}

// Register wires a handler for its action kind. Registering twice for the
// same kind replaces the earlier handler.
func (d *Drainer) Register(h Handler) {
	d.handlers[h.Kind()] = h
}

// Drain processes every action due at now. An action whose claim is lost to
// a concurrent drain is skipped silently; a handler error sends the action
// back to pending with backoff until its attempts run out.
func (d *Drainer) Drain(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats

	due, err := d.actions.Due(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("failed to list due actions: %w", err)
	}

	for _, action := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		claimed, err := d.actions.Claim(ctx, action.ID)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to claim action", "action_id", action.ID, "error", err)

			continue
		}

		if !claimed {
			continue
		}

		// Claim incremented the stored attempt counter.
		action.Attempts++
		stats.Claimed++

		actionCtx, span := otelhelper.StartSpan(ctx, d.tracer, "queue.dispatch",
			attribute.String(otelhelper.OrgIDKey, action.OrgID),
			attribute.String(otelhelper.ActionIDKey, action.ID),
			attribute.String(otelhelper.ActionKindKey, string(action.Kind)),
		)

		if err := d.dispatch(actionCtx, action, &stats); err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}

	return stats, nil
}

func (d *Drainer) dispatch(ctx context.Context, action *models.ScheduledAction, stats *Stats) error {
	handler, ok := d.handlers[action.Kind]
	if !ok {
		err := fmt.Errorf("no handler for action kind %q", action.Kind)
		d.fail(ctx, action, stats, err)

		return err
	}

	err := handler.Execute(ctx, action)
	if err == nil {
		if err := d.actions.MarkCompleted(ctx, action.ID); err != nil {
			d.logger.ErrorContext(ctx, "Failed to complete action", "action_id", action.ID, "error", err)

			return err
		}

		stats.Completed++
		d.publishCompleted(ctx, action)

		return nil
	}

	maxAttempts := action.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	// Misconfigured workflows need an admin, not another attempt.
	if workflow.IsMisconfiguration(err) || action.Attempts >= maxAttempts {
		d.fail(ctx, action, stats, err)

		return err
	}

	retryAt := d.clock.Now().Add(d.backoff)
	if rerr := d.actions.Reschedule(ctx, action.ID, retryAt, err.Error()); rerr != nil {
		d.logger.ErrorContext(ctx, "Failed to reschedule action", "action_id", action.ID, "error", rerr)

		return rerr
	}

	stats.Rescheduled++
	d.logger.WarnContext(ctx, "Action attempt failed, rescheduled",
		"action_id", action.ID, "kind", action.Kind, "attempt", action.Attempts, "retry_at", retryAt, "error", err)
	d.publishFailed(ctx, action, err, false)

	return err
}

func (d *Drainer) fail(ctx context.Context, action *models.ScheduledAction, stats *Stats, err error) {
	if ferr := d.actions.MarkFailed(ctx, action.ID, err.Error()); ferr != nil {
		d.logger.ErrorContext(ctx, "Failed to mark action failed", "action_id", action.ID, "error", ferr)

		return
	}

	stats.Failed++
	d.logger.ErrorContext(ctx, "Action terminally failed",
		"action_id", action.ID, "kind", action.Kind, "attempts", action.Attempts, "error", err)
	d.publishFailed(ctx, action, err, true)
}

func (d *Drainer) publishCompleted(ctx context.Context, action *models.ScheduledAction) {
	event := events.ActionCompleted{
		BaseEvent: events.BaseEvent{
			ID:        d.eventBus.GenerateID(),
			Type:      events.ActionCompletedEvent,
			Timestamp: d.clock.Now(),
			OrgID:     action.OrgID,
		},
		ActionID: action.ID,
		Kind:     string(action.Kind),
		Attempts: action.Attempts,
	}

	if err := d.eventBus.Publish(ctx, action.ID, event); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish action event", "error", err)
	}
}

func (d *Drainer) publishFailed(ctx context.Context, action *models.ScheduledAction, actionErr error, terminal bool) {
	event := events.ActionFailed{
		BaseEvent: events.BaseEvent{
			ID:        d.eventBus.GenerateID(),
			Type:      events.ActionFailedEvent,
			Timestamp: d.clock.Now(),
			OrgID:     action.OrgID,
		},
		ActionID: action.ID,
		Kind:     string(action.Kind),
		Attempts: action.Attempts,
		Error:    actionErr.Error(),
		Terminal: terminal,
	}

	if err := d.eventBus.Publish(ctx, action.ID, event); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish action event", "error", err)
	}
}
