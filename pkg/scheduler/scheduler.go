// Package scheduler runs the periodic tick driving trigger detection,
// publish-schedule rollover, and queue draining.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/otelhelper"
	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/protocol"
	"github.com/glowdesk/reflow/pkg/queue"
	"github.com/glowdesk/reflow/pkg/trigger"
)

const (
	defaultTickInterval   = time.Minute
	defaultOrgConcurrency = 4
)

// Config tunes the tick loop. Zero values fall back to defaults.
type Config struct {
	TickInterval   time.Duration
	OrgConcurrency int

	// Tracer records detection and drain spans. Nil uses the globally
	// registered provider, which is a no-op when tracing is disabled.
	Tracer trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}

	if c.OrgConcurrency <= 0 {
		c.OrgConcurrency = defaultOrgConcurrency
	}

	if c.Tracer == nil {
		c.Tracer = otel.Tracer("reflow-scheduler")
	}

	return c
}

// Scheduler owns the tick loop. Every tick runs trigger detection across
// orgs, rolls due publish schedules into queue actions, and drains the
// scheduled-action queue. Each phase is independently safe to re-run, so a
// tick that dies mid-way costs nothing but latency.
type Scheduler struct {
	persistence persistence.Persistence
	detector    *trigger.Detector
	drainer     *queue.Drainer
	lease       TickLease
	clock       protocol.Clock
	logger      *slog.Logger
	config      Config
}

func New(
	p persistence.Persistence,
	detector *trigger.Detector,
	drainer *queue.Drainer,
	lease TickLease,
	clock protocol.Clock,
	logger *slog.Logger,
	config Config,
) *Scheduler {
	if lease == nil {
		lease = NoopTickLease{}
	}

	return &Scheduler{
		persistence: p,
		detector:    detector,
		drainer:     drainer,
		lease:       lease,
		clock:       clock,
		logger:      logger.With("module", "scheduler"),
		config:      config.withDefaults(),
	}
}

// Start runs ticks until ctx is cancelled. The first tick fires
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler",
		"tick_interval", s.config.TickInterval, "org_concurrency", s.config.OrgConcurrency)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopped")

			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick acquires the lease and executes one tick. Phase errors are logged,
// not returned; the loop must survive a bad tick.
func (s *Scheduler) runTick(ctx context.Context) {
	granted, err := s.lease.TryAcquire(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Tick lease check failed", "error", err)

		return
	}

	if !granted {
		s.logger.DebugContext(ctx, "Tick lease held elsewhere, skipping")

		return
	}

	if err := s.Tick(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Tick failed", "error", err)
	}
}

// Tick executes one full pass: detection, schedule rollover, queue drain.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()

	s.detectAll(ctx)

	if err := s.rollPublishSchedules(ctx, now); err != nil {
		s.logger.ErrorContext(ctx, "Publish schedule rollover failed", "error", err)
	}

	drainCtx, span := otelhelper.StartSpan(ctx, s.config.Tracer, "scheduler.drain")
	defer span.End()

	stats, err := s.drainer.Drain(drainCtx, now)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("queue drain failed: %w", err)
	}

	if stats.Claimed > 0 {
		s.logger.InfoContext(ctx, "Drained scheduled actions",
			"claimed", stats.Claimed, "completed", stats.Completed,
			"rescheduled", stats.Rescheduled, "failed", stats.Failed)
	}

	return nil
}

// detectAll runs trigger detection for every org with bounded concurrency.
// One org's failure never blocks another's detection.
func (s *Scheduler) detectAll(ctx context.Context) {
	orgs, err := s.persistence.Organizations().List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list organizations", "error", err)

		return
	}

	sem := make(chan struct{}, s.config.OrgConcurrency)

	var wg sync.WaitGroup

	for _, org := range orgs {
		wg.Add(1)
		sem <- struct{}{}

		go func(org *models.Organization) {
			defer wg.Done()
			defer func() { <-sem }()

			detectCtx, span := otelhelper.StartSpan(ctx, s.config.Tracer, "scheduler.detect",
				attribute.String(otelhelper.OrgIDKey, org.ID),
			)
			defer span.End()

			stats, err := s.detector.Detect(detectCtx, org)
			if err != nil {
				s.logger.ErrorContext(detectCtx, "Detection failed", "org_id", org.ID, "error", err)
				otelhelper.SetError(span, err)

				return
			}

			if stats.Processed > 0 {
				s.logger.InfoContext(detectCtx, "Detection pass finished",
					"org_id", org.ID, "processed", stats.Processed, "triggered", stats.Triggered)
			}
		}(org)
	}

	wg.Wait()
}

// rollPublishSchedules mints a publish_post action for every due schedule
// and advances its next fire time. Minting before advancing means a crash
// in between produces a duplicate post on the next tick; the reverse order
// would silently drop one instead.
func (s *Scheduler) rollPublishSchedules(ctx context.Context, now time.Time) error {
	due, err := s.persistence.PublishSchedules().Due(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due publish schedules: %w", err)
	}

	for _, schedule := range due {
		action := &models.ScheduledAction{
			ID:    uuid.NewString(),
			OrgID: schedule.OrgID,
			Kind:  models.ActionPublishPost,
			Args: map[string]any{
				"platform": schedule.Platform,
				"body":     schedule.Template,
			},
			ScheduledFor: now,
			Status:       models.ActionPending,
			MaxAttempts:  3,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := s.persistence.ScheduledActions().Create(ctx, action); err != nil {
			s.logger.ErrorContext(ctx, "Failed to mint publish action",
				"schedule_id", schedule.ID, "error", err)

			continue
		}

		if err := schedule.UpdateNextDueAt(now); err != nil {
			s.logger.ErrorContext(ctx, "Failed to roll schedule forward",
				"schedule_id", schedule.ID, "error", err)

			continue
		}

		if err := s.persistence.PublishSchedules().Save(ctx, schedule); err != nil {
			s.logger.ErrorContext(ctx, "Failed to save rolled schedule",
				"schedule_id", schedule.ID, "error", err)
		}
	}

	return nil
}
