package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/glowdesk/reflow/pkg/cmd"
	"github.com/glowdesk/reflow/pkg/log"
	"github.com/glowdesk/reflow/pkg/notifier/webhook"
	"github.com/glowdesk/reflow/pkg/otelhelper"
	"github.com/glowdesk/reflow/pkg/protocol"
	"github.com/glowdesk/reflow/pkg/queue"
	"github.com/glowdesk/reflow/pkg/scheduler"
	"github.com/glowdesk/reflow/pkg/trigger"
	"github.com/glowdesk/reflow/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "reflow-scheduler",
		Usage:                 "Start the workflow scheduler service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "scheduler-id",
				Aliases: []string{"id"},
				Usage:   "Custom scheduler ID (auto-generated if not provided)",
				Sources: cli.EnvVars("SCHEDULER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "notifier-url",
				Usage:    "Base URL of the SMS/email gateway",
				Required: true,
				Sources:  cli.EnvVars("NOTIFIER_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the tick lease (empty disables leasing)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "tick-interval",
				Usage:   "Scheduler tick interval",
				Value:   time.Minute,
				Sources: cli.EnvVars("TICK_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "assumed-duration",
				Usage:   "How long after its start an appointment is presumed finished",
				Value:   time.Hour,
				Sources: cli.EnvVars("ASSUMED_DURATION"),
			},
			&cli.DurationFlag{
				Name:    "detection-lookback",
				Usage:   "Creation scan window for an org that has never been scanned",
				Value:   24 * time.Hour,
				Sources: cli.EnvVars("DETECTION_LOOKBACK"),
			},
			&cli.DurationFlag{
				Name:    "retry-backoff",
				Usage:   "Delay before a failed action is retried",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("RETRY_BACKOFF"),
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Attempts before an action fails terminally",
				Value:   3,
				Sources: cli.EnvVars("MAX_ATTEMPTS"),
			},
			&cli.IntFlag{
				Name:    "org-concurrency",
				Usage:   "Orgs detected concurrently per tick",
				Value:   4,
				Sources: cli.EnvVars("ORG_CONCURRENCY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: runScheduler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Scheduler exited", "error", err)
		os.Exit(1)
	}
}

func runScheduler(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	schedulerID := command.String("scheduler-id")
	if schedulerID == "" {
		schedulerID = fmt.Sprintf("scheduler-%s", uuid.NewString()[:8])
	}

	logger := log.WithModule("reflow-scheduler").With("scheduler_id", schedulerID)
	logger.InfoContext(ctx, "Initializing scheduler")

	tracer, err := otelhelper.NewTracer(ctx, "reflow-scheduler")
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "reflow-scheduler", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	clock := protocol.SystemClock{}
	gatewayURL := command.String("notifier-url")
	notifier := webhook.NewNotifier(gatewayURL, logger)
	publisher := webhook.NewPublisher(gatewayURL, logger)

	executor := workflow.NewExecutor(persistence, notifier, eventBus, clock, logger)
	enrollments := workflow.NewEnrollments(persistence, executor, eventBus, clock, logger, int(command.Int("max-attempts")))
	detector := trigger.NewDetector(persistence, enrollments, clock, logger,
		command.Duration("assumed-duration"), command.Duration("detection-lookback"))

	drainer := queue.NewDrainer(persistence.ScheduledActions(), eventBus, clock, logger, command.Duration("retry-backoff"))
	drainer.Register(queue.NewContinueWorkflowHandler(enrollments))
	drainer.Register(queue.NewPublishPostHandler(persistence.Organizations(), publisher))

	var lease scheduler.TickLease = scheduler.NoopTickLease{}

	if redisURL := command.String("redis-url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}

		lease = scheduler.NewRedisTickLease(redis.NewClient(opts), "reflow:scheduler:tick", command.Duration("tick-interval"))
	}

	sched := scheduler.New(persistence, detector, drainer, lease, clock, logger, scheduler.Config{
		TickInterval:   command.Duration("tick-interval"),
		OrgConcurrency: int(command.Int("org-concurrency")),
		Tracer:         tracer,
	})

	return sched.Start(ctx)
}
