// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects, runs migrations, and returns the store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:     database,
		logger: logger.With("component", "postgres_persistence"),
	}, nil
}

func (p *Persistence) Organizations() persistence.OrganizationRepository {
	return &organizationRepository{db: p.db}
}

func (p *Persistence) Clients() persistence.ClientRepository {
	return &clientRepository{db: p.db}
}

func (p *Persistence) Appointments() persistence.AppointmentRepository {
	return &appointmentRepository{db: p.db}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{db: p.db}
}

func (p *Persistence) Enrollments() persistence.EnrollmentRepository {
	return &enrollmentRepository{db: p.db}
}

func (p *Persistence) ScheduledActions() persistence.ScheduledActionRepository {
	return &scheduledActionRepository{db: p.db}
}

func (p *Persistence) ExecutionLogs() persistence.ExecutionLogRepository {
	return &executionLogRepository{db: p.db}
}

func (p *Persistence) Messages() persistence.MessageRepository {
	return &messageRepository{db: p.db}
}

func (p *Persistence) PublishSchedules() persistence.PublishScheduleRepository {
	return &publishScheduleRepository{db: p.db}
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
