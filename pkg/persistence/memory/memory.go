// Package memory provides an in-memory persistence implementation used by
// tests and local development. Conditional status transitions take the
// store-wide mutex, so the claim semantics match the SQL implementation.
package memory

import (
	"context"
	"sync"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	mu sync.Mutex

	organizations    map[string]*models.Organization
	clients          map[string]*models.Client
	appointments     map[string]*models.Appointment
	workflows        map[string]*models.Workflow
	enrollments      map[string]*models.Enrollment
	actions          map[string]*models.ScheduledAction
	logs             []*models.ExecutionLog
	messages         map[string]*models.Message
	publishSchedules map[string]*models.PublishSchedule
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		organizations:    make(map[string]*models.Organization),
		clients:          make(map[string]*models.Client),
		appointments:     make(map[string]*models.Appointment),
		workflows:        make(map[string]*models.Workflow),
		enrollments:      make(map[string]*models.Enrollment),
		actions:          make(map[string]*models.ScheduledAction),
		messages:         make(map[string]*models.Message),
		publishSchedules: make(map[string]*models.PublishSchedule),
	}
}

func (p *Persistence) Organizations() persistence.OrganizationRepository {
	return &organizationRepository{p}
}

func (p *Persistence) Clients() persistence.ClientRepository {
	return &clientRepository{p}
}

func (p *Persistence) Appointments() persistence.AppointmentRepository {
	return &appointmentRepository{p}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{p}
}

func (p *Persistence) Enrollments() persistence.EnrollmentRepository {
	return &enrollmentRepository{p}
}

func (p *Persistence) ScheduledActions() persistence.ScheduledActionRepository {
	return &scheduledActionRepository{p}
}

func (p *Persistence) ExecutionLogs() persistence.ExecutionLogRepository {
	return &executionLogRepository{p}
}

func (p *Persistence) Messages() persistence.MessageRepository {
	return &messageRepository{p}
}

func (p *Persistence) PublishSchedules() persistence.PublishScheduleRepository {
	return &publishScheduleRepository{p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// cloneMap copies a metadata bag so callers never alias stored state.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}

	out := make([]string, len(s))
	copy(out, s)

	return out
}
