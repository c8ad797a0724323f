package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/protocol"
)

// ConditionEvaluator resolves conditional step predicates against a client,
// the active appointment, and the client's appointment history.
type ConditionEvaluator struct {
	appointments persistence.AppointmentRepository
	clock        protocol.Clock
}

func NewConditionEvaluator(appointments persistence.AppointmentRepository, clock protocol.Clock) *ConditionEvaluator {
	return &ConditionEvaluator{
		appointments: appointments,
		clock:        clock,
	}
}

// Evaluate returns the branch decision. appointment may be nil for
// enrollments not triggered by an appointment; type comparisons then run
// against the empty string.
func (ev *ConditionEvaluator) Evaluate(ctx context.Context, cond models.Condition, client *models.Client, appointment *models.Appointment) (bool, error) {
	switch cond.Field {
	case models.ConditionTags:
		return ev.evaluateTags(cond, client)
	case models.ConditionAppointmentCount:
		return ev.evaluateAppointmentCount(ctx, cond, client)
	case models.ConditionAppointmentType:
		appointmentType := ""
		if appointment != nil {
			appointmentType = appointment.Type
		}

		return evaluateString(cond, appointmentType)
	case models.ConditionClientStatus:
		return evaluateString(cond, string(client.Status))
	case models.ConditionLastAppointment:
		return ev.evaluateLastAppointment(ctx, cond, client)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownConditionField, cond.Field)
	}
}

func (ev *ConditionEvaluator) evaluateTags(cond models.Condition, client *models.Client) (bool, error) {
	switch cond.Operator {
	case models.OpHasTag, models.OpContains:
		return client.HasTag(cond.Value), nil
	case models.OpNotHasTag:
		return !client.HasTag(cond.Value), nil
	default:
		return false, fmt.Errorf("%w: %q on tags", ErrUnknownConditionOperator, cond.Operator)
	}
}

func (ev *ConditionEvaluator) evaluateAppointmentCount(ctx context.Context, cond models.Condition, client *models.Client) (bool, error) {
	count, err := ev.appointments.CountByClient(ctx, client.OrgID, client.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count appointments for client %s: %w", client.ID, err)
	}

	want, err := strconv.Atoi(strings.TrimSpace(cond.Value))
	if err != nil {
		return false, fmt.Errorf("appointment_count condition value %q is not a number: %w", cond.Value, err)
	}

	return compareInts(cond.Operator, count, want)
}

// evaluateLastAppointment compares the days elapsed since the client's most
// recent completed appointment. A client with no completed appointment is
// treated as infinitely long ago: greater_than matches, less_than does not.
func (ev *ConditionEvaluator) evaluateLastAppointment(ctx context.Context, cond models.Condition, client *models.Client) (bool, error) {
	want, err := strconv.Atoi(strings.TrimSpace(cond.Value))
	if err != nil {
		return false, fmt.Errorf("last_appointment_date condition value %q is not a number: %w", cond.Value, err)
	}

	last, err := ev.appointments.LastCompletedByClient(ctx, client.OrgID, client.ID)
	if errors.Is(err, persistence.ErrAppointmentNotFound) {
		switch cond.Operator {
		case models.OpGreaterThan:
			return true, nil
		case models.OpLessThan:
			return false, nil
		default:
			return false, fmt.Errorf("%w: %q on last_appointment_date", ErrUnknownConditionOperator, cond.Operator)
		}
	}

	if err != nil {
		return false, fmt.Errorf("failed to load last appointment for client %s: %w", client.ID, err)
	}

	daysSince := int(ev.clock.Now().Sub(last.StartsAt).Hours() / 24)

	switch cond.Operator {
	case models.OpGreaterThan:
		return daysSince > want, nil
	case models.OpLessThan:
		return daysSince < want, nil
	default:
		return false, fmt.Errorf("%w: %q on last_appointment_date", ErrUnknownConditionOperator, cond.Operator)
	}
}

func compareInts(op models.ConditionOperator, got, want int) (bool, error) {
	switch op {
	case models.OpEquals:
		return got == want, nil
	case models.OpNotEquals:
		return got != want, nil
	case models.OpGreaterThan:
		return got > want, nil
	case models.OpLessThan:
		return got < want, nil
	default:
		return false, fmt.Errorf("%w: %q on numeric field", ErrUnknownConditionOperator, op)
	}
}

// evaluateString compares case-insensitively, matching how the builder UI
// presents these conditions.
func evaluateString(cond models.Condition, got string) (bool, error) {
	gotLower := strings.ToLower(strings.TrimSpace(got))
	wantLower := strings.ToLower(strings.TrimSpace(cond.Value))

	switch cond.Operator {
	case models.OpEquals:
		return gotLower == wantLower, nil
	case models.OpNotEquals:
		return gotLower != wantLower, nil
	case models.OpContains, models.OpStringContains:
		return strings.Contains(gotLower, wantLower), nil
	default:
		return false, fmt.Errorf("%w: %q on string field", ErrUnknownConditionOperator, cond.Operator)
	}
}
