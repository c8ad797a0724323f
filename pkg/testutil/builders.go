// Package testutil provides test data builders and fakes shared by the
// engine's test suites.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/glowdesk/reflow/pkg/models"
)

// CreateTestOrg builds an organization with sensible defaults that can be
// overridden.
func CreateTestOrg(overrides ...func(*models.Organization)) *models.Organization {
	org := &models.Organization{
		ID:               uuid.NewString(),
		Name:             "Glow Aesthetics",
		BookingLink:      "https://book.example.com/glow",
		GoogleReviewLink: "https://g.page/glow/review",
		CustomTokens:     map[string]string{},
		CreatedAt:        time.Now().UTC(),
	}

	for _, override := range overrides {
		override(org)
	}

	return org
}

func CreateTestClient(orgID string, overrides ...func(*models.Client)) *models.Client {
	client := &models.Client{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		FirstName: "Sarah",
		LastName:  "Miller",
		Email:     "sarah@example.com",
		Phones:    []string{"+15550100"},
		Status:    models.ClientStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(client)
	}

	return client
}

func CreateTestAppointment(orgID, clientID string, overrides ...func(*models.Appointment)) *models.Appointment {
	appt := &models.Appointment{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		ClientID:  clientID,
		Type:      "Botox Touch-up",
		StartsAt:  time.Now().UTC().Add(24 * time.Hour),
		Status:    models.AppointmentStatusScheduled,
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(appt)
	}

	return appt
}

// CreateTestWorkflow builds an enabled workflow. Pass steps in definition
// order; the first one is the start step.
func CreateTestWorkflow(orgID, trigger string, steps []*models.Step, overrides ...func(*models.Workflow)) *models.Workflow {
	wf := &models.Workflow{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      "Test Workflow",
		Trigger:   trigger,
		Steps:     steps,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(wf)
	}

	return wf
}

func SMSStep(id, tmpl, next string) *models.Step {
	return &models.Step{
		ID:      id,
		Kind:    models.StepSendSMS,
		SendSMS: &models.SendSMSConfig{Template: tmpl},
		Next:    next,
	}
}

func EmailStep(id, subject, tmpl, next string) *models.Step {
	return &models.Step{
		ID:        id,
		Kind:      models.StepSendEmail,
		SendEmail: &models.SendEmailConfig{Subject: subject, Template: tmpl},
		Next:      next,
	}
}

func AddTagStep(id, tag, next string) *models.Step {
	return &models.Step{
		ID:     id,
		Kind:   models.StepAddTag,
		AddTag: &models.AddTagConfig{Tag: tag},
		Next:   next,
	}
}

func DelayStep(id string, value int, unit, next string) *models.Step {
	return &models.Step{
		ID:    id,
		Kind:  models.StepDelay,
		Delay: &models.DelayConfig{Value: value, Unit: unit},
		Next:  next,
	}
}

func ConditionalStep(id string, cond models.Condition, onTrue, onFalse string) *models.Step {
	return &models.Step{
		ID:   id,
		Kind: models.StepConditional,
		Conditional: &models.ConditionalConfig{
			Condition: cond,
			OnTrue:    onTrue,
			OnFalse:   onFalse,
		},
	}
}
