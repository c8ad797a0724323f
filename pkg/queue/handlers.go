package queue

import (
	"context"
	"fmt"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/protocol"
	"github.com/glowdesk/reflow/pkg/template"
	"github.com/glowdesk/reflow/pkg/workflow"
)

// ContinueWorkflowHandler resumes a deferred enrollment when its
// continuation fires.
type ContinueWorkflowHandler struct {
	enrollments *workflow.Enrollments
}

func NewContinueWorkflowHandler(enrollments *workflow.Enrollments) *ContinueWorkflowHandler {
	return &ContinueWorkflowHandler{enrollments: enrollments}
}

func (h *ContinueWorkflowHandler) Kind() models.ActionKind {
	return models.ActionContinueWorkflow
}

func (h *ContinueWorkflowHandler) Execute(ctx context.Context, action *models.ScheduledAction) error {
	enrollmentID := action.StringArg("enrollment_id")
	if enrollmentID == "" {
		return fmt.Errorf("continue_workflow action %s has no enrollment_id", action.ID)
	}

	return h.enrollments.Continue(ctx, enrollmentID, action.StringArg("resume_step_id"))
}

// PublishPostHandler posts scheduled social content through the org's
// publisher. The body template renders against org context only; there is
// no client in scope.
type PublishPostHandler struct {
	organizations persistence.OrganizationRepository
	publisher     protocol.SocialPublisher
}

func NewPublishPostHandler(organizations persistence.OrganizationRepository, publisher protocol.SocialPublisher) *PublishPostHandler {
	return &PublishPostHandler{organizations: organizations, publisher: publisher}
}

func (h *PublishPostHandler) Kind() models.ActionKind {
	return models.ActionPublishPost
}

func (h *PublishPostHandler) Execute(ctx context.Context, action *models.ScheduledAction) error {
	platform := action.StringArg("platform")
	if platform == "" {
		return fmt.Errorf("publish_post action %s has no platform", action.ID)
	}

	org, err := h.organizations.ByID(ctx, action.OrgID)
	if err != nil {
		return fmt.Errorf("failed to load organization %s: %w", action.OrgID, err)
	}

	body := template.Render(action.StringArg("body"), template.Context{Org: org})

	if err := h.publisher.Publish(ctx, action.OrgID, platform, body); err != nil {
		return fmt.Errorf("failed to publish post: %w", err)
	}

	return nil
}
