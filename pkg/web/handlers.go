// Package web provides the admin REST API over workflows, enrollments,
// and the scheduled-action queue.
package web

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/protocol"
	"github.com/glowdesk/reflow/pkg/workflow"
)

const defaultLogLimit = 100

type APIHandlers struct {
	persistence persistence.Persistence
	enrollments *workflow.Enrollments
	validator   *validator.Validate
	clock       protocol.Clock
}

func NewAPIHandlers(
	p persistence.Persistence,
	enrollments *workflow.Enrollments,
	validate *validator.Validate,
	clock protocol.Clock,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		enrollments: enrollments,
		validator:   validate,
		clock:       clock,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows().ListByOrg(c.Context(), c.Params("orgId"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, err := h.persistence.Workflows().ByID(c.Context(), c.Params("orgId"), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := validateStepConfigs(req.Steps); err != nil {
		return badRequest(c, err.Error())
	}

	now := h.clock.Now()
	wf := &models.Workflow{
		ID:                      uuid.NewString(),
		OrgID:                   c.Params("orgId"),
		Name:                    req.Name,
		Trigger:                 req.Trigger,
		Steps:                   req.Steps,
		Enabled:                 req.Enabled,
		PreventDuplicates:       req.PreventDuplicates,
		DuplicatePreventionDays: req.DuplicatePreventionDays,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := wf.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.Workflows().Save(c.Context(), wf); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(wf)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	wf, err := h.persistence.Workflows().ByID(c.Context(), c.Params("orgId"), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Name != nil {
		wf.Name = *req.Name
	}

	if req.Trigger != nil {
		wf.Trigger = *req.Trigger
	}

	if req.Steps != nil {
		if err := validateStepConfigs(req.Steps); err != nil {
			return badRequest(c, err.Error())
		}

		wf.Steps = req.Steps
	}

	if req.PreventDuplicates != nil {
		wf.PreventDuplicates = *req.PreventDuplicates
	}

	if req.DuplicatePreventionDays != nil {
		wf.DuplicatePreventionDays = *req.DuplicatePreventionDays
	}

	if err := wf.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	wf.UpdatedAt = h.clock.Now()

	if err := h.persistence.Workflows().Save(c.Context(), wf); err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.persistence.Workflows().Delete(c.Context(), c.Params("orgId"), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnableWorkflow(c fiber.Ctx) error {
	return h.setWorkflowEnabled(c, true)
}

func (h *APIHandlers) DisableWorkflow(c fiber.Ctx) error {
	return h.setWorkflowEnabled(c, false)
}

func (h *APIHandlers) setWorkflowEnabled(c fiber.Ctx, enabled bool) error {
	wf, err := h.persistence.Workflows().ByID(c.Context(), c.Params("orgId"), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	wf.Enabled = enabled
	wf.UpdatedAt = h.clock.Now()

	if err := h.persistence.Workflows().Save(c.Context(), wf); err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) GetEnrollments(c fiber.Ctx) error {
	enrollments, err := h.persistence.Enrollments().ListByOrg(c.Context(), c.Params("orgId"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(EnrollmentListResponse{Enrollments: enrollments, AsOf: h.clock.Now()})
}

func (h *APIHandlers) CancelEnrollment(c fiber.Ctx) error {
	if err := h.enrollments.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PauseEnrollment(c fiber.Ctx) error {
	if err := h.enrollments.Pause(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeEnrollment(c fiber.Ctx) error {
	if err := h.enrollments.Resume(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetEnrollmentLogs(c fiber.Ctx) error {
	logs, err := h.persistence.ExecutionLogs().ListByEnrollment(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	limit := defaultLogLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	logs, err := h.persistence.ExecutionLogs().ListByOrg(c.Context(), c.Params("orgId"), limit)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

func (h *APIHandlers) GetScheduledActions(c fiber.Ctx) error {
	actions, err := h.persistence.ScheduledActions().ListByOrg(c.Context(), c.Params("orgId"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"actions": actions})
}

func (h *APIHandlers) CancelScheduledAction(c fiber.Ctx) error {
	if err := h.persistence.ScheduledActions().Cancel(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetPublishSchedules(c fiber.Ctx) error {
	schedules, err := h.persistence.PublishSchedules().ListByOrg(c.Context(), c.Params("orgId"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"schedules": schedules})
}

func (h *APIHandlers) CreatePublishSchedule(c fiber.Ctx) error {
	var req CreatePublishScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := models.NewPublishSchedule(uuid.NewString(), c.Params("orgId"), req.CronExpression, req.Platform, req.Template)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.PublishSchedules().Save(c.Context(), schedule); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
