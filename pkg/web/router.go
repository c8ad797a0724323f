package web

import "github.com/gofiber/fiber/v3"

// Register mounts the admin API routes. Everything is org-scoped except
// enrollment and action mutations, which address records by id.
func Register(app *fiber.App, h *APIHandlers) {
	orgs := app.Group("/orgs/:orgId")

	w := orgs.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/enable", h.EnableWorkflow)
	w.Post("/:id/disable", h.DisableWorkflow)

	orgs.Get("/enrollments", h.GetEnrollments)
	orgs.Get("/logs", h.GetExecutionLogs)
	orgs.Get("/actions", h.GetScheduledActions)

	schedules := orgs.Group("/publish-schedules")
	schedules.Get("/", h.GetPublishSchedules)
	schedules.Post("/", h.CreatePublishSchedule)

	e := app.Group("/enrollments/:id")
	e.Post("/cancel", h.CancelEnrollment)
	e.Post("/pause", h.PauseEnrollment)
	e.Post("/resume", h.ResumeEnrollment)
	e.Get("/logs", h.GetEnrollmentLogs)

	app.Post("/actions/:id/cancel", h.CancelScheduledAction)

	app.Get("/health", h.HealthCheck)
}
