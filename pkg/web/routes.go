package web

import "github.com/gofiber/fiber/v3"

// Mount registers every API route on router.
func (h *APIHandlers) Mount(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/run", h.RunWorkflow)

	e := router.Group("/executions")
	e.Get("/", h.GetExecutions)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)

	t := router.Group("/templates")
	t.Get("/", h.GetTemplates)
	t.Get("/:id", h.GetTemplate)
	t.Post("/:id/instantiate", h.InstantiateTemplate)

	router.Post("/events", h.PublishEvent)
	router.Post("/webhooks/:webhookId", h.ReceiveWebhook)

	router.Get("/health", h.HealthCheck)
}
