package web

import (
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleServiceError maps service and persistence errors to problem documents.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(fiber.StatusConflict).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsDefinitionNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "template_not_found", "template not found")

	default:
		problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
