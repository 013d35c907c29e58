// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/dukex/autoflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	definitions *services.Definitions
	executions  *services.Executions
	templates   *services.Templates
	dispatcher  *workflow.Dispatcher
	executor    *workflow.Executor
	registry    *actions.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	definitions *services.Definitions,
	executions *services.Executions,
	templates *services.Templates,
	dispatcher *workflow.Dispatcher,
	executor *workflow.Executor,
	registry *actions.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		executions:  executions,
		templates:   templates,
		dispatcher:  dispatcher,
		executor:    executor,
		registry:    registry,
		validator:   validator,
	}
}

func owner(c fiber.Ctx) string {
	return strings.TrimSpace(c.Get(OwnerHeader))
}

func (h *APIHandlers) bind(c fiber.Ctx, req any) error {
	if len(c.Body()) == 0 {
		return h.validator.Struct(req)
	}

	if err := c.Bind().JSON(req); err != nil {
		return err
	}

	return h.validator.Struct(req)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListDefinitionsRequest{
		OrganizationID: c.Query("organization_id"),
		SearchText:     c.Query("search"),
	}

	if err := parsePage(c, &req.Limit, &req.Offset); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.DefinitionStatus(statusStr)
		req.Status = &status
	}

	result, err := h.definitions.List(c.Context(), owner(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Definitions,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.definitions.Create(c.Context(), owner(c), services.DefinitionInput{
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
		TriggerConfig:  req.TriggerConfig,
		Actions:        req.Actions,
		Conditions:     req.Conditions,
		Status:         req.Status,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	definition, err := h.definitions.Get(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.definitions.Update(c.Context(), c.Params("id"), owner(c), services.DefinitionPatch{
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
		TriggerConfig:  req.TriggerConfig,
		Actions:        req.Actions,
		Conditions:     req.Conditions,
		Status:         req.Status,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.definitions.Delete(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RunWorkflow starts a manual execution and answers once it finished or
// suspended.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	var req RunWorkflowRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	ownerID := owner(c)
	if ownerID == "" {
		return handleServiceError(c, services.ErrEmptyOwnerID)
	}

	results, err := h.dispatcher.Dispatch(c.Context(), models.ManualStimulus{
		WorkflowID:     c.Params("id"),
		Payload:        req.Payload,
		RequestedBy:    ownerID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if len(results) == 1 && results[0].Err != nil && results[0].ExecutionID == "" {
		return handleServiceError(c, results[0].Err)
	}

	return c.Status(fiber.StatusAccepted).JSON(DispatchResponse{Results: results})
}

// PublishEvent dispatches a domain event to the caller's matching workflows.
func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	var req PublishEventRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	ownerID := owner(c)
	if ownerID == "" {
		return handleServiceError(c, services.ErrEmptyOwnerID)
	}

	if !models.IsKnownEvent(req.EventType) {
		return handleServiceError(c, services.NewValidationError(
			"PublishEvent",
			"UNKNOWN_EVENT_TYPE",
			"unknown event type '"+req.EventType+"'",
			services.ErrUnknownEventType,
		))
	}

	results, err := h.dispatcher.Dispatch(c.Context(), models.EventStimulus{
		EventType:  req.EventType,
		Payload:    req.Payload,
		DeliveryID: firstNonEmpty(req.DeliveryID, c.Get(DeliveryHeader)),
		OwnerID:    ownerID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(DispatchResponse{Results: results})
}

// ReceiveWebhook dispatches the raw request body to the workflows listening
// on the webhook id. The endpoint is unauthenticated.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	results, err := h.dispatcher.Dispatch(c.Context(), models.WebhookStimulus{
		WebhookID:  c.Params("webhookId"),
		RawPayload: append([]byte(nil), c.Body()...),
		DeliveryID: c.Get(DeliveryHeader),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if len(results) == 0 {
		return notFound(c, "webhook_not_found", "no active workflow listens on this webhook")
	}

	if rejected := allRejected(results); rejected != nil {
		return handleServiceError(c, rejected)
	}

	return c.Status(fiber.StatusAccepted).JSON(DispatchResponse{Results: results})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	req := services.ListExecutionsRequest{WorkflowID: c.Query("workflow_id")}

	if err := parsePage(c, &req.Limit, &req.Offset); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		req.Status = &status
	}

	result, err := h.executions.List(c.Context(), owner(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.Get(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	execution, err := h.executor.Cancel(c.Context(), c.Params("id"), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	req := services.ListTemplatesRequest{Category: c.Query("category")}

	if err := parsePage(c, &req.Limit, &req.Offset); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	var err error

	if req.IsPublic, err = parseOptionalBool(c.Query("is_public")); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if req.IsOfficial, err = parseOptionalBool(c.Query("is_official")); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.templates.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.templates.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) InstantiateTemplate(c fiber.Ctx) error {
	var req InstantiateTemplateRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	definition, err := h.templates.Instantiate(c.Context(), c.Params("id"), owner(c), services.InstantiateInput{
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(definition)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.definitions.HealthCheck(c.Context())

	registryCheck := "All action handlers are registered"
	regOk := true

	if missing := h.registry.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, actionType := range missing {
			names[i] = string(actionType)
		}

		registryCheck = "Missing action handlers: " + strings.Join(names, ", ")
		regOk = false
	}

	status := "unhealthy"
	message := "Autoflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Autoflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func parsePage(c fiber.Ctx, limit, offset *int) error {
	if limitStr := c.Query("limit"); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil {
			return err
		}

		*limit = value
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		value, err := strconv.Atoi(offsetStr)
		if err != nil {
			return err
		}

		*offset = value
	}

	return nil
}

func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil //nolint:nilnil // absent filter
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}

	return &value, nil
}

// allRejected returns the first error when no match produced an execution
// because the payload failed validation.
func allRejected(results []workflow.DispatchResult) error {
	var first error

	for _, result := range results {
		if result.ExecutionID != "" || result.Err == nil || !errors.Is(result.Err, services.ErrInvalidPayload) {
			return nil
		}

		if first == nil {
			first = result.Err
		}
	}

	return first
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
