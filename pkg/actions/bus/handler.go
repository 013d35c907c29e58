// Package bus hands actions owned by other platform subsystems (email,
// invoicing, expenses, notifications) over the event bus.
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
)

// Handler publishes an ActionRequested event on autoflow.actions.<type> and
// reports the request as the action's result.
type Handler struct {
	actionType models.ActionType
	publisher  eventbus.EventPublisher
	schema     map[string]any
}

func NewHandler(actionType models.ActionType, publisher eventbus.EventPublisher, schema map[string]any) *Handler {
	return &Handler{
		actionType: actionType,
		publisher:  publisher,
		schema:     schema,
	}
}

func (h *Handler) Execute(
	ctx context.Context,
	config map[string]any,
	executionCtx actions.ExecutionContext,
	logger *slog.Logger,
) (any, error) {
	event := events.ActionRequested{
		BaseEvent:   events.NewBaseEvent(events.ActionRequestedEvent, executionCtx.WorkflowID),
		ExecutionID: executionCtx.ExecutionID,
		OwnerID:     executionCtx.OwnerID,
		ActionID:    executionCtx.ActionID,
		ActionType:  h.actionType,
		Config:      config,
	}

	// keyed by execution so one run's requests stay ordered on a partition
	err := h.publisher.Publish(ctx, executionCtx.ExecutionID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to publish %s request: %w", h.actionType, err)
	}

	logger.DebugContext(ctx, "action requested",
		"action_type", h.actionType,
		"request_id", event.ID,
		"topic", event.Topic())

	return map[string]any{
		"request_id": event.ID,
		"status":     "requested",
	}, nil
}

func (h *Handler) Schema() map[string]any {
	return h.schema
}

// Register binds the bus handlers for every subsystem-owned action type.
func Register(registry *actions.Registry, publisher eventbus.EventPublisher) error {
	for actionType, schema := range Schemas() {
		err := registry.Register(actionType, NewHandler(actionType, publisher, schema))
		if err != nil {
			return err
		}
	}

	return nil
}

// Schemas describes the config each subsystem expects.
func Schemas() map[models.ActionType]map[string]any {
	return map[models.ActionType]map[string]any{
		models.ActionTypeSendEmail: {
			"type":     "object",
			"required": []any{"to"},
			"properties": map[string]any{
				"to":          map[string]any{"type": "string", "minLength": 1},
				"subject":     map[string]any{"type": "string"},
				"body":        map[string]any{"type": "string"},
				"template_id": map[string]any{"type": "string"},
			},
		},
		models.ActionTypeCreateInvoice: {
			"type":     "object",
			"required": []any{"client_id"},
			"properties": map[string]any{
				"due_in_days": map[string]any{"type": "number", "minimum": 0},
				"line_items":  map[string]any{"type": "array"},
			},
		},
		models.ActionTypeUpdateExpense: {
			"type":     "object",
			"required": []any{"expense_id"},
			"properties": map[string]any{
				"status": map[string]any{"type": "string"},
			},
		},
		models.ActionTypeSendNotification: {
			"type": "object",
			"properties": map[string]any{
				"recipient": map[string]any{"type": "string"},
				"message":   map[string]any{"type": "string"},
				"channel":   map[string]any{"type": "string"},
			},
		},
	}
}
