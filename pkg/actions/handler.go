// Package actions defines the contract between the executor and the code that
// performs an action's side effect.
package actions

import (
	"context"
	"log/slog"

	"github.com/dukex/autoflow/pkg/models"
)

// ExecutionContext is what a handler knows about the run it is part of.
type ExecutionContext struct {
	ExecutionID string            `json:"execution_id"`
	WorkflowID  string            `json:"workflow_id"`
	OwnerID     string            `json:"owner_id"`
	ActionID    string            `json:"action_id"`
	ActionType  models.ActionType `json:"action_type"`
	TriggerData map[string]any    `json:"trigger_data"`
	Results     map[string]any    `json:"results"`
}

// Handler performs one action. Config arrives already rendered. The returned
// value is stored under the action id in the execution results.
type Handler interface {
	Execute(ctx context.Context, config map[string]any, executionCtx ExecutionContext, logger *slog.Logger) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, config map[string]any, executionCtx ExecutionContext, logger *slog.Logger) (any, error)

func (f HandlerFunc) Execute(
	ctx context.Context,
	config map[string]any,
	executionCtx ExecutionContext,
	logger *slog.Logger,
) (any, error) {
	return f(ctx, config, executionCtx, logger)
}

// SchemaProvider is implemented by handlers that describe their config with a
// JSON schema. The registry checks rendered configs against it.
type SchemaProvider interface {
	Schema() map[string]any
}
