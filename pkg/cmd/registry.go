// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/actions/bus"
	"github.com/dukex/autoflow/pkg/actions/webhook"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/models"
)

// NewRegistry registers the bus-backed subsystem handlers and the outbound
// webhook handler.
func NewRegistry(publisher eventbus.EventPublisher, logger *slog.Logger) (*actions.Registry, error) {
	registry := actions.NewRegistry(logger)

	if err := bus.Register(registry, publisher); err != nil {
		return nil, fmt.Errorf("failed to register bus handlers: %w", err)
	}

	if err := registry.Register(models.ActionTypeWebhook, webhook.NewHandler()); err != nil {
		return nil, fmt.Errorf("failed to register webhook handler: %w", err)
	}

	return registry, nil
}
