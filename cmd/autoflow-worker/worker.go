// Package main provides the autoflow worker, which turns domain events from
// the bus and cron ticks into workflow executions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/schedule"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/dukex/autoflow/pkg/workflow"
)

type Worker struct {
	id      string
	runtime *cmd.Runtime
	source  *schedule.Source
	logger  *slog.Logger
}

func NewWorker(id string, runtime *cmd.Runtime, refreshInterval time.Duration, logger *slog.Logger) *Worker {
	w := &Worker{
		id:      id,
		runtime: runtime,
		logger:  logger.With("module", "worker", "worker_id", id),
	}

	w.source = schedule.NewSource(runtime.Persistence.Definitions(), w.handleTick, refreshInterval, logger)

	return w
}

// Start subscribes to domain events and starts the cron source and the
// resumer. It returns once everything is running.
func (w *Worker) Start(ctx context.Context) error {
	err := w.runtime.EventBus.Handle(events.DomainEventReceived, w.handleDomainEvent)
	if err != nil {
		return fmt.Errorf("failed to register domain event handler: %w", err)
	}

	err = w.runtime.EventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to domain events: %w", err)
	}

	err = w.source.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start schedule source: %w", err)
	}

	w.runtime.Resumer.Start(ctx)

	w.logger.InfoContext(ctx, "worker started", "schedules", len(w.source.Workflows()))

	return nil
}

// Run starts the worker and blocks until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	w.logger.Info("Shutting down gracefully...")
	w.Stop()

	return nil
}

func (w *Worker) Stop() {
	w.source.Stop()
	w.runtime.Resumer.Stop()
}

// handleDomainEvent returns an error, and so asks for redelivery, only when
// an execution could not be recorded. Redelivery is safe because the
// dispatcher drops stimuli it already started.
func (w *Worker) handleDomainEvent(ctx context.Context, event any) error {
	domainEvent, ok := event.(*events.DomainEvent)
	if !ok {
		w.logger.WarnContext(ctx, "unexpected event", "type", fmt.Sprintf("%T", event))

		return nil
	}

	logger := w.logger.With("event_type", domainEvent.EventType, "delivery_id", domainEvent.DeliveryID)

	results, err := w.runtime.Dispatcher.Dispatch(ctx, domainEvent.Stimulus())
	if err != nil {
		if services.IsValidationError(err) {
			logger.WarnContext(ctx, "dropping invalid domain event", "error", err)

			return nil
		}

		return err
	}

	return w.report(ctx, logger, results)
}

func (w *Worker) handleTick(ctx context.Context, tick models.ScheduleTick) error {
	logger := w.logger.With("workflow_id", tick.Criteria.WorkflowID, "fired_at", tick.FiredAt)

	results, err := w.runtime.Dispatcher.Dispatch(ctx, tick)
	if err != nil {
		return err
	}

	return w.report(ctx, logger, results)
}

func (w *Worker) report(ctx context.Context, logger *slog.Logger, results []workflow.DispatchResult) error {
	var errs []error

	for _, result := range results {
		switch {
		case result.Err != nil && result.ExecutionID == "":
			errs = append(errs, fmt.Errorf("workflow %s: %w", result.WorkflowID, result.Err))
		case result.Err != nil:
			logger.WarnContext(ctx, "execution did not complete",
				"workflow_id", result.WorkflowID,
				"execution_id", result.ExecutionID,
				"status", result.Status,
				"error", result.Err)
		default:
			logger.InfoContext(ctx, "stimulus dispatched",
				"workflow_id", result.WorkflowID,
				"execution_id", result.ExecutionID,
				"status", result.Status,
				"duplicate", result.Duplicate,
				"gated", result.Gated)
		}
	}

	return errors.Join(errs...)
}
