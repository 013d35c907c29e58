package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
)

// notifier publishes execution lifecycle events. A nil publisher disables
// publishing. Failures are logged; the execution itself already moved on.
type notifier struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func (n notifier) publish(ctx context.Context, executionID string, event eventbus.Event) {
	if n.publisher == nil {
		return
	}

	err := n.publisher.Publish(ctx, executionID, event)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to publish lifecycle event",
			"event_type", event.GetType(),
			"execution_id", executionID,
			"error", err)
	}
}

func (n notifier) started(ctx context.Context, execution *models.WorkflowExecution) {
	n.publish(ctx, execution.ID, events.WorkflowExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionStartedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		TriggeredBy: execution.TriggeredBy,
		TriggerData: execution.TriggerData,
	})
}

func (n notifier) completed(ctx context.Context, execution *models.WorkflowExecution) {
	var duration time.Duration
	if execution.StartedAt != nil && execution.CompletedAt != nil {
		duration = execution.CompletedAt.Sub(*execution.StartedAt)
	}

	n.publish(ctx, execution.ID, events.WorkflowExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Results:     execution.Results,
		Duration:    duration,
	})
}

func (n notifier) failed(ctx context.Context, execution *models.WorkflowExecution, actionID string) {
	n.publish(ctx, execution.ID, events.WorkflowExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		ActionID:    actionID,
		Error:       execution.Error,
	})
}

func (n notifier) cancelled(ctx context.Context, execution *models.WorkflowExecution) {
	n.publish(ctx, execution.ID, events.WorkflowExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCancelledEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
	})
}

func (n notifier) suspended(ctx context.Context, execution *models.WorkflowExecution, actionID string, resumeAt time.Time) {
	n.publish(ctx, execution.ID, events.WorkflowExecutionSuspended{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionSuspendedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		ActionID:    actionID,
		ResumeAt:    resumeAt,
	})
}

func (n notifier) resumed(ctx context.Context, execution *models.WorkflowExecution) {
	n.publish(ctx, execution.ID, events.WorkflowExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionResumedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
	})
}
