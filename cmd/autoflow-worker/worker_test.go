package main

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/dukex/autoflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*Worker, *cmd.Runtime) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	runtime, err := cmd.NewRuntime(t.Context(), cmd.Config{
		ServiceName:    "autoflow-worker-test",
		DatabaseURL:    "file://" + t.TempDir(),
		EventBus:       "gochannel",
		ResumeInterval: 10 * time.Millisecond,
	}, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, runtime.Close(t.Context()))
	})

	return NewWorker("worker-test", runtime, time.Hour, logger), runtime
}

func createDefinition(t *testing.T, runtime *cmd.Runtime, trigger models.TriggerConfig) *models.WorkflowDefinition {
	t.Helper()

	definition, err := runtime.Definitions.Create(t.Context(), "owner-1", services.DefinitionInput{
		Name:          "Notify",
		TriggerConfig: trigger,
		Actions:       models.Actions{testutil.Handler("notify", models.ActionTypeSendNotification, map[string]any{"message": "hi"})},
		Status:        models.DefinitionStatusActive,
	})
	require.NoError(t, err)

	return definition
}

func executionsOf(t *testing.T, runtime *cmd.Runtime, workflowID string) []*models.WorkflowExecution {
	t.Helper()

	list, err := runtime.Executions.List(t.Context(), "owner-1", services.ListExecutionsRequest{WorkflowID: workflowID})
	require.NoError(t, err)

	return list.Executions
}

func TestWorker_ConsumesDomainEvents(t *testing.T) {
	t.Parallel()

	worker, runtime := newTestWorker(t)
	definition := createDefinition(t, runtime, models.TriggerConfig{Kind: models.TriggerKindEvent, EventType: models.EventClientCreated})

	require.NoError(t, worker.Start(t.Context()))
	t.Cleanup(worker.Stop)

	event := events.DomainEvent{
		EventType:  models.EventClientCreated,
		Payload:    map[string]any{"client_id": "c-1"},
		DeliveryID: "delivery-1",
	}

	require.NoError(t, runtime.EventBus.Publish(t.Context(), "c-1", event))
	require.NoError(t, runtime.EventBus.Publish(t.Context(), "c-1", event))

	assert.Eventually(t, func() bool {
		list, err := runtime.Executions.List(t.Context(), "owner-1", services.ListExecutionsRequest{WorkflowID: definition.ID})
		if err != nil || len(list.Executions) != 1 {
			return false
		}

		return list.Executions[0].Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	// the redelivered event must not start a second run
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, executionsOf(t, runtime, definition.ID), 1)
}

func TestWorker_HandleDomainEvent(t *testing.T) {
	t.Parallel()

	worker, runtime := newTestWorker(t)
	definition := createDefinition(t, runtime, models.TriggerConfig{Kind: models.TriggerKindEvent, EventType: models.EventInvoicePaid})

	// invalid events are dropped instead of redelivered forever
	require.NoError(t, worker.handleDomainEvent(t.Context(), &events.DomainEvent{}))
	require.NoError(t, worker.handleDomainEvent(t.Context(), "not an event"))

	require.NoError(t, worker.handleDomainEvent(t.Context(), &events.DomainEvent{
		EventType: models.EventInvoicePaid,
		Payload:   map[string]any{"invoice_id": "i-1"},
	}))

	executions := executionsOf(t, runtime, definition.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.TriggeredByEvent, executions[0].TriggeredBy)
	assert.Equal(t, "i-1", executions[0].TriggerData["invoice_id"])
}

func TestWorker_HandleTick(t *testing.T) {
	t.Parallel()

	worker, runtime := newTestWorker(t)
	definition := createDefinition(t, runtime, models.TriggerConfig{Kind: models.TriggerKindSchedule, Expression: "0 9 * * *"})

	require.NoError(t, worker.source.Start(t.Context()))
	t.Cleanup(worker.source.Stop)
	assert.Equal(t, []string{definition.ID}, worker.source.Workflows())

	tick := models.ScheduleTick{
		Criteria: models.MatchCriteria{WorkflowID: definition.ID, Expression: "0 9 * * *"},
		FiredAt:  time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, worker.handleTick(t.Context(), tick))
	require.NoError(t, worker.handleTick(t.Context(), tick))

	executions := executionsOf(t, runtime, definition.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.TriggeredBySchedule, executions[0].TriggeredBy)
	assert.Equal(t, models.ExecutionStatusCompleted, executions[0].Status)
}
