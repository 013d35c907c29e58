package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTopic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DomainEventsTopic, DefaultTopic(DomainEventReceived))
	assert.Equal(t, WorkflowExecutionTopic, DefaultTopic(WorkflowExecutionSuspendedEvent))
	assert.Empty(t, DefaultTopic(ActionRequestedEvent))
}

func TestActionRequested_Topic(t *testing.T) {
	t.Parallel()

	event := ActionRequested{ActionType: models.ActionTypeSendEmail}

	assert.Equal(t, "autoflow.actions.send_email", event.Topic())
	assert.Equal(t, ActionRequestedEvent, event.GetType())
}

func TestNew_DecodesEveryEventType(t *testing.T) {
	t.Parallel()

	original := WorkflowExecutionSuspended{
		BaseEvent:   NewBaseEvent(WorkflowExecutionSuspendedEvent, "wf-1"),
		ExecutionID: "ex-1",
		ActionID:    "wait",
		ResumeAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	payload, err := json.Marshal(original)
	require.NoError(t, err)

	target, ok := New(original.GetType())
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(payload, target))

	decoded, ok := target.(*WorkflowExecutionSuspended)
	require.True(t, ok)
	assert.Equal(t, original.ExecutionID, decoded.ExecutionID)
	assert.True(t, original.ResumeAt.Equal(decoded.ResumeAt))
	assert.Equal(t, "wf-1", decoded.WorkflowID)

	for _, eventType := range []EventType{
		DomainEventReceived,
		WorkflowExecutionStartedEvent,
		WorkflowExecutionCompletedEvent,
		WorkflowExecutionFailedEvent,
		WorkflowExecutionCancelledEvent,
		WorkflowExecutionResumedEvent,
		ActionRequestedEvent,
	} {
		_, ok := New(eventType)
		assert.True(t, ok, eventType)
	}

	_, ok = New("workflow.triggered")
	assert.False(t, ok)
}

func TestDomainEvent_Stimulus(t *testing.T) {
	t.Parallel()

	event := DomainEvent{
		EventType:  models.EventInvoiceOverdue,
		Payload:    map[string]any{"invoice_id": "inv-1"},
		DeliveryID: "d-1",
	}

	stimulus := event.Stimulus()

	assert.Equal(t, models.TriggerKindEvent, stimulus.Kind())
	assert.Equal(t, "inv-1", stimulus.Payload["invoice_id"])
	assert.Equal(t, "d-1", stimulus.DeliveryID)
}
