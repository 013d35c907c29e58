package bus_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/actions/bus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHandler_PublishesActionRequest(t *testing.T) {
	t.Parallel()

	publisher := &mocks.MockEventBus{}
	publisher.On("Publish", mock.Anything, "ex-1", mock.MatchedBy(func(event events.ActionRequested) bool {
		return event.ActionType == models.ActionTypeSendEmail &&
			event.ActionID == "email" &&
			event.OwnerID == "owner-1" &&
			event.Config["to"] == "a@b.c" &&
			event.Topic() == "autoflow.actions.send_email"
	})).Return(nil).Once()

	handler := bus.NewHandler(models.ActionTypeSendEmail, publisher, nil)

	result, err := handler.Execute(t.Context(), map[string]any{"to": "a@b.c"}, actions.ExecutionContext{
		ExecutionID: "ex-1",
		WorkflowID:  "wf-1",
		OwnerID:     "owner-1",
		ActionID:    "email",
	}, testLogger())
	require.NoError(t, err)

	output, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "requested", output["status"])
	assert.NotEmpty(t, output["request_id"])

	publisher.AssertExpectations(t)
}

func TestHandler_PublishFailure(t *testing.T) {
	t.Parallel()

	publisher := &mocks.MockEventBus{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	handler := bus.NewHandler(models.ActionTypeCreateInvoice, publisher, nil)

	_, err := handler.Execute(t.Context(), nil, actions.ExecutionContext{ExecutionID: "ex-1"}, testLogger())
	require.ErrorContains(t, err, "broker down")
}

func TestRegister(t *testing.T) {
	t.Parallel()

	registry := actions.NewRegistry(testLogger())
	require.NoError(t, bus.Register(registry, &mocks.MockEventBus{}))

	assert.Equal(t, []models.ActionType{models.ActionTypeWebhook}, registry.Missing())

	err := registry.ValidateConfig(models.ActionTypeSendEmail, map[string]any{"subject": "hi"})
	require.ErrorIs(t, err, actions.ErrInvalidConfig)

	err = registry.ValidateConfig(models.ActionTypeCreateInvoice, map[string]any{"client_id": "c-1", "due_in_days": 30})
	require.NoError(t, err)
}
