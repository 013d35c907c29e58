package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/dukex/autoflow/pkg/testutil"
	"github.com/dukex/autoflow/pkg/web"
	"github.com/dukex/autoflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app       *fiber.App
	templates *services.Templates
}

func setupTestApp(t *testing.T, registerHandlers bool) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	p := file.NewPersistence(t.TempDir())

	registry := actions.NewRegistry(logger)
	if registerHandlers {
		noop := actions.HandlerFunc(func(context.Context, map[string]any, actions.ExecutionContext, *slog.Logger) (any, error) {
			return map[string]any{"ok": true}, nil
		})

		for _, actionType := range models.HandlerActionTypes() {
			require.NoError(t, registry.Register(actionType, noop))
		}
	}

	definitions := services.NewDefinitions(p)
	executions := services.NewExecutions(p, logger)
	templates := services.NewTemplates(p, definitions, logger)
	executor := workflow.NewExecutor(p, executions, registry, nil, nil, logger)
	dispatcher := workflow.NewDispatcher(p, executions, executor, 2, logger)

	handlers := web.NewAPIHandlers(
		definitions,
		executions,
		templates,
		dispatcher,
		executor,
		registry,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Mount(app)

	return &testAPI{app: app, templates: templates}
}

func (a *testAPI) do(t *testing.T, method, path, owner string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if owner != "" {
		req.Header.Set(web.OwnerHeader, owner)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func (a *testAPI) createWorkflow(t *testing.T, owner string, body map[string]any) models.WorkflowDefinition {
	t.Helper()

	status, raw := a.do(t, http.MethodPost, "/workflows", owner, body)
	require.Equal(t, http.StatusCreated, status, string(raw))

	var definition models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(raw, &definition))

	return definition
}

func activeWorkflow(trigger map[string]any, actionList ...map[string]any) map[string]any {
	if len(actionList) == 0 {
		actionList = []map[string]any{{"id": "email", "type": "send_email", "config": map[string]any{"to": "ops@example.com"}}}
	}

	return map[string]any{
		"name":           "Overdue reminder",
		"trigger_config": trigger,
		"actions":        actionList,
		"status":         "active",
	}
}

var overdueTrigger = map[string]any{"kind": "event", "event_type": models.EventInvoiceOverdue}

func decodeResults(t *testing.T, raw []byte) []workflow.DispatchResult {
	t.Helper()

	var response web.DispatchResponse
	require.NoError(t, json.Unmarshal(raw, &response))

	return response.Results
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		owner          string
		body           any
		expectedStatus int
		expectedError  string
	}{
		{
			name:  "draft by default",
			owner: "owner-1",
			body: map[string]any{
				"name":           "Welcome",
				"trigger_config": map[string]any{"kind": "event", "event_type": models.EventClientCreated},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "active with actions",
			owner:          "owner-1",
			body:           activeWorkflow(overdueTrigger),
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			owner:          "owner-1",
			body:           map[string]any{"trigger_config": overdueTrigger},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Name",
		},
		{
			name:           "unknown action type",
			owner:          "owner-1",
			body:           activeWorkflow(overdueTrigger, map[string]any{"id": "a", "type": "run_script"}),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "run_script",
		},
		{
			name:           "unknown event type",
			owner:          "owner-1",
			body:           activeWorkflow(map[string]any{"kind": "event", "event_type": "invoice.exploded"}),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invoice.exploded",
		},
		{
			name:           "active without actions",
			owner:          "owner-1",
			body:           map[string]any{"name": "Empty", "trigger_config": overdueTrigger, "actions": []any{}, "status": "active"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing owner",
			body:           activeWorkflow(overdueTrigger),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "owner",
		},
		{
			name:           "invalid json",
			owner:          "owner-1",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestApp(t, true)

			status, raw := api.do(t, http.MethodPost, "/workflows", tt.owner, tt.body)
			assert.Equal(t, tt.expectedStatus, status, string(raw))

			if tt.expectedError != "" {
				assert.Contains(t, string(raw), tt.expectedError)
			}

			if status == http.StatusCreated {
				var definition models.WorkflowDefinition
				require.NoError(t, json.Unmarshal(raw, &definition))
				assert.NotEmpty(t, definition.ID)
				assert.Equal(t, tt.owner, definition.OwnerID)
			}
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t, true)
	created := api.createWorkflow(t, "owner-1", map[string]any{
		"name":           "Welcome",
		"trigger_config": map[string]any{"kind": "event", "event_type": models.EventClientCreated},
	})
	assert.Equal(t, models.DefinitionStatusDraft, created.Status)

	path := "/workflows/" + created.ID

	status, _ := api.do(t, http.MethodGet, path, "owner-1", nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw := api.do(t, http.MethodGet, path, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(raw), "workflow_not_found")

	status, raw = api.do(t, http.MethodPatch, path, "owner-1", map[string]any{"name": "Welcome clients"})
	require.Equal(t, http.StatusOK, status, string(raw))

	var updated models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.Equal(t, "Welcome clients", updated.Name)

	// activating without actions is rejected
	status, _ = api.do(t, http.MethodPatch, path, "owner-1", map[string]any{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = api.do(t, http.MethodGet, "/workflows?status=draft", "owner-1", nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		Workflows  []models.WorkflowDefinition `json:"workflows"`
		TotalCount int64                       `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, int64(1), list.TotalCount)

	status, _ = api.do(t, http.MethodGet, "/workflows?limit=abc", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodDelete, path, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodDelete, path, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = api.do(t, http.MethodGet, path, "owner-1", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_RunWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t, true)

	manual := api.createWorkflow(t, "owner-1", activeWorkflow(map[string]any{"kind": "manual"}))
	eventDriven := api.createWorkflow(t, "owner-1", activeWorkflow(overdueTrigger))
	paused := api.createWorkflow(t, "owner-1", map[string]any{
		"name":           "Paused",
		"trigger_config": map[string]any{"kind": "manual"},
		"status":         "inactive",
	})

	status, raw := api.do(t, http.MethodPost, "/workflows/"+manual.ID+"/run", "owner-1", map[string]any{
		"payload":         map[string]any{"note": "now"},
		"idempotency_key": "req-1",
	})
	require.Equal(t, http.StatusAccepted, status, string(raw))

	results := decodeResults(t, raw)
	require.Len(t, results, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, results[0].Status)

	status, raw = api.do(t, http.MethodPost, "/workflows/"+manual.ID+"/run", "owner-1", map[string]any{"idempotency_key": "req-1"})
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, decodeResults(t, raw)[0].Duplicate)

	status, _ = api.do(t, http.MethodPost, "/workflows/"+manual.ID+"/run", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPost, "/workflows/"+manual.ID+"/run", "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodPost, "/workflows/"+eventDriven.ID+"/run", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPost, "/workflows/"+paused.ID+"/run", "owner-1", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_PublishEvent(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t, true)
	mine := api.createWorkflow(t, "owner-1", activeWorkflow(overdueTrigger))
	api.createWorkflow(t, "owner-2", activeWorkflow(overdueTrigger))

	event := map[string]any{
		"event_type":  models.EventInvoiceOverdue,
		"payload":     map[string]any{"amount": 120},
		"delivery_id": "evt-1",
	}

	status, raw := api.do(t, http.MethodPost, "/events", "owner-1", event)
	require.Equal(t, http.StatusAccepted, status, string(raw))

	results := decodeResults(t, raw)
	require.Len(t, results, 1)
	assert.Equal(t, mine.ID, results[0].WorkflowID)
	assert.Equal(t, models.ExecutionStatusCompleted, results[0].Status)

	status, raw = api.do(t, http.MethodPost, "/events", "owner-1", event)
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, decodeResults(t, raw)[0].Duplicate)

	status, _ = api.do(t, http.MethodPost, "/events", "owner-1", map[string]any{"event_type": "invoice.exploded"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPost, "/events", "owner-1", map[string]any{"payload": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_ReceiveWebhook(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t, true)
	api.createWorkflow(t, "owner-1", activeWorkflow(map[string]any{
		"kind":       "webhook",
		"webhook_id": "orders",
		"schema": map[string]any{
			"type":     "object",
			"required": []string{"order_id"},
		},
	}))

	status, raw := api.do(t, http.MethodPost, "/webhooks/orders", "", `{"order_id": "o-1"}`)
	require.Equal(t, http.StatusAccepted, status, string(raw))
	assert.Len(t, decodeResults(t, raw), 1)

	status, _ = api.do(t, http.MethodPost, "/webhooks/orders", "", `{"other": true}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPost, "/webhooks/unknown", "", `{}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Executions(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t, true)
	quick := api.createWorkflow(t, "owner-1", activeWorkflow(map[string]any{"kind": "manual"}))
	slow := api.createWorkflow(t, "owner-1", activeWorkflow(map[string]any{"kind": "manual"},
		map[string]any{"id": "wait", "type": "delay", "duration": "1h"},
		map[string]any{"id": "email", "type": "send_email", "config": map[string]any{"to": "ops@example.com"}},
	))

	run := func(workflowID string) workflow.DispatchResult {
		status, raw := api.do(t, http.MethodPost, "/workflows/"+workflowID+"/run", "owner-1", nil)
		require.Equal(t, http.StatusAccepted, status, string(raw))

		return decodeResults(t, raw)[0]
	}

	done := run(quick.ID)
	waiting := run(slow.ID)
	assert.Equal(t, models.ExecutionStatusRunning, waiting.Status)

	status, raw := api.do(t, http.MethodGet, "/executions/"+waiting.ExecutionID, "owner-1", nil)
	require.Equal(t, http.StatusOK, status)

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(raw, &execution))
	require.Len(t, execution.ExecutionLog, 1)
	assert.Equal(t, models.LogOutcomeSuspended, execution.ExecutionLog[0].Outcome)

	status, _ = api.do(t, http.MethodGet, "/executions/"+waiting.ExecutionID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, raw = api.do(t, http.MethodGet, "/executions?workflow_id="+quick.ID, "owner-1", nil)
	require.Equal(t, http.StatusOK, status)

	var list services.ListExecutionsResponse
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Executions, 1)
	assert.Equal(t, done.ExecutionID, list.Executions[0].ID)

	status, _ = api.do(t, http.MethodGet, "/executions?status=paused", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = api.do(t, http.MethodPost, "/executions/"+waiting.ExecutionID+"/cancel", "owner-1", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	require.NoError(t, json.Unmarshal(raw, &execution))
	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)

	status, _ = api.do(t, http.MethodPost, "/executions/"+done.ExecutionID+"/cancel", "owner-1", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_Templates(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t, true)
	template := testutil.CreateTestTemplate()
	hidden := testutil.CreateTestTemplate(func(tpl *models.WorkflowTemplate) {
		tpl.IsPublic = false
		tpl.Category = "hr"
	})
	require.NoError(t, api.templates.Seed(t.Context(), []*models.WorkflowTemplate{template, hidden}))

	status, raw := api.do(t, http.MethodGet, "/templates?is_public=true", "", nil)
	require.Equal(t, http.StatusOK, status)

	var list services.ListTemplatesResponse
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Templates, 1)
	assert.Equal(t, template.ID, list.Templates[0].ID)

	status, _ = api.do(t, http.MethodGet, "/templates?is_public=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/templates/"+hidden.ID, "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw = api.do(t, http.MethodPost, "/templates/"+template.ID+"/instantiate", "owner-1", map[string]any{"name": "My reminder"})
	require.Equal(t, http.StatusCreated, status, string(raw))

	var definition models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(raw, &definition))
	assert.Equal(t, "My reminder", definition.Name)
	assert.Equal(t, models.DefinitionStatusDraft, definition.Status)
	assert.Equal(t, template.ID, definition.Metadata[models.MetadataSourceTemplateID])

	status, raw = api.do(t, http.MethodPost, "/templates/missing/instantiate", "owner-1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(raw), "template_not_found")
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	status, raw := setupTestApp(t, true).do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"healthy"`)

	status, raw = setupTestApp(t, false).do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(raw), "send_email")
}
