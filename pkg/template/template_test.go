package template

import (
	"testing"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// a lone field keeps the type it has in the data
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30, result)

	result, err = Render("Age {{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, "Age 30", result)
}

func TestRender_ObjectConstruction(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"user":   map[string]any{"name": "Alice"},
		"orders": []any{1, 2},
	}

	result, err := Render(`{
		"user_name": "{{ .user.name }}",
		"total_orders": {{ len .orders }},
		"raw": {{ json .user }}
	}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.Equal(t, 2.0, resultMap["total_orders"])
	assert.Equal(t, map[string]any{"name": "Alice"}, resultMap["raw"])
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()

	data := map[string]any{"test": "value"}

	_, err := Render("{{ .test", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")

	_, err = Render("{{ nonexistent.field }}", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")
}

func TestRender_StringInterpolation(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"user":   map[string]any{"name": "John", "id": 123},
		"action": "login",
	}

	result, err := Render("User {{.user.name}} performed {{.action}}", data)
	require.NoError(t, err)
	assert.Equal(t, "User John performed login", result)

	result, err = Render("https://api.example.com/users/{{.user.id}}", data)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/123", result)
}

func TestRenderConfig_ExecutionData(t *testing.T) {
	t.Parallel()

	execution := &models.WorkflowExecution{
		ID:          "ex-1",
		WorkflowID:  "wf-1",
		OwnerID:     "owner-1",
		TriggeredBy: models.TriggeredByEvent,
		TriggerData: map[string]any{"client_email": "client@example.com", "amount": 120.5},
		Results:     map[string]any{"invoice": map[string]any{"number": "INV-7"}},
	}

	config := map[string]any{
		"to":       "{{ .trigger.client_email }}",
		"subject":  "Invoice {{ .results.invoice.number }} is overdue",
		"amount":   "{{ .trigger.amount }}",
		"template": "overdue",
		"retries":  3,
		"tags":     []any{"billing", "{{ .execution.triggered_by }}"},
		"meta":     map[string]any{"execution": "{{ .execution.id }}"},
	}

	rendered, err := RenderConfig(config, Data(execution))
	require.NoError(t, err)

	assert.Equal(t, "client@example.com", rendered["to"])
	assert.Equal(t, "Invoice INV-7 is overdue", rendered["subject"])
	assert.Equal(t, 120.5, rendered["amount"])
	assert.Equal(t, "overdue", rendered["template"])
	assert.Equal(t, 3, rendered["retries"])
	assert.Equal(t, []any{"billing", "event"}, rendered["tags"])
	assert.Equal(t, map[string]any{"execution": "ex-1"}, rendered["meta"])

	// the input is left untouched
	assert.Equal(t, "{{ .trigger.client_email }}", config["to"])
}

func TestRenderConfig_KeepsStrings(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"trigger": map[string]any{
			"number":    "00042",
			"status":    "overdue",
			"paid":      "true",
			"line":      "[1, 2]",
			"amount":    99.5,
			"reference": 42,
		},
	}

	tests := []struct {
		name     string
		template string
		expected any
	}{
		{"bracketed subject", "[Reminder] Invoice [{{ .trigger.status }}]", "[Reminder] Invoice [overdue]"},
		{"braced text", "{draft} {{ .trigger.status }} {final}", "{draft} overdue {final}"},
		{"numeric string field", "{{ .trigger.number }}", "00042"},
		{"numeric string in text", "INV-{{ .trigger.number }}", "INV-00042"},
		{"boolean string field", "{{ .trigger.paid }}", "true"},
		{"json looking string field", "{{ .trigger.line }}", "[1, 2]"},
		{"number field", "{{ .trigger.amount }}", 99.5},
		{"number field with root variable", "{{ $.trigger.reference }}", 42},
		{"rendered number in text", "{{ .trigger.reference }}{{ .trigger.reference }}", "4242"},
		{"explicit json", "{{ json .trigger.amount | printf \"[%s]\" }}", []any{99.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rendered, err := RenderConfig(map[string]any{"value": tt.template}, data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rendered["value"])
		})
	}
}

func TestRenderConfig_ErrorNamesThePath(t *testing.T) {
	t.Parallel()

	_, err := RenderConfig(map[string]any{
		"body": map[string]any{"items": []any{"{{ broken"}},
	}, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body.items[0]")

	empty, err := RenderConfig(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
