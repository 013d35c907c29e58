package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manualTemplate = `
name: Manual notification
category: general
is_public: true
trigger_config:
  kind: manual
actions:
  - id: notify
    type: send_notification
    config:
      message: "hello {{.trigger.name}}"
`

func TestNewRuntime(t *testing.T) {
	t.Parallel()

	templates := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templates, "manual-notification.yaml"), []byte(manualTemplate), 0o600))

	rt, err := NewRuntime(t.Context(), Config{
		ServiceName:   "autoflow-test",
		DatabaseURL:   "file://" + t.TempDir(),
		EventBus:      "gochannel",
		TemplatesPath: templates,
	}, testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, rt.Close(t.Context())) })

	template, err := rt.Templates.Get(t.Context(), "manual-notification")
	require.NoError(t, err)
	assert.Equal(t, "Manual notification", template.Name)

	definition, err := rt.Templates.Instantiate(t.Context(), template.ID, "owner-1", services.InstantiateInput{})
	require.NoError(t, err)

	active := models.DefinitionStatusActive
	_, err = rt.Definitions.Update(t.Context(), definition.ID, "owner-1", services.DefinitionPatch{Status: &active})
	require.NoError(t, err)

	results, err := rt.Dispatcher.Dispatch(t.Context(), models.ManualStimulus{
		WorkflowID:  definition.ID,
		RequestedBy: "owner-1",
		Payload:     map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, results[0].Status)
}

func TestNewRuntime_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "unknown bus",
			cfg:  Config{DatabaseURL: t.TempDir(), EventBus: "nats"},
		},
		{
			name: "missing templates directory",
			cfg:  Config{DatabaseURL: t.TempDir(), TemplatesPath: filepath.Join(t.TempDir(), "missing")},
		},
		{
			name: "unsupported continuation store",
			cfg:  Config{DatabaseURL: t.TempDir(), ContinuationURL: "memcached://localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rt, err := NewRuntime(t.Context(), tt.cfg, testLogger())
			require.Error(t, err)
			assert.Nil(t, rt)
		})
	}
}
