package models

// TriggerKind selects which stimulus starts a workflow.
type TriggerKind string

const (
	TriggerKindEvent    TriggerKind = "event"
	TriggerKindSchedule TriggerKind = "schedule"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindManual   TriggerKind = "manual"
)

// Valid reports whether k is one of the four supported trigger kinds.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerKindEvent, TriggerKindSchedule, TriggerKindWebhook, TriggerKindManual:
		return true
	}

	return false
}

// TriggerConfig is a tagged variant keyed by Kind. Only the fields of the
// selected kind are meaningful.
type TriggerConfig struct {
	Kind TriggerKind `json:"kind"`

	// event
	EventType string `json:"event_type,omitempty"`

	// schedule
	Expression string `json:"expression,omitempty"`
	Timezone   string `json:"timezone,omitempty"`

	// webhook
	WebhookID string         `json:"webhook_id,omitempty"`
	Schema    map[string]any `json:"schema,omitempty"`
}

// TriggeredBy records which kind of stimulus created an execution.
type TriggeredBy string

const (
	TriggeredByUser     TriggeredBy = "user"
	TriggeredByEvent    TriggeredBy = "event"
	TriggeredBySchedule TriggeredBy = "schedule"
	TriggeredByWebhook  TriggeredBy = "webhook"
)
