package models

import "time"

// Stimulus is anything that can start workflow executions.
type Stimulus interface {
	Kind() TriggerKind
}

// EventStimulus is a domain event raised elsewhere in the platform.
type EventStimulus struct {
	EventType  string         `json:"event_type"            validate:"required"`
	Payload    map[string]any `json:"payload"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	// OwnerID, when set, limits matching to that owner's definitions.
	OwnerID string `json:"owner_id,omitempty"`
}

func (EventStimulus) Kind() TriggerKind { return TriggerKindEvent }

// MatchCriteria narrows which schedule definitions a tick applies to. Empty
// fields match anything.
type MatchCriteria struct {
	WorkflowID string `json:"workflow_id,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// ScheduleTick is emitted by the cron source when an expression fires.
type ScheduleTick struct {
	Criteria MatchCriteria `json:"criteria"`
	FiredAt  time.Time     `json:"fired_at"`
}

func (ScheduleTick) Kind() TriggerKind { return TriggerKindSchedule }

// WebhookStimulus is an inbound call against a registered webhook id.
type WebhookStimulus struct {
	WebhookID  string `json:"webhook_id"`
	RawPayload []byte `json:"raw_payload"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

func (WebhookStimulus) Kind() TriggerKind { return TriggerKindWebhook }

// ManualStimulus is a user asking to run one definition now.
type ManualStimulus struct {
	WorkflowID     string         `json:"workflow_id"`
	Payload        map[string]any `json:"payload"`
	RequestedBy    string         `json:"requested_by"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

func (ManualStimulus) Kind() TriggerKind { return TriggerKindManual }
