// Package events defines the messages autoflow exchanges over the event bus.
package events

import (
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	DomainEventsTopic      = "autoflow.domain.events"       // Inbound domain events from the platform
	WorkflowExecutionTopic = "autoflow.workflow.executions" // Execution lifecycle notifications
	ActionTopicPrefix      = "autoflow.actions."            // Followed by the action type
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DomainEventReceived EventType = "domain.event"

	// Workflow execution lifecycle events.
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
	WorkflowExecutionCancelledEvent EventType = "workflow.execution.cancelled"
	WorkflowExecutionSuspendedEvent EventType = "workflow.execution.suspended"
	WorkflowExecutionResumedEvent   EventType = "workflow.execution.resumed"

	ActionRequestedEvent EventType = "action.requested"
)

// ActionTopic is the topic action requests of the given type are published on.
func ActionTopic(actionType models.ActionType) string {
	return ActionTopicPrefix + string(actionType)
}

// DefaultTopic returns the topic an event type travels on. Action requests
// have no default topic; they are routed by action type.
func DefaultTopic(eventType EventType) string {
	switch eventType {
	case DomainEventReceived:
		return DomainEventsTopic
	case ActionRequestedEvent:
		return ""
	default:
		return WorkflowExecutionTopic
	}
}

// New returns an empty event value for eventType, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case DomainEventReceived:
		return &DomainEvent{}, true
	case WorkflowExecutionStartedEvent:
		return &WorkflowExecutionStarted{}, true
	case WorkflowExecutionCompletedEvent:
		return &WorkflowExecutionCompleted{}, true
	case WorkflowExecutionFailedEvent:
		return &WorkflowExecutionFailed{}, true
	case WorkflowExecutionCancelledEvent:
		return &WorkflowExecutionCancelled{}, true
	case WorkflowExecutionSuspendedEvent:
		return &WorkflowExecutionSuspended{}, true
	case WorkflowExecutionResumedEvent:
		return &WorkflowExecutionResumed{}, true
	case ActionRequestedEvent:
		return &ActionRequested{}, true
	default:
		return nil, false
	}
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// DomainEvent is something that happened elsewhere in the platform, such as
// an invoice becoming overdue.
type DomainEvent struct {
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	OwnerID    string         `json:"owner_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at,omitzero"`
}

func (DomainEvent) GetType() EventType {
	return DomainEventReceived
}

// Stimulus converts the event into the dispatcher's input.
func (e DomainEvent) Stimulus() models.EventStimulus {
	return models.EventStimulus{
		EventType:  e.EventType,
		Payload:    e.Payload,
		DeliveryID: e.DeliveryID,
		OwnerID:    e.OwnerID,
	}
}

type WorkflowExecutionStarted struct {
	BaseEvent

	ExecutionID string             `json:"execution_id"`
	TriggeredBy models.TriggeredBy `json:"triggered_by"`
	TriggerData map[string]any     `json:"trigger_data,omitempty"`
}

func (WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Results     map[string]any `json:"results,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ActionID    string `json:"action_id,omitempty"`
	Error       string `json:"error"`
}

func (WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

type WorkflowExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (WorkflowExecutionCancelled) GetType() EventType {
	return WorkflowExecutionCancelledEvent
}

type WorkflowExecutionSuspended struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	ActionID    string    `json:"action_id"`
	ResumeAt    time.Time `json:"resume_at"`
}

func (WorkflowExecutionSuspended) GetType() EventType {
	return WorkflowExecutionSuspendedEvent
}

type WorkflowExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (WorkflowExecutionResumed) GetType() EventType {
	return WorkflowExecutionResumedEvent
}

// ActionRequested asks the subsystem owning ActionType to perform a side effect.
type ActionRequested struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	OwnerID     string            `json:"owner_id"`
	ActionID    string            `json:"action_id"`
	ActionType  models.ActionType `json:"action_type"`
	Config      map[string]any    `json:"config"`
}

func (ActionRequested) GetType() EventType {
	return ActionRequestedEvent
}

// Topic routes the request to the subsystem for its action type.
func (a ActionRequested) Topic() string {
	return ActionTopic(a.ActionType)
}
