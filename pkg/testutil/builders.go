// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestDefinition creates an active event-triggered WorkflowDefinition with default values that can be overridden.
func CreateTestDefinition(overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	now := time.Now().UTC()
	definition := &models.WorkflowDefinition{
		ID:          uuid.New().String(),
		OwnerID:     "owner-1",
		Name:        "Test Workflow",
		Description: "Test workflow description",
		TriggerConfig: models.TriggerConfig{
			Kind:      models.TriggerKindEvent,
			EventType: models.EventInvoiceOverdue,
		},
		Actions: models.Actions{
			Handler("notify", models.ActionTypeSendNotification, map[string]any{"message": "test"}),
		},
		Conditions: []models.Condition{},
		Status:     models.DefinitionStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, override := range overrides {
		override(definition)
	}

	return definition
}

// WithOwner sets the definition owner.
func WithOwner(ownerID string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.OwnerID = ownerID
	}
}

// WithStatus sets the definition status.
func WithStatus(status models.DefinitionStatus) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Status = status
	}
}

// WithTrigger sets the trigger configuration.
func WithTrigger(trigger models.TriggerConfig) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.TriggerConfig = trigger
	}
}

// WithActions replaces the action list.
func WithActions(actions ...models.Action) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Actions = actions
	}
}

// WithConditions replaces the gating conditions.
func WithConditions(conditions ...models.Condition) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Conditions = conditions
	}
}

// WithCreatedAt sets both timestamps.
func WithCreatedAt(at time.Time) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.CreatedAt = at
		d.UpdatedAt = at
	}
}

// Handler builds a handler action.
func Handler(id string, actionType models.ActionType, config map[string]any) *models.HandlerAction {
	return &models.HandlerAction{ID: id, Type: actionType, Config: config}
}

// Delay builds a delay action.
func Delay(id string, d time.Duration) *models.DelayAction {
	return &models.DelayAction{ID: id, Duration: models.Duration(d)}
}

// Conditional builds a conditional action.
func Conditional(id string, conditions []models.Condition, then, otherwise models.Actions) *models.ConditionalAction {
	return &models.ConditionalAction{ID: id, Conditions: conditions, ThenActions: then, ElseActions: otherwise}
}

// CreateTestTemplate creates an official public template with default values that can be overridden.
func CreateTestTemplate(overrides ...func(*models.WorkflowTemplate)) *models.WorkflowTemplate {
	now := time.Now().UTC()
	template := &models.WorkflowTemplate{
		ID:          uuid.New().String(),
		Name:        "Invoice overdue reminder",
		Description: "Email the client when an invoice becomes overdue",
		Category:    "billing",
		IsPublic:    true,
		IsOfficial:  true,
		TriggerConfig: models.TriggerConfig{
			Kind:      models.TriggerKindEvent,
			EventType: models.EventInvoiceOverdue,
		},
		Actions: models.Actions{
			Handler("email", models.ActionTypeSendEmail, map[string]any{"to": "{{.trigger.client_email}}"}),
		},
		Conditions: []models.Condition{{Field: "amount", Operator: models.OperatorGreaterThan, Value: 0.0}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, override := range overrides {
		override(template)
	}

	return template
}
