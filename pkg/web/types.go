// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/workflow"
)

// OwnerHeader carries the caller's identity. Authentication happens upstream.
const OwnerHeader = "X-Owner-ID"

// DeliveryHeader carries an optional delivery id used to drop redeliveries.
const DeliveryHeader = "X-Delivery-ID"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name           string                  `json:"name"                      validate:"required,min=1,max=255"`
	Description    string                  `json:"description"`
	OrganizationID string                  `json:"organization_id,omitempty"`
	TriggerConfig  models.TriggerConfig    `json:"trigger_config"            validate:"required"`
	Actions        models.Actions          `json:"actions"`
	Conditions     []models.Condition      `json:"conditions"                validate:"omitempty,dive"`
	Status         models.DefinitionStatus `json:"status,omitempty"          validate:"omitempty,oneof=draft active inactive archived"`
	Metadata       map[string]any          `json:"metadata,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name           *string                  `json:"name,omitempty"            validate:"omitempty,min=1,max=255"`
	Description    *string                  `json:"description,omitempty"`
	OrganizationID *string                  `json:"organization_id,omitempty"`
	TriggerConfig  *models.TriggerConfig    `json:"trigger_config,omitempty"`
	Actions        *models.Actions          `json:"actions,omitempty"`
	Conditions     *[]models.Condition      `json:"conditions,omitempty"`
	Status         *models.DefinitionStatus `json:"status,omitempty"          validate:"omitempty,oneof=draft active inactive archived"`
	Metadata       map[string]any           `json:"metadata,omitempty"`
}

// RunWorkflowRequest starts a manual execution.
type RunWorkflowRequest struct {
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

// PublishEventRequest submits a domain event.
type PublishEventRequest struct {
	EventType  string         `json:"event_type"            validate:"required"`
	Payload    map[string]any `json:"payload"`
	DeliveryID string         `json:"delivery_id,omitempty" validate:"omitempty,max=255"`
}

// InstantiateTemplateRequest overrides the descriptive fields of the new workflow.
type InstantiateTemplateRequest struct {
	Name           string `json:"name,omitempty"            validate:"omitempty,min=1,max=255"`
	Description    string `json:"description,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// DispatchResponse lists what a stimulus started.
type DispatchResponse struct {
	Results []workflow.DispatchResult `json:"results"`
}
