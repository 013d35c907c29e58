// Package models defines the core domain models for trigger-condition-action workflow automation
package models

import "time"

// DefinitionStatus represents the lifecycle state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft    DefinitionStatus = "draft"    // Editable, never dispatched
	DefinitionStatusActive   DefinitionStatus = "active"   // Matched by the dispatcher
	DefinitionStatusInactive DefinitionStatus = "inactive" // Paused by the owner
	DefinitionStatusArchived DefinitionStatus = "archived" // Kept for history only
)

// Valid reports whether s is one of the known statuses.
func (s DefinitionStatus) Valid() bool {
	switch s {
	case DefinitionStatusDraft, DefinitionStatusActive, DefinitionStatusInactive, DefinitionStatusArchived:
		return true
	}

	return false
}

// MetadataSourceTemplateID is set on definitions created from a template.
const MetadataSourceTemplateID = "source_template_id"

// WorkflowDefinition is a user-authored "when X, check Y, do Z" automation.
type WorkflowDefinition struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"                  validate:"required"`
	OrganizationID string           `json:"organization_id,omitempty"`
	Name           string           `json:"name"                      validate:"required,min=1,max=255"`
	Description    string           `json:"description"`
	TriggerConfig  TriggerConfig    `json:"trigger_config"`
	Actions        Actions          `json:"actions"`
	Conditions     []Condition      `json:"conditions"`
	Status         DefinitionStatus `json:"status"                    validate:"required"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsActive reports whether the definition is eligible for dispatch.
func (d *WorkflowDefinition) IsActive() bool {
	return d.Status == DefinitionStatusActive
}
