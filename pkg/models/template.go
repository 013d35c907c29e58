package models

import "time"

// WorkflowTemplate is a reusable, pre-built definition blueprint.
type WorkflowTemplate struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"          validate:"required"`
	Description   string         `json:"description"`
	Category      string         `json:"category"`
	IsPublic      bool           `json:"is_public"`
	IsOfficial    bool           `json:"is_official"`
	TriggerConfig TriggerConfig  `json:"trigger_config"`
	Actions       Actions        `json:"actions"`
	Conditions    []Condition    `json:"conditions"`
	UsageCount    int64          `json:"usage_count"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
