package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/google/uuid"
)

// Definitions is the workflow definition store. Every call is scoped to an
// owner; a definition owned by someone else is reported as not found.
type Definitions struct {
	persistence persistence.Persistence
}

// NewDefinitions creates a new definition service.
func NewDefinitions(persistence persistence.Persistence) *Definitions {
	return &Definitions{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (d *Definitions) HealthCheck(ctx context.Context) (string, bool) {
	if d.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := d.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// DefinitionInput is the authored part of a definition.
type DefinitionInput struct {
	Name           string
	Description    string
	OrganizationID string
	TriggerConfig  models.TriggerConfig
	Actions        models.Actions
	Conditions     []models.Condition
	Status         models.DefinitionStatus
	Metadata       map[string]any
}

// DefinitionPatch carries the fields of a partial update. Nil fields are left unchanged.
type DefinitionPatch struct {
	Name           *string
	Description    *string
	OrganizationID *string
	TriggerConfig  *models.TriggerConfig
	Actions        *models.Actions
	Conditions     *[]models.Condition
	Status         *models.DefinitionStatus
	Metadata       map[string]any
}

// ListDefinitionsRequest contains options for listing definitions.
type ListDefinitionsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	OrganizationID string
	Status         *models.DefinitionStatus
	SearchText     string
}

// ListDefinitionsResponse contains the result of listing definitions.
type ListDefinitionsResponse struct {
	Definitions []*models.WorkflowDefinition `json:"workflows"`
	TotalCount  int64                        `json:"total_count"`
	HasNextPage bool                         `json:"has_next_page"`
}

// Create validates and stores a new definition. Status defaults to draft.
func (d *Definitions) Create(ctx context.Context, ownerID string, input DefinitionInput) (*models.WorkflowDefinition, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrEmptyOwnerID
	}

	now := time.Now().UTC()
	definition := &models.WorkflowDefinition{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		OrganizationID: input.OrganizationID,
		Name:           input.Name,
		Description:    input.Description,
		TriggerConfig:  input.TriggerConfig,
		Actions:        input.Actions,
		Conditions:     input.Conditions,
		Status:         input.Status,
		Metadata:       input.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if definition.Status == "" {
		definition.Status = models.DefinitionStatusDraft
	}

	if definition.Actions == nil {
		definition.Actions = models.Actions{}
	}

	if definition.Conditions == nil {
		definition.Conditions = []models.Condition{}
	}

	if err := ValidateDefinition(definition); err != nil {
		return nil, err
	}

	if err := d.persistence.Definitions().Save(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to create workflow definition: %w", err)
	}

	return definition, nil
}

// Get returns the definition when ownerID owns it.
func (d *Definitions) Get(ctx context.Context, id, ownerID string) (*models.WorkflowDefinition, error) {
	definition, err := d.persistence.Definitions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if definition.OwnerID != ownerID {
		return nil, persistence.NewDefinitionError("Get", id, persistence.ErrDefinitionNotFound)
	}

	return definition, nil
}

// List retrieves the owner's definitions, newest first.
func (d *Definitions) List(ctx context.Context, ownerID string, req ListDefinitionsRequest) (*ListDefinitionsResponse, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrEmptyOwnerID
	}

	normalizePage(&req.Limit, &req.Offset)

	opts := persistence.ListDefinitionsOptions{
		OwnerID:        ownerID,
		OrganizationID: req.OrganizationID,
		SearchText:     strings.TrimSpace(req.SearchText),
		Limit:          req.Limit,
		Offset:         req.Offset,
	}

	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, NewValidationError(
				"List",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}

		opts.Status = *req.Status
	}

	result, err := d.persistence.Definitions().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}

	return &ListDefinitionsResponse{
		Definitions: result.Definitions,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// Update applies patch to the owner's definition. Concurrent updates are
// last-writer-wins.
func (d *Definitions) Update(ctx context.Context, id, ownerID string, patch DefinitionPatch) (*models.WorkflowDefinition, error) {
	definition, err := d.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		definition.Name = *patch.Name
	}

	if patch.Description != nil {
		definition.Description = *patch.Description
	}

	if patch.OrganizationID != nil {
		definition.OrganizationID = *patch.OrganizationID
	}

	if patch.TriggerConfig != nil {
		definition.TriggerConfig = *patch.TriggerConfig
	}

	if patch.Actions != nil {
		definition.Actions = *patch.Actions
	}

	if patch.Conditions != nil {
		definition.Conditions = *patch.Conditions
	}

	if patch.Status != nil {
		definition.Status = *patch.Status
	}

	if patch.Metadata != nil {
		definition.Metadata = patch.Metadata
	}

	definition.UpdatedAt = time.Now().UTC()

	if err := ValidateDefinition(definition); err != nil {
		return nil, err
	}

	if err := d.persistence.Definitions().Save(ctx, definition); err != nil {
		return nil, fmt.Errorf("failed to update workflow definition: %w", err)
	}

	return definition, nil
}

// Delete removes the owner's definition.
func (d *Definitions) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := d.Get(ctx, id, ownerID); err != nil {
		return err
	}

	if err := d.persistence.Definitions().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete workflow definition: %w", err)
	}

	return nil
}

func normalizePage(limit, offset *int) {
	if *limit <= 0 {
		*limit = 20
	}

	if *limit > 100 {
		*limit = 100
	}

	if *offset < 0 {
		*offset = 0
	}
}
