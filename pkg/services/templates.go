package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// Templates is the template library.
type Templates struct {
	persistence persistence.Persistence
	definitions *Definitions
	logger      *slog.Logger
}

// NewTemplates creates a new template service.
func NewTemplates(persistence persistence.Persistence, definitions *Definitions, logger *slog.Logger) *Templates {
	return &Templates{
		persistence: persistence,
		definitions: definitions,
		logger:      logger.With("module", "templates"),
	}
}

// ListTemplatesRequest contains options for listing templates.
type ListTemplatesRequest struct {
	Limit      int
	Offset     int
	Category   string
	IsPublic   *bool
	IsOfficial *bool
}

// ListTemplatesResponse contains the result of listing templates.
type ListTemplatesResponse struct {
	Templates   []*models.WorkflowTemplate `json:"templates"`
	TotalCount  int64                      `json:"total_count"`
	HasNextPage bool                       `json:"has_next_page"`
}

// InstantiateInput overrides the descriptive fields of the new definition.
type InstantiateInput struct {
	Name           string
	Description    string
	OrganizationID string
}

// List returns templates ordered by usage count, most used first.
func (t *Templates) List(ctx context.Context, req ListTemplatesRequest) (*ListTemplatesResponse, error) {
	normalizePage(&req.Limit, &req.Offset)

	result, err := t.persistence.Templates().List(ctx, persistence.ListTemplatesOptions{
		Category:   req.Category,
		IsPublic:   req.IsPublic,
		IsOfficial: req.IsOfficial,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return &ListTemplatesResponse{
		Templates:   result.Templates,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (t *Templates) Get(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return t.persistence.Templates().GetByID(ctx, id)
}

// Instantiate copies the template into a new draft definition owned by
// ownerID and bumps the template's usage count in one store operation.
func (t *Templates) Instantiate(
	ctx context.Context,
	templateID, ownerID string,
	input InstantiateInput,
) (*models.WorkflowDefinition, error) {
	template, err := t.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	actions, err := template.Actions.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy template actions: %w", err)
	}

	conditions, err := cloneJSON(template.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to copy template conditions: %w", err)
	}

	trigger, err := cloneJSON(template.TriggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to copy template trigger: %w", err)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = template.Name
	}

	description := input.Description
	if description == "" {
		description = template.Description
	}

	definition, err := t.definitions.Create(ctx, ownerID, DefinitionInput{
		Name:           name,
		Description:    description,
		OrganizationID: input.OrganizationID,
		TriggerConfig:  trigger,
		Actions:        actions,
		Conditions:     conditions,
		Status:         models.DefinitionStatusDraft,
		Metadata:       map[string]any{models.MetadataSourceTemplateID: template.ID},
	})
	if err != nil {
		return nil, err
	}

	usage, err := t.persistence.Templates().IncrementUsage(ctx, template.ID)
	if err != nil {
		if deleteErr := t.persistence.Definitions().Delete(ctx, definition.ID); deleteErr != nil {
			t.logger.ErrorContext(ctx, "failed to remove draft of failed instantiation",
				"template_id", template.ID,
				"workflow_id", definition.ID,
				"error", deleteErr)
		}

		return nil, fmt.Errorf("failed to record template usage: %w", err)
	}

	t.logger.InfoContext(ctx, "template instantiated",
		"template_id", template.ID,
		"workflow_id", definition.ID,
		"usage_count", usage)

	return definition, nil
}

// Seed upserts templates, keeping the stored usage counts. Templates whose
// content fails definition validation are rejected.
func (t *Templates) Seed(ctx context.Context, templates []*models.WorkflowTemplate) error {
	now := time.Now().UTC()

	for _, template := range templates {
		if strings.TrimSpace(template.ID) == "" {
			return NewValidationError("Seed", "INVALID_REQUEST", "template id is required", ErrInvalidRequest)
		}

		candidate := &models.WorkflowDefinition{
			OwnerID:       "seed",
			Name:          template.Name,
			TriggerConfig: template.TriggerConfig,
			Actions:       template.Actions,
			Conditions:    template.Conditions,
			Status:        models.DefinitionStatusDraft,
		}

		if err := ValidateDefinition(candidate); err != nil {
			return fmt.Errorf("template %s: %w", template.ID, err)
		}

		if existing, err := t.persistence.Templates().GetByID(ctx, template.ID); err == nil {
			template.CreatedAt = existing.CreatedAt
			template.UsageCount = existing.UsageCount
		} else if !persistence.IsTemplateNotFound(err) {
			return err
		} else if template.CreatedAt.IsZero() {
			template.CreatedAt = now
		}

		template.UpdatedAt = now

		if template.Actions == nil {
			template.Actions = models.Actions{}
		}

		if template.Conditions == nil {
			template.Conditions = []models.Condition{}
		}

		if err := t.persistence.Templates().Save(ctx, template); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", template.ID, err)
		}
	}

	t.logger.InfoContext(ctx, "templates seeded", "count", len(templates))

	return nil
}

func cloneJSON[T any](value T) (T, error) {
	var out T

	data, err := json.Marshal(value)
	if err != nil {
		return out, err
	}

	err = json.Unmarshal(data, &out)

	return out, err
}
