package file

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// DefinitionRepository handles definition-related file operations.
type DefinitionRepository struct {
	mu    sync.RWMutex
	files jsonDir[models.WorkflowDefinition]
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(root string) *DefinitionRepository {
	return &DefinitionRepository{files: newJSONDir[models.WorkflowDefinition](root, "definitions")}
}

// Save writes the definition, replacing any previous version.
func (r *DefinitionRepository) Save(_ context.Context, definition *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.files.write(definition.ID, definition)
	if err != nil {
		return persistence.NewDefinitionError("Save", definition.ID, err)
	}

	return nil
}

// GetByID retrieves a definition by its ID.
func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definition, err := r.files.read(id)
	if err != nil {
		return nil, persistence.NewDefinitionError("GetByID", id, err)
	}

	if definition == nil {
		return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
	}

	return definition, nil
}

// Delete removes a definition by its ID.
func (r *DefinitionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed, err := r.files.remove(id)
	if err != nil {
		return persistence.NewDefinitionError("Delete", id, err)
	}

	if !removed {
		return persistence.NewDefinitionError("Delete", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

// List returns filtered definitions ordered by creation time, newest first.
func (r *DefinitionRepository) List(_ context.Context, opts persistence.ListDefinitionsOptions) (*persistence.DefinitionListResult, error) {
	r.mu.RLock()
	all, err := r.files.all()
	r.mu.RUnlock()

	if err != nil {
		return nil, persistence.NewDefinitionError("List", "*", err)
	}

	search := strings.ToLower(strings.TrimSpace(opts.SearchText))
	filtered := make([]*models.WorkflowDefinition, 0, len(all))

	for _, definition := range all {
		if opts.OwnerID != "" && definition.OwnerID != opts.OwnerID {
			continue
		}

		if opts.OrganizationID != "" && definition.OrganizationID != opts.OrganizationID {
			continue
		}

		if opts.Status != "" && definition.Status != opts.Status {
			continue
		}

		if search != "" &&
			!strings.Contains(strings.ToLower(definition.Name), search) &&
			!strings.Contains(strings.ToLower(definition.Description), search) {
			continue
		}

		filtered = append(filtered, definition)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	page, total, hasNext := paginate(filtered, opts.Limit, opts.Offset)

	return &persistence.DefinitionListResult{
		Definitions: page,
		TotalCount:  total,
		HasNextPage: hasNext,
	}, nil
}

// FindActiveByTrigger scans all definitions for active ones matching filter.
func (r *DefinitionRepository) FindActiveByTrigger(_ context.Context, filter persistence.TriggerFilter) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	all, err := r.files.all()
	r.mu.RUnlock()

	if err != nil {
		return nil, persistence.NewDefinitionError("FindActiveByTrigger", string(filter.Kind), err)
	}

	matches := make([]*models.WorkflowDefinition, 0)

	for _, definition := range all {
		if definition.IsActive() && filter.Matches(definition) {
			matches = append(matches, definition)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return matches, nil
}
