package file

import (
	"context"
	"sort"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// TemplateRepository handles template-related file operations.
type TemplateRepository struct {
	mu    sync.Mutex
	files jsonDir[models.WorkflowTemplate]
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{files: newJSONDir[models.WorkflowTemplate](root, "templates")}
}

func (r *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.files.write(template.ID, template); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	template, err := r.files.read(id)
	if err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	if template == nil {
		return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
	}

	return template, nil
}

func (r *TemplateRepository) List(_ context.Context, opts persistence.ListTemplatesOptions) (*persistence.TemplateListResult, error) {
	r.mu.Lock()
	all, err := r.files.all()
	r.mu.Unlock()

	if err != nil {
		return nil, persistence.NewTemplateError("List", "*", err)
	}

	filtered := make([]*models.WorkflowTemplate, 0, len(all))

	for _, template := range all {
		if opts.Category != "" && template.Category != opts.Category {
			continue
		}

		if opts.IsPublic != nil && template.IsPublic != *opts.IsPublic {
			continue
		}

		if opts.IsOfficial != nil && template.IsOfficial != *opts.IsOfficial {
			continue
		}

		filtered = append(filtered, template)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].UsageCount != filtered[j].UsageCount {
			return filtered[i].UsageCount > filtered[j].UsageCount
		}

		return filtered[i].Name < filtered[j].Name
	})

	page, total, hasNext := paginate(filtered, opts.Limit, opts.Offset)

	return &persistence.TemplateListResult{
		Templates:   page,
		TotalCount:  total,
		HasNextPage: hasNext,
	}, nil
}

// IncrementUsage bumps the usage counter under the repository lock and
// returns the new value.
func (r *TemplateRepository) IncrementUsage(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	template, err := r.files.read(id)
	if err != nil {
		return 0, persistence.NewTemplateError("IncrementUsage", id, err)
	}

	if template == nil {
		return 0, persistence.NewTemplateError("IncrementUsage", id, persistence.ErrTemplateNotFound)
	}

	template.UsageCount++

	if err := r.files.write(id, template); err != nil {
		return 0, persistence.NewTemplateError("IncrementUsage", id, err)
	}

	return template.UsageCount, nil
}
