package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations. Writes are
// serialized so version checks and dedup lookups are atomic per process.
type ExecutionRepository struct {
	mu    sync.RWMutex
	files jsonDir[models.WorkflowExecution]
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{files: newJSONDir[models.WorkflowExecution](root, "executions")}
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if execution.DedupKey != "" {
		existing, err := r.findByDedupKey(execution.DedupKey)
		if err != nil {
			return persistence.NewExecutionError("Create", execution.ID, err)
		}

		if existing != nil {
			return &persistence.DuplicateExecutionError{DedupKey: execution.DedupKey, ExistingID: existing.ID}
		}
	}

	current, err := r.files.read(execution.ID)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if current != nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrConcurrentModification)
	}

	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now
	execution.Version = 1

	if err := r.files.write(execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, err := r.files.read(id)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if execution == nil {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetByDedupKey(_ context.Context, key string) (*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, err := r.findByDedupKey(key)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByDedupKey", key, err)
	}

	if execution == nil {
		return nil, persistence.NewExecutionError("GetByDedupKey", key, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

func (r *ExecutionRepository) findByDedupKey(key string) (*models.WorkflowExecution, error) {
	all, err := r.files.all()
	if err != nil {
		return nil, err
	}

	for _, execution := range all {
		if execution.DedupKey == key {
			return execution, nil
		}
	}

	return nil, nil
}

func (r *ExecutionRepository) Update(_ context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.files.read(execution.ID)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if stored == nil {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	if stored.Version != execution.Version {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrConcurrentModification)
	}

	execution.Version++
	execution.UpdatedAt = time.Now().UTC()

	if err := r.files.write(execution.ID, execution); err != nil {
		execution.Version--

		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	r.mu.RLock()
	all, err := r.files.all()
	r.mu.RUnlock()

	if err != nil {
		return nil, persistence.NewExecutionError("List", "*", err)
	}

	filtered := make([]*models.WorkflowExecution, 0, len(all))

	for _, execution := range all {
		if opts.OwnerID != "" && execution.OwnerID != opts.OwnerID {
			continue
		}

		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != "" && execution.Status != opts.Status {
			continue
		}

		filtered = append(filtered, execution)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	page, total, hasNext := paginate(filtered, opts.Limit, opts.Offset)

	return &persistence.ExecutionListResult{
		Executions:  page,
		TotalCount:  total,
		HasNextPage: hasNext,
	}, nil
}
