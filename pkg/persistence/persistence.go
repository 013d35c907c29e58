// Package persistence provides the storage abstraction for definitions, executions, templates and continuations.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

type Persistence interface {
	Definitions() DefinitionRepository
	Executions() ExecutionRepository
	Templates() TemplateRepository
	Continuations() ContinuationRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores workflow definitions. Save is an upsert.
type DefinitionRepository interface {
	Save(ctx context.Context, definition *models.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, opts ListDefinitionsOptions) (*DefinitionListResult, error)
	Delete(ctx context.Context, id string) error

	// FindActiveByTrigger returns active definitions whose trigger matches filter.
	FindActiveByTrigger(ctx context.Context, filter TriggerFilter) ([]*models.WorkflowDefinition, error)
}

// ExecutionRepository stores executions with optimistic locking on Version.
type ExecutionRepository interface {
	// Create inserts a new execution. A non-empty DedupKey already in use
	// yields a *DuplicateExecutionError.
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	GetByDedupKey(ctx context.Context, key string) (*models.WorkflowExecution, error)

	// Update replaces the stored execution when its version equals
	// execution.Version, then increments execution.Version. Otherwise it
	// returns ErrConcurrentModification.
	Update(ctx context.Context, execution *models.WorkflowExecution) error
	List(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)
}

// TemplateRepository stores templates. IncrementUsage is a single atomic step.
type TemplateRepository interface {
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context, opts ListTemplatesOptions) (*TemplateListResult, error)
	IncrementUsage(ctx context.Context, id string) (int64, error)
}

// ContinuationRepository holds suspended executions until they are due.
type ContinuationRepository interface {
	Schedule(ctx context.Context, continuation *models.Continuation) error

	// ClaimDue leases up to limit continuations due at or before now. A leased
	// continuation is returned to exactly one caller and stays hidden until
	// now+lease; unless Complete removes it first, it is then due again.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Continuation, error)

	// Complete removes a continuation whose execution has moved past it.
	Complete(ctx context.Context, id string) error

	// DeleteByExecution drops pending continuations of a cancelled execution.
	DeleteByExecution(ctx context.Context, executionID string) error
}

// ListDefinitionsOptions filters a definition listing. Results are ordered by
// creation time, newest first.
type ListDefinitionsOptions struct {
	OwnerID        string
	OrganizationID string
	Status         models.DefinitionStatus
	SearchText     string
	Limit          int
	Offset         int
}

type DefinitionListResult struct {
	Definitions []*models.WorkflowDefinition
	TotalCount  int64
	HasNextPage bool
}

// TriggerFilter selects definitions by trigger kind and the kind's key field.
// Empty key fields are wildcards.
type TriggerFilter struct {
	Kind       models.TriggerKind
	EventType  string
	WebhookID  string
	WorkflowID string
	Expression string
}

// Matches reports whether definition satisfies the filter, ignoring status.
func (f TriggerFilter) Matches(definition *models.WorkflowDefinition) bool {
	trigger := definition.TriggerConfig
	if trigger.Kind != f.Kind {
		return false
	}

	if f.WorkflowID != "" && definition.ID != f.WorkflowID {
		return false
	}

	switch f.Kind {
	case models.TriggerKindEvent:
		return trigger.EventType == f.EventType
	case models.TriggerKindWebhook:
		return trigger.WebhookID == f.WebhookID
	case models.TriggerKindSchedule:
		return f.Expression == "" || trigger.Expression == f.Expression
	default:
		return true
	}
}

// ListExecutionsOptions filters an execution listing, newest first.
type ListExecutionsOptions struct {
	OwnerID    string
	WorkflowID string
	Status     models.ExecutionStatus
	Limit      int
	Offset     int
}

type ExecutionListResult struct {
	Executions  []*models.WorkflowExecution
	TotalCount  int64
	HasNextPage bool
}

// ListTemplatesOptions filters a template listing, ordered by usage count descending.
type ListTemplatesOptions struct {
	Category   string
	IsPublic   *bool
	IsOfficial *bool
	Limit      int
	Offset     int
}

type TemplateListResult struct {
	Templates   []*models.WorkflowTemplate
	TotalCount  int64
	HasNextPage bool
}
