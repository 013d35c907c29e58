package mocks

import (
	"context"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	DefinitionRepo   *MockDefinitionRepository
	ExecutionRepo    *MockExecutionRepository
	TemplateRepo     *MockTemplateRepository
	ContinuationRepo *MockContinuationRepository
}

// NewMockPersistence returns a persistence whose repositories are fresh mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		DefinitionRepo:   &MockDefinitionRepository{},
		ExecutionRepo:    &MockExecutionRepository{},
		TemplateRepo:     &MockTemplateRepository{},
		ContinuationRepo: &MockContinuationRepository{},
	}
}

func (m *MockPersistence) Definitions() persistence.DefinitionRepository {
	return m.DefinitionRepo
}

func (m *MockPersistence) Executions() persistence.ExecutionRepository {
	return m.ExecutionRepo
}

func (m *MockPersistence) Templates() persistence.TemplateRepository {
	return m.TemplateRepo
}

func (m *MockPersistence) Continuations() persistence.ContinuationRepository {
	return m.ContinuationRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockDefinitionRepository is a mock implementation of persistence.DefinitionRepository interface.
type MockDefinitionRepository struct {
	mock.Mock
}

func (m *MockDefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	args := m.Called(ctx, definition)

	return args.Error(0)
}

func (m *MockDefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockDefinitionRepository) List(ctx context.Context, opts persistence.ListDefinitionsOptions) (*persistence.DefinitionListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.DefinitionListResult), args.Error(1)
}

func (m *MockDefinitionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockDefinitionRepository) FindActiveByTrigger(ctx context.Context, filter persistence.TriggerFilter) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDefinition), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) GetByDedupKey(ctx context.Context, key string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.ExecutionListResult), args.Error(1)
}

// MockTemplateRepository is a mock implementation of persistence.TemplateRepository interface.
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	args := m.Called(ctx, template)

	return args.Error(0)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) (*persistence.TemplateListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.TemplateListResult), args.Error(1)
}

func (m *MockTemplateRepository) IncrementUsage(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(int64), args.Error(1)
}

// MockContinuationRepository is a mock implementation of persistence.ContinuationRepository interface.
type MockContinuationRepository struct {
	mock.Mock
}

func (m *MockContinuationRepository) Schedule(ctx context.Context, continuation *models.Continuation) error {
	args := m.Called(ctx, continuation)

	return args.Error(0)
}

func (m *MockContinuationRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Continuation, error) {
	args := m.Called(ctx, now, lease, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Continuation), args.Error(1)
}

func (m *MockContinuationRepository) Complete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockContinuationRepository) DeleteByExecution(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)

	return args.Error(0)
}
