//go:build integration

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_continuations", "workflow_templates", "workflow_executions", "workflow_definitions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("autoflow_test"),
			postgres.WithUsername("autoflow"),
			postgres.WithPassword("autoflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_MigrationsAreIdempotent(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)
	require.NoError(t, p.HealthCheck(ctx))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { require.NoError(t, db.Close()) }()

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)
}

func newDefinition(owner string, status models.DefinitionStatus, createdAt time.Time) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:      uuid.NewString(),
		OwnerID: owner,
		Name:    "Overdue reminder",
		TriggerConfig: models.TriggerConfig{
			Kind:      models.TriggerKindEvent,
			EventType: models.EventInvoiceOverdue,
		},
		Actions: models.Actions{
			&models.HandlerAction{ID: "a1", Type: models.ActionTypeSendEmail, Config: map[string]any{"to": "{{.trigger.email}}"}},
			&models.DelayAction{ID: "a2", Duration: models.Duration(time.Minute)},
		},
		Conditions: []models.Condition{{Field: "amount", Operator: models.OperatorGreaterThan, Value: 100.0}},
		Status:     status,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestDefinitionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Definitions()
	base := time.Now().UTC().Truncate(time.Millisecond)

	active := newDefinition("owner-1", models.DefinitionStatusActive, base)
	draft := newDefinition("owner-1", models.DefinitionStatusDraft, base.Add(time.Second))
	draft.Name = "100%_match"

	require.NoError(t, repo.Save(ctx, active))
	require.NoError(t, repo.Save(ctx, draft))

	loaded, err := repo.GetByID(ctx, active.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Actions, 2)
	assert.Equal(t, models.ActionTypeDelay, loaded.Actions[1].ActionType())
	assert.Equal(t, models.EventInvoiceOverdue, loaded.TriggerConfig.EventType)

	list, err := repo.List(ctx, persistence.ListDefinitionsOptions{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Len(t, list.Definitions, 2)
	assert.Equal(t, draft.ID, list.Definitions[0].ID)

	search, err := repo.List(ctx, persistence.ListDefinitionsOptions{OwnerID: "owner-1", SearchText: "%_"})
	require.NoError(t, err)
	require.Len(t, search.Definitions, 1)
	assert.Equal(t, draft.ID, search.Definitions[0].ID)

	matches, err := repo.FindActiveByTrigger(ctx, persistence.TriggerFilter{Kind: models.TriggerKindEvent, EventType: models.EventInvoiceOverdue})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, active.ID, matches[0].ID)

	require.NoError(t, repo.Delete(ctx, draft.ID))

	_, err = repo.GetByID(ctx, draft.ID)
	assert.True(t, persistence.IsDefinitionNotFound(err))
}

func TestExecutionRepository_VersionAndDedup(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Executions()

	execution := &models.WorkflowExecution{
		ID:          uuid.NewString(),
		WorkflowID:  uuid.NewString(),
		OwnerID:     "owner-1",
		TriggeredBy: models.TriggeredByEvent,
		TriggerData: map[string]any{"amount": 120.0},
		Status:      models.ExecutionStatusPending,
		DedupKey:    "dedup-1",
	}
	require.NoError(t, repo.Create(ctx, execution))

	err := repo.Create(ctx, &models.WorkflowExecution{
		ID:          uuid.NewString(),
		WorkflowID:  execution.WorkflowID,
		OwnerID:     "owner-1",
		TriggeredBy: models.TriggeredByEvent,
		Status:      models.ExecutionStatusPending,
		DedupKey:    "dedup-1",
	})

	var dup *persistence.DuplicateExecutionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, execution.ID, dup.ExistingID)

	stale, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &now
	execution.ExecutionLog = append(execution.ExecutionLog, models.ExecutionLogEntry{ActionID: "a1", Outcome: models.LogOutcomeSucceeded})
	require.NoError(t, repo.Update(ctx, execution))
	assert.Equal(t, int64(2), execution.Version)

	stale.Status = models.ExecutionStatusCancelled
	err = repo.Update(ctx, stale)
	assert.True(t, persistence.IsConcurrentModification(err))

	loaded, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
	require.Len(t, loaded.ExecutionLog, 1)
	assert.NotNil(t, loaded.StartedAt)

	list, err := repo.List(ctx, persistence.ListExecutionsOptions{OwnerID: "owner-1", Status: models.ExecutionStatusRunning})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalCount)
}

func TestTemplateRepository_AtomicIncrement(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Templates()
	now := time.Now().UTC()

	template := &models.WorkflowTemplate{
		ID:            "overdue-reminder",
		Name:          "Overdue reminder",
		Category:      "billing",
		IsPublic:      true,
		IsOfficial:    true,
		TriggerConfig: models.TriggerConfig{Kind: models.TriggerKindEvent, EventType: models.EventInvoiceOverdue},
		Actions:       models.Actions{&models.HandlerAction{ID: "a1", Type: models.ActionTypeSendEmail}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.Save(ctx, template))

	const n = 25

	var wg sync.WaitGroup

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := repo.IncrementUsage(ctx, template.ID)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	loaded, err := repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), loaded.UsageCount)

	// reseeding keeps the counter
	require.NoError(t, repo.Save(ctx, template))

	loaded, err = repo.GetByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), loaded.UsageCount)

	_, err = repo.IncrementUsage(ctx, "missing")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestContinuationRepository_ClaimDue(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.Continuations()
	now := time.Now().UTC()

	due := &models.Continuation{
		ID:          uuid.NewString(),
		ExecutionID: "ex-1",
		WorkflowID:  "wf-1",
		OwnerID:     "owner-1",
		ResumeAt:    now.Add(-time.Second),
		NextIndex:   2,
		Cursor:      models.Cursor{{Index: 1, Branch: models.BranchThen}, {Index: 1}},
		CreatedAt:   now,
	}
	later := &models.Continuation{
		ID:          uuid.NewString(),
		ExecutionID: "ex-2",
		WorkflowID:  "wf-1",
		OwnerID:     "owner-1",
		ResumeAt:    now.Add(time.Hour),
		Cursor:      models.Cursor{{Index: 3}},
		CreatedAt:   now,
	}

	require.NoError(t, repo.Schedule(ctx, due))
	require.NoError(t, repo.Schedule(ctx, later))

	claimed, err := repo.ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, due.Cursor, claimed[0].Cursor)

	claimed, err = repo.ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = repo.ClaimDue(ctx, now.Add(time.Minute), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1, "an uncompleted lease comes due again")
	assert.Equal(t, due.ID, claimed[0].ID)

	require.NoError(t, repo.Complete(ctx, due.ID))
	require.NoError(t, repo.DeleteByExecution(ctx, "ex-2"))

	claimed, err = repo.ClaimDue(ctx, now.Add(2*time.Hour), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}
