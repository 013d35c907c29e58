// Package postgresql provides PostgreSQL persistence for definitions, executions, templates and continuations.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // registers the "postgres" driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db               *sql.DB
	logger           *slog.Logger
	definitionRepo   *DefinitionRepository
	executionRepo    *ExecutionRepository
	templateRepo     *TemplateRepository
	continuationRepo *ContinuationRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:               database,
		logger:           logger,
		definitionRepo:   NewDefinitionRepository(database, logger),
		executionRepo:    NewExecutionRepository(database, logger),
		templateRepo:     NewTemplateRepository(database, logger),
		continuationRepo: NewContinuationRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) Continuations() persistence.ContinuationRepository {
	return p.continuationRepo
}
