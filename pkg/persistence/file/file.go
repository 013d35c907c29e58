// Package file provides file-based persistence for definitions, executions, templates and continuations.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root             string
	definitionRepo   *DefinitionRepository
	executionRepo    *ExecutionRepository
	templateRepo     *TemplateRepository
	continuationRepo *ContinuationRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:             cleanRoot,
		definitionRepo:   NewDefinitionRepository(cleanRoot),
		executionRepo:    NewExecutionRepository(cleanRoot),
		templateRepo:     NewTemplateRepository(cleanRoot),
		continuationRepo: NewContinuationRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Definitions() persistence.DefinitionRepository {
	return fp.definitionRepo
}

func (fp *Persistence) Executions() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) Templates() persistence.TemplateRepository {
	return fp.templateRepo
}

func (fp *Persistence) Continuations() persistence.ContinuationRepository {
	return fp.continuationRepo
}
