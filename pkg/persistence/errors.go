// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found by the given identifier.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrExecutionNotFound indicates a workflow execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("workflow execution not found")

	// ErrTemplateNotFound indicates a workflow template was not found by the given identifier.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrConcurrentModification indicates the stored version changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrDuplicateExecution indicates an execution with the same dedup key already exists.
	ErrDuplicateExecution = errors.New("duplicate execution")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")
)

// EntityError wraps repository errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Update")
	Entity string // "definition", "execution", "template", "continuation"
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDefinitionError creates a definition error with context.
func NewDefinitionError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "definition", ID: id, Err: err}
}

// NewExecutionError creates an execution error with context.
func NewExecutionError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "execution", ID: id, Err: err}
}

// NewTemplateError creates a template error with context.
func NewTemplateError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "template", ID: id, Err: err}
}

// DuplicateExecutionError carries the id of the execution already holding the dedup key.
type DuplicateExecutionError struct {
	DedupKey   string
	ExistingID string
}

func (e *DuplicateExecutionError) Error() string {
	return fmt.Sprintf("execution %s already exists for dedup key %s", e.ExistingID, e.DedupKey)
}

func (e *DuplicateExecutionError) Is(target error) bool {
	return target == ErrDuplicateExecution
}

// IsDefinitionNotFound checks if an error indicates a definition was not found.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsConcurrentModification checks if an error is an optimistic locking failure.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsDuplicateExecution checks if an error is a dedup key collision.
func IsDuplicateExecution(err error) bool {
	return errors.Is(err, ErrDuplicateExecution)
}
