// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidTrigger   = errors.New("invalid trigger configuration")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidSchedule  = errors.New("invalid schedule expression")
	ErrInvalidWebhook   = errors.New("invalid webhook configuration")
	ErrActionsRequired  = errors.New("active workflow must have at least one action")
	ErrNotManualTrigger = errors.New("workflow is not configured for manual runs")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrEmptyOwnerID     = errors.New("owner ID cannot be empty")
	ErrInvalidPayload   = errors.New("payload does not match webhook schema")

	// Business Logic Conflicts (409 Conflict).
	ErrExecutionTerminal = errors.New("execution is in a terminal state")
	ErrWorkflowInactive  = errors.New("workflow is not active")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidTrigger) ||
		errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrInvalidWebhook) ||
		errors.Is(err, ErrActionsRequired) ||
		errors.Is(err, ErrNotManualTrigger) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, models.ErrUnknownActionType) ||
		errors.Is(err, models.ErrUnknownOperator) ||
		errors.Is(err, models.ErrUnknownLogic)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrExecutionTerminal) ||
		errors.Is(err, ErrWorkflowInactive) ||
		errors.Is(err, persistence.ErrDuplicateExecution) ||
		errors.Is(err, persistence.ErrConcurrentModification)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsDefinitionNotFound(err) ||
		persistence.IsExecutionNotFound(err) ||
		persistence.IsTemplateNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
