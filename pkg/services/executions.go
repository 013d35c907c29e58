package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/google/uuid"
)

const maxUpdateRetries = 20

// Executions tracks the lifecycle of workflow executions.
type Executions struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewExecutions creates a new execution tracker.
func NewExecutions(persistence persistence.Persistence, logger *slog.Logger) *Executions {
	return &Executions{
		persistence: persistence,
		logger:      logger.With("module", "executions"),
	}
}

// CreateExecutionInput describes what started an execution.
type CreateExecutionInput struct {
	TriggeredBy models.TriggeredBy
	TriggerData map[string]any
	DedupKey    string
}

// ExecutionPatch is a partial update. LogAppend is appended to the log and
// ResultsMerge is merged key by key into the results.
type ExecutionPatch struct {
	Status       *models.ExecutionStatus
	Error        *string
	ErrorDetails map[string]any
	LogAppend    []models.ExecutionLogEntry
	ResultsMerge map[string]any
}

// ListExecutionsRequest contains options for listing executions.
type ListExecutionsRequest struct {
	Limit      int
	Offset     int
	WorkflowID string
	Status     *models.ExecutionStatus
}

// ListExecutionsResponse contains the result of listing executions.
type ListExecutionsResponse struct {
	Executions  []*models.WorkflowExecution `json:"executions"`
	TotalCount  int64                       `json:"total_count"`
	HasNextPage bool                        `json:"has_next_page"`
}

// Create stores a new pending execution. When the dedup key is already taken
// it returns the existing execution together with a *persistence.DuplicateExecutionError.
func (e *Executions) Create(
	ctx context.Context,
	workflowID, ownerID string,
	input CreateExecutionInput,
) (*models.WorkflowExecution, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrEmptyOwnerID
	}

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:           uuid.New().String(),
		WorkflowID:   workflowID,
		OwnerID:      ownerID,
		TriggeredBy:  input.TriggeredBy,
		TriggerData:  input.TriggerData,
		Status:       models.ExecutionStatusPending,
		ExecutionLog: []models.ExecutionLogEntry{},
		Results:      map[string]any{},
		DedupKey:     input.DedupKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := e.persistence.Executions().Create(ctx, execution)
	if err != nil {
		var dup *persistence.DuplicateExecutionError
		if errors.As(err, &dup) {
			existing, getErr := e.persistence.Executions().GetByID(ctx, dup.ExistingID)
			if getErr != nil {
				return nil, err
			}

			return existing, err
		}

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	e.logger.DebugContext(ctx, "execution created",
		"execution_id", execution.ID,
		"workflow_id", workflowID,
		"triggered_by", input.TriggeredBy)

	return execution, nil
}

// Get returns the execution when ownerID owns it.
func (e *Executions) Get(ctx context.Context, id, ownerID string) (*models.WorkflowExecution, error) {
	execution, err := e.persistence.Executions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution.OwnerID != ownerID {
		return nil, persistence.NewExecutionError("Get", id, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

// List returns the owner's executions, newest first.
func (e *Executions) List(ctx context.Context, ownerID string, req ListExecutionsRequest) (*ListExecutionsResponse, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrEmptyOwnerID
	}

	normalizePage(&req.Limit, &req.Offset)

	opts := persistence.ListExecutionsOptions{
		OwnerID:    ownerID,
		WorkflowID: req.WorkflowID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}

	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, NewValidationError(
				"List",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}

		opts.Status = *req.Status
	}

	result, err := e.persistence.Executions().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return &ListExecutionsResponse{
		Executions:  result.Executions,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// Update applies patch under optimistic locking, re-reading and retrying with
// exponential backoff when another writer got there first.
func (e *Executions) Update(
	ctx context.Context,
	id, ownerID string,
	patch ExecutionPatch,
) (*models.WorkflowExecution, error) {
	var updated *models.WorkflowExecution

	operation := func() error {
		execution, err := e.Get(ctx, id, ownerID)
		if err != nil {
			return backoff.Permanent(err)
		}

		if err := applyPatch(execution, patch, time.Now().UTC()); err != nil {
			return backoff.Permanent(err)
		}

		err = e.persistence.Executions().Update(ctx, execution)
		if err != nil {
			if persistence.IsConcurrentModification(err) {
				return err
			}

			return backoff.Permanent(err)
		}

		updated = execution

		return nil
	}

	notify := func(err error, wait time.Duration) {
		e.logger.DebugContext(ctx, "retrying execution update", "execution_id", id, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(newUpdateBackOff(), maxUpdateRetries), ctx), notify)
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Cancel moves a pending or running execution to cancelled and drops any
// continuation it is waiting on.
func (e *Executions) Cancel(ctx context.Context, id, ownerID string) (*models.WorkflowExecution, error) {
	status := models.ExecutionStatusCancelled

	execution, err := e.Update(ctx, id, ownerID, ExecutionPatch{Status: &status})
	if err != nil {
		return nil, err
	}

	if err := e.persistence.Continuations().DeleteByExecution(ctx, id); err != nil {
		e.logger.ErrorContext(ctx, "failed to drop continuations of cancelled execution", "execution_id", id, "error", err)
	}

	e.logger.InfoContext(ctx, "execution cancelled", "execution_id", id, "workflow_id", execution.WorkflowID)

	return execution, nil
}

// applyPatch mutates execution in place. Log appends and result merges are
// the only fields still accepted on a terminal execution, so an in-flight
// action can record its outcome after a cancellation.
func applyPatch(execution *models.WorkflowExecution, patch ExecutionPatch, now time.Time) error {
	if execution.Status.IsTerminal() && (patch.Error != nil || patch.ErrorDetails != nil) {
		return &ServiceError{
			Op:      "Update",
			Code:    "EXECUTION_TERMINAL",
			Message: fmt.Sprintf("execution %s is already %s and its error is final", execution.ID, execution.Status),
			Err:     ErrExecutionTerminal,
		}
	}

	if patch.Status != nil && *patch.Status != execution.Status {
		next := *patch.Status

		if execution.Status.IsTerminal() {
			return &ServiceError{
				Op:      "Update",
				Code:    "EXECUTION_TERMINAL",
				Message: fmt.Sprintf("execution %s is %s and cannot become %s", execution.ID, execution.Status, next),
				Err:     ErrExecutionTerminal,
			}
		}

		if !next.Valid() || !models.CanTransition(execution.Status, next) {
			return NewValidationError(
				"Update",
				"INVALID_STATUS",
				fmt.Sprintf("invalid transition from %s to %s", execution.Status, next),
				ErrInvalidStatus,
			)
		}

		execution.Status = next

		if next == models.ExecutionStatusRunning && execution.StartedAt == nil {
			execution.StartedAt = &now
		}

		if next.IsTerminal() && execution.CompletedAt == nil {
			execution.CompletedAt = &now
		}
	} else if patch.Status != nil && execution.Status.IsTerminal() {
		return &ServiceError{
			Op:      "Update",
			Code:    "EXECUTION_TERMINAL",
			Message: fmt.Sprintf("execution %s is already %s", execution.ID, execution.Status),
			Err:     ErrExecutionTerminal,
		}
	}

	if patch.Error != nil {
		execution.Error = *patch.Error
	}

	if patch.ErrorDetails != nil {
		execution.ErrorDetails = patch.ErrorDetails
	}

	if len(patch.LogAppend) > 0 {
		execution.ExecutionLog = append(execution.ExecutionLog, patch.LogAppend...)
	}

	if len(patch.ResultsMerge) > 0 {
		if execution.Results == nil {
			execution.Results = map[string]any{}
		}

		maps.Copy(execution.Results, patch.ResultsMerge)
	}

	return nil
}

func newUpdateBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	return b
}
