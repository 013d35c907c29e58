package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/lib/pq"
)

const (
	executionColumns = `
		id
	  , workflow_id
	  , owner_id
	  , triggered_by
	  , trigger_data
	  , status
	  , started_at
	  , completed_at
	  , error
	  , error_details
	  , execution_log
	  , results
	  , dedup_key
	  , version
	  , created_at
	  , updated_at
	`

	uniqueViolation = "23505"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now
	execution.Version = 1

	row, err := executionArgs(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query, row...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && execution.DedupKey != "" {
			existing, lookupErr := r.GetByDedupKey(ctx, execution.DedupKey)
			if lookupErr == nil {
				return &persistence.DuplicateExecutionError{DedupKey: execution.DedupKey, ExistingID: existing.ID}
			}
		}

		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetByDedupKey(ctx context.Context, key string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE dedup_key = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByDedupKey", key, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByDedupKey", key, err)
	}

	return execution, nil
}

// Update writes the execution when the stored version still matches.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	expected := execution.Version
	updatedAt := time.Now().UTC()

	triggerData, err := marshalNullable(execution.TriggerData)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	errorDetails, err := marshalNullable(execution.ErrorDetails)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	executionLog, err := marshalOr(execution.ExecutionLog, "[]")
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	results, err := marshalOr(execution.Results, "{}")
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	query := `
		UPDATE workflow_executions SET
			status = $3
		  , started_at = $4
		  , completed_at = $5
		  , error = $6
		  , error_details = $7
		  , execution_log = $8
		  , results = $9
		  , trigger_data = $10
		  , updated_at = $11
		  , version = version + 1
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		expected,
		string(execution.Status),
		nullTime(execution.StartedAt),
		nullTime(execution.CompletedAt),
		nullString(execution.Error),
		errorDetails,
		executionLog,
		results,
		triggerData,
		updatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, execution.ID); err != nil {
			return err
		}

		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrConcurrentModification)
	}

	execution.Version = expected + 1
	execution.UpdatedAt = updatedAt

	return nil
}

func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where := newWhere()
	where.add("owner_id = ?", opts.OwnerID, opts.OwnerID != "")
	where.add("workflow_id = ?", opts.WorkflowID, opts.WorkflowID != "")
	where.add("status = ?", string(opts.Status), opts.Status != "")

	var total int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_executions`+where.sql(), where.args...).Scan(&total)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "*", err)
	}

	query := `SELECT ` + executionColumns + ` FROM workflow_executions` + where.sql() +
		` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(opts.Limit) + ` OFFSET ` + strconv.Itoa(opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "*", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewExecutionError("List", "*", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("List", "*", err)
	}

	return &persistence.ExecutionListResult{
		Executions:  executions,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(executions)) < total,
	}, nil
}

func executionArgs(execution *models.WorkflowExecution) ([]any, error) {
	triggerData, err := marshalNullable(execution.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	errorDetails, err := marshalNullable(execution.ErrorDetails)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error details: %w", err)
	}

	executionLog, err := marshalOr(execution.ExecutionLog, "[]")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution log: %w", err)
	}

	results, err := marshalOr(execution.Results, "{}")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	return []any{
		execution.ID,
		execution.WorkflowID,
		execution.OwnerID,
		string(execution.TriggeredBy),
		triggerData,
		string(execution.Status),
		nullTime(execution.StartedAt),
		nullTime(execution.CompletedAt),
		nullString(execution.Error),
		errorDetails,
		executionLog,
		results,
		nullString(execution.DedupKey),
		execution.Version,
		execution.CreatedAt,
		execution.UpdatedAt,
	}, nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution    models.WorkflowExecution
		triggeredBy  string
		status       string
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		errorText    sql.NullString
		dedupKey     sql.NullString
		triggerData  []byte
		errorDetails []byte
		executionLog []byte
		results      []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.OwnerID,
		&triggeredBy,
		&triggerData,
		&status,
		&startedAt,
		&completedAt,
		&errorText,
		&errorDetails,
		&executionLog,
		&results,
		&dedupKey,
		&execution.Version,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.TriggeredBy = models.TriggeredBy(triggeredBy)
	execution.Status = models.ExecutionStatus(status)
	execution.StartedAt = timePtr(startedAt)
	execution.CompletedAt = timePtr(completedAt)
	execution.Error = errorText.String
	execution.DedupKey = dedupKey.String

	if err := unmarshalNullable(triggerData, &execution.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := unmarshalNullable(errorDetails, &execution.ErrorDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error details: %w", err)
	}

	if err := json.Unmarshal(executionLog, &execution.ExecutionLog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
	}

	if err := json.Unmarshal(results, &execution.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}

	return &execution, nil
}
