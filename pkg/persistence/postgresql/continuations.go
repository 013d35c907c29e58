package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// ContinuationRepository stores suspended executions in workflow_continuations.
type ContinuationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewContinuationRepository creates a new continuation repository.
func NewContinuationRepository(db *sql.DB, logger *slog.Logger) *ContinuationRepository {
	return &ContinuationRepository{db: db, logger: logger}
}

func (r *ContinuationRepository) Schedule(ctx context.Context, continuation *models.Continuation) error {
	cursor, err := marshalOr(continuation.Cursor, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal cursor: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_continuations (
			id, execution_id, workflow_id, owner_id, resume_at, next_index, cursor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET resume_at = EXCLUDED.resume_at, cursor = EXCLUDED.cursor, next_index = EXCLUDED.next_index
	`,
		continuation.ID,
		continuation.ExecutionID,
		continuation.WorkflowID,
		continuation.OwnerID,
		continuation.ResumeAt.UTC(),
		continuation.NextIndex,
		cursor,
		continuation.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule continuation %s: %w", continuation.ID, err)
	}

	return nil
}

// ClaimDue moves the resume time of due rows to the end of the lease and
// returns them. SKIP LOCKED keeps concurrent resumers from claiming the same
// row; the returned resume time is the lease expiry.
func (r *ContinuationRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Continuation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE workflow_continuations
		SET resume_at = $2
		WHERE id IN (
			SELECT id FROM workflow_continuations
			WHERE resume_at <= $1
			ORDER BY resume_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, execution_id, workflow_id, owner_id, resume_at, next_index, cursor, created_at
	`, now.UTC(), now.Add(lease).UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim continuations: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	claimed := make([]*models.Continuation, 0)

	for rows.Next() {
		var (
			continuation models.Continuation
			cursor       []byte
		)

		err := rows.Scan(
			&continuation.ID,
			&continuation.ExecutionID,
			&continuation.WorkflowID,
			&continuation.OwnerID,
			&continuation.ResumeAt,
			&continuation.NextIndex,
			&cursor,
			&continuation.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan continuation: %w", err)
		}

		if err := json.Unmarshal(cursor, &continuation.Cursor); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cursor: %w", err)
		}

		claimed = append(claimed, &continuation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating continuations: %w", err)
	}

	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].ResumeAt.Before(claimed[j].ResumeAt)
	})

	return claimed, nil
}

func (r *ContinuationRepository) Complete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_continuations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete continuation %s: %w", id, err)
	}

	return nil
}

func (r *ContinuationRepository) DeleteByExecution(ctx context.Context, executionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_continuations WHERE execution_id = $1`, executionID)
	if err != nil {
		return fmt.Errorf("failed to delete continuations of execution %s: %w", executionID, err)
	}

	return nil
}
