package file

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// ContinuationRepository keeps suspended executions as files until due.
type ContinuationRepository struct {
	mu    sync.Mutex
	files jsonDir[models.Continuation]
}

// NewContinuationRepository creates a new continuation repository.
func NewContinuationRepository(root string) *ContinuationRepository {
	return &ContinuationRepository{files: newJSONDir[models.Continuation](root, "continuations")}
}

func (r *ContinuationRepository) Schedule(_ context.Context, continuation *models.Continuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.files.write(continuation.ID, continuation); err != nil {
		return fmt.Errorf("failed to schedule continuation %s: %w", continuation.ID, err)
	}

	return nil
}

// ClaimDue rewrites each claimed continuation with its resume time pushed to
// the end of the lease. The returned copies keep the original resume time.
func (r *ContinuationRepository) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Continuation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.files.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list continuations: %w", err)
	}

	due := make([]*models.Continuation, 0)

	for _, continuation := range all {
		if !continuation.ResumeAt.After(now) {
			due = append(due, continuation)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(due[j].ResumeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.Continuation, 0, len(due))

	for _, continuation := range due {
		leased := *continuation
		leased.ResumeAt = now.Add(lease)

		if err := r.files.write(leased.ID, &leased); err != nil {
			return claimed, fmt.Errorf("failed to claim continuation %s: %w", continuation.ID, err)
		}

		claimed = append(claimed, continuation)
	}

	return claimed, nil
}

func (r *ContinuationRepository) Complete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.files.remove(id); err != nil {
		return fmt.Errorf("failed to complete continuation %s: %w", id, err)
	}

	return nil
}

func (r *ContinuationRepository) DeleteByExecution(_ context.Context, executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.files.all()
	if err != nil {
		return fmt.Errorf("failed to list continuations: %w", err)
	}

	for _, continuation := range all {
		if continuation.ExecutionID != executionID {
			continue
		}

		if _, err := r.files.remove(continuation.ID); err != nil {
			return fmt.Errorf("failed to delete continuation %s: %w", continuation.ID, err)
		}
	}

	return nil
}
