package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/persistence"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultResumeInterval = 5 * time.Second
	DefaultResumeLease    = 5 * time.Minute
	defaultResumeBatch    = 100
)

// Resumer polls for continuations whose delay has elapsed and hands them
// back to the executor. Claims are leases: a continuation is removed only
// after its execution resumed, so a failed or interrupted resume is retried
// once the lease runs out. Several resumers may poll the same store.
type Resumer struct {
	continuations persistence.ContinuationRepository
	executor      *Executor
	interval      time.Duration
	lease         time.Duration
	batch         int
	concurrency   int
	logger        *slog.Logger

	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	stopped chan struct{}
	started bool
}

func NewResumer(
	continuations persistence.ContinuationRepository,
	executor *Executor,
	interval time.Duration,
	logger *slog.Logger,
) *Resumer {
	if interval <= 0 {
		interval = DefaultResumeInterval
	}

	return &Resumer{
		continuations: continuations,
		executor:      executor,
		interval:      interval,
		lease:         DefaultResumeLease,
		batch:         defaultResumeBatch,
		concurrency:   DefaultDispatchConcurrency,
		logger:        logger.With("module", "resumer"),
	}
}

// Start begins polling in the background until Stop or ctx ends.
func (r *Resumer) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}

	r.ticker = time.NewTicker(r.interval)
	r.done = make(chan struct{})
	r.stopped = make(chan struct{})
	r.started = true

	go r.poll(ctx)

	r.logger.InfoContext(ctx, "resumer started", "interval", r.interval)
}

// Stop halts polling and waits for the batch in progress to finish.
func (r *Resumer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}

	r.ticker.Stop()
	close(r.done)
	<-r.stopped

	r.started = false
	r.logger.Info("resumer stopped")
}

func (r *Resumer) poll(ctx context.Context) {
	defer close(r.stopped)

	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		case <-r.ticker.C:
			_, err := r.ResumeDue(ctx, time.Now().UTC())
			if err != nil {
				r.logger.ErrorContext(ctx, "failed to claim due continuations", "error", err)
			}
		}
	}
}

// ResumeDue claims every continuation due at now and resumes each one. It
// returns how many were claimed. A failing resume is logged and does not
// stop the others; its continuation comes due again when the lease expires.
func (r *Resumer) ResumeDue(ctx context.Context, now time.Time) (int, error) {
	claimed := 0

	for {
		due, err := r.continuations.ClaimDue(ctx, now, r.lease, r.batch)
		if err != nil {
			return claimed, err
		}

		if len(due) == 0 {
			return claimed, nil
		}

		claimed += len(due)
		r.logger.InfoContext(ctx, "resuming due executions", "count", len(due))

		group := new(errgroup.Group)
		group.SetLimit(r.concurrency)

		for _, continuation := range due {
			group.Go(func() error {
				_, err := r.executor.Resume(ctx, continuation)
				if err != nil {
					r.logger.ErrorContext(ctx, "failed to resume execution",
						"execution_id", continuation.ExecutionID,
						"continuation_id", continuation.ID,
						"retry_at", now.Add(r.lease),
						"error", err)

					return nil
				}

				if err := r.continuations.Complete(ctx, continuation.ID); err != nil {
					r.logger.ErrorContext(ctx, "failed to complete continuation",
						"continuation_id", continuation.ID,
						"error", err)
				}

				return nil
			})
		}

		_ = group.Wait()

		if len(due) < r.batch {
			return claimed, nil
		}
	}
}
