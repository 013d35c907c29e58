package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const DefaultRefreshInterval = 30 * time.Second

// TickFunc receives every tick the source fires.
type TickFunc func(ctx context.Context, tick models.ScheduleTick) error

type entry struct {
	id         cron.EntryID
	expression string
	timezone   string
}

// Source keeps one cron entry per active schedule-triggered definition and
// turns each firing into a ScheduleTick.
type Source struct {
	definitions persistence.DefinitionRepository
	onTick      TickFunc
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]entry
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewSource(
	definitions persistence.DefinitionRepository,
	onTick TickFunc,
	interval time.Duration,
	logger *slog.Logger,
) *Source {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	logger = logger.With("module", "schedule_source")

	return &Source{
		definitions: definitions,
		onTick:      onTick,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLogger{logger}),
				cron.Recover(cronLogger{logger}),
			),
		),
		entries: map[string]entry{},
	}
}

// Start loads the schedules, starts the cron runner and refreshes the
// entries every interval until Stop.
func (s *Source) Start(ctx context.Context) error {
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = make(chan struct{})
	s.cron.Start()

	go s.refreshLoop(ctx)

	s.logger.InfoContext(ctx, "schedule source started", "entries", len(s.entries), "refresh_interval", s.interval)

	return nil
}

// Stop halts the refresh loop and waits for running ticks to return.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-stopped
	<-s.cron.Stop().Done()

	s.logger.Info("schedule source stopped")
}

func (s *Source) refreshLoop(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.ErrorContext(ctx, "failed to refresh schedules", "error", err)
			}
		}
	}
}

// Refresh reconciles the cron entries with the active schedule definitions
// and returns how many entries are registered. Definitions with an
// unparsable expression are logged and skipped.
func (s *Source) Refresh(ctx context.Context) (int, error) {
	definitions, err := s.definitions.FindActiveByTrigger(ctx, persistence.TriggerFilter{Kind: models.TriggerKindSchedule})
	if err != nil {
		return 0, fmt.Errorf("failed to load scheduled workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(definitions))

	for _, definition := range definitions {
		trigger := definition.TriggerConfig
		wanted[definition.ID] = struct{}{}

		current, ok := s.entries[definition.ID]
		if ok && current.expression == trigger.Expression && current.timezone == trigger.Timezone {
			continue
		}

		if ok {
			s.cron.Remove(current.id)
			delete(s.entries, definition.ID)
		}

		schedule, err := Parse(trigger.Expression, trigger.Timezone)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping workflow with invalid schedule",
				"workflow_id", definition.ID,
				"expression", trigger.Expression,
				"error", err)

			continue
		}

		id := s.cron.Schedule(schedule, cron.FuncJob(s.job(definition.ID, trigger.Expression)))
		s.entries[definition.ID] = entry{id: id, expression: trigger.Expression, timezone: trigger.Timezone}

		s.logger.DebugContext(ctx, "schedule registered", "workflow_id", definition.ID, "expression", trigger.Expression)
	}

	for workflowID, current := range s.entries {
		if _, ok := wanted[workflowID]; !ok {
			s.cron.Remove(current.id)
			delete(s.entries, workflowID)

			s.logger.DebugContext(ctx, "schedule removed", "workflow_id", workflowID)
		}
	}

	return len(s.entries), nil
}

// Workflows returns the ids of the scheduled definitions.
func (s *Source) Workflows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (s *Source) job(workflowID, expression string) func() {
	return func() {
		s.fire(context.Background(), workflowID, expression)
	}
}

// fire truncates the firing time to the minute so replicas firing the same
// entry produce the same tick.
func (s *Source) fire(ctx context.Context, workflowID, expression string) {
	tick := models.ScheduleTick{
		Criteria: models.MatchCriteria{WorkflowID: workflowID, Expression: expression},
		FiredAt:  s.now().UTC().Truncate(time.Minute),
	}

	s.logger.InfoContext(ctx, "schedule fired", "workflow_id", workflowID, "fired_at", tick.FiredAt)

	if err := s.onTick(ctx, tick); err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch schedule tick", "workflow_id", workflowID, "error", err)
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
