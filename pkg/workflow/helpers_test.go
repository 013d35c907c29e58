package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/stretchr/testify/require"
)

var errHandlerFailed = errors.New("handler failed")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recorder is a handler for every handler action type that remembers what
// ran and fails or panics on request.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	configs map[string]map[string]any
	fail    map[string]bool
	panics  map[string]bool
	hooks   map[string]func(actions.ExecutionContext)
}

func newRecorder() *recorder {
	return &recorder{
		configs: map[string]map[string]any{},
		fail:    map[string]bool{},
		panics:  map[string]bool{},
		hooks:   map[string]func(actions.ExecutionContext){},
	}
}

func (r *recorder) Execute(
	_ context.Context,
	config map[string]any,
	executionCtx actions.ExecutionContext,
	_ *slog.Logger,
) (any, error) {
	r.mu.Lock()
	r.calls = append(r.calls, executionCtx.ActionID)
	r.configs[executionCtx.ActionID] = config
	fail := r.fail[executionCtx.ActionID]
	panics := r.panics[executionCtx.ActionID]
	hook := r.hooks[executionCtx.ActionID]
	r.mu.Unlock()

	if hook != nil {
		hook(executionCtx)
	}

	if panics {
		panic("boom")
	}

	if fail {
		return nil, errHandlerFailed
	}

	return map[string]any{"done": executionCtx.ActionID}, nil
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func (r *recorder) Config(actionID string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.configs[actionID]
}

// publisher records published lifecycle event types per execution.
type publisher struct {
	mu     sync.Mutex
	events map[string][]events.EventType
}

func (p *publisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.events == nil {
		p.events = map[string][]events.EventType{}
	}

	p.events[key] = append(p.events[key], event.GetType())

	return nil
}

func (p *publisher) For(executionID string) []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]events.EventType(nil), p.events[executionID]...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type harness struct {
	persistence persistence.Persistence
	executions  *services.Executions
	registry    *actions.Registry
	recorder    *recorder
	publisher   *publisher
	clock       *clock
	executor    *Executor
	dispatcher  *Dispatcher
	resumer     *Resumer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := testLogger()
	p := file.NewPersistence(t.TempDir())
	executions := services.NewExecutions(p, logger)
	registry := actions.NewRegistry(logger)
	rec := newRecorder()
	pub := &publisher{}
	clk := &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}

	for _, actionType := range models.HandlerActionTypes() {
		require.NoError(t, registry.Register(actionType, rec))
	}

	executor := NewExecutor(p, executions, registry, pub, nil, logger)
	executor.now = clk.Now

	return &harness{
		persistence: p,
		executions:  executions,
		registry:    registry,
		recorder:    rec,
		publisher:   pub,
		clock:       clk,
		executor:    executor,
		dispatcher:  NewDispatcher(p, executions, executor, 4, logger),
		resumer:     NewResumer(p.Continuations(), executor, time.Second, logger),
	}
}

func (h *harness) save(t *testing.T, definitions ...*models.WorkflowDefinition) {
	t.Helper()

	for _, definition := range definitions {
		require.NoError(t, h.persistence.Definitions().Save(t.Context(), definition))
	}
}

func (h *harness) execution(t *testing.T, id string) *models.WorkflowExecution {
	t.Helper()

	execution, err := h.persistence.Executions().GetByID(t.Context(), id)
	require.NoError(t, err)

	return execution
}

func (h *harness) dispatchOne(t *testing.T, stimulus models.Stimulus) DispatchResult {
	t.Helper()

	results, err := h.dispatcher.Dispatch(t.Context(), stimulus)
	require.NoError(t, err)
	require.Len(t, results, 1)

	return results[0]
}

func logPaths(execution *models.WorkflowExecution) []string {
	paths := make([]string, 0, len(execution.ExecutionLog))
	for _, entry := range execution.ExecutionLog {
		paths = append(paths, entry.Path+":"+string(entry.Outcome))
	}

	return paths
}

func overdue(payload map[string]any, deliveryID string) models.EventStimulus {
	return models.EventStimulus{
		EventType:  models.EventInvoiceOverdue,
		Payload:    payload,
		DeliveryID: deliveryID,
	}
}
