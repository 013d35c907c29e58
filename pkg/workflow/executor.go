package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/conditions"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/dukex/autoflow/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrStaleCursor is returned when a resume position no longer exists in the
// definition, typically because it was edited while the execution waited.
var ErrStaleCursor = errors.New("resume position no longer matches the definition")

type outcome int

const (
	outcomeContinue outcome = iota
	outcomeSuspended
	outcomeFailed
	outcomeStopped
)

// Executor runs the actions of one execution strictly in order. Delays
// suspend the execution into a continuation instead of sleeping.
type Executor struct {
	persistence persistence.Persistence
	executions  *services.Executions
	registry    *actions.Registry
	tracer      trace.Tracer
	notify      notifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewExecutor creates an executor. publisher may be nil to skip lifecycle
// events and tracer may be nil to skip tracing.
func NewExecutor(
	persistence persistence.Persistence,
	executions *services.Executions,
	registry *actions.Registry,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Executor {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	logger = logger.With("module", "workflow_executor")

	return &Executor{
		persistence: persistence,
		executions:  executions,
		registry:    registry,
		tracer:      tracer,
		notify:      notifier{publisher: publisher, logger: logger},
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// run is the mutable state of one pass over a definition.
type run struct {
	definition *models.WorkflowDefinition
	execution  *models.WorkflowExecution
	results    map[string]any
	logger     *slog.Logger

	failure     *ActionError
	suspendedBy string
	resumeAt    time.Time
}

func (r *run) templateData() map[string]any {
	data := template.Data(r.execution)
	data["results"] = r.results

	return data
}

// Start moves a pending execution to running and runs it from the first
// action. It returns the execution as last recorded.
func (e *Executor) Start(
	ctx context.Context,
	definition *models.WorkflowDefinition,
	execution *models.WorkflowExecution,
) (*models.WorkflowExecution, error) {
	running := models.ExecutionStatusRunning

	updated, err := e.executions.Update(ctx, execution.ID, execution.OwnerID, services.ExecutionPatch{Status: &running})
	if err != nil {
		if errors.Is(err, services.ErrExecutionTerminal) {
			e.logger.InfoContext(ctx, "execution ended before it started", "execution_id", execution.ID)

			return e.executions.Get(ctx, execution.ID, execution.OwnerID)
		}

		return nil, fmt.Errorf("failed to start execution %s: %w", execution.ID, err)
	}

	e.notify.started(ctx, updated)

	return e.run(ctx, definition, updated, models.Cursor{{Index: 0}})
}

// Resume re-enters a suspended execution at the continuation's cursor.
// Executions that were cancelled or removed meanwhile are skipped.
func (e *Executor) Resume(ctx context.Context, continuation *models.Continuation) (*models.WorkflowExecution, error) {
	logger := e.logger.With("execution_id", continuation.ExecutionID, "continuation_id", continuation.ID)

	execution, err := e.executions.Get(ctx, continuation.ExecutionID, continuation.OwnerID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			logger.WarnContext(ctx, "dropping continuation of unknown execution")

			return nil, nil
		}

		return nil, err
	}

	if execution.Status != models.ExecutionStatusRunning {
		logger.InfoContext(ctx, "skipping continuation", "status", execution.Status)

		return execution, nil
	}

	definition, err := e.persistence.Definitions().GetByID(ctx, continuation.WorkflowID)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return e.fail(ctx, &run{execution: execution, logger: logger}, &ActionError{
				Index: continuation.NextIndex,
				Path:  continuation.Cursor.String(),
				Err:   fmt.Errorf("workflow %s was deleted while the execution was suspended", continuation.WorkflowID),
			})
		}

		return nil, err
	}

	e.notify.resumed(ctx, execution)

	logger.InfoContext(ctx, "resuming execution", "cursor", continuation.Cursor.String())

	return e.run(ctx, definition, execution, continuation.Cursor)
}

// CompleteGated closes an execution whose entry conditions did not hold. It
// keeps an empty log so the stimulus stays auditable.
func (e *Executor) CompleteGated(ctx context.Context, execution *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	completed := models.ExecutionStatusCompleted

	updated, err := e.executions.Update(ctx, execution.ID, execution.OwnerID, services.ExecutionPatch{Status: &completed})
	if err != nil {
		return nil, err
	}

	e.notify.completed(ctx, updated)

	return updated, nil
}

// Cancel stops an execution. An action already running finishes and is
// logged; nothing after it starts.
func (e *Executor) Cancel(ctx context.Context, id, ownerID string) (*models.WorkflowExecution, error) {
	execution, err := e.executions.Cancel(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	e.notify.cancelled(ctx, execution)

	return execution, nil
}

func (e *Executor) run(
	ctx context.Context,
	definition *models.WorkflowDefinition,
	execution *models.WorkflowExecution,
	cursor models.Cursor,
) (*models.WorkflowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execution",
		attribute.String(otelhelper.WorkflowIDKey, definition.ID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.OwnerIDKey, execution.OwnerID),
	)
	defer span.End()

	results := maps.Clone(execution.Results)
	if results == nil {
		results = map[string]any{}
	}

	r := &run{
		definition: definition,
		execution:  execution,
		results:    results,
		logger:     e.logger.With("workflow_id", definition.ID, "execution_id", execution.ID),
	}

	result, err := e.runList(ctx, r, definition.Actions, cursor, nil)
	if err != nil {
		otelhelper.FailExecution(span, err, otelhelper.ReasonInterrupted)
		r.logger.ErrorContext(ctx, "execution interrupted", "error", err)

		return r.execution, err
	}

	switch result {
	case outcomeSuspended:
		r.logger.InfoContext(ctx, "execution suspended", "action_id", r.suspendedBy, "resume_at", r.resumeAt)
		e.notify.suspended(ctx, r.execution, r.suspendedBy, r.resumeAt)

		return r.execution, nil
	case outcomeFailed:
		otelhelper.FailExecution(span, r.failure, otelhelper.ReasonActionFailed,
			attribute.String(otelhelper.ActionIDKey, r.failure.ActionID),
			attribute.String(otelhelper.ActionPathKey, r.failure.Path))

		return e.fail(ctx, r, r.failure)
	case outcomeStopped:
		r.logger.InfoContext(ctx, "execution stopped", "status", r.execution.Status)

		return r.execution, nil
	default:
		return e.complete(ctx, r)
	}
}

func (e *Executor) complete(ctx context.Context, r *run) (*models.WorkflowExecution, error) {
	completed := models.ExecutionStatusCompleted

	updated, err := e.executions.Update(ctx, r.execution.ID, r.execution.OwnerID, services.ExecutionPatch{Status: &completed})
	if err != nil {
		if errors.Is(err, services.ErrExecutionTerminal) {
			return e.executions.Get(ctx, r.execution.ID, r.execution.OwnerID)
		}

		return r.execution, fmt.Errorf("failed to complete execution %s: %w", r.execution.ID, err)
	}

	r.logger.InfoContext(ctx, "execution completed", "actions_logged", len(updated.ExecutionLog))
	e.notify.completed(ctx, updated)

	return updated, nil
}

func (e *Executor) fail(ctx context.Context, r *run, actionErr *ActionError) (*models.WorkflowExecution, error) {
	failed := models.ExecutionStatusFailed
	message := actionErr.Error()

	updated, err := e.executions.Update(ctx, r.execution.ID, r.execution.OwnerID, services.ExecutionPatch{
		Status:       &failed,
		Error:        &message,
		ErrorDetails: actionErr.Details(),
	})
	if err != nil {
		if errors.Is(err, services.ErrExecutionTerminal) {
			return e.executions.Get(ctx, r.execution.ID, r.execution.OwnerID)
		}

		return r.execution, fmt.Errorf("failed to mark execution %s failed: %w", r.execution.ID, err)
	}

	r.logger.WarnContext(ctx, "execution failed", "action_id", actionErr.ActionID, "error", actionErr.Err)
	e.notify.failed(ctx, updated, actionErr.ActionID)

	return updated, nil
}

// runList runs list from start. start is relative to list: a leading frame
// with a branch descends into that conditional first and continues after it.
func (e *Executor) runList(
	ctx context.Context,
	r *run,
	list models.Actions,
	start models.Cursor,
	prefix models.Cursor,
) (outcome, error) {
	begin := 0

	if len(start) > 0 {
		frame := start[0]
		begin = frame.Index

		if frame.Branch != "" {
			if frame.Index < 0 || frame.Index >= len(list) {
				return e.staleCursor(r, prefix, frame)
			}

			conditional, ok := list[frame.Index].(*models.ConditionalAction)
			if !ok {
				return e.staleCursor(r, prefix, frame)
			}

			result, err := e.runList(ctx, r, conditional.Branch(frame.Branch), start[1:], appendFrame(prefix, frame))
			if err != nil || result != outcomeContinue {
				return result, err
			}

			begin = frame.Index + 1
		}
	}

	for i := max(begin, 0); i < len(list); i++ {
		stopped, err := e.stopped(ctx, r)
		if err != nil {
			return outcomeContinue, err
		}

		if stopped {
			return outcomeStopped, nil
		}

		result, err := e.runAction(ctx, r, list[i], i, appendFrame(prefix, models.CursorFrame{Index: i}))
		if err != nil || result != outcomeContinue {
			return result, err
		}
	}

	return outcomeContinue, nil
}

func (e *Executor) staleCursor(r *run, prefix models.Cursor, frame models.CursorFrame) (outcome, error) {
	r.failure = &ActionError{
		Index: frame.Index,
		Path:  appendFrame(prefix, frame).String(),
		Err:   ErrStaleCursor,
	}

	return outcomeFailed, nil
}

// stopped re-reads the execution and reports whether it reached a terminal
// state from outside, such as a cancellation.
func (e *Executor) stopped(ctx context.Context, r *run) (bool, error) {
	current, err := e.executions.Get(ctx, r.execution.ID, r.execution.OwnerID)
	if err != nil {
		return false, fmt.Errorf("failed to reload execution %s: %w", r.execution.ID, err)
	}

	r.execution = current

	return current.Status.IsTerminal(), nil
}

func (e *Executor) runAction(
	ctx context.Context,
	r *run,
	action models.Action,
	index int,
	position models.Cursor,
) (outcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.action",
		attribute.String(otelhelper.ActionIDKey, action.ActionID()),
		attribute.String(otelhelper.ActionTypeKey, string(action.ActionType())),
		attribute.String(otelhelper.ActionPathKey, position.String()),
	)
	defer span.End()

	switch a := action.(type) {
	case *models.HandlerAction:
		return e.runHandler(ctx, r, a, index, position)
	case *models.DelayAction:
		return e.runDelay(ctx, r, a, index, position)
	case *models.ConditionalAction:
		return e.runConditional(ctx, r, a, index, position)
	default:
		now := e.now()

		return e.recordFailure(ctx, r, newEntry(action, index, position, now, now), &ActionError{
			ActionID:   action.ActionID(),
			ActionType: action.ActionType(),
			Index:      index,
			Path:       position.String(),
			Err:        fmt.Errorf("%w: %T", ErrUnsupportedAction, action),
		}, false)
	}
}

func (e *Executor) runHandler(
	ctx context.Context,
	r *run,
	action *models.HandlerAction,
	index int,
	position models.Cursor,
) (outcome, error) {
	startedAt := e.now()
	output, err := e.invoke(ctx, r, action)
	entry := newEntry(action, index, position, startedAt, e.now())

	if err != nil {
		return e.recordFailure(ctx, r, entry, &ActionError{
			ActionID:   action.ID,
			ActionType: action.Type,
			Index:      index,
			Path:       position.String(),
			Err:        err,
		}, action.ContinueOnError)
	}

	entry.Outcome = models.LogOutcomeSucceeded
	entry.Output = output
	r.results[action.ID] = output

	err = e.record(ctx, r, entry, map[string]any{action.ID: output})
	if err != nil {
		return outcomeContinue, err
	}

	return outcomeContinue, nil
}

func (e *Executor) invoke(ctx context.Context, r *run, action *models.HandlerAction) (output any, err error) {
	handler, err := e.registry.Get(action.Type)
	if err != nil {
		return nil, err
	}

	config, err := template.RenderConfig(action.Config, r.templateData())
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}

	err = e.registry.ValidateConfig(action.Type, config)
	if err != nil {
		return nil, err
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			output = nil
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()

	logger := r.logger.With("action_id", action.ID, "action_type", action.Type)

	return handler.Execute(ctx, config, actions.ExecutionContext{
		ExecutionID: r.execution.ID,
		WorkflowID:  r.execution.WorkflowID,
		OwnerID:     r.execution.OwnerID,
		ActionID:    action.ID,
		ActionType:  action.Type,
		TriggerData: r.execution.TriggerData,
		Results:     maps.Clone(r.results),
	}, logger)
}

func (e *Executor) runDelay(
	ctx context.Context,
	r *run,
	action *models.DelayAction,
	index int,
	position models.Cursor,
) (outcome, error) {
	now := e.now()
	entry := newEntry(action, index, position, now, now)

	if action.Duration.Std() <= 0 {
		entry.Outcome = models.LogOutcomeSkipped

		return outcomeContinue, e.record(ctx, r, entry, nil)
	}

	next := slices.Clone(position)
	next[len(next)-1].Index++

	continuation := &models.Continuation{
		ID:          uuid.New().String(),
		ExecutionID: r.execution.ID,
		WorkflowID:  r.execution.WorkflowID,
		OwnerID:     r.execution.OwnerID,
		ResumeAt:    now.Add(action.Duration.Std()),
		NextIndex:   next[0].Index,
		Cursor:      next,
		CreatedAt:   now,
	}

	err := e.persistence.Continuations().Schedule(ctx, continuation)
	if err != nil {
		return e.recordFailure(ctx, r, entry, &ActionError{
			ActionID:   action.ID,
			ActionType: models.ActionTypeDelay,
			Index:      index,
			Path:       position.String(),
			Err:        fmt.Errorf("failed to schedule continuation: %w", err),
		}, action.ContinueOnError)
	}

	entry.Outcome = models.LogOutcomeSuspended
	entry.Output = map[string]any{
		"resume_at":       continuation.ResumeAt,
		"continuation_id": continuation.ID,
	}

	err = e.record(ctx, r, entry, nil)
	if err != nil {
		return outcomeContinue, err
	}

	r.suspendedBy = action.ID
	r.resumeAt = continuation.ResumeAt

	return outcomeSuspended, nil
}

func (e *Executor) runConditional(
	ctx context.Context,
	r *run,
	action *models.ConditionalAction,
	index int,
	position models.Cursor,
) (outcome, error) {
	now := e.now()

	branch := models.BranchElse
	if conditions.Evaluate(action.Conditions, conditions.NewContext(r.execution.TriggerData, r.results)) {
		branch = models.BranchThen
	}

	output := map[string]any{"branch": string(branch)}

	entry := newEntry(action, index, position, now, e.now())
	entry.Outcome = models.LogOutcomeSucceeded
	entry.Output = output
	r.results[action.ID] = output

	err := e.record(ctx, r, entry, map[string]any{action.ID: output})
	if err != nil {
		return outcomeContinue, err
	}

	r.logger.DebugContext(ctx, "conditional branch selected", "action_id", action.ID, "branch", branch)

	branchPrefix := slices.Clone(position)
	branchPrefix[len(branchPrefix)-1].Branch = branch

	return e.runList(ctx, r, action.Branch(branch), nil, branchPrefix)
}

func (e *Executor) recordFailure(
	ctx context.Context,
	r *run,
	entry models.ExecutionLogEntry,
	actionErr *ActionError,
	continueOnError bool,
) (outcome, error) {
	entry.Outcome = models.LogOutcomeFailed
	entry.Error = actionErr.Err.Error()

	otelhelper.FailAction(trace.SpanFromContext(ctx), actionErr.Err, otelhelper.ActionFailure{
		ActionID:   actionErr.ActionID,
		ActionType: string(actionErr.ActionType),
		Path:       actionErr.Path,
		Index:      actionErr.Index,
		Continued:  continueOnError,
	})

	err := e.record(ctx, r, entry, nil)
	if err != nil {
		return outcomeContinue, err
	}

	if continueOnError {
		r.logger.WarnContext(ctx, "action failed, continuing",
			"action_id", actionErr.ActionID,
			"index", actionErr.Index,
			"error", actionErr.Err)

		return outcomeContinue, nil
	}

	r.failure = actionErr

	return outcomeFailed, nil
}

func (e *Executor) record(ctx context.Context, r *run, entry models.ExecutionLogEntry, results map[string]any) error {
	updated, err := e.executions.Update(ctx, r.execution.ID, r.execution.OwnerID, services.ExecutionPatch{
		LogAppend:    []models.ExecutionLogEntry{entry},
		ResultsMerge: results,
	})
	if err != nil {
		return fmt.Errorf("failed to record action %s: %w", entry.ActionID, err)
	}

	r.execution = updated

	return nil
}

func newEntry(action models.Action, index int, position models.Cursor, startedAt, endedAt time.Time) models.ExecutionLogEntry {
	return models.ExecutionLogEntry{
		ActionID:   action.ActionID(),
		ActionType: action.ActionType(),
		Index:      index,
		Path:       position.String(),
		StartedAt:  startedAt,
		EndedAt:    endedAt,
	}
}

func appendFrame(prefix models.Cursor, frame models.CursorFrame) models.Cursor {
	return slices.Concat(prefix, models.Cursor{frame})
}
