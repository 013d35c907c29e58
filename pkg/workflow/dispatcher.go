package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/conditions"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/services"
	"golang.org/x/sync/errgroup"
)

const DefaultDispatchConcurrency = 8

// DispatchResult is the outcome of one matched definition.
type DispatchResult struct {
	WorkflowID  string                 `json:"workflow_id"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	Duplicate   bool                   `json:"duplicate,omitempty"`
	Gated       bool                   `json:"gated,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Err         error                  `json:"-"`
}

// Dispatcher turns stimuli into executions of every matching active definition.
type Dispatcher struct {
	persistence persistence.Persistence
	executions  *services.Executions
	executor    *Executor
	seen        *seenKeys
	concurrency int
	logger      *slog.Logger
}

func NewDispatcher(
	persistence persistence.Persistence,
	executions *services.Executions,
	executor *Executor,
	concurrency int,
	logger *slog.Logger,
) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultDispatchConcurrency
	}

	return &Dispatcher{
		persistence: persistence,
		executions:  executions,
		executor:    executor,
		seen:        newSeenKeys(),
		concurrency: concurrency,
		logger:      logger.With("module", "dispatcher"),
	}
}

// match is one definition selected by a stimulus together with what its
// execution starts from.
type match struct {
	definition  *models.WorkflowDefinition
	triggeredBy models.TriggeredBy
	triggerData map[string]any
	token       string
	noDedup     bool
	rejected    error
}

// Dispatch runs every definition the stimulus matches. Matches are processed
// concurrently and in isolation; a failing match is reported in its result
// and never affects the others. The returned error is reserved for problems
// with the stimulus itself, such as a manual run of a non-manual workflow.
func (d *Dispatcher) Dispatch(ctx context.Context, stimulus models.Stimulus) ([]DispatchResult, error) {
	matches, err := d.match(ctx, stimulus)
	if err != nil {
		return nil, err
	}

	d.logger.DebugContext(ctx, "stimulus matched", "kind", stimulus.Kind(), "matches", len(matches))

	results := make([]DispatchResult, len(matches))

	group := new(errgroup.Group)
	group.SetLimit(d.concurrency)

	for i, m := range matches {
		group.Go(func() error {
			results[i] = d.process(ctx, m)

			return nil
		})
	}

	_ = group.Wait()

	return results, nil
}

func (d *Dispatcher) match(ctx context.Context, stimulus models.Stimulus) ([]match, error) {
	switch s := stimulus.(type) {
	case models.EventStimulus:
		return d.matchEvent(ctx, s)
	case *models.EventStimulus:
		return d.matchEvent(ctx, *s)
	case models.ScheduleTick:
		return d.matchSchedule(ctx, s)
	case *models.ScheduleTick:
		return d.matchSchedule(ctx, *s)
	case models.WebhookStimulus:
		return d.matchWebhook(ctx, s)
	case *models.WebhookStimulus:
		return d.matchWebhook(ctx, *s)
	case models.ManualStimulus:
		return d.matchManual(ctx, s)
	case *models.ManualStimulus:
		return d.matchManual(ctx, *s)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownStimulus, stimulus)
	}
}

func (d *Dispatcher) matchEvent(ctx context.Context, s models.EventStimulus) ([]match, error) {
	if strings.TrimSpace(s.EventType) == "" {
		return nil, services.NewValidationError("Dispatch", "INVALID_EVENT", "event_type is required", services.ErrInvalidRequest)
	}

	definitions, err := d.persistence.Definitions().FindActiveByTrigger(ctx, persistence.TriggerFilter{
		Kind:      models.TriggerKindEvent,
		EventType: s.EventType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find event workflows: %w", err)
	}

	payload := orEmpty(s.Payload)
	matches := make([]match, 0, len(definitions))

	for _, definition := range definitions {
		if s.OwnerID != "" && definition.OwnerID != s.OwnerID {
			continue
		}

		matches = append(matches, match{
			definition:  definition,
			triggeredBy: models.TriggeredByEvent,
			triggerData: payload,
			token:       s.DeliveryID,
		})
	}

	return matches, nil
}

func (d *Dispatcher) matchSchedule(ctx context.Context, s models.ScheduleTick) ([]match, error) {
	definitions, err := d.persistence.Definitions().FindActiveByTrigger(ctx, persistence.TriggerFilter{
		Kind:       models.TriggerKindSchedule,
		WorkflowID: s.Criteria.WorkflowID,
		Expression: s.Criteria.Expression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find scheduled workflows: %w", err)
	}

	firedAt := s.FiredAt.UTC().Format(time.RFC3339Nano)
	matches := make([]match, 0, len(definitions))

	for _, definition := range definitions {
		matches = append(matches, match{
			definition:  definition,
			triggeredBy: models.TriggeredBySchedule,
			triggerData: map[string]any{
				"fired_at":   firedAt,
				"expression": definition.TriggerConfig.Expression,
			},
			token: firedAt,
		})
	}

	return matches, nil
}

func (d *Dispatcher) matchWebhook(ctx context.Context, s models.WebhookStimulus) ([]match, error) {
	definitions, err := d.persistence.Definitions().FindActiveByTrigger(ctx, persistence.TriggerFilter{
		Kind:      models.TriggerKindWebhook,
		WebhookID: s.WebhookID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find webhook workflows: %w", err)
	}

	payload := DecodeWebhookPayload(s.RawPayload)
	matches := make([]match, 0, len(definitions))

	for _, definition := range definitions {
		m := match{
			definition:  definition,
			triggeredBy: models.TriggeredByWebhook,
			triggerData: payload,
			token:       s.DeliveryID,
		}

		if schema := definition.TriggerConfig.Schema; len(schema) > 0 {
			m.rejected = services.ValidateWebhookPayload(schema, payload)
		}

		matches = append(matches, m)
	}

	return matches, nil
}

func (d *Dispatcher) matchManual(ctx context.Context, s models.ManualStimulus) ([]match, error) {
	definition, err := d.persistence.Definitions().GetByID(ctx, s.WorkflowID)
	if err != nil {
		return nil, err
	}

	if definition.OwnerID != s.RequestedBy {
		return nil, persistence.NewDefinitionError("Dispatch", s.WorkflowID, persistence.ErrDefinitionNotFound)
	}

	if definition.TriggerConfig.Kind != models.TriggerKindManual {
		return nil, services.NewValidationError(
			"Dispatch",
			"NOT_MANUAL_TRIGGER",
			fmt.Sprintf("workflow %s is triggered by %s, not manually", definition.ID, definition.TriggerConfig.Kind),
			services.ErrNotManualTrigger,
		)
	}

	if !definition.IsActive() {
		return nil, &services.ServiceError{
			Op:      "Dispatch",
			Code:    "WORKFLOW_INACTIVE",
			Message: fmt.Sprintf("workflow %s is %s", definition.ID, definition.Status),
			Err:     services.ErrWorkflowInactive,
		}
	}

	return []match{{
		definition:  definition,
		triggeredBy: models.TriggeredByUser,
		triggerData: orEmpty(s.Payload),
		token:       s.IdempotencyKey,
		noDedup:     s.IdempotencyKey == "",
	}}, nil
}

func (d *Dispatcher) process(ctx context.Context, m match) DispatchResult {
	result := DispatchResult{WorkflowID: m.definition.ID}
	logger := d.logger.With("workflow_id", m.definition.ID)

	if m.rejected != nil {
		return withError(result, m.rejected)
	}

	var key string
	if !m.noDedup {
		key = DedupKey(m.definition.ID, m.definition.TriggerConfig.Kind, m.token, m.triggerData)
	}

	if executionID, ok := d.seen.lookup(key); ok {
		result.ExecutionID = executionID
		result.Duplicate = true

		if existing, err := d.persistence.Executions().GetByID(ctx, executionID); err == nil {
			result.Status = existing.Status
		}

		return result
	}

	execution, err := d.executions.Create(ctx, m.definition.ID, m.definition.OwnerID, services.CreateExecutionInput{
		TriggeredBy: m.triggeredBy,
		TriggerData: m.triggerData,
		DedupKey:    key,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateExecution) && execution != nil {
			d.seen.remember(key, execution.ID)
			logger.InfoContext(ctx, "duplicate stimulus ignored", "execution_id", execution.ID)

			result.ExecutionID = execution.ID
			result.Status = execution.Status
			result.Duplicate = true

			return result
		}

		logger.ErrorContext(ctx, "failed to create execution", "error", err)

		return withError(result, err)
	}

	d.seen.remember(key, execution.ID)
	result.ExecutionID = execution.ID

	// the execution outlives a caller that stops waiting for it
	runCtx := context.WithoutCancel(ctx)

	if !conditions.Evaluate(m.definition.Conditions, conditions.NewContext(m.triggerData, nil)) {
		gated, err := d.executor.CompleteGated(runCtx, execution)
		if err != nil {
			return withError(result, err)
		}

		logger.InfoContext(ctx, "entry conditions not met", "execution_id", execution.ID)

		result.Gated = true
		result.Status = gated.Status

		return result
	}

	finished, err := d.executor.Start(runCtx, m.definition, execution)
	if finished != nil {
		result.Status = finished.Status
	}

	if err != nil {
		return withError(result, err)
	}

	return result
}

// DecodeWebhookPayload returns the body as a JSON object, or wraps anything
// else as {"raw": "<text>"}.
func DecodeWebhookPayload(raw []byte) map[string]any {
	var payload map[string]any

	err := json.Unmarshal(raw, &payload)
	if err != nil || payload == nil {
		return map[string]any{"raw": string(raw)}
	}

	return payload
}

func withError(result DispatchResult, err error) DispatchResult {
	result.Err = err
	result.Error = err.Error()

	return result
}

func orEmpty(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}

	return payload
}
