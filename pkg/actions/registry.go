package actions

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrHandlerNotRegistered = errors.New("no handler registered for action type")
	ErrNotHandlerType       = errors.New("action type is not dispatched to handlers")
	ErrInvalidConfig        = errors.New("invalid action config")
)

// Registry is the closed table of handlers keyed by action type.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[models.ActionType]Handler
	schemas  map[models.ActionType]*gojsonschema.Schema
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "action_registry"),
		handlers: make(map[models.ActionType]Handler),
		schemas:  make(map[models.ActionType]*gojsonschema.Schema),
	}
}

// Register binds handler to actionType, replacing any previous binding. Only
// handler action types are accepted; delay and conditional are run by the
// executor itself.
func (r *Registry) Register(actionType models.ActionType, handler Handler) error {
	if !models.IsHandlerActionType(actionType) {
		return fmt.Errorf("%w: %s", ErrNotHandlerType, actionType)
	}

	var schema *gojsonschema.Schema

	if provider, ok := handler.(SchemaProvider); ok {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(provider.Schema()))
		if err != nil {
			return fmt.Errorf("invalid config schema for %s: %w", actionType, err)
		}

		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[actionType] = handler

	if schema != nil {
		r.schemas[actionType] = schema
	} else {
		delete(r.schemas, actionType)
	}

	r.logger.Debug("registered action handler", "action_type", actionType)

	return nil
}

func (r *Registry) Get(actionType models.ActionType) (Handler, error) { //nolint:ireturn // registry lookup
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, actionType)
	}

	return handler, nil
}

// Types lists the registered action types in sorted order.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ActionType, 0, len(r.handlers))
	for actionType := range r.handlers {
		types = append(types, actionType)
	}

	slices.Sort(types)

	return types
}

// Missing lists the handler action types nothing is registered for.
func (r *Registry) Missing() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []models.ActionType

	for _, actionType := range models.HandlerActionTypes() {
		if _, ok := r.handlers[actionType]; !ok {
			missing = append(missing, actionType)
		}
	}

	return missing
}

// ValidateConfig checks config against the handler's schema, if it has one.
func (r *Registry) ValidateConfig(actionType models.ActionType, config map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[actionType]
	r.mu.RUnlock()

	if !ok {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
}
