package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/config"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/services"
	"github.com/dukex/autoflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// Config carries what every autoflow process needs to assemble its runtime.
type Config struct {
	ServiceName         string
	DatabaseURL         string
	ContinuationURL     string
	EventBus            string
	KafkaBrokers        string
	OtelEnabled         bool
	DispatchConcurrency int
	ResumeInterval      time.Duration
	TemplatesPath       string
}

// Runtime is the wired engine shared by the API and the worker.
type Runtime struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Registry    *actions.Registry
	Definitions *services.Definitions
	Executions  *services.Executions
	Templates   *services.Templates
	Executor    *workflow.Executor
	Dispatcher  *workflow.Dispatcher
	Resumer     *workflow.Resumer

	shutdownTracer otelhelper.ShutdownFunc
	logger         *slog.Logger
}

// NewRuntime builds the engine described by cfg. Whatever was opened before
// a failure is closed again.
func NewRuntime(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	store, err := NewPersistence(ctx, logger, cfg.DatabaseURL, cfg.ContinuationURL)
	if err != nil {
		return nil, err
	}

	rt.Persistence = store

	rt.EventBus, err = NewEventBus(cfg.EventBus, cfg.ServiceName, cfg.KafkaBrokers, cfg.OtelEnabled, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}

	rt.Registry, err = NewRegistry(rt.EventBus, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}

	var tracer trace.Tracer
	if cfg.OtelEnabled {
		tracer, rt.shutdownTracer, err = otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize tracer: %w", err), rt.Close(ctx))
		}
	}

	rt.Definitions = services.NewDefinitions(rt.Persistence)
	rt.Executions = services.NewExecutions(rt.Persistence, logger)
	rt.Templates = services.NewTemplates(rt.Persistence, rt.Definitions, logger)
	rt.Executor = workflow.NewExecutor(rt.Persistence, rt.Executions, rt.Registry, rt.EventBus, tracer, logger)
	rt.Dispatcher = workflow.NewDispatcher(rt.Persistence, rt.Executions, rt.Executor, cfg.DispatchConcurrency, logger)
	rt.Resumer = workflow.NewResumer(rt.Persistence.Continuations(), rt.Executor, cfg.ResumeInterval, logger)

	if cfg.TemplatesPath != "" {
		if _, err := rt.SeedTemplates(ctx, cfg.TemplatesPath); err != nil {
			return nil, errors.Join(err, rt.Close(ctx))
		}
	}

	return rt, nil
}

// SeedTemplates upserts every template file found in dir.
func (rt *Runtime) SeedTemplates(ctx context.Context, dir string) (int, error) {
	templates, err := config.LoadTemplates(dir)
	if err != nil {
		return 0, err
	}

	if err := rt.Templates.Seed(ctx, templates); err != nil {
		return 0, err
	}

	return len(templates), nil
}

// Close stops the resumer and releases the bus, the tracer and the store.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	if rt.Resumer != nil {
		rt.Resumer.Stop()
	}

	if rt.EventBus != nil {
		if err := rt.EventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
		}
	}

	if rt.shutdownTracer != nil {
		if err := rt.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}

	if rt.Persistence != nil {
		if err := rt.Persistence.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close persistence: %w", err))
		}
	}

	return errors.Join(errs...)
}
