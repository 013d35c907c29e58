// Package otelhelper provides distributed tracing for workflow executions.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Common attribute keys.
	WorkflowIDKey  = "autoflow.workflow.id"
	OwnerIDKey     = "autoflow.owner.id"
	ExecutionIDKey = "autoflow.execution.id"
	ActionIDKey    = "autoflow.action.id"
	ActionTypeKey  = "autoflow.action.type"
	ActionPathKey  = "autoflow.action.path"
	TriggerKindKey = "autoflow.trigger.kind"
	EventTypeKey   = "autoflow.event.type"
)

// ShutdownFunc flushes and stops a tracer provider.
type ShutdownFunc func(context.Context) error

// NewTracer exports spans over OTLP/HTTP, configured through the standard
// OTEL_EXPORTER_OTLP_* environment variables.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, ShutdownFunc, error) {
	provider, err := newTracerProvider(ctx, serviceName)
	if err != nil {
		return nil, nil, err
	}

	return provider.Tracer(serviceName), provider.Shutdown, nil
}

// NoopTracer records nothing. Used when tracing is disabled and in tests.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("autoflow")
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
