package otelhelper

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	FailureReasonKey = "autoflow.failure.reason"
	ActionIndexKey   = "autoflow.action.index"
	ContinuedKey     = "autoflow.action.continued"

	// ReasonActionFailed marks an execution ended by a failing action.
	ReasonActionFailed = "action_failed"
	// ReasonInterrupted marks an execution that stopped on a store or bus error.
	ReasonInterrupted = "interrupted"
)

// ActionFailure locates a failed action inside its workflow.
type ActionFailure struct {
	ActionID   string
	ActionType string
	Path       string
	Index      int
	// Continued is set when the action allows the workflow to go on.
	Continued bool
}

func (f ActionFailure) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ActionIDKey, f.ActionID),
		attribute.String(ActionTypeKey, f.ActionType),
		attribute.String(ActionPathKey, f.Path),
		attribute.Int(ActionIndexKey, f.Index),
		attribute.Bool(ContinuedKey, f.Continued),
	}
}

// FailAction records err on an action span. A failure the workflow
// continues past keeps the span status unset.
func FailAction(span trace.Span, err error, failure ActionFailure) {
	attrs := failure.attributes()

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.AddEvent("action_failed", trace.WithAttributes(attrs...))

	if !failure.Continued {
		span.SetStatus(codes.Error, fmt.Sprintf("action %s failed: %v", failure.ActionID, err))
	}
}

// FailExecution marks an execution span failed for reason.
func FailExecution(span trace.Span, err error, reason string, attrs ...attribute.KeyValue) {
	attrs = append([]attribute.KeyValue{attribute.String(FailureReasonKey, reason)}, attrs...)

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("execution_failed", trace.WithAttributes(attrs...))
}
