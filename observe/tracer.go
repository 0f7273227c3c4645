package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OperationMeta identifies a protected operation for telemetry.
type OperationMeta struct {
	ID         string   // Operation id, e.g. "email.send" (required)
	Dependency string   // Downstream dependency name (optional)
	Tags       []string // Free-form tags (optional)
}

// SpanName returns the deterministic span name for this operation.
// Format: resilience.execute.<id>
func (m OperationMeta) SpanName() string {
	if m.ID == "" {
		return "resilience.execute"
	}
	return "resilience.execute." + m.ID
}

// Validate reports ErrMissingOperationID when ID is empty.
func (m OperationMeta) Validate() error {
	if m.ID == "" {
		return ErrMissingOperationID
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with one span per orchestrated call.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for an orchestrated call.
	StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span)

	// EndSpan records the outcome reason and any error, then ends the span.
	EndSpan(span trace.Span, reason string, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation.id", meta.ID),
	}
	if meta.Dependency != "" {
		attrs = append(attrs, attribute.String("operation.dependency", meta.Dependency))
	}
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("operation.tags", meta.Tags))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, reason string, err error) {
	span.SetAttributes(attribute.String("resilience.reason", reason))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a Tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OperationMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ string, _ error) {
	span.End()
}
