package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records resilience decisions.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOutcome records one orchestrated call, bucketed by reason.
	RecordOutcome(ctx context.Context, meta OperationMeta, reason string, duration time.Duration)

	// RecordBlock records a caller being blocked.
	RecordBlock(ctx context.Context, meta OperationMeta, violations int64, duration time.Duration)

	// RecordBreakerTransition records a circuit state change.
	RecordBreakerTransition(ctx context.Context, meta OperationMeta, from, to string)

	// RecordStoreFallback records a decision made without the shared store.
	RecordStoreFallback(ctx context.Context, policy string, allowed bool)
}

type metricsImpl struct {
	outcomeCount    metric.Int64Counter
	outcomeDuration metric.Float64Histogram
	blockCount      metric.Int64Counter
	blockDuration   metric.Float64Histogram
	transitions     metric.Int64Counter
	fallbacks       metric.Int64Counter
}

// NewMetrics creates the resilience instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{}
	var err error

	if m.outcomeCount, err = meter.Int64Counter(
		"resilience.outcome.total",
		metric.WithDescription("Orchestrated calls by outcome reason"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.outcomeDuration, err = meter.Float64Histogram(
		"resilience.outcome.duration_ms",
		metric.WithDescription("Orchestrated call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.blockCount, err = meter.Int64Counter(
		"resilience.block.total",
		metric.WithDescription("Callers blocked after exceeding their rate limit"),
		metric.WithUnit("{block}"),
	); err != nil {
		return nil, err
	}

	if m.blockDuration, err = meter.Float64Histogram(
		"resilience.block.duration_ms",
		metric.WithDescription("Block durations in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.transitions, err = meter.Int64Counter(
		"resilience.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}

	if m.fallbacks, err = meter.Int64Counter(
		"resilience.store.fallback",
		metric.WithDescription("Rate limit decisions made while the shared store was unavailable"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordOutcome(ctx context.Context, meta OperationMeta, reason string, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("operation.id", meta.ID),
		attribute.String("reason", reason),
	)
	m.outcomeCount.Add(ctx, 1, opt)
	m.outcomeDuration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordBlock(ctx context.Context, meta OperationMeta, violations int64, duration time.Duration) {
	opt := metric.WithAttributes(attribute.String("operation.id", meta.ID))
	m.blockCount.Add(ctx, 1, opt)
	m.blockDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, meta OperationMeta, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation.id", meta.ID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *metricsImpl) RecordStoreFallback(ctx context.Context, policy string, allowed bool) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.Bool("allowed", allowed),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordOutcome(context.Context, OperationMeta, string, time.Duration)    {}
func (noopMetrics) RecordBlock(context.Context, OperationMeta, int64, time.Duration)       {}
func (noopMetrics) RecordBreakerTransition(context.Context, OperationMeta, string, string) {}
func (noopMetrics) RecordStoreFallback(context.Context, string, bool)                      {}
