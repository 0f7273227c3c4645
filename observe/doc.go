// Package observe provides observability primitives for the gateway core.
//
// It is a pure instrumentation library: no policy decisions, no transport,
// no I/O beyond exporter setup. The resilience Orchestrator takes a Logger,
// Metrics and Tracer from here; the gateway binary builds them from an
// Observer.
//
// Logging is structured JSON backed by zap. Metrics and traces use
// OpenTelemetry, with exporters selected by name (otlp, prometheus, stdout,
// none).
package observe
