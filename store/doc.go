// Package store provides the shared state behind rate limiting and blocking.
//
// A Store owns two kinds of records:
//
//   - Windows: fixed-window counters keyed by identity. ConsumeWindow
//     initializes, resets and decrements a window in one atomic step.
//   - Blocks: escalating block entries keyed by identity. RecordViolation
//     increments the violation count and computes the next block duration
//     in one atomic step.
//
// Two implementations are provided. MemoryStore keeps state in process and
// suits tests and single-instance deployments. RedisStore keeps state in
// Redis so every gateway instance sees the same counters; each mutation is a
// single Lua script round trip.
//
// All time values are supplied by the caller, which keeps implementations
// deterministic under test and immune to clock skew between store replicas.
package store
