// Package resilience guards calls to downstream dependencies.
//
// The Orchestrator runs every call through the same fixed sequence:
//
//  1. Resolve the caller's identity key.
//  2. Reject while the key is blocked by the adaptive Blocklist.
//  3. Charge the caller's budget in the distributed RateLimiter. An
//     exhausted budget records a violation, which blocks the caller for an
//     escalating duration.
//  4. Reject while the operation's CircuitBreaker is open.
//  5. Run the operation under the breaker and its call timeout.
//
// Each call returns an Outcome carrying a Reason (OK, RATE_LIMITED,
// BLOCKED, CIRCUIT_OPEN, DOWNSTREAM_FAILURE, DOWNSTREAM_TIMEOUT,
// INVALID_REQUEST), the caller's remaining quota and, for rejections, how
// long to wait before retrying.
//
// # Shared state
//
// Rate-limit windows and block records live in a store.Store so every
// gateway instance enforces one budget per key. When the store cannot be
// reached the limiter's FallbackPolicy decides: FailOpen admits callers up
// to a small local allowance, FailClosed rejects them. Breaker state is
// local to the process.
//
// # Usage
//
//	st := store.NewRedisStore(client)
//	o := resilience.New(st,
//	    resilience.WithLimiter(resilience.RateLimiterConfig{
//	        Points: 100,
//	        Window: time.Minute,
//	    }),
//	    resilience.WithBreakerDefaults(resilience.CircuitBreakerConfig{
//	        ErrorThresholdPercentage: 50,
//	        VolumeThreshold:          10,
//	    }),
//	)
//
//	out := resilience.Execute(ctx, o, req, "email.send", func(ctx context.Context) (string, error) {
//	    return sendEmail(ctx)
//	})
//	if !out.Allowed {
//	    // out.Reason, out.RetryAfter
//	}
package resilience
