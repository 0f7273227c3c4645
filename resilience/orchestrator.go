package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/gatekeep/identity"
	"github.com/jonwraymond/gatekeep/observe"
	"github.com/jonwraymond/gatekeep/store"
)

// OperationConfig is the per-operation configuration of an Orchestrator.
// Nil limiter or breaker settings fall back to the orchestrator defaults.
type OperationConfig struct {
	// ID is the operation identifier, usually the downstream dependency.
	ID string

	// Cost is the number of points one call consumes.
	// Default: 1
	Cost int

	// Limiter gives the operation its own budget, separate from the
	// caller's shared budget.
	Limiter *RateLimiterConfig

	// Breaker overrides the default breaker settings.
	Breaker *CircuitBreakerConfig
}

// Orchestrator composes identity resolution, blocking, rate limiting and
// circuit breaking in a fixed order around a protected operation.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: ctx bounds store round trips and is the parent of the
//     operation's context.
//   - Errors: policy rejections and downstream failures are returned as
//     Outcome values, never as panics or bare errors.
type Orchestrator struct {
	store    store.Store
	resolver identity.Resolver

	limiterConfig RateLimiterConfig
	blockConfig   BlocklistConfig
	breakerConfig CircuitBreakerConfig

	limiter   *RateLimiter
	blocklist *Blocklist
	breakers  *Breakers

	mu         sync.RWMutex
	operations map[string]OperationConfig
	opLimiters map[string]*RateLimiter

	logger   observe.Logger
	metrics  observe.Metrics
	tracer   observe.Tracer
	observer func(ctx context.Context, r Report)
	clock    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResolver sets the identity resolver.
// Default: identity.DefaultResolver with prefix "rl"
func WithResolver(r identity.Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithLimiter sets the default rate limiter configuration.
func WithLimiter(config RateLimiterConfig) Option {
	return func(o *Orchestrator) { o.limiterConfig = config }
}

// WithBlocklist sets the blocklist configuration.
func WithBlocklist(config BlocklistConfig) Option {
	return func(o *Orchestrator) { o.blockConfig = config }
}

// WithBreakerDefaults sets the breaker configuration used by operations
// without their own.
func WithBreakerDefaults(config CircuitBreakerConfig) Option {
	return func(o *Orchestrator) { o.breakerConfig = config }
}

// WithOperation registers per-operation configuration.
func WithOperation(config OperationConfig) Option {
	return func(o *Orchestrator) { o.operations[config.ID] = config }
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t observe.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithObserver registers a callback invoked once per orchestrated call.
func WithObserver(fn func(ctx context.Context, r Report)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithClock sets the time source for the limiter and blocklist, unless
// their configurations carry their own.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// New creates an Orchestrator over st.
func New(st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      st,
		operations: make(map[string]OperationConfig),
		opLimiters: make(map[string]*RateLimiter),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.resolver == nil {
		o.resolver = identity.NewDefaultResolver(identity.DefaultPrefix)
	}
	if o.logger == nil {
		o.logger = observe.NopLogger()
	}
	if o.metrics == nil {
		o.metrics = observe.NopMetrics()
	}
	if o.tracer == nil {
		o.tracer = observe.NopTracer()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.limiterConfig.Clock == nil {
		o.limiterConfig.Clock = o.clock
	}
	if o.blockConfig.Clock == nil {
		o.blockConfig.Clock = o.clock
	}

	o.limiter = NewRateLimiter(st, o.limiterConfig)
	o.blocklist = NewBlocklist(st, o.blockConfig)
	o.breakers = NewBreakers(o.breakerConfig)
	o.breakers.OnStateChange = o.onBreakerStateChange

	for id, op := range o.operations {
		o.applyOperation(id, op)
	}
	return o
}

// Configure registers or replaces per-operation configuration. Breaker
// settings only apply to breakers not yet created.
func (o *Orchestrator) Configure(config OperationConfig) {
	o.mu.Lock()
	o.operations[config.ID] = config
	o.mu.Unlock()
	o.applyOperation(config.ID, config)
}

func (o *Orchestrator) applyOperation(id string, op OperationConfig) {
	if op.Breaker != nil {
		o.breakers.Configure(id, *op.Breaker)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if op.Limiter != nil {
		cfg := *op.Limiter
		if cfg.Clock == nil {
			cfg.Clock = o.clock
		}
		o.opLimiters[id] = NewRateLimiter(o.store, cfg)
	} else {
		delete(o.opLimiters, id)
	}
}

// limiterFor returns the limiter, store key and cost for an operation.
func (o *Orchestrator) limiterFor(operation string, key identity.Key) (*RateLimiter, string, int) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cost := o.operations[operation].Cost
	if rl, ok := o.opLimiters[operation]; ok {
		return rl, string(key) + "|op:" + operation, cost
	}
	return o.limiter, string(key), cost
}

// Limiter returns the default rate limiter.
func (o *Orchestrator) Limiter() *RateLimiter { return o.limiter }

// Blocklist returns the blocklist.
func (o *Orchestrator) Blocklist() *Blocklist { return o.blocklist }

// Breakers returns the breaker registry.
func (o *Orchestrator) Breakers() *Breakers { return o.breakers }

// Store returns the shared store.
func (o *Orchestrator) Store() store.Store { return o.store }

// Resolver returns the identity resolver.
func (o *Orchestrator) Resolver() identity.Resolver { return o.resolver }

// Do runs an operation that returns only an error.
func (o *Orchestrator) Do(ctx context.Context, req identity.Request, operation string, fn func(context.Context) error) Outcome[struct{}] {
	return Execute(ctx, o, req, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Execute runs fn for the caller described by req under the orchestrator's
// policies for operation:
//
//  1. Resolve the caller's key.
//  2. Reject with BLOCKED while the key is blocked.
//  3. Consume the caller's budget; on exhaustion record a violation and
//     reject with RATE_LIMITED.
//  4. Reject with CIRCUIT_OPEN while the operation's breaker is open.
//  5. Run fn under the breaker and its call timeout.
//
// Steps 1 to 4 never call fn.
func Execute[T any](ctx context.Context, o *Orchestrator, req identity.Request, operation string, fn func(context.Context) (T, error)) Outcome[T] {
	start := time.Now()
	meta := observe.OperationMeta{ID: operation}

	ctx, span := o.tracer.StartSpan(ctx, meta)
	out := run(ctx, o, req, operation, fn)
	out.Operation = operation
	out.Duration = time.Since(start)
	o.tracer.EndSpan(span, string(out.Reason), out.Err)

	o.record(ctx, meta, out.Report())
	return out
}

// Admit applies steps 1 to 4 of Execute and runs nothing. It serves calls
// whose lifetime a call timeout cannot bound, such as protocol upgrades that
// become long-lived tunnels. An admitted call consumes budget like any other
// but its result never reaches the circuit breaker.
func (o *Orchestrator) Admit(ctx context.Context, req identity.Request, operation string) Outcome[struct{}] {
	start := time.Now()
	meta := observe.OperationMeta{ID: operation}

	ctx, span := o.tracer.StartSpan(ctx, meta)
	var out Outcome[struct{}]
	if _, ok := admit(ctx, o, req, operation, &out); ok {
		out.Allowed = true
		out.Reason = ReasonOK
	}
	out.Operation = operation
	out.Duration = time.Since(start)
	o.tracer.EndSpan(span, string(out.Reason), out.Err)

	o.record(ctx, meta, out.Report())
	return out
}

func run[T any](ctx context.Context, o *Orchestrator, req identity.Request, operation string, fn func(context.Context) (T, error)) Outcome[T] {
	var out Outcome[T]
	breaker, ok := admit(ctx, o, req, operation, &out)
	if !ok {
		return out
	}

	var invoked atomic.Bool
	results := make(chan T, 1)
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		invoked.Store(true)
		v, err := fn(ctx)
		if err == nil {
			results <- v
		}
		return err
	})

	switch {
	case err == nil:
		out.Allowed = true
		out.Reason = ReasonOK
		out.Result = <-results
	case !invoked.Load() && errors.Is(err, ErrCircuitOpen):
		return circuitOpen(out, breaker)
	case errors.Is(err, ErrTimeout):
		out.Reason = ReasonDownstreamTimeout
		out.Err = &DownstreamError{Operation: operation, Timeout: true, Err: err}
	default:
		out.Reason = ReasonDownstreamFailure
		out.Err = &DownstreamError{Operation: operation, Err: err}
	}
	return out
}

// admit runs the checks that precede the breaker call, filling out on
// rejection. It returns the operation's breaker when the call may proceed.
func admit[T any](ctx context.Context, o *Orchestrator, req identity.Request, operation string, out *Outcome[T]) (*CircuitBreaker, bool) {
	key, err := o.resolver.Resolve(req)
	if err != nil {
		out.Reason = ReasonInvalidRequest
		out.Err = err
		return nil, false
	}
	out.Key = key

	status, err := o.blocklist.Status(ctx, string(key))
	if err != nil {
		out.Degraded = true
		o.logger.Warn(ctx, "blocklist lookup failed; treating caller as not blocked",
			observe.Field{Key: "operation", Value: operation},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	if status.Blocked {
		out.Reason = ReasonBlocked
		out.RetryAfter = status.RetryAfter
		out.Err = &PolicyError{Reason: ReasonBlocked, RetryAfter: status.RetryAfter}
		return nil, false
	}

	limiter, limitKey, cost := o.limiterFor(operation, key)
	d, err := limiter.Consume(ctx, limitKey, cost)
	if err != nil {
		out.Reason = ReasonInvalidRequest
		out.Err = err
		return nil, false
	}
	out.Quota = Quota{Limit: d.Limit, Remaining: d.Remaining, ResetAt: d.ResetAt}
	if d.Degraded {
		out.Degraded = true
		policy := string(limiter.Config().Fallback)
		o.metrics.RecordStoreFallback(ctx, policy, d.Allowed)
		o.logger.Warn(ctx, "rate limit store unavailable; applied fallback policy",
			observe.Field{Key: "operation", Value: operation},
			observe.Field{Key: "policy", Value: policy},
			observe.Field{Key: "allowed", Value: d.Allowed},
			observe.Field{Key: "error", Value: errString(d.StoreErr)},
		)
	}
	if !d.Allowed {
		if !d.Degraded {
			o.recordViolation(ctx, operation, key)
		}
		retry := d.ResetAt.Sub(o.clock())
		if retry < 0 {
			retry = 0
		}
		out.Reason = ReasonRateLimited
		out.RetryAfter = retry
		out.Err = &PolicyError{Reason: ReasonRateLimited, RetryAfter: retry}
		return nil, false
	}

	breaker := o.breakers.Get(operation)
	if breaker.IsOpen() {
		*out = circuitOpen(*out, breaker)
		return nil, false
	}
	return breaker, true
}

func circuitOpen[T any](out Outcome[T], b *CircuitBreaker) Outcome[T] {
	out.Reason = ReasonCircuitOpen
	out.RetryAfter = b.RetryAfter()
	out.Err = &PolicyError{Reason: ReasonCircuitOpen, RetryAfter: out.RetryAfter}
	return out
}

func (o *Orchestrator) recordViolation(ctx context.Context, operation string, key identity.Key) {
	entry, err := o.blocklist.RecordViolation(ctx, string(key))
	if err != nil {
		o.logger.Warn(ctx, "failed to record rate limit violation",
			observe.Field{Key: "operation", Value: operation},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	o.metrics.RecordBlock(ctx, observe.OperationMeta{ID: operation}, entry.Violations, entry.Duration)
	o.logger.Warn(ctx, "caller blocked after exceeding rate limit",
		observe.Field{Key: "operation", Value: operation},
		observe.Field{Key: "key", Value: string(key)},
		observe.Field{Key: "violations", Value: entry.Violations},
		observe.Field{Key: "block_ms", Value: entry.Duration.Milliseconds()},
		observe.Field{Key: "expires_at", Value: entry.ExpiresAt.UTC().Format(time.RFC3339)},
	)
}

func (o *Orchestrator) record(ctx context.Context, meta observe.OperationMeta, r Report) {
	o.metrics.RecordOutcome(ctx, meta, string(r.Reason), r.Duration)

	fields := []observe.Field{
		{Key: "operation", Value: r.Operation},
		{Key: "reason", Value: string(r.Reason)},
		{Key: "duration_ms", Value: float64(r.Duration.Microseconds()) / 1000},
	}
	if r.Key != "" {
		fields = append(fields, observe.Field{Key: "key", Value: string(r.Key)})
	}
	if r.RetryAfter > 0 {
		fields = append(fields, observe.Field{Key: "retry_after_ms", Value: r.RetryAfter.Milliseconds()})
	}

	switch r.Reason {
	case ReasonBlocked:
		o.logger.Warn(ctx, "request rejected: caller is blocked", fields...)
	case ReasonCircuitOpen:
		o.logger.Warn(ctx, "request rejected: circuit open", fields...)
	case ReasonDownstreamFailure, ReasonDownstreamTimeout:
		var de *DownstreamError
		if errors.As(r.Err, &de) {
			fields = append(fields, observe.Field{Key: "error", Value: errString(de.Err)})
		}
		o.logger.Info(ctx, "downstream operation failed", fields...)
	default:
		o.logger.Debug(ctx, "request completed", fields...)
	}

	if o.observer != nil {
		o.observer(ctx, r)
	}
}

func (o *Orchestrator) onBreakerStateChange(operation string, from, to State) {
	ctx := context.Background()
	meta := observe.OperationMeta{ID: operation}
	o.metrics.RecordBreakerTransition(ctx, meta, from.String(), to.String())
	o.logger.Warn(ctx, fmt.Sprintf("circuit %s -> %s", from, to),
		observe.Field{Key: "operation", Value: operation},
		observe.Field{Key: "from", Value: from.String()},
		observe.Field{Key: "to", Value: to.String()},
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
