package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// State represents the circuit breaker state.
type State int32

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the protected operation in callbacks and metrics.
	Name string

	// ErrorThresholdPercentage opens the circuit when failures make up at
	// least this share of calls in the current window.
	// Default: 50
	ErrorThresholdPercentage int

	// VolumeThreshold is the minimum number of calls in the window before
	// the error percentage is considered.
	// Default: 10
	VolumeThreshold int

	// Window is the measurement window. Counts reset every Window while
	// the circuit is closed.
	// Default: 60 seconds
	Window time.Duration

	// ResetTimeout is how long the circuit stays open before a trial call.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// CallTimeout bounds every call. Timeouts count as failures.
	// Default: 10 seconds
	CallTimeout time.Duration

	// OnStateChange is called when the circuit state changes. It runs while
	// the breaker holds its internal lock and must not call back into it.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: any non-nil error other than context.Canceled.
	//
	// A context.Canceled result that IsFailure does not count is neutral
	// while the circuit is closed: it is neither a success nor a failure.
	// A canceled half-open trial always reopens the circuit.
	IsFailure func(err error) bool
}

// Validate checks the configuration after defaults are applied.
func (c CircuitBreakerConfig) Validate() error {
	if c.ErrorThresholdPercentage < 0 || c.ErrorThresholdPercentage > 100 {
		return fmt.Errorf("%w: error threshold percentage must be in [1, 100], got %d", ErrInvalidConfig, c.ErrorThresholdPercentage)
	}
	if c.VolumeThreshold < 0 {
		return fmt.Errorf("%w: volume threshold must be positive, got %d", ErrInvalidConfig, c.VolumeThreshold)
	}
	if c.Window < 0 || c.ResetTimeout < 0 || c.CallTimeout < 0 {
		return fmt.Errorf("%w: breaker durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = 50
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.IsFailure == nil {
		c.IsFailure = defaultIsFailure
	}
	return c
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker implements the circuit breaker pattern for one operation.
//
// State transitions and counting are delegated to a gobreaker two-step
// breaker configured with a single half-open trial. A mirror of the state is
// kept in atomics so IsOpen never takes a lock.
type CircuitBreaker struct {
	config  CircuitBreakerConfig
	timeout *Timeout

	cb atomic.Pointer[gobreaker.TwoStepCircuitBreaker]

	state       atomic.Int32
	openedAt    atomic.Int64
	windowStart atomic.Int64
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	config = config.withDefaults()

	b := &CircuitBreaker{
		config:  config,
		timeout: NewTimeout(TimeoutConfig{Timeout: config.CallTimeout}),
	}
	b.cb.Store(b.newInner())
	b.windowStart.Store(time.Now().UnixNano())
	return b
}

func (b *CircuitBreaker) newInner() *gobreaker.TwoStepCircuitBreaker {
	threshold := uint64(b.config.ErrorThresholdPercentage)
	volume := uint32(b.config.VolumeThreshold)

	return gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        b.config.Name,
		MaxRequests: 1,
		Interval:    b.config.Window,
		Timeout:     b.config.ResetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			// Only completed calls count; in-flight and canceled calls
			// are in Requests but never reported.
			completed := c.TotalSuccesses + c.TotalFailures
			if completed < volume {
				return false
			}
			return uint64(c.TotalFailures)*100 >= threshold*uint64(completed)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.transition(fromGobreaker(from), fromGobreaker(to))
		},
	})
}

func (b *CircuitBreaker) transition(from, to State) {
	now := time.Now().UnixNano()
	b.state.Store(int32(to))
	switch to {
	case StateOpen:
		b.openedAt.Store(now)
	case StateClosed:
		b.openedAt.Store(0)
		b.windowStart.Store(now)
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// Name returns the configured operation name.
func (b *CircuitBreaker) Name() string {
	return b.config.Name
}

// Config returns the effective configuration.
func (b *CircuitBreaker) Config() CircuitBreakerConfig {
	return b.config
}

// IsOpen reports whether calls are currently short-circuited. It reads only
// atomics. Once ResetTimeout has elapsed it returns false so the next call
// can become the half-open trial.
func (b *CircuitBreaker) IsOpen() bool {
	if State(b.state.Load()) != StateOpen {
		return false
	}
	return time.Since(time.Unix(0, b.openedAt.Load())) < b.config.ResetTimeout
}

// RetryAfter returns how long until an open circuit admits a trial call, or
// zero when the circuit is not open.
func (b *CircuitBreaker) RetryAfter() time.Duration {
	if State(b.state.Load()) != StateOpen {
		return 0
	}
	left := b.config.ResetTimeout - time.Since(time.Unix(0, b.openedAt.Load()))
	if left < 0 {
		return 0
	}
	return left
}

// Execute runs the operation through the circuit breaker under CallTimeout.
// It returns ErrCircuitOpen without calling op when the circuit is open or a
// half-open trial is already in flight, and ErrTimeout when op overruns.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	b.rollWindow()

	inner := b.cb.Load()
	done, err := inner.Allow()
	if err != nil {
		return ErrCircuitOpen
	}
	trial := inner.State() == gobreaker.StateHalfOpen

	err = b.timeout.Execute(ctx, op)
	switch {
	case b.config.IsFailure(err):
		done(false)
	case errors.Is(err, context.Canceled):
		// The dependency never answered. A trial must not close the
		// circuit on that; a closed-state call is left unreported.
		if trial {
			done(false)
		}
	default:
		done(true)
	}
	return err
}

// rollWindow tracks the start of the current counting window for Metrics.
func (b *CircuitBreaker) rollWindow() {
	if State(b.state.Load()) != StateClosed {
		return
	}
	start := b.windowStart.Load()
	now := time.Now().UnixNano()
	if now-start > int64(b.config.Window) {
		b.windowStart.CompareAndSwap(start, now)
	}
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() State {
	return fromGobreaker(b.cb.Load().State())
}

// Reset returns the circuit to closed with cleared counters.
func (b *CircuitBreaker) Reset() {
	old := fromGobreaker(b.cb.Load().State())
	b.cb.Store(b.newInner())
	if old != StateClosed {
		b.transition(old, StateClosed)
		return
	}
	b.windowStart.Store(time.Now().UnixNano())
}

// Metrics returns current circuit breaker metrics.
func (b *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	inner := b.cb.Load()
	state := fromGobreaker(inner.State())
	counts := inner.Counts()

	m := CircuitBreakerMetrics{
		Name:                b.config.Name,
		State:               state,
		Requests:            int(counts.Requests),
		Failures:            int(counts.TotalFailures),
		Successes:           int(counts.TotalSuccesses),
		ConsecutiveFailures: int(counts.ConsecutiveFailures),
		WindowStart:         time.Unix(0, b.windowStart.Load()),
	}
	if at := b.openedAt.Load(); at != 0 {
		m.OpenedAt = time.Unix(0, at)
	}
	return m
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	Name  string
	State State

	// Requests counts admitted calls, including calls still in flight and
	// canceled calls that were not reported as either outcome.
	Requests            int
	Failures            int
	Successes           int
	ConsecutiveFailures int
	WindowStart         time.Time
	OpenedAt            time.Time
}
