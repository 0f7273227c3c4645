package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/gatekeep/store"
)

// FallbackPolicy decides what the limiter does when the store is unreachable.
type FallbackPolicy string

const (
	// FailOpen admits requests, subject to the local insurance limiter.
	FailOpen FallbackPolicy = "fail-open"
	// FailClosed rejects requests.
	FailClosed FallbackPolicy = "fail-closed"
)

// ParseFallbackPolicy parses "fail-open" or "fail-closed". Empty means FailOpen.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FailOpen, "":
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("%w: unknown store fallback policy %q", ErrInvalidConfig, s)
	}
}

// InsuranceConfig configures the local limiter used during store outages.
type InsuranceConfig struct {
	// Disabled turns the insurance limiter off; fail-open then admits
	// everything while the store is down.
	Disabled bool

	// Points is the per-key allowance per Window.
	// Default: max(1, RateLimiterConfig.Points/10)
	Points int

	// Window is the refill period.
	// Default: RateLimiterConfig.Window
	Window time.Duration
}

// RateLimiterConfig configures the distributed rate limiter.
type RateLimiterConfig struct {
	// Points is the number of points available per window.
	// Default: 100
	Points int

	// Window is the fixed window length.
	// Default: 1 minute
	Window time.Duration

	// Fallback applies when the store is unreachable.
	// Default: FailOpen
	Fallback FallbackPolicy

	// Insurance bounds fail-open admission during store outages.
	Insurance InsuranceConfig

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

// Validate checks the configuration after defaults are applied.
func (c RateLimiterConfig) Validate() error {
	if c.Points < 0 {
		return fmt.Errorf("%w: points must be positive, got %d", ErrInvalidConfig, c.Points)
	}
	if c.Window < 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}
	if _, err := ParseFallbackPolicy(string(c.Fallback)); err != nil {
		return err
	}
	if c.Insurance.Points < 0 || c.Insurance.Window < 0 {
		return fmt.Errorf("%w: insurance allowance must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.Points <= 0 {
		c.Points = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Fallback == "" {
		c.Fallback = FailOpen
	}
	if c.Insurance.Points <= 0 {
		c.Insurance.Points = max(1, c.Points/10)
	}
	if c.Insurance.Window <= 0 {
		c.Insurance.Window = c.Window
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Decision is the result of a Consume call.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time

	// Degraded is set when the store could not be reached and the
	// fallback policy decided. StoreErr holds the cause.
	Degraded bool
	StoreErr error
}

// RateLimiter is a fixed-window limiter whose counters live in a shared
// store, so every process enforcing the same key shares one budget.
type RateLimiter struct {
	config    RateLimiterConfig
	store     store.Store
	insurance *insuranceLimiter
}

// NewRateLimiter creates a limiter over st.
func NewRateLimiter(st store.Store, config RateLimiterConfig) *RateLimiter {
	config = config.withDefaults()

	rl := &RateLimiter{config: config, store: st}
	if !config.Insurance.Disabled {
		rl.insurance = newInsuranceLimiter(config.Insurance.Points, config.Insurance.Window)
	}
	return rl
}

// Config returns the effective configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}

// Consume charges cost points to key. A cost below one is treated as one.
//
// Store failures never surface as errors: the fallback policy decides and
// the Decision is marked Degraded. The returned error is non-nil only for an
// invalid key or request.
func (rl *RateLimiter) Consume(ctx context.Context, key string, cost int) (Decision, error) {
	if cost < 1 {
		cost = 1
	}
	now := rl.config.Clock()

	w, err := rl.store.ConsumeWindow(ctx, key, store.WindowRequest{
		Limit:  int64(rl.config.Points),
		Cost:   int64(cost),
		Window: rl.config.Window,
		Now:    now,
	})
	switch {
	case err == nil:
		return Decision{
			Allowed:   w.Allowed,
			Limit:     w.Limit,
			Remaining: w.Remaining,
			ResetAt:   w.ResetAt,
		}, nil
	case errors.Is(err, store.ErrInvalidKey), errors.Is(err, store.ErrInvalidRequest):
		return Decision{}, err
	}

	return rl.fallback(key, cost, now, err), nil
}

func (rl *RateLimiter) fallback(key string, cost int, now time.Time, cause error) Decision {
	d := Decision{
		Limit:    int64(rl.config.Points),
		ResetAt:  now.Add(rl.config.Window),
		Degraded: true,
		StoreErr: cause,
	}

	switch {
	case rl.config.Fallback == FailClosed:
		d.Allowed = false
	case rl.insurance == nil:
		d.Allowed = true
		d.Remaining = int64(rl.config.Points)
	default:
		allowed, left := rl.insurance.allow(key, cost, now)
		d.Allowed = allowed
		d.Limit = int64(rl.config.Insurance.Points)
		d.Remaining = int64(left)
		d.ResetAt = now.Add(rl.config.Insurance.Window)
	}
	return d
}
