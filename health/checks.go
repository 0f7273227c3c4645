package health

import (
	"context"
	"fmt"
)

// Pinger is implemented by backends that can report reachability, such as
// store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports the shared store's reachability. An unreachable store
// is Unhealthy when the limiter fails closed, since every request is then
// rejected, and Degraded when it fails open.
type StoreChecker struct {
	name     string
	store    Pinger
	failOpen bool
}

// NewStoreChecker creates a checker for st.
func NewStoreChecker(name string, st Pinger, failOpen bool) *StoreChecker {
	return &StoreChecker{name: name, store: st, failOpen: failOpen}
}

// Name implements Checker.
func (c *StoreChecker) Name() string { return c.name }

// Check implements Checker.
func (c *StoreChecker) Check(ctx context.Context) Result {
	err := c.store.Ping(ctx)
	if err == nil {
		return Healthy("store reachable")
	}

	err = fmt.Errorf("%w: %w", ErrCheckFailed, err)
	if c.failOpen {
		r := Degraded("store unreachable; admitting requests under the local allowance")
		r.Error = err
		return r
	}
	return Unhealthy("store unreachable; rejecting rate-limited requests", err)
}

// BreakerSource lists operations whose circuit is open, such as
// resilience.Breakers.
type BreakerSource interface {
	OpenOperations() []string
}

// BreakerChecker reports Degraded while any circuit is open.
type BreakerChecker struct {
	name   string
	source BreakerSource
}

// NewBreakerChecker creates a checker over src.
func NewBreakerChecker(name string, src BreakerSource) *BreakerChecker {
	return &BreakerChecker{name: name, source: src}
}

// Name implements Checker.
func (c *BreakerChecker) Name() string { return c.name }

// Check implements Checker.
func (c *BreakerChecker) Check(context.Context) Result {
	open := c.source.OpenOperations()
	if len(open) == 0 {
		return Healthy("all circuits closed")
	}
	return Degraded(fmt.Sprintf("%d circuit(s) open", len(open))).
		WithDetails(map[string]any{"open": open})
}

var (
	_ Checker = (*StoreChecker)(nil)
	_ Checker = (*BreakerChecker)(nil)
	_ Checker = (*CheckerFunc)(nil)
)
