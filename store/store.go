package store

import (
	"context"
	"strings"
	"time"
)

// Store is the shared state used by the rate limiter and the blocklist.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use, and
//     ConsumeWindow and RecordViolation must be atomic per key across all
//     processes sharing the store.
//   - Context: methods must honor cancellation/deadlines.
//   - Errors: backend failures are wrapped with ErrUnavailable.
//   - Time: window and block boundaries are computed from the request's Now
//     unless the implementation uses its own clock (RedisStore with
//     WithServerClock). Processes sharing a store without one must keep
//     their clocks in sync: a fast clock resets shared windows early.
type Store interface {
	// ConsumeWindow charges req.Cost against the window for key, creating
	// or resetting the window when it is missing or expired.
	ConsumeWindow(ctx context.Context, key string, req WindowRequest) (Window, error)

	// RecordViolation increments the violation count for key and sets a
	// block whose duration follows req.Policy.
	RecordViolation(ctx context.Context, key string, req ViolationRequest) (BlockEntry, error)

	// GetBlock returns the block record for key. The record may have
	// expired; use BlockEntry.Active to test it. Returns false when no
	// record exists.
	GetBlock(ctx context.Context, key string) (BlockEntry, bool, error)

	// ClearBlock removes any block record for key. Idempotent.
	ClearBlock(ctx context.Context, key string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// WindowRequest describes one consume against a fixed window.
type WindowRequest struct {
	// Limit is the number of points available per window.
	Limit int64

	// Cost is the number of points this request consumes.
	Cost int64

	// Window is the window length.
	Window time.Duration

	// Now is the caller's current time.
	Now time.Time
}

func (r WindowRequest) validate() error {
	if r.Limit <= 0 || r.Cost <= 0 || r.Window <= 0 {
		return ErrInvalidRequest
	}
	return nil
}

// Window is the state of a fixed window after a consume.
type Window struct {
	Key       string
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// ViolationRequest describes one recorded violation.
type ViolationRequest struct {
	// Now is the caller's current time.
	Now time.Time

	// Policy controls the resulting block duration.
	Policy BlockPolicy
}

// BlockEntry is a block record.
type BlockEntry struct {
	Key        string
	Violations int64
	ExpiresAt  time.Time
	Duration   time.Duration
}

// Active reports whether the block is in force at now. A block is no longer
// active at exactly ExpiresAt.
func (b BlockEntry) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// Remaining returns the time left on the block at now, or zero.
func (b BlockEntry) Remaining(now time.Time) time.Duration {
	if !b.Active(now) {
		return 0
	}
	return b.ExpiresAt.Sub(now)
}

// BlockPolicy controls exponential block escalation.
type BlockPolicy struct {
	// Base is the duration of the first block.
	Base time.Duration

	// Max caps every block duration.
	Max time.Duration

	// Memory is how long the violation count survives after a block
	// expires. A violation arriving later starts again at one. Zero resets
	// the count as soon as the block expires.
	Memory time.Duration
}

// Duration returns min(Base * 2^(violations-1), Max).
func (p BlockPolicy) Duration(violations int64) time.Duration {
	if violations < 1 {
		violations = 1
	}
	d := p.Base
	for i := int64(1); i < violations; i++ {
		if d >= p.Max {
			break
		}
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

func (p BlockPolicy) validate() error {
	if p.Base <= 0 || p.Max < p.Base || p.Memory < 0 {
		return ErrInvalidRequest
	}
	return nil
}

// ValidateKey checks that a key can be stored.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
