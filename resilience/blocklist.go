package resilience

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/gatekeep/store"
)

// EscalationPolicy decides whether a caller's violation count survives the
// expiry of its block.
type EscalationPolicy string

const (
	// EscalationPersist keeps the count for BlocklistConfig.Memory after a
	// block expires, so repeat offenders keep escalating.
	EscalationPersist EscalationPolicy = "persist"
	// EscalationReset restarts from the base duration once a block expires.
	EscalationReset EscalationPolicy = "reset"
)

// ParseEscalationPolicy parses "persist" or "reset". Empty means persist.
func ParseEscalationPolicy(s string) (EscalationPolicy, error) {
	switch EscalationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case EscalationPersist, "":
		return EscalationPersist, nil
	case EscalationReset:
		return EscalationReset, nil
	default:
		return "", fmt.Errorf("%w: unknown escalation policy %q", ErrInvalidConfig, s)
	}
}

// BlocklistConfig configures the adaptive blocklist.
type BlocklistConfig struct {
	// BaseBlock is the first block's duration.
	// Default: 60 seconds
	BaseBlock time.Duration

	// MaxBlock caps every block.
	// Default: 1 hour
	MaxBlock time.Duration

	// Escalation selects how violation history is kept.
	// Default: EscalationPersist
	Escalation EscalationPolicy

	// Memory is how long the violation count survives after a block
	// expires under EscalationPersist.
	// Default: MaxBlock
	Memory time.Duration

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time

	// OnBlock is called after every recorded violation.
	OnBlock func(key string, block store.BlockEntry)
}

// Validate checks the configuration after defaults are applied.
func (c BlocklistConfig) Validate() error {
	if c.BaseBlock < 0 || c.MaxBlock < 0 || c.Memory < 0 {
		return fmt.Errorf("%w: block durations must not be negative", ErrInvalidConfig)
	}
	if c.BaseBlock > 0 && c.MaxBlock > 0 && c.MaxBlock < c.BaseBlock {
		return fmt.Errorf("%w: max block %s is below base block %s", ErrInvalidConfig, c.MaxBlock, c.BaseBlock)
	}
	if _, err := ParseEscalationPolicy(string(c.Escalation)); err != nil {
		return err
	}
	return nil
}

func (c BlocklistConfig) withDefaults() BlocklistConfig {
	if c.BaseBlock <= 0 {
		c.BaseBlock = time.Minute
	}
	if c.MaxBlock <= 0 {
		c.MaxBlock = time.Hour
	}
	if c.MaxBlock < c.BaseBlock {
		c.MaxBlock = c.BaseBlock
	}
	if c.Escalation == "" {
		c.Escalation = EscalationPersist
	}
	switch {
	case c.Escalation == EscalationReset:
		c.Memory = 0
	case c.Memory <= 0:
		c.Memory = c.MaxBlock
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// BlockStatus describes a key's block at a point in time.
type BlockStatus struct {
	Blocked    bool
	Violations int64
	ExpiresAt  time.Time
	RetryAfter time.Duration
}

// Blocklist temporarily blocks keys that keep exceeding their rate limit,
// doubling the block on each repeat violation up to MaxBlock.
type Blocklist struct {
	config BlocklistConfig
	store  store.Store
}

// NewBlocklist creates a blocklist over st.
func NewBlocklist(st store.Store, config BlocklistConfig) *Blocklist {
	return &Blocklist{config: config.withDefaults(), store: st}
}

// Config returns the effective configuration.
func (bl *Blocklist) Config() BlocklistConfig {
	return bl.config
}

// Policy returns the escalation policy passed to the store.
func (bl *Blocklist) Policy() store.BlockPolicy {
	return store.BlockPolicy{
		Base:   bl.config.BaseBlock,
		Max:    bl.config.MaxBlock,
		Memory: bl.config.Memory,
	}
}

// IsBlocked reports whether key is blocked now. A block ends at exactly its
// expiry time. On store errors it reports false along with the error.
func (bl *Blocklist) IsBlocked(ctx context.Context, key string) (bool, error) {
	st, err := bl.Status(ctx, key)
	return st.Blocked, err
}

// Status returns the block state for key.
func (bl *Blocklist) Status(ctx context.Context, key string) (BlockStatus, error) {
	entry, ok, err := bl.store.GetBlock(ctx, key)
	if err != nil || !ok {
		return BlockStatus{}, err
	}

	now := bl.config.Clock()
	return BlockStatus{
		Blocked:    entry.Active(now),
		Violations: entry.Violations,
		ExpiresAt:  entry.ExpiresAt,
		RetryAfter: entry.Remaining(now),
	}, nil
}

// RecordViolation escalates key's block and returns the new block duration.
// If the store is unreachable it returns the base duration with the error;
// no block is in force in that case.
func (bl *Blocklist) RecordViolation(ctx context.Context, key string) (store.BlockEntry, error) {
	entry, err := bl.store.RecordViolation(ctx, key, store.ViolationRequest{
		Now:    bl.config.Clock(),
		Policy: bl.Policy(),
	})
	if err != nil {
		return store.BlockEntry{Key: key, Duration: bl.config.BaseBlock}, err
	}

	if bl.config.OnBlock != nil {
		bl.config.OnBlock(key, entry)
	}
	return entry, nil
}

// Unblock lifts any block on key and forgets its violation history.
func (bl *Blocklist) Unblock(ctx context.Context, key string) error {
	return bl.store.ClearBlock(ctx, key)
}
