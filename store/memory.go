package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Every operation holds a single mutex,
// which makes ConsumeWindow and RecordViolation atomic within the process.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
	blocks  map[string]*blockEntry
}

type windowEntry struct {
	remaining int64
	resetAt   time.Time
}

type blockEntry struct {
	violations int64
	expiresAt  time.Time
	duration   time.Duration
	purgeAt    time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*windowEntry),
		blocks:  make(map[string]*blockEntry),
	}
}

// ConsumeWindow implements Store.
func (s *MemoryStore) ConsumeWindow(ctx context.Context, key string, req WindowRequest) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	if err := ValidateKey(key); err != nil {
		return Window{}, err
	}
	if err := req.validate(); err != nil {
		return Window{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !req.Now.Before(w.resetAt) {
		w = &windowEntry{remaining: req.Limit, resetAt: req.Now.Add(req.Window)}
		s.windows[key] = w
	}
	if w.remaining > req.Limit {
		w.remaining = req.Limit
	}

	allowed := w.remaining >= req.Cost
	if allowed {
		w.remaining -= req.Cost
	}

	return Window{
		Key:       key,
		Allowed:   allowed,
		Limit:     req.Limit,
		Remaining: w.remaining,
		ResetAt:   w.resetAt,
	}, nil
}

// RecordViolation implements Store.
func (s *MemoryStore) RecordViolation(ctx context.Context, key string, req ViolationRequest) (BlockEntry, error) {
	if err := ctx.Err(); err != nil {
		return BlockEntry{}, err
	}
	if err := ValidateKey(key); err != nil {
		return BlockEntry{}, err
	}
	if err := req.Policy.validate(); err != nil {
		return BlockEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if b, ok := s.blocks[key]; ok && req.Now.Before(b.expiresAt.Add(req.Policy.Memory)) {
		count = b.violations
	}
	count++

	d := req.Policy.Duration(count)
	b := &blockEntry{
		violations: count,
		expiresAt:  req.Now.Add(d),
		duration:   d,
	}
	b.purgeAt = b.expiresAt.Add(req.Policy.Memory)
	s.blocks[key] = b

	return BlockEntry{Key: key, Violations: count, ExpiresAt: b.expiresAt, Duration: d}, nil
}

// GetBlock implements Store.
func (s *MemoryStore) GetBlock(ctx context.Context, key string) (BlockEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return BlockEntry{}, false, err
	}

	s.mu.Lock()
	b, ok := s.blocks[key]
	s.mu.Unlock()
	if !ok {
		return BlockEntry{}, false, nil
	}
	return BlockEntry{Key: key, Violations: b.violations, ExpiresAt: b.expiresAt, Duration: b.duration}, true, nil
}

// ClearBlock implements Store.
func (s *MemoryStore) ClearBlock(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.blocks, key)
	s.mu.Unlock()
	return nil
}

// Ping implements Store. The in-memory store is always reachable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Sweep drops windows and block records that have expired at now and
// returns how many records were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, k)
			removed++
		}
	}
	for k, b := range s.blocks {
		if !now.Before(b.purgeAt) {
			delete(s.blocks, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live window and block records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows) + len(s.blocks)
}

// StartJanitor sweeps expired records every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.Sweep(now)
			}
		}
	}()
}

var _ Store = (*MemoryStore)(nil)
