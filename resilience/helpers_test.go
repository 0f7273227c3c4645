package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/gatekeep/store"
)

var epoch = time.UnixMilli(1_700_000_000_000)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore is a MemoryStore that can be switched into an outage.
type flakyStore struct {
	*store.MemoryStore
	down atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: store.NewMemoryStore()}
}

func (s *flakyStore) outage() error {
	if s.down.Load() {
		return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	return nil
}

func (s *flakyStore) ConsumeWindow(ctx context.Context, key string, req store.WindowRequest) (store.Window, error) {
	if err := s.outage(); err != nil {
		return store.Window{}, err
	}
	return s.MemoryStore.ConsumeWindow(ctx, key, req)
}

func (s *flakyStore) RecordViolation(ctx context.Context, key string, req store.ViolationRequest) (store.BlockEntry, error) {
	if err := s.outage(); err != nil {
		return store.BlockEntry{}, err
	}
	return s.MemoryStore.RecordViolation(ctx, key, req)
}

func (s *flakyStore) GetBlock(ctx context.Context, key string) (store.BlockEntry, bool, error) {
	if err := s.outage(); err != nil {
		return store.BlockEntry{}, false, err
	}
	return s.MemoryStore.GetBlock(ctx, key)
}

func (s *flakyStore) ClearBlock(ctx context.Context, key string) error {
	if err := s.outage(); err != nil {
		return err
	}
	return s.MemoryStore.ClearBlock(ctx, key)
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if err := s.outage(); err != nil {
		return err
	}
	return s.MemoryStore.Ping(ctx)
}

var _ store.Store = (*flakyStore)(nil)
