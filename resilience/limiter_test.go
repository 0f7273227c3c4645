package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/gatekeep/store"
)

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{})
	cfg := rl.Config()

	if cfg.Points != 100 {
		t.Errorf("Points = %d, want 100", cfg.Points)
	}
	if cfg.Window != time.Minute {
		t.Errorf("Window = %v, want 1m", cfg.Window)
	}
	if cfg.Fallback != FailOpen {
		t.Errorf("Fallback = %q, want %q", cfg.Fallback, FailOpen)
	}
	if cfg.Insurance.Points != 10 {
		t.Errorf("Insurance.Points = %d, want 10", cfg.Insurance.Points)
	}
	if cfg.Insurance.Window != time.Minute {
		t.Errorf("Insurance.Window = %v, want 1m", cfg.Insurance.Window)
	}
}

func TestRateLimiter_InsuranceFloor(t *testing.T) {
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{Points: 5})
	if got := rl.Config().Insurance.Points; got != 1 {
		t.Errorf("Insurance.Points = %d, want 1", got)
	}
}

func TestRateLimiter_ConsumeWithinWindow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{
		Points: 5,
		Window: time.Minute,
		Clock:  clock.Now,
	})
	ctx := context.Background()

	for want := int64(4); want >= 0; want-- {
		d, err := rl.Consume(ctx, "k", 1)
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		if !d.Allowed || d.Remaining != want {
			t.Fatalf("Consume() = %+v, want allowed with remaining %d", d, want)
		}
		if d.Limit != 5 {
			t.Errorf("Limit = %d, want 5", d.Limit)
		}
		if !d.ResetAt.Equal(epoch.Add(time.Minute)) {
			t.Errorf("ResetAt = %v, want %v", d.ResetAt, epoch.Add(time.Minute))
		}
	}

	d, err := rl.Consume(ctx, "k", 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("sixth Consume() = %+v, want denied with remaining 0", d)
	}
	if d.Degraded {
		t.Error("decision should not be degraded with a healthy store")
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{
		Points: 2,
		Window: time.Minute,
		Clock:  clock.Now,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = rl.Consume(ctx, "k", 1)
	}

	clock.Advance(59 * time.Second)
	if d, _ := rl.Consume(ctx, "k", 1); d.Allowed {
		t.Fatal("expected denial before the window ends")
	}

	clock.Advance(time.Second)
	d, err := rl.Consume(ctx, "k", 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !d.Allowed || d.Remaining != 1 {
		t.Fatalf("Consume() after reset = %+v, want allowed with remaining 1", d)
	}
	if !d.ResetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want a fresh window", d.ResetAt)
	}
}

func TestRateLimiter_Cost(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{
		Points: 10,
		Clock:  clock.Now,
	})
	ctx := context.Background()

	d, _ := rl.Consume(ctx, "k", 3)
	if !d.Allowed || d.Remaining != 7 {
		t.Fatalf("Consume(3) = %+v, want remaining 7", d)
	}

	d, _ = rl.Consume(ctx, "k", 8)
	if d.Allowed {
		t.Fatal("Consume(8) should be denied with 7 remaining")
	}
	if d.Remaining != 7 {
		t.Errorf("denied consume must not charge: remaining = %d, want 7", d.Remaining)
	}

	d, _ = rl.Consume(ctx, "k", 0)
	if !d.Allowed || d.Remaining != 6 {
		t.Fatalf("Consume(0) = %+v, want cost clamped to 1", d)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{Points: 1})
	ctx := context.Background()

	if d, _ := rl.Consume(ctx, "a", 1); !d.Allowed {
		t.Fatal("first consume for a should be allowed")
	}
	if d, _ := rl.Consume(ctx, "a", 1); d.Allowed {
		t.Fatal("second consume for a should be denied")
	}
	if d, _ := rl.Consume(ctx, "b", 1); !d.Allowed {
		t.Fatal("first consume for b should be allowed")
	}
}

func TestRateLimiter_InvalidKey(t *testing.T) {
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{})

	_, err := rl.Consume(context.Background(), " ", 1)
	if !errors.Is(err, store.ErrInvalidKey) {
		t.Fatalf("Consume() error = %v, want ErrInvalidKey", err)
	}
}

func TestRateLimiter_FailClosed(t *testing.T) {
	st := newFlakyStore()
	st.down.Store(true)
	rl := NewRateLimiter(st, RateLimiterConfig{Points: 5, Fallback: FailClosed})

	d, err := rl.Consume(context.Background(), "k", 1)
	if err != nil {
		t.Fatalf("Consume() error = %v, want store errors absorbed", err)
	}
	if d.Allowed {
		t.Fatal("fail-closed must deny while the store is down")
	}
	if !d.Degraded || !errors.Is(d.StoreErr, store.ErrUnavailable) {
		t.Errorf("expected degraded decision carrying the store error, got %+v", d)
	}
}

func TestRateLimiter_FailOpenWithoutInsurance(t *testing.T) {
	st := newFlakyStore()
	st.down.Store(true)
	rl := NewRateLimiter(st, RateLimiterConfig{
		Points:    5,
		Insurance: InsuranceConfig{Disabled: true},
	})

	for i := 0; i < 20; i++ {
		d, err := rl.Consume(context.Background(), "k", 1)
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		if !d.Allowed || !d.Degraded {
			t.Fatalf("call %d: expected degraded admission, got %+v", i, d)
		}
	}
}

func TestRateLimiter_FailOpenInsurance(t *testing.T) {
	clock := newFakeClock()
	st := newFlakyStore()
	st.down.Store(true)
	rl := NewRateLimiter(st, RateLimiterConfig{
		Points:    30,
		Window:    time.Minute,
		Clock:     clock.Now,
		Insurance: InsuranceConfig{Points: 3},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, _ := rl.Consume(ctx, "k", 1)
		if !d.Allowed {
			t.Fatalf("call %d should be admitted by the insurance allowance", i)
		}
		if d.Limit != 3 {
			t.Errorf("Limit = %d, want the insurance allowance 3", d.Limit)
		}
	}

	d, _ := rl.Consume(ctx, "k", 1)
	if d.Allowed {
		t.Fatal("insurance allowance should be exhausted")
	}

	// Another caller has its own allowance.
	if d, _ := rl.Consume(ctx, "other", 1); !d.Allowed {
		t.Fatal("insurance allowance must be per key")
	}

	// Tokens refill over the window.
	clock.Advance(21 * time.Second)
	if d, _ := rl.Consume(ctx, "k", 1); !d.Allowed {
		t.Fatal("expected a refilled token after a third of the window")
	}
}

func TestRateLimiter_RecoversWhenStoreReturns(t *testing.T) {
	st := newFlakyStore()
	rl := NewRateLimiter(st, RateLimiterConfig{Points: 5, Fallback: FailClosed})
	ctx := context.Background()

	st.down.Store(true)
	if d, _ := rl.Consume(ctx, "k", 1); d.Allowed {
		t.Fatal("expected denial during the outage")
	}

	st.down.Store(false)
	d, _ := rl.Consume(ctx, "k", 1)
	if !d.Allowed || d.Degraded || d.Remaining != 4 {
		t.Fatalf("Consume() after recovery = %+v", d)
	}
}

func TestRateLimiter_ConcurrentConsumersShareBudget(t *testing.T) {
	rl := NewRateLimiter(store.NewMemoryStore(), RateLimiterConfig{Points: 50})
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := rl.Consume(ctx, "shared", 1); d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Fatalf("allowed = %d, want exactly 50", got)
	}
}

func TestRateLimiterConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimiterConfig
		wantErr bool
	}{
		{"zero value", RateLimiterConfig{}, false},
		{"negative points", RateLimiterConfig{Points: -1}, true},
		{"negative window", RateLimiterConfig{Window: -time.Second}, true},
		{"unknown fallback", RateLimiterConfig{Fallback: "maybe"}, true},
		{"negative insurance", RateLimiterConfig{Insurance: InsuranceConfig{Points: -1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestParseFallbackPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FallbackPolicy
		wantErr bool
	}{
		{"", FailOpen, false},
		{"fail-open", FailOpen, false},
		{" FAIL-CLOSED ", FailClosed, false},
		{"closed", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFallbackPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFallbackPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestInsuranceLimiter_SweepsIdleKeys(t *testing.T) {
	l := newInsuranceLimiter(1, time.Minute)
	now := epoch

	l.allow("a", 1, now)
	l.allow("b", 1, now)
	if l.size() != 2 {
		t.Fatalf("size = %d, want 2", l.size())
	}

	l.allow("c", 1, now.Add(3*time.Minute))
	if l.size() != 1 {
		t.Fatalf("size after sweep = %d, want 1", l.size())
	}
}
