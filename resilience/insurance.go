package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// insuranceLimiter is a per-key token bucket used only while the shared
// store is unreachable. It caps what a single caller can push through during
// an outage to a small local allowance.
type insuranceLimiter struct {
	mu      sync.Mutex
	entries map[string]*insuranceEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	swept   time.Time
}

type insuranceEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newInsuranceLimiter(points int, window time.Duration) *insuranceLimiter {
	return &insuranceLimiter{
		entries: make(map[string]*insuranceEntry),
		limit:   rate.Limit(float64(points) / window.Seconds()),
		burst:   points,
		idleTTL: 2 * window,
	}
}

// allow charges cost against key at now and returns the tokens left.
func (l *insuranceLimiter) allow(key string, cost int, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	ent, ok := l.entries[key]
	if !ok {
		ent = &insuranceEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now

	allowed := ent.lim.AllowN(now, cost)
	left := int(ent.lim.TokensAt(now))
	if left < 0 {
		left = 0
	}
	return allowed, left
}

// sweepLocked drops idle keys at most once per idle period.
func (l *insuranceLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.swept) < l.idleTTL {
		return
	}
	l.swept = now
	cutoff := now.Add(-l.idleTTL)
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

func (l *insuranceLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
