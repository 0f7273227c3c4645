package resilience

import (
	"sort"
	"sync"
)

// Breakers holds one CircuitBreaker per operation id, created on first use.
type Breakers struct {
	defaults CircuitBreakerConfig

	// OnStateChange, when set before first use, observes transitions of
	// every breaker in the registry.
	OnStateChange func(operation string, from, to State)

	mu        sync.RWMutex
	overrides map[string]CircuitBreakerConfig
	breakers  map[string]*CircuitBreaker
}

// NewBreakers creates a registry whose breakers use defaults unless an
// operation has its own configuration.
func NewBreakers(defaults CircuitBreakerConfig) *Breakers {
	return &Breakers{
		defaults:  defaults,
		overrides: make(map[string]CircuitBreakerConfig),
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// Configure sets the configuration for an operation. It has no effect on a
// breaker that already exists.
func (r *Breakers) Configure(operation string, config CircuitBreakerConfig) {
	r.mu.Lock()
	r.overrides[operation] = config
	r.mu.Unlock()
}

// Get returns the breaker for operation, creating it if needed.
func (r *Breakers) Get(operation string) *CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[operation]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[operation]; ok {
		return b
	}

	config, ok := r.overrides[operation]
	if !ok {
		config = r.defaults
	}
	config.Name = operation

	user := config.OnStateChange
	registry := r.OnStateChange
	config.OnStateChange = func(from, to State) {
		if user != nil {
			user(from, to)
		}
		if registry != nil {
			registry(operation, from, to)
		}
	}

	b = NewCircuitBreaker(config)
	r.breakers[operation] = b
	return b
}

// Lookup returns the breaker for operation without creating one.
func (r *Breakers) Lookup(operation string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[operation]
	return b, ok
}

// Snapshot returns metrics for every known breaker, sorted by name.
func (r *Breakers) Snapshot() []CircuitBreakerMetrics {
	r.mu.RLock()
	list := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.RUnlock()

	out := make([]CircuitBreakerMetrics, 0, len(list))
	for _, b := range list {
		out = append(out, b.Metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OpenOperations returns the names of breakers that are currently open.
func (r *Breakers) OpenOperations() []string {
	var open []string
	for _, m := range r.Snapshot() {
		if m.State == StateOpen {
			open = append(open, m.Name)
		}
	}
	return open
}
