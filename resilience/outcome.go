package resilience

import (
	"time"

	"github.com/jonwraymond/gatekeep/identity"
)

// Reason classifies an orchestrated call.
type Reason string

const (
	ReasonOK                Reason = "OK"
	ReasonRateLimited       Reason = "RATE_LIMITED"
	ReasonBlocked           Reason = "BLOCKED"
	ReasonCircuitOpen       Reason = "CIRCUIT_OPEN"
	ReasonDownstreamFailure Reason = "DOWNSTREAM_FAILURE"
	ReasonDownstreamTimeout Reason = "DOWNSTREAM_TIMEOUT"
	ReasonInvalidRequest    Reason = "INVALID_REQUEST"
)

// IsPolicy reports whether the reason is a rejection decided before the
// protected operation ran.
func (r Reason) IsPolicy() bool {
	return r == ReasonRateLimited || r == ReasonBlocked || r == ReasonCircuitOpen
}

// Quota is the caller's rate-limit budget after the call.
type Quota struct {
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// IsZero reports whether no quota was computed, e.g. for blocked callers.
func (q Quota) IsZero() bool {
	return q.Limit == 0 && q.ResetAt.IsZero()
}

// Outcome is the result of one orchestrated call.
type Outcome[T any] struct {
	// Allowed is true only for ReasonOK.
	Allowed bool
	Reason  Reason

	// RetryAfter is set for policy rejections.
	RetryAfter time.Duration

	// Result is the operation's value when Allowed.
	Result T

	// Err is a *PolicyError for policy rejections, a *DownstreamError for
	// failed or timed out operations, or ErrInvalidRequestContext.
	Err error

	Quota     Quota
	Key       identity.Key
	Operation string

	// Degraded is set when the shared store was unreachable and a
	// fallback policy decided.
	Degraded bool

	Duration time.Duration
}

// Report is the type-erased view of an Outcome passed to observers.
type Report struct {
	Operation  string
	Key        identity.Key
	Reason     Reason
	RetryAfter time.Duration
	Quota      Quota
	Degraded   bool
	Duration   time.Duration
	Err        error
}

// Report returns the outcome without its result value.
func (o Outcome[T]) Report() Report {
	return Report{
		Operation:  o.Operation,
		Key:        o.Key,
		Reason:     o.Reason,
		RetryAfter: o.RetryAfter,
		Quota:      o.Quota,
		Degraded:   o.Degraded,
		Duration:   o.Duration,
		Err:        o.Err,
	}
}
