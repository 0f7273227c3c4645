package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/gatekeep/identity"
	"github.com/jonwraymond/gatekeep/store"
)

// Sentinel errors for resilience operations.
var (
	// ErrRateLimited is returned when a key has exhausted its window.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")

	// ErrBlocked is returned while a key is serving an abuse block.
	ErrBlocked = errors.New("resilience: caller is temporarily blocked")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrDownstream marks a failure returned by the protected operation.
	ErrDownstream = errors.New("resilience: downstream operation failed")

	// ErrPanic is wrapped when the protected operation panics.
	ErrPanic = errors.New("resilience: operation panicked")

	// ErrInvalidConfig is returned by Validate methods.
	ErrInvalidConfig = errors.New("resilience: invalid configuration")

	// ErrStoreUnavailable is the store's unavailability error. It is
	// resolved through the limiter's fallback policy and never returned to
	// callers of the Orchestrator.
	ErrStoreUnavailable = store.ErrUnavailable

	// ErrInvalidRequestContext is returned when no identity key can be
	// derived from a request.
	ErrInvalidRequestContext = identity.ErrInvalidRequestContext
)

// PolicyError is a rejection by rate limiting, blocking or an open circuit.
// It unwraps to ErrRateLimited, ErrBlocked or ErrCircuitOpen.
type PolicyError struct {
	Reason     Reason
	RetryAfter time.Duration
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Unwrap(), e.RetryAfter.Round(time.Millisecond))
}

// Unwrap returns the sentinel for the rejection reason.
func (e *PolicyError) Unwrap() error {
	switch e.Reason {
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonBlocked:
		return ErrBlocked
	case ReasonCircuitOpen:
		return ErrCircuitOpen
	default:
		return ErrInvalidRequestContext
	}
}

// DownstreamError wraps an error returned by a protected operation.
//
// Error omits the wrapped error's text so dependency internals never reach
// end users; errors.Is and errors.As still see the original error.
type DownstreamError struct {
	Operation string
	Timeout   bool
	Err       error
}

func (e *DownstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("resilience: operation %q timed out", e.Operation)
	}
	return fmt.Sprintf("resilience: operation %q failed", e.Operation)
}

// Unwrap returns ErrTimeout or ErrDownstream along with the original error.
func (e *DownstreamError) Unwrap() []error {
	kind := ErrDownstream
	if e.Timeout {
		kind = ErrTimeout
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

// IsPolicyRejection reports whether err is a rate limit, block or open
// circuit rejection.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrBlocked) || errors.Is(err, ErrCircuitOpen)
}
