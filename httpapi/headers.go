package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jonwraymond/gatekeep/resilience"
)

// Header names written by this package.
const (
	HeaderLimit         = "X-RateLimit-Limit"
	HeaderRemaining     = "X-RateLimit-Remaining"
	HeaderReset         = "X-RateLimit-Reset"
	HeaderStatus        = "X-RateLimit-Status"
	HeaderRetryAfter    = "Retry-After"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
)

// SetQuotaHeaders writes the X-RateLimit-* headers for q. X-RateLimit-Reset
// is the window end in epoch seconds, rounded up.
func SetQuotaHeaders(h http.Header, q resilience.Quota, degraded bool) {
	if !q.IsZero() {
		h.Set(HeaderLimit, strconv.FormatInt(q.Limit, 10))
		h.Set(HeaderRemaining, strconv.FormatInt(max(q.Remaining, 0), 10))
		h.Set(HeaderReset, strconv.FormatInt(ceilSeconds(q.ResetAt), 10))
	}
	if degraded {
		h.Set(HeaderStatus, "degraded")
	}
}

// RetryAfterSeconds rounds d up to whole seconds, with a minimum of 1.
func RetryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// CorrelationID returns the request's correlation id: X-Correlation-ID,
// then X-Request-ID, then the id set by chi's RequestID middleware, else a
// new UUID.
func CorrelationID(r *http.Request) string {
	if id := r.Header.Get(HeaderCorrelationID); id != "" {
		return id
	}
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func ceilSeconds(t time.Time) int64 {
	ms := t.UnixMilli()
	return (ms + 999) / 1000
}
