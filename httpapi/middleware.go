package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"github.com/jonwraymond/gatekeep/identity"
	"github.com/jonwraymond/gatekeep/resilience"
)

// Options configures Middleware.
type Options struct {
	// Operation names the protected operation, usually the upstream
	// dependency. Required.
	Operation string

	// OperationFunc derives the operation from the request. It takes
	// precedence over Operation when it returns a non-empty string.
	OperationFunc func(r *http.Request) string

	// Identity controls how the caller's identity is read from requests.
	Identity identity.HTTPOptions
}

// StatusError is the error a handler's response maps to when its status
// counts as a downstream failure.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpapi: handler responded %d", e.Status)
}

// Middleware runs next as a protected operation of o.
//
// A handler response with status 500 or above counts as a failure for the
// circuit breaker but is still relayed to the client unchanged. Rejections,
// timeouts and panics produce the JSON error envelope instead. Responses are
// buffered in full before they are relayed, so handlers that stream large or
// unbounded bodies belong outside the middleware.
//
// Protocol upgrades (Connection: Upgrade) are admitted by the blocklist,
// the limiter and the open-circuit check, then served directly on w so the
// handler can hijack the connection. Their outcome does not feed the breaker.
func Middleware(o *resilience.Orchestrator, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operation := opts.Operation
			if opts.OperationFunc != nil {
				if op := opts.OperationFunc(r); op != "" {
					operation = op
				}
			}

			if isUpgrade(r) {
				serveUpgrade(w, r, o, opts, operation, next)
				return
			}

			rec := newRecorder()
			out := o.Do(r.Context(), identity.FromHTTP(r, opts.Identity), operation, func(ctx context.Context) error {
				next.ServeHTTP(rec, r.WithContext(ctx))
				if status := rec.Status(); status >= http.StatusInternalServerError {
					return &StatusError{Status: status}
				}
				return nil
			})

			report := out.Report()
			if report.Reason == resilience.ReasonBlocked && report.Quota.IsZero() {
				report.Quota = blockedQuota(o, report)
			}

			var statusErr *StatusError
			if out.Allowed || (report.Reason == resilience.ReasonDownstreamFailure && errors.As(out.Err, &statusErr)) {
				rec.relay(w, func(h http.Header) {
					SetQuotaHeaders(h, report.Quota, report.Degraded)
				})
				return
			}

			rec.close()
			WriteOutcome(w, r, report)
		})
	}
}

func isUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" &&
		httpguts.HeaderValuesContainsToken(r.Header["Connection"], "Upgrade")
}

func serveUpgrade(w http.ResponseWriter, r *http.Request, o *resilience.Orchestrator, opts Options, operation string, next http.Handler) {
	out := o.Admit(r.Context(), identity.FromHTTP(r, opts.Identity), operation)
	report := out.Report()
	if !out.Allowed {
		if report.Reason == resilience.ReasonBlocked && report.Quota.IsZero() {
			report.Quota = blockedQuota(o, report)
		}
		WriteOutcome(w, r, report)
		return
	}
	SetQuotaHeaders(w.Header(), report.Quota, report.Degraded)
	next.ServeHTTP(w, r)
}

// blockedQuota reports an empty budget until the block lifts.
func blockedQuota(o *resilience.Orchestrator, r resilience.Report) resilience.Quota {
	cfg := o.Limiter().Config()
	return resilience.Quota{
		Limit:     int64(cfg.Points),
		Remaining: 0,
		ResetAt:   cfg.Clock().Add(r.RetryAfter),
	}
}
