package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/gatekeep/resilience"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		reason resilience.Reason
		want   int
	}{
		{resilience.ReasonOK, http.StatusOK},
		{resilience.ReasonRateLimited, http.StatusTooManyRequests},
		{resilience.ReasonBlocked, http.StatusTooManyRequests},
		{resilience.ReasonCircuitOpen, http.StatusServiceUnavailable},
		{resilience.ReasonDownstreamTimeout, http.StatusGatewayTimeout},
		{resilience.ReasonDownstreamFailure, http.StatusBadGateway},
		{resilience.ReasonInvalidRequest, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := StatusCode(tt.reason); got != tt.want {
				t.Errorf("StatusCode(%s) = %d, want %d", tt.reason, got, tt.want)
			}
		})
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int64
	}{
		{0, 1},
		{-time.Second, 1},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}

	for _, tt := range tests {
		if got := RetryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("RetryAfterSeconds(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSetQuotaHeaders(t *testing.T) {
	h := http.Header{}
	SetQuotaHeaders(h, resilience.Quota{
		Limit:     10,
		Remaining: 3,
		ResetAt:   time.UnixMilli(1_700_000_000_001),
	}, true)

	want := map[string]string{
		HeaderLimit:     "10",
		HeaderRemaining: "3",
		HeaderReset:     "1700000001",
		HeaderStatus:    "degraded",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	empty := http.Header{}
	SetQuotaHeaders(empty, resilience.Quota{}, false)
	if len(empty) != 0 {
		t.Errorf("zero quota wrote headers: %v", empty)
	}
}

func TestCorrelationID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	if got := CorrelationID(req); got != "req-1" {
		t.Errorf("CorrelationID() = %q, want req-1", got)
	}

	req.Header.Set(HeaderCorrelationID, "corr-1")
	if got := CorrelationID(req); got != "corr-1" {
		t.Errorf("CorrelationID() = %q, want corr-1", got)
	}

	chiReq := httptest.NewRequest(http.MethodGet, "/", nil)
	chiReq = chiReq.WithContext(context.WithValue(chiReq.Context(), middleware.RequestIDKey, "chi-7"))
	if got := CorrelationID(chiReq); got != "chi-7" {
		t.Errorf("CorrelationID() = %q, want chi-7", got)
	}

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	a, b := CorrelationID(bare), CorrelationID(bare)
	if a == "" || a == b {
		t.Errorf("generated ids = %q, %q; want distinct non-empty", a, b)
	}
}

func TestWriteOutcome(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	if WriteOutcome(rec, req, resilience.Report{Reason: resilience.ReasonOK, Quota: resilience.Quota{Limit: 5, Remaining: 4, ResetAt: time.Now()}}) {
		t.Fatal("WriteOutcome(OK) = true, want false")
	}
	if rec.Header().Get(HeaderRemaining) != "4" {
		t.Errorf("quota headers not set: %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	if !WriteOutcome(rec, req, resilience.Report{Reason: resilience.ReasonCircuitOpen, RetryAfter: 2500 * time.Millisecond}) {
		t.Fatal("WriteOutcome(CIRCUIT_OPEN) = false, want true")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get(HeaderRetryAfter); got != "3" {
		t.Errorf("Retry-After = %q, want 3", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := decodeError(t, rec).Code; got != "CIRCUIT_OPEN" {
		t.Errorf("code = %q, want CIRCUIT_OPEN", got)
	}
}
