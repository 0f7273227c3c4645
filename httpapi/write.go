package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jonwraymond/gatekeep/resilience"
)

// WriteOutcome writes the headers for r and, unless the call succeeded, the
// error response. It returns true when an error response was written, in
// which case the caller must not write to w again.
//
// Use it in handlers that call the Orchestrator around their own outbound
// dependencies.
func WriteOutcome(w http.ResponseWriter, req *http.Request, r resilience.Report) bool {
	SetQuotaHeaders(w.Header(), r.Quota, r.Degraded)
	if r.Reason == resilience.ReasonOK {
		return false
	}
	WriteError(w, req, r.Reason, r.RetryAfter)
	return true
}

// WriteError writes the JSON error envelope for reason. Retry-After is set
// for policy rejections.
func WriteError(w http.ResponseWriter, req *http.Request, reason resilience.Reason, retryAfter time.Duration) {
	id := CorrelationID(req)

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderCorrelationID, id)
	if reason.IsPolicy() {
		h.Set(HeaderRetryAfter, strconv.FormatInt(RetryAfterSeconds(retryAfter), 10))
	}

	w.WriteHeader(StatusCode(reason))
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{
		Code:          string(reason),
		Message:       message(reason),
		CorrelationID: id,
	}})
}
