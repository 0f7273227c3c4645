package httpapi

import (
	"net/http"

	"github.com/jonwraymond/gatekeep/resilience"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a rejected or failed request.
type ErrorDetail struct {
	// Code is the outcome reason, e.g. "RATE_LIMITED".
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

// StatusCode maps an outcome reason to an HTTP status.
func StatusCode(reason resilience.Reason) int {
	switch reason {
	case resilience.ReasonOK:
		return http.StatusOK
	case resilience.ReasonRateLimited, resilience.ReasonBlocked:
		return http.StatusTooManyRequests
	case resilience.ReasonCircuitOpen:
		return http.StatusServiceUnavailable
	case resilience.ReasonDownstreamTimeout:
		return http.StatusGatewayTimeout
	case resilience.ReasonInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// message is the user-facing text for a reason. Dependency error details
// are never included.
func message(reason resilience.Reason) string {
	switch reason {
	case resilience.ReasonRateLimited:
		return "rate limit exceeded"
	case resilience.ReasonBlocked:
		return "too many requests; caller is temporarily blocked"
	case resilience.ReasonCircuitOpen:
		return "upstream temporarily unavailable"
	case resilience.ReasonDownstreamTimeout:
		return "upstream timed out"
	case resilience.ReasonInvalidRequest:
		return "unable to identify caller"
	default:
		return "upstream request failed"
	}
}
