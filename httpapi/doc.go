// Package httpapi exposes the resilience Orchestrator over HTTP.
//
// Middleware treats the wrapped handler as the protected operation: the
// caller's key is resolved from the request, blocking and rate limiting are
// applied, and the handler runs behind the operation's circuit breaker.
// Every handled response carries X-RateLimit-* headers. Policy rejections
// and dependency failures are written as a JSON error envelope:
//
//	{"error":{"code":"RATE_LIMITED","message":"...","correlationId":"..."}}
//
// Status codes: 429 for RATE_LIMITED and BLOCKED (with Retry-After), 503
// for CIRCUIT_OPEN, 504 for DOWNSTREAM_TIMEOUT, 502 for DOWNSTREAM_FAILURE
// and 400 for INVALID_REQUEST.
package httpapi
