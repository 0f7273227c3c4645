package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrUnavailable wraps any failure to reach the backing store.
	// Callers apply their fallback policy when they see it.
	ErrUnavailable = errors.New("store: backing store unavailable")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("store: key is invalid")

	// ErrInvalidRequest is returned for non-positive limits, costs or windows.
	ErrInvalidRequest = errors.New("store: invalid request")
)
