package identity

import "errors"

// ErrInvalidRequestContext is returned when a request carries neither a
// principal nor an origin, so no key can be derived.
var ErrInvalidRequestContext = errors.New("identity: request has neither principal nor origin")
