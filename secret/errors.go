package secret

import "errors"

// Sentinel errors for secret resolution.
var (
	ErrNotFound        = errors.New("secret: not found")
	ErrUnknownProvider = errors.New("secret: provider is not registered")
	ErrEmpty           = errors.New("secret: provider returned empty value")
	ErrMissingEnv      = errors.New("secret: missing required environment variables")
)
