package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultPrefix is used when DefaultResolver.Prefix is empty.
const DefaultPrefix = "rl"

// Key is an opaque rate-limit key. Callers should treat it as a string token.
type Key string

// String returns the key as a plain string.
func (k Key) String() string { return string(k) }

// Request is the identity-bearing part of an inbound request.
type Request struct {
	// Principal is the authenticated user or service id. Optional.
	Principal string

	// TenantID scopes the principal in multi-tenant deployments. Optional.
	TenantID string

	// Origin is the network origin, usually the client IP. Optional.
	Origin string

	// Signature is a free-form request signature, e.g. a client header
	// joined with the user agent. Optional.
	Signature string

	// Attributes are additional fingerprint inputs. Optional.
	Attributes map[string]string
}

// Resolver derives a Key from a Request.
//
// Contract:
// - Determinism: equal requests must produce equal keys.
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: returns ErrInvalidRequestContext when no key can be derived.
type Resolver interface {
	Resolve(req Request) (Key, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(req Request) (Key, error)

// Resolve calls f(req).
func (f ResolverFunc) Resolve(req Request) (Key, error) { return f(req) }

// DefaultResolver prefers the principal over the origin and appends a
// fingerprint hash of the signature and attributes.
type DefaultResolver struct {
	// Prefix namespaces keys in the shared store.
	// Default: "rl"
	Prefix string
}

// NewDefaultResolver creates a resolver with the given key prefix.
func NewDefaultResolver(prefix string) *DefaultResolver {
	return &DefaultResolver{Prefix: prefix}
}

// Resolve implements Resolver.
func (r *DefaultResolver) Resolve(req Request) (Key, error) {
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	principal := strings.ToLower(strings.TrimSpace(req.Principal))
	origin := strings.TrimSpace(req.Origin)

	var subject string
	switch {
	case principal != "":
		subject = "p:" + strings.TrimSpace(req.TenantID) + "/" + principal
	case origin != "":
		subject = "o:" + origin
	default:
		return "", ErrInvalidRequestContext
	}

	fp, err := Fingerprint(req.Signature, req.Attributes)
	if err != nil {
		return "", err
	}

	return Key(fmt.Sprintf("%s:%s:%s", prefix, subject, fp)), nil
}

// Fingerprint hashes a signature and attribute set into 16 hex characters.
// Attribute order does not affect the result.
func Fingerprint(signature string, attrs map[string]string) (string, error) {
	fields := make(map[string]any, 2)
	fields["signature"] = signature
	if len(attrs) > 0 {
		m := make(map[string]any, len(attrs))
		for k, v := range attrs {
			m[k] = v
		}
		fields["attributes"] = m
	}

	canonical, err := canonicalize(fields)
	if err != nil {
		return "", fmt.Errorf("identity: failed to canonicalize fingerprint: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8]), nil
}

var _ Resolver = (*DefaultResolver)(nil)
