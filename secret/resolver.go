package secret

import (
	"context"
	"fmt"
	"strings"
)

const refPrefix = "secretref:"

// Resolver resolves secret references using registered providers.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver with the given providers.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// DefaultResolver returns a resolver with the env and file providers.
func DefaultResolver() *Resolver {
	return NewResolver(EnvProvider{}, FileProvider{})
}

// ResolveValue resolves value if it is a secret reference and returns it
// unchanged otherwise. Environment variables in the reference itself are
// expanded, e.g. secretref:file:${SECRETS_DIR}/jwt.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	providerName, ref, ok := ParseSecretRef(value)
	if !ok {
		return value, nil
	}
	ref, err := ExpandEnvStrict(ref)
	if err != nil {
		return "", err
	}

	p, ok := r.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
	resolved, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if resolved == "" {
		return "", fmt.Errorf("%w: %s", ErrEmpty, providerName)
	}
	return resolved, nil
}

// ResolveAll resolves every non-empty value in place, stopping at the first
// error. Map keys label the values in errors.
func (r *Resolver) ResolveAll(ctx context.Context, values map[string]*string) error {
	for name, v := range values {
		if v == nil || *v == "" {
			continue
		}
		resolved, err := r.ResolveValue(ctx, *v)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		*v = resolved
	}
	return nil
}

// ParseSecretRef parses a reference of the form secretref:<provider>:<ref>.
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	rest, found := strings.CutPrefix(value, refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}
