package auth

import (
	"net/http"
)

// MiddlewareOptions configures HTTPMiddleware.
type MiddlewareOptions struct {
	// OnFailure is called when a presented credential is rejected or the
	// authenticator errors. The request still proceeds anonymously.
	OnFailure func(r *http.Request, err error)
}

// HTTPMiddleware attaches the identity proven by authn to the request
// context. Requests without credentials, or with credentials authn rejects,
// continue with an anonymous identity so they are keyed by network origin.
func HTTPMiddleware(authn Authenticator, opts MiddlewareOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			req := &AuthRequest{Headers: r.Header, Resource: r.URL.Path}

			id := AnonymousIdentity()
			if authn != nil && authn.Supports(ctx, req) {
				res, err := authn.Authenticate(ctx, req)
				switch {
				case err != nil:
					opts.failed(r, err)
				case !res.Authenticated:
					opts.failed(r, res.Error)
				default:
					id = res.Identity
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

func (o MiddlewareOptions) failed(r *http.Request, err error) {
	if o.OnFailure != nil {
		o.OnFailure(r, err)
	}
}
