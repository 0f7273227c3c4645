// Package auth attaches caller identities to requests.
//
// The gateway does not require authentication: a request carrying a valid
// bearer token is keyed by its principal and tenant, everything else is
// keyed by network origin. HTTPMiddleware runs an Authenticator and stores
// the resulting Identity in the request context, where identity.FromHTTP
// picks it up.
package auth
