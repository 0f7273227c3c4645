package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPMiddleware(t *testing.T) {
	a := newTestJWT()

	tests := []struct {
		name          string
		header        string
		wantPrincipal string
		wantAnonymous bool
		wantFailure   bool
	}{
		{
			name:          "valid token",
			header:        "Bearer " + signToken(t, testSecret, validClaims()),
			wantPrincipal: "user-1",
		},
		{
			name:          "no credentials",
			wantAnonymous: true,
		},
		{
			name:          "invalid token",
			header:        "Bearer " + signToken(t, []byte("forged"), validClaims()),
			wantAnonymous: true,
			wantFailure:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Identity
			var failure error
			h := HTTPMiddleware(a, MiddlewareOptions{
				OnFailure: func(_ *http.Request, err error) { failure = err },
			})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
			if got == nil {
				t.Fatal("identity not attached to context")
			}
			if got.IsAnonymous() != tt.wantAnonymous {
				t.Errorf("IsAnonymous() = %v, want %v", got.IsAnonymous(), tt.wantAnonymous)
			}
			if tt.wantPrincipal != "" && got.Principal != tt.wantPrincipal {
				t.Errorf("Principal = %q, want %q", got.Principal, tt.wantPrincipal)
			}
			if (failure != nil) != tt.wantFailure {
				t.Errorf("OnFailure called = %v, want %v (err %v)", failure != nil, tt.wantFailure, failure)
			}
			if tt.wantFailure && !errors.Is(failure, ErrInvalidCredentials) {
				t.Errorf("failure = %v, want ErrInvalidCredentials", failure)
			}
		})
	}
}

func TestHTTPMiddleware_NilAuthenticator(t *testing.T) {
	var got *Identity
	h := HTTPMiddleware(nil, MiddlewareOptions{})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !got.IsAnonymous() {
		t.Errorf("identity = %+v, want anonymous", got)
	}
}
