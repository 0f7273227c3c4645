package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestAuthRequest_GetHeader(t *testing.T) {
	req := &AuthRequest{Headers: http.Header{}}
	req.Headers.Set("Authorization", "Bearer abc")

	if got := req.GetHeader("authorization"); got != "Bearer abc" {
		t.Errorf("GetHeader() = %q, want %q", got, "Bearer abc")
	}
	if got := req.GetHeader("X-Missing"); got != "" {
		t.Errorf("GetHeader(missing) = %q, want empty", got)
	}

	var empty AuthRequest
	if got := empty.GetHeader("Authorization"); got != "" {
		t.Errorf("GetHeader(nil headers) = %q, want empty", got)
	}
}

func TestAuthResults(t *testing.T) {
	id := &Identity{Principal: "user-1", Method: AuthMethodJWT}
	ok := AuthSuccess(id)
	if !ok.Authenticated || ok.Identity != id || ok.Method != "jwt" || ok.Error != nil {
		t.Errorf("AuthSuccess() = %+v", ok)
	}

	fail := AuthFailure(ErrInvalidCredentials, "jwt")
	if fail.Authenticated || fail.Identity != nil || !errors.Is(fail.Error, ErrInvalidCredentials) {
		t.Errorf("AuthFailure() = %+v", fail)
	}
}

func TestAuthenticatorFunc(t *testing.T) {
	authn := NewAuthenticatorFunc("static",
		func(_ context.Context, req *AuthRequest) bool {
			return req.GetHeader("X-User") != ""
		},
		func(_ context.Context, req *AuthRequest) (*AuthResult, error) {
			return AuthSuccess(&Identity{Principal: req.GetHeader("X-User"), Method: AuthMethodJWT}), nil
		},
	)

	if authn.Name() != "static" {
		t.Errorf("Name() = %q, want static", authn.Name())
	}

	ctx := context.Background()
	req := &AuthRequest{Headers: http.Header{"X-User": {"alice"}}}
	if !authn.Supports(ctx, req) {
		t.Fatal("Supports() = false, want true")
	}
	res, err := authn.Authenticate(ctx, req)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if res.Identity.Principal != "alice" {
		t.Errorf("Principal = %q, want alice", res.Identity.Principal)
	}

	if authn.Supports(ctx, &AuthRequest{}) {
		t.Error("Supports(no header) = true, want false")
	}
}
