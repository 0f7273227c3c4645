package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultResolver_PrefersPrincipal(t *testing.T) {
	r := NewDefaultResolver("rl")

	key, err := r.Resolve(Request{Principal: "User-42", TenantID: "acme", Origin: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.HasPrefix(string(key), "rl:p:acme/user-42:") {
		t.Errorf("Resolve() = %q, want principal-based key", key)
	}
}

func TestDefaultResolver_FallsBackToOrigin(t *testing.T) {
	r := NewDefaultResolver("")

	key, err := r.Resolve(Request{Origin: "203.0.113.7"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.HasPrefix(string(key), DefaultPrefix+":o:203.0.113.7:") {
		t.Errorf("Resolve() = %q, want origin-based key", key)
	}
}

func TestDefaultResolver_InvalidRequestContext(t *testing.T) {
	r := NewDefaultResolver("rl")

	tests := []struct {
		name string
		req  Request
	}{
		{name: "empty", req: Request{}},
		{name: "whitespace", req: Request{Principal: "  ", Origin: " "}},
		{name: "signature only", req: Request{Signature: "abc"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(tc.req)
			if !errors.Is(err, ErrInvalidRequestContext) {
				t.Errorf("Resolve() error = %v, want ErrInvalidRequestContext", err)
			}
		})
	}
}

func TestDefaultResolver_Deterministic(t *testing.T) {
	r := NewDefaultResolver("rl")
	req := Request{
		Principal:  "alice",
		Signature:  "sig|curl/8.0",
		Attributes: map[string]string{"b": "2", "a": "1", "c": "3"},
	}
	same := Request{
		Principal:  " Alice ",
		Signature:  "sig|curl/8.0",
		Attributes: map[string]string{"c": "3", "a": "1", "b": "2"},
	}

	k1, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	k2, err := r.Resolve(same)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if k1 != k2 {
		t.Errorf("keys differ for equivalent requests:\n  k1=%s\n  k2=%s", k1, k2)
	}
}

func TestDefaultResolver_FingerprintDistinguishesContext(t *testing.T) {
	r := NewDefaultResolver("rl")

	k1, _ := r.Resolve(Request{Origin: "10.0.0.1", Signature: "client-a"})
	k2, _ := r.Resolve(Request{Origin: "10.0.0.1", Signature: "client-b"})
	if k1 == k2 {
		t.Errorf("keys should differ for different signatures: %s", k1)
	}

	k3, _ := r.Resolve(Request{Origin: "10.0.0.1", Attributes: map[string]string{"device": "x"}})
	k4, _ := r.Resolve(Request{Origin: "10.0.0.1", Attributes: map[string]string{"device": "y"}})
	if k3 == k4 {
		t.Errorf("keys should differ for different attributes: %s", k3)
	}
}

func TestFingerprint_Length(t *testing.T) {
	fp, err := Fingerprint("sig", nil)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if len(fp) != 16 {
		t.Errorf("len(Fingerprint()) = %d, want 16", len(fp))
	}
}

func TestResolverFunc(t *testing.T) {
	var r Resolver = ResolverFunc(func(req Request) (Key, error) {
		return Key("static:" + req.Origin), nil
	})

	key, err := r.Resolve(Request{Origin: "x"})
	if err != nil || key != "static:x" {
		t.Errorf("Resolve() = %q, %v; want static:x, nil", key, err)
	}
}
