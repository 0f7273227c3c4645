package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPathOperations(t *testing.T) {
	p := NewPathOperations(map[string]string{
		"/api":        "api",
		"/api/export": "export",
		"/search/":    "search",
		"":            "ignored",
	})

	tests := []struct {
		path string
		want string
	}{
		{"/api", "api"},
		{"/api/users", "api"},
		{"/api/export", "export"},
		{"/api/export/csv", "export"},
		{"/api/exporter", "api"},
		{"/apis", ""},
		{"/search", "search"},
		{"/search/q", "search"},
		{"/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://gw"+tt.path, nil)
			if got := p.Operation(r); got != tt.want {
				t.Errorf("Operation(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestPathOperations_RootPrefix(t *testing.T) {
	p := NewPathOperations(map[string]string{"/": "catchall", "/api": "api"})

	r := httptest.NewRequest(http.MethodGet, "http://gw/anything", nil)
	if got := p.Operation(r); got != "catchall" {
		t.Errorf("Operation = %q, want catchall", got)
	}
	r = httptest.NewRequest(http.MethodGet, "http://gw/api/x", nil)
	if got := p.Operation(r); got != "api" {
		t.Errorf("Operation = %q, want api", got)
	}
}
