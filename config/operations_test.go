package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const operationsYAML = `
operations:
  - id: search
    pathPrefix: /search
    cost: 2
    callTimeoutMs: 2000
  - id: login
    pathPrefix: /login
    points: 5
    durationMs: 1000
  - id: reports
`

func TestParseOperations(t *testing.T) {
	ops, err := ParseOperations([]byte(operationsYAML))
	if err != nil {
		t.Fatalf("ParseOperations() error = %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("len(ops) = %d, want 3", len(ops))
	}
	if ops[0].ID != "search" || ops[0].PathPrefix != "/search" || ops[0].Cost != 2 || ops[0].CallTimeoutMs != 2000 {
		t.Errorf("ops[0] = %+v", ops[0])
	}
	if ops[1].Points != 5 || ops[1].DurationMs != 1000 {
		t.Errorf("ops[1] = %+v", ops[1])
	}
}

func TestParseOperations_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", "operations:\n  - pathPrefix: /a\n"},
		{"duplicate id", "operations:\n  - id: a\n  - id: a\n"},
		{"relative prefix", "operations:\n  - id: a\n    pathPrefix: a\n"},
		{"negative cost", "operations:\n  - id: a\n    cost: -1\n"},
		{"threshold above 100", "operations:\n  - id: a\n    errorThresholdPercentage: 101\n"},
		{"negative timeout", "operations:\n  - id: a\n    callTimeoutMs: -5\n"},
		{"unknown field", "operations:\n  - id: a\n    burst: 3\n"},
		{"not yaml", "operations: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseOperations([]byte(tt.doc)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseOperations() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_OperationConfig(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	plain := cfg.OperationConfig(Operation{ID: "reports"})
	if plain.ID != "reports" || plain.Limiter != nil || plain.Breaker != nil {
		t.Errorf("OperationConfig(reports) = %+v, want defaults", plain)
	}

	login := cfg.OperationConfig(Operation{ID: "login", Points: 5, DurationMs: 1000})
	if login.Limiter == nil || login.Limiter.Points != 5 || login.Limiter.Window != time.Second {
		t.Fatalf("login limiter = %+v", login.Limiter)
	}
	if login.Limiter.Fallback != cfg.Limiter().Fallback {
		t.Errorf("login fallback = %v, want gateway default", login.Limiter.Fallback)
	}

	search := cfg.OperationConfig(Operation{ID: "search", CallTimeoutMs: 2000})
	if search.Breaker == nil {
		t.Fatal("search breaker should be set")
	}
	if search.Breaker.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %v, want 2s", search.Breaker.CallTimeout)
	}
	if search.Breaker.ErrorThresholdPercentage != 50 || search.Breaker.ResetTimeout != 30*time.Second {
		t.Errorf("unset breaker fields should inherit defaults: %+v", search.Breaker)
	}
}

func TestLoad_OperationsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.yaml")
	if err := os.WriteFile(path, []byte(operationsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GATEKEEP_OPERATIONS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Operations) != 3 {
		t.Errorf("len(Operations) = %d, want 3", len(cfg.Operations))
	}

	t.Setenv("GATEKEEP_OPERATIONS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
}
