package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/jonwraymond/gatekeep/resilience"
)

// Operation is one entry of the operations file. Zero-valued limits inherit
// the gateway-wide settings.
type Operation struct {
	ID         string `yaml:"id"`
	PathPrefix string `yaml:"pathPrefix"`
	Cost       int    `yaml:"cost"`

	// Points and DurationMs give the operation its own budget.
	Points     int   `yaml:"points"`
	DurationMs int64 `yaml:"durationMs"`

	ErrorThresholdPercentage int   `yaml:"errorThresholdPercentage"`
	VolumeThreshold          int   `yaml:"volumeThreshold"`
	WindowMs                 int64 `yaml:"windowMs"`
	ResetTimeoutMs           int64 `yaml:"resetTimeoutMs"`
	CallTimeoutMs            int64 `yaml:"callTimeoutMs"`
}

type operationsFile struct {
	Operations []Operation `yaml:"operations"`
}

// ParseOperations decodes and validates an operations document:
//
//	operations:
//	  - id: search
//	    pathPrefix: /search
//	    cost: 2
//	    callTimeoutMs: 2000
//
// Unknown fields are rejected.
func ParseOperations(data []byte) ([]Operation, error) {
	var f operationsFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("%w: operations: %w", ErrInvalidConfig, err)
	}

	seen := make(map[string]bool, len(f.Operations))
	for i, op := range f.Operations {
		switch {
		case op.ID == "":
			return nil, fmt.Errorf("%w: operations[%d]: id is required", ErrInvalidConfig, i)
		case seen[op.ID]:
			return nil, fmt.Errorf("%w: operations[%d]: duplicate id %q", ErrInvalidConfig, i, op.ID)
		case op.PathPrefix != "" && !strings.HasPrefix(op.PathPrefix, "/"):
			return nil, fmt.Errorf("%w: operation %q: pathPrefix %q must start with /", ErrInvalidConfig, op.ID, op.PathPrefix)
		case op.Cost < 0 || op.Points < 0 || op.DurationMs < 0:
			return nil, fmt.Errorf("%w: operation %q: cost and limits must not be negative", ErrInvalidConfig, op.ID)
		case op.ErrorThresholdPercentage < 0 || op.ErrorThresholdPercentage > 100:
			return nil, fmt.Errorf("%w: operation %q: errorThresholdPercentage must be in [0, 100]", ErrInvalidConfig, op.ID)
		case op.VolumeThreshold < 0 || op.WindowMs < 0 || op.ResetTimeoutMs < 0 || op.CallTimeoutMs < 0:
			return nil, fmt.Errorf("%w: operation %q: breaker settings must not be negative", ErrInvalidConfig, op.ID)
		}
		seen[op.ID] = true
	}
	return f.Operations, nil
}

// LoadOperations reads the operations file at path.
func LoadOperations(path string) ([]Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: operations file: %w", ErrInvalidConfig, err)
	}
	return ParseOperations(data)
}

// OperationConfig converts op into an orchestrator operation, filling
// unset limits from c.
func (c *Config) OperationConfig(op Operation) resilience.OperationConfig {
	out := resilience.OperationConfig{ID: op.ID, Cost: op.Cost}

	if op.Points > 0 {
		limiter := c.Limiter()
		limiter.Points = op.Points
		if op.DurationMs > 0 {
			limiter.Window = ms(op.DurationMs)
		}
		out.Limiter = &limiter
	}

	if op.ErrorThresholdPercentage > 0 || op.VolumeThreshold > 0 || op.WindowMs > 0 ||
		op.ResetTimeoutMs > 0 || op.CallTimeoutMs > 0 {
		breaker := c.Breaker()
		if op.ErrorThresholdPercentage > 0 {
			breaker.ErrorThresholdPercentage = op.ErrorThresholdPercentage
		}
		if op.VolumeThreshold > 0 {
			breaker.VolumeThreshold = op.VolumeThreshold
		}
		if op.WindowMs > 0 {
			breaker.Window = ms(op.WindowMs)
		}
		if op.ResetTimeoutMs > 0 {
			breaker.ResetTimeout = ms(op.ResetTimeoutMs)
		}
		if op.CallTimeoutMs > 0 {
			breaker.CallTimeout = ms(op.CallTimeoutMs)
		}
		out.Breaker = &breaker
	}
	return out
}
