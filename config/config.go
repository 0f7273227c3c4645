package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/gatekeep/auth"
	"github.com/jonwraymond/gatekeep/identity"
	"github.com/jonwraymond/gatekeep/observe"
	"github.com/jonwraymond/gatekeep/resilience"
	"github.com/jonwraymond/gatekeep/secret"
)

// Prefix is the environment variable prefix.
const Prefix = "GATEKEEP"

// Config holds all gateway configuration.
type Config struct {
	// Rate limiting.
	Points              int    `envconfig:"POINTS" default:"100"`
	DurationMs          int64  `envconfig:"DURATION_MS" default:"60000"`
	StoreFallbackPolicy string `envconfig:"STORE_FALLBACK_POLICY" default:"fail-open"`
	InsurancePoints     int    `envconfig:"INSURANCE_POINTS" default:"0"`

	// Blocking.
	BaseBlockMs       int64  `envconfig:"BASE_BLOCK_MS" default:"60000"`
	MaxBlockMs        int64  `envconfig:"MAX_BLOCK_MS" default:"3600000"`
	ViolationMemoryMs int64  `envconfig:"VIOLATION_MEMORY_MS" default:"0"`
	Escalation        string `envconfig:"ESCALATION" default:"persist"`

	// Circuit breaking.
	ErrorThresholdPercentage int   `envconfig:"ERROR_THRESHOLD_PERCENTAGE" default:"50"`
	VolumeThreshold          int   `envconfig:"VOLUME_THRESHOLD" default:"10"`
	WindowMs                 int64 `envconfig:"WINDOW_MS" default:"60000"`
	ResetTimeoutMs           int64 `envconfig:"RESET_TIMEOUT_MS" default:"30000"`
	CallTimeoutMs            int64 `envconfig:"CALL_TIMEOUT_MS" default:"10000"`

	// Shared store. An empty RedisAddr selects the in-process store.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"gatekeep"`
	// RedisServerClock takes window and block times from the Redis server
	// instead of each gateway's own clock.
	RedisServerClock bool `envconfig:"REDIS_SERVER_CLOCK" default:"true"`

	// Server.
	ListenAddr        string `envconfig:"LISTEN_ADDR" default:":8080"`
	UpstreamURL       string `envconfig:"UPSTREAM_URL"`
	Operation         string `envconfig:"OPERATION" default:"upstream"`
	TrustXFF          bool   `envconfig:"TRUST_XFF" default:"false"`
	UserAgentFamily   bool   `envconfig:"USER_AGENT_FAMILY" default:"false"`
	ShutdownTimeoutMs int64  `envconfig:"SHUTDOWN_TIMEOUT_MS" default:"15000"`

	// OperationsFile is a YAML file of per-operation overrides routed by
	// path prefix. Its contents are loaded into Operations.
	OperationsFile string      `envconfig:"OPERATIONS_FILE"`
	Operations     []Operation `ignored:"true"`

	// Observability.
	ServiceName     string  `envconfig:"SERVICE_NAME" default:"gatekeep"`
	Version         string  `envconfig:"VERSION" default:"dev"`
	LogLevel        string  `envconfig:"LOG_LEVEL" default:"info"`
	MetricsExporter string  `envconfig:"METRICS_EXPORTER" default:"prometheus"`
	TracingExporter string  `envconfig:"TRACING_EXPORTER" default:"none"`
	TraceSample     float64 `envconfig:"TRACE_SAMPLE" default:"1.0"`

	// Authentication. Callers are keyed by origin when JWTSecret is empty.
	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWTIssuer   string `envconfig:"JWT_ISSUER"`
	JWTAudience string `envconfig:"JWT_AUDIENCE"`
}

// Load reads the configuration from the environment, resolves secret
// references and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.ResolveSecrets(context.Background(), secret.DefaultResolver()); err != nil {
		return nil, err
	}
	if cfg.OperationsFile != "" {
		ops, err := LoadOperations(cfg.OperationsFile)
		if err != nil {
			return nil, err
		}
		cfg.Operations = ops
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveSecrets replaces secretref: values in the secret-bearing settings,
// e.g. GATEKEEP_JWT_SECRET=secretref:file:/run/secrets/jwt.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	err := r.ResolveAll(ctx, map[string]*string{
		"JWT_SECRET":     &c.JWTSecret,
		"REDIS_PASSWORD": &c.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Points <= 0 {
		invalid("POINTS must be positive, got %d", c.Points)
	}
	if c.DurationMs <= 0 {
		invalid("DURATION_MS must be positive, got %d", c.DurationMs)
	}
	if c.InsurancePoints < 0 {
		invalid("INSURANCE_POINTS must not be negative, got %d", c.InsurancePoints)
	}
	if c.BaseBlockMs <= 0 || c.MaxBlockMs <= 0 {
		invalid("BASE_BLOCK_MS and MAX_BLOCK_MS must be positive")
	} else if c.MaxBlockMs < c.BaseBlockMs {
		invalid("MAX_BLOCK_MS %d is below BASE_BLOCK_MS %d", c.MaxBlockMs, c.BaseBlockMs)
	}
	if c.ViolationMemoryMs < 0 {
		invalid("VIOLATION_MEMORY_MS must not be negative, got %d", c.ViolationMemoryMs)
	}
	if c.ErrorThresholdPercentage < 1 || c.ErrorThresholdPercentage > 100 {
		invalid("ERROR_THRESHOLD_PERCENTAGE must be in [1, 100], got %d", c.ErrorThresholdPercentage)
	}
	if c.VolumeThreshold <= 0 {
		invalid("VOLUME_THRESHOLD must be positive, got %d", c.VolumeThreshold)
	}
	if c.WindowMs <= 0 || c.ResetTimeoutMs <= 0 || c.CallTimeoutMs <= 0 {
		invalid("WINDOW_MS, RESET_TIMEOUT_MS and CALL_TIMEOUT_MS must be positive")
	}
	if c.UpstreamURL != "" {
		if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
			invalid("UPSTREAM_URL %q is not an absolute URL", c.UpstreamURL)
		}
	}
	if c.Operation == "" {
		invalid("OPERATION must not be empty")
	}

	if _, err := resilience.ParseFallbackPolicy(c.StoreFallbackPolicy); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if _, err := resilience.ParseEscalationPolicy(c.Escalation); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	obs := c.Observe(nil)
	if err := obs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	return errors.Join(errs...)
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Limiter returns the rate limiter configuration.
func (c *Config) Limiter() resilience.RateLimiterConfig {
	fallback, _ := resilience.ParseFallbackPolicy(c.StoreFallbackPolicy)
	return resilience.RateLimiterConfig{
		Points:   c.Points,
		Window:   ms(c.DurationMs),
		Fallback: fallback,
		Insurance: resilience.InsuranceConfig{
			Points: c.InsurancePoints,
		},
	}
}

// Blocklist returns the blocklist configuration.
func (c *Config) Blocklist() resilience.BlocklistConfig {
	escalation, _ := resilience.ParseEscalationPolicy(c.Escalation)
	return resilience.BlocklistConfig{
		BaseBlock:  ms(c.BaseBlockMs),
		MaxBlock:   ms(c.MaxBlockMs),
		Escalation: escalation,
		Memory:     ms(c.ViolationMemoryMs),
	}
}

// Breaker returns the default circuit breaker configuration.
func (c *Config) Breaker() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		ErrorThresholdPercentage: c.ErrorThresholdPercentage,
		VolumeThreshold:          c.VolumeThreshold,
		Window:                   ms(c.WindowMs),
		ResetTimeout:             ms(c.ResetTimeoutMs),
		CallTimeout:              ms(c.CallTimeoutMs),
	}
}

// Observe returns the telemetry configuration. reg receives the prometheus
// collector when the prometheus metrics exporter is selected.
func (c *Config) Observe(reg prometheus.Registerer) observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.TracingExporter != "" && c.TracingExporter != "none",
			Exporter:  c.TracingExporter,
			SamplePct: c.TraceSample,
		},
		Metrics: observe.MetricsConfig{
			Enabled:    c.MetricsExporter != "" && c.MetricsExporter != "none",
			Exporter:   c.MetricsExporter,
			Registerer: reg,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.LogLevel,
		},
	}
}

// JWT returns the authenticator configuration and whether authentication is
// enabled.
func (c *Config) JWT() (auth.JWTConfig, bool) {
	return auth.JWTConfig{
		Issuer:      c.JWTIssuer,
		Audience:    c.JWTAudience,
		TenantClaim: "tenant",
	}, c.JWTSecret != ""
}

// Identity returns the options for reading caller identities from requests.
func (c *Config) Identity() identity.HTTPOptions {
	return identity.HTTPOptions{
		TrustForwardedFor: c.TrustXFF,
		UserAgentFamily:   c.UserAgentFamily,
	}
}

// Redis returns the Redis client options, or nil when no Redis address is
// configured.
func (c *Config) Redis() *redis.Options {
	if c.RedisAddr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// ShutdownTimeout is how long the server drains in-flight requests.
func (c *Config) ShutdownTimeout() time.Duration {
	return ms(c.ShutdownTimeoutMs)
}
