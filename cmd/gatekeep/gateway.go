package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/gatekeep/auth"
	"github.com/jonwraymond/gatekeep/config"
	"github.com/jonwraymond/gatekeep/health"
	"github.com/jonwraymond/gatekeep/httpapi"
	"github.com/jonwraymond/gatekeep/observe"
	"github.com/jonwraymond/gatekeep/resilience"
	"github.com/jonwraymond/gatekeep/store"
)

// openStore connects the shared store: Redis when configured, the
// in-process store otherwise. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	opts := cfg.Redis()
	if opts == nil {
		mem := store.NewMemoryStore()
		janitorCtx, cancel := context.WithCancel(ctx)
		mem.StartJanitor(janitorCtx, time.Minute)
		return mem, cancel, nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Start anyway; the limiter's fallback policy covers the outage.
		observe.NewLogger(cfg.LogLevel).Warn(ctx, "redis unreachable at startup",
			observe.Field{Key: "addr", Value: opts.Addr},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	storeOpts := []store.RedisOption{store.WithPrefix(cfg.RedisPrefix)}
	if cfg.RedisServerClock {
		storeOpts = append(storeOpts, store.WithServerClock())
	}
	return store.NewRedisStore(client, storeOpts...), func() { _ = client.Close() }, nil
}

// newGateway assembles the HTTP surface: metrics and health endpoints plus
// the protected reverse proxy.
func newGateway(cfg *config.Config, st store.Store, obs observe.Observer, gatherer prometheus.Gatherer) (http.Handler, error) {
	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("%w: upstream url: %w", config.ErrInvalidConfig, err)
	}

	metrics, tracer, err := observe.Instruments(obs)
	if err != nil {
		return nil, err
	}
	logger := obs.Logger()

	opts := []resilience.Option{
		resilience.WithLimiter(cfg.Limiter()),
		resilience.WithBlocklist(cfg.Blocklist()),
		resilience.WithBreakerDefaults(cfg.Breaker()),
		resilience.WithLogger(logger),
		resilience.WithMetrics(metrics),
		resilience.WithTracer(tracer),
	}
	prefixes := make(map[string]string, len(cfg.Operations))
	for _, op := range cfg.Operations {
		opts = append(opts, resilience.WithOperation(cfg.OperationConfig(op)))
		if op.PathPrefix != "" {
			prefixes[op.PathPrefix] = op.ID
		}
	}
	o := resilience.New(st, opts...)
	routes := httpapi.NewPathOperations(prefixes)

	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second})
	agg.Register("store", health.NewStoreChecker("store", st, o.Limiter().Config().Fallback == resilience.FailOpen))
	agg.Register("breakers", health.NewBreakerChecker("breakers", o.Breakers()))

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Debug(r.Context(), "upstream request failed",
			observe.Field{Key: "path", Value: r.URL.Path},
			observe.Field{Key: "error", Value: err.Error()},
		)
		w.WriteHeader(http.StatusBadGateway)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	health.RegisterHandlers(r, agg)

	r.Group(func(r chi.Router) {
		if jwtCfg, enabled := cfg.JWT(); enabled {
			authn := auth.NewJWTAuthenticator(jwtCfg, auth.NewStaticKeyProvider([]byte(cfg.JWTSecret)))
			r.Use(auth.HTTPMiddleware(authn, auth.MiddlewareOptions{
				OnFailure: func(r *http.Request, err error) {
					logger.Debug(r.Context(), "bearer token rejected; keying caller by origin",
						observe.Field{Key: "error", Value: err.Error()},
					)
				},
			}))
		}
		r.Use(httpapi.Middleware(o, httpapi.Options{
			Operation:     cfg.Operation,
			OperationFunc: routes.Operation,
			Identity:      cfg.Identity(),
		}))
		r.Handle("/*", proxy)
	})

	return r, nil
}
