// Package health reports gateway health to load balancers and orchestrators.
//
// Two checkers cover the gateway's dependencies: StoreChecker pings the
// shared rate-limit store and BreakerChecker reports open circuits. An
// Aggregator runs registered checkers concurrently and the HTTP handlers
// expose the combined status:
//
//	agg := health.NewAggregator()
//	agg.Register("store", health.NewStoreChecker("store", st, true))
//	agg.Register("circuits", health.NewBreakerChecker("circuits", o.Breakers()))
//	health.RegisterHandlers(router, agg)
//
// /healthz is the liveness check. /readyz returns 503 only when a check is
// unhealthy. /health returns every check as JSON.
package health
