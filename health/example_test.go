package health_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/jonwraymond/gatekeep/health"
	"github.com/jonwraymond/gatekeep/store"
)

type openCircuits []string

func (o openCircuits) OpenOperations() []string { return o }

func ExampleNewAggregator() {
	agg := health.NewAggregator()
	agg.Register("store", health.NewStoreChecker("store", store.NewMemoryStore(), true))
	agg.Register("circuits", health.NewBreakerChecker("circuits", openCircuits{"payments"}))

	results := agg.CheckAll(context.Background())
	fmt.Println(results["store"].Status)
	fmt.Println(results["circuits"].Status)
	fmt.Println(agg.OverallStatus(results))
	// Output:
	// healthy
	// degraded
	// degraded
}

func ExampleRegisterHandlers() {
	agg := health.NewAggregator()
	agg.Register("store", health.NewStoreChecker("store", store.NewMemoryStore(), false))

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	fmt.Println(rec.Code, rec.Body.String())
	// Output:
	// 200 OK
}
