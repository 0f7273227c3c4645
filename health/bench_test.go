package health

import (
	"context"
	"strconv"
	"testing"
)

func BenchmarkAggregator_CheckAll(b *testing.B) {
	agg := NewAggregator()
	for i := 0; i < 8; i++ {
		name := "c" + strconv.Itoa(i)
		agg.Register(name, constant(name, Healthy("")))
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = agg.CheckAll(ctx)
	}
}

func BenchmarkBreakerChecker_Check(b *testing.B) {
	c := NewBreakerChecker("circuits", fakeBreakers{"a"})
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Check(ctx)
	}
}
