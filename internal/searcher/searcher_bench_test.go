package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/nuvos/nuvos-index/pkg/types"
)

func benchPoints(n int) []testPoint {
	points := make([]testPoint, n)
	for i := range points {
		f := float32(i%97) / 97
		points[i] = testPoint{
			id:      fmt.Sprintf("p%05d", i),
			vector:  []float32{1 - f, f, float32(i%7) / 7},
			project: "shop",
			path:    fmt.Sprintf("src/pkg%d/file%d.cs", i%10, i),
			kind:    types.KindMethod,
			part:    1,
			text:    fmt.Sprintf("method body %d", i),
		}
	}
	return points
}

// BenchmarkSearch measures an uncached search over 2000 points
func BenchmarkSearch(b *testing.B) {
	s, _ := setupSearcher(b, Config{CacheSize: -1}, benchPoints(2000)...)
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := s.Search(ctx, "orders", Options{Limit: 10}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchFiltered measures a search narrowed by path prefix
func BenchmarkSearchFiltered(b *testing.B) {
	s, _ := setupSearcher(b, Config{CacheSize: -1}, benchPoints(2000)...)
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := s.Search(ctx, "orders", Options{Limit: 10, PathPrefix: "src/pkg3"}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearchCached measures the cache hit path
func BenchmarkSearchCached(b *testing.B) {
	s, _ := setupSearcher(b, Config{}, benchPoints(2000)...)
	ctx := context.Background()
	if _, err := s.Search(ctx, "orders", Options{}); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := s.Search(ctx, "orders", Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
