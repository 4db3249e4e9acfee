package searcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuvos/nuvos-index/internal/storage"
	"github.com/nuvos/nuvos-index/internal/vectorstore"
	"github.com/nuvos/nuvos-index/pkg/types"
)

const testCollection = "chunks"

// mockEmbedder maps queries to fixed vectors and counts calls
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	err     error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int { return 3 }
func (m *mockEmbedder) Model() string  { return "mock-model" }
func (m *mockEmbedder) Close() error   { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testPoint struct {
	id      string
	vector  []float32
	project string
	path    string
	kind    types.SymbolKind
	part    int
	text    string
}

func (p testPoint) toPoint() vectorstore.Point {
	return vectorstore.Point{
		ID:     p.id,
		Vector: p.vector,
		Payload: map[string]any{
			vectorstore.FieldDocID:      "doc-" + p.path,
			vectorstore.FieldProjectID:  p.project,
			vectorstore.FieldPath:       p.path,
			vectorstore.FieldPathDirs:   vectorstore.PathDirs(p.path),
			vectorstore.FieldSymbolName: "Sym" + p.id,
			vectorstore.FieldSymbolKind: string(p.kind),
			vectorstore.FieldLineStart:  10,
			vectorstore.FieldLineEnd:    20,
			vectorstore.FieldPartIndex:  p.part,
			vectorstore.FieldPartTotal:  2,
			vectorstore.FieldText:       p.text,
		},
	}
}

func setupStore(t testing.TB, distance vectorstore.Distance, points ...testPoint) *storage.SQLiteStore {
	t.Helper()

	store, err := storage.Open(context.Background(), storage.Options{
		Path:       filepath.Join(t.TempDir(), "search.db"),
		VectorSize: 3,
		Distance:   distance,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.EnsureInitialized(ctx, testCollection))
	if len(points) > 0 {
		converted := make([]vectorstore.Point, len(points))
		for i, p := range points {
			converted[i] = p.toPoint()
		}
		require.NoError(t, store.Upsert(ctx, testCollection, converted))
	}
	return store
}

func setupSearcher(t testing.TB, cfg Config, points ...testPoint) (*Searcher, *mockEmbedder) {
	t.Helper()

	if cfg.Collection == "" {
		cfg.Collection = testCollection
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = "shop"
	}
	emb := &mockEmbedder{vectors: map[string][]float32{
		"orders":   {1, 0, 0},
		"payments": {0, 1, 0},
	}}
	s, err := New(setupStore(t, cfg.Distance, points...), emb, cfg)
	require.NoError(t, err)
	return s, emb
}

func shopPoints() []testPoint {
	return []testPoint{
		{id: "p1", vector: []float32{1, 0, 0}, project: "shop", path: "src/orders/OrderService.cs", kind: types.KindMethod, part: 1, text: "PlaceOrder"},
		{id: "p2", vector: []float32{0.9, 0.1, 0}, project: "shop", path: "src/orders/Order.cs", kind: types.KindType, part: 1, text: "class Order"},
		{id: "p3", vector: []float32{0, 1, 0}, project: "shop", path: "src/payments/Payment.cs", kind: types.KindMethod, part: 1, text: "Charge"},
		{id: "p4", vector: []float32{1, 0, 0}, project: "other", path: "src/orders/OrderService.cs", kind: types.KindMethod, part: 1, text: "Other project"},
		{id: "p5", vector: []float32{0, 0, 1}, project: "shop", path: "README.md", kind: types.KindSection, part: 1, text: "Readme"},
	}
}

func TestNew(t *testing.T) {
	store := setupStore(t, vectorstore.DistanceCosine)
	emb := &mockEmbedder{}

	_, err := New(nil, emb, Config{Collection: testCollection})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = New(store, emb, Config{})
	assert.ErrorIs(t, err, types.ErrConfig)

	s, err := New(store, emb, Config{Collection: testCollection})
	require.NoError(t, err)
	assert.Equal(t, vectorstore.DistanceCosine, s.cfg.Distance)
	assert.Equal(t, DefaultCacheTTL, s.cfg.CacheTTL)
	assert.NotNil(t, s.cache)

	s, err = New(store, emb, Config{Collection: testCollection, CacheSize: -1})
	require.NoError(t, err)
	assert.Nil(t, s.cache)
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, emb := setupSearcher(t, Config{}, shopPoints()...)

	_, err := s.Search(context.Background(), "   ", Options{})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Zero(t, emb.callCount())
}

func TestSearch_OrdersByScoreAndScopesToProject(t *testing.T) {
	s, _ := setupSearcher(t, Config{}, shopPoints()...)

	results, err := s.Search(context.Background(), "orders", Options{Limit: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "p1", results[0].PointID)
	assert.Equal(t, "p2", results[1].PointID)
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.NotEqual(t, "p4", r.PointID, "other project must be filtered out")
		require.NoError(t, r.Validate())
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	first := results[0]
	assert.Equal(t, "src/orders/OrderService.cs", first.Path)
	assert.Equal(t, "doc-src/orders/OrderService.cs", first.DocID)
	assert.Equal(t, types.KindMethod, first.SymbolKind)
	assert.Equal(t, 10, first.LineStart)
	assert.Equal(t, 20, first.LineEnd)
	assert.Equal(t, 1, first.PartIndex)
	assert.Equal(t, 2, first.PartTotal)
	assert.Equal(t, "PlaceOrder", first.Text)
}

func TestSearch_ProjectOverride(t *testing.T) {
	s, _ := setupSearcher(t, Config{}, shopPoints()...)

	results, err := s.Search(context.Background(), "orders", Options{ProjectID: "other"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p4", results[0].PointID)
}

func TestSearch_Filters(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "directory prefix",
			opts: Options{PathPrefix: "src/orders"},
			want: []string{"p1", "p2"},
		},
		{
			name: "prefix with slashes and dot",
			opts: Options{PathPrefix: "./src/payments/"},
			want: []string{"p3"},
		},
		{
			name: "exact file",
			opts: Options{PathPrefix: "README.md"},
			want: []string{"p5"},
		},
		{
			name: "symbol kinds",
			opts: Options{SymbolKinds: []string{"Method"}},
			want: []string{"p1", "p3"},
		},
		{
			name: "kinds and prefix",
			opts: Options{SymbolKinds: []string{"type", "section"}, PathPrefix: "src"},
			want: []string{"p2"},
		},
		{
			name: "partial segment does not match",
			opts: Options{PathPrefix: "src/ord"},
			want: []string{},
		},
	}

	s, _ := setupSearcher(t, Config{CacheSize: -1}, shopPoints()...)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(context.Background(), "orders", tt.opts)
			require.NoError(t, err)

			got := make([]string, 0, len(results))
			for _, r := range results {
				got = append(got, r.PointID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestSearch_UnknownSymbolKind(t *testing.T) {
	s, _ := setupSearcher(t, Config{}, shopPoints()...)
	_, err := s.Search(context.Background(), "orders", Options{SymbolKinds: []string{"lambda"}})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSearch_TiesOrderedByPartIndex(t *testing.T) {
	s, _ := setupSearcher(t, Config{},
		testPoint{id: "a", vector: []float32{1, 0, 0}, project: "shop", path: "src/Big.cs", kind: types.KindMethod, part: 2, text: "second half"},
		testPoint{id: "b", vector: []float32{1, 0, 0}, project: "shop", path: "src/Big.cs", kind: types.KindMethod, part: 1, text: "first half"},
	)

	results, err := s.Search(context.Background(), "orders", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].PartIndex)
	assert.Equal(t, 2, results[1].PartIndex)
}

func TestSearch_EuclidLowerIsBetter(t *testing.T) {
	s, _ := setupSearcher(t, Config{Distance: vectorstore.DistanceEuclid},
		testPoint{id: "far", vector: []float32{0, 0, 5}, project: "shop", path: "a.cs", kind: types.KindType, part: 1, text: "far"},
		testPoint{id: "near", vector: []float32{1, 0, 0}, project: "shop", path: "b.cs", kind: types.KindType, part: 1, text: "near"},
	)

	results, err := s.Search(context.Background(), "orders", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].PointID)
	assert.Less(t, results[0].Score, results[1].Score)
}

func TestSearch_DropsMalformedHits(t *testing.T) {
	s, _ := setupSearcher(t, Config{},
		testPoint{id: "ok", vector: []float32{1, 0, 0}, project: "shop", path: "a.cs", kind: types.KindType, part: 1, text: "body"},
		testPoint{id: "empty", vector: []float32{1, 0, 0}, project: "shop", path: "b.cs", kind: types.KindType, part: 1, text: ""},
	)

	results, err := s.Search(context.Background(), "orders", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].PointID)
	assert.Equal(t, 1, results[0].Rank)
}

func TestSearch_LimitDefaultsAndClamp(t *testing.T) {
	points := make([]testPoint, 0, 15)
	for i := range 15 {
		points = append(points, testPoint{
			id: fmt.Sprintf("p%02d", i), vector: []float32{1, float32(i) * 0.01, 0},
			project: "shop", path: fmt.Sprintf("f%02d.cs", i), kind: types.KindMethod, part: 1, text: "x",
		})
	}
	s, _ := setupSearcher(t, Config{CacheSize: -1}, points...)

	results, err := s.Search(context.Background(), "orders", Options{})
	require.NoError(t, err)
	assert.Len(t, results, DefaultLimit)

	results, err = s.Search(context.Background(), "orders", Options{Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, results, 15)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	s, emb := setupSearcher(t, Config{}, shopPoints()...)
	emb.err = assert.AnError

	_, err := s.Search(context.Background(), "orders", Options{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSearch_MissingCollection(t *testing.T) {
	s, _ := setupSearcher(t, Config{Collection: "absent"})
	_, err := s.Search(context.Background(), "orders", Options{})
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestSearch_Cache(t *testing.T) {
	s, emb := setupSearcher(t, Config{}, shopPoints()...)
	ctx := context.Background()

	first, err := s.Search(ctx, "orders", Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.callCount())
	assert.Equal(t, 1, s.CacheLen())

	second, err := s.Search(ctx, "orders", Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.callCount(), "second search should be served from cache")
	assert.Equal(t, first, second)

	// Mutating a returned slice must not corrupt the cache
	second[0].Text = "mutated"
	third, err := s.Search(ctx, "orders", Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, "PlaceOrder", third[0].Text)

	// Different options are different keys
	_, err = s.Search(ctx, "orders", Options{Limit: 2, PathPrefix: "src"})
	require.NoError(t, err)
	assert.Equal(t, 2, emb.callCount())

	s.InvalidateCache()
	assert.Zero(t, s.CacheLen())
	_, err = s.Search(ctx, "orders", Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, emb.callCount())
}

func TestSearch_CacheExpires(t *testing.T) {
	s, emb := setupSearcher(t, Config{CacheTTL: time.Millisecond}, shopPoints()...)
	ctx := context.Background()

	_, err := s.Search(ctx, "orders", Options{})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = s.Search(ctx, "orders", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, emb.callCount())
}

func TestSearch_EmptyResultsNotCached(t *testing.T) {
	s, emb := setupSearcher(t, Config{}, shopPoints()...)
	ctx := context.Background()

	for range 2 {
		results, err := s.Search(ctx, "orders", Options{PathPrefix: "nowhere"})
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	assert.Equal(t, 2, emb.callCount())
}

func TestComputeQueryHash(t *testing.T) {
	base := Options{Limit: 10, ProjectID: "shop", PathPrefix: "src", SymbolKinds: []string{"method", "type"}}

	assert.Equal(t, computeQueryHash("q", base), computeQueryHash("q", base))
	assert.NotEqual(t, computeQueryHash("q", base), computeQueryHash("other", base))

	changed := base
	changed.Limit = 11
	assert.NotEqual(t, computeQueryHash("q", base), computeQueryHash("q", changed))

	changed = base
	changed.SymbolKinds = []string{"method"}
	assert.NotEqual(t, computeQueryHash("q", base), computeQueryHash("q", changed))
}

func TestConcurrentSearches(t *testing.T) {
	s, _ := setupSearcher(t, Config{}, shopPoints()...)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			query := "orders"
			if i%2 == 0 {
				query = "payments"
			}
			if _, err := s.Search(context.Background(), query, Options{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent search failed: %v", err)
	}
}
