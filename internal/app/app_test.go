package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuvos/nuvos-index/internal/config"
	"github.com/nuvos/nuvos-index/internal/indexer"
	"github.com/nuvos/nuvos-index/internal/ledger"
	"github.com/nuvos/nuvos-index/internal/logging"
	"github.com/nuvos/nuvos-index/internal/searcher"
	"github.com/nuvos/nuvos-index/internal/watcher"
	"github.com/nuvos/nuvos-index/pkg/types"
)

const ordersService = `namespace Shop
{
    public class OrderService
    {
        public void PlaceOrder(int id)
        {
            Console.WriteLine(id);
        }
    }
}
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func loadConfig(t *testing.T, root string, args ...string) *config.Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.AddFlags(fs)
	base := []string{"--root", root, "--backend", "sqlite", "--provider", "local", "--workers", "2"}
	require.NoError(t, fs.Parse(append(base, args...)))

	v := config.New()
	require.NoError(t, config.BindFlags(v, fs))
	v.Set("embedding.dimension", 32)

	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, root string, opts ...Option) *App {
	t.Helper()
	a, err := New(t.Context(), loadConfig(t, root), logging.Discard(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := loadConfig(t, t.TempDir())
	cfg.TokenBudget = 0

	_, err := New(t.Context(), cfg, logging.Discard())
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestApp_IndexAndSearch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/OrderService.cs", ordersService)
	writeFile(t, root, "docs/readme.md", "# Orders\n\nHow orders are placed.\n")

	var (
		mu       sync.Mutex
		progress []int
	)
	a := newApp(t, root, WithProgress(func(done, total int) {
		mu.Lock()
		progress = append(progress, done)
		mu.Unlock()
	}))

	stats, err := a.Index(t.Context(), ledger.ReindexNone)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Discovered)
	assert.Equal(t, 2, stats.Reindexed)
	assert.Zero(t, stats.Failed)
	assert.Positive(t, stats.PointsUploaded)
	mu.Lock()
	assert.Len(t, progress, 2)
	mu.Unlock()

	// The ledger and database live under the root's state directory
	assert.FileExists(t, ledger.PathFor(root))
	assert.FileExists(t, filepath.Join(root, ".nuvos", "index", "points.db"))

	results, err := a.Searcher.Search(t.Context(), "place order", searcher.Options{Limit: 5, PathPrefix: "src"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "src/OrderService.cs", r.Path)
	}
	assert.Equal(t, 1, a.Searcher.CacheLen())

	status, err := a.Indexer.Status(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Files)
	assert.Equal(t, stats.PointsUploaded, status.Points)

	// An unchanged tree keeps cached searches
	stats, err = a.Index(t.Context(), ledger.ReindexNone)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Unchanged)
	assert.Equal(t, 1, a.Searcher.CacheLen())

	// A change drops them
	writeFile(t, root, "src/OrderService.cs", ordersService+"// trailing\n")
	stats, err = a.Index(t.Context(), ledger.ReindexNone)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reindexed)
	assert.Zero(t, a.Searcher.CacheLen())
}

func TestApp_ReopenKeepsState(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/OrderService.cs", ordersService)

	first, err := New(t.Context(), loadConfig(t, root), logging.Discard())
	require.NoError(t, err)
	_, err = first.Index(t.Context(), ledger.ReindexNone)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newApp(t, root)
	stats, err := second.Index(t.Context(), ledger.ReindexNone)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Zero(t, stats.Reindexed)
}

func TestApp_SkipPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".nuvosignore", "*.generated.cs\n")
	a := newApp(t, root)

	assert.True(t, a.SkipPath(".nuvos", true))
	assert.True(t, a.SkipPath("node_modules", true))
	assert.True(t, a.SkipPath("src/Model.generated.cs", false))
	assert.True(t, a.SkipPath("bin/Debug/app.cs", false))
	assert.False(t, a.SkipPath("src", true))
	assert.False(t, a.SkipPath("src/OrderService.cs", false))
}

func TestApp_Watch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/OrderService.cs", ordersService)
	a := newApp(t, root)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runs := make(chan *indexer.Statistics, 4)
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, watcher.Options{Debounce: 100 * time.Millisecond, RunOnStart: true},
			func(stats *indexer.Statistics, err error) {
				if err == nil {
					runs <- stats
				}
			})
	}()

	select {
	case stats := <-runs:
		assert.Equal(t, 1, stats.Reindexed)
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not happen")
	}

	writeFile(t, root, "src/PaymentService.cs", ordersService)
	select {
	case stats := <-runs:
		assert.Equal(t, 1, stats.Reindexed)
		assert.Equal(t, 1, stats.Unchanged)
	case <-time.After(5 * time.Second):
		t.Fatal("change did not trigger a run")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
