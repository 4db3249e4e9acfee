// Package app is the composition root: it builds every component once from
// a validated configuration and hands out the handles commands need.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nuvos/nuvos-index/internal/chunker"
	"github.com/nuvos/nuvos-index/internal/config"
	"github.com/nuvos/nuvos-index/internal/discovery"
	"github.com/nuvos/nuvos-index/internal/embedder"
	"github.com/nuvos/nuvos-index/internal/indexer"
	"github.com/nuvos/nuvos-index/internal/ledger"
	"github.com/nuvos/nuvos-index/internal/parser"
	"github.com/nuvos/nuvos-index/internal/searcher"
	"github.com/nuvos/nuvos-index/internal/storage"
	"github.com/nuvos/nuvos-index/internal/vectorstore"
	"github.com/nuvos/nuvos-index/internal/watcher"
)

// Option customizes App construction
type Option func(*buildOptions)

type buildOptions struct {
	progress func(done, total int)
	store    vectorstore.Gateway
	embedder embedder.Embedder
}

// WithProgress reports per-file progress of every indexing run
func WithProgress(fn func(done, total int)) Option {
	return func(o *buildOptions) { o.progress = fn }
}

// WithStore uses store instead of the configured backend
func WithStore(store vectorstore.Gateway) Option {
	return func(o *buildOptions) { o.store = store }
}

// WithEmbedder uses emb instead of the configured provider
func WithEmbedder(emb embedder.Embedder) Option {
	return func(o *buildOptions) { o.embedder = emb }
}

// App holds the wired components for one source root
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Embedder embedder.Embedder
	Store    vectorstore.Gateway
	Ledger   *ledger.Ledger
	Walker   *discovery.Walker
	Chunker  *chunker.Chunker
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
}

// New validates cfg and builds the components. The caller owns the
// returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	distance, _ := vectorstore.ParseDistance(cfg.VectorStore.Distance)
	a := &App{Config: cfg, Logger: logger}

	emb := bo.embedder
	if emb == nil {
		var err error
		emb, err = embedder.New(embedder.Config{
			Provider:  cfg.Embedding.Provider,
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			CacheSize: cfg.Embedding.CacheSize,
			MaxBatch:  cfg.Embedding.MaxBatch,
			Timeout:   cfg.Embedding.Timeout,
		}, logger.With("component", "embedder"))
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}
	a.Embedder = emb

	store := bo.store
	if store == nil {
		var err error
		store, err = openStore(ctx, cfg, distance, logger.With("component", "vectorstore"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.Store = store

	led, err := ledger.Load(cfg.SourceRoot, ledger.WithLogger(logger.With("component", "ledger")))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	a.Ledger = led

	a.Walker, err = discovery.New(discovery.Options{
		Root:             cfg.SourceRoot,
		RepoID:           cfg.ProjectID,
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		BinaryExtensions: cfg.BinaryExtensions,
		MaxFileBytes:     cfg.MaxFileBytes,
		Logger:           logger.With("component", "discovery"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create file walker: %w", err)
	}

	a.Chunker, err = chunker.New(parser.DefaultRegistry(), chunker.Options{
		TokenBudget:            cfg.TokenBudget,
		OverlapLines:           cfg.OverlapLines,
		SummaryMaxTokens:       cfg.SummaryMaxTokens,
		MaxIterationsPerSymbol: cfg.MaxIterationsPerSymbol,
	}, logger.With("component", "chunker"))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	a.Indexer, err = indexer.New(indexer.Deps{
		Discoverer: a.Walker,
		Chunker:    a.Chunker,
		Embedder:   a.Embedder,
		Store:      a.Store,
		Ledger:     a.Ledger,
	}, indexer.Options{
		Collection:      cfg.Collection,
		RepoURL:         cfg.RepoURL,
		ProjectID:       cfg.ProjectID,
		Ref:             cfg.Ref,
		Workers:         cfg.Workers,
		CheckpointEvery: cfg.CheckpointEvery,
		MaxBatchPoints:  cfg.VectorStore.MaxBatchPoints,
		Progress:        bo.progress,
		Logger:          logger.With("component", "indexer"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	a.Searcher, err = searcher.New(a.Store, a.Embedder, searcher.Config{
		Collection: cfg.Collection,
		ProjectID:  cfg.ProjectID,
		Distance:   distance,
		Logger:     logger.With("component", "searcher"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create searcher: %w", err)
	}

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, distance vectorstore.Distance, logger *slog.Logger) (vectorstore.Gateway, error) {
	vs := cfg.VectorStore
	switch vs.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(vs.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		store, err := storage.Open(ctx, storage.Options{
			Path:       vs.SQLitePath,
			VectorSize: vs.VectorSize,
			Distance:   distance,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		client, err := vectorstore.NewQdrantClient(vectorstore.QdrantOptions{
			URL:                  vs.URL,
			APIKey:               vs.APIKey,
			VectorSize:           vs.VectorSize,
			Distance:             distance,
			Timeout:              vs.Timeout,
			RequestsPerSecond:    vs.RequestsPerSecond,
			MaxBatchPoints:       vs.MaxBatchPoints,
			PayloadOverheadBytes: vs.PayloadOverheadBytes,
			Logger:               logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant client: %w", err)
		}
		return client, nil
	}
}

// Index runs the indexer once and drops cached search results
func (a *App) Index(ctx context.Context, force ledger.ReindexMode) (*indexer.Statistics, error) {
	stats, err := a.Indexer.Run(ctx, indexer.RunOptions{Force: force})
	if stats != nil && (stats.Reindexed > 0 || stats.Deleted > 0) {
		a.Searcher.InvalidateCache()
	}
	return stats, err
}

// SkipPath applies the walker's ignore rules to a path relative to the root
func (a *App) SkipPath(rel string, isDir bool) bool {
	if isDir {
		return a.Walker.SkipDir(rel)
	}
	return a.Walker.SkipFile(rel)
}

// Watch re-indexes after every burst of relevant changes until ctx is done.
// onRun, when set, receives the outcome of each run.
func (a *App) Watch(ctx context.Context, opts watcher.Options, onRun func(*indexer.Statistics, error)) error {
	opts.Root = a.Config.SourceRoot
	opts.Skip = a.SkipPath
	if opts.Logger == nil {
		opts.Logger = a.Logger.With("component", "watcher")
	}
	return watcher.Watch(ctx, opts, func(ctx context.Context) error {
		stats, err := a.Index(ctx, ledger.ReindexNone)
		if onRun != nil {
			onRun(stats, err)
		}
		return err
	})
}

// Close releases the store and the embedder
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	return errors.Join(errs...)
}
