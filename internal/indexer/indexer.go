package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nuvos/nuvos-index/internal/chunker"
	"github.com/nuvos/nuvos-index/internal/embedder"
	"github.com/nuvos/nuvos-index/internal/hasher"
	"github.com/nuvos/nuvos-index/internal/identity"
	"github.com/nuvos/nuvos-index/internal/ledger"
	"github.com/nuvos/nuvos-index/internal/vectorstore"
	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	// DefaultCheckpointEvery is how many completed files pass between ledger saves
	DefaultCheckpointEvery = 25

	// DefaultCollection is used when Options.Collection is empty
	DefaultCollection = "code_chunks"
)

// ErrRunInProgress is returned when Run is called while another run holds the lock
var ErrRunInProgress = errors.New("indexing run already in progress")

// Stage names the pipeline step a per-file failure happened in
type Stage string

const (
	StageHash     Stage = "hash"
	StageIdentity Stage = "identity"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageDelete   Stage = "delete"
	StageUpload   Stage = "upload"
	StageLedger   Stage = "ledger"
)

// FileError is a failure isolated to one file
type FileError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Discoverer lists the files of one source tree
type Discoverer interface {
	Discover(ctx context.Context) ([]types.DiscoveredFile, error)
}

// Chunker splits file text into embeddable chunks
type Chunker interface {
	Chunk(ctx context.Context, text, filePath string) (*chunker.Result, error)
}

// Deps are the collaborators a run drives
type Deps struct {
	Discoverer Discoverer
	Chunker    Chunker
	Embedder   embedder.Embedder
	Store      vectorstore.Gateway
	Ledger     *ledger.Ledger
}

// Options configure identity and pipeline limits
type Options struct {
	Collection string
	RepoURL    string
	ProjectID  string
	Ref        string

	Workers         int
	CheckpointEvery int
	MaxBatchPoints  int

	// Progress, when set, is called after each file finishes with the
	// number of files done and the total. Workers call it concurrently.
	Progress func(done, total int)

	Logger *slog.Logger
	Now    func() time.Time
}

// RunOptions configure a single run
type RunOptions struct {
	Force ledger.ReindexMode
}

// Statistics summarize one run. They are returned even when the run fails.
type Statistics struct {
	Discovered     int
	Unchanged      int
	Reindexed      int
	Deleted        int
	Skipped        int
	Failed         int
	Degraded       int
	ChunksCreated  int
	PointsUploaded int
	Duration       time.Duration
	Failures       []FileError
}

// Indexer coordinates discovery, chunking, embedding and upload for one source tree
type Indexer struct {
	discoverer Discoverer
	chunker    Chunker
	embedder   embedder.Embedder
	store      vectorstore.Gateway
	ledger     *ledger.Ledger
	opts       Options
	logger     *slog.Logger
	lock       IndexLock
}

// New creates an indexer. Every dependency is required.
func New(deps Deps, opts Options) (*Indexer, error) {
	if deps.Discoverer == nil || deps.Chunker == nil || deps.Embedder == nil || deps.Store == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("%w: indexer dependencies are incomplete", types.ErrInvalidArgument)
	}
	if opts.ProjectID == "" || opts.RepoURL == "" {
		return nil, fmt.Errorf("%w: project id and repo url are required", types.ErrConfig)
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Indexer{
		discoverer: deps.Discoverer,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		store:      deps.Store,
		ledger:     deps.Ledger,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Collection returns the vector store collection this indexer writes to
func (idx *Indexer) Collection() string {
	return idx.opts.Collection
}

// Lock returns the run lock. Callers that must keep runs out while they
// work on the store can hold it themselves.
func (idx *Indexer) Lock() *IndexLock {
	return &idx.lock
}

// runState is shared by the workers of one run
type runState struct {
	total int

	unchanged atomic.Int64
	reindexed atomic.Int64
	skipped   atomic.Int64
	degraded  atomic.Int64
	chunks    atomic.Int64
	points    atomic.Int64
	done      atomic.Int64

	failMu   sync.Mutex
	failures []FileError
}

func (s *runState) fail(path string, stage Stage, err error) {
	s.failMu.Lock()
	s.failures = append(s.failures, FileError{Path: path, Stage: stage, Err: err})
	s.failMu.Unlock()
}

// Run performs one incremental indexing pass. Per-file failures are
// collected in Statistics.Failures; only run-level failures return an error.
func (idx *Indexer) Run(ctx context.Context, opts RunOptions) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrRunInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	stats := &Statistics{}
	finish := func(state *runState) {
		if state != nil {
			stats.Unchanged = int(state.unchanged.Load())
			stats.Reindexed = int(state.reindexed.Load())
			stats.Skipped = int(state.skipped.Load())
			stats.Degraded = int(state.degraded.Load())
			stats.ChunksCreated = int(state.chunks.Load())
			stats.PointsUploaded = int(state.points.Load())
			stats.Failures = append(stats.Failures, state.failures...)
		}
		sort.SliceStable(stats.Failures, func(i, j int) bool {
			return stats.Failures[i].Path < stats.Failures[j].Path
		})
		stats.Failed = len(stats.Failures)
		stats.Duration = time.Since(start)
	}

	if opts.Force != "" && opts.Force != ledger.ReindexNone && !opts.Force.Forces() {
		return stats, fmt.Errorf("%w: unknown reindex mode %q", types.ErrInvalidArgument, opts.Force)
	}

	if err := idx.store.EnsureInitialized(ctx, idx.opts.Collection); err != nil {
		finish(nil)
		return stats, fmt.Errorf("failed to initialize collection: %w", err)
	}

	files, err := idx.discoverer.Discover(ctx)
	if err != nil {
		finish(nil)
		return stats, fmt.Errorf("failed to discover files: %w", err)
	}
	stats.Discovered = len(files)

	if opts.Force.Forces() {
		idx.ledger.SetReindexAll(opts.Force)
	}

	current := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsBinary {
			current = append(current, f.RelativePath)
		}
	}
	deleted, deleteFailures := idx.purgeMissing(ctx, current)
	stats.Deleted = deleted
	stats.Failures = append(stats.Failures, deleteFailures...)

	files, collisions := idx.dropCaseCollisions(files)
	stats.Failures = append(stats.Failures, collisions...)

	state := &runState{total: len(files)}
	runErr := idx.processAll(ctx, files, state)

	// Saved on cancellation too
	saveErr := idx.ledger.Save()
	finish(state)

	idx.logger.Info("indexing run finished",
		"discovered", stats.Discovered,
		"unchanged", stats.Unchanged,
		"reindexed", stats.Reindexed,
		"deleted", stats.Deleted,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", stats.Duration)

	if runErr != nil {
		return stats, runErr
	}
	if saveErr != nil {
		return stats, fmt.Errorf("failed to save ledger: %w", saveErr)
	}
	return stats, nil
}

// dropCaseCollisions keeps one file per case-insensitive path. Paths that
// differ only by case share a ledger record and a DocID, so only one of them
// can be indexed. The file already recorded in the ledger wins, otherwise the
// first in discovery order; the others are reported as identity failures.
func (idx *Indexer) dropCaseCollisions(files []types.DiscoveredFile) ([]types.DiscoveredFile, []FileError) {
	type slot struct {
		pos  int
		path string
	}

	kept := make([]types.DiscoveredFile, 0, len(files))
	byKey := make(map[string]slot, len(files))
	byCanonical := make(map[string]string, len(files))
	var collisions []FileError

	reject := func(path, winner string) {
		err := fmt.Errorf("%w: path collides with %s when case is ignored", types.ErrInvalidArgument, winner)
		idx.logger.Warn("file failed", "path", path, "stage", string(StageIdentity), "error", err)
		collisions = append(collisions, FileError{Path: path, Stage: StageIdentity, Err: err})
	}

	for _, f := range files {
		if f.IsBinary {
			kept = append(kept, f)
			continue
		}
		rel := f.RelativePath
		key := ledger.Key(rel)
		canonical := identity.NormalizePath(rel)

		prev, seen := byKey[key]
		if !seen {
			if other, ok := byCanonical[canonical]; ok {
				prev, seen = byKey[ledger.Key(other)]
			}
		}
		if !seen {
			byKey[key] = slot{pos: len(kept), path: rel}
			byCanonical[canonical] = rel
			kept = append(kept, f)
			continue
		}

		if rec, ok := idx.ledger.Get(rel); ok && rec.FilePath == rel && prev.path != rel {
			// The recorded file replaces the earlier one
			reject(prev.path, rel)
			kept[prev.pos] = f
			byKey[ledger.Key(prev.path)] = slot{pos: prev.pos, path: rel}
			byKey[key] = slot{pos: prev.pos, path: rel}
			byCanonical[canonical] = rel
			continue
		}
		reject(rel, prev.path)
	}
	return kept, collisions
}

// processAll runs the per-file pipeline over files with bounded concurrency
func (idx *Indexer) processAll(ctx context.Context, files []types.DiscoveredFile, state *runState) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(idx.opts.Workers))

	for _, file := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			idx.processFile(gctx, file, state)
			idx.fileDone(state)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// fileDone advances progress and saves a checkpoint every CheckpointEvery files
func (idx *Indexer) fileDone(state *runState) {
	done := int(state.done.Add(1))
	if idx.opts.Progress != nil {
		idx.opts.Progress(done, state.total)
	}
	if done%idx.opts.CheckpointEvery != 0 {
		return
	}
	if err := idx.ledger.Save(); err != nil {
		idx.logger.Warn("ledger checkpoint failed", "done", done, "error", err)
	}
}

// processFile classifies one file and, when needed, replaces its points.
// A failure leaves the record's indexed hash as it was so the next run retries.
func (idx *Indexer) processFile(ctx context.Context, file types.DiscoveredFile, state *runState) {
	rel := file.RelativePath
	if file.IsBinary {
		state.skipped.Add(1)
		return
	}

	failed := func(stage Stage, err error) {
		if ctx.Err() != nil {
			return
		}
		idx.logger.Warn("file failed", "path", rel, "stage", string(stage), "error", err)
		state.fail(rel, stage, err)
	}

	text, err := hasher.ReadText(ctx, file.FullPath)
	if err != nil {
		failed(StageHash, err)
		return
	}
	hash := hasher.ComputeContentHash(text)

	id, err := identity.Build(idx.opts.RepoURL, idx.opts.ProjectID, idx.opts.Ref, rel)
	if err != nil {
		failed(StageIdentity, err)
		return
	}

	rec, created, err := idx.ledger.GetOrAdd(rel, id.DocID)
	if err != nil {
		failed(StageLedger, err)
		return
	}
	if err := idx.ledger.SetActiveHash(rel, hash); err != nil {
		failed(StageLedger, err)
		return
	}

	mode := rec.Reindex
	if rec.DocID != id.DocID {
		mode = ledger.ReindexFull
	}
	if !created && rec.ContentHash == hash && !mode.Forces() {
		state.unchanged.Add(1)
		return
	}

	result, err := idx.chunker.Chunk(ctx, text, rel)
	if err != nil {
		failed(StageChunk, err)
		return
	}

	points, err := idx.buildPoints(ctx, id, hash, result)
	if err != nil {
		failed(StageEmbed, err)
		return
	}

	if mode == ledger.ReindexFull && rec.DocID != id.DocID {
		if err := idx.store.DeleteByDocID(ctx, idx.opts.Collection, rec.DocID); err != nil {
			failed(StageDelete, err)
			return
		}
		if err := idx.ledger.SetDocID(rel, id.DocID); err != nil {
			failed(StageLedger, err)
			return
		}
	}
	if err := idx.store.DeleteByDocID(ctx, idx.opts.Collection, id.DocID); err != nil {
		failed(StageDelete, err)
		return
	}

	if len(points) > 0 {
		err := idx.store.UpsertInBatches(ctx, idx.opts.Collection, points, idx.embedder.Dimension(), idx.opts.MaxBatchPoints)
		if err != nil {
			failed(StageUpload, err)
			return
		}
	}

	subKind := types.SubKindForPath(rel)
	if err := idx.ledger.MarkIndexed(rel, hash, subKind, result.Degraded); err != nil {
		failed(StageLedger, err)
		return
	}

	if result.Degraded {
		state.degraded.Add(1)
		idx.logger.Warn("file indexed without symbol boundaries", "path", rel, "error", result.ParseError)
	}
	state.reindexed.Add(1)
	state.chunks.Add(int64(len(result.Chunks)))
	state.points.Add(int64(len(points)))
	idx.logger.Debug("file indexed", "path", rel, "chunks", len(result.Chunks), "language", result.Language)
}

// buildPoints embeds every chunk in one batch and attaches the payload
func (idx *Indexer) buildPoints(ctx context.Context, id identity.DocumentIdentity, hash string, result *chunker.Result) ([]vectorstore.Point, error) {
	if len(result.Chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(result.Chunks))
	for i, c := range result.Chunks {
		texts[i] = c.Text
	}

	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", embedder.ErrProviderFailed, len(vectors), len(texts))
	}

	indexedAt := idx.opts.Now().UTC().Format(time.RFC3339)
	subKind := string(types.SubKindForPath(id.PathInRepo))
	dirs := vectorstore.PathDirs(id.PathInRepo)

	points := make([]vectorstore.Point, len(result.Chunks))
	for i, c := range result.Chunks {
		points[i] = vectorstore.Point{
			ID:     identity.NewPointID(),
			Vector: vectors[i],
			Payload: map[string]any{
				vectorstore.FieldDocID:           id.DocID,
				vectorstore.FieldProjectID:       id.ProjectID,
				vectorstore.FieldRepoURL:         id.RepoURL,
				vectorstore.FieldPath:            id.PathInRepo,
				vectorstore.FieldPathDirs:        dirs,
				vectorstore.FieldCanonicalPath:   id.CanonicalPath,
				vectorstore.FieldBlobURI:         id.BlobURI,
				vectorstore.FieldSymbolName:      c.SymbolName,
				vectorstore.FieldSymbolKind:      string(c.SymbolKind),
				vectorstore.FieldSectionKey:      c.SectionKey,
				vectorstore.FieldLineStart:       c.LineStart,
				vectorstore.FieldLineEnd:         c.LineEnd,
				vectorstore.FieldCharStart:       c.CharStart,
				vectorstore.FieldCharEnd:         c.CharEnd,
				vectorstore.FieldPartIndex:       c.PartIndex,
				vectorstore.FieldPartTotal:       c.PartTotal,
				vectorstore.FieldEstimatedTokens: c.EstimatedTokens,
				vectorstore.FieldContentHash:     hash,
				vectorstore.FieldText:            c.Text,
				vectorstore.FieldLanguage:        result.Language,
				vectorstore.FieldSubKind:         subKind,
				vectorstore.FieldIndexedAt:       indexedAt,
			},
		}
	}
	return points, nil
}

// purgeMissing deletes the points and records of files no longer on disk.
// Records whose points could not be deleted are kept for the next run.
func (idx *Indexer) purgeMissing(ctx context.Context, current []string) (int, []FileError) {
	missing := idx.ledger.GetMissingFiles(current)
	if len(missing) == 0 {
		return 0, nil
	}

	docIDs := make([]string, 0, len(missing))
	for _, rec := range missing {
		if rec.DocID != "" {
			docIDs = append(docIDs, rec.DocID)
		}
	}

	if len(docIDs) == 0 {
		for _, rec := range missing {
			idx.ledger.Remove(rec.FilePath)
		}
		return len(missing), nil
	}

	if err := idx.store.DeleteByDocIDs(ctx, idx.opts.Collection, docIDs); err != nil {
		idx.logger.Warn("failed to delete points of missing files", "files", len(missing), "error", err)
		failures := make([]FileError, len(missing))
		for i, rec := range missing {
			failures[i] = FileError{Path: rec.FilePath, Stage: StageDelete, Err: err}
		}
		return 0, failures
	}

	for _, rec := range missing {
		idx.ledger.Remove(rec.FilePath)
		idx.logger.Debug("file removed", "path", rec.FilePath, "doc_id", rec.DocID)
	}
	return len(missing), nil
}

// Status describes the indexed state of the source tree
type Status struct {
	Collection     string
	Files          int
	Pending        int
	FlaggedReview  int
	LastIndexedUtc time.Time
	Points         int
	Running        bool
}

// Status reports ledger counts and the number of points stored for the project
func (idx *Indexer) Status(ctx context.Context) (*Status, error) {
	summary := idx.ledger.Summarize()
	st := &Status{
		Collection:     idx.opts.Collection,
		Files:          summary.Files,
		Pending:        summary.Pending,
		FlaggedReview:  summary.FlaggedReview,
		LastIndexedUtc: summary.LastIndexedUtc,
		Running:        idx.lock.Held(),
	}

	filter := vectorstore.NewFilter(vectorstore.MatchValue(vectorstore.FieldProjectID, idx.opts.ProjectID))
	n, err := idx.store.Count(ctx, idx.opts.Collection, filter)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			return st, nil
		}
		return st, fmt.Errorf("failed to count points: %w", err)
	}
	st.Points = n
	return st, nil
}
