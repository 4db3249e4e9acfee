package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nuvos/nuvos-index/internal/embedder"
	"github.com/nuvos/nuvos-index/internal/vectorstore"
	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

// Config configures a Searcher
type Config struct {
	Collection string
	ProjectID  string
	Distance   vectorstore.Distance

	// CacheSize bounds the query cache; a negative value disables it
	CacheSize int
	CacheTTL  time.Duration

	Logger *slog.Logger
}

// Options narrow a single search
type Options struct {
	Limit       int
	PathPrefix  string
	SymbolKinds []string

	// ProjectID overrides the searcher's project; empty uses Config.ProjectID
	ProjectID string
}

// cacheEntry is a cached result set with its expiration time
type cacheEntry struct {
	results   []types.SearchResult
	expiresAt time.Time
}

// Searcher embeds queries and runs filtered vector searches
type Searcher struct {
	store    vectorstore.Gateway
	embedder embedder.Embedder
	cfg      Config
	logger   *slog.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// New creates a Searcher
func New(store vectorstore.Gateway, emb embedder.Embedder, cfg Config) (*Searcher, error) {
	if store == nil || emb == nil {
		return nil, fmt.Errorf("%w: searcher needs a store and an embedder", types.ErrInvalidArgument)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", types.ErrConfig)
	}
	if cfg.Distance == "" {
		cfg.Distance = vectorstore.DistanceCosine
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Searcher{
		store:    store,
		embedder: emb,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create query cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Search returns the chunks closest to query, best first. Ties keep
// parts of one symbol in PartIndex order.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", types.ErrInvalidArgument)
	}
	if err := normalizeOptions(&opts, s.cfg.ProjectID); err != nil {
		return nil, err
	}

	key := computeQueryHash(query, opts)
	if cached, ok := s.checkCache(key); ok {
		return cached, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := s.store.Search(ctx, s.cfg.Collection, vector, buildFilter(opts), opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		r := toResult(hit)
		r.Rank = 1
		if err := r.Validate(); err != nil {
			s.logger.Debug("dropping malformed search hit", "id", hit.ID, "error", err)
			continue
		}
		results = append(results, r)
	}

	s.sortResults(results)
	for i := range results {
		results[i].Rank = i + 1
	}

	s.storeInCache(key, results)
	return results, nil
}

// normalizeOptions applies defaults and validates symbol kinds
func normalizeOptions(opts *Options, defaultProject string) error {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}
	if opts.ProjectID == "" {
		opts.ProjectID = defaultProject
	}
	opts.PathPrefix = normalizePrefix(opts.PathPrefix)

	kinds := make([]string, 0, len(opts.SymbolKinds))
	for _, k := range opts.SymbolKinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		sym := types.Symbol{Kind: types.SymbolKind(k)}
		if sym.ValidateKind() != nil && sym.Kind != types.KindFile {
			return fmt.Errorf("%w: unknown symbol kind %q", types.ErrInvalidArgument, k)
		}
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	opts.SymbolKinds = kinds
	return nil
}

func normalizePrefix(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}

// buildFilter translates options to a payload filter. A path prefix
// matches either a directory containing the file or the file itself.
func buildFilter(opts Options) *vectorstore.Filter {
	f := &vectorstore.Filter{}
	if opts.ProjectID != "" {
		f.Must = append(f.Must, vectorstore.MatchValue(vectorstore.FieldProjectID, opts.ProjectID))
	}
	if len(opts.SymbolKinds) > 0 {
		values := make([]any, len(opts.SymbolKinds))
		for i, k := range opts.SymbolKinds {
			values[i] = k
		}
		f.Must = append(f.Must, vectorstore.MatchAny(vectorstore.FieldSymbolKind, values...))
	}
	if opts.PathPrefix != "" {
		f.Should = append(f.Should,
			vectorstore.MatchValue(vectorstore.FieldPathDirs, opts.PathPrefix),
			vectorstore.MatchValue(vectorstore.FieldPath, opts.PathPrefix))
	}
	if f.IsEmpty() {
		return nil
	}
	return f
}

func toResult(hit vectorstore.ScoredPoint) types.SearchResult {
	p := hit.Payload
	return types.SearchResult{
		PointID:    hit.ID,
		DocID:      vectorstore.PayloadString(p, vectorstore.FieldDocID),
		Score:      hit.Score,
		Path:       vectorstore.PayloadString(p, vectorstore.FieldPath),
		SymbolName: vectorstore.PayloadString(p, vectorstore.FieldSymbolName),
		SymbolKind: types.SymbolKind(vectorstore.PayloadString(p, vectorstore.FieldSymbolKind)),
		LineStart:  vectorstore.PayloadInt(p, vectorstore.FieldLineStart),
		LineEnd:    vectorstore.PayloadInt(p, vectorstore.FieldLineEnd),
		PartIndex:  vectorstore.PayloadInt(p, vectorstore.FieldPartIndex),
		PartTotal:  vectorstore.PayloadInt(p, vectorstore.FieldPartTotal),
		Text:       vectorstore.PayloadString(p, vectorstore.FieldText),
	}
}

// sortResults orders by score, best first for the collection's metric,
// then by PartIndex
func (s *Searcher) sortResults(results []types.SearchResult) {
	lowerIsBetter := s.cfg.Distance == vectorstore.DistanceEuclid
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			if lowerIsBetter {
				return a.Score < b.Score
			}
			return a.Score > b.Score
		}
		return a.PartIndex < b.PartIndex
	})
}

// checkCache returns a copy of a live cached result set
func (s *Searcher) checkCache(key [32]byte) ([]types.SearchResult, bool) {
	if s.cache == nil {
		return nil, false
	}

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil, false
	}
	results := copyResults(entry.results)
	s.cacheMu.RUnlock()

	return results, true
}

func (s *Searcher) storeInCache(key [32]byte, results []types.SearchResult) {
	if s.cache == nil || len(results) == 0 {
		return
	}
	entry := &cacheEntry{
		results:   copyResults(results),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(key, entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached query. Call it after an indexing run
// changed the store.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached queries
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// SearchResult holds only value fields, so a slice copy is a deep copy
func copyResults(src []types.SearchResult) []types.SearchResult {
	return append([]types.SearchResult(nil), src...)
}

// computeQueryHash derives a cache key from the query and normalized options
func computeQueryHash(query string, opts Options) [32]byte {
	var data strings.Builder
	data.WriteString(query)
	data.WriteString("|")
	data.WriteString(opts.ProjectID)
	data.WriteString("|")
	data.WriteString(opts.PathPrefix)
	data.WriteString("|")
	data.WriteString(strings.Join(opts.SymbolKinds, ","))
	data.WriteString("|")
	fmt.Fprintf(&data, "%d", opts.Limit)

	return sha256.Sum256([]byte(data.String()))
}
