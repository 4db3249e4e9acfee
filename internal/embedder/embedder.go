package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Common errors
var (
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrNoProviderEnabled   = errors.New("no embedding provider configured")
)

// DefaultCacheSize is the number of vectors kept by NewCached when given a
// non-positive size
const DefaultCacheSize = 10000

// Embedder turns text into vectors. Implementations must be safe for
// concurrent use.
type Embedder interface {
	// Embed returns the vector for one text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of every vector produced
	Dimension() int

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// ValidateTexts rejects an empty batch or a blank text
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d", ErrEmptyText, i)
		}
	}
	return nil
}

// CacheKey hashes model and text into a cache key
func CacheKey(model, text string) uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(model)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(text)
	return h.Sum64()
}

// Cached decorates an Embedder with an in-memory LRU cache. Unchanged
// chunks of an edited file are then not sent to the provider again.
type Cached struct {
	next  Embedder
	cache *lru.Cache[uint64, []float32]
}

var _ Embedder = (*Cached)(nil)

// NewCached wraps next with an LRU cache of the given size
func NewCached(next Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[uint64, []float32](size)
	if err != nil {
		// Only fails for non-positive sizes
		cache, _ = lru.New[uint64, []float32](DefaultCacheSize)
	}
	return &Cached{next: next, cache: cache}
}

// get returns a copy so callers cannot mutate cached vectors
func (c *Cached) get(key uint64) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

func (c *Cached) put(key uint64, v []float32) {
	stored := make([]float32, len(v))
	copy(stored, v)
	c.cache.Add(key, stored)
}

// Embed implements Embedder
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Embedder. Only cache misses reach the wrapped
// embedder, in a single batch.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	model := c.next.Model()
	out := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		keys[i] = CacheKey(model, text)
		if v, ok := c.get(keys[i]); ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(fresh), len(missing))
	}
	for j, idx := range missingIdx {
		c.put(keys[idx], fresh[j])
		out[idx] = fresh[j]
	}
	return out, nil
}

// Dimension implements Embedder
func (c *Cached) Dimension() int { return c.next.Dimension() }

// Model implements Embedder
func (c *Cached) Model() string { return c.next.Model() }

// Close implements Embedder
func (c *Cached) Close() error {
	c.cache.Purge()
	return c.next.Close()
}

// Len returns the number of cached vectors
func (c *Cached) Len() int {
	return c.cache.Len()
}
