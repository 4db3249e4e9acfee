// Package searcher answers natural-language queries against the indexed
// collection.
//
// A query is embedded with the same embedder used for indexing, then sent
// to the vector store with a payload filter built from Options:
//
//	s, err := searcher.New(store, emb, searcher.Config{
//	    Collection: "code_chunks",
//	    ProjectID:  "shop",
//	})
//
//	results, err := s.Search(ctx, "where are orders persisted", searcher.Options{
//	    Limit:       10,
//	    PathPrefix:  "src/orders",
//	    SymbolKinds: []string{"method", "type"},
//	})
//
// PathPrefix matches whole path segments: "src/orders" selects files under
// that directory, or a file with exactly that path. SymbolKinds accepts the
// kinds reported by the syntax oracles plus "file".
//
// # Ordering
//
// Results are ordered best first for the collection's distance metric
// (higher for Cosine and Dot, lower for Euclid). Equal scores are ordered
// by PartIndex so parts of one split symbol read in order. Rank is 1-based.
//
// # Query Cache
//
// Non-empty result sets are cached in an LRU keyed by the SHA-256 of the
// query and normalized options, for Config.CacheTTL. Indexing runs change
// the store underneath the cache; callers should call InvalidateCache after
// a run that reindexed or deleted files.
package searcher
