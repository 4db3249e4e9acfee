// Package embedder turns chunk text into vectors.
//
// Two providers are available. HTTPProvider calls an OpenAI-compatible
// /embeddings endpoint (OpenAI or Jina AI), splitting large inputs into
// batches and retrying rate limits and server errors with backoff.
// LocalProvider hashes identifier tokens into a fixed-size vector and needs
// no network, which suits tests and offline indexing.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    CacheSize: 10000,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vectors, err := emb.EmbedBatch(ctx, texts)
//
// # Caching
//
// A positive CacheSize wraps the provider in Cached, an LRU keyed by an
// xxh3 hash of model and text. When one method of a large file changes,
// only that chunk's text misses the cache on the next run.
//
// # API Keys
//
// When Config.APIKey is empty the key is read from OPENAI_API_KEY or
// JINA_API_KEY.
package embedder
