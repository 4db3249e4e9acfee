// Package storage is an embedded SQLite vector store.
//
// SQLiteStore implements vectorstore.Gateway so the indexer and searcher
// can run without a Qdrant server. Points are kept in a single table with
// their vector as a little-endian float32 blob and their payload as JSON.
// Similarity is computed in Go; payload filters use the same matching rules
// as the Qdrant client.
//
// # Tables
//
//   - collections: name, vector size and distance metric
//   - points: id, doc_id, vector and payload per collection
//   - payload_indexes: fields declared by EnsureInitialized
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler.
// Building with the sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
//
// # Usage
//
//	store, err := storage.Open(ctx, storage.Options{
//	    Path:       ".nuvos/index/vectors.db",
//	    VectorSize: 1536,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.EnsureInitialized(ctx, "code"); err != nil {
//	    return err
//	}
//	hits, err := store.Search(ctx, "code", query, vectorstore.DocIDFilter(id), 10)
//
// Brute-force scoring reads every point of a collection per search, which is
// fine for a single repository but not for large shared indexes.
package storage
