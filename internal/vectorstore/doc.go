// Package vectorstore is the gateway to the vector database that holds
// chunk embeddings.
//
// A Gateway creates collections and their payload indexes, upserts points,
// searches by vector with payload filters, and deletes points by id, by
// document id or by filter. Two implementations exist: QdrantClient talks to
// a Qdrant server over HTTP, and the storage package provides an embedded
// SQLite store for offline use and tests.
//
// Large uploads go through UpsertInBatches, which sizes batches from the
// vector dimension and halves them whenever the server answers 413.
package vectorstore
