// Package indexer runs the incremental indexing pipeline for one source tree.
//
// # Basic Usage
//
//	idx, err := indexer.New(indexer.Deps{
//	    Discoverer: walker,
//	    Chunker:    chunker,
//	    Embedder:   emb,
//	    Store:      store,
//	    Ledger:     led,
//	}, indexer.Options{
//	    Collection: "code_chunks",
//	    RepoURL:    "https://github.com/acme/shop.git",
//	    ProjectID:  "shop",
//	    Ref:        "main",
//	})
//
//	stats, err := idx.Run(ctx, indexer.RunOptions{})
//	fmt.Printf("%d reindexed, %d unchanged, %d deleted\n",
//	    stats.Reindexed, stats.Unchanged, stats.Deleted)
//
// # Pipeline
//
// Each run executes these stages:
//
//  1. Ensure the collection and its payload indexes exist
//  2. Discover files; binary and oversized files are counted as skipped
//  3. Purge files the ledger tracks that are gone from disk, by DocId
//  4. For every other file, in parallel: hash, classify, chunk, embed,
//     delete the file's points by DocId, upload the new points, mark the
//     ledger record indexed
//  5. Save the ledger
//
// A file whose hash matches the ledger's indexed hash does no work at all.
// Changed files are replaced wholesale: there is no point-level diffing.
//
// # Forced Reindexing
//
// RunOptions.Force, or a Reindex mode stored on one ledger record, forces
// processing regardless of the hash:
//
//	idx.Run(ctx, indexer.RunOptions{Force: ledger.ReindexChunk})
//
// ReindexFull also purges points stored under a previously recorded DocId.
// A record whose DocId no longer matches the current identity inputs is
// treated as ReindexFull automatically.
//
// # Error Handling
//
// Failures are isolated per file. The failing file's ledger record keeps
// its previous indexed hash so the next run retries it:
//
//	stats, err := idx.Run(ctx, opts)
//	if err != nil {
//	    // run-level: store unreachable, ledger not writable, cancelled
//	}
//	for _, f := range stats.Failures {
//	    log.Printf("%s failed at %s: %v", f.Path, f.Stage, f.Err)
//	}
//
// # Checkpointing
//
// The ledger is saved every Options.CheckpointEvery completed files, at the
// end of a run, and when a run is cancelled.
//
// # Concurrency
//
// Files are processed by up to Options.Workers goroutines. Only one run may
// be active per Indexer; a second call returns ErrRunInProgress.
package indexer
