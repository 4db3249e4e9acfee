// Package mcp exposes one source tree's index over the Model Context
// Protocol (JSON-RPC 2.0 on stdio).
//
// Three tools are registered:
//   - index_repository: run the incremental indexer
//   - search_code: semantic search with optional path and symbol kind filters
//   - get_status: ledger and vector store statistics
//
// # Tool: index_repository
//
//	Request:
//	{
//	  "name": "index_repository",
//	  "arguments": {"force": "none"}
//	}
//
//	Response:
//	{
//	  "files_discovered": 247,
//	  "files_unchanged": 240,
//	  "files_reindexed": 6,
//	  "files_deleted": 1,
//	  "files_failed": 0,
//	  "chunks_created": 31,
//	  "points_uploaded": 31,
//	  "duration_ms": 5120
//	}
//
// force is one of none, chunk or full. Per-file failures do not fail the
// call; the first few are listed under "errors" with their stage.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "where are orders cancelled",
//	    "limit": 5,
//	    "path_prefix": "src/Orders",
//	    "symbol_kinds": ["method"]
//	  }
//	}
//
// Results are ordered by score and carry the chunk text, the symbol and
// its 1-based line range. Parts of one oversized symbol share a symbol
// name and are numbered by part_index.
//
// # Tool: get_status
//
// Reports the ledger record count, records pending reindex, records
// flagged for review after a degraded parse, the last indexing time and
// the number of points stored for the project.
//
// # Errors
//
// Failures are returned as *MCPError with JSON-RPC style codes:
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32002  an indexing run is already in progress
//	-32003  the collection does not exist yet
//	-32004  empty query
//
// # Logging
//
// stdout carries the protocol; the server logs through the application's
// slog logger, which commands point at stderr.
package mcp
