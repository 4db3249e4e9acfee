// Package ledger persists per-file indexing state between runs.
//
// The ledger lives at <root>/.nuvos/index/local-index.json as a JSON array
// of records sorted by file path. Paths compare case-insensitively. A
// record's ContentHash only advances after its chunks were uploaded, so an
// interrupted run leaves the file eligible for the next one.
package ledger
