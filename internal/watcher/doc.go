// Package watcher re-runs indexing when files under a source root change.
//
// Directories are registered recursively, including ones created after the
// watcher starts. Events for skipped paths (the ledger directory, .git,
// excluded globs) are dropped. A burst of changes produces one run once the
// tree has been quiet for the debounce period; changes that arrive during a
// run schedule another.
package watcher
