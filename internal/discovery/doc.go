// Package discovery walks a source tree and lists the files to index.
//
// Version control metadata, the index's own .nuvos directory, build output
// (bin, obj), node_modules, vendor and hidden directories are always
// skipped unless an include pattern reaches into them. Exclude patterns come
// from configuration and from a .nuvosignore file at the root, using
// gitignore-style globs with ** support. Binary files are detected by
// extension or by a NUL byte near the start of the file and are reported
// with IsBinary set so the indexer can count them as skipped.
package discovery
