package types

import "errors"

// Domain errors shared across components
var (
	// ErrInvalidArgument marks programmer/contract violations. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConfig marks configuration errors detected before a run starts
	ErrConfig = errors.New("invalid configuration")

	// Search result errors
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be finite")
	ErrMissingFileInfo       = errors.New("file path is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
)
