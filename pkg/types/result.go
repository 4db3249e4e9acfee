package types

import "math"

// SearchResult represents a single search hit with its chunk metadata
type SearchResult struct {
	// Identification
	PointID string
	DocID   string
	Rank    int // Position in result set (1-based)

	// Scoring
	Score float64

	// Location
	Path       string
	SymbolName string
	SymbolKind SymbolKind
	LineStart  int
	LineEnd    int
	PartIndex  int
	PartTotal  int

	Text string
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if math.IsNaN(sr.Score) || math.IsInf(sr.Score, 0) {
		return ErrInvalidRelevanceScore
	}

	if sr.Path == "" {
		return ErrMissingFileInfo
	}

	if sr.Text == "" {
		return ErrEmptyContent
	}

	return nil
}
