package ledger

import (
	"fmt"
	"strings"
	"time"
)

// ReindexMode forces a file to be reprocessed regardless of its hash
type ReindexMode string

const (
	ReindexNone  ReindexMode = "none"
	ReindexChunk ReindexMode = "chunk"
	ReindexFull  ReindexMode = "full"
)

// ParseReindexMode parses a mode name; the empty string means none
func ParseReindexMode(s string) (ReindexMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ReindexNone, nil
	case "chunk":
		return ReindexChunk, nil
	case "full":
		return ReindexFull, nil
	default:
		return ReindexNone, fmt.Errorf("unknown reindex mode %q", s)
	}
}

// UnmarshalText accepts any casing and treats unknown values as none so an
// older or newer ledger never fails to load.
func (m *ReindexMode) UnmarshalText(b []byte) error {
	parsed, err := ParseReindexMode(string(b))
	if err != nil {
		parsed = ReindexNone
	}
	*m = parsed
	return nil
}

// Forces reports whether the mode forces reprocessing
func (m ReindexMode) Forces() bool {
	return m == ReindexChunk || m == ReindexFull
}

// Record is the ledger's state for one tracked file
type Record struct {
	FilePath          string      `json:"FilePath"`
	DocID             string      `json:"DocId"`
	ContentHash       string      `json:"ContentHash"`
	ActiveContentHash string      `json:"ActiveContentHash"`
	SubKind           string      `json:"SubKind"`
	LastIndexedUtc    time.Time   `json:"LastIndexedUtc"`
	FlagForReview     bool        `json:"FlagForReview"`
	Reindex           ReindexMode `json:"Reindex"`
}

// NeedsReindex reports whether the file must be chunked and uploaded again
func (r *Record) NeedsReindex() bool {
	return r.ActiveContentHash != r.ContentHash || r.Reindex.Forces()
}

// IsIndexed reports whether the file has completed at least one upload
func (r *Record) IsIndexed() bool {
	return r.ContentHash != ""
}
