package types

import (
	"errors"
	"fmt"
)

// Section keys used for chunks that do not belong to a declaration
const (
	SectionSummary = "summary"
	SectionFile    = "file"
)

// Chunk represents a bounded slice of source text selected for embedding
type Chunk struct {
	// Symbol identity
	SymbolName string
	SymbolKind SymbolKind
	SectionKey string

	// Location (1-based, inclusive lines; byte offsets are half-open)
	LineStart int
	LineEnd   int
	CharStart int
	CharEnd   int

	// Position within the symbol's run of parts (1-based)
	PartIndex int
	PartTotal int

	EstimatedTokens int
	Text            string
}

// ValidateLocation checks line ranges and part numbering
func (c *Chunk) ValidateLocation(lineCount int) error {
	if c.LineStart <= 0 || c.LineEnd <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.LineStart > c.LineEnd {
		return errors.New("start line must be before or equal to end line")
	}

	if lineCount > 0 && c.LineEnd > lineCount {
		return fmt.Errorf("end line %d exceeds file length %d", c.LineEnd, lineCount)
	}

	if c.CharStart < 0 || c.CharEnd < c.CharStart {
		return errors.New("invalid character range")
	}

	return nil
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate(lineCount int) error {
	if err := c.ValidateLocation(lineCount); err != nil {
		return err
	}

	if c.PartTotal < 1 || c.PartIndex < 1 || c.PartIndex > c.PartTotal {
		return fmt.Errorf("invalid part %d of %d", c.PartIndex, c.PartTotal)
	}

	if c.SectionKey == "" {
		return errors.New("section key is required")
	}

	if c.Text == "" {
		return ErrEmptyContent
	}

	return nil
}

// IsSummary reports whether the chunk is the file summary chunk
func (c *Chunk) IsSummary() bool {
	return c.SectionKey == SectionSummary
}
