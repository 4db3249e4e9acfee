package types

import (
	"errors"
)

// SymbolKind represents the kind of declaration a syntax oracle reports
type SymbolKind string

const (
	KindType        SymbolKind = "type"
	KindMethod      SymbolKind = "method"
	KindConstructor SymbolKind = "constructor"
	KindProperty    SymbolKind = "property"
	KindField       SymbolKind = "field"
	KindEvent       SymbolKind = "event"
	KindFunction    SymbolKind = "function"
	KindConst       SymbolKind = "const"
	KindVar         SymbolKind = "var"
	KindSection     SymbolKind = "section"

	// KindFile marks chunks that cover a file rather than one declaration
	KindFile SymbolKind = "file"
)

// Symbol is a declaration span reported by a syntax boundary oracle
type Symbol struct {
	Name   string
	Kind   SymbolKind
	Parent string // Enclosing type name, empty at top level

	// Location (1-based, inclusive)
	StartLine int
	EndLine   int

	// Byte offsets into the source, half-open
	StartByte int
	EndByte   int
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindType, KindMethod, KindConstructor, KindProperty, KindField,
		KindEvent, KindFunction, KindConst, KindVar, KindSection:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	if s.StartLine <= 0 || s.EndLine <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.StartLine > s.EndLine {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}

// QualifiedName returns Parent.Name, or Name at top level
func (s *Symbol) QualifiedName() string {
	if s.Parent == "" {
		return s.Name
	}
	return s.Parent + "." + s.Name
}

// Contains reports whether other lies within this symbol's line span
func (s *Symbol) Contains(other *Symbol) bool {
	if s == other {
		return false
	}
	return other.StartLine >= s.StartLine && other.EndLine <= s.EndLine &&
		(other.StartLine != s.StartLine || other.EndLine != s.EndLine)
}
