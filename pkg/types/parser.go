package types

// ParseResult represents the output of a syntax boundary oracle for one file
type ParseResult struct {
	Language string

	// Extracted data
	Symbols []Symbol
	Imports []Import

	// Leading comment block of the file and the last line it occupies
	HeaderComment string
	HeaderEndLine int

	// Errors encountered during parsing
	Errors []ParseError
}

// Import represents an import, using or include directive
type Import struct {
	Path string
	Line int // 1-based line the directive starts on
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// LastImportLine returns the highest line occupied by an import, or 0
func (pr *ParseResult) LastImportLine() int {
	last := 0
	for _, imp := range pr.Imports {
		if imp.Line > last {
			last = imp.Line
		}
	}
	return last
}
