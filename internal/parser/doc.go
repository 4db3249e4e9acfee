// Package parser provides syntax boundary oracles: components that report
// where declarations begin and end in a source file so the chunker can cut
// along them.
//
// Three oracles are registered by DefaultRegistry:
//
//   - GoOracle uses go/parser and go/ast for .go files
//   - TreeSitterOracle uses tree-sitter grammars for C#, Java, Python,
//     JavaScript and TypeScript
//   - HeuristicOracle matches declaration lines with regular expressions
//     for Rust, Kotlin, C/C++, Ruby, PHP, Swift and Markdown headings, and
//     returns no symbols for anything else
//
// # Basic Usage
//
//	reg := parser.DefaultRegistry()
//	result, err := reg.Parse(ctx, "src/OrderService.cs", src)
//	if errors.Is(err, parser.ErrParseFailed) {
//	    // fall back to whole-file windowing
//	}
//
//	for _, sym := range result.Symbols {
//	    fmt.Printf("%s %s lines %d-%d\n", sym.Kind, sym.QualifiedName(), sym.StartLine, sym.EndLine)
//	}
//
// # Error Handling
//
// Syntax errors are non-fatal while the partial tree still yields symbols;
// they are recorded in ParseResult.Errors. ErrParseFailed is returned only
// when nothing usable could be extracted.
package parser
