package parser

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/nuvos/nuvos-index/pkg/types"
)

// GoOracle handles AST-based parsing of Go source files
type GoOracle struct{}

// NewGoOracle creates a new GoOracle instance
func NewGoOracle() *GoOracle {
	return &GoOracle{}
}

// Languages implements Oracle
func (g *GoOracle) Languages() []string {
	return []string{"go"}
}

// Parse parses a Go source file and extracts symbols, imports and the header comment
func (g *GoOracle) Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &types.ParseResult{Language: "go"}
	fset := token.NewFileSet()

	file, err := parser.ParseFile(fset, filePath, src, parser.ParseComments)
	if err != nil {
		// Syntax errors are non-fatal while the partial AST still yields symbols
		result.AddError(filePath, 0, 0, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result, fmt.Errorf("%w: %s: %v", ErrParseFailed, filePath, err)
	}

	result.HeaderComment, result.HeaderEndLine = g.headerComment(fset, file)
	result.Imports = g.extractImports(fset, file)

	extractor := &goSymbolExtractor{fset: fset}
	for _, decl := range file.Decls {
		extractor.visit(decl)
	}
	result.Symbols = extractor.symbols

	if result.HasErrors() && len(result.Symbols) == 0 {
		return result, fmt.Errorf("%w: %s", ErrParseFailed, result.Errors[0].Message)
	}
	return result, nil
}

// headerComment returns the comment groups preceding the package clause
func (g *GoOracle) headerComment(fset *token.FileSet, file *ast.File) (string, int) {
	var parts []string
	end := 0
	for _, group := range file.Comments {
		if group.End() >= file.Package {
			break
		}
		parts = append(parts, commentText(group))
		end = fset.Position(group.End()).Line
	}
	return strings.Join(parts, "\n"), end
}

func commentText(group *ast.CommentGroup) string {
	lines := make([]string, 0, len(group.List))
	for _, c := range group.List {
		lines = append(lines, c.Text)
	}
	return strings.Join(lines, "\n")
}

// extractImports extracts import statements from the AST
func (g *GoOracle) extractImports(fset *token.FileSet, file *ast.File) []types.Import {
	imports := make([]types.Import, 0, len(file.Imports))

	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			p = strings.Trim(imp.Path.Value, "`\"")
		}
		if imp.Name != nil {
			p = imp.Name.Name + " " + p
		}

		imports = append(imports, types.Import{
			Path: p,
			Line: fset.Position(imp.Pos()).Line,
		})
	}

	return imports
}

// goSymbolExtractor collects top-level declarations
type goSymbolExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

func (e *goSymbolExtractor) visit(decl ast.Decl) {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		e.extractFunction(d)
	case *ast.GenDecl:
		e.extractGenDecl(d)
	}
}

// extractFunction extracts function and method declarations
func (e *goSymbolExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	if funcDecl.Name == nil {
		return
	}

	sym := e.span(funcDecl.Pos(), funcDecl.End())
	sym.Name = funcDecl.Name.Name

	// Determine if this is a method or function
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Parent = e.extractReceiverType(funcDecl.Recv.List[0].Type)
	} else {
		sym.Kind = types.KindFunction
	}

	e.symbols = append(e.symbols, sym)
}

// extractGenDecl extracts type, const and var declarations. A single,
// unparenthesized spec covers its keyword too.
func (e *goSymbolExtractor) extractGenDecl(genDecl *ast.GenDecl) {
	grouped := genDecl.Lparen.IsValid()

	for _, spec := range genDecl.Specs {
		start, end := spec.Pos(), spec.End()
		if !grouped {
			start, end = genDecl.Pos(), genDecl.End()
		}

		switch s := spec.(type) {
		case *ast.TypeSpec:
			sym := e.span(start, end)
			sym.Name = s.Name.Name
			sym.Kind = types.KindType
			e.symbols = append(e.symbols, sym)
		case *ast.ValueSpec:
			names := make([]string, 0, len(s.Names))
			for _, n := range s.Names {
				names = append(names, n.Name)
			}
			sym := e.span(start, end)
			sym.Name = strings.Join(names, ", ")
			sym.Kind = types.KindVar
			if genDecl.Tok == token.CONST {
				sym.Kind = types.KindConst
			}
			e.symbols = append(e.symbols, sym)
		}
	}
}

// extractReceiverType extracts the receiver type name from a method
func (e *goSymbolExtractor) extractReceiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return e.extractReceiverType(t.X)
	case *ast.IndexExpr:
		return e.extractReceiverType(t.X)
	case *ast.IndexListExpr:
		return e.extractReceiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// span converts token positions to a symbol location
func (e *goSymbolExtractor) span(start, end token.Pos) types.Symbol {
	from := e.fset.Position(start)
	to := e.fset.Position(end)
	return types.Symbol{
		StartLine: from.Line,
		EndLine:   to.Line,
		StartByte: from.Offset,
		EndByte:   to.Offset,
	}
}
