package parser

import (
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/nuvos/nuvos-index/pkg/types"
)

// grammar binds a tree-sitter language to the node types it declares symbols with
type grammar struct {
	name     string
	language func() *sitter.Language
	kinds    map[string]types.SymbolKind
	imports  map[string]bool
}

var (
	csharpGrammar = grammar{
		name:     "csharp",
		language: csharp.GetLanguage,
		kinds: map[string]types.SymbolKind{
			"class_declaration":         types.KindType,
			"struct_declaration":        types.KindType,
			"interface_declaration":     types.KindType,
			"enum_declaration":          types.KindType,
			"record_declaration":        types.KindType,
			"record_struct_declaration": types.KindType,
			"delegate_declaration":      types.KindType,
			"method_declaration":        types.KindMethod,
			"operator_declaration":      types.KindMethod,
			"destructor_declaration":    types.KindMethod,
			"constructor_declaration":   types.KindConstructor,
			"property_declaration":      types.KindProperty,
			"indexer_declaration":       types.KindProperty,
			"field_declaration":         types.KindField,
			"event_field_declaration":   types.KindEvent,
			"event_declaration":         types.KindEvent,
		},
		imports: map[string]bool{"using_directive": true},
	}

	javaGrammar = grammar{
		name:     "java",
		language: java.GetLanguage,
		kinds: map[string]types.SymbolKind{
			"class_declaration":           types.KindType,
			"interface_declaration":       types.KindType,
			"enum_declaration":            types.KindType,
			"record_declaration":          types.KindType,
			"annotation_type_declaration": types.KindType,
			"method_declaration":          types.KindMethod,
			"constructor_declaration":     types.KindConstructor,
			"field_declaration":           types.KindField,
		},
		imports: map[string]bool{"import_declaration": true},
	}

	pythonGrammar = grammar{
		name:     "python",
		language: python.GetLanguage,
		kinds: map[string]types.SymbolKind{
			"class_definition":    types.KindType,
			"function_definition": types.KindFunction,
		},
		imports: map[string]bool{"import_statement": true, "import_from_statement": true},
	}

	javascriptKinds = map[string]types.SymbolKind{
		"class_declaration":              types.KindType,
		"abstract_class_declaration":     types.KindType,
		"interface_declaration":          types.KindType,
		"type_alias_declaration":         types.KindType,
		"enum_declaration":               types.KindType,
		"method_definition":              types.KindMethod,
		"abstract_method_signature":      types.KindMethod,
		"function_declaration":           types.KindFunction,
		"generator_function_declaration": types.KindFunction,
		"public_field_definition":        types.KindField,
		"field_definition":               types.KindField,
		"lexical_declaration":            types.KindConst,
		"variable_declaration":           types.KindVar,
	}

	javascriptGrammar = grammar{
		name:     "javascript",
		language: javascript.GetLanguage,
		kinds:    javascriptKinds,
		imports:  map[string]bool{"import_statement": true},
	}

	typescriptGrammar = grammar{
		name:     "typescript",
		language: typescript.GetLanguage,
		kinds:    javascriptKinds,
		imports:  map[string]bool{"import_statement": true},
	}

	tsxGrammar = grammar{
		name:     "tsx",
		language: tsx.GetLanguage,
		kinds:    javascriptKinds,
		imports:  map[string]bool{"import_statement": true},
	}
)

// wrapperNodes are descended into without producing a symbol
var wrapperNodes = map[string]bool{
	"compilation_unit":                  true,
	"namespace_declaration":             true,
	"file_scoped_namespace_declaration": true,
	"declaration_list":                  true,
	"program":                           true,
	"module":                            true,
	"export_statement":                  true,
	"class_body":                        true,
	"interface_body":                    true,
	"enum_body":                         true,
	"enum_body_declarations":            true,
	"object_type":                       true,
	"block":                             true,
}

// TreeSitterOracle extracts declarations with tree-sitter grammars
type TreeSitterOracle struct {
	grammars map[string]grammar
}

// NewTreeSitterOracle creates an oracle for C#, Java, Python, JavaScript and TypeScript
func NewTreeSitterOracle() *TreeSitterOracle {
	return &TreeSitterOracle{
		grammars: map[string]grammar{
			".cs":   csharpGrammar,
			".java": javaGrammar,
			".py":   pythonGrammar,
			".pyi":  pythonGrammar,
			".js":   javascriptGrammar,
			".jsx":  javascriptGrammar,
			".mjs":  javascriptGrammar,
			".cjs":  javascriptGrammar,
			".ts":   typescriptGrammar,
			".mts":  typescriptGrammar,
			".cts":  typescriptGrammar,
			".tsx":  tsxGrammar,
		},
	}
}

// Extensions lists the file extensions with a grammar
func (o *TreeSitterOracle) Extensions() []string {
	exts := make([]string, 0, len(o.grammars))
	for ext := range o.grammars {
		exts = append(exts, ext)
	}
	return exts
}

// Languages implements Oracle
func (o *TreeSitterOracle) Languages() []string {
	return []string{"csharp", "java", "python", "javascript", "typescript", "tsx"}
}

// Parse implements Oracle. A sitter.Parser is not safe for concurrent use,
// so every call builds its own.
func (o *TreeSitterOracle) Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error) {
	g, ok := o.grammars[strings.ToLower(path.Ext(filePath))]
	if !ok {
		return nil, fmt.Errorf("%w: no grammar for %s", ErrParseFailed, filePath)
	}

	p := sitter.NewParser()
	p.SetLanguage(g.language())

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrParseFailed, filePath, err)
	}

	root := tree.RootNode()
	result := &types.ParseResult{Language: g.name}

	w := &treeWalker{grammar: g, src: src, result: result}
	w.header(root)
	w.walk(root, "")

	if root.HasError() {
		result.AddError(filePath, 0, 0, "syntax tree contains errors")
		if len(result.Symbols) == 0 {
			return result, fmt.Errorf("%w: %s: syntax tree contains errors", ErrParseFailed, filePath)
		}
	}
	return result, nil
}

type treeWalker struct {
	grammar grammar
	src     []byte
	result  *types.ParseResult
}

// header records the leading comment nodes of the file
func (w *treeWalker) header(root *sitter.Node) {
	var parts []string
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if !strings.Contains(child.Type(), "comment") {
			break
		}
		parts = append(parts, child.Content(w.src))
		_, end := nodeLines(child)
		w.result.HeaderEndLine = end
	}
	w.result.HeaderComment = strings.Join(parts, "\n")
}

func (w *treeWalker) walk(node *sitter.Node, parent string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		typ := child.Type()

		switch {
		case w.grammar.imports[typ]:
			start, _ := nodeLines(child)
			w.result.Imports = append(w.result.Imports, types.Import{
				Path: importPath(child.Content(w.src)),
				Line: start,
			})

		case typ == "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil {
				w.declare(child, def, parent)
			}

		case w.grammar.kinds[typ] != "":
			w.declare(child, child, parent)

		case wrapperNodes[typ]:
			w.walk(child, parent)
		}
	}
}

// declare records the symbol for def, using span for its location. Types
// are descended into so their members become symbols of their own.
func (w *treeWalker) declare(span, def *sitter.Node, parent string) {
	kind := w.grammar.kinds[def.Type()]
	name := w.symbolName(def)

	switch {
	case kind == types.KindFunction && parent != "":
		kind = types.KindMethod
		if name == "__init__" {
			kind = types.KindConstructor
		}
	case kind == types.KindMethod && name == "constructor":
		kind = types.KindConstructor
	case (kind == types.KindConst || kind == types.KindVar) && parent != "":
		// Locals never reach here; declarations inside a type are fields
		kind = types.KindField
	}

	if kind == types.KindConst && strings.HasPrefix(strings.TrimSpace(def.Content(w.src)), "let") {
		kind = types.KindVar
	}

	if name != "" {
		start, end := nodeLines(span)
		w.result.Symbols = append(w.result.Symbols, types.Symbol{
			Name:      name,
			Kind:      kind,
			Parent:    parent,
			StartLine: start,
			EndLine:   end,
			StartByte: int(span.StartByte()),
			EndByte:   int(span.EndByte()),
		})
	}

	if kind != types.KindType {
		return
	}

	inner := parent
	if name != "" {
		inner = qualify(parent, name)
	}
	if body := def.ChildByFieldName("body"); body != nil {
		w.walk(body, inner)
		return
	}
	for i := 0; i < int(def.NamedChildCount()); i++ {
		if child := def.NamedChild(i); wrapperNodes[child.Type()] {
			w.walk(child, inner)
		}
	}
}

// symbolName finds the declared name; variable-style declarations carry it
// on their first declarator
func (w *treeWalker) symbolName(node *sitter.Node) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(w.src)
	}
	if d := findDescendant(node, "variable_declarator", 3); d != nil {
		if n := d.ChildByFieldName("name"); n != nil {
			return n.Content(w.src)
		}
		if id := findDescendant(d, "identifier", 1); id != nil {
			return id.Content(w.src)
		}
	}
	return ""
}

// findDescendant performs a bounded breadth-first search for a node type
func findDescendant(node *sitter.Node, typ string, depth int) *sitter.Node {
	level := []*sitter.Node{node}
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []*sitter.Node
		for _, n := range level {
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == typ {
					return child
				}
				next = append(next, child)
			}
		}
		level = next
	}
	return nil
}

// nodeLines returns the 1-based inclusive line span of a node. A node that
// ends at column 0 ends on the previous line.
func nodeLines(n *sitter.Node) (int, int) {
	start := int(n.StartPoint().Row) + 1
	endPoint := n.EndPoint()
	end := int(endPoint.Row) + 1
	if endPoint.Column == 0 && end > start {
		end--
	}
	return start, end
}

// importPath strips the keyword and terminator from an import directive
func importPath(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, ";")
	for _, kw := range []string{"global using ", "using static ", "using ", "import static ", "import "} {
		if strings.HasPrefix(text, kw) {
			return strings.TrimSpace(text[len(kw):])
		}
	}
	return text
}

func qualify(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
