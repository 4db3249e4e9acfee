package parser

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/nuvos/nuvos-index/pkg/types"
)

// linePattern recognizes a declaration on a single line
type linePattern struct {
	re   *regexp.Regexp
	kind types.SymbolKind
}

// lineRules holds the patterns of one language
type lineRules struct {
	name     string
	patterns []linePattern
	imports  *regexp.Regexp
	headings bool
}

var cKeywords = map[string]bool{
	"if":     true, "for": true, "while": true, "switch": true, "return": true,
	"sizeof": true, "else": true, "do": true, "case": true,
}

var (
	rustRules = lineRules{
		name: "rust",
		patterns: []linePattern{
			{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?(?:const\s+)?fn\s+(\w+)`), types.KindFunction},
			{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|union|trait|type)\s+(\w+)`), types.KindType},
			{regexp.MustCompile(`^\s*impl(?:\s*<[^>]*>)?\s+(?:[\w:]+(?:<[^>]*>)?\s+for\s+)?(\w+)`), types.KindType},
			{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?mod\s+(\w+)\s*\{`), types.KindType},
			{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?const\s+(\w+)\s*:`), types.KindConst},
			{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?static\s+(?:mut\s+)?(\w+)\s*:`), types.KindVar},
		},
		imports: regexp.MustCompile(`^\s*(?:pub\s+)?use\s+([^;]+);`),
	}

	kotlinRules = lineRules{
		name: "kotlin",
		patterns: []linePattern{
			{regexp.MustCompile(`^\s*(?:[a-z]+\s+)*(?:class|interface|object)\s+(\w+)`), types.KindType},
			{regexp.MustCompile(`^\s*(?:[a-z]+\s+)*fun\s+(?:<[^>]*>\s*)?(?:[\w.]+\.)?(\w+)\s*\(`), types.KindFunction},
			{regexp.MustCompile(`^\s*(?:[a-z]+\s+)*constructor\s*\(`), types.KindConstructor},
		},
		imports: regexp.MustCompile(`^\s*import\s+([\w.*]+)`),
	}

	cRules = lineRules{
		name: "cpp",
		patterns: []linePattern{
			{regexp.MustCompile(`^\s*(?:template\s*<[^>]*>\s*)?(?:class|struct|union|enum(?:\s+class)?)\s+(\w+)[^;]*$`), types.KindType},
			{regexp.MustCompile(`^\s*namespace\s+(\w+)`), types.KindType},
			{regexp.MustCompile(`^[A-Za-z_][\w:<>,\*&\s]*?[\s\*&]([A-Za-z_]\w*)\s*\([^;]*$`), types.KindFunction},
		},
		imports: regexp.MustCompile(`^\s*#\s*include\s+([<"][^>"]+[>"])`),
	}

	rubyRules = lineRules{
		name: "ruby",
		patterns: []linePattern{
			{regexp.MustCompile(`^\s*(?:class|module)\s+([\w:]+)`), types.KindType},
			{regexp.MustCompile(`^\s*def\s+(?:self\.)?(\w+[?!=]?)`), types.KindMethod},
		},
		imports: regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`),
	}

	phpRules = lineRules{
		name: "php",
		patterns: []linePattern{
			{regexp.MustCompile(`^\s*(?:(?:abstract|final|readonly)\s+)*(?:class|interface|trait|enum)\s+(\w+)`), types.KindType},
			{regexp.MustCompile(`^\s*(?:(?:public|protected|private|static|abstract|final)\s+)*function\s+&?(\w+)\s*\(`), types.KindFunction},
		},
		imports: regexp.MustCompile(`^\s*use\s+([\w\\]+)`),
	}

	swiftRules = lineRules{
		name: "swift",
		patterns: []linePattern{
			{regexp.MustCompile(`^\s*(?:@\w+\s+)*(?:(?:public|private|internal|open|fileprivate|final)\s+)*(?:class|struct|enum|protocol|extension|actor)\s+(\w+)`), types.KindType},
			{regexp.MustCompile(`^\s*(?:@\w+\s+)*(?:(?:public|private|internal|open|fileprivate|static|override|mutating|final)\s+)*func\s+(\w+)`), types.KindFunction},
			{regexp.MustCompile(`^\s*(?:(?:public|private|internal|convenience|required|override)\s+)*(init)\s*[?!]?\s*\(`), types.KindConstructor},
		},
		imports: regexp.MustCompile(`^\s*import\s+(\w+)`),
	}

	markdownRules = lineRules{
		name:     "markdown",
		headings: true,
	}
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

// HeuristicOracle finds declarations with per-language line patterns. A
// symbol ends before the next symbol at the same or a shallower depth.
type HeuristicOracle struct {
	rules map[string]lineRules
}

// NewHeuristicOracle creates the line-heuristic oracle
func NewHeuristicOracle() *HeuristicOracle {
	return &HeuristicOracle{
		rules: map[string]lineRules{
			".rs":       rustRules,
			".kt":       kotlinRules,
			".kts":      kotlinRules,
			".c":        cRules,
			".h":        cRules,
			".cc":       cRules,
			".cpp":      cRules,
			".cxx":      cRules,
			".hpp":      cRules,
			".rb":       rubyRules,
			".php":      phpRules,
			".swift":    swiftRules,
			".md":       markdownRules,
			".markdown": markdownRules,
		},
	}
}

// Extensions lists the file extensions with line rules
func (o *HeuristicOracle) Extensions() []string {
	exts := make([]string, 0, len(o.rules))
	for ext := range o.rules {
		exts = append(exts, ext)
	}
	return exts
}

// Languages implements Oracle
func (o *HeuristicOracle) Languages() []string {
	return []string{"rust", "kotlin", "cpp", "ruby", "php", "swift", "markdown"}
}

// Parse implements Oracle. Files without rules yield no symbols and are
// windowed as a whole by the chunker.
func (o *HeuristicOracle) Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := strings.Split(string(src), "\n")
	rules, ok := o.rules[strings.ToLower(path.Ext(filePath))]
	if !ok {
		return &types.ParseResult{Language: "text"}, nil
	}

	result := &types.ParseResult{Language: rules.name}
	if !rules.headings {
		result.HeaderComment, result.HeaderEndLine = leadingComment(lines)
	}

	starts := lineStarts(src)
	trimTrivia := !rules.headings
	inFence := false
	var open []openSymbol

	for i, line := range lines {
		lineNo := i + 1

		if rules.headings && isFence(line) {
			inFence = !inFence
		}
		if inFence {
			continue
		}

		if rules.imports != nil {
			if m := rules.imports.FindStringSubmatch(line); m != nil {
				result.Imports = append(result.Imports, types.Import{Path: strings.TrimSpace(m[1]), Line: lineNo})
				continue
			}
		}

		name, kind, depth, ok := rules.match(line)
		if !ok {
			continue
		}

		// Close every open symbol at the same or a deeper level
		for len(open) > 0 && open[len(open)-1].depth >= depth {
			result.Symbols = append(result.Symbols, open[len(open)-1].close(lineNo-1, lines, starts, len(src), trimTrivia))
			open = open[:len(open)-1]
		}

		parent := ""
		if len(open) > 0 {
			parent = open[len(open)-1].qualified()
			if kind == types.KindFunction {
				kind = types.KindMethod
			}
		}

		open = append(open, openSymbol{
			sym: types.Symbol{
				Name:      name,
				Kind:      kind,
				Parent:    parent,
				StartLine: lineNo,
				StartByte: starts[min(i, len(starts)-1)],
			},
			depth: depth,
		})
	}

	for len(open) > 0 {
		result.Symbols = append(result.Symbols, open[len(open)-1].close(len(lines), lines, starts, len(src), trimTrivia))
		open = open[:len(open)-1]
	}

	sortSymbols(result.Symbols)
	return result, nil
}

// match applies the rules to one line and returns the declared name, its
// kind and its nesting depth
func (r lineRules) match(line string) (string, types.SymbolKind, int, bool) {
	if r.headings {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			return "", "", 0, false
		}
		return m[2], types.KindSection, len(m[1]), true
	}

	for _, p := range r.patterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[len(m)-1]
		if p.kind == types.KindFunction && cKeywords[name] {
			continue
		}
		return name, p.kind, indentWidth(line), true
	}
	return "", "", 0, false
}

type openSymbol struct {
	sym   types.Symbol
	depth int
}

func (o openSymbol) qualified() string {
	return qualify(o.sym.Parent, o.sym.Name)
}

// close ends the symbol at the given line. Trailing blank lines are
// dropped, and so is the leading trivia of whatever follows.
func (o openSymbol) close(end int, lines []string, starts []int, size int, trimTrivia bool) types.Symbol {
	for end > o.sym.StartLine {
		trimmed := strings.TrimSpace(lines[end-1])
		if trimmed != "" && !(trimTrivia && isTriviaLine(trimmed)) {
			break
		}
		end--
	}
	if end < o.sym.StartLine {
		end = o.sym.StartLine
	}

	s := o.sym
	s.EndLine = end
	if end < len(starts) {
		s.EndByte = starts[end]
	} else {
		s.EndByte = size
	}
	return s
}

// indentWidth counts leading whitespace with tabs as four columns
func indentWidth(line string) int {
	width := 0
	for _, r := range line {
		switch r {
		case ' ':
			width++
		case '\t':
			width += 4
		default:
			return width
		}
	}
	return width
}

// sortSymbols orders symbols by start line, enclosing symbols first
func sortSymbols(symbols []types.Symbol) {
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].StartLine != symbols[j].StartLine {
			return symbols[i].StartLine < symbols[j].StartLine
		}
		return symbols[i].EndLine > symbols[j].EndLine
	})
}

func isFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}
