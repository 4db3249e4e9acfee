package parser

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/nuvos/nuvos-index/pkg/types"
)

// ErrParseFailed is returned when an oracle cannot produce any usable
// symbol boundaries for a file
var ErrParseFailed = errors.New("parse failed")

// Oracle reports declaration spans for source text. Implementations must
// be safe for concurrent use.
type Oracle interface {
	// Parse extracts symbols, imports and the header comment from src
	Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error)

	// Languages lists the language names this oracle understands
	Languages() []string
}

// Registry selects an oracle by file extension
type Registry struct {
	mu       sync.RWMutex
	byExt    map[string]Oracle
	fallback Oracle
}

// NewRegistry creates an empty registry that uses fallback for unknown extensions
func NewRegistry(fallback Oracle) *Registry {
	return &Registry{
		byExt:    make(map[string]Oracle),
		fallback: fallback,
	}
}

// DefaultRegistry wires the Go, tree-sitter and heuristic oracles
func DefaultRegistry() *Registry {
	heuristic := NewHeuristicOracle()
	r := NewRegistry(heuristic)
	r.Register(NewGoOracle(), ".go")

	ts := NewTreeSitterOracle()
	r.Register(ts, ts.Extensions()...)
	r.Register(heuristic, heuristic.Extensions()...)
	return r
}

// Register maps the given extensions (with leading dot) to o
func (r *Registry) Register(o Oracle, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = o
	}
}

// For returns the oracle for filePath, falling back when none is registered
func (r *Registry) For(filePath string) Oracle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.byExt[strings.ToLower(path.Ext(filePath))]; ok {
		return o
	}
	return r.fallback
}

// Parse runs the oracle registered for filePath
func (r *Registry) Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error) {
	o := r.For(filePath)
	if o == nil {
		return &types.ParseResult{}, nil
	}
	return o.Parse(ctx, filePath, src)
}

// lineStarts returns the byte offset at which every line begins
func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// isCommentLine reports whether a trimmed line is a comment in any of the
// supported languages
func isCommentLine(trimmed string) bool {
	for _, prefix := range []string{"//", "/*", "*", "#", "--", ";;"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// isTriviaLine reports whether a trimmed line is a comment or an
// attribute/annotation that belongs to the declaration below it
func isTriviaLine(trimmed string) bool {
	if isCommentLine(trimmed) {
		return true
	}
	return strings.HasPrefix(trimmed, "@") || strings.HasPrefix(trimmed, "#[") ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
}

// leadingComment returns the comment block at the top of the file and the
// last line it occupies. Shebang and preprocessor lines end the block.
func leadingComment(lines []string) (string, int) {
	end := 0
	inBlock := false

scan:
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			end = i + 1
			inBlock = !strings.Contains(trimmed, "*/")
		case trimmed == "":
			if end > 0 {
				break scan
			}
		case isDirective(trimmed):
			break scan
		case strings.HasPrefix(trimmed, "/*"):
			end = i + 1
			inBlock = !strings.Contains(trimmed[2:], "*/")
		case isCommentLine(trimmed):
			end = i + 1
		default:
			break scan
		}
	}

	if end == 0 {
		return "", 0
	}
	return strings.TrimSpace(strings.Join(lines[:end], "\n")), end
}

func isDirective(trimmed string) bool {
	for _, prefix := range []string{"#!", "#include", "#define", "#if", "#pragma", "#["} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
