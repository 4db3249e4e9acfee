package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	// DefaultTokenBudget is the target maximum estimated tokens per chunk
	DefaultTokenBudget = 400

	// DefaultOverlapLines is the number of lines repeated between windows
	DefaultOverlapLines = 3

	// DefaultSummaryMaxTokens caps the file summary chunk
	DefaultSummaryMaxTokens = 200

	// DefaultMaxIterationsPerSymbol bounds the window loop of one span
	DefaultMaxIterationsPerSymbol = 10000

	// CharsPerToken is the heuristic for estimating tokens (chars/4)
	CharsPerToken = 4
)

// Parser is the syntax boundary oracle the chunker cuts along
type Parser interface {
	Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error)
}

// Estimator returns the estimated token count of a piece of text
type Estimator func(text string) int

// EstimateTokens estimates tokens as characters/4, rounded up
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Options configures chunk sizing
type Options struct {
	TokenBudget            int
	OverlapLines           int
	SummaryMaxTokens       int
	MaxIterationsPerSymbol int
	Estimator              Estimator
}

// DefaultOptions returns the default chunk sizing
func DefaultOptions() Options {
	return Options{
		TokenBudget:            DefaultTokenBudget,
		OverlapLines:           DefaultOverlapLines,
		SummaryMaxTokens:       DefaultSummaryMaxTokens,
		MaxIterationsPerSymbol: DefaultMaxIterationsPerSymbol,
		Estimator:              EstimateTokens,
	}
}

// Result is the outcome of chunking one file
type Result struct {
	Chunks   []types.Chunk
	Language string
	Lines    int

	// Degraded is set when the oracle failed and the whole file was windowed
	Degraded   bool
	ParseError error
}

// Chunker splits file text into token-budgeted, overlapping chunks aligned
// to declaration boundaries
type Chunker struct {
	parser Parser
	opts   Options
	logger *slog.Logger
}

// New creates a Chunker. A budget below one token is a configuration error;
// an overlap at or above the budget is treated as zero.
func New(p Parser, opts Options, logger *slog.Logger) (*Chunker, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: parser is required", types.ErrInvalidArgument)
	}
	if opts.TokenBudget < 1 {
		return nil, fmt.Errorf("%w: token budget must be positive, got %d", types.ErrConfig, opts.TokenBudget)
	}
	if opts.OverlapLines < 0 || opts.OverlapLines >= opts.TokenBudget {
		opts.OverlapLines = 0
	}
	if opts.SummaryMaxTokens <= 0 {
		opts.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if opts.MaxIterationsPerSymbol <= 0 {
		opts.MaxIterationsPerSymbol = DefaultMaxIterationsPerSymbol
	}
	if opts.Estimator == nil {
		opts.Estimator = EstimateTokens
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Chunker{parser: p, opts: opts, logger: logger}, nil
}

// Options returns the effective options
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits text into chunks. The summary chunk comes first, followed by
// declaration chunks in document order. An oracle failure degrades to
// windowing the whole file and is reported in the result, not as an error.
func (c *Chunker) Chunk(ctx context.Context, text, filePath string) (*Result, error) {
	doc := newDocument(text, c.opts.Estimator)
	result := &Result{Lines: doc.lineCount()}
	if doc.lineCount() == 0 {
		return result, nil
	}

	parsed, err := c.parser.Parse(ctx, filePath, []byte(text))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || parsed == nil {
		if err == nil {
			err = errors.New("oracle returned no result")
		}
		c.logger.Debug("syntax oracle failed, windowing whole file",
			slog.String("path", filePath),
			slog.String("error", err.Error()))

		result.Degraded = true
		result.ParseError = err
		if parsed != nil {
			result.Language = parsed.Language
		}
		result.Chunks = c.fileChunks(doc, filePath)
		return result, nil
	}

	result.Language = parsed.Language
	if summary, ok := c.summaryChunk(doc, parsed, filePath); ok {
		result.Chunks = append(result.Chunks, summary)
	}

	spans := planSpans(doc, parsed)
	if len(spans) == 0 {
		result.Chunks = append(result.Chunks, c.fileChunks(doc, filePath)...)
		return result, nil
	}

	for _, sp := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Chunks = append(result.Chunks, c.spanChunks(doc, sp, filePath)...)
	}

	return result, nil
}

// fileChunks windows the whole file
func (c *Chunker) fileChunks(doc *document, filePath string) []types.Chunk {
	sp := span{
		name:       path.Base(filePath),
		kind:       types.KindFile,
		sectionKey: types.SectionFile,
		start:      1,
		end:        doc.lineCount(),
	}
	return c.spanChunks(doc, sp, filePath)
}

// spanChunks windows one span and numbers the windows. A blank window is
// folded into a neighbour so the chunks still cover the whole span.
func (c *Chunker) spanChunks(doc *document, sp span, filePath string) []types.Chunk {
	windows := mergeBlank(doc, c.windows(doc, sp, filePath))

	chunks := make([]types.Chunk, 0, len(windows))
	for _, w := range windows {
		text := doc.text(w.start, w.end)
		charStart, charEnd := doc.byteRange(w.start, w.end)
		chunks = append(chunks, types.Chunk{
			SymbolName:      sp.name,
			SymbolKind:      sp.kind,
			SectionKey:      sp.sectionKey,
			LineStart:       w.start,
			LineEnd:         w.end,
			CharStart:       charStart,
			CharEnd:         charEnd,
			EstimatedTokens: w.tokens,
			Text:            text,
		})
	}

	for i := range chunks {
		chunks[i].PartIndex = i + 1
		chunks[i].PartTotal = len(chunks)
	}
	return chunks
}

// mergeBlank extends the previous window over each whitespace-only window.
// Leading blank windows are folded into the first window with content. A span
// with no content at all yields no windows.
func mergeBlank(doc *document, windows []window) []window {
	merged := make([]window, 0, len(windows))
	leading := 0
	for _, w := range windows {
		if strings.TrimSpace(doc.text(w.start, w.end)) == "" {
			if len(merged) > 0 {
				last := &merged[len(merged)-1]
				last.end = max(last.end, w.end)
				last.tokens = doc.rangeTokens(last.start, last.end)
			} else if leading == 0 {
				leading = w.start
			}
			continue
		}
		if len(merged) == 0 && leading > 0 {
			w.start = leading
			w.tokens = doc.rangeTokens(w.start, w.end)
		}
		merged = append(merged, w)
	}
	return merged
}

// window is an inclusive 1-based line range with its token estimate
type window struct {
	start, end int
	tokens     int
}

// windows greedily grows line windows within the span. Every window holds
// at least one line, and the next window always starts past the previous
// start, so the loop ends for any budget and overlap.
func (c *Chunker) windows(doc *document, sp span, filePath string) []window {
	var out []window
	budget := c.opts.TokenBudget
	overlap := c.opts.OverlapLines

	cursor := sp.start
	for iteration := 0; cursor <= sp.end; iteration++ {
		if iteration >= c.opts.MaxIterationsPerSymbol {
			c.logger.Warn("chunk iteration ceiling reached",
				slog.String("path", filePath),
				slog.String("symbol", sp.sectionKey),
				slog.Int("line", cursor))
			break
		}

		tokens := 0
		end := cursor
		for line := cursor; line <= sp.end; line++ {
			est := doc.tokens(line)
			if line > cursor && tokens+est > budget {
				break
			}
			tokens += est
			end = line
		}
		out = append(out, window{start: cursor, end: end, tokens: tokens})

		if end >= sp.end {
			break
		}

		next := end + 1 - overlap
		if next <= cursor {
			next = end + 1
		}
		if next <= cursor {
			next = cursor + 1
		}
		cursor = next
	}

	return out
}

// summaryChunk builds the header comment plus import list chunk, capped
// at SummaryMaxTokens
func (c *Chunker) summaryChunk(doc *document, parsed *types.ParseResult, filePath string) (types.Chunk, bool) {
	var parts []string
	if header := strings.TrimSpace(parsed.HeaderComment); header != "" {
		parts = append(parts, strings.Split(header, "\n")...)
	}
	for _, imp := range parsed.Imports {
		if imp.Line >= 1 && imp.Line <= doc.lineCount() {
			parts = append(parts, strings.TrimSpace(doc.line(imp.Line)))
		} else if imp.Path != "" {
			parts = append(parts, imp.Path)
		}
	}
	if len(parts) == 0 {
		return types.Chunk{}, false
	}

	limit := c.opts.SummaryMaxTokens
	kept := make([]string, 0, len(parts))
	tokens := 0
	for _, part := range parts {
		est := c.opts.Estimator(part + "\n")
		if tokens+est > limit {
			if len(kept) == 0 {
				kept = append(kept, truncateRunes(part, limit*CharsPerToken))
				tokens = c.opts.Estimator(kept[0])
			}
			break
		}
		kept = append(kept, part)
		tokens += est
	}

	end := parsed.HeaderEndLine
	if last := parsed.LastImportLine(); last > end {
		end = last
	}
	end = clamp(end, 1, doc.lineCount())
	charStart, charEnd := doc.byteRange(1, end)

	return types.Chunk{
		SymbolName:      path.Base(filePath),
		SymbolKind:      types.KindFile,
		SectionKey:      types.SectionSummary,
		LineStart:       1,
		LineEnd:         end,
		CharStart:       charStart,
		CharEnd:         charEnd,
		PartIndex:       1,
		PartTotal:       1,
		EstimatedTokens: tokens,
		Text:            strings.Join(kept, "\n"),
	}, true
}

// span is a symbol's line range after trivia extension and container trimming
type span struct {
	name       string
	kind       types.SymbolKind
	sectionKey string
	start, end int
}

// planSpans turns oracle symbols into non-empty spans in document order.
// Types that enclose other symbols keep only their header lines.
func planSpans(doc *document, parsed *types.ParseResult) []span {
	n := doc.lineCount()

	symbols := make([]types.Symbol, 0, len(parsed.Symbols))
	for _, s := range parsed.Symbols {
		if s.StartLine < 1 || s.StartLine > n || s.EndLine < s.StartLine {
			continue
		}
		if s.EndLine > n {
			s.EndLine = n
		}
		symbols = append(symbols, s)
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].StartLine != symbols[j].StartLine {
			return symbols[i].StartLine < symbols[j].StartLine
		}
		return symbols[i].EndLine > symbols[j].EndLine
	})

	preamble := parsed.HeaderEndLine
	if last := parsed.LastImportLine(); last > preamble {
		preamble = last
	}

	starts := make([]int, len(symbols))
	for i := range symbols {
		starts[i] = extendStart(doc, symbols, i, preamble)
	}

	spans := make([]span, 0, len(symbols))
	for i := range symbols {
		s := &symbols[i]
		end := s.EndLine

		for j := range symbols {
			if s.Contains(&symbols[j]) && starts[j]-1 < end {
				end = starts[j] - 1
			}
		}
		if end < starts[i] {
			continue
		}

		spans = append(spans, span{
			name:       s.QualifiedName(),
			kind:       s.Kind,
			sectionKey: string(s.Kind) + ":" + s.QualifiedName(),
			start:      starts[i],
			end:        end,
		})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})
	return spans
}

// extendStart moves a symbol's start up over directly preceding comment
// and attribute lines, never past the file preamble, the end of an
// earlier symbol or the start of an enclosing one
func extendStart(doc *document, symbols []types.Symbol, i int, preamble int) int {
	s := &symbols[i]
	floor := preamble
	for j := range symbols {
		t := &symbols[j]
		if j == i {
			continue
		}
		if t.EndLine < s.StartLine && t.EndLine > floor {
			floor = t.EndLine
		}
		if t.Contains(s) && t.StartLine > floor {
			floor = t.StartLine
		}
	}

	start := s.StartLine
	for start-1 > floor && isTriviaLine(strings.TrimSpace(doc.line(start-1))) {
		start--
	}
	return start
}

// isTriviaLine reports whether a trimmed line is documentation or an
// attribute that belongs to the declaration below it
func isTriviaLine(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	for _, prefix := range []string{"//", "/*", "*", "#", "--", "@"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
