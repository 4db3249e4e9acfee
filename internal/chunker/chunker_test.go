package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/nuvos/nuvos-index/internal/parser"
	"github.com/nuvos/nuvos-index/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubParser returns a fixed parse result
type stubParser struct {
	result *types.ParseResult
	err    error
}

func (s stubParser) Parse(ctx context.Context, filePath string, src []byte) (*types.ParseResult, error) {
	return s.result, s.err
}

// makeLines builds n lines of exactly width characters plus a newline
func makeLines(n, width int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		prefix := fmt.Sprintf("line %04d ", i)
		b.WriteString(prefix)
		b.WriteString(strings.Repeat("x", width-len(prefix)))
		b.WriteString("\n")
	}
	return b.String()
}

// rawChunker bypasses option normalization so edge cases can be exercised
func rawChunker(p Parser, budget, overlap, maxIter int) *Chunker {
	return &Chunker{
		parser: p,
		opts: Options{
			TokenBudget:            budget,
			OverlapLines:           overlap,
			SummaryMaxTokens:       DefaultSummaryMaxTokens,
			MaxIterationsPerSymbol: maxIter,
			Estimator:              EstimateTokens,
		},
		logger: slog.Default(),
	}
}

// assertCovers checks that chunks, minus overlap, cover [start, end] exactly once
func assertCovers(t *testing.T, chunks []types.Chunk, start, end int) {
	t.Helper()
	require.NotEmpty(t, chunks)
	next := start
	prevStart := 0
	for _, c := range chunks {
		require.Greater(t, c.LineStart, prevStart, "starts must advance")
		require.LessOrEqual(t, c.LineStart, next, "gap before line %d", next)
		require.GreaterOrEqual(t, c.LineEnd, next, "chunk adds no new lines")
		prevStart = c.LineStart
		next = c.LineEnd + 1
	}
	assert.Equal(t, end+1, next)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo\n", 2},
		{strings.Repeat("x", 40), 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), tt.text)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultOptions(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	opts := DefaultOptions()
	opts.TokenBudget = 0
	_, err = New(stubParser{}, opts, nil)
	assert.ErrorIs(t, err, types.ErrConfig)

	opts = DefaultOptions()
	opts.TokenBudget = 5
	opts.OverlapLines = 5
	c, err := New(stubParser{}, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Options().OverlapLines)

	opts.OverlapLines = -2
	c, err = New(stubParser{}, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Options().OverlapLines)
}

func TestChunk_EmptyFile(t *testing.T) {
	c, err := New(stubParser{result: &types.ParseResult{}}, DefaultOptions(), nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), "", "empty.cs")
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Equal(t, 0, result.Lines)
}

func TestChunk_WhitespaceOnlyFile(t *testing.T) {
	c, err := New(stubParser{result: &types.ParseResult{}}, DefaultOptions(), nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), "\n\n   \n", "blank.txt")
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

const goSource = `// Package demo is a fixture.
package demo

import "fmt"

// Hello greets.
func Hello(name string) string {
	return fmt.Sprintf("hi %s", name)
}
`

func TestChunk_GoFileSummaryFirst(t *testing.T) {
	c, err := New(parser.DefaultRegistry(), DefaultOptions(), nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), goSource, "demo/hello.go")
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Equal(t, "go", result.Language)
	require.Len(t, result.Chunks, 2)

	summary := result.Chunks[0]
	assert.True(t, summary.IsSummary())
	assert.Equal(t, "// Package demo is a fixture.\nimport \"fmt\"", summary.Text)
	assert.Equal(t, 1, summary.LineStart)
	assert.Equal(t, 4, summary.LineEnd)
	assert.Equal(t, "hello.go", summary.SymbolName)

	hello := result.Chunks[1]
	assert.Equal(t, "function:Hello", hello.SectionKey)
	assert.Equal(t, types.KindFunction, hello.SymbolKind)
	assert.Equal(t, "Hello", hello.SymbolName)
	assert.Equal(t, 6, hello.LineStart)
	assert.Equal(t, 9, hello.LineEnd)
	assert.Equal(t, 1, hello.PartIndex)
	assert.Equal(t, 1, hello.PartTotal)
	assert.True(t, strings.HasPrefix(hello.Text, "// Hello greets.\nfunc Hello"))
	assert.Equal(t, hello.Text, goSource[hello.CharStart:hello.CharEnd])

	for _, ch := range result.Chunks {
		require.NoError(t, ch.Validate(result.Lines))
	}
}

func TestChunk_Termination(t *testing.T) {
	text := makeLines(50, 39) // 10 tokens per line with its newline
	noSymbols := stubParser{result: &types.ParseResult{}}

	tests := []struct {
		name    string
		budget  int
		overlap int
	}{
		{"one line per window", 1, 0},
		{"two lines per window", 25, 1},
		{"overlap equals budget", 10, 10},
		{"overlap above window size", 25, 7},
		{"overlap above line count", 30, 500},
		{"budget above file", 100000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := rawChunker(noSymbols, tt.budget, tt.overlap, DefaultMaxIterationsPerSymbol)
			result, err := c.Chunk(context.Background(), text, "big.txt")
			require.NoError(t, err)

			assertCovers(t, result.Chunks, 1, 50)
			for i, ch := range result.Chunks {
				require.NoError(t, ch.Validate(result.Lines))
				assert.Equal(t, i+1, ch.PartIndex)
				assert.Equal(t, len(result.Chunks), ch.PartTotal)
				assert.Equal(t, types.SectionFile, ch.SectionKey)
			}
		})
	}
}

func TestChunk_WindowsRespectBudgetAndOverlap(t *testing.T) {
	text := makeLines(10, 39)
	c := rawChunker(stubParser{result: &types.ParseResult{}}, 35, 1, DefaultMaxIterationsPerSymbol)

	result, err := c.Chunk(context.Background(), text, "f.txt")
	require.NoError(t, err)

	var ranges [][2]int
	for _, ch := range result.Chunks {
		assert.LessOrEqual(t, ch.EstimatedTokens, 35)
		ranges = append(ranges, [2]int{ch.LineStart, ch.LineEnd})
	}
	assert.Equal(t, [][2]int{{1, 3}, {3, 5}, {5, 7}, {7, 9}, {9, 10}}, ranges)
}

func TestChunk_BlankWindowsAreMerged(t *testing.T) {
	t.Run("inside a symbol", func(t *testing.T) {
		text := "func f() {\n\n   \n}\n"
		p := stubParser{result: &types.ParseResult{
			Symbols: []types.Symbol{{Name: "f", Kind: types.KindFunction, StartLine: 1, EndLine: 4}},
		}}
		c := rawChunker(p, 1, 0, DefaultMaxIterationsPerSymbol)

		result, err := c.Chunk(context.Background(), text, "f.go")
		require.NoError(t, err)

		var parts []types.Chunk
		for _, ch := range result.Chunks {
			if ch.SymbolName == "f" {
				parts = append(parts, ch)
			}
		}
		require.Len(t, parts, 2)
		assertCovers(t, parts, 1, 4)
		assert.Equal(t, [2]int{1, 3}, [2]int{parts[0].LineStart, parts[0].LineEnd})
		assert.Equal(t, [2]int{4, 4}, [2]int{parts[1].LineStart, parts[1].LineEnd})
		assert.Equal(t, parts[0].CharEnd, parts[1].CharStart)
		assert.Equal(t, "func f() {\n\n   \n", parts[0].Text)
		assert.Equal(t, 2, parts[1].PartTotal)
	})

	t.Run("leading and trailing blanks", func(t *testing.T) {
		text := "\n\nx\n\ny\n\n"
		c := rawChunker(stubParser{result: &types.ParseResult{}}, 1, 0, DefaultMaxIterationsPerSymbol)

		result, err := c.Chunk(context.Background(), text, "f.txt")
		require.NoError(t, err)

		assertCovers(t, result.Chunks, 1, 6)
		var ranges [][2]int
		for _, ch := range result.Chunks {
			require.NoError(t, ch.Validate(result.Lines))
			ranges = append(ranges, [2]int{ch.LineStart, ch.LineEnd})
		}
		assert.Equal(t, [][2]int{{1, 4}, {5, 6}}, ranges)
		assert.Equal(t, 0, result.Chunks[0].CharStart)
		assert.Equal(t, len(text), result.Chunks[1].CharEnd)
	})
}

func TestChunk_LongLineStillProgresses(t *testing.T) {
	text := strings.Repeat("y", 4000) + "\nshort\n"
	c := rawChunker(stubParser{result: &types.ParseResult{}}, 10, 2, DefaultMaxIterationsPerSymbol)

	result, err := c.Chunk(context.Background(), text, "min.js")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, 1, result.Chunks[0].LineStart)
	assert.Equal(t, 1, result.Chunks[0].LineEnd)
	assert.Equal(t, 1001, result.Chunks[0].EstimatedTokens)
	assert.Equal(t, 2, result.Chunks[1].LineStart)
}

func TestChunk_IterationCeiling(t *testing.T) {
	text := makeLines(20, 39)
	c := rawChunker(stubParser{result: &types.ParseResult{}}, 10, 0, 3)

	result, err := c.Chunk(context.Background(), text, "f.txt")
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 3)
}

func TestChunk_ContainerKeepsHeaderOnly(t *testing.T) {
	text := strings.Join([]string{
		"class Outer {", // 1
		"  // about A",  // 2
		"  void A() {",  // 3
		"    work();",   // 4
		"  }",           // 5
		"",              // 6
		"  void B() {",  // 7
		"    more();",   // 8
		"  }",           // 9
		"}",             // 10
	}, "\n") + "\n"

	p := stubParser{result: &types.ParseResult{
		Language: "fake",
		Symbols: []types.Symbol{
			{Name: "Outer", Kind: types.KindType, StartLine: 1, EndLine: 10},
			{Name: "B", Kind: types.KindMethod, Parent: "Outer", StartLine: 7, EndLine: 9},
			{Name: "A", Kind: types.KindMethod, Parent: "Outer", StartLine: 3, EndLine: 5},
		},
	}}
	c, err := New(p, DefaultOptions(), nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), text, "Outer.cs")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)

	assert.Equal(t, "type:Outer", result.Chunks[0].SectionKey)
	assert.Equal(t, 1, result.Chunks[0].LineStart)
	assert.Equal(t, 1, result.Chunks[0].LineEnd)

	assert.Equal(t, "method:Outer.A", result.Chunks[1].SectionKey)
	assert.Equal(t, "Outer.A", result.Chunks[1].SymbolName)
	assert.Equal(t, 2, result.Chunks[1].LineStart)
	assert.Equal(t, 5, result.Chunks[1].LineEnd)

	assert.Equal(t, "method:Outer.B", result.Chunks[2].SectionKey)
	assert.Equal(t, 7, result.Chunks[2].LineStart)
	assert.Equal(t, 9, result.Chunks[2].LineEnd)
}

func TestChunk_SymbolPartsAreOrdered(t *testing.T) {
	text := "// header\n" + makeLines(30, 39)
	p := stubParser{result: &types.ParseResult{
		HeaderComment: "// header",
		HeaderEndLine: 1,
		Symbols: []types.Symbol{
			{Name: "Big", Kind: types.KindMethod, StartLine: 2, EndLine: 31},
		},
	}}
	opts := DefaultOptions()
	opts.TokenBudget = 50
	opts.OverlapLines = 2
	c, err := New(p, opts, nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), text, "big.cs")
	require.NoError(t, err)
	require.True(t, result.Chunks[0].IsSummary())

	parts := result.Chunks[1:]
	require.Greater(t, len(parts), 1)
	assertCovers(t, parts, 2, 31)
	for i, ch := range parts {
		assert.Equal(t, "method:Big", ch.SectionKey)
		assert.Equal(t, i+1, ch.PartIndex)
		assert.Equal(t, len(parts), ch.PartTotal)
	}
}

func TestChunk_InvalidSymbolsAreSkipped(t *testing.T) {
	text := makeLines(5, 20)
	p := stubParser{result: &types.ParseResult{
		Symbols: []types.Symbol{
			{Name: "Inverted", Kind: types.KindMethod, StartLine: 4, EndLine: 2},
			{Name: "Beyond", Kind: types.KindMethod, StartLine: 9, EndLine: 12},
			{Name: "Clamped", Kind: types.KindMethod, StartLine: 3, EndLine: 99},
		},
	}}
	c, err := New(p, DefaultOptions(), nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), text, "x.cs")
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "method:Clamped", result.Chunks[0].SectionKey)
	assert.Equal(t, 5, result.Chunks[0].LineEnd)
}

func TestChunk_DegradedOnParseFailure(t *testing.T) {
	text := makeLines(12, 39)
	p := stubParser{err: fmt.Errorf("%w: broken", parser.ErrParseFailed)}
	opts := DefaultOptions()
	opts.TokenBudget = 40
	opts.OverlapLines = 0
	c, err := New(p, opts, nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), text, "src/Broken.cs")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.True(t, errors.Is(result.ParseError, parser.ErrParseFailed))
	require.Len(t, result.Chunks, 3)
	for _, ch := range result.Chunks {
		assert.Equal(t, types.SectionFile, ch.SectionKey)
		assert.Equal(t, types.KindFile, ch.SymbolKind)
		assert.Equal(t, "Broken.cs", ch.SymbolName)
	}
	assertCovers(t, result.Chunks, 1, 12)
}

func TestChunk_SummaryIsCapped(t *testing.T) {
	var lines []string
	var imports []types.Import
	for i := 1; i <= 20; i++ {
		lines = append(lines, fmt.Sprintf("using Company.Product.Module%02d;", i))
		imports = append(imports, types.Import{Path: fmt.Sprintf("Company.Product.Module%02d", i), Line: i})
	}
	lines = append(lines, "class C {}")
	text := strings.Join(lines, "\n") + "\n"

	p := stubParser{result: &types.ParseResult{Imports: imports}}
	opts := DefaultOptions()
	opts.SummaryMaxTokens = 30
	c, err := New(p, opts, nil)
	require.NoError(t, err)

	result, err := c.Chunk(context.Background(), text, "C.cs")
	require.NoError(t, err)

	summary := result.Chunks[0]
	require.True(t, summary.IsSummary())
	assert.LessOrEqual(t, summary.EstimatedTokens, 30)
	assert.True(t, strings.HasPrefix(summary.Text, "using Company.Product.Module01;"))
	assert.NotContains(t, summary.Text, "Module20")
	assert.Equal(t, 20, summary.LineEnd)
}

func TestChunk_Cancelled(t *testing.T) {
	c, err := New(stubParser{result: &types.ParseResult{}}, DefaultOptions(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Chunk(ctx, "some text\n", "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
