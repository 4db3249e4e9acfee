package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/nuvos/nuvos-index/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goFixture = `// Package demo is a fixture.
package demo

import (
	"fmt"
	str "strings"
)

const (
	A = 1
	B = 2
)

type Greeter struct {
	Name string
}

// Hello greets.
func (g *Greeter) Hello() string {
	return fmt.Sprintf("hi %s", str.ToUpper(g.Name))
}

func New() *Greeter { return &Greeter{} }
`

func TestGoOracle_Parse(t *testing.T) {
	result, err := NewGoOracle().Parse(context.Background(), "demo.go", []byte(goFixture))
	require.NoError(t, err)

	assert.Equal(t, "go", result.Language)
	assert.Equal(t, "// Package demo is a fixture.", result.HeaderComment)
	assert.Equal(t, 1, result.HeaderEndLine)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Imports, 2)
	assert.Equal(t, types.Import{Path: "fmt", Line: 5}, result.Imports[0])
	assert.Equal(t, types.Import{Path: "str strings", Line: 6}, result.Imports[1])
	assert.Equal(t, 6, result.LastImportLine())

	a := findSymbol(t, result, "", "A")
	assert.Equal(t, types.KindConst, a.Kind)
	assert.Equal(t, 10, a.StartLine)
	assert.Equal(t, 10, a.EndLine)

	greeter := findSymbol(t, result, "", "Greeter")
	assert.Equal(t, types.KindType, greeter.Kind)
	assert.Equal(t, 14, greeter.StartLine)
	assert.Equal(t, 16, greeter.EndLine)

	hello := findSymbol(t, result, "Greeter", "Hello")
	assert.Equal(t, types.KindMethod, hello.Kind)
	assert.Equal(t, 19, hello.StartLine)
	assert.Equal(t, 21, hello.EndLine)
	assert.Equal(t, "Greeter.Hello", hello.QualifiedName())

	newFn := findSymbol(t, result, "", "New")
	assert.Equal(t, types.KindFunction, newFn.Kind)
	assert.Equal(t, 23, newFn.StartLine)

	// Struct fields stay inside their type
	for _, s := range result.Symbols {
		assert.NotEqual(t, "Name", s.Name)
		require.NoError(t, s.Validate())
	}
}

func TestGoOracle_ByteOffsets(t *testing.T) {
	src := []byte(goFixture)
	result, err := NewGoOracle().Parse(context.Background(), "demo.go", src)
	require.NoError(t, err)

	newFn := findSymbol(t, result, "", "New")
	assert.Equal(t, "func New() *Greeter { return &Greeter{} }", string(src[newFn.StartByte:newFn.EndByte]))
}

func TestGoOracle_PartialSyntaxError(t *testing.T) {
	src := "package demo\n\nfunc Good() {}\n\nfunc Bad( {\n"
	result, err := NewGoOracle().Parse(context.Background(), "bad.go", []byte(src))
	require.NoError(t, err)
	assert.True(t, result.HasErrors())
	findSymbol(t, result, "", "Good")
}

func TestGoOracle_Unparsable(t *testing.T) {
	result, err := NewGoOracle().Parse(context.Background(), "junk.go", []byte("this is not go at all"))
	assert.True(t, errors.Is(err, ErrParseFailed))
	require.NotNil(t, result)
	assert.Empty(t, result.Symbols)
}

func TestGoOracle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGoOracle().Parse(ctx, "demo.go", []byte(goFixture))
	assert.ErrorIs(t, err, context.Canceled)
}
