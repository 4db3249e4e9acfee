package hasher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToCrlf(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no newlines", "abc", "abc"},
		{"bare lf", "a\nb\n", "a\r\nb\r\n"},
		{"already crlf", "a\r\nb\r\n", "a\r\nb\r\n"},
		{"mixed", "a\nb\r\nc\n", "a\r\nb\r\nc\r\n"},
		{"leading lf", "\na", "\r\na"},
		{"lone cr kept", "a\rb\n", "a\rb\r\n"},
		{"blank lines", "\n\n", "\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeToCrlf(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeToCrlf(got), "normalization must be idempotent")
		})
	}
}

func TestComputeContentHash_LineEndingInsensitive(t *testing.T) {
	variants := []string{
		"class A\n{\n  void M() {}\n}\n",
		"class A\r\n{\r\n  void M() {}\r\n}\r\n",
		"class A\r\n{\n  void M() {}\r\n}\n",
	}

	want := ComputeContentHash(variants[0])
	for _, v := range variants {
		assert.Equal(t, want, ComputeContentHash(v))
		assert.Equal(t, want, ComputeContentHash(NormalizeToCrlf(v)))
	}

	assert.NotEqual(t, want, ComputeContentHash("class B\n{\n}\n"))
	assert.Len(t, want, 64)
}

func TestComputeContentHash_KnownValue(t *testing.T) {
	// sha256("a\r\n")
	assert.Equal(t, "8e4621379786ef42a4fec155cd525c291dd7db3c1fde3478522f4f61c03fd1bd", ComputeContentHash("a\n"))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeContentHash(""))
}

func TestComputeFileContentHash(t *testing.T) {
	dir := t.TempDir()
	lf := filepath.Join(dir, "lf.cs")
	crlf := filepath.Join(dir, "crlf.cs")
	bom := filepath.Join(dir, "bom.cs")

	require.NoError(t, os.WriteFile(lf, []byte("using System;\nclass A {}\n"), 0644))
	require.NoError(t, os.WriteFile(crlf, []byte("using System;\r\nclass A {}\r\n"), 0644))
	require.NoError(t, os.WriteFile(bom, append([]byte{0xEF, 0xBB, 0xBF}, []byte("using System;\nclass A {}\n")...), 0644))

	ctx := context.Background()
	h1, err := ComputeFileContentHash(ctx, lf)
	require.NoError(t, err)
	h2, err := ComputeFileContentHash(ctx, crlf)
	require.NoError(t, err)
	h3, err := ComputeFileContentHash(ctx, bom)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3, "utf-8 BOM must not change the hash")
}

func TestReadText_UTF16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utf16.txt")
	// UTF-16LE BOM + "hi\n"
	data := []byte{0xFF, 0xFE, 'h', 0, 'i', 0, '\n', 0}
	require.NoError(t, os.WriteFile(path, data, 0644))

	text, err := ReadText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", text)
}

func TestComputeFileContentHash_NotFound(t *testing.T) {
	hash, err := ComputeFileContentHash(context.Background(), filepath.Join(t.TempDir(), "missing.cs"))
	assert.Empty(t, hash)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestComputeFileContentHash_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.cs")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hash, err := ComputeFileContentHash(ctx, path)
	assert.Empty(t, hash)
	assert.ErrorIs(t, err, context.Canceled)
}
