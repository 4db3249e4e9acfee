package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nuvos/nuvos-index/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func relPaths(files []types.DiscoveredFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelativePath
	}
	return out
}

func TestDiscover_DefaultSkips(t *testing.T) {
	root := writeTree(t, map[string]string{
		"A.cs":                      "class A {}",
		"src/Orders/B.cs":           "class B {}",
		".git/config":               "[core]",
		".nuvos/index/x.json":       "[]",
		".vscode/settings.json":     "{}",
		"bin/Debug/app.dll":         "MZ",
		"obj/project.assets.json":   "{}",
		"node_modules/lib/index.js": "x",
		"vendor/pkg/lib.go":         "package lib",
		"docs/readme.md":            "# Docs",
	})

	w, err := New(Options{Root: root, RepoID: "repo"})
	require.NoError(t, err)

	files, err := w.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.cs", "docs/readme.md", "src/Orders/B.cs"}, relPaths(files))

	for _, f := range files {
		assert.Equal(t, "repo", f.RepoID)
		assert.True(t, filepath.IsAbs(f.FullPath))
		assert.False(t, f.IsBinary)
	}
	assert.Equal(t, int64(len("class A {}")), files[0].SizeBytes)
}

func TestDiscover_IncludeExclude(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/a.cs":           "a",
		"src/a.Designer.cs":  "generated",
		"src/gen/b.cs":       "b",
		"tests/c.cs":         "c",
		"readme.md":          "readme",
		"vendor/keep/lib.cs": "lib",
		".nuvosignore":       "# generated code\ngen/\n*.Designer.cs\n",
	})

	w, err := New(Options{
		Root:    root,
		Include: []string{"*.cs", "vendor/keep/**"},
		Exclude: []string{"tests/"},
	})
	require.NoError(t, err)

	files, err := w.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.cs", "vendor/keep/lib.cs"}, relPaths(files))
}

func TestDiscover_Binary(t *testing.T) {
	root := writeTree(t, map[string]string{
		"logo.png":  "not really a png",
		"data.txt":  "abc\x00def",
		"big.cs":    "class Big { /* padding padding */ }",
		"utf16.txt": "\xff\xfeh\x00i\x00",
		"ok.cs":     "class Ok {}",
	})

	w, err := New(Options{Root: root, MaxFileBytes: 20})
	require.NoError(t, err)

	files, err := w.Discover(context.Background())
	require.NoError(t, err)

	binary := map[string]bool{}
	for _, f := range files {
		binary[f.RelativePath] = f.IsBinary
	}
	assert.Equal(t, map[string]bool{
		"big.cs":    true,
		"data.txt":  true,
		"logo.png":  true,
		"ok.cs":     false,
		"utf16.txt": false,
	}, binary)
}

func TestSkipFile(t *testing.T) {
	root := writeTree(t, map[string]string{"a.cs": "a"})
	w, err := New(Options{Root: root, Exclude: []string{"/build", "**/*.g.cs"}})
	require.NoError(t, err)

	tests := []struct {
		rel  string
		skip bool
	}{
		{"a.cs", false},
		{"src/a.cs", false},
		{"build/out.cs", true},
		{"src/build/out.cs", false},
		{"src/x.g.cs", true},
		{".git/HEAD", true},
		{"node_modules/x/y.js", true},
		{".nuvos/index/local-index.json", true},
		{IgnoreFileName, true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.skip, w.SkipFile(tt.rel))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, types.ErrConfig)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(Options{Root: file})
	assert.ErrorIs(t, err, types.ErrConfig)

	_, err = New(Options{Root: t.TempDir(), Exclude: []string{"src/[a"}})
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestDiscover_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.cs": "a", "b/c.cs": "c"})
	w, err := New(Options{Root: root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
