package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuvos/nuvos-index/pkg/types"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

const catalog = `namespace Shop
{
    public class CatalogService
    {
        public Product FindProduct(string sku)
        {
            return repository.Find(sku);
        }
    }
}
`

// run executes the command tree with args and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func project(t *testing.T) (string, []string) {
	t.Helper()
	root := t.TempDir()
	full := filepath.Join(root, "src", "CatalogService.cs")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(catalog), 0o644))
	return root, []string{"--root", root, "--backend", "sqlite", "--provider", "local", "--log-level", "error"}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(fmt.Errorf("%w: 1 of 3", errFilesFailed)))
}

func TestVersionCmd(t *testing.T) {
	original := version
	version = "test-version-1.0.0"
	defer func() { version = original }()

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nuvos-index version test-version-1.0.0")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestIndexStatusSearch(t *testing.T) {
	root, flags := project(t)

	out, err := run(t, append([]string{"index", "--progress=false"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Reindexed")
	assert.Contains(t, out, "Points uploaded")
	assert.FileExists(t, filepath.Join(root, ".nuvos", "index", "points.db"))

	out, err = run(t, append([]string{"status"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, root)
	assert.Contains(t, out, "Flagged for review")
	assert.NotContains(t, out, "never")

	out, err = run(t, append([]string{"search", "find", "product", "--json", "--limit", "3"}, flags...)...)
	require.NoError(t, err)
	var results []types.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "src/CatalogService.cs", results[0].Path)

	out, err = run(t, append([]string{"search", "product", "--kind", "method", "--text"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "FindProduct")
	assert.Contains(t, out, "src/CatalogService.cs:")
}

func TestIndexCmd_Force(t *testing.T) {
	_, flags := project(t)

	_, err := run(t, append([]string{"index", "--progress=false"}, flags...)...)
	require.NoError(t, err)

	_, err = run(t, append([]string{"index", "--progress=false", "--force", "full"}, flags...)...)
	require.NoError(t, err)

	_, err = run(t, append([]string{"index", "--force", "sometimes"}, flags...)...)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestIndexCmd_InvalidConfig(t *testing.T) {
	_, flags := project(t)

	_, err := run(t, append([]string{"index", "--token-budget", "0"}, flags...)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfig)
	assert.Equal(t, 1, exitCode(err))
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, flags := project(t)

	_, err := run(t, append([]string{"search"}, flags...)...)
	assert.Error(t, err)
}

func TestSearchCmd_NoResults(t *testing.T) {
	root := t.TempDir()
	flags := []string{"--root", root, "--backend", "sqlite", "--provider", "local", "--log-level", "error"}

	_, err := run(t, append([]string{"index", "--progress=false"}, flags...)...)
	require.NoError(t, err)

	out, err := run(t, append([]string{"search", "anything"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}
