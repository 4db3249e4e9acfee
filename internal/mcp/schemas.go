package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nuvos/nuvos-index/internal/searcher"
	"github.com/nuvos/nuvos-index/pkg/types"
)

// symbolKinds lists the values accepted by search_code's symbol_kinds
var symbolKinds = []string{
	string(types.KindType),
	string(types.KindMethod),
	string(types.KindConstructor),
	string(types.KindProperty),
	string(types.KindField),
	string(types.KindEvent),
	string(types.KindFunction),
	string(types.KindConst),
	string(types.KindVar),
	string(types.KindSection),
	string(types.KindFile),
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Incrementally index the configured source tree: new and edited files are re-chunked and uploaded, deleted files are purged",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"force": map[string]any{
					"type":        "string",
					"description": "none: only changed files; chunk: re-chunk every file; full: also recompute document ids and purge old points",
					"enum":        []string{"none", "chunk", "full"},
					"default":     "none",
				},
			},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over the indexed source tree with natural language queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query (natural language or identifiers)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
				"path_prefix": map[string]any{
					"type":        "string",
					"description": "Only return chunks from this directory or file (e.g. 'src/Orders')",
				},
				"symbol_kinds": map[string]any{
					"type":        "array",
					"description": "Only return chunks of these symbol kinds",
					"items": map[string]any{
						"type": "string",
						"enum": symbolKinds,
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report ledger and vector store statistics for the indexed source tree",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}
