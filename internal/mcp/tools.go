package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nuvos/nuvos-index/internal/indexer"
	"github.com/nuvos/nuvos-index/internal/ledger"
	"github.com/nuvos/nuvos-index/internal/searcher"
	"github.com/nuvos/nuvos-index/internal/vectorstore"
	"github.com/nuvos/nuvos-index/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Collection does not exist yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedFailures caps the per-file failures echoed in a tool result
const maxReportedFailures = 5

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	force, err := ledger.ParseReindexMode(getStringDefault(args, "force", string(ledger.ReindexNone)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid force mode", map[string]any{
			"param":   "force",
			"reason":  err.Error(),
			"allowed": []string{"none", "chunk", "full"},
		})
	}

	stats, err := s.app.Index(ctx, force)
	if errors.Is(err, indexer.ErrRunInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		data := map[string]any{"error": err.Error()}
		if stats != nil {
			data["statistics"] = statsResponse(stats)
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", data)
	}

	return mcp.NewToolResultText(formatJSON(statsResponse(stats))), nil
}

func statsResponse(stats *indexer.Statistics) map[string]any {
	response := map[string]any{
		"files_discovered": stats.Discovered,
		"files_unchanged":  stats.Unchanged,
		"files_reindexed":  stats.Reindexed,
		"files_deleted":    stats.Deleted,
		"files_skipped":    stats.Skipped,
		"files_failed":     stats.Failed,
		"files_degraded":   stats.Degraded,
		"chunks_created":   stats.ChunksCreated,
		"points_uploaded":  stats.PointsUploaded,
		"duration_ms":      stats.Duration.Milliseconds(),
	}

	if len(stats.Failures) > 0 {
		failures := stats.Failures
		if len(failures) > maxReportedFailures {
			failures = failures[:maxReportedFailures]
		}
		errs := make([]map[string]any, len(failures))
		for i, f := range failures {
			errs[i] = map[string]any{"path": f.Path, "stage": string(f.Stage), "error": f.Err.Error()}
		}
		response["errors"] = errs
		response["error_count"] = len(stats.Failures)
	}
	return response
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]any{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]any{
			"param": "limit",
			"value": limit,
		})
	}

	kinds, err := getStringSlice(args, "symbol_kinds")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid symbol_kinds", map[string]any{
			"param":  "symbol_kinds",
			"reason": err.Error(),
		})
	}

	results, err := s.app.Searcher.Search(ctx, query, searcher.Options{
		Limit:       limit,
		PathPrefix:  getStringDefault(args, "path_prefix", ""),
		SymbolKinds: kinds,
	})
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search parameters", map[string]any{"error": err.Error()})
	case errors.Is(err, vectorstore.ErrNotFound):
		return nil, newMCPError(ErrorCodeNotIndexed, "repository not indexed; run index_repository first", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]any{"error": err.Error()})
	}

	items := make([]map[string]any, len(results))
	for i, r := range results {
		items[i] = map[string]any{
			"rank":        r.Rank,
			"score":       r.Score,
			"path":        r.Path,
			"symbol_name": r.SymbolName,
			"symbol_kind": string(r.SymbolKind),
			"line_start":  r.LineStart,
			"line_end":    r.LineEnd,
			"part_index":  r.PartIndex,
			"part_total":  r.PartTotal,
			"text":        r.Text,
		}
	}
	response := map[string]any{
		"query":   query,
		"count":   len(items),
		"results": items,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.app.Indexer.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]any{
			"error": err.Error(),
		})
	}

	lastIndexed := ""
	if !status.LastIndexedUtc.IsZero() {
		lastIndexed = status.LastIndexedUtc.UTC().Format(time.RFC3339)
	}

	response := map[string]any{
		"indexed":    status.Files > 0 && status.Points > 0,
		"root":       s.app.Config.SourceRoot,
		"project_id": s.app.Config.ProjectID,
		"collection": status.Collection,
		"statistics": map[string]any{
			"files_count":      status.Files,
			"pending_count":    status.Pending,
			"flagged_review":   status.FlaggedReview,
			"points_count":     status.Points,
			"last_indexed_utc": lastIndexed,
		},
		"running": status.Running,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data any) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    any
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the call's argument object; a call without arguments
// yields an empty map
func arguments(request mcp.CallToolRequest) (map[string]any, error) {
	if request.Params.Arguments == nil {
		return map[string]any{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]any) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]any, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]any, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array, got %T", raw)
	}
}
