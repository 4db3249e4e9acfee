package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nuvos/nuvos-index/internal/app"
)

// ServerName is the MCP server name
const ServerName = "nuvos-index"

// Server exposes one source root's index over MCP
type Server struct {
	mcp     *server.MCPServer
	app     *app.App
	version string
	logger  *slog.Logger
}

// NewServer creates an MCP server backed by a. The caller keeps ownership
// of a and closes it after Serve returns.
func NewServer(a *app.App, version string) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:     mcpServer,
		app:     a,
		version: version,
		logger:  a.Logger.With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
// Commands pass os.Stdin and os.Stdout; logs must never go to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("MCP server ready", "version", s.version, "root", s.app.Config.SourceRoot)
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
