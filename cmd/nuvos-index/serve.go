package main

import (
	"github.com/spf13/cobra"

	"github.com/nuvos/nuvos-index/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over MCP on stdio",
		Long: `Serve speaks the Model Context Protocol on stdin/stdout and exposes the
index_repository, search_code and get_status tools. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return mcp.NewServer(a, version).Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
