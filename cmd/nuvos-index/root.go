package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nuvos/nuvos-index/internal/app"
	"github.com/nuvos/nuvos-index/internal/config"
	"github.com/nuvos/nuvos-index/internal/logging"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitFileFailure = 2
)

// errFilesFailed reports a run that finished with per-file failures
var errFilesFailed = errors.New("some files failed to index")

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFilesFailed):
		return exitFileFailure
	default:
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nuvos-index",
		Short: "Incremental vector indexing of source repositories",
		Long: `nuvos-index walks a source tree, splits files into symbol-aligned chunks,
embeds them and keeps a vector store collection in sync with the tree.

Only files whose content changed since the last run are re-embedded.
State lives in <root>/.nuvos; configuration is read from
<root>/.nuvos/config.yaml, NUVOS_* environment variables and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newIndexCmd(),
		newWatchCmd(),
		newSearchCmd(),
		newStatusCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves configuration from flags, environment and file
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(v, configFile)
}

// openApp loads configuration and builds the application. Logs go to the
// command's stderr.
func openApp(cmd *cobra.Command, opts ...app.Option) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a, err := app.New(cmd.Context(), cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}
