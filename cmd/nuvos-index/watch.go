package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nuvos/nuvos-index/internal/indexer"
	"github.com/nuvos/nuvos-index/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Index now and re-index after every burst of changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			pterm.Info.WithWriter(out).Printfln("Watching %s (debounce %s)", a.Config.SourceRoot, debounce)

			return a.Watch(cmd.Context(), watcher.Options{
				Debounce:   debounce,
				RunOnStart: true,
			}, func(stats *indexer.Statistics, err error) {
				if err != nil {
					pterm.Error.WithWriter(out).Printfln("Run failed: %v", err)
					return
				}
				msg := fmt.Sprintf("%d reindexed, %d deleted, %d unchanged, %d failed in %s",
					stats.Reindexed, stats.Deleted, stats.Unchanged, stats.Failed, stats.Duration.Round(time.Millisecond))
				if stats.Failed > 0 {
					pterm.Warning.WithWriter(out).Println(msg)
					return
				}
				pterm.Success.WithWriter(out).Println(msg)
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "quiet period after the last change before re-indexing")
	return cmd
}
