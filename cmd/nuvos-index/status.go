package main

import (
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger and vector store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.Indexer.Status(cmd.Context())
			if err != nil {
				return err
			}

			last := "never"
			if !status.LastIndexedUtc.IsZero() {
				last = status.LastIndexedUtc.UTC().Format(time.RFC3339)
			}
			data := pterm.TableData{
				{"Root", a.Config.SourceRoot},
				{"Project", a.Config.ProjectID},
				{"Collection", status.Collection},
				{"Backend", a.Config.VectorStore.Backend},
				{"Files", strconv.Itoa(status.Files)},
				{"Pending", strconv.Itoa(status.Pending)},
				{"Flagged for review", strconv.Itoa(status.FlaggedReview)},
				{"Points", strconv.Itoa(status.Points)},
				{"Last indexed", last},
			}
			return pterm.DefaultTable.WithWriter(cmd.OutOrStdout()).WithData(data).Render()
		},
	}
}
