package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nuvos/nuvos-index/internal/app"
	"github.com/nuvos/nuvos-index/internal/indexer"
	"github.com/nuvos/nuvos-index/internal/ledger"
)

func newIndexCmd() *cobra.Command {
	var (
		force    string
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the source tree once",
		Long: `Index discovers files under the root, re-chunks and re-embeds the ones
whose content changed, purges points of deleted files and saves the ledger.

--force chunk re-processes every file regardless of its hash.
--force full additionally recomputes document ids and purges old points.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := ledger.ParseReindexMode(force)
			if err != nil {
				return err
			}

			var bar *progressBar
			var opts []app.Option
			if progress {
				bar = newProgressBar(cmd.ErrOrStderr())
				opts = append(opts, app.WithProgress(bar.update))
			}

			a, err := openApp(cmd, opts...)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Index(cmd.Context(), mode)
			bar.stop()
			if stats != nil {
				renderStats(cmd.OutOrStdout(), stats)
			}
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%w: %d of %d", errFilesFailed, stats.Failed, stats.Discovered)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&force, "force", string(ledger.ReindexNone), "reindex mode: none, chunk or full")
	cmd.Flags().BoolVar(&progress, "progress", true, "show a progress bar on stderr")
	return cmd
}

// progressBar adapts pterm's progress bar to concurrent progress callbacks.
// The bar starts on the first callback since the total is unknown before
// discovery.
type progressBar struct {
	w   io.Writer
	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
	at  int
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w}
}

func (p *progressBar) update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil {
		bar, err := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Indexing").
			WithWriter(p.w).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			return
		}
		p.bar = bar
	}
	// Callbacks may arrive out of order
	if done > p.at {
		p.bar.Add(done - p.at)
		p.at = done
	}
}

func (p *progressBar) stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_, _ = p.bar.Stop()
	}
}

func renderStats(w io.Writer, stats *indexer.Statistics) {
	data := pterm.TableData{
		{"Files", "Count"},
		{"Discovered", strconv.Itoa(stats.Discovered)},
		{"Unchanged", strconv.Itoa(stats.Unchanged)},
		{"Reindexed", strconv.Itoa(stats.Reindexed)},
		{"Deleted", strconv.Itoa(stats.Deleted)},
		{"Skipped", strconv.Itoa(stats.Skipped)},
		{"Degraded", strconv.Itoa(stats.Degraded)},
		{"Failed", strconv.Itoa(stats.Failed)},
		{"Chunks created", strconv.Itoa(stats.ChunksCreated)},
		{"Points uploaded", strconv.Itoa(stats.PointsUploaded)},
		{"Duration", stats.Duration.Round(time.Millisecond).String()},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()

	if len(stats.Failures) == 0 {
		return
	}
	failures := pterm.TableData{{"Path", "Stage", "Error"}}
	for _, f := range stats.Failures {
		failures = append(failures, []string{f.Path, string(f.Stage), f.Err.Error()})
	}
	fmt.Fprintln(w)
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(failures).Render()
}
