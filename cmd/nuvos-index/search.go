package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nuvos/nuvos-index/internal/searcher"
	"github.com/nuvos/nuvos-index/pkg/types"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		pathPrefix string
		kinds      []string
		asJSON     bool
		showText   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Searcher.Search(cmd.Context(), strings.Join(args, " "), searcher.Options{
				Limit:       limit,
				PathPrefix:  pathPrefix,
				SymbolKinds: kinds,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if asJSON {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal results: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			renderResults(cmd, results, showText)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "only search under this directory or file")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only return these symbol kinds (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	cmd.Flags().BoolVar(&showText, "text", false, "print the chunk text under the table")
	return cmd
}

func renderResults(cmd *cobra.Command, results []types.SearchResult, showText bool) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return
	}

	data := pterm.TableData{{"#", "Score", "Location", "Symbol", "Kind"}}
	for _, r := range results {
		symbol := r.SymbolName
		if r.PartTotal > 1 {
			symbol = fmt.Sprintf("%s (%d/%d)", symbol, r.PartIndex+1, r.PartTotal)
		}
		data = append(data, []string{
			strconv.Itoa(r.Rank),
			strconv.FormatFloat(r.Score, 'f', 3, 64),
			fmt.Sprintf("%s:%d-%d", r.Path, r.LineStart, r.LineEnd),
			symbol,
			string(r.SymbolKind),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()

	if !showText {
		return
	}
	for _, r := range results {
		fmt.Fprintf(out, "\n[%d] %s:%d-%d\n%s\n", r.Rank, r.Path, r.LineStart, r.LineEnd, r.Text)
	}
}
