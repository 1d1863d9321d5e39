package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/app"
	"github.com/bobmatnyc/the-island-sub004/internal/util"

	"github.com/spf13/cobra"
)

func (c *cli) rebuildCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild every artifact and commit a new snapshot",
		Long: `Rebuild reads the corpus, the curation file and the rules, resolves every
mention and commits the artifacts as a new snapshot. On failure the current
snapshot is kept.

Examples:
  islandctl rebuild
  islandctl rebuild --corpus data/mentions.jsonl --curation configs/curation.yaml
  islandctl rebuild --json | jq '.manifest.counts'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Open(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var (
				mu   sync.Mutex
				last util.RebuildStage
			)
			progress := func(p util.RebuildProgress) {
				mu.Lock()
				defer mu.Unlock()
				if quiet || p.Stage == last {
					return
				}
				last = p.Stage
				fmt.Fprintf(cmd.ErrOrStderr(), "%3d%% %s\n", p.Percentage(), p.Stage)
			}

			report, err := a.Rebuilder.Run(cmd.Context(), a.Inputs(), a.Options(progress))
			if err != nil {
				return err
			}
			a.LogAIMetrics()

			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Committed snapshot %s in %s\n", report.Version, report.Duration.Round(time.Millisecond))
			for _, name := range []string{"mentions", "skipped", "entities", "review", "excluded", "nodes", "edges"} {
				fmt.Fprintf(out, "  %-9s %d\n", name, report.Manifest.Counts[name])
			}
			if report.Published {
				fmt.Fprintln(out, "  published to the database")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print stage progress")
	return cmd
}
