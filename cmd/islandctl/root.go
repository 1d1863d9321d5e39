package main

import (
	"encoding/json"
	"io"

	"github.com/bobmatnyc/the-island-sub004/internal/app"
	"github.com/bobmatnyc/the-island-sub004/internal/config"
	"github.com/bobmatnyc/the-island-sub004/pkg/store/file"

	"github.com/spf13/cobra"
)

// cli holds the configuration shared by every subcommand. Flags given on
// the command line override the environment.
type cli struct {
	cfg config.Config

	artifactDir string
	corpus      string
	events      string
	curation    string
	rules       string
	workers     int
	jsonOut     bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "islandctl",
		Short: "Rebuild, inspect and curate the entity graph",
		Long: `islandctl rebuilds the canonical entity registry and co-occurrence graph
from a mention corpus, and inspects, curates and rolls back the committed
snapshots.

Settings come from the environment (and .env); flags override them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.load(cmd)
			app.InitLogger(c.cfg, "islandctl")
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.artifactDir, "artifact-dir", "", "Artifact directory (ARTIFACT_DIR)")
	pf.StringVar(&c.corpus, "corpus", "", "Mention corpus JSONL (CORPUS_PATH)")
	pf.StringVar(&c.events, "events", "", "Explicit events JSONL (EVENTS_PATH)")
	pf.StringVar(&c.curation, "curation", "", "Curation file (CURATION_PATH)")
	pf.StringVar(&c.rules, "rules", "", "Normalization rules file (RULES_PATH)")
	pf.IntVarP(&c.workers, "workers", "w", 0, "Rebuild workers (GRAPH_WORKERS)")
	pf.BoolVar(&c.jsonOut, "json", false, "Print JSON instead of text")

	root.AddCommand(
		c.rebuildCmd(),
		c.rollbackCmd(),
		c.versionsCmd(),
		c.resolveCmd(),
		c.searchCmd(),
		c.curateCmd(),
		c.migrateCmd(),
		c.backupCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) {
	c.cfg = config.Load()
	flags := cmd.Flags()
	if flags.Changed("artifact-dir") {
		c.cfg.ArtifactDir = c.artifactDir
	}
	if flags.Changed("corpus") {
		c.cfg.CorpusPath = c.corpus
	}
	if flags.Changed("events") {
		c.cfg.EventsPath = c.events
	}
	if flags.Changed("curation") {
		c.cfg.CurationPath = c.curation
	}
	if flags.Changed("rules") {
		c.cfg.RulesPath = c.rules
	}
	if flags.Changed("workers") {
		c.cfg.GraphWorkers = c.workers
	}
}

// localStore opens the artifact directory without any remote integration.
func (c *cli) localStore() (*file.FileStore, error) {
	return file.NewFileStore(c.cfg.ArtifactDir, file.WithRetain(c.cfg.Retain))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
