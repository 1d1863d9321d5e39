package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/internal/app"
	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/mapping"
	"github.com/bobmatnyc/the-island-sub004/pkg/resolve"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"github.com/spf13/cobra"
)

func (c *cli) resolveCmd() *cobra.Command {
	var (
		explain  bool
		typeHint string
	)
	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve a name against the current mapping store",
		Long: `Resolve normalizes a name and resolves it with the mapping store of the
current snapshot. Without a snapshot the identity mapping is used.

Examples:
  islandctl resolve "Je        Je Epstein"
  islandctl resolve --explain "Mr. Larry Visoski"
  islandctl resolve --type-hint location "Palm Beach"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := c.localStore()
			if err != nil {
				return err
			}
			rules, err := pipeline.LoadRules(c.cfg.RulesPath)
			if err != nil {
				return err
			}
			classifier, _, err := app.NewClassifier(c.cfg.AI)
			if err != nil {
				return err
			}
			resolver := resolve.New(resolve.Options{
				Store:      mapping.LoadOrPassThrough(filepath.Join(fs.CurrentDir(), store.FileMappings)),
				Rules:      rules,
				Classifier: classifier,
			})

			mention := common.RawMention{SurfaceText: strings.Join(args, " "), SourceDocumentID: "islandctl"}
			if typeHint != "" {
				mention.Context = &common.MentionContext{TypeHint: typeHint}
			}
			entity, trace, err := resolver.ResolveMention(cmd.Context(), mention)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				v := map[string]any{"entity": entity}
				if explain {
					v["trace"] = trace
				}
				return writeJSON(out, v)
			}
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", entity.ID, entity.GUID, entity.EntityType, entity.CanonicalName)
			if explain {
				fmt.Fprintf(out, "  normalized:  %s\n", trace.Normalized)
				fmt.Fprintf(out, "  resolved by: %s\n", trace.ResolvedBy)
				if trace.Mapping != nil {
					fmt.Fprintf(out, "  mapping:     %s -> %s (%s)\n", trace.Mapping.Variant, trace.Mapping.Canonical, trace.Mapping.Provenance)
				}
				if len(trace.Rules) > 0 {
					fmt.Fprintf(out, "  rules:       %s\n", strings.Join(trace.Rules, ", "))
				}
				fmt.Fprintf(out, "  type:        %s via %s (%s)\n", trace.Type, trace.TypeSource, trace.Flag)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&explain, "explain", "e", false, "Show how the name was resolved")
	cmd.Flags().StringVar(&typeHint, "type-hint", "", "Type hint passed as mention context")
	return cmd
}
