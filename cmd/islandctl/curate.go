package main

import (
	"fmt"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/curation"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"

	"github.com/spf13/cobra"
)

func (c *cli) curateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Append curated aliases and exclusions",
		Long: `Curate appends entries to the curation file. They take effect at the next
rebuild; the current snapshot is never edited in place.`,
	}

	var alias common.AliasMapping
	aliasCmd := &cobra.Command{
		Use:   "alias",
		Short: "Map a name variant onto a canonical name",
		Example: `  islandctl curate alias --variant "je epstein" --canonical "Jeffrey Epstein"
  islandctl curate alias --variant "npa" --canonical "NPA" --type organization`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			alias.Provenance = common.ProvenanceCurated
			return c.appendCuration(cmd, curation.File{Aliases: []common.AliasMapping{alias}})
		},
	}
	aliasCmd.Flags().StringVar(&alias.Variant, "variant", "", "Name variant")
	aliasCmd.Flags().StringVar(&alias.Canonical, "canonical", "", "Canonical name")
	aliasCmd.Flags().StringVar((*string)(&alias.EntityType), "type", "", "Entity type")
	_ = aliasCmd.MarkFlagRequired("variant")
	_ = aliasCmd.MarkFlagRequired("canonical")

	var exclusion curation.Exclusion
	excludeCmd := &cobra.Command{
		Use:   "exclude",
		Short: "Remove an entity at the next rebuild",
		Example: `  islandctl curate exclude --name NPA --type location --reason "not a place"
  islandctl curate exclude --id jane-doe-3f2a91c0 --reason "duplicate"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.appendCuration(cmd, curation.File{Exclusions: []curation.Exclusion{exclusion}})
		},
	}
	excludeCmd.Flags().StringVar(&exclusion.ID, "id", "", "Entity id")
	excludeCmd.Flags().StringVar(&exclusion.Name, "name", "", "Canonical name or alias")
	excludeCmd.Flags().StringVar((*string)(&exclusion.EntityType), "type", "", "Only exclude entities of this type")
	excludeCmd.Flags().StringVar(&exclusion.Reason, "reason", "", "Why the entity is excluded")
	_ = excludeCmd.MarkFlagRequired("reason")

	cmd.AddCommand(aliasCmd, excludeCmd)
	return cmd
}

func (c *cli) appendCuration(cmd *cobra.Command, add curation.File) error {
	id, err := curation.Append(c.cfg.CurationPath, add, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded submission %s in %s; run islandctl rebuild to apply it\n", id, c.cfg.CurationPath)
	return nil
}
