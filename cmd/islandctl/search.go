package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/query"

	"github.com/spf13/cobra"
)

func (c *cli) searchCmd() *cobra.Command {
	var req query.SearchRequest
	var types []string
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search entities in the current snapshot",
		Long: `Search runs a full-text query over canonical names and aliases of the
current snapshot. Without a query every entity matches.

Examples:
  islandctl search epstein
  islandctl search --type location
  islandctl search --sort connection_count --desc --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := c.localStore()
			if err != nil {
				return err
			}
			snapshot, err := query.LoadOrEmpty(cmd.Context(), fs)
			if err != nil {
				return err
			}
			defer snapshot.Close()

			req.Query = strings.Join(args, " ")
			for _, t := range types {
				req.Types = append(req.Types, common.EntityType(t))
			}
			res, err := snapshot.SearchEntities(cmd.Context(), req)
			if err != nil {
				return err
			}

			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tCONNECTIONS\tFLIGHTS\tCONFIDENCE")
			for _, e := range res.Entities {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", e.ID, e.CanonicalName, e.EntityType, e.ConnectionCount, e.FlightCount, e.ConfidenceFlag)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(res.Entities), res.Total)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&types, "type", "t", nil, "Entity types (person, organization, location)")
	f.IntVar(&req.MinConnections, "min-connections", 0, "Minimum connection count")
	f.StringVar((*string)(&req.Confidence), "confidence", "", "Confidence flag (high, low)")
	f.StringVar(&req.SortBy, "sort", query.SortName, "Sort field (canonical_name, connection_count, flight_count)")
	f.BoolVar(&req.Desc, "desc", false, "Sort descending")
	f.IntVar(&req.Offset, "offset", 0, "Results to skip")
	f.IntVarP(&req.Limit, "limit", "l", query.DefaultLimit, "Maximum number of results")
	return cmd
}
