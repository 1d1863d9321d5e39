package main

import (
	"errors"
	"fmt"

	pgstore "github.com/bobmatnyc/the-island-sub004/pkg/store/pgx"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the publisher's database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			if err := pgstore.Migrate(c.cfg.MigrationsPath, c.cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
			return nil
		},
	}
}
