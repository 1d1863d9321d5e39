package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/storage"
	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"github.com/spf13/cobra"
)

func (c *cli) rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Point current back at the previous snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := c.localStore()
			if err != nil {
				return err
			}
			release, err := fs.Lock(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			version, err := fs.Rollback(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current snapshot is now %s\n", version)
			return nil
		},
	}
}

func (c *cli) versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List the retained snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := c.localStore()
			if err != nil {
				return err
			}
			versions, err := fs.Versions(cmd.Context())
			if err != nil {
				return err
			}
			current, err := fs.Current(cmd.Context())
			if err != nil && !errors.Is(err, store.ErrNoSnapshot) {
				return err
			}

			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"current": current, "versions": versions})
			}
			for _, v := range versions {
				marker := " "
				if v == current {
					marker = "*"
				}
				created := "-"
				if at, _, err := util.ParseSnapshotVersion(v); err == nil {
					created = at.Local().Format(time.DateTime)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n", marker, v, created)
			}
			return nil
		},
	}
}

func (c *cli) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect and restore snapshot backups in S3",
	}

	open := func(cmd *cobra.Command) (*storage.S3Backup, error) {
		if !c.cfg.S3.Enabled() {
			return nil, errors.New("AWS_BUCKET is not set")
		}
		client, err := storage.NewS3Client(cmd.Context(), c.cfg.S3)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Backup(client, c.cfg.S3.Bucket, c.cfg.S3.Prefix), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backed up snapshot versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := open(cmd)
			if err != nil {
				return err
			}
			versions, err := b.Versions(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <version>",
		Short: "Commit a backed up snapshot as a new current snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd)
			if err != nil {
				return err
			}
			files, err := b.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fs, err := c.localStore()
			if err != nil {
				return err
			}
			return commitRestored(cmd, fs, args[0], files)
		},
	})
	return cmd
}

// commitRestored commits restored files under a fresh version so the
// restore itself can be rolled back.
func commitRestored(cmd *cobra.Command, artifacts store.ArtifactStore, from string, files map[string][]byte) error {
	if _, ok := files[store.FileEntities]; !ok {
		return fmt.Errorf("backup %s has no %s", from, store.FileEntities)
	}
	runID, err := util.NewRunID()
	if err != nil {
		return err
	}
	version := util.SnapshotVersion(time.Now(), runID)

	release, err := artifacts.Lock(cmd.Context())
	if err != nil {
		return err
	}
	defer release()
	if err := artifacts.Commit(cmd.Context(), version, files); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s as %s\n", from, version)
	return nil
}
