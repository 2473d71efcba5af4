package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/reviewdb"
	"github.com/hupe1980/reviewdb/internal/config"
	"github.com/hupe1980/reviewdb/snapshot"
)

var restoreDir string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a snapshot of the store to the backup destination",
	Long: `Write a compressed snapshot of both logs to the configured backup
destination (local directory, S3 or MinIO) and print its manifest.

Inserts may continue while the snapshot is taken; it contains the reviews
committed when it started.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := snapshotOptions(globalConfig.Backup)
		if err != nil {
			return err
		}
		store, err := newStore(cmd.Context(), globalConfig.Backup)
		if err != nil {
			return err
		}
		return withDB(cmd, func(ctx context.Context, db *reviewdb.DB) error {
			m, err := db.Backup(ctx, store, opt)
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a snapshot into the data directory",
	Long: `Download a snapshot, verify sizes and checksums and write both logs into
the data directory (or --dir). Existing logs are never overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := newStore(ctx, globalConfig.Backup)
		if err != nil {
			return err
		}
		dir := restoreDir
		if dir == "" {
			dir = globalConfig.DataDir
		}
		m, err := snapshot.Restore(ctx, store, args[0], dir)
		if err != nil {
			return fmt.Errorf("restore %s: %w", args[0], err)
		}
		return printJSON(cmd, m)
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := newStore(ctx, globalConfig.Backup)
		if err != nil {
			return err
		}
		manifests, err := snapshot.List(ctx, store)
		if err != nil {
			return err
		}
		if manifests == nil {
			manifests = []*snapshot.Manifest{}
		}
		return printJSON(cmd, manifests)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, the config file and environment
overrides have been applied. Secrets are redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Marshal(globalConfig)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreDir, "dir", "", "target directory (default: data_dir)")
}
