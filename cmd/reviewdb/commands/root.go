// Package commands implements the reviewdb command tree.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/reviewdb/internal/config"
)

var (
	// Global flags
	configPath string
	dataDir    string

	// Loaded before every command runs.
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reviewdb",
	Short: "Embedding-indexed review store",
	Long: `reviewdb - An append-only store of product reviews and their embeddings.

Every review is embedded on insert and written to two paired logs in the
data directory:
  reviews.index   fixed-width little-endian float32 vectors
  reviews.jsonl   one JSON object per review

Results are printed as JSON on stdout.

Configuration is read from the file given with --config (YAML) and can be
overridden with REVIEWDB_* environment variables. OPENAI_API_KEY sets the
key for the openai encoder.

Examples:
  reviewdb insert --title "Great" --body "Battery lasts" --product P001 --rating 5
  reviewdb bulk reviews.json
  reviewdb search "battery life" -k 3
  reviewdb backup
  reviewdb restore 0190a1b2-...`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		globalConfig = cfg
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// interrupt by main.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "data directory (overrides config)")

	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(configCmd)
}
