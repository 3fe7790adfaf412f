package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shapelet-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "shapelet-cli",
	Short: "Shapelet ingest and export toolkit",
	Long:  "Ingests pickled shapelet containers from air-quality monitoring sites into SQLite or Postgres, and exports filtered subsets for GIS tools.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyStoreFlags(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// applyStoreFlags lets --driver and --db override the loaded store settings.
func applyStoreFlags(cmd *cobra.Command, c *config.Config) {
	if f := cmd.Flags().Lookup("driver"); f != nil && f.Changed {
		c.Store.Driver = f.Value.String()
	}
	if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
		c.Store.DatabaseURL = f.Value.String()
	}
}

func init() {
	rootCmd.PersistentFlags().String("driver", "", "store driver: sqlite or postgres (overrides store.driver)")
	rootCmd.PersistentFlags().String("db", "", "database file path or connection string (overrides store.database_url)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
