package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shapelet-cli/internal/metrics"
	"github.com/sells-group/shapelet-cli/internal/monitoring"
	"github.com/sells-group/shapelet-cli/internal/pipeline"
	"github.com/sells-group/shapelet-cli/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest shapelet pickle files into the store",
	Long: `Walks the input directory for .pkl and .zip containers, normalizes and
validates every shapelet, and writes the valid ones to the configured store.
Each run is recorded in the ingestion audit log.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyIngestFlags(cmd)
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		limit, _ := cmd.Flags().GetInt("limit")
		verbose, _ := cmd.Flags().GetBool("verbose")

		opts := pipeline.Options{
			BatchSize:    cfg.Ingest.BatchSize,
			Extensions:   cfg.Ingest.Extensions,
			NonRecursive: cfg.Ingest.NonRecursive,
			MetricsFile:  cfg.Ingest.MetricsFile,
			Metrics:      metrics.New(),
			Out:          os.Stdout,
		}

		var st store.Store
		if !dryRun {
			s, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			st = s

			alerter := monitoring.NewAlerter(cfg.Monitoring, nil)
			opts.Monitor = monitoring.NewChecker(monitoring.NewCollector(st, nil), alerter, cfg.Monitoring, nil)
		}

		sum, err := pipeline.New(st, opts).Run(ctx, pipeline.Request{
			InputDir: cfg.Ingest.InputDir,
			Limit:    limit,
			DryRun:   dryRun,
			Verbose:  verbose,
		})
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		zap.L().Info("ingest complete",
			zap.Int64("run_id", sum.RunID),
			zap.Int("files", sum.Files),
			zap.Int("valid", sum.Valid),
			zap.Int("errors", sum.Errors),
			zap.Int("inserted", sum.Inserted),
			zap.String("status", string(sum.Status)),
		)
		return nil
	},
}

// applyIngestFlags copies explicitly set flags over the loaded ingest config.
func applyIngestFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("input-dir") {
		cfg.Ingest.InputDir, _ = cmd.Flags().GetString("input-dir")
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Ingest.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.Ingest.MetricsFile, _ = cmd.Flags().GetString("metrics-file")
	}
	if cmd.Flags().Changed("non-recursive") {
		cfg.Ingest.NonRecursive, _ = cmd.Flags().GetBool("non-recursive")
	}
}

func init() {
	ingestCmd.Flags().String("input-dir", "", "directory containing .pkl / .zip data files (overrides ingest.input_dir)")
	ingestCmd.Flags().Bool("dry-run", false, "parse and validate only, do not write to the store")
	ingestCmd.Flags().Int("limit", 0, "process at most N files (0 = all)")
	ingestCmd.Flags().BoolP("verbose", "v", false, "print per-file detail while running")
	ingestCmd.Flags().Int("batch-size", store.DefaultBatchSize, "records written per transaction")
	ingestCmd.Flags().String("metrics-file", "", "write prometheus textfile metrics to this path")
	ingestCmd.Flags().Bool("non-recursive", false, "only scan the top level of the input directory")
	rootCmd.AddCommand(ingestCmd)
}
