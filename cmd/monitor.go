package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/shapelet-cli/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Periodically check recent ingestion runs and send alerts",
	Long: `Evaluates the ingestion audit log on an interval and posts alerts to the
configured webhook when runs fail or the record error rate exceeds the
threshold. With --once a single check is run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("query"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st, nil),
			monitoring.NewAlerter(cfg.Monitoring, nil),
			cfg.Monitoring,
			nil,
		)

		if once, _ := cmd.Flags().GetBool("once"); once {
			formatAlerts(os.Stdout, checker.Check(ctx))
			return nil
		}
		checker.Run(ctx)
		return nil
	},
}

// formatAlerts writes one line per alert, or a note when there are none.
func formatAlerts(out io.Writer, alerts []monitoring.Alert) {
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "No alerts.")
		return
	}
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "ALERT [%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}

func init() {
	monitorCmd.Flags().Bool("once", false, "run a single check and exit")
	rootCmd.AddCommand(monitorCmd)
}
