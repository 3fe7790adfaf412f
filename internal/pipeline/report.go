package pipeline

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// maxSampleErrors caps the violation lines printed per file.
const maxSampleErrors = 3

func writeNoFiles(out io.Writer, dir string) {
	_, _ = fmt.Fprintf(out, "No data files found in: %s\n", dir)
}

func writeFound(out io.Writer, n int, dir string) {
	_, _ = fmt.Fprintf(out, "Found %d file(s) in %s\n", n, dir)
}

func writeRunStarted(out io.Writer, location string, runID int64) {
	_, _ = fmt.Fprintf(out, "Database: %s (run %d)\n", location, runID)
}

func writeSkip(out io.Writer, rep FileReport) {
	_, _ = fmt.Fprintf(out, "  SKIP %s [%s]: %s\n", rep.Name(), rep.SkipReason, rep.Err)
}

func writeInserted(out io.Writer, n int) {
	_, _ = fmt.Fprintf(out, "  Inserted: %d rows\n", n)
}

// writeFileReport prints the per-file block shown in verbose and dry-run mode.
func writeFileReport(out io.Writer, rep FileReport) {
	_, _ = fmt.Fprintf(out, "\n  File: %s\n", rep.Name())
	key := rep.Key.RawKey
	if rep.Key.Parsed() && rep.Key.State != "" {
		key = fmt.Sprintf("%s/%s/%d param=%s year=%d", rep.Key.State, rep.Key.County, rep.Key.SiteNum, rep.Key.ParameterCode, rep.Key.Year)
	}
	if key != "" {
		_, _ = fmt.Fprintf(out, "  Key:  %s\n", key)
	}
	_, _ = fmt.Fprintf(out, "  Valid: %d  |  Errors: %d\n", rep.Valid, len(rep.Invalid))
	if !rep.FirstDate.IsZero() {
		_, _ = fmt.Fprintf(out, "  Dates: %s -> %s\n", rep.FirstDate.Format(model.DateLayout), rep.LastDate.Format(model.DateLayout))
	}
	for _, inv := range rep.Invalid[:min(len(rep.Invalid), maxSampleErrors)] {
		_, _ = fmt.Fprintf(out, "    shapelet_id=%d: [%s]\n", inv.ShapeletID, strings.Join(inv.Messages, "; "))
	}
	if extra := len(rep.Invalid) - maxSampleErrors; extra > 0 {
		_, _ = fmt.Fprintf(out, "    ... and %d more errors\n", extra)
	}
}

// writeSummary prints the final run totals.
func writeSummary(out io.Writer, sum *Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w)
	if sum.DryRun {
		_, _ = fmt.Fprintln(w, "Dry run complete (nothing written)")
	} else {
		_, _ = fmt.Fprintf(w, "Run %d %s\n", sum.RunID, sum.Status)
	}
	_, _ = fmt.Fprintf(w, "  Files processed:\t%d\n", sum.Files)
	_, _ = fmt.Fprintf(w, "  Valid records:\t%d\n", sum.Valid)
	_, _ = fmt.Fprintf(w, "  Error records:\t%d\n", sum.Errors)
	if !sum.DryRun {
		_, _ = fmt.Fprintf(w, "  Rows submitted:\t%d\n", sum.Inserted)
		_, _ = fmt.Fprintf(w, "  Database:\t%s\n", sum.Store)
	}
	_, _ = fmt.Fprintf(w, "  Duration:\t%s\n", sum.Duration.Round(time.Millisecond))
	for _, a := range sum.Alerts {
		_, _ = fmt.Fprintf(w, "  ALERT [%s]:\t%s\n", a.Severity, a.Message)
	}
	_ = w.Flush()
}
