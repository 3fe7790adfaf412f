package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of ingest health.
type MetricsSnapshot struct {
	RunsTotal      int     `json:"runs_total"`
	RunsCompleted  int     `json:"runs_completed"`
	RunsWithErrors int     `json:"runs_completed_with_errors"`
	RunsFailed     int     `json:"runs_failed"`
	RunsRunning    int     `json:"runs_running"`
	FilesTotal     int     `json:"files_total"`
	RowsTotal      int     `json:"rows_total"`
	ErrorsTotal    int     `json:"errors_total"`
	FailedRunIDs   []int64 `json:"failed_run_ids,omitempty"`

	// ErrorRate is errors over rows plus errors across finished runs.
	ErrorRate float64 `json:"error_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store subset the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.IngestionRun, error)
}

// Collector gathers run metrics from the audit log.
type Collector struct {
	runs  RunLister
	clock clockwork.Clock
}

// NewCollector creates a new metrics collector. A nil clock uses real time.
func NewCollector(runs RunLister, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, clock: clock}
}

// Collect gathers a snapshot of runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.clock.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusCompletedWithErrors:
			snap.RunsWithErrors++
		case model.RunStatusFailed:
			snap.RunsFailed++
			snap.FailedRunIDs = append(snap.FailedRunIDs, r.ID)
		case model.RunStatusRunning:
			snap.RunsRunning++
			continue
		}
		snap.FilesTotal += r.TotalFiles
		snap.RowsTotal += r.TotalRows
		snap.ErrorsTotal += r.ErrorCount
	}

	if denom := snap.RowsTotal + snap.ErrorsTotal; denom > 0 {
		snap.ErrorRate = float64(snap.ErrorsTotal) / float64(denom)
	}
	return snap, nil
}
