package model

import "time"

// RunStatus represents the state of an ingestion run.
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s != RunStatusRunning && s != ""
}

// IngestionRun is one row of the ingestion audit log.
type IngestionRun struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	TotalFiles int        `json:"total_files"`
	TotalRows  int        `json:"total_rows"`
	ErrorCount int        `json:"error_count"`
}

// Duration returns the elapsed run time, or zero while running.
func (r IngestionRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunSummary carries the final counters written when a run finishes.
type RunSummary struct {
	Status     RunStatus `json:"status"`
	TotalFiles int       `json:"total_files"`
	TotalRows  int       `json:"total_rows"`
	ErrorCount int       `json:"error_count"`
}

// StatusFor picks the terminal status for a run that reached finalization.
func StatusFor(errorCount int) RunStatus {
	if errorCount > 0 {
		return RunStatusCompletedWithErrors
	}
	return RunStatusCompleted
}
