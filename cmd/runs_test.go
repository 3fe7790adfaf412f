package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/shapelet-cli/internal/model"
	"github.com/sells-group/shapelet-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(2 * time.Minute)
	runs := []model.IngestionRun{
		{
			ID:         12,
			StartedAt:  now,
			FinishedAt: &done,
			Status:     model.RunStatusCompleted,
			TotalFiles: 4,
			TotalRows:  1200,
		},
		{
			ID:        13,
			StartedAt: now.Add(time.Hour),
			Status:    model.RunStatusRunning,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "ROWS")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "1200")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(30 * time.Second)
	runs := []model.IngestionRun{
		{
			ID:         7,
			StartedAt:  now,
			FinishedAt: &done,
			Status:     model.RunStatusFailed,
			TotalFiles: 2,
			ErrorCount: 3,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "30s")
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		LookbackHours:  24,
		RunsTotal:      5,
		RunsCompleted:  3,
		RunsWithErrors: 1,
		RunsFailed:     1,
		FilesTotal:     40,
		RowsTotal:      900,
		ErrorsTotal:    100,
		ErrorRate:      0.1,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "Window:")
	assert.Contains(t, output, "24h")
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Failed:")
	assert.Contains(t, output, "10.0%")
}

func TestFormatRunStats_NoRows(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{LookbackHours: 1})

	assert.Contains(t, buf.String(), "Total runs:")
	assert.NotContains(t, buf.String(), "Error rate")
}
