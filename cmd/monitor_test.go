package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/shapelet-cli/internal/monitoring"
)

func TestFormatAlerts(t *testing.T) {
	var buf bytes.Buffer
	formatAlerts(&buf, []monitoring.Alert{
		{Type: monitoring.AlertRunFailure, Severity: "high", Message: "1 ingest run(s) failed"},
	})
	assert.Equal(t, "ALERT [high] ingest_run_failure: 1 ingest run(s) failed\n", buf.String())

	buf.Reset()
	formatAlerts(&buf, nil)
	assert.Equal(t, "No alerts.\n", buf.String())
}
