// Package metrics records ingest run counters on a private Prometheus registry
// and writes them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "shapelet_ingest"

// File error reasons.
const (
	ReasonPattern   = "pattern_mismatch"
	ReasonLoad      = "load_error"
	ReasonMalformed = "malformed_container"
)

// Ingest holds the counters and gauges for one ingest invocation.
type Ingest struct {
	registry *prometheus.Registry

	FilesProcessed prometheus.Counter
	RecordsValid   prometheus.Counter
	RecordsInvalid prometheus.Counter
	RowsWritten    prometheus.Counter
	FileErrors     *prometheus.CounterVec // labels: reason
	Duration       prometheus.Gauge
	LastSuccess    prometheus.Gauge
}

// New creates and registers ingest metrics on a fresh registry.
func New() *Ingest {
	m := &Ingest{
		registry: prometheus.NewRegistry(),
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Input files discovered and attempted.",
		}),
		RecordsValid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_valid_total",
			Help:      "Shapelet records that passed validation.",
		}),
		RecordsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_invalid_total",
			Help:      "Shapelet records rejected during normalization or validation.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Shapelet rows submitted to the store.",
		}),
		FileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_errors_total",
			Help:      "Files skipped, by reason.",
		}, []string{"reason"}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall time of the last ingest run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last run finished without a store error.",
		}),
	}

	m.registry.MustRegister(
		m.FilesProcessed,
		m.RecordsValid,
		m.RecordsInvalid,
		m.RowsWritten,
		m.FileErrors,
		m.Duration,
		m.LastSuccess,
	)
	return m
}

// FileError counts one skipped file.
func (m *Ingest) FileError(reason string) {
	m.FileErrors.WithLabelValues(reason).Inc()
}

// Finish records the run duration, and the success time when ok is set.
func (m *Ingest) Finish(elapsed time.Duration, finishedAt time.Time, ok bool) {
	m.Duration.Set(elapsed.Seconds())
	if ok {
		m.LastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// Registry exposes the underlying registry.
func (m *Ingest) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values to path atomically.
func (m *Ingest) WriteTextfile(path string) error {
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.registry), "metrics: write %s", path)
}
