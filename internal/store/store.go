// Package store persists shapelets, their site and pollutant dimensions and the
// ingestion audit log. SQLiteStore is the default backend; PostgresStore serves
// shared deployments.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shapelet-cli/internal/model"
)

// DefaultBatchSize bounds the records written per transaction.
const DefaultBatchSize = 500

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing ingestion runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Since  time.Time       `json:"since,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// ExportFilter narrows read queries. Empty fields do not filter.
// From and To are ISO dates compared against start_date and end_date.
type ExportFilter struct {
	Years        []int    `json:"years,omitempty" yaml:"years,omitempty"`
	Sites        []string `json:"sites,omitempty" yaml:"sites,omitempty"`
	Pollutants   []string `json:"pollutants,omitempty" yaml:"pollutants,omitempty"`
	PatternTypes []string `json:"pattern_types,omitempty" yaml:"pattern_types,omitempty"`
	From         string   `json:"from,omitempty" yaml:"from,omitempty"`
	To           string   `json:"to,omitempty" yaml:"to,omitempty"`
}

// DateRange is the span of all stored shapelet windows.
type DateRange struct {
	Min *time.Time
	Max *time.Time
}

// Store defines the persistence interface for the ingest pipeline and exporters.
type Store interface {
	// Writes
	UpsertSite(ctx context.Context, r model.Record) (string, error)
	UpsertPollutant(ctx context.Context, code string) error
	InsertShapelets(ctx context.Context, records []model.Record, batchSize int) (int, error)

	// Audit log
	StartRun(ctx context.Context) (int64, error)
	FinishRun(ctx context.Context, runID int64, summary model.RunSummary) error
	GetRun(ctx context.Context, runID int64) (*model.IngestionRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error)

	// Inventory
	Years(ctx context.Context) ([]int, error)
	Pollutants(ctx context.Context) ([]model.Pollutant, error)
	Sites(ctx context.Context) ([]model.Site, error)
	PatternTypes(ctx context.Context) ([]string, error)
	CountShapelets(ctx context.Context, filter ExportFilter) (int64, error)
	DateRange(ctx context.Context) (DateRange, error)

	// Export reads
	ForEachShapelet(ctx context.Context, filter ExportFilter, fn func(*model.ShapeletRow) error) error
	SiteSummaries(ctx context.Context, filter ExportFilter) ([]model.SiteSummary, error)
	ShapeletValues(ctx context.Context, id int64) ([]float64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Location() string
	Close() error
}
