package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/shapelets.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.Equal(t, []string{".pkl", ".zip"}, cfg.Ingest.Extensions)
	assert.Equal(t, "exports", cfg.Export.OutputDir)
	assert.Equal(t, 31, cfg.Export.MaxExpand)
	assert.Equal(t, []string{"csv"}, cfg.Export.Formats)
	assert.InDelta(t, 0.10, cfg.Monitoring.ErrorRateThreshold, 0.001)
	assert.Equal(t, 3, cfg.Monitoring.WebhookAttempts)
	assert.InDelta(t, 1.0, cfg.Monitoring.WebhookRatePerSec, 0.001)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/shapelets
ingest:
  input_dir: /data/raw
  batch_size: 250
export:
  formats: [csv, geojson]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shapelet.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/shapelets", cfg.Store.DatabaseURL)
	assert.Equal(t, "/data/raw", cfg.Ingest.InputDir)
	assert.Equal(t, 250, cfg.Ingest.BatchSize)
	assert.Equal(t, []string{"csv", "geojson"}, cfg.Export.Formats)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 31, cfg.Export.MaxExpand)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shapelet.yaml"), []byte(yaml), 0644))

	t.Setenv("SHAPELET_STORE_DRIVER", "postgres")
	t.Setenv("SHAPELET_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SHAPELET_INGEST_BATCH_SIZE", "50")
	t.Setenv("SHAPELET_MONITORING_WEBHOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Monitoring.WebhookURL)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shapelet.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "data/shapelets.db"
	cfg.Ingest.BatchSize = 500
	cfg.Export.MaxExpand = 31
	cfg.Monitoring.ErrorRateThreshold = 0.1
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"ingest", "export", "query"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_Ingest(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Ingest.BatchSize = 0
	cfg.Monitoring.ErrorRateThreshold = 1.5

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "ingest.batch_size must be >= 1")
	assert.Contains(t, err.Error(), "error_rate_threshold")
}

func TestValidate_Export(t *testing.T) {
	cfg := validDefaults()
	cfg.Export.MaxExpand = 0

	err := cfg.Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.max_expand must be >= 1")
}

func TestValidate_Driver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
