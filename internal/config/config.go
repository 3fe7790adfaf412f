package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. For sqlite, DatabaseURL is a
// file path; for postgres it is a connection string.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// IngestConfig configures the ingest pipeline.
type IngestConfig struct {
	InputDir     string   `yaml:"input_dir" mapstructure:"input_dir"`
	BatchSize    int      `yaml:"batch_size" mapstructure:"batch_size"`
	MetricsFile  string   `yaml:"metrics_file" mapstructure:"metrics_file"`
	Extensions   []string `yaml:"extensions" mapstructure:"extensions"`
	NonRecursive bool     `yaml:"non_recursive" mapstructure:"non_recursive"`
}

// ExportConfig configures exporters.
type ExportConfig struct {
	OutputDir string   `yaml:"output_dir" mapstructure:"output_dir"`
	MaxExpand int      `yaml:"max_expand" mapstructure:"max_expand"`
	Formats   []string `yaml:"formats" mapstructure:"formats"`
}

// MonitoringConfig configures post-run alerting.
type MonitoringConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	WebhookAttempts    int     `yaml:"webhook_attempts" mapstructure:"webhook_attempts"`
	WebhookRatePerSec  float64 `yaml:"webhook_rate_per_sec" mapstructure:"webhook_rate_per_sec"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	LookbackHours      int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalSecs  int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from shapelet.yaml (optional) and SHAPELET_* env vars.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("shapelet")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SHAPELET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/shapelets.db")
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.extensions", []string{".pkl", ".zip"})
	v.SetDefault("export.output_dir", "exports")
	v.SetDefault("export.max_expand", 31)
	v.SetDefault("export.formats", []string{"csv"})
	v.SetDefault("monitoring.error_rate_threshold", 0.10)
	v.SetDefault("monitoring.webhook_attempts", 3)
	v.SetDefault("monitoring.webhook_rate_per_sec", 1.0)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "ingest":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Ingest.BatchSize < 1 {
			errs = append(errs, "ingest.batch_size must be >= 1")
		}
		if c.Monitoring.ErrorRateThreshold < 0 || c.Monitoring.ErrorRateThreshold > 1 {
			errs = append(errs, "monitoring.error_rate_threshold must be between 0 and 1")
		}
	case "export":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Export.MaxExpand < 1 {
			errs = append(errs, "export.max_expand must be >= 1")
		}
	case "query":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
