package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stationbook/internal/clock"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	HTTP struct {
		Address        string  `yaml:"address"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Endpoint    string  `yaml:"endpoint"`
		Insecure    bool    `yaml:"insecure"`
		ServiceName string  `yaml:"service_name"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"logging"`

	Engine struct {
		Timezone              string `yaml:"timezone"`
		Workers               int    `yaml:"workers"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
		MinAdvanceMinutes     int    `yaml:"min_advance_minutes"`
		MaxAdvanceDays        int    `yaml:"max_advance_days"`
		SlotStride            string `yaml:"slot_stride"` // packed | grid
	} `yaml:"engine"`

	Stations struct {
		Path                  string `yaml:"path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"stations"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/stationbook.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 20
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 40
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "stationbook"
	}
	if c.Tracing.SampleRatio <= 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Engine.Timezone == "" {
		c.Engine.Timezone = "UTC"
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 8
	}
	if c.Engine.RequestTimeoutSeconds <= 0 {
		c.Engine.RequestTimeoutSeconds = 10
	}
	if c.Engine.SlotStride == "" {
		c.Engine.SlotStride = "packed"
	}
	if c.Stations.Path == "" {
		c.Stations.Path = "configs/stations.yaml"
	}
	if c.Stations.ReloadIntervalSeconds <= 0 {
		c.Stations.ReloadIntervalSeconds = 30
	}
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Engine.MinAdvanceMinutes < 0 {
		return fmt.Errorf("engine.min_advance_minutes cannot be negative")
	}
	if c.Engine.MaxAdvanceDays < 0 {
		return fmt.Errorf("engine.max_advance_days cannot be negative")
	}
	switch c.Engine.SlotStride {
	case "packed", "grid":
	default:
		return fmt.Errorf("engine.slot_stride: unknown value %q, expected packed or grid", c.Engine.SlotStride)
	}
	if _, err := clock.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unknown value %q", c.Logging.Format)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Engine.RequestTimeoutSeconds) * time.Second
}

func (c *Config) MinAdvance() time.Duration {
	return time.Duration(c.Engine.MinAdvanceMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// Location returns the business timezone. Validate has already resolved it.
func (c *Config) Location() *time.Location {
	loc, err := clock.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) StationsReloadInterval() time.Duration {
	return time.Duration(c.Stations.ReloadIntervalSeconds) * time.Second
}

// LoadStations reads the station catalogue referenced by this config.
func (c *Config) LoadStations() (*StationsConfig, error) {
	return LoadStationsConfig(c.Stations.Path)
}
