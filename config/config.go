package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Collector  CollectorConfig  `yaml:"collector"`
	Source     SourceConfig     `yaml:"source"`
	Database   DatabaseConfig   `yaml:"database"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Facilities []FacilityConfig `yaml:"facilities"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// CollectorConfig holds the collection scheduler configuration.
type CollectorConfig struct {
	Enabled             bool          `yaml:"enabled"`
	IntervalMinutes     int           `yaml:"interval_minutes"`
	Interval            time.Duration `yaml:"-"` // Ignored by YAML parser
	FetchTimeoutSeconds int           `yaml:"fetch_timeout_seconds"`
	FetchTimeout        time.Duration `yaml:"-"`
	Concurrency         int           `yaml:"concurrency"`
	Timezone            string        `yaml:"timezone"`
}

// SourceConfig defines the upstream facility-usage page request.
type SourceConfig struct {
	URL                 string            `yaml:"url"`
	Headers             map[string]string `yaml:"headers"`
	HTTPProxy           string            `yaml:"http_proxy"`
	PageCacheTTLSeconds int               `yaml:"page_cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AnalysisConfig holds the recommendation engine tunables.
type AnalysisConfig struct {
	// MinSamples is the number of qualifying observations required before any
	// recommendation is produced.
	MinSamples int `yaml:"min_samples"`
	// ConfidentSamples is the per-bucket sample count below which a bucket is
	// flagged low-confidence.
	ConfidentSamples    int `yaml:"confident_samples"`
	TopSlots            int `yaml:"top_slots"`
	DefaultLookbackDays int `yaml:"default_lookback_days"`
}

// FacilityConfig is one registry entry from the config file.
type FacilityConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Capacity    *int   `yaml:"capacity"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Collector.IntervalMinutes <= 0 {
		cfg.Collector.IntervalMinutes = 15
	}
	cfg.Collector.Interval = time.Duration(cfg.Collector.IntervalMinutes) * time.Minute

	if cfg.Collector.FetchTimeoutSeconds <= 0 {
		cfg.Collector.FetchTimeoutSeconds = 20
	}
	cfg.Collector.FetchTimeout = time.Duration(cfg.Collector.FetchTimeoutSeconds) * time.Second

	if cfg.Collector.Concurrency <= 0 {
		cfg.Collector.Concurrency = 4
	}
	if cfg.Collector.Timezone == "" {
		cfg.Collector.Timezone = "America/Indiana/Indianapolis"
	}

	if cfg.Source.PageCacheTTLSeconds <= 0 {
		cfg.Source.PageCacheTTLSeconds = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "facility_data.db"
	}

	if cfg.Analysis.MinSamples <= 0 {
		cfg.Analysis.MinSamples = 1
	}
	if cfg.Analysis.ConfidentSamples <= 0 {
		cfg.Analysis.ConfidentSamples = 2
	}
	if cfg.Analysis.TopSlots <= 0 {
		cfg.Analysis.TopSlots = 5
	}
	if cfg.Analysis.DefaultLookbackDays <= 0 {
		cfg.Analysis.DefaultLookbackDays = 7
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if len(cfg.Facilities) == 0 {
		return nil, fmt.Errorf("no facilities configured")
	}

	return &cfg, nil
}
