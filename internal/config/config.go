// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Sources  SourcesConfig  `mapstructure:"sources"`
}

// DBConfig selects and tunes the flight store backend.
type DBConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// HTTPConfig configures the upstream sessions.
type HTTPConfig struct {
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
	GetAttempts         int    `mapstructure:"get_attempts"`
	PostAttempts        int    `mapstructure:"post_attempts"`
	RetryBackoffSeconds int    `mapstructure:"retry_backoff_seconds"`
}

// Timeout returns the per-request timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the linear backoff base.
func (c HTTPConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// ThrottleConfig tunes the shared request gate.
type ThrottleConfig struct {
	MinIntervalMs int `mapstructure:"min_interval_ms"`
}

// MinInterval returns the minimum spacing between upstream requests.
func (c ThrottleConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// HarvestConfig shapes the schedule-harvest engine.
type HarvestConfig struct {
	// Source selects the driver: "mapfeed" or "catalog".
	Source      string `mapstructure:"source"`
	RefreshDays int    `mapstructure:"refresh_days"`
	Workers     int    `mapstructure:"workers"`
	Windows     int    `mapstructure:"windows"`
	WindowDays  int    `mapstructure:"window_days"`
	// Limit caps pairs (mapfeed) or routes/airports (catalog); 0 = all.
	Limit                 int `mapstructure:"limit"`
	QueueDepth            int `mapstructure:"queue_depth"`
	FlushRows             int `mapstructure:"flush_rows"`
	ReportIntervalSeconds int `mapstructure:"report_interval_seconds"`
}

// ReportInterval returns the progress log cadence.
func (c HarvestConfig) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSeconds) * time.Second
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ArchiveConfig selects the raw-response blob store.
type ArchiveConfig struct {
	// Provider is "gcs", "local", "memory" or "" (archiving disabled).
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds the run-summary topic. Empty disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// SourcesConfig holds the per-source endpoint settings.
type SourcesConfig struct {
	Mapfeed MapfeedConfig `mapstructure:"mapfeed"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// MapfeedConfig configures the map-driven source. The API base URL is
// discovered at runtime from HomepageURL, not configured.
type MapfeedConfig struct {
	Airline       string `mapstructure:"airline"`
	HomepageURL   string `mapstructure:"homepage_url"`
	APIURLPattern string `mapstructure:"api_url_pattern"`
	MapPath       string `mapstructure:"map_path"`
	TimetablePath string `mapstructure:"timetable_path"`
	TokenCookie   string `mapstructure:"token_cookie"`
	TokenHeader   string `mapstructure:"token_header"`
}

// CatalogConfig configures the station-catalog source. Paths may be
// absolute URLs when an endpoint lives on a different host.
type CatalogConfig struct {
	Airline              string `mapstructure:"airline"`
	BaseURL              string `mapstructure:"base_url"`
	StationsPath         string `mapstructure:"stations_path"`
	StationsFallbackPath string `mapstructure:"stations_fallback_path"`
	RoutesPath           string `mapstructure:"routes_path"`
	SchedulesPath        string `mapstructure:"schedules_path"`
	FaresPath            string `mapstructure:"fares_path"`
	FaresFallbackPath    string `mapstructure:"fares_fallback_path"`
	Months               int    `mapstructure:"months"`
	FareHorizonDays      int    `mapstructure:"fare_horizon_days"`
	FarePriceCap         int    `mapstructure:"fare_price_cap"`
	FarePageLimit        int    `mapstructure:"fare_page_limit"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLIGHTNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.provider", "postgres")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "flightnet/0.1")
	v.SetDefault("http.get_attempts", 3)
	v.SetDefault("http.post_attempts", 8)
	v.SetDefault("http.retry_backoff_seconds", 5)
	v.SetDefault("throttle.min_interval_ms", 500)
	v.SetDefault("harvest.source", "")
	v.SetDefault("harvest.refresh_days", 7)
	v.SetDefault("harvest.workers", 4)
	v.SetDefault("harvest.windows", 4)
	v.SetDefault("harvest.window_days", 42)
	v.SetDefault("harvest.limit", 0)
	v.SetDefault("harvest.queue_depth", 200)
	v.SetDefault("harvest.flush_rows", 500)
	v.SetDefault("harvest.report_interval_seconds", 30)
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("archive.provider", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("sources.mapfeed.airline", "XM")
	v.SetDefault("sources.mapfeed.api_url_pattern", `"apiUrl"\s*:\s*"([^"]+)"`)
	v.SetDefault("sources.mapfeed.map_path", "/asset/map")
	v.SetDefault("sources.mapfeed.timetable_path", "/search/timetable")
	v.SetDefault("sources.catalog.airline", "XC")
	v.SetDefault("sources.catalog.months", 3)
	v.SetDefault("sources.catalog.fare_horizon_days", 180)
	v.SetDefault("sources.catalog.fare_price_cap", 1000)
	v.SetDefault("sources.catalog.fare_page_limit", 200)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("db.provider must be postgres or memory, got %q", c.DB.Provider)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.GetAttempts <= 0 || c.HTTP.PostAttempts <= 0 {
		return fmt.Errorf("http.get_attempts and http.post_attempts must be > 0")
	}
	if c.Throttle.MinIntervalMs < 0 {
		return fmt.Errorf("throttle.min_interval_ms must be >= 0")
	}
	if c.Harvest.RefreshDays < 0 {
		return fmt.Errorf("harvest.refresh_days must be >= 0")
	}
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be > 0")
	}
	if c.Harvest.Windows <= 0 {
		return fmt.Errorf("harvest.windows must be > 0")
	}
	if c.Harvest.WindowDays <= 0 {
		return fmt.Errorf("harvest.window_days must be > 0")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// ValidateSource checks the requirements of the selected source driver.
// Commands call it once the --source flag is resolved.
func (c Config) ValidateSource(source string) error {
	switch source {
	case "mapfeed":
		if c.Sources.Mapfeed.HomepageURL == "" {
			return fmt.Errorf("sources.mapfeed.homepage_url must be set for the mapfeed source")
		}
	case "catalog":
		if c.Sources.Catalog.BaseURL == "" {
			return fmt.Errorf("sources.catalog.base_url must be set for the catalog source")
		}
	default:
		return fmt.Errorf("unknown source %q (want mapfeed or catalog)", source)
	}
	return nil
}
