// Package config defines the top-level configuration for the fillsync
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// fillInsertColumns is the number of bind parameters one fill row consumes on
// insert. Used to validate sync.batch_size against the PostgreSQL extended
// protocol's 65535 bind-parameter budget.
const fillInsertColumns = 18

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FILLSYNC_* environment
// variables.
type Config struct {
	Feed     FeedConfig     `toml:"feed"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Sync     SyncConfig     `toml:"sync"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// FeedConfig holds upstream builder-fills feed parameters.
type FeedConfig struct {
	BaseURL        string `toml:"base_url"`
	BuilderAddress string `toml:"builder_address"`
	// DateLayout is the Go reference-time layout used for the date path
	// segment. The feed has used both "2006-01-02" and "20060102" across
	// versions.
	DateLayout     string   `toml:"date_layout"`
	RequestTimeout duration `toml:"request_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis backs the sync lock
// that keeps orchestrator runs single-flight.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for raw snapshot
// archival. When Enabled is false the archival step is skipped entirely.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SyncConfig holds ingestion pipeline parameters.
type SyncConfig struct {
	// Interval is the cadence of scheduled runs in full mode.
	Interval duration `toml:"interval"`
	// BatchSize is the number of fills written per upsert batch.
	BatchSize int `toml:"batch_size"`
	// LockTTL bounds how long a crashed run can hold the sync lock.
	LockTTL duration `toml:"lock_ttl"`
	// MaxSequenceWarn is the sequence-number threshold above which a parse
	// is flagged as an anomalous upstream re-emission pattern.
	MaxSequenceWarn int `toml:"max_sequence_warn"`
	// DedupeMode selects how repeated identical rows are stored:
	// "occurrences" keeps every repeat as its own row (sequence number in
	// the conflict key); "collapse" drops repeats beyond the first.
	DedupeMode string `toml:"dedupe_mode"`
}

// ServerConfig holds HTTP server parameters. CronSecret guards the sync
// trigger endpoints; when empty they are open (local development only).
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	CronSecret  string   `toml:"cron_secret"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "4h", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DedupeMode values.
const (
	DedupeOccurrences = "occurrences"
	DedupeCollapse    = "collapse"
)

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			BaseURL:        "https://stats-data.hyperliquid.xyz/Mainnet/builder_fills",
			DateLayout:     "2006-01-02",
			RequestTimeout: duration{60 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "fillsync",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fillsync-raw",
			ForcePathStyle: true,
		},
		Sync: SyncConfig{
			Interval:        duration{4 * time.Hour},
			BatchSize:       500,
			LockTTL:         duration{30 * time.Minute},
			MaxSequenceWarn: 10,
			DedupeMode:      DedupeOccurrences,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"sync_failed", "sync_partial"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"sync":  true,
	"serve": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validDateLayouts enumerates the feed date-segment layouts observed across
// feed versions.
var validDateLayouts = map[string]bool{
	"2006-01-02": true,
	"20060102":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sync, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.BaseURL == "" {
		errs = append(errs, "feed: base_url must not be empty")
	}
	if c.Feed.BuilderAddress == "" {
		errs = append(errs, "feed: builder_address must not be empty")
	}
	if !strings.HasPrefix(strings.ToLower(c.Feed.BuilderAddress), "0x") {
		errs = append(errs, fmt.Sprintf("feed: builder_address %q must be a 0x-prefixed hex address", c.Feed.BuilderAddress))
	}
	if !validDateLayouts[c.Feed.DateLayout] {
		errs = append(errs, fmt.Sprintf("feed: date_layout %q not recognised (valid: 2006-01-02, 20060102)", c.Feed.DateLayout))
	}
	if c.Feed.RequestTimeout.Duration <= 0 {
		errs = append(errs, "feed: request_timeout must be positive")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 (only when archival is enabled)
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Sync
	if c.Sync.Interval.Duration < time.Minute {
		errs = append(errs, "sync: interval must be at least 1m")
	}
	if c.Sync.BatchSize < 1 {
		errs = append(errs, "sync: batch_size must be >= 1")
	}
	if c.Sync.BatchSize*fillInsertColumns > 65535 {
		errs = append(errs, fmt.Sprintf(
			"sync: batch_size %d exceeds the bind-parameter budget (max %d at %d columns per row)",
			c.Sync.BatchSize, 65535/fillInsertColumns, fillInsertColumns))
	}
	if c.Sync.LockTTL.Duration <= 0 {
		errs = append(errs, "sync: lock_ttl must be positive")
	}
	if c.Sync.MaxSequenceWarn < 1 {
		errs = append(errs, "sync: max_sequence_warn must be >= 1")
	}
	if c.Sync.DedupeMode != DedupeOccurrences && c.Sync.DedupeMode != DedupeCollapse {
		errs = append(errs, fmt.Sprintf("sync: dedupe_mode %q (valid: occurrences, collapse)", c.Sync.DedupeMode))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
