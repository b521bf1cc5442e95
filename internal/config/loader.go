package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FILLSYNC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FILLSYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.BaseURL, "FILLSYNC_FEED_BASE_URL")
	setStr(&cfg.Feed.BuilderAddress, "FILLSYNC_FEED_BUILDER_ADDRESS")
	setStr(&cfg.Feed.DateLayout, "FILLSYNC_FEED_DATE_LAYOUT")
	setDuration(&cfg.Feed.RequestTimeout, "FILLSYNC_FEED_REQUEST_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "FILLSYNC_DATABASE_DSN")
	setStr(&cfg.Database.Host, "FILLSYNC_DATABASE_HOST")
	setInt(&cfg.Database.Port, "FILLSYNC_DATABASE_PORT")
	setStr(&cfg.Database.Database, "FILLSYNC_DATABASE_NAME")
	setStr(&cfg.Database.User, "FILLSYNC_DATABASE_USER")
	setStr(&cfg.Database.Password, "FILLSYNC_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "FILLSYNC_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "FILLSYNC_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "FILLSYNC_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "FILLSYNC_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FILLSYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FILLSYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FILLSYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FILLSYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FILLSYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FILLSYNC_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FILLSYNC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FILLSYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FILLSYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "FILLSYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FILLSYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FILLSYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FILLSYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FILLSYNC_S3_FORCE_PATH_STYLE")

	// ── Sync ──
	setDuration(&cfg.Sync.Interval, "FILLSYNC_SYNC_INTERVAL")
	setInt(&cfg.Sync.BatchSize, "FILLSYNC_SYNC_BATCH_SIZE")
	setDuration(&cfg.Sync.LockTTL, "FILLSYNC_SYNC_LOCK_TTL")
	setInt(&cfg.Sync.MaxSequenceWarn, "FILLSYNC_SYNC_MAX_SEQUENCE_WARN")
	setStr(&cfg.Sync.DedupeMode, "FILLSYNC_SYNC_DEDUPE_MODE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FILLSYNC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FILLSYNC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FILLSYNC_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.CronSecret, "FILLSYNC_SERVER_CRON_SECRET")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FILLSYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FILLSYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FILLSYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FILLSYNC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FILLSYNC_MODE")
	setStr(&cfg.LogLevel, "FILLSYNC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
