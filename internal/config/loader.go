package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LEDGER_* environment variable overrides, and
// returns the final Config. A missing file is not an error, so a deployment
// can be configured from the environment alone. The returned Config has NOT
// been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	setStringSlice(&cfg.Wallets, "LEDGER_WALLETS")

	// ── RPC ──
	setStr(&cfg.RPC.URL, "LEDGER_RPC_URL")
	setStr(&cfg.RPC.ProgramID, "LEDGER_RPC_PROGRAM_ID")
	setInt(&cfg.RPC.PageSize, "LEDGER_RPC_PAGE_SIZE")
	setInt(&cfg.RPC.MaxSignatures, "LEDGER_RPC_MAX_SIGNATURES")
	setInt(&cfg.RPC.BatchSize, "LEDGER_RPC_BATCH_SIZE")
	setInt(&cfg.RPC.Concurrency, "LEDGER_RPC_CONCURRENCY")
	setDuration(&cfg.RPC.BatchDelay, "LEDGER_RPC_BATCH_DELAY")
	setDuration(&cfg.RPC.RetryBackoff, "LEDGER_RPC_RETRY_BACKOFF")
	setDuration(&cfg.RPC.Timeout, "LEDGER_RPC_TIMEOUT")
	setInt(&cfg.RPC.RateLimit, "LEDGER_RPC_RATE_LIMIT")
	setDuration(&cfg.RPC.RateWindow, "LEDGER_RPC_RATE_WINDOW")

	// ── Ledger ──
	setInt(&cfg.Ledger.CacheLimit, "LEDGER_LEDGER_CACHE_LIMIT")
	setDuration(&cfg.Ledger.LockTTL, "LEDGER_LEDGER_LOCK_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LEDGER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LEDGER_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.ClientIDTTL, "LEDGER_REDIS_CLIENT_ID_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "LEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LEDGER_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "LEDGER_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.Interval, "LEDGER_PIPELINE_INTERVAL")
	setInt(&cfg.Pipeline.Concurrency, "LEDGER_PIPELINE_CONCURRENCY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LEDGER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LEDGER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "LEDGER_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.WriteTimeout, "LEDGER_SERVER_WRITE_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramAPIBase, "LEDGER_NOTIFY_TELEGRAM_API_BASE")
	setStr(&cfg.Notify.DiscordWebhookURL, "LEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LEDGER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LEDGER_MODE")
	setStr(&cfg.LogLevel, "LEDGER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.

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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
