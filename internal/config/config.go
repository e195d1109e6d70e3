// Package config defines the top-level configuration for the wallet ledger
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LEDGER_* environment variables.
type Config struct {
	Wallets  []string       `toml:"wallets"`
	RPC      RPCConfig      `toml:"rpc"`
	Protocol ProtocolConfig `toml:"protocol"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RPCConfig holds the chain node endpoint and its pacing.
type RPCConfig struct {
	URL           string   `toml:"url"`
	ProgramID     string   `toml:"program_id"`
	PageSize      int      `toml:"page_size"`
	MaxSignatures int      `toml:"max_signatures"`
	BatchSize     int      `toml:"batch_size"`
	Concurrency   int      `toml:"concurrency"`
	BatchDelay    duration `toml:"batch_delay"`
	RetryBackoff  duration `toml:"retry_backoff"`
	Timeout       duration `toml:"timeout"`
	// RateLimit caps node calls per RateWindow across every replica sharing
	// the Redis server. Zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// ProtocolConfig is the static market and token catalog. It seeds the Redis
// instrument cache at startup.
type ProtocolConfig struct {
	Instruments []domain.Instrument `toml:"instruments"`
	Tokens      []domain.Token      `toml:"tokens"`
}

// LedgerConfig tunes reconstruction and merging.
type LedgerConfig struct {
	// CacheLimit bounds how many cached events are merged with fresh ones.
	// Zero merges the full cached history. Any other value drops the oldest
	// lots from matching, so closes against them lose their cost basis.
	CacheLimit int      `toml:"cache_limit"`
	LockTTL    duration `toml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	KeyPrefix   string   `toml:"key_prefix"`
	ClientIDTTL duration `toml:"client_id_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the raw
// transaction archive.
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

// PipelineConfig holds background sync parameters.
type PipelineConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	APIKey       string   `toml:"api_key"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	WriteTimeout duration `toml:"write_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIBase   string   `toml:"telegram_api_base"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		RPC: RPCConfig{
			URL:           "https://api.mainnet-beta.solana.com",
			PageSize:      1000,
			MaxSignatures: 10_000,
			BatchSize:     10,
			Concurrency:   4,
			BatchDelay:    duration{250 * time.Millisecond},
			RetryBackoff:  duration{2 * time.Second},
			Timeout:       duration{30 * time.Second},
			RateLimit:     40,
			RateWindow:    duration{10 * time.Second},
		},
		Ledger: LedgerConfig{
			CacheLimit: 0,
			LockTTL:    duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "walletledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:     true,
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			KeyPrefix:   "ledger",
			ClientIDTTL: duration{24 * time.Hour},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "walletledger-raw",
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			Enabled:     false,
			Interval:    duration{5 * time.Minute},
			Concurrency: 2,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
			WriteTimeout: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"sync_failed", "sync_degraded", "unknown_tags", "cost_basis_gaps"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sync":  true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sync, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Mode == "sync" && len(c.Wallets) == 0 {
		errs = append(errs, "wallets: at least one wallet is required for mode sync")
	}
	if c.Pipeline.Enabled {
		if c.Pipeline.Interval.Duration <= 0 {
			errs = append(errs, "pipeline: interval must be > 0 when enabled")
		}
		if c.Pipeline.Concurrency < 1 {
			errs = append(errs, "pipeline: concurrency must be >= 1")
		}
	}

	// RPC
	if c.RPC.URL == "" {
		errs = append(errs, "rpc: url must not be empty")
	}
	if c.RPC.ProgramID == "" {
		errs = append(errs, "rpc: program_id must not be empty")
	}
	if c.RPC.PageSize < 1 || c.RPC.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("rpc: page_size must be 1-1000, got %d", c.RPC.PageSize))
	}
	if c.RPC.BatchSize < 1 {
		errs = append(errs, "rpc: batch_size must be >= 1")
	}
	if c.RPC.Concurrency < 1 {
		errs = append(errs, "rpc: concurrency must be >= 1")
	}
	if c.RPC.RateLimit > 0 && c.RPC.RateWindow.Duration <= 0 {
		errs = append(errs, "rpc: rate_window must be > 0 when rate_limit is set")
	}

	errs = append(errs, c.Protocol.validate()...)

	if c.Ledger.CacheLimit < 0 {
		errs = append(errs, "ledger: cache_limit must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings lists settings that pass Validate but weaken results.
func (c *Config) Warnings() []string {
	var warns []string
	if c.Ledger.CacheLimit > 0 {
		warns = append(warns, fmt.Sprintf(
			"ledger: cache_limit %d matches FIFO over the newest cached events only; older lots are ignored and PnL may be understated",
			c.Ledger.CacheLimit))
	}
	if c.RPC.MaxSignatures > 0 && c.RPC.MaxSignatures < c.RPC.PageSize {
		warns = append(warns, fmt.Sprintf(
			"rpc: max_signatures %d is below page_size %d; wallets with long histories need many syncs to catch up",
			c.RPC.MaxSignatures, c.RPC.PageSize))
	}
	return warns
}

func (p ProtocolConfig) validate() []string {
	var errs []string
	markets := make(map[uint32]bool, len(p.Instruments))
	for _, inst := range p.Instruments {
		if markets[inst.MarketID] {
			errs = append(errs, fmt.Sprintf("protocol: duplicate instrument market_id %d", inst.MarketID))
		}
		markets[inst.MarketID] = true
		if inst.Symbol == "" {
			errs = append(errs, fmt.Sprintf("protocol: instrument %d has no symbol", inst.MarketID))
		}
		if inst.Kind != domain.InstrumentSpot && inst.Kind != domain.InstrumentPerp {
			errs = append(errs, fmt.Sprintf("protocol: instrument %d kind must be spot or perp, got %q", inst.MarketID, inst.Kind))
		}
		for _, d := range []int32{inst.BaseDecimals, inst.QuoteDecimals, inst.PriceDecimals} {
			if d < 0 || d > 38 {
				errs = append(errs, fmt.Sprintf("protocol: instrument %d decimals must be 0-38", inst.MarketID))
				break
			}
		}
	}

	tokens := make(map[uint32]bool, len(p.Tokens))
	for _, tok := range p.Tokens {
		if tokens[tok.ID] {
			errs = append(errs, fmt.Sprintf("protocol: duplicate token id %d", tok.ID))
		}
		tokens[tok.ID] = true
		if tok.Decimals < 0 || tok.Decimals > 38 {
			errs = append(errs, fmt.Sprintf("protocol: token %d decimals must be 0-38", tok.ID))
		}
	}
	return errs
}
