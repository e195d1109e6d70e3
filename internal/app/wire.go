package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/walletledger/internal/blob/s3"
	"github.com/alanyoungcy/walletledger/internal/cache/redis"
	"github.com/alanyoungcy/walletledger/internal/config"
	"github.com/alanyoungcy/walletledger/internal/domain"
	"github.com/alanyoungcy/walletledger/internal/metrics"
	"github.com/alanyoungcy/walletledger/internal/notify"
	"github.com/alanyoungcy/walletledger/internal/platform/rpc"
	"github.com/alanyoungcy/walletledger/internal/protocol"
	"github.com/alanyoungcy/walletledger/internal/server/handler"
	"github.com/alanyoungcy/walletledger/internal/service"
	"github.com/alanyoungcy/walletledger/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. Optional
// backends that are disabled in configuration are left nil.
type Dependencies struct {
	// Stores
	TradeStore *postgres.TradeStore
	AuditStore domain.AuditStore

	// Caches
	ClientIDCache   domain.ClientIDCache
	InstrumentCache domain.InstrumentCache
	RateLimiter     domain.RateLimiter
	LockManager     domain.LockManager

	// Blob storage
	Archive domain.TransactionArchive

	Chain    *rpc.Client
	Metrics  *metrics.Registry
	Notifier *notify.Notifier
	History  *service.HistoryService

	// Checks probes each connected backend for the health endpoint.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- PostgreSQL (trade cache and audit log) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Checks["postgres"] = pgClient.Ping

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.TradeStore = postgres.NewTradeStore(pgClient.Pool())
	deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient.Ping

		deps.ClientIDCache = redis.NewClientIDCache(redisClient, cfg.Redis.ClientIDTTL.Duration)
		deps.InstrumentCache = redis.NewInstrumentCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.RPC.RateLimit, cfg.RPC.RateWindow.Duration)

		if len(cfg.Protocol.Instruments) > 0 || len(cfg.Protocol.Tokens) > 0 {
			if err := deps.InstrumentCache.SetInstruments(ctx, cfg.Protocol.Instruments, cfg.Protocol.Tokens); err != nil {
				logger.WarnContext(ctx, "wire: seeding instrument cache failed, sessions use the static catalog",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	// --- S3 raw transaction archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archive = s3blob.NewTxArchive(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
	}

	// --- RPC node ---
	var limiter domain.RateLimiter
	if cfg.RPC.RateLimit > 0 {
		limiter = deps.RateLimiter
	}
	deps.Chain = rpc.NewClient(rpc.Config{
		URL:           cfg.RPC.URL,
		ProgramID:     cfg.RPC.ProgramID,
		PageSize:      cfg.RPC.PageSize,
		MaxSignatures: cfg.RPC.MaxSignatures,
		BatchSize:     cfg.RPC.BatchSize,
		Concurrency:   cfg.RPC.Concurrency,
		BatchDelay:    cfg.RPC.BatchDelay.Duration,
		RetryBackoff:  cfg.RPC.RetryBackoff.Duration,
		Timeout:       cfg.RPC.Timeout.Duration,
	}, limiter, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIBase,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.History = service.NewHistoryService(historyDeps(deps), service.HistoryConfig{
		CacheLimit:  cfg.Ledger.CacheLimit,
		LockTTL:     cfg.Ledger.LockTTL.Duration,
		Instruments: cfg.Protocol.Instruments,
		Tokens:      cfg.Protocol.Tokens,
	}, logger)

	return deps, cleanup, nil
}

// historyDeps copies only the configured backends so that disabled ones stay
// untyped nil inside the service's interfaces.
func historyDeps(deps *Dependencies) service.HistoryDeps {
	hd := service.HistoryDeps{
		Chain:       deps.Chain,
		Trades:      deps.TradeStore,
		Decode:      protocol.DecodeTransactionLogs,
		Audit:       deps.AuditStore,
		ClientIDs:   deps.ClientIDCache,
		Instruments: deps.InstrumentCache,
		Locks:       deps.LockManager,
		Archive:     deps.Archive,
		Metrics:     deps.Metrics,
	}
	if deps.Notifier.Enabled() {
		hd.Alerts = deps.Notifier
	}
	return hd
}
