package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletledger/internal/pipeline"
	"github.com/alanyoungcy/walletledger/internal/server"
	"github.com/alanyoungcy/walletledger/internal/server/handler"
)

// ServeMode runs the HTTP API only.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// SyncMode syncs every configured wallet once and exits.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode", slog.Int("wallets", len(a.cfg.Wallets)))

	sum := a.newOrchestrator(deps).SyncAll(ctx)
	if sum.Failed > 0 {
		return fmt.Errorf("app: %d of %d wallet syncs failed", sum.Failed, sum.Wallets)
	}
	return nil
}

// FullMode runs the HTTP API together with the background sync of configured
// wallets.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	var orch *pipeline.Orchestrator
	if a.cfg.Pipeline.Enabled {
		orch = a.newOrchestrator(deps)
		g.Go(func() error {
			return orch.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "pipeline disabled, wallets sync on request only")
	}

	if a.cfg.Server.Enabled {
		var trigger handler.Triggerer
		if orch != nil {
			trigger = orch
		}
		a.startHTTPServer(ctx, g, deps, trigger)
	}

	return g.Wait()
}

func (a *App) newOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(
		deps.History,
		a.cfg.Wallets,
		a.cfg.Pipeline.Interval.Duration,
		a.cfg.Pipeline.Concurrency,
		a.logger,
	)
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, trigger handler.Triggerer) {
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Wallets: handler.NewWalletHandler(deps.History, deps.TradeStore, a.logger),
		Ops:     handler.NewOpsHandler(deps.AuditStore, trigger, a.logger),
		Metrics: deps.Metrics.Handler(),
	}, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
