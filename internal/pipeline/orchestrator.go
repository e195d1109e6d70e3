// Package pipeline keeps the trade cache of configured wallets current in the
// background.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletledger/internal/service"
)

// Syncer runs one wallet sync.
type Syncer interface {
	Sync(ctx context.Context, wallet string) (service.SyncResult, error)
}

// RoundSummary aggregates one pass over every wallet.
type RoundSummary struct {
	Wallets  int
	Inserted int64
	Partial  int
	Degraded int
	Skipped  int
	Failed   int
}

// Orchestrator syncs a fixed set of wallets on an interval, fanning out over
// a bounded number of goroutines.
type Orchestrator struct {
	syncer      Syncer
	wallets     []string
	interval    time.Duration
	concurrency int
	trigger     chan struct{}
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A concurrency below one syncs
// wallets one at a time.
func NewOrchestrator(syncer Syncer, wallets []string, interval time.Duration, concurrency int, logger *slog.Logger) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		syncer:      syncer,
		wallets:     wallets,
		interval:    interval,
		concurrency: concurrency,
		trigger:     make(chan struct{}, 1),
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Trigger requests an extra round as soon as the current one finishes.
// Requests made while one is already pending are coalesced.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run syncs every wallet immediately and then on each tick or trigger until
// ctx is cancelled. Individual wallet failures are logged and never stop the
// loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.wallets) == 0 {
		o.logger.Info("no wallets configured, background sync idle")
		<-ctx.Done()
		return nil
	}
	if o.interval <= 0 {
		return fmt.Errorf("pipeline: sync interval must be positive, got %s", o.interval)
	}

	o.logger.Info("background sync starting",
		slog.Int("wallets", len(o.wallets)),
		slog.Duration("interval", o.interval),
		slog.Int("concurrency", o.concurrency),
	)

	o.SyncAll(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("background sync stopped")
			return nil
		case <-ticker.C:
		case <-o.trigger:
		}
		o.SyncAll(ctx)
	}
}

// SyncAll runs one round over every configured wallet and waits for it.
func (o *Orchestrator) SyncAll(ctx context.Context) RoundSummary {
	start := time.Now()
	results := make([]service.SyncResult, len(o.wallets))
	errs := make([]error, len(o.wallets))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, wallet := range o.wallets {
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return nil
			}
			results[i], errs[i] = o.syncer.Sync(ctx, wallet)
			return nil
		})
	}
	_ = g.Wait()

	sum := RoundSummary{Wallets: len(o.wallets)}
	for i, res := range results {
		if errs[i] != nil {
			sum.Failed++
			o.logger.Error("wallet sync failed",
				slog.String("wallet", o.wallets[i]),
				slog.String("error", errs[i].Error()),
			)
			continue
		}
		sum.Inserted += res.Inserted
		switch {
		case res.Skipped:
			sum.Skipped++
		case res.Degraded:
			sum.Degraded++
		case res.Partial:
			sum.Partial++
		}
	}

	o.logger.Info("sync round complete",
		slog.Int("wallets", sum.Wallets),
		slog.Int64("inserted", sum.Inserted),
		slog.Int("partial", sum.Partial),
		slog.Int("degraded", sum.Degraded),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
		slog.Duration("elapsed", time.Since(start)),
	)
	return sum
}
