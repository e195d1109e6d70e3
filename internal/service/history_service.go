package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/walletledger/internal/domain"
	"github.com/alanyoungcy/walletledger/internal/ledger"
	"github.com/alanyoungcy/walletledger/internal/metrics"
	"github.com/alanyoungcy/walletledger/internal/notify"
)

// walletPattern matches a base58 encoded 32 byte public key.
var walletPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ChainSource is the RPC side of a sync.
type ChainSource interface {
	FetchHistory(ctx context.Context, address, until string) ([]domain.RawTransaction, error)
	ResolveClientID(ctx context.Context, wallet string) (uint64, error)
}

// Alerter delivers operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// HistoryConfig tunes the service.
type HistoryConfig struct {
	// CacheLimit bounds how many cached events are merged with fresh ones.
	// Zero merges the whole cached history; a positive limit drops the oldest
	// lots from matching.
	CacheLimit int
	LockTTL    time.Duration

	// Static catalog used when the instrument cache is empty or unreachable.
	Instruments []domain.Instrument
	Tokens      []domain.Token
}

// HistoryDeps are the collaborators of a HistoryService. Chain, Trades and
// Decode are required; the rest may be nil.
type HistoryDeps struct {
	Chain       ChainSource
	Trades      domain.TradeCache
	Decode      ledger.DecodeFunc
	Audit       domain.AuditStore
	ClientIDs   domain.ClientIDCache
	Instruments domain.InstrumentCache
	Locks       domain.LockManager
	Archive     domain.TransactionArchive
	Metrics     *metrics.Registry
	Alerts      Alerter
}

// SyncResult describes one sync or replay.
type SyncResult struct {
	RunID      string              `json:"runId"`
	Wallet     string              `json:"wallet"`
	ClientID   uint64              `json:"clientId"`
	Trades     []domain.TradeEvent `json:"trades"`
	Fetched    int                 `json:"fetched"`
	Inserted   int64               `json:"inserted"`
	ArchiveKey string              `json:"archiveKey,omitempty"`

	// Partial is set when fetching stopped early and only a prefix of the
	// new transactions was processed.
	Partial bool `json:"partial"`
	// Degraded is set when nothing could be fetched and Trades come from the
	// cache alone.
	Degraded bool `json:"degraded"`
	// Skipped is set when another sync of the same wallet was running.
	Skipped bool   `json:"skipped"`
	Warning string `json:"warning,omitempty"`

	Diagnostics *ledger.Diagnostics `json:"-"`
	Report      ledger.MatchReport  `json:"-"`
}

// HistoryService turns a wallet's on-chain history into a PnL-annotated trade
// ledger and keeps the trade cache current.
type HistoryService struct {
	deps   HistoryDeps
	cfg    HistoryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(deps HistoryDeps, cfg HistoryConfig, logger *slog.Logger) *HistoryService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &HistoryService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "history_service")),
		now:    time.Now,
	}
}

// ValidateWallet rejects strings that cannot be a wallet address.
func ValidateWallet(wallet string) error {
	if !walletPattern.MatchString(wallet) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidWallet, wallet)
	}
	return nil
}

// Trades returns up to limit of wallet's events, newest first. The cache is
// served as-is unless refresh is set or nothing is cached yet, in which case
// a sync runs first.
func (s *HistoryService) Trades(ctx context.Context, wallet string, limit int, refresh bool) ([]domain.TradeEvent, error) {
	if err := ValidateWallet(wallet); err != nil {
		return nil, err
	}

	if !refresh {
		trades, _ := s.cachedView(ctx, wallet)
		if len(trades) > 0 {
			return head(trades, limit), nil
		}
	}

	res, err := s.Sync(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return head(res.Trades, limit), nil
}

// Sync fetches wallet's transactions newer than the newest cached one,
// reconstructs them, rematches FIFO over cached plus fresh events, and stores
// the events the cache did not have. Fetch problems never fail the call; the
// result is flagged instead.
func (s *HistoryService) Sync(ctx context.Context, wallet string) (SyncResult, error) {
	if err := ValidateWallet(wallet); err != nil {
		return SyncResult{}, err
	}

	start := s.now()
	res := SyncResult{RunID: uuid.NewString(), Wallet: wallet}
	log := s.logger.With(slog.String("wallet", wallet), slog.String("run_id", res.RunID))

	unlock, err := s.lock(ctx, wallet)
	if errors.Is(err, domain.ErrLockHeld) {
		log.Info("sync already running, serving cache")
		res.Skipped = true
		res.Trades, res.Report = s.cachedView(ctx, wallet)
		return res, nil
	}
	if err != nil {
		log.Warn("sync lock unavailable, continuing without it", slog.String("error", err.Error()))
	}
	if unlock != nil {
		defer unlock()
	}

	latest, err := s.deps.Trades.GetLatestSignature(ctx, wallet)
	if err != nil {
		log.Warn("latest cached signature unavailable, fetching full history", slog.String("error", err.Error()))
		latest = ""
	}

	res.ClientID, err = s.clientID(ctx, wallet)
	if errors.Is(err, domain.ErrClientNotFound) {
		log.Info("wallet has no protocol account")
		res.Trades = []domain.TradeEvent{}
		s.observe("empty", start, res)
		return res, nil
	}
	if err != nil {
		return s.degrade(ctx, log, start, res, fmt.Errorf("resolve client id: %w", err)), nil
	}

	txs, fetchErr := s.deps.Chain.FetchHistory(ctx, wallet, latest)
	if fetchErr != nil && len(txs) == 0 {
		return s.degrade(ctx, log, start, res, fmt.Errorf("fetch history: %w", fetchErr)), nil
	}
	if fetchErr != nil {
		res.Partial = true
		res.Warning = fmt.Sprintf("history fetch stopped early: %v", fetchErr)
		log.Warn("processing partial history",
			slog.Int("fetched", len(txs)),
			slog.String("error", fetchErr.Error()),
		)
	}
	res.Fetched = len(txs)
	res.ArchiveKey = s.archive(ctx, log, wallet, txs)

	session := s.session(ctx, wallet, res.ClientID)
	fresh := session.ReconstructBatch(txs, s.deps.Decode)

	cached, err := s.deps.Trades.GetCachedTrades(ctx, wallet, s.cfg.CacheLimit)
	if err != nil {
		log.Warn("cached trades unavailable, matching fresh events only", slog.String("error", err.Error()))
		cached = nil
	}

	res.Trades, res.Report = ledger.MergeAndMatch(cached, fresh, ledger.FIFOOptions{})
	res.Diagnostics = session.Diagnostics()

	res.Inserted = s.store(ctx, log, wallet, ledger.Unseen(cached, res.Trades))
	s.finish(ctx, log, start, "sync", res)
	return res, nil
}

// Replay rebuilds wallet's ledger from archived raw transactions without
// touching the RPC node.
func (s *HistoryService) Replay(ctx context.Context, wallet string) (SyncResult, error) {
	if err := ValidateWallet(wallet); err != nil {
		return SyncResult{}, err
	}
	if s.deps.Archive == nil {
		return SyncResult{}, fmt.Errorf("history_service: replay: transaction archive: %w", domain.ErrNotConfigured)
	}

	start := s.now()
	res := SyncResult{RunID: uuid.NewString(), Wallet: wallet}
	log := s.logger.With(slog.String("wallet", wallet), slog.String("run_id", res.RunID))

	unlock, err := s.lock(ctx, wallet)
	if errors.Is(err, domain.ErrLockHeld) {
		return SyncResult{}, fmt.Errorf("history_service: replay %s: %w", wallet, err)
	}
	if unlock != nil {
		defer unlock()
	}

	res.ClientID, err = s.clientID(ctx, wallet)
	if err != nil {
		return SyncResult{}, fmt.Errorf("history_service: replay %s: %w", wallet, err)
	}

	txs, err := s.deps.Archive.LoadTransactions(ctx, wallet)
	if err != nil {
		return SyncResult{}, fmt.Errorf("history_service: replay %s: %w", wallet, err)
	}
	res.Fetched = len(txs)

	session := s.session(ctx, wallet, res.ClientID)
	res.Trades, res.Report = ledger.ApplyFIFO(session.ReconstructBatch(txs, s.deps.Decode), ledger.FIFOOptions{})
	res.Diagnostics = session.Diagnostics()

	res.Inserted = s.store(ctx, log, wallet, res.Trades)
	s.finish(ctx, log, start, "replay", res)
	return res, nil
}

func (s *HistoryService) lock(ctx context.Context, wallet string) (func(), error) {
	if s.deps.Locks == nil {
		return nil, nil
	}
	return s.deps.Locks.Acquire(ctx, "sync:"+wallet, s.cfg.LockTTL)
}

// clientID consults the cache before the RPC node and remembers what the node
// returns.
func (s *HistoryService) clientID(ctx context.Context, wallet string) (uint64, error) {
	if s.deps.ClientIDs != nil {
		id, err := s.deps.ClientIDs.GetClientID(ctx, wallet)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("client id cache read failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
	}

	id, err := s.deps.Chain.ResolveClientID(ctx, wallet)
	if err != nil {
		return 0, err
	}

	if s.deps.ClientIDs != nil {
		if err := s.deps.ClientIDs.SetClientID(ctx, wallet, id); err != nil {
			s.logger.Warn("client id cache write failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
	}
	return id, nil
}

// session snapshots the instrument catalog for one run.
func (s *HistoryService) session(ctx context.Context, wallet string, clientID uint64) *ledger.Session {
	instruments, tokens := s.cfg.Instruments, s.cfg.Tokens
	if s.deps.Instruments != nil {
		cachedInst, cachedTok, err := s.deps.Instruments.Instruments(ctx)
		switch {
		case err == nil && len(cachedInst) > 0:
			instruments, tokens = cachedInst, cachedTok
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("instrument cache read failed, using static catalog", slog.String("error", err.Error()))
		}
	}
	return ledger.NewSession(wallet, clientID, instruments, tokens, s.logger)
}

func (s *HistoryService) archive(ctx context.Context, log *slog.Logger, wallet string, txs []domain.RawTransaction) string {
	if s.deps.Archive == nil || len(txs) == 0 {
		return ""
	}
	key, err := s.deps.Archive.ArchiveTransactions(ctx, wallet, txs, s.now())
	if err != nil {
		log.Warn("raw transaction archive failed", slog.String("error", err.Error()))
		return ""
	}
	return key
}

func (s *HistoryService) store(ctx context.Context, log *slog.Logger, wallet string, events []domain.TradeEvent) int64 {
	if len(events) == 0 {
		return 0
	}
	n, err := s.deps.Trades.UpsertTrades(ctx, wallet, events)
	if err != nil {
		log.Error("trade cache upsert failed", slog.Int("events", len(events)), slog.String("error", err.Error()))
		s.alert(ctx, notify.EventSyncDegraded, "Trade cache write failed",
			fmt.Sprintf("wallet %s: %v", wallet, err))
	}
	return n
}

// cachedView serves the cache through the matcher so PnL reflects every
// cached event.
func (s *HistoryService) cachedView(ctx context.Context, wallet string) ([]domain.TradeEvent, ledger.MatchReport) {
	cached, err := s.deps.Trades.GetCachedTrades(ctx, wallet, s.cfg.CacheLimit)
	if err != nil {
		s.logger.Warn("cached trades unavailable",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return []domain.TradeEvent{}, ledger.MatchReport{}
	}
	if len(cached) == 0 {
		return []domain.TradeEvent{}, ledger.MatchReport{}
	}
	return ledger.ApplyFIFO(cached, ledger.FIFOOptions{})
}

func (s *HistoryService) degrade(ctx context.Context, log *slog.Logger, start time.Time, res SyncResult, cause error) SyncResult {
	log.Error("sync failed, serving cache", slog.String("error", cause.Error()))
	res.Degraded = true
	res.Warning = cause.Error()
	res.Trades, res.Report = s.cachedView(ctx, res.Wallet)

	s.audit(ctx, "wallet.sync_failed", map[string]any{
		"wallet": res.Wallet,
		"run_id": res.RunID,
		"error":  cause.Error(),
	})
	s.alert(ctx, notify.EventSyncFailed, "Wallet sync failed",
		fmt.Sprintf("wallet %s: %v (serving %d cached events)", res.Wallet, cause, len(res.Trades)))
	s.observe("failed", start, res)
	return res
}

func (s *HistoryService) finish(ctx context.Context, log *slog.Logger, start time.Time, op string, res SyncResult) {
	diag := res.Diagnostics
	log.Info(op+" complete",
		slog.Int("fetched", res.Fetched),
		slog.Int("events", len(res.Trades)),
		slog.Int64("inserted", res.Inserted),
		slog.Int("decode_failures", diag.DecodeFailures),
		slog.Int("unknown_tags", diag.UnknownTagTotal()),
		slog.Int("unmatched_closes", res.Report.Unmatched),
		slog.Int("short_first_symbols", res.Report.ShortFirst),
		slog.Bool("partial", res.Partial),
		slog.Duration("elapsed", s.now().Sub(start)),
	)

	s.audit(ctx, "wallet."+op, map[string]any{
		"wallet":       res.Wallet,
		"run_id":       res.RunID,
		"fetched":      res.Fetched,
		"inserted":     res.Inserted,
		"partial":      res.Partial,
		"archive_key":  res.ArchiveKey,
		"unknown_tags": diag.UnknownTagTotal(),
	})

	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveDiagnostics(diag, res.Report)
	}
	result := "ok"
	if res.Partial {
		result = "partial"
		s.alert(ctx, notify.EventSyncDegraded, "Wallet sync incomplete",
			fmt.Sprintf("wallet %s: %s", res.Wallet, res.Warning))
	}
	s.observe(result, start, res)

	if n := diag.UnknownTagTotal(); n > 0 {
		s.alert(ctx, notify.EventUnknownTags, "Unrecognized protocol events",
			fmt.Sprintf("wallet %s: %d records with unknown tags %v", res.Wallet, n, diag.UnknownTags))
	}
	if res.Report.Unmatched > 0 || res.Report.ShortFirst > 0 {
		s.alert(ctx, notify.EventCostBasisGaps, "Closes without cost basis",
			fmt.Sprintf("wallet %s: %d closing events exceeded known inventory, %d symbols start with a sell",
				res.Wallet, res.Report.Unmatched, res.Report.ShortFirst))
	}
}

func (s *HistoryService) observe(result string, start time.Time, res SyncResult) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveSync(result, s.now().Sub(start), res.Fetched, res.Inserted)
	}
}

func (s *HistoryService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (s *HistoryService) alert(ctx context.Context, event, title, message string) {
	if s.deps.Alerts == nil {
		return
	}
	if err := s.deps.Alerts.Notify(ctx, event, title, message); err != nil {
		s.logger.Warn("alert delivery failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func head(trades []domain.TradeEvent, limit int) []domain.TradeEvent {
	if limit > 0 && len(trades) > limit {
		return trades[:limit]
	}
	return trades
}
