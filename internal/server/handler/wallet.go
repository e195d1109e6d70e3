package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/walletledger/internal/domain"
	"github.com/alanyoungcy/walletledger/internal/service"
)

// WalletService is the part of the history service the API exposes.
type WalletService interface {
	Trades(ctx context.Context, wallet string, limit int, refresh bool) ([]domain.TradeEvent, error)
	Sync(ctx context.Context, wallet string) (service.SyncResult, error)
	Replay(ctx context.Context, wallet string) (service.SyncResult, error)
}

// TradeCounter reports how many events are cached for a wallet.
type TradeCounter interface {
	CountTrades(ctx context.Context, wallet string) (int64, error)
}

// WalletHandler serves per-wallet trade history.
type WalletHandler struct {
	svc     WalletService
	counter TradeCounter
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler. counter may be nil.
func NewWalletHandler(svc WalletService, counter TradeCounter, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{svc: svc, counter: counter, logger: logHandler(logger, "wallet")}
}

type tradesResponse struct {
	Wallet string              `json:"wallet"`
	Count  int                 `json:"count"`
	Cached *int64              `json:"cached,omitempty"`
	Trades []domain.TradeEvent `json:"trades"`
}

// ListTrades returns the wallet's events newest first.
// GET /api/wallets/{address}/trades?limit=N&refresh=true
func (h *WalletHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("address")
	trades, err := h.svc.Trades(r.Context(), wallet, parseLimit(r), parseBool(r, "refresh"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if trades == nil {
		trades = []domain.TradeEvent{}
	}

	resp := tradesResponse{Wallet: wallet, Count: len(trades), Trades: trades}
	if h.counter != nil {
		if n, err := h.counter.CountTrades(r.Context(), wallet); err == nil {
			resp.Cached = &n
		} else {
			h.logger.Warn("count cached trades failed", slog.String("wallet", wallet), slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncWallet runs an incremental sync and returns its result.
// POST /api/wallets/{address}/sync
func (h *WalletHandler) SyncWallet(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context(), r.PathValue("address"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReplayWallet rebuilds the wallet's ledger from archived transactions.
// POST /api/wallets/{address}/replay
func (h *WalletHandler) ReplayWallet(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Replay(r.Context(), r.PathValue("address"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
