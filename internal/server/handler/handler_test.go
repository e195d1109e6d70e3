package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
	"github.com/alanyoungcy/walletledger/internal/service"
)

type stubService struct {
	trades     []domain.TradeEvent
	err        error
	replayErr  error
	gotLimit   int
	gotRefresh bool
}

func (s *stubService) Trades(_ context.Context, wallet string, limit int, refresh bool) ([]domain.TradeEvent, error) {
	s.gotLimit, s.gotRefresh = limit, refresh
	if err := service.ValidateWallet(wallet); err != nil {
		return nil, err
	}
	return s.trades, s.err
}

func (s *stubService) Sync(_ context.Context, wallet string) (service.SyncResult, error) {
	if s.err != nil {
		return service.SyncResult{}, s.err
	}
	return service.SyncResult{Wallet: wallet, Fetched: 3, Inserted: 2, Partial: true, Trades: s.trades}, nil
}

func (s *stubService) Replay(context.Context, string) (service.SyncResult, error) {
	if s.replayErr != nil {
		return service.SyncResult{}, s.replayErr
	}
	return service.SyncResult{}, fmt.Errorf("history_service: replay: %w", domain.ErrLockHeld)
}

type fixedCounter int64

func (c fixedCounter) CountTrades(context.Context, string) (int64, error) { return int64(c), nil }

type countingTrigger int

func (c *countingTrigger) Trigger() { *c++ }

const wallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newMux(svc WalletService, counter TradeCounter, ops *OpsHandler, health *HealthHandler) *http.ServeMux {
	h := NewWalletHandler(svc, counter, quiet())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wallets/{address}/trades", h.ListTrades)
	mux.HandleFunc("POST /api/wallets/{address}/sync", h.SyncWallet)
	mux.HandleFunc("POST /api/wallets/{address}/replay", h.ReplayWallet)
	if ops != nil {
		mux.HandleFunc("POST /api/pipeline/trigger", ops.TriggerSync)
		mux.HandleFunc("GET /api/audit", ops.ListAudit)
	}
	if health != nil {
		mux.HandleFunc("GET /api/health", health.HealthCheck)
	}
	return mux
}

func do(t *testing.T, mux http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestListTrades(t *testing.T) {
	svc := &stubService{trades: []domain.TradeEvent{{
		ID:          "fill-spot-abc-0",
		Kind:        domain.KindSpotFill,
		Price:       decimal.RequireFromString("101.5"),
		Size:        decimal.NewFromInt(2),
		PnL:         decimal.RequireFromString("-0.25"),
		RealizedPnL: decimal.Zero,
		Timestamp:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}}
	rec, body := do(t, newMux(svc, fixedCounter(7), nil, nil), http.MethodGet, "/api/wallets/"+wallet+"/trades?limit=5&refresh=true")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.gotLimit)
	assert.True(t, svc.gotRefresh)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 7, body["cached"])

	trade := body["trades"].([]any)[0].(map[string]any)
	assert.Equal(t, "101.5", trade["price"], "decimals serialize as strings")
	assert.Equal(t, "-0.25", trade["pnl"])
}

func TestListTrades_LimitDefaultsAndCaps(t *testing.T) {
	svc := &stubService{}
	mux := newMux(svc, nil, nil, nil)

	rec, body := do(t, mux, http.MethodGet, "/api/wallets/"+wallet+"/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLimit, svc.gotLimit)
	assert.Equal(t, []any{}, body["trades"])
	assert.NotContains(t, body, "cached")

	do(t, mux, http.MethodGet, "/api/wallets/"+wallet+"/trades?limit=100000")
	assert.Equal(t, maxLimit, svc.gotLimit)
}

func TestListTrades_InvalidWallet(t *testing.T) {
	rec, body := do(t, newMux(&stubService{}, nil, nil, nil), http.MethodGet, "/api/wallets/not-a-wallet/trades")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "invalid wallet")
}

func TestSyncWallet(t *testing.T) {
	rec, body := do(t, newMux(&stubService{}, nil, nil, nil), http.MethodPost, "/api/wallets/"+wallet+"/sync")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, wallet, body["wallet"])
	assert.EqualValues(t, 2, body["inserted"])
	assert.Equal(t, true, body["partial"])

	rec, _ = do(t, newMux(&stubService{err: errors.New("boom")}, nil, nil, nil), http.MethodPost, "/api/wallets/"+wallet+"/sync")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReplayWallet_LockHeld(t *testing.T) {
	rec, _ := do(t, newMux(&stubService{}, nil, nil, nil), http.MethodPost, "/api/wallets/"+wallet+"/replay")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReplayWallet_NoArchive(t *testing.T) {
	svc := &stubService{replayErr: fmt.Errorf("history_service: replay: transaction archive: %w", domain.ErrNotConfigured)}
	rec, body := do(t, newMux(svc, nil, nil, nil), http.MethodPost, "/api/wallets/"+wallet+"/replay")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["error"], "not configured")
}

func TestTriggerSync(t *testing.T) {
	var trig countingTrigger
	rec, _ := do(t, newMux(&stubService{}, nil, NewOpsHandler(nil, &trig, quiet()), nil), http.MethodPost, "/api/pipeline/trigger")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, countingTrigger(1), trig)

	rec, _ = do(t, newMux(&stubService{}, nil, NewOpsHandler(nil, nil, quiet()), nil), http.MethodGet, "/api/audit")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	healthy := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
	}, quiet())
	rec, body := do(t, newMux(&stubService{}, nil, nil, healthy), http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	sick := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, quiet())
	rec, body = do(t, newMux(&stubService{}, nil, nil, sick), http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"postgres": "ok", "redis": "connection refused"}, body["dependencies"])
}
