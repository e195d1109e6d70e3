package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// TradeStore implements domain.TradeCache. Rows are keyed on (wallet, id) and
// never overwritten.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Numeric columns travel as text so no precision is lost between NUMERIC and
// decimal.Decimal.
const tradeSelectCols = `id, wallet, kind, symbol, side,
	price::text, size::text, fee::text, pnl::text, realized_pnl::text,
	ts, chain_tx, position_type, slot, log_index,
	unmatched_size::text, cost_basis_incomplete`

// tradeRow mirrors one trade_events row as scanned.
type tradeRow struct {
	id, wallet, kind, symbol, side  string
	price, size, fee, pnl, realized string
	ts                              time.Time
	chainTx, positionType           string
	slot                            int64
	logIndex                        int32
	unmatched                       string
	costBasisIncomplete             bool
}

func (r *tradeRow) dest() []any {
	return []any{
		&r.id, &r.wallet, &r.kind, &r.symbol, &r.side,
		&r.price, &r.size, &r.fee, &r.pnl, &r.realized,
		&r.ts, &r.chainTx, &r.positionType, &r.slot, &r.logIndex,
		&r.unmatched, &r.costBasisIncomplete,
	}
}

func (r *tradeRow) event() (domain.TradeEvent, error) {
	ev := domain.TradeEvent{
		ID:                  r.id,
		Wallet:              r.wallet,
		Kind:                domain.Kind(r.kind),
		Symbol:              r.symbol,
		Side:                domain.Side(r.side),
		Timestamp:           r.ts.UTC(),
		ChainTx:             r.chainTx,
		PositionType:        domain.PositionType(r.positionType),
		Slot:                uint64(r.slot),
		LogIndex:            int(r.logIndex),
		CostBasisIncomplete: r.costBasisIncomplete,
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"price", r.price, &ev.Price},
		{"size", r.size, &ev.Size},
		{"fee", r.fee, &ev.Fee},
		{"pnl", r.pnl, &ev.PnL},
		{"realized_pnl", r.realized, &ev.RealizedPnL},
		{"unmatched_size", r.unmatched, &ev.UnmatchedSize},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.TradeEvent{}, fmt.Errorf("trade %s: %s: %w", r.id, f.name, err)
		}
		*f.dst = d
	}
	return ev, nil
}

func insertArgs(wallet string, t domain.TradeEvent) []any {
	return []any{
		wallet, t.ID, string(t.Kind), t.Symbol, string(t.Side),
		t.Price.String(), t.Size.String(), t.Fee.String(), t.PnL.String(), t.RealizedPnL.String(),
		t.Timestamp, t.ChainTx, string(t.PositionType), int64(t.Slot), int32(t.LogIndex),
		t.UnmatchedSize.String(), t.CostBasisIncomplete,
	}
}

// UpsertTrades inserts trades that are not yet cached for wallet and returns
// how many rows were new. Existing rows are left untouched.
func (s *TradeStore) UpsertTrades(ctx context.Context, wallet string, trades []domain.TradeEvent) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO trade_events (
			wallet, id, kind, symbol, side,
			price, size, fee, pnl, realized_pnl,
			ts, chain_tx, position_type, slot, log_index,
			unmatched_size, cost_basis_incomplete
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric,
			$11, $12, $13, $14, $15,
			$16::numeric, $17
		) ON CONFLICT (wallet, id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query, insertArgs(wallet, t)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range trades {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: upsert trade %s: %w", trades[i].ID, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// GetLatestSignature returns the transaction signature of the newest cached
// event for wallet, or "" when nothing is cached.
func (s *TradeStore) GetLatestSignature(ctx context.Context, wallet string) (string, error) {
	var sig string
	err := s.pool.QueryRow(ctx, `
		SELECT chain_tx FROM trade_events
		WHERE wallet = $1
		ORDER BY ts DESC, slot DESC, log_index DESC
		LIMIT 1`, wallet,
	).Scan(&sig)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: latest signature for %s: %w", wallet, err)
	}
	return sig, nil
}

// GetCachedTrades returns up to limit of wallet's newest events, newest
// first. A non-positive limit returns everything.
func (s *TradeStore) GetCachedTrades(ctx context.Context, wallet string, limit int) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trade_events
		WHERE wallet = $1
		ORDER BY ts DESC, slot DESC, log_index DESC, id DESC`
	args := []any{wallet}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: cached trades for %s: %w", wallet, err)
	}
	defer rows.Close()

	var trades []domain.TradeEvent
	for rows.Next() {
		var r tradeRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		ev, err := r.event()
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		trades = append(trades, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: cached trades rows: %w", err)
	}
	return trades, nil
}

// CountTrades returns how many events are cached for wallet.
func (s *TradeStore) CountTrades(ctx context.Context, wallet string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM trade_events WHERE wallet = $1", wallet,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count trades for %s: %w", wallet, err)
	}
	return n, nil
}

var _ domain.TradeCache = (*TradeStore)(nil)
