package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

func TestTradeRow_RoundTripsInsertArgs(t *testing.T) {
	ev := domain.TradeEvent{
		ID:                  "fill-taker-sig-77",
		Wallet:              "Wa11et",
		Kind:                domain.KindSpotFill,
		Symbol:              "SOL/USDC",
		Side:                domain.SideShort,
		Price:               decimal.RequireFromString("103.333333333333333333"),
		Size:                decimal.RequireFromString("1.5"),
		Fee:                 decimal.RequireFromString("0.25"),
		PnL:                 decimal.RequireFromString("-4.75"),
		RealizedPnL:         decimal.RequireFromString("-4.5"),
		Timestamp:           time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC),
		ChainTx:             "sig",
		PositionType:        domain.PositionSpot,
		Slot:                900,
		LogIndex:            3,
		UnmatchedSize:       decimal.RequireFromString("0.5"),
		CostBasisIncomplete: true,
	}

	args := insertArgs(ev.Wallet, ev)
	require.Len(t, args, 17)

	// Feed the insert arguments back through the scan path, in column order.
	r := tradeRow{
		wallet: args[0].(string), id: args[1].(string), kind: args[2].(string),
		symbol: args[3].(string), side: args[4].(string),
		price: args[5].(string), size: args[6].(string), fee: args[7].(string),
		pnl: args[8].(string), realized: args[9].(string),
		ts: args[10].(time.Time), chainTx: args[11].(string), positionType: args[12].(string),
		slot: args[13].(int64), logIndex: args[14].(int32),
		unmatched: args[15].(string), costBasisIncomplete: args[16].(bool),
	}
	got, err := r.event()
	require.NoError(t, err)

	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Side, got.Side)
	assert.Equal(t, ev.Slot, got.Slot)
	assert.Equal(t, ev.LogIndex, got.LogIndex)
	assert.True(t, ev.Price.Equal(got.Price))
	assert.True(t, ev.PnL.Equal(got.PnL))
	assert.True(t, ev.UnmatchedSize.Equal(got.UnmatchedSize))
	assert.True(t, got.CostBasisIncomplete)
}

func TestTradeRow_BadNumeric(t *testing.T) {
	r := tradeRow{id: "x", price: "NaN", size: "1", fee: "0", pnl: "0", realized: "0", unmatched: "0"}
	_, err := r.event()
	assert.ErrorContains(t, err, "price")
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/ledger?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "ledger"}))
	assert.Equal(t, "postgres://override", DSN(ClientConfig{DSN: " postgres://override ", Host: "ignored"}))
}

func TestMigrationNames_Ordered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_trade_events.sql", "002_audit_log.sql"}, names)
}
