package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func spot(n int, side domain.Side, size, price, fee string) domain.TradeEvent {
	return domain.TradeEvent{
		ID:           fmt.Sprintf("fill-spot-sig%d-0", n),
		Kind:         domain.KindSpotFill,
		PositionType: domain.PositionSpot,
		Symbol:       "SOL/USDC",
		Side:         side,
		Size:         dec(size),
		Price:        dec(price),
		Fee:          dec(fee),
		Timestamp:    t0.Add(time.Duration(n) * time.Minute),
		Slot:         uint64(100 + n),
	}
}

func byID(events []domain.TradeEvent) map[string]domain.TradeEvent {
	m := make(map[string]domain.TradeEvent, len(events))
	for _, ev := range events {
		m[ev.ID] = ev
	}
	return m
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func TestApplyFIFO_SimpleRoundTrip(t *testing.T) {
	buy := spot(1, domain.SideLong, "1", "100", "0")
	sell := spot(2, domain.SideShort, "1", "110", "0")

	out, report := ApplyFIFO([]domain.TradeEvent{buy, sell}, FIFOOptions{})
	got := byID(out)

	assertDec(t, "0", got[buy.ID].RealizedPnL)
	assertDec(t, "10", got[sell.ID].RealizedPnL)
	assertDec(t, "10", got[sell.ID].PnL)
	assert.Equal(t, 1, report.Opened)
	assert.Equal(t, 1, report.Closed)
}

func TestApplyFIFO_ShortSide(t *testing.T) {
	open := spot(1, domain.SideShort, "1", "100", "0")
	closeEv := spot(2, domain.SideLong, "1", "90", "0")

	out, _ := ApplyFIFO([]domain.TradeEvent{open, closeEv}, FIFOOptions{})
	got := byID(out)

	assertDec(t, "0", got[open.ID].RealizedPnL)
	assertDec(t, "10", got[closeEv.ID].RealizedPnL)
}

func TestApplyFIFO_ShortFirstIsReported(t *testing.T) {
	sell := spot(1, domain.SideShort, "1", "100", "0")
	buy := spot(2, domain.SideLong, "1", "90", "0")
	eth := spot(3, domain.SideLong, "2", "3000", "0")
	eth.Symbol = "ETH/USDC"
	ethSell := spot(4, domain.SideShort, "1", "3100", "0")
	ethSell.Symbol = "ETH/USDC"

	_, report := ApplyFIFO([]domain.TradeEvent{sell, buy, eth, ethSell}, FIFOOptions{})
	assert.Equal(t, 1, report.ShortFirst)
	assert.Zero(t, report.Unmatched)
}

func TestApplyFIFO_PartialFills(t *testing.T) {
	buy := spot(1, domain.SideLong, "2", "100", "0")
	sell1 := spot(2, domain.SideShort, "1", "110", "0")
	sell2 := spot(3, domain.SideShort, "1", "120", "0")

	out, _ := ApplyFIFO([]domain.TradeEvent{buy, sell1, sell2}, FIFOOptions{})
	got := byID(out)

	assertDec(t, "10", got[sell1.ID].RealizedPnL)
	assertDec(t, "20", got[sell2.ID].RealizedPnL)
}

func TestApplyFIFO_MultiLotOrdering(t *testing.T) {
	buy1 := spot(1, domain.SideLong, "1", "100", "0")
	buy2 := spot(2, domain.SideLong, "1", "110", "0")
	sell := spot(3, domain.SideShort, "1.5", "120", "0")

	out, _ := ApplyFIFO([]domain.TradeEvent{sell, buy2, buy1}, FIFOOptions{})
	assertDec(t, "25", byID(out)[sell.ID].RealizedPnL)
}

func TestApplyFIFO_FeeDeduction(t *testing.T) {
	buy := spot(1, domain.SideLong, "1", "100", "0")
	sell := spot(2, domain.SideShort, "1", "110", "2")

	out, _ := ApplyFIFO([]domain.TradeEvent{buy, sell}, FIFOOptions{})
	got := byID(out)[sell.ID]

	assertDec(t, "10", got.RealizedPnL)
	assertDec(t, "8", got.PnL)
}

func TestApplyFIFO_OpeningFeeDoesNotReducePnL(t *testing.T) {
	buy := spot(1, domain.SideLong, "1", "100", "3")

	out, _ := ApplyFIFO([]domain.TradeEvent{buy}, FIFOOptions{})
	assertDec(t, "0", out[0].PnL)
	assertDec(t, "0", out[0].RealizedPnL)
}

func TestApplyFIFO_FeeOverride(t *testing.T) {
	buy := spot(1, domain.SideLong, "1", "100", "0")
	sell := spot(2, domain.SideShort, "1", "110", "2")

	out, _ := ApplyFIFO([]domain.TradeEvent{buy, sell}, FIFOOptions{
		FeeOverride: func(ev domain.TradeEvent) (decimal.Decimal, bool) {
			return dec("0.5"), true
		},
	})
	assertDec(t, "9.5", byID(out)[sell.ID].PnL)
}

func TestApplyFIFO_InsufficientInventoryIsCapped(t *testing.T) {
	buy := spot(1, domain.SideLong, "1", "100", "0")
	sell := spot(2, domain.SideShort, "3", "105", "1")

	out, report := ApplyFIFO([]domain.TradeEvent{buy, sell}, FIFOOptions{})
	got := byID(out)[sell.ID]

	assertDec(t, "5", got.RealizedPnL)
	assertDec(t, "4", got.PnL)
	assertDec(t, "2", got.UnmatchedSize)
	assert.True(t, got.CostBasisIncomplete)
	assert.Equal(t, 1, report.Unmatched)

	// The overflow must not open a short lot.
	buyBack := spot(3, domain.SideLong, "1", "90", "0")
	out, _ = ApplyFIFO([]domain.TradeEvent{buy, sell, buyBack}, FIFOOptions{})
	assertDec(t, "0", byID(out)[buyBack.ID].RealizedPnL)
}

func TestApplyFIFO_SymbolsAreIndependent(t *testing.T) {
	buySOL := spot(1, domain.SideLong, "1", "100", "0")
	buyETH := spot(2, domain.SideLong, "1", "2000", "0")
	buyETH.Symbol = "ETH/USDC"
	sellETH := spot(3, domain.SideShort, "1", "2100", "0")
	sellETH.Symbol = "ETH/USDC"

	out, _ := ApplyFIFO([]domain.TradeEvent{buySOL, buyETH, sellETH}, FIFOOptions{})
	assertDec(t, "100", byID(out)[sellETH.ID].RealizedPnL)
}

func TestApplyFIFO_NonSpotPassThrough(t *testing.T) {
	perp := spot(1, domain.SideShort, "1", "100", "1")
	perp.ID = "fill-perp-sig1-0"
	perp.PositionType = domain.PositionPerp
	perp.Kind = domain.KindPerpFill
	perp.PnL = dec("42")

	out, _ := ApplyFIFO([]domain.TradeEvent{perp}, FIFOOptions{})
	require.Len(t, out, 1)
	assertDec(t, "42", out[0].PnL)
}

func TestApplyFIFO_SortsDescendingAndLeavesInputAlone(t *testing.T) {
	buy := spot(1, domain.SideLong, "1", "100", "0")
	sell := spot(2, domain.SideShort, "1", "110", "0")
	in := []domain.TradeEvent{buy, sell}

	out, _ := ApplyFIFO(in, FIFOOptions{})
	require.Len(t, out, 2)
	assert.Equal(t, sell.ID, out[0].ID)
	assert.Equal(t, buy.ID, out[1].ID)
	assertDec(t, "0", in[1].RealizedPnL)
}

func TestApplyFIFO_TiesBrokenBySlotAndLogIndex(t *testing.T) {
	buy := spot(1, domain.SideLong, "1", "100", "0")
	sell := spot(1, domain.SideShort, "1", "110", "0")
	sell.ID = "fill-spot-sig1-1"
	sell.LogIndex = 1

	a, _ := ApplyFIFO([]domain.TradeEvent{buy, sell}, FIFOOptions{})
	b, _ := ApplyFIFO([]domain.TradeEvent{sell, buy}, FIFOOptions{})
	assert.Equal(t, a, b)
	assertDec(t, "10", byID(a)[sell.ID].RealizedPnL)
}

func TestApplyFIFO_ManySmallPartialsStayExact(t *testing.T) {
	events := []domain.TradeEvent{spot(0, domain.SideLong, "1", "1", "0")}
	for i := 1; i <= 1000; i++ {
		events = append(events, spot(i, domain.SideShort, "0.001", "1.1", "0"))
	}

	out, report := ApplyFIFO(events, FIFOOptions{})
	total := decimal.Zero
	for _, ev := range out {
		total = total.Add(ev.RealizedPnL)
		assert.False(t, ev.CostBasisIncomplete, ev.ID)
	}
	assertDec(t, "0.1", total)
	assert.Equal(t, 1000, report.Closed)
}
