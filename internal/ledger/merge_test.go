package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

func TestMergeAndMatch_FreshCloseMatchesCachedLot(t *testing.T) {
	cached := []domain.TradeEvent{spot(1, domain.SideLong, "1", "100", "0")}
	fresh := []domain.TradeEvent{spot(2, domain.SideShort, "1", "130", "1")}

	out, _ := MergeAndMatch(cached, fresh, FIFOOptions{})
	require.Len(t, out, 2)
	assertDec(t, "30", out[0].RealizedPnL)
	assertDec(t, "29", out[0].PnL)
}

func TestMergeAndMatch_Idempotent(t *testing.T) {
	cached := []domain.TradeEvent{
		spot(1, domain.SideLong, "2", "100", "0"),
		spot(2, domain.SideShort, "1", "110", "0"),
	}
	fresh := []domain.TradeEvent{
		spot(2, domain.SideShort, "1", "110", "0"),
		spot(3, domain.SideShort, "1", "95", "0.1"),
	}

	first, _ := MergeAndMatch(cached, fresh, FIFOOptions{})
	second, _ := MergeAndMatch(cached, fresh, FIFOOptions{})
	assert.Equal(t, first, second)

	// Feeding the enriched output back in changes nothing.
	third, _ := ApplyFIFO(first, FIFOOptions{})
	assert.Equal(t, first, third)
	assert.Len(t, first, 3)
}

func TestUnseen(t *testing.T) {
	a := spot(1, domain.SideLong, "1", "100", "0")
	b := spot(2, domain.SideLong, "1", "100", "0")

	got := Unseen([]domain.TradeEvent{a}, []domain.TradeEvent{a, b, b})
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}
