package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// lotEpsilon absorbs residue left on a lot after matching.
var lotEpsilon = decimal.New(1, -9)

// lot is an open quantity acquired at one price. Lots are owned by their
// symbol's queue and never referenced elsewhere.
type lot struct {
	price decimal.Decimal
	qty   decimal.Decimal
}

// inventory is one symbol's FIFO queue. All lots share the side that opened
// them; the oldest lot is always at index 0.
type inventory struct {
	side domain.Side
	lots []lot
}

// FIFOOptions tunes the matcher.
type FIFOOptions struct {
	// FeeOverride, when it returns true, replaces an event's own fee in the
	// net PnL calculation.
	FeeOverride func(ev domain.TradeEvent) (decimal.Decimal, bool)
}

// MatchReport summarizes one matcher run.
type MatchReport struct {
	Opened    int
	Closed    int
	Unmatched int

	// ShortFirst counts symbols whose earliest known spot event is a Short.
	// That Short opens a short lot, so if it really sold inventory bought
	// before the known history, later Longs realize PnL against it.
	ShortFirst int
}

// ApplyFIFO assigns realized and net PnL to every spot event using FIFO lot
// matching per symbol. The input slice is not modified. Events are processed
// in ascending (timestamp, slot, log index, id) order and returned most recent
// first. Non-spot events pass through untouched.
//
// No state survives between calls, so running it twice over the same set
// gives identical results.
func ApplyFIFO(events []domain.TradeEvent, opts FIFOOptions) ([]domain.TradeEvent, MatchReport) {
	out := make([]domain.TradeEvent, len(events))
	copy(out, events)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })

	var report MatchReport
	books := make(map[string]*inventory)

	for i := range out {
		ev := &out[i]
		if ev.PositionType != domain.PositionSpot {
			continue
		}
		ev.RealizedPnL = decimal.Zero
		ev.PnL = decimal.Zero
		ev.UnmatchedSize = decimal.Zero
		ev.CostBasisIncomplete = false

		if !ev.Size.IsPositive() {
			continue
		}

		inv, ok := books[ev.Symbol]
		if !ok {
			inv = &inventory{}
			books[ev.Symbol] = inv
			if ev.Side == domain.SideShort {
				report.ShortFirst++
			}
		}

		if len(inv.lots) == 0 || inv.side == ev.Side {
			inv.side = ev.Side
			inv.lots = append(inv.lots, lot{price: ev.Price, qty: ev.Size})
			report.Opened++
			continue
		}

		inv.close(ev)
		report.Closed++
		if ev.CostBasisIncomplete {
			report.Unmatched++
		}

		fee := ev.Fee
		if opts.FeeOverride != nil {
			if f, ok := opts.FeeOverride(*ev); ok {
				fee = f
			}
		}
		ev.PnL = ev.RealizedPnL.Sub(fee)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, report
}

// close matches ev against the oldest lots. Any quantity left once the queue
// is empty is recorded as unmatched rather than opening a reverse position.
func (inv *inventory) close(ev *domain.TradeEvent) {
	remaining := ev.Size
	realized := decimal.Zero

	for remaining.IsPositive() && len(inv.lots) > 0 {
		head := &inv.lots[0]
		matched := decimal.Min(remaining, head.qty)

		// A Short event sells Long lots; a Long event buys back Short lots.
		if ev.Side == domain.SideShort {
			realized = realized.Add(ev.Price.Sub(head.price).Mul(matched))
		} else {
			realized = realized.Add(head.price.Sub(ev.Price).Mul(matched))
		}

		head.qty = head.qty.Sub(matched)
		remaining = remaining.Sub(matched)
		if head.qty.LessThanOrEqual(lotEpsilon) {
			inv.lots = inv.lots[1:]
		}
	}

	ev.RealizedPnL = realized
	if remaining.GreaterThan(lotEpsilon) {
		ev.UnmatchedSize = remaining
		ev.CostBasisIncomplete = true
	}
}
