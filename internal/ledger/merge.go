package ledger

import "github.com/alanyoungcy/walletledger/internal/domain"

// Union combines cached and freshly reconstructed events, keeping the first
// occurrence of each id. Cached entries win, matching the cache's
// insert-if-absent semantics.
func Union(cached, fresh []domain.TradeEvent) []domain.TradeEvent {
	seen := make(map[string]struct{}, len(cached)+len(fresh))
	out := make([]domain.TradeEvent, 0, len(cached)+len(fresh))
	for _, list := range [][]domain.TradeEvent{cached, fresh} {
		for _, ev := range list {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		}
	}
	return out
}

// Unseen returns the events in fresh whose ids are not present in cached.
func Unseen(cached, fresh []domain.TradeEvent) []domain.TradeEvent {
	known := make(map[string]struct{}, len(cached))
	for _, ev := range cached {
		known[ev.ID] = struct{}{}
	}
	var out []domain.TradeEvent
	for _, ev := range fresh {
		if _, ok := known[ev.ID]; ok {
			continue
		}
		known[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// MergeAndMatch re-runs FIFO matching over the whole union. Matching only the
// fresh slice would be wrong: a new close may consume lots opened by cached
// trades.
func MergeAndMatch(cached, fresh []domain.TradeEvent, opts FIFOOptions) ([]domain.TradeEvent, MatchReport) {
	return ApplyFIFO(Union(cached, fresh), opts)
}
