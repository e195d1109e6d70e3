package ledger

import "github.com/alanyoungcy/walletledger/internal/domain"

// Diagnostics counts every condition the ledger recovers from locally. None of
// them fail a run; they are surfaced so operators can spot protocol changes
// and gaps in history.
type Diagnostics struct {
	DecodeFailures       int
	ConversionFailures   int
	MissingInstruments   int
	DegenerateRecords    int
	DuplicateTakerOrders int
	MismatchedMakerFills int
	UnmatchedCloses      int
	UnknownTags          map[domain.Tag]int
}

func newDiagnostics() *Diagnostics {
	return &Diagnostics{UnknownTags: make(map[domain.Tag]int)}
}

// UnknownTagTotal returns the number of records carrying unrecognized tags.
func (d *Diagnostics) UnknownTagTotal() int {
	n := 0
	for _, c := range d.UnknownTags {
		n += c
	}
	return n
}
