package ledger

import "github.com/alanyoungcy/walletledger/internal/domain"

// Classified is the closed set of shapes a decoded record can take once it has
// been scoped to a wallet. Only types in this file implement it.
type Classified interface {
	record() domain.DecodedLogRecord
}

type (
	// Transfer is a deposit or withdrawal on the spot or perp account.
	Transfer struct {
		domain.DecodedLogRecord
		Kind         domain.Kind
		PositionType domain.PositionType
	}
	// FeePaid accrues to the transaction's taker order.
	FeePaid struct{ domain.DecodedLogRecord }
	// TakerOrder is the wallet's own crossing order.
	TakerOrder struct{ domain.DecodedLogRecord }
	// MakerFill is an execution against a resting order. It is kept no matter
	// which client owns the resting side.
	MakerFill struct{ domain.DecodedLogRecord }
	// SpotFill is a single-sided spot settlement owned by the wallet.
	SpotFill struct{ domain.DecodedLogRecord }
	// PerpFill is a single-sided perp settlement owned by the wallet.
	PerpFill struct{ domain.DecodedLogRecord }
	// Funding is a periodic perp funding settlement.
	Funding struct{ domain.DecodedLogRecord }
	// Cancel is recognized but produces no event.
	Cancel struct{ domain.DecodedLogRecord }
	// Foreign belongs to another client in the same transaction.
	Foreign struct{ domain.DecodedLogRecord }
	// Unrecognized carries a tag outside the known set.
	Unrecognized struct{ domain.DecodedLogRecord }
)

func (c Transfer) record() domain.DecodedLogRecord     { return c.DecodedLogRecord }
func (c FeePaid) record() domain.DecodedLogRecord      { return c.DecodedLogRecord }
func (c TakerOrder) record() domain.DecodedLogRecord   { return c.DecodedLogRecord }
func (c MakerFill) record() domain.DecodedLogRecord    { return c.DecodedLogRecord }
func (c SpotFill) record() domain.DecodedLogRecord     { return c.DecodedLogRecord }
func (c PerpFill) record() domain.DecodedLogRecord     { return c.DecodedLogRecord }
func (c Funding) record() domain.DecodedLogRecord      { return c.DecodedLogRecord }
func (c Cancel) record() domain.DecodedLogRecord       { return c.DecodedLogRecord }
func (c Foreign) record() domain.DecodedLogRecord      { return c.DecodedLogRecord }
func (c Unrecognized) record() domain.DecodedLogRecord { return c.DecodedLogRecord }

// Classify routes a record by (tag, clientID). It has no side effects.
func Classify(rec domain.DecodedLogRecord, clientID uint64) Classified {
	if !rec.Tag.Known() {
		return Unrecognized{rec}
	}
	// The taker's average price is derived from every fill against its
	// order, including fills whose resting side belongs to someone else.
	if rec.Tag == domain.TagMakerFill {
		return MakerFill{rec}
	}
	if rec.ClientID != clientID {
		return Foreign{rec}
	}

	switch rec.Tag {
	case domain.TagDeposit:
		return Transfer{rec, domain.KindDeposit, domain.PositionDeposit}
	case domain.TagWithdraw:
		return Transfer{rec, domain.KindWithdraw, domain.PositionWithdraw}
	case domain.TagPerpDeposit:
		return Transfer{rec, domain.KindPerpDeposit, domain.PositionDeposit}
	case domain.TagPerpWithdraw:
		return Transfer{rec, domain.KindPerpWithdraw, domain.PositionWithdraw}
	case domain.TagSpotFill:
		return SpotFill{rec}
	case domain.TagTakerOrder:
		return TakerOrder{rec}
	case domain.TagCancel:
		return Cancel{rec}
	case domain.TagFeePaid:
		return FeePaid{rec}
	case domain.TagPerpFill:
		return PerpFill{rec}
	case domain.TagFunding:
		return Funding{rec}
	default:
		return Unrecognized{rec}
	}
}
