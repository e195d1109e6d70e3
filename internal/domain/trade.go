package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a reconstructed trade event.
type Kind string

const (
	KindDeposit      Kind = "Deposit"
	KindWithdraw     Kind = "Withdraw"
	KindPerpDeposit  Kind = "PerpDeposit"
	KindPerpWithdraw Kind = "PerpWithdraw"
	KindSpotFill     Kind = "SpotFill"
	KindPerpFill     Kind = "PerpFill"
	KindFunding      Kind = "Funding"
)

// Side is the direction of a trade event.
type Side string

const (
	SideLong  Side = "Long"
	SideShort Side = "Short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// PositionType gates which events the FIFO engine touches.
type PositionType string

const (
	PositionSpot     PositionType = "Spot"
	PositionPerp     PositionType = "Perp"
	PositionDeposit  PositionType = "Deposit"
	PositionWithdraw PositionType = "Withdraw"
	PositionFunding  PositionType = "Funding"
)

// TradeEvent is one reconstructed, wallet-scoped ledger entry. Its ID is
// derived from on-chain data only, so repeated reconstruction yields the same
// value and cache upserts stay idempotent.
type TradeEvent struct {
	ID           string          `json:"id"`
	Wallet       string          `json:"wallet"`
	Kind         Kind            `json:"kind"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	Fee          decimal.Decimal `json:"fee"`
	PnL          decimal.Decimal `json:"pnl"`
	RealizedPnL  decimal.Decimal `json:"realizedPnl"`
	Timestamp    time.Time       `json:"timestamp"`
	ChainTx      string          `json:"chainTx"`
	PositionType PositionType    `json:"positionType"`
	Slot         uint64          `json:"slot"`
	LogIndex     int             `json:"logIndex"`

	// UnmatchedSize is the part of a closing size that found no open lot.
	UnmatchedSize       decimal.Decimal `json:"unmatchedSize"`
	CostBasisIncomplete bool            `json:"costBasisIncomplete"`
}

// Before reports whether e sorts strictly before o in processing order.
func (e TradeEvent) Before(o TradeEvent) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	if e.Slot != o.Slot {
		return e.Slot < o.Slot
	}
	if e.LogIndex != o.LogIndex {
		return e.LogIndex < o.LogIndex
	}
	return e.ID < o.ID
}
