package domain

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// Tag is the protocol event-type discriminant carried by every decoded log
// record.
type Tag uint8

const (
	TagDeposit      Tag = 1
	TagWithdraw     Tag = 2
	TagPerpDeposit  Tag = 3
	TagPerpWithdraw Tag = 4
	TagSpotFill     Tag = 7
	TagTakerOrder   Tag = 10
	TagMakerFill    Tag = 11
	TagCancel       Tag = 13
	TagFeePaid      Tag = 15
	TagPerpFill     Tag = 18
	TagFunding      Tag = 24
)

var tagNames = map[Tag]string{
	TagDeposit:      "deposit",
	TagWithdraw:     "withdraw",
	TagPerpDeposit:  "perp_deposit",
	TagPerpWithdraw: "perp_withdraw",
	TagSpotFill:     "spot_fill",
	TagTakerOrder:   "taker_order",
	TagMakerFill:    "maker_fill",
	TagCancel:       "cancel",
	TagFeePaid:      "fee_paid",
	TagPerpFill:     "perp_fill",
	TagFunding:      "funding",
}

// Known reports whether the tag belongs to the set the reconstructor handles.
func (t Tag) Known() bool {
	_, ok := tagNames[t]
	return ok
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// DecodedLogRecord is one tagged record produced by the protocol decoder from
// a transaction's log lines. Numeric payload fields keep the protocol's wide
// integer representation; nil means the field is absent for this tag.
type DecodedLogRecord struct {
	Tag      Tag
	ClientID uint64

	// Attached by the classifier boundary.
	Signature string
	Timestamp time.Time
	Slot      uint64
	LogIndex  int

	MarketID     uint32
	TokenID      uint32
	Side         uint8
	OrderID      uint64
	TakerOrderID uint64

	Price         *uint256.Int
	Quantity      *uint256.Int
	QuoteQuantity *uint256.Int
	Amount        *uint256.Int
	Fee           *uint256.Int

	// Negative is set for signed fields (funding) decoded from two's complement.
	Negative bool
}

// RawTransaction is a fetched transaction with its raw program log lines.
type RawTransaction struct {
	Signature string    `json:"signature"`
	Slot      uint64    `json:"slot"`
	BlockTime time.Time `json:"block_time"`
	Failed    bool      `json:"failed"`
	LogLines  []string  `json:"log_lines"`
}
