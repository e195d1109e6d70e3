package domain

// InstrumentKind distinguishes spot from perpetual markets.
type InstrumentKind string

const (
	InstrumentSpot InstrumentKind = "spot"
	InstrumentPerp InstrumentKind = "perp"
)

// Instrument describes a protocol market and the fixed-point scales of its
// on-chain quantities.
type Instrument struct {
	MarketID      uint32         `json:"market_id" toml:"market_id"`
	Symbol        string         `json:"symbol" toml:"symbol"`
	Kind          InstrumentKind `json:"kind" toml:"kind"`
	BaseDecimals  int32          `json:"base_decimals" toml:"base_decimals"`
	QuoteDecimals int32          `json:"quote_decimals" toml:"quote_decimals"`
	PriceDecimals int32          `json:"price_decimals" toml:"price_decimals"`
}

// Token describes a depositable asset.
type Token struct {
	ID       uint32 `json:"id" toml:"id"`
	Symbol   string `json:"symbol" toml:"symbol"`
	Decimals int32  `json:"decimals" toml:"decimals"`
}
