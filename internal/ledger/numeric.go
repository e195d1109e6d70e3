package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// maxScale bounds the number of fractional digits any protocol quantity may
// declare.
const maxScale = 36

// maxU128 is the largest value the protocol encodes in its wide integer
// fields.
var maxU128 = new(uint256.Int).Sub(
	new(uint256.Int).Lsh(uint256.NewInt(1), 128),
	uint256.NewInt(1),
)

// priceScale is the number of fractional digits kept when a price is derived
// from a ratio of two quantities.
const priceScale = 18

// ToDecimal converts a raw fixed-point protocol integer into a decimal with
// the given number of fractional digits. It never panics: a missing field,
// a value wider than 128 bits, or an out-of-range scale is reported as an
// error wrapping domain.ErrConversion.
func ToDecimal(raw *uint256.Int, decimals int32) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, fmt.Errorf("%w: field missing", domain.ErrConversion)
	}
	if raw.Gt(maxU128) {
		return decimal.Zero, fmt.Errorf("%w: value %s exceeds 128 bits", domain.ErrConversion, raw.Dec())
	}
	if decimals < 0 || decimals > maxScale {
		return decimal.Zero, fmt.Errorf("%w: scale %d out of range", domain.ErrConversion, decimals)
	}
	return decimal.NewFromBigInt(raw.ToBig(), -decimals), nil
}

// ToSignedDecimal is ToDecimal for a magnitude/sign pair.
func ToSignedDecimal(raw *uint256.Int, negative bool, decimals int32) (decimal.Decimal, error) {
	d, err := ToDecimal(raw, decimals)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		return d.Neg(), nil
	}
	return d, nil
}

// ratio returns num/den rounded to priceScale digits, or zero when den is
// zero.
func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, priceScale)
}
