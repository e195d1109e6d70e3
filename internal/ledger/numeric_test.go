package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

func TestToDecimal(t *testing.T) {
	d, err := ToDecimal(u(123456), 3)
	require.NoError(t, err)
	assertDec(t, "123.456", d)

	d, err = ToDecimal(maxU128, 0)
	require.NoError(t, err)
	assertDec(t, "340282366920938463463374607431768211455", d)
}

func TestToDecimal_Failures(t *testing.T) {
	tooWide := new(uint256.Int).Add(maxU128, u(1))

	for name, tc := range map[string]struct {
		raw      *uint256.Int
		decimals int32
	}{
		"missing":        {nil, 6},
		"wider than 128": {tooWide, 6},
		"negative scale": {u(1), -1},
		"huge scale":     {u(1), 99},
	} {
		t.Run(name, func(t *testing.T) {
			d, err := ToDecimal(tc.raw, tc.decimals)
			assert.ErrorIs(t, err, domain.ErrConversion)
			assert.True(t, d.IsZero())
		})
	}
}

func TestToSignedDecimal(t *testing.T) {
	d, err := ToSignedDecimal(u(250), true, 2)
	require.NoError(t, err)
	assertDec(t, "-2.5", d)
}
