package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToWeiDropsBinaryNoise(t *testing.T) {
	v, err := Float64ToWei(0.03)
	require.NoError(t, err)
	assert.Equal(t, "30000000000000000", v.String())

	_, err = Float64ToWei(-1)
	assert.ErrorIs(t, err, ErrAmountNegative)
}

func TestWeiToFloat64(t *testing.T) {
	f, err := WeiToFloat64(MustFloat64ToWei(0.03))
	require.NoError(t, err)
	assert.Equal(t, 0.03, f)

	f, err = WeiToFloat64(MustFloat64ToWei(0.25).Neg())
	require.NoError(t, err)
	assert.Equal(t, -0.25, f)

	_, err = WeiToFloat64(sdkmath.Int{})
	assert.ErrorIs(t, err, ErrAmountNil)
}

func TestIntRatio(t *testing.T) {
	r, err := IntRatio(sdkmath.NewInt(1), sdkmath.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, 0.25, r)

	// liquidity-sized operands
	big := sdkmath.NewIntFromUint64(1 << 63).MulRaw(1 << 40)
	r, err = IntRatio(big.QuoRaw(20), big)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, r, 1e-12)

	_, err = IntRatio(sdkmath.OneInt(), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrConversionFailed)
}
