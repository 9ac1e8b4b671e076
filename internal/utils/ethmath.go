/*
This file contains the wei fixed-point helpers shared by the rate model, the simulator and the scorer.
All values are integers scaled by 1e18 and every division floors, matching on-chain integer semantics.
*/

package utils

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// WeiDecimals is the number of decimals of a wei-scaled value.
const WeiDecimals = 18

var weiBig = new(big.Int).Exp(big.NewInt(10), big.NewInt(WeiDecimals), nil)

// Wei is 1.0 in wei fixed-point.
var Wei = sdkmath.NewIntFromBigInt(weiBig)

// WeiMul returns floor(x*y / 1e18).
func WeiMul(x, y sdkmath.Int) sdkmath.Int {
	prod := new(big.Int).Mul(x.BigInt(), y.BigInt())
	return sdkmath.NewIntFromBigInt(floorDiv(prod, weiBig))
}

// WeiDiv returns floor(x*1e18 / y). A zero divisor yields zero.
func WeiDiv(x, y sdkmath.Int) sdkmath.Int {
	if y.IsZero() {
		return sdkmath.ZeroInt()
	}
	num := new(big.Int).Mul(x.BigInt(), weiBig)
	return sdkmath.NewIntFromBigInt(floorDiv(num, y.BigInt()))
}

// floorDiv rounds toward negative infinity for any sign combination.
func floorDiv(a, b *big.Int) *big.Int {
	q, m := new(big.Int).QuoRem(a, b, new(big.Int))
	if m.Sign() != 0 && (m.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return q
}
