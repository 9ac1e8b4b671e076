/*

This file contains the Uniswap V3 tick <-> sqrt price conversions. Results must match the on-chain
TickMath library bit for bit, so everything is integer arithmetic with floor division.

*/

package uniswap

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = -MinTick
)

var (
	ErrTickOutOfRange      = errors.New("tick out of range")
	ErrSqrtRatioOutOfRange = errors.New("sqrt ratio out of range")
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342", 10)

	Q32        = new(big.Int).Lsh(big.NewInt(1), 32)
	Q96        = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128       = new(big.Int).Lsh(big.NewInt(1), 128)
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	oddTickRatio   = mustBig("fffcb933bd6fad37aa2d162d1a594001", 16)
	logSqrt10001   = mustBig("255738958999603826347141", 10)
	tickLowOffset  = mustBig("3402992956809132418596140100660247210", 10)
	tickHighOffset = mustBig("291339464771989622907027621153398088495", 10)
)

// tickFactors[i] is the Q128 value of sqrt(1.0001)^-(2^(i+1)), applied when bit i+1 of |tick| is set.
var tickFactors = []*big.Int{
	mustBig("fff97272373d413259a46990580e213a", 16),
	mustBig("fff2e50f5f656932ef12357cf3c7fdcc", 16),
	mustBig("ffe5caca7e10e4e61c3624eaa0941cd0", 16),
	mustBig("ffcb9843d60f6159c9db58835c926644", 16),
	mustBig("ff973b41fa98c081472e6896dfb254c0", 16),
	mustBig("ff2ea16466c96a3843ec78b326b52861", 16),
	mustBig("fe5dee046a99a2a811c461f1969c3053", 16),
	mustBig("fcbe86c7900a88aedcffc83b479aa3a4", 16),
	mustBig("f987a7253ac413176f2b074cf7815e54", 16),
	mustBig("f3392b0822b70005940c7a398e4b70f3", 16),
	mustBig("e7159475a2c29b7443b29c7fa6e889d9", 16),
	mustBig("d097f3bdfd2022b8845ad8f792aa5825", 16),
	mustBig("a9f746462d870fdf8a65dc1f90e061e5", 16),
	mustBig("70d869a156d2a1b890bb3df62baf32f7", 16),
	mustBig("31be135f97d08fd981231505542fcfa6", 16),
	mustBig("9aa508b5b7a84e1c677de54f3e99bc9", 16),
	mustBig("5d6af8dedb81196699c329225ee604", 16),
	mustBig("2216e584f5fa1ea926041bedfe98", 16),
	mustBig("48a170391f7dc42444e8fa2", 16),
}

func mustBig(s string, base int) *big.Int {
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		panic("uniswap: bad constant " + s)
	}
	return v
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 number.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrTickOutOfRange, tick, MinTick, MaxTick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	var ratio *big.Int
	if absTick&0x1 != 0 {
		ratio = new(big.Int).Set(oddTickRatio)
	} else {
		ratio = new(big.Int).Set(Q128)
	}
	for i, factor := range tickFactors {
		if absTick&(uint32(1)<<(i+1)) != 0 {
			ratio.Mul(ratio, factor)
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Quo(MaxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so the result is never below the true ratio.
	quo, rem := new(big.Int).QuoRem(ratio, Q32, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtRatioX96.
func TickAtSqrtRatio(sqrtRatioX96 *big.Int) (int32, error) {
	if sqrtRatioX96 == nil || sqrtRatioX96.Cmp(MinSqrtRatio) < 0 || sqrtRatioX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, fmt.Errorf("%w: %v not in [%s, %s)", ErrSqrtRatioOutOfRange, sqrtRatioX96, MinSqrtRatio, MaxSqrtRatio)
	}

	ratioX128 := new(big.Int).Lsh(sqrtRatioX96, 32)
	msb := mostSignificantBit(ratioX128)

	r := new(big.Int)
	if msb >= 128 {
		r.Rsh(ratioX128, uint(msb-127))
	} else {
		r.Lsh(ratioX128, uint(127-msb))
	}

	log2 := new(big.Int).Lsh(big.NewInt(int64(msb)-128), 64)
	for i := 0; i < 14; i++ {
		r.Mul(r, r)
		r.Rsh(r, 127)
		f := new(big.Int).Rsh(r, 128)
		log2.Or(log2, new(big.Int).Lsh(f, uint(63-i)))
		r.Rsh(r, uint(f.Uint64()))
	}

	logSqrt := new(big.Int).Mul(log2, logSqrt10001)

	// big.Int.Rsh is an arithmetic shift, so negative logs floor like the on-chain version.
	tickLow := new(big.Int).Rsh(new(big.Int).Sub(logSqrt, tickLowOffset), 128)
	tickHigh := new(big.Int).Rsh(new(big.Int).Add(logSqrt, tickHighOffset), 128)

	low := int32(tickLow.Int64())
	high := int32(tickHigh.Int64())
	if low == high {
		return low, nil
	}

	highRatio, err := SqrtRatioAtTick(high)
	if err != nil {
		return low, nil
	}
	if highRatio.Cmp(sqrtRatioX96) <= 0 {
		return high, nil
	}
	return low, nil
}

// mostSignificantBit returns the index of the highest set bit of a positive x.
func mostSignificantBit(x *big.Int) int {
	return x.BitLen() - 1
}
