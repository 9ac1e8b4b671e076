/*

This file contains the liquidity <-> token amount conversions of Uniswap V3 (LiquidityAmounts).
All ratios are Q64.96 sqrt prices and every division floors.

*/

package uniswap

import (
	"errors"
	"math/big"
)

var ErrEmptyRange = errors.New("tick range is empty")

func ordered(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// Amount0ForSqrtRatios returns the token0 amount for liquidity between two sqrt ratios.
func Amount0ForSqrtRatios(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	if sqrtA.Sign() == 0 {
		return big.NewInt(0)
	}
	result := new(big.Int).Lsh(liquidity, 96)
	result.Mul(result, new(big.Int).Sub(sqrtB, sqrtA))
	result.Quo(result, sqrtB)
	return result.Quo(result, sqrtA)
}

// Amount1ForSqrtRatios returns the token1 amount for liquidity between two sqrt ratios.
func Amount1ForSqrtRatios(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	result := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	return result.Quo(result, Q96)
}

// Amount0ForLiquidity returns the token0 amount of a position spanning [lower, upper].
func Amount0ForLiquidity(lower, upper int32, liquidity *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, err
	}
	return Amount0ForSqrtRatios(sqrtA, sqrtB, liquidity), nil
}

// Amount1ForLiquidity returns the token1 amount of a position spanning [lower, upper].
func Amount1ForLiquidity(lower, upper int32, liquidity *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, err
	}
	return Amount1ForSqrtRatios(sqrtA, sqrtB, liquidity), nil
}

// AmountsForLiquidity returns both token amounts of a position at the current sqrt price.
func AmountsForLiquidity(sqrtPriceX96 *big.Int, lower, upper int32, liquidity *big.Int) (*big.Int, *big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, nil, err
	}

	amount0, amount1 := big.NewInt(0), big.NewInt(0)
	switch {
	case sqrtPriceX96.Cmp(sqrtA) <= 0:
		amount0 = Amount0ForSqrtRatios(sqrtA, sqrtB, liquidity)
	case sqrtPriceX96.Cmp(sqrtB) < 0:
		amount0 = Amount0ForSqrtRatios(sqrtPriceX96, sqrtB, liquidity)
		amount1 = Amount1ForSqrtRatios(sqrtA, sqrtPriceX96, liquidity)
	default:
		amount1 = Amount1ForSqrtRatios(sqrtA, sqrtB, liquidity)
	}
	return amount0, amount1, nil
}

// LiquidityForAmount0 returns the liquidity bought by amount0 of token0 over [lower, upper].
func LiquidityForAmount0(lower, upper int32, amount0 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, err
	}
	return liquidityForAmount0(sqrtA, sqrtB, amount0)
}

// LiquidityForAmount1 returns the liquidity bought by amount1 of token1 over [lower, upper].
func LiquidityForAmount1(lower, upper int32, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, err
	}
	return liquidityForAmount1(sqrtA, sqrtB, amount1)
}

// LiquidityForAmounts returns the largest liquidity both amounts can back at the current tick.
// Inside the range the smaller of the two single-sided liquidities wins. A price on the lower
// bound counts as below the range.
func LiquidityForAmounts(tick, lower, upper int32, amount0, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(lower, upper)
	if err != nil {
		return nil, err
	}
	sqrtP, err := SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}

	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return liquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) < 0:
		l0, err := liquidityForAmount0(sqrtP, sqrtB, amount0)
		if err != nil {
			return nil, err
		}
		l1, err := liquidityForAmount1(sqrtA, sqrtP, amount1)
		if err != nil {
			return nil, err
		}
		if l0.Cmp(l1) < 0 {
			return l0, nil
		}
		return l1, nil
	default:
		return liquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return nil, ErrEmptyRange
	}
	intermediate := new(big.Int).Mul(sqrtA, sqrtB)
	intermediate.Quo(intermediate, Q96)
	result := new(big.Int).Mul(amount0, intermediate)
	return result.Quo(result, diff), nil
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return nil, ErrEmptyRange
	}
	result := new(big.Int).Mul(amount1, Q96)
	return result.Quo(result, diff), nil
}

func rangeRatios(lower, upper int32) (*big.Int, *big.Int, error) {
	sqrtA, err := SqrtRatioAtTick(lower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := SqrtRatioAtTick(upper)
	if err != nil {
		return nil, nil, err
	}
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	return sqrtA, sqrtB, nil
}
