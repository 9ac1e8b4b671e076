/*

This file contains the kinked interest-rate curve shared by the greedy allocator, the simulator and
the scorer. All three must evaluate rates through these functions.

*/

package ratemodel

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

// Utilization returns borrow/supply in wei. An empty pool has zero utilization.
func Utilization(borrow, supply sdkmath.Int) sdkmath.Int {
	if !supply.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return utils.WeiDiv(borrow, supply)
}

// BorrowRate evaluates the kinked borrow curve of a pool at the given utilization.
//
//	util < optimal:  base + util/optimal * baseSlope
//	otherwise:       base + baseSlope + (util-optimal)/(1-optimal) * kinkSlope
func BorrowRate(util sdkmath.Int, pool types.Pool) sdkmath.Int {
	if util.LT(pool.OptimalUtilRate) {
		return pool.BaseRate.Add(utils.WeiMul(utils.WeiDiv(util, pool.OptimalUtilRate), pool.BaseSlope))
	}
	excess := utils.WeiDiv(util.Sub(pool.OptimalUtilRate), utils.Wei.Sub(pool.OptimalUtilRate))
	return pool.BaseRate.Add(pool.BaseSlope).Add(utils.WeiMul(excess, pool.KinkSlope))
}

// SupplyRate is the lender yield at the given utilization: util * borrowRate.
func SupplyRate(util sdkmath.Int, pool types.Pool) sdkmath.Int {
	return utils.WeiMul(util, BorrowRate(util, pool))
}

// PoolUtilization is borrow_amount / reserve_size for the pool as published.
func PoolUtilization(pool types.Pool) sdkmath.Int {
	return Utilization(pool.BorrowAmount, pool.ReserveSize)
}

// PoolBorrowRate is the borrow rate of the pool as published.
func PoolBorrowRate(pool types.Pool) sdkmath.Int {
	return BorrowRate(PoolUtilization(pool), pool)
}

// PoolSupplyRate is the supply rate of the pool as published.
func PoolSupplyRate(pool types.Pool) sdkmath.Int {
	return SupplyRate(PoolUtilization(pool), pool)
}

// SupplyRateWithAllocation is the supply rate the pool would pay after `alloc` more is supplied.
func SupplyRateWithAllocation(pool types.Pool, alloc sdkmath.Int) sdkmath.Int {
	return SupplyRate(Utilization(pool.BorrowAmount, pool.ReserveSize.Add(alloc)), pool)
}
