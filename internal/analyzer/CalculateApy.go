/*

This file contains the APY calculations used to score allocations: the immediate APY for organic
requests and the aggregate APY over a simulated pool history for synthetic ones.

*/

package analyzer

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldcore/internal/ratemodel"
	"github.com/elys-network/yieldcore/internal/simulator"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

// CalculateAPY returns the immediate yield of an allocation in wei:
// Σ alloc[p] * supplyRate(p after alloc[p] is supplied) / totalAssets.
func CalculateAPY(alloc types.Allocation, problem types.AssetsAndPools) (sdkmath.Int, error) {
	if !problem.TotalAssets.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: total assets must be positive", types.ErrMalformedProblem)
	}

	yield := sdkmath.ZeroInt()
	for _, id := range problem.SortedPoolIDs() {
		amount := alloc.Get(id)
		rate := ratemodel.SupplyRateWithAllocation(problem.Pools[id], amount)
		yield = yield.Add(utils.WeiMul(amount, rate))
	}
	return utils.WeiDiv(yield, problem.TotalAssets), nil
}

// CalculateAggregateAPY averages the yield of an allocation over every snapshot of a simulated
// history. Reserves in the history already include the allocation, so each snapshot's own supply
// rate is used.
func CalculateAggregateAPY(alloc types.Allocation, problem types.AssetsAndPools, history simulator.PoolHistory, timesteps int) (sdkmath.Int, error) {
	if !problem.TotalAssets.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: total assets must be positive", types.ErrMalformedProblem)
	}
	if timesteps <= 0 || len(history) == 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("empty simulation history (timesteps %d, snapshots %d)", timesteps, len(history))
	}

	ids := problem.SortedPoolIDs()
	yield := sdkmath.ZeroInt()
	for step, pools := range history {
		for _, id := range ids {
			pool, ok := pools[id]
			if !ok {
				return sdkmath.ZeroInt(), fmt.Errorf("pool %s missing from snapshot %d", id, step)
			}
			yield = yield.Add(utils.WeiMul(alloc.Get(id), ratemodel.PoolSupplyRate(pool)))
		}
	}
	return utils.WeiDiv(yield, problem.TotalAssets).QuoRaw(int64(timesteps)), nil
}
