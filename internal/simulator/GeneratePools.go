package simulator

import (
	"math"
	"math/rand"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

// RandRangeFloat picks start + k*step for a uniform k in [0, floor((stop-start)/step)].
func RandRangeFloat(rng *rand.Rand, start, stop, step float64) float64 {
	numSteps := gridSteps(start, stop, step)
	k := rng.Intn(numSteps + 1)
	return start + float64(k)*step
}

// RandRangeInt is RandRangeFloat over an integer grid.
func RandRangeInt(rng *rand.Rand, start, stop, step int) int {
	if step <= 0 || stop <= start {
		return start
	}
	k := rng.Intn((stop-start)/step + 1)
	return start + k*step
}

func gridSteps(start, stop, step float64) int {
	if step <= 0 || stop <= start {
		return 0
	}
	// 1e-9 absorbs binary representation noise, e.g. (0.1-0.01)/0.001 = 89.99999999999999
	return int(math.Floor((stop-start)/step + 1e-9))
}

// GenerateAssetsAndPools draws a synthetic problem from the parameter grids. Pools are named "0"
// to "NumPools-1" and each one draws, in order, base rate, base slope, kink slope, optimal
// utilization and initial utilization.
func GenerateAssetsAndPools(rng *rand.Rand, params types.SimulationParameters) (types.AssetsAndPools, error) {
	reserve, err := utils.Float64ToWei(params.PoolReserveSize)
	if err != nil {
		return types.AssetsAndPools{}, err
	}
	total, err := utils.Float64ToWei(params.TotalAssets)
	if err != nil {
		return types.AssetsAndPools{}, err
	}

	pools := make(map[types.PoolID]types.Pool, params.NumPools)
	for i := 0; i < params.NumPools; i++ {
		id := types.PoolID(strconv.Itoa(i))

		draws := []float64{
			RandRangeFloat(rng, params.MinBaseRate, params.MaxBaseRate, params.BaseRateStep),
			RandRangeFloat(rng, params.MinSlope, params.MaxSlope, params.SlopeStep),
			RandRangeFloat(rng, params.MinKinkSlope, params.MaxKinkSlope, params.SlopeStep),
			RandRangeFloat(rng, params.MinOptimalRate, params.MaxOptimalRate, params.OptimalUtilStep),
			RandRangeFloat(rng, params.MinUtilRate, params.MaxUtilRate, params.UtilRateStep),
		}
		converted := make([]sdkmath.Int, len(draws))
		for j, d := range draws {
			converted[j], err = utils.Float64ToWei(d)
			if err != nil {
				return types.AssetsAndPools{}, err
			}
		}

		pools[id] = types.Pool{
			PoolID:          id,
			BaseRate:        converted[0],
			BaseSlope:       converted[1],
			KinkSlope:       converted[2],
			OptimalUtilRate: converted[3],
			BorrowAmount:    utils.WeiMul(reserve, converted[4]),
			ReserveSize:     reserve,
		}
	}

	problem := types.AssetsAndPools{TotalAssets: total, Pools: pools}
	if err := problem.Validate(); err != nil {
		return types.AssetsAndPools{}, err
	}
	return problem, nil
}

// GenerateInitialAllocations splits the total assets evenly over every pool. The last pool in id
// order absorbs the rounding remainder so the allocation sums exactly to the total.
func GenerateInitialAllocations(problem types.AssetsAndPools) types.Allocation {
	ids := problem.SortedPoolIDs()
	allocs := make(types.Allocation, len(ids))
	if len(ids) == 0 {
		return allocs
	}
	share := problem.TotalAssets.QuoRaw(int64(len(ids)))
	remaining := problem.TotalAssets
	for i, id := range ids {
		if i == len(ids)-1 {
			allocs[id] = remaining
			break
		}
		allocs[id] = share
		remaining = remaining.Sub(share)
	}
	return allocs
}
