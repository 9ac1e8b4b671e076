package ratemodel

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

var rateLogger = logger.GetForComponent("rate_model")

var (
	ErrInvalidChunkRatio      = errors.New("chunk ratio must be in (0, 1]")
	ErrAllocationNotConverged = errors.New("allocation chunk was not fully distributed")
)

// GreedyAllocate is the reference allocator handed to miners.
//
// Inputs:
//   - problem: the round's pools and total assets. Every pool is first seeded with its borrow amount.
//   - chunkRatio: fraction of the total assets distributed per step.
//
// Output: an allocation covering every pool that sums exactly to TotalAssets. Each chunk is split
// proportionally to (rate - minRate) / (maxRate - minRate), so the pools paying the best marginal
// supply rate absorb most of it.
func GreedyAllocate(problem types.AssetsAndPools, chunkRatio float64) (types.Allocation, error) {
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	if chunkRatio <= 0 || chunkRatio > 1 {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidChunkRatio, chunkRatio)
	}

	ids := problem.SortedPoolIDs()
	allocations := make(types.Allocation, len(ids))
	for _, id := range ids {
		allocations[id] = problem.Pools[id].BorrowAmount
	}

	balance := problem.TotalAssets.Sub(problem.TotalBorrowed())
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: minimums exceed total assets by %s", types.ErrMalformedProblem, balance.Neg())
	}

	ratioWei, err := utils.Float64ToWei(chunkRatio)
	if err != nil {
		return nil, errors.Join(ErrInvalidChunkRatio, err)
	}
	defaultChunk := utils.WeiMul(problem.TotalAssets, ratioWei)

	steps := 0
	for balance.IsPositive() {
		toAllocate := defaultChunk
		if !toAllocate.IsPositive() || balance.LT(toAllocate) {
			toAllocate = balance
		}
		balance = balance.Sub(toAllocate)

		rates := make(map[types.PoolID]sdkmath.Int, len(ids))
		minRate, maxRate := sdkmath.Int{}, sdkmath.Int{}
		for _, id := range ids {
			r := SupplyRateWithAllocation(problem.Pools[id], allocations[id])
			rates[id] = r
			if minRate.IsNil() || r.LT(minRate) {
				minRate = r
			}
			if maxRate.IsNil() || r.GT(maxRate) {
				maxRate = r
			}
		}
		rateRange := maxRate.Sub(minRate)

		for i, id := range ids {
			var delta sdkmath.Int
			if rateRange.IsZero() {
				// every pool pays the same: split what is left evenly
				delta = toAllocate.QuoRaw(int64(len(ids) - i))
			} else {
				delta = toAllocate.Mul(rates[id].Sub(minRate)).Quo(rateRange)
			}
			allocations[id] = allocations[id].Add(delta)
			toAllocate = toAllocate.Sub(delta)
		}

		if !toAllocate.IsZero() {
			return nil, fmt.Errorf("%w: %s left after step %d", ErrAllocationNotConverged, toAllocate, steps)
		}
		steps++
	}

	rateLogger.Debug().
		Int("pools", len(ids)).
		Int("steps", steps).
		Str("totalAssets", problem.TotalAssets.String()).
		Msg("Greedy allocation complete")

	return allocations, nil
}
