/*

This file contains the validation pass run on every miner response before it is scored.

*/

package analyzer

import (
	"errors"
	"fmt"

	"github.com/elys-network/yieldcore/internal/types"
)

var (
	ErrEmptyAllocation    = errors.New("allocation is empty")
	ErrOverAllocated      = errors.New("allocation exceeds total assets")
	ErrBelowMinimum       = errors.New("allocation below pool borrow amount")
	ErrUnknownPool        = errors.New("allocation references an unknown pool")
	ErrNegativeAllocation = errors.New("allocation is negative")
)

// CheckAllocations reports why a miner's allocation is not acceptable for the problem, or nil.
// Any error marks the response as cheating.
func CheckAllocations(problem types.AssetsAndPools, alloc types.Allocation) error {
	if len(alloc) == 0 {
		return ErrEmptyAllocation
	}

	for id, amount := range alloc {
		if _, ok := problem.Pools[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPool, id)
		}
		if !amount.IsNil() && amount.IsNegative() {
			return fmt.Errorf("%w: pool %s got %s", ErrNegativeAllocation, id, amount)
		}
	}

	if total := alloc.Total(); total.GT(problem.TotalAssets) {
		return fmt.Errorf("%w: %s > %s", ErrOverAllocated, total, problem.TotalAssets)
	}

	for _, id := range problem.SortedPoolIDs() {
		pool := problem.Pools[id]
		if got := alloc.Get(id); got.LT(pool.BorrowAmount) {
			return fmt.Errorf("%w: pool %s got %s, needs %s", ErrBelowMinimum, id, got, pool.BorrowAmount)
		}
	}
	return nil
}
