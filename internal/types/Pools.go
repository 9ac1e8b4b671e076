/*

This file contains the pool and problem types handed to miners. Every rate and amount is a
wei-scaled integer (1e18 == 1.0).

*/

package types

import (
	"errors"
	"fmt"
	"sort"

	"cosmossdk.io/math"
)

var (
	ErrMalformedProblem = errors.New("malformed problem")
	ErrInvalidPool      = errors.New("invalid pool")
)

type PoolID string

type Pool struct {
	PoolID          PoolID   `json:"pool_id"`
	BaseRate        math.Int `json:"base_rate"`         // Rate at zero utilization
	BaseSlope       math.Int `json:"base_slope"`        // Rate added between zero and optimal utilization
	KinkSlope       math.Int `json:"kink_slope"`        // Rate added between optimal and full utilization
	OptimalUtilRate math.Int `json:"optimal_util_rate"` // Kink position, strictly between 0 and 1e18
	BorrowAmount    math.Int `json:"borrow_amount"`     // Amount currently borrowed, also the allocation minimum
	ReserveSize     math.Int `json:"reserve_size"`      // Amount supplied to the pool
}

// Validate checks the structural invariants of a single pool.
func (p Pool) Validate() error {
	for name, v := range map[string]math.Int{
		"base_rate":         p.BaseRate,
		"base_slope":        p.BaseSlope,
		"kink_slope":        p.KinkSlope,
		"optimal_util_rate": p.OptimalUtilRate,
		"borrow_amount":     p.BorrowAmount,
		"reserve_size":      p.ReserveSize,
	} {
		if v.IsNil() {
			return fmt.Errorf("%w: pool %s has no %s", ErrInvalidPool, p.PoolID, name)
		}
		if v.IsNegative() {
			return fmt.Errorf("%w: pool %s has negative %s", ErrInvalidPool, p.PoolID, name)
		}
	}
	if !p.OptimalUtilRate.IsPositive() || p.OptimalUtilRate.GTE(math.NewIntWithDecimal(1, 18)) {
		return fmt.Errorf("%w: pool %s optimal_util_rate %s outside (0, 1e18)", ErrInvalidPool, p.PoolID, p.OptimalUtilRate)
	}
	if p.BorrowAmount.GT(p.ReserveSize) {
		return fmt.Errorf("%w: pool %s borrows %s from a reserve of %s", ErrInvalidPool, p.PoolID, p.BorrowAmount, p.ReserveSize)
	}
	return nil
}

// AssetsAndPools is the allocation problem for one round.
type AssetsAndPools struct {
	TotalAssets math.Int        `json:"total_assets"`
	Pools       map[PoolID]Pool `json:"pools"`
}

// Validate checks every pool and that the mandatory minimums fit into the total assets.
func (a AssetsAndPools) Validate() error {
	if a.TotalAssets.IsNil() || a.TotalAssets.IsNegative() {
		return fmt.Errorf("%w: total assets missing or negative", ErrMalformedProblem)
	}
	if len(a.Pools) == 0 {
		return fmt.Errorf("%w: no pools", ErrMalformedProblem)
	}
	for id, p := range a.Pools {
		if id != p.PoolID {
			return fmt.Errorf("%w: pool keyed as %s carries id %s", ErrMalformedProblem, id, p.PoolID)
		}
		if err := p.Validate(); err != nil {
			return errors.Join(ErrMalformedProblem, err)
		}
	}
	if minimums := a.TotalBorrowed(); minimums.GT(a.TotalAssets) {
		return fmt.Errorf("%w: borrow minimums %s exceed total assets %s", ErrMalformedProblem, minimums, a.TotalAssets)
	}
	return nil
}

// TotalBorrowed sums the borrow amounts, i.e. the mandatory allocation minimums.
func (a AssetsAndPools) TotalBorrowed() math.Int {
	total := math.ZeroInt()
	for _, p := range a.Pools {
		total = total.Add(p.BorrowAmount)
	}
	return total
}

// SortedPoolIDs returns the pool ids in ascending order.
func (a AssetsAndPools) SortedPoolIDs() []PoolID {
	ids := make([]PoolID, 0, len(a.Pools))
	for id := range a.Pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns a deep copy. math.Int values are immutable so copying the map is enough.
func (a AssetsAndPools) Clone() AssetsAndPools {
	pools := make(map[PoolID]Pool, len(a.Pools))
	for id, p := range a.Pools {
		pools[id] = p
	}
	return AssetsAndPools{TotalAssets: a.TotalAssets, Pools: pools}
}
