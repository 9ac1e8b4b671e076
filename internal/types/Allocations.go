/*

This file contains the allocation types produced by miners and the scored record attached to each.

*/

package types

import (
	"sort"

	"cosmossdk.io/math"
)

// Allocation maps a pool to the amount a miner wants to supply to it. Untrusted input.
type Allocation map[PoolID]math.Int

// Total sums every allocated amount. Nil entries count as zero.
func (a Allocation) Total() math.Int {
	total := math.ZeroInt()
	for _, v := range a {
		if v.IsNil() {
			continue
		}
		total = total.Add(v)
	}
	return total
}

// Get returns the amount for a pool, zero when absent.
func (a Allocation) Get(id PoolID) math.Int {
	v, ok := a[id]
	if !ok || v.IsNil() {
		return math.ZeroInt()
	}
	return v
}

// Padded returns the allocation as a vector ordered by pool id, covering every pool of the
// problem plus any extra ids the miner sent. Missing entries are zero.
func (a Allocation) Padded(pools map[PoolID]Pool) ([]PoolID, []math.Int) {
	seen := make(map[PoolID]struct{}, len(pools)+len(a))
	ids := make([]PoolID, 0, len(pools)+len(a))
	for id := range pools {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	values := make([]math.Int, len(ids))
	for i, id := range ids {
		values[i] = a.Get(id)
	}
	return ids, values
}

// Clone copies the allocation map.
func (a Allocation) Clone() Allocation {
	if a == nil {
		return nil
	}
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// AllocInfo is the scored record for one miner response.
type AllocInfo struct {
	APY         math.Int   `json:"apy"`
	Allocations Allocation `json:"allocations"`
}
