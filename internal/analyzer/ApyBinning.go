/*

This file contains the anti-plagiarism stage of miner scoring. Miners are grouped into bins of
near-identical APY, bins are ranked, and miners whose allocations resemble their bin-mates' lose
part of their bin's base reward.

*/

package analyzer

import (
	"math"
	"math/big"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

// CreateAPYBins sorts miners by APY (descending, ties by uid) and opens a new bin whenever
// |apy - base| / max(|base|, |apy|, 1) exceeds threshold, base being the bin's first APY.
func CreateAPYBins(apys map[types.MinerUID]sdkmath.Int, threshold float64) []types.Bin {
	uids := make([]types.MinerUID, 0, len(apys))
	for uid := range apys {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool {
		a, b := apys[uids[i]], apys[uids[j]]
		if !a.Equal(b) {
			return a.GT(b)
		}
		return uids[i] < uids[j]
	})

	var bins []types.Bin
	var base sdkmath.Int
	for _, uid := range uids {
		apy := apys[uid]
		if len(bins) == 0 || relativeDiff(apy, base) > threshold {
			bins = append(bins, types.Bin{Index: len(bins)})
			base = apy
		}
		last := &bins[len(bins)-1]
		last.Miners = append(last.Miners, uid)
	}
	return bins
}

func relativeDiff(apy, base sdkmath.Int) float64 {
	denom := sdkmath.MaxInt(sdkmath.MaxInt(base.Abs(), apy.Abs()), sdkmath.OneInt())
	ratio, err := utils.IntRatio(apy.Sub(base).Abs(), denom)
	if err != nil {
		// an unrepresentable ratio opens a new bin
		return math.Inf(1)
	}
	return ratio
}

// BaseRewards sets each bin's base reward to max(0, 1 - decay*index) and returns it per miner.
func BaseRewards(bins []types.Bin, decay float64) map[types.MinerUID]float64 {
	out := make(map[types.MinerUID]float64)
	for i := range bins {
		bins[i].BaseReward = math.Max(0, 1-decay*float64(bins[i].Index))
		for _, uid := range bins[i].Miners {
			out[uid] = bins[i].BaseReward
		}
	}
	return out
}

// AllocationDistance is the euclidean distance between two allocations padded over the problem's
// pools, divided by totalAssets*sqrt(2). Identical allocations are 0 apart, two allocations that
// each put everything in a different pool are 1 apart.
func AllocationDistance(a, b types.Allocation, problem types.AssetsAndPools) float64 {
	if !problem.TotalAssets.IsPositive() {
		return 1
	}

	union := make(map[types.PoolID]types.Pool, len(problem.Pools)+len(b))
	for id, p := range problem.Pools {
		union[id] = p
	}
	for id := range b {
		union[id] = types.Pool{}
	}
	ids, left := a.Padded(union)

	sum := new(big.Int)
	for i, id := range ids {
		diff := new(big.Int).Sub(left[i].BigInt(), b.Get(id).BigInt())
		sum.Add(sum, diff.Mul(diff, diff))
	}

	dist := new(big.Float).SetPrec(256).SetInt(sum)
	dist.Sqrt(dist)
	denom := new(big.Float).SetPrec(256).SetInt(problem.TotalAssets.BigInt())
	denom.Mul(denom, new(big.Float).SetPrec(256).SetFloat64(math.Sqrt2))
	out, _ := dist.Quo(dist, denom).Float64()
	return out
}

// SimilarityPenalties gives every miner the mean of clamp(1 - distance, 0, 1) over its bin-mates.
// Miners alone in their bin get no penalty.
func SimilarityPenalties(bins []types.Bin, allocs map[types.MinerUID]types.Allocation, problem types.AssetsAndPools) map[types.MinerUID]float64 {
	out := make(map[types.MinerUID]float64)
	for _, bin := range bins {
		if len(bin.Miners) < 2 {
			for _, uid := range bin.Miners {
				out[uid] = 0
			}
			continue
		}

		// pairwise similarity is symmetric, compute each pair once
		totals := make([]float64, len(bin.Miners))
		for i := 0; i < len(bin.Miners); i++ {
			for j := i + 1; j < len(bin.Miners); j++ {
				d := AllocationDistance(allocs[bin.Miners[i]], allocs[bin.Miners[j]], problem)
				sim := math.Min(1, math.Max(0, 1-d))
				totals[i] += sim
				totals[j] += sim
			}
		}
		for i, uid := range bin.Miners {
			out[uid] = totals[i] / float64(len(bin.Miners)-1)
		}
	}
	return out
}

// ApplyTopPerformerBonus multiplies the rewards of the `count` best eligible miners by bonus.
// Ties are broken by uid. Ineligible miners are left untouched.
func ApplyTopPerformerBonus(rewards map[types.MinerUID]float64, eligible map[types.MinerUID]bool, count int, bonus float64) map[types.MinerUID]float64 {
	out := make(map[types.MinerUID]float64, len(rewards))
	candidates := make([]types.MinerUID, 0, len(rewards))
	for uid, r := range rewards {
		out[uid] = r
		if eligible[uid] {
			candidates = append(candidates, uid)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := rewards[candidates[i]], rewards[candidates[j]]
		if ri != rj {
			return ri > rj
		}
		return candidates[i] < candidates[j]
	})
	if count > len(candidates) {
		count = len(candidates)
	}
	for _, uid := range candidates[:max(count, 0)] {
		out[uid] *= bonus
	}
	return out
}

// NormalizeByMax divides every reward by the largest one. If the largest reward does not exceed
// epsilon all rewards become zero.
func NormalizeByMax(rewards map[types.MinerUID]float64, epsilon float64) map[types.MinerUID]float64 {
	maxReward := 0.0
	for _, r := range rewards {
		maxReward = math.Max(maxReward, r)
	}
	out := make(map[types.MinerUID]float64, len(rewards))
	for uid, r := range rewards {
		if maxReward <= epsilon {
			out[uid] = 0
			continue
		}
		out[uid] = math.Min(1, math.Max(0, r/maxReward))
	}
	return out
}

// RelativeRewards is apy / max(maxApy, epsilon), a simple [0,1] view of the raw APYs. APYs are
// compared as decimals, so epsilon is an APY (1e-8 is 0.000001%).
func RelativeRewards(apys map[types.MinerUID]sdkmath.Int, epsilon float64) map[types.MinerUID]float64 {
	maxApy := 0.0
	floats := make(map[types.MinerUID]float64, len(apys))
	for uid, apy := range apys {
		f, err := utils.WeiToFloat64(apy)
		if err != nil {
			minerScoreLogger.Warn().Err(err).Uint16("uid", uint16(uid)).Msg("Unreadable APY, relative reward set to zero")
			f = 0
		}
		floats[uid] = f
		maxApy = math.Max(maxApy, f)
	}
	denom := math.Max(maxApy, epsilon)
	out := make(map[types.MinerUID]float64, len(apys))
	for uid, f := range floats {
		out[uid] = f / denom
	}
	return out
}
