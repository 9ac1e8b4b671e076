/*

This file contains the default parameters for the validator.

The scoring defaults favour separating honest miners from copies over fine-grained ranking, and the
simulation defaults produce problems that are solvable yet leave room for better-than-greedy answers.

*/

package config

import (
	"time"

	"github.com/elys-network/yieldcore/internal/types"
)

// DefaultScoringParameters is used unless a parameters file overrides it.
var DefaultScoringParameters = types.ScoringParameters{
	ApyBinThreshold: 0.001, // Miners within 0.1% APY of a bin's leader share the bin.
	// Identical greedy outputs land in the same bin and get compared for similarity.

	BinRewardDecay: 0.1, // Each lower bin starts 10% below the previous one.

	TopPerformersCount: 10,  // Bonus goes to the ten best final rewards.
	TopPerformersBonus: 1.5, // Multiplier before the final normalization.

	RewardEpsilon: 1e-8,

	QueryTimeout: 10 * time.Second, // Responses this slow are scored as missing.

	ChunkRatio: 0.01, // Greedy reference allocator spends 1% of total assets per step.

	Workers: 0, // One scoring worker per CPU.
}

// DefaultSimulationParameters drive synthetic problem generation.
var DefaultSimulationParameters = types.SimulationParameters{
	NumPools:        10,
	TotalAssets:     10.0, // Enough to cover every borrow minimum even at maximum utilization.
	PoolReserveSize: 1.0,

	MinBaseRate:  0.01,
	MaxBaseRate:  0.05,
	BaseRateStep: 0.01,

	MinSlope:     0.01,
	MaxSlope:     0.1,
	MinKinkSlope: 0.15,
	MaxKinkSlope: 1.0,
	SlopeStep:    0.001,

	MinOptimalRate:  0.65,
	MaxOptimalRate:  0.95,
	OptimalUtilStep: 0.05,

	MinUtilRate:  0.55,
	MaxUtilRate:  0.95,
	UtilRateStep: 0.05,

	MinTimesteps:  50,
	MaxTimesteps:  200,
	TimestepsStep: 10,

	MinStochasticity:  0.0025,
	MaxStochasticity:  0.025,
	StochasticityStep: 0.0005,

	ReversionSpeed: 0.1, // Pools close 10% of their gap to the median borrow rate per step.
}

// DefaultWeightParameters control the score moving average and weight emission.
var DefaultWeightParameters = types.WeightParameters{
	ExcludeQuantile:    0, // Keep every non-zero score.
	MovingAverageAlpha: 0.1,
	RateLimitBlocks:    100, // Roughly 20 minutes of 12s blocks between weight submissions.
}
