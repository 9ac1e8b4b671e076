/*

This file contains the tunable parameters for scoring miners, generating synthetic problems and
turning scores into weights.

*/

package types

import "time"

// ScoringParameters holds the knobs of the miner scoring engine.
type ScoringParameters struct {
	ApyBinThreshold    float64       `json:"apy_bin_threshold" yaml:"apy_bin_threshold"`       // Relative APY difference that opens a new bin.
	BinRewardDecay     float64       `json:"bin_reward_decay" yaml:"bin_reward_decay"`         // Base reward lost per bin index.
	TopPerformersCount int           `json:"top_performers_count" yaml:"top_performers_count"` // Number of miners receiving the bonus multiplier.
	TopPerformersBonus float64       `json:"top_performers_bonus" yaml:"top_performers_bonus"` // Bonus multiplier for the top miners.
	RewardEpsilon      float64       `json:"reward_epsilon" yaml:"reward_epsilon"`             // Floor for denominators when normalizing rewards.
	QueryTimeout       time.Duration `json:"query_timeout" yaml:"query_timeout"`               // Responses at or above this latency score zero.
	ChunkRatio         float64       `json:"chunk_ratio" yaml:"chunk_ratio"`                   // Fraction of total assets placed per greedy allocation step.
	Workers            int           `json:"workers" yaml:"workers"`                           // Parallel scoring workers, 0 means one per CPU.
}

// SimulationParameters drives the synthetic pool generator and the simulator.
// Rates and amounts are expressed as plain floats here and converted to wei at generation time.
type SimulationParameters struct {
	NumPools        int     `json:"num_pools" yaml:"num_pools"`
	TotalAssets     float64 `json:"total_assets" yaml:"total_assets"`
	PoolReserveSize float64 `json:"pool_reserve_size" yaml:"pool_reserve_size"`

	MinBaseRate  float64 `json:"min_base_rate" yaml:"min_base_rate"`
	MaxBaseRate  float64 `json:"max_base_rate" yaml:"max_base_rate"`
	BaseRateStep float64 `json:"base_rate_step" yaml:"base_rate_step"`

	MinSlope     float64 `json:"min_slope" yaml:"min_slope"`
	MaxSlope     float64 `json:"max_slope" yaml:"max_slope"`
	MinKinkSlope float64 `json:"min_kink_slope" yaml:"min_kink_slope"`
	MaxKinkSlope float64 `json:"max_kink_slope" yaml:"max_kink_slope"`
	SlopeStep    float64 `json:"slope_step" yaml:"slope_step"`

	MinOptimalRate  float64 `json:"min_optimal_rate" yaml:"min_optimal_rate"`
	MaxOptimalRate  float64 `json:"max_optimal_rate" yaml:"max_optimal_rate"`
	OptimalUtilStep float64 `json:"optimal_util_step" yaml:"optimal_util_step"`

	MinUtilRate  float64 `json:"min_util_rate" yaml:"min_util_rate"`
	MaxUtilRate  float64 `json:"max_util_rate" yaml:"max_util_rate"`
	UtilRateStep float64 `json:"util_rate_step" yaml:"util_rate_step"`

	MinTimesteps  int `json:"min_timesteps" yaml:"min_timesteps"`
	MaxTimesteps  int `json:"max_timesteps" yaml:"max_timesteps"`
	TimestepsStep int `json:"timesteps_step" yaml:"timesteps_step"`

	MinStochasticity  float64 `json:"min_stochasticity" yaml:"min_stochasticity"`
	MaxStochasticity  float64 `json:"max_stochasticity" yaml:"max_stochasticity"`
	StochasticityStep float64 `json:"stochasticity_step" yaml:"stochasticity_step"`

	ReversionSpeed float64 `json:"reversion_speed" yaml:"reversion_speed"`
}

// WeightParameters controls how moving-average scores become ledger weights.
type WeightParameters struct {
	ExcludeQuantile    uint16  `json:"exclude_quantile" yaml:"exclude_quantile"`         // Out of 65535. 0 keeps every non-zero score.
	MovingAverageAlpha float64 `json:"moving_average_alpha" yaml:"moving_average_alpha"` // Weight of the newest reward in the score EMA.
	RateLimitBlocks    uint64  `json:"rate_limit_blocks" yaml:"rate_limit_blocks"`       // Minimum blocks between two weight submissions.
}
