package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/elys-network/yieldcore/internal/types"
)

var ErrInvalidParameters = errors.New("invalid parameters")

// ScoringFile is the layout of the optional YAML parameters file. Sections or fields left out keep
// their defaults.
type ScoringFile struct {
	Scoring    types.ScoringParameters    `json:"scoring" yaml:"scoring"`
	Simulation types.SimulationParameters `json:"simulation" yaml:"simulation"`
	Weights    types.WeightParameters     `json:"weights" yaml:"weights"`
}

// LoadScoringParametersFile overlays the YAML file at path on the default parameters.
func LoadScoringParametersFile(path string) (ScoringFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ScoringFile{}, fmt.Errorf("failed to read parameters file %s: %w", path, err)
	}
	return ParseScoringParameters(raw)
}

// ParseScoringParameters decodes raw YAML on top of the defaults and validates the result.
func ParseScoringParameters(raw []byte) (ScoringFile, error) {
	out := ScoringFile{
		Scoring:    DefaultScoringParameters,
		Simulation: DefaultSimulationParameters,
		Weights:    DefaultWeightParameters,
	}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return ScoringFile{}, errors.Join(ErrInvalidParameters, err)
	}
	if err := out.Validate(); err != nil {
		return ScoringFile{}, err
	}
	return out, nil
}

// Validate rejects parameter sets the scoring engine or the simulator cannot run with.
func (f ScoringFile) Validate() error {
	s := f.Scoring
	switch {
	case s.ApyBinThreshold < 0:
		return fmt.Errorf("%w: apy_bin_threshold must be >= 0", ErrInvalidParameters)
	case s.BinRewardDecay < 0:
		return fmt.Errorf("%w: bin_reward_decay must be >= 0", ErrInvalidParameters)
	case s.TopPerformersCount < 0 || s.TopPerformersBonus < 1:
		return fmt.Errorf("%w: top performers need count >= 0 and bonus >= 1", ErrInvalidParameters)
	case s.RewardEpsilon <= 0:
		return fmt.Errorf("%w: reward_epsilon must be > 0", ErrInvalidParameters)
	case s.QueryTimeout <= 0:
		return fmt.Errorf("%w: query_timeout must be > 0", ErrInvalidParameters)
	case s.ChunkRatio <= 0 || s.ChunkRatio > 1:
		return fmt.Errorf("%w: chunk_ratio must be in (0, 1]", ErrInvalidParameters)
	case s.Workers < 0:
		return fmt.Errorf("%w: workers must be >= 0", ErrInvalidParameters)
	}

	sim := f.Simulation
	if sim.NumPools <= 0 || sim.TotalAssets <= 0 || sim.PoolReserveSize <= 0 {
		return fmt.Errorf("%w: simulation needs positive pools, total assets and reserve size", ErrInvalidParameters)
	}
	if sim.MinTimesteps < 1 || sim.MaxTimesteps < sim.MinTimesteps || sim.TimestepsStep <= 0 {
		return fmt.Errorf("%w: simulation timesteps range is invalid", ErrInvalidParameters)
	}
	if sim.MinOptimalRate <= 0 || sim.MaxOptimalRate >= 1 {
		return fmt.Errorf("%w: optimal utilization range must stay inside (0, 1)", ErrInvalidParameters)
	}
	if sim.MaxUtilRate > 1 {
		return fmt.Errorf("%w: max_util_rate must be <= 1", ErrInvalidParameters)
	}
	for name, step := range map[string]float64{
		"base_rate_step":     sim.BaseRateStep,
		"slope_step":         sim.SlopeStep,
		"optimal_util_step":  sim.OptimalUtilStep,
		"util_rate_step":     sim.UtilRateStep,
		"stochasticity_step": sim.StochasticityStep,
	} {
		if step <= 0 {
			return fmt.Errorf("%w: %s must be > 0", ErrInvalidParameters, name)
		}
	}

	if f.Weights.MovingAverageAlpha <= 0 || f.Weights.MovingAverageAlpha > 1 {
		return fmt.Errorf("%w: moving_average_alpha must be in (0, 1]", ErrInvalidParameters)
	}
	return nil
}
