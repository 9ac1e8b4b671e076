package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresNetUID(t *testing.T) {
	os.Unsetenv("NETUID")
	err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NETUID")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NETUID", "10")
	t.Setenv("ROUND_INTERVAL", "")
	t.Setenv("SIMULATOR_SEED", "")
	t.Setenv("WEB_PORT", "")

	require.NoError(t, LoadConfig())
	assert.Equal(t, uint16(10), NetUID)
	assert.Equal(t, 5*time.Minute, RoundInterval)
	assert.Equal(t, DefaultScoringParameters.QueryTimeout, QueryTimeout)
	assert.Nil(t, SimulatorSeed)
	assert.Equal(t, 8080, WebPort)
	assert.Equal(t, "info", LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("NETUID", "10")
	t.Setenv("ROUND_INTERVAL", "30s")
	t.Setenv("SIMULATOR_SEED", "-42")
	t.Setenv("EXCLUDE_QUANTILE", "6553")
	t.Setenv("DB_PORT", "6543")

	require.NoError(t, LoadConfig())
	assert.Equal(t, 30*time.Second, RoundInterval)
	require.NotNil(t, SimulatorSeed)
	assert.Equal(t, int64(-42), *SimulatorSeed)
	assert.Equal(t, uint16(6553), ExcludeQuantile)
	assert.Equal(t, 6543, DBPort)

	params, err := EffectiveParameters()
	require.NoError(t, err)
	assert.Equal(t, uint16(6553), params.Weights.ExcludeQuantile)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("NETUID", "70000")
	assert.Error(t, LoadConfig())

	t.Setenv("NETUID", "1")
	t.Setenv("MOVING_AVERAGE_ALPHA", "1.5")
	assert.Error(t, LoadConfig())

	t.Setenv("MOVING_AVERAGE_ALPHA", "")
	t.Setenv("ROUND_INTERVAL", "soon")
	assert.Error(t, LoadConfig())
}

func TestParseScoringParametersOverlaysDefaults(t *testing.T) {
	raw := []byte(`
scoring:
  apy_bin_threshold: 0.01
  query_timeout: 3s
simulation:
  num_pools: 4
`)
	params, err := ParseScoringParameters(raw)
	require.NoError(t, err)

	assert.Equal(t, 0.01, params.Scoring.ApyBinThreshold)
	assert.Equal(t, 3*time.Second, params.Scoring.QueryTimeout)
	assert.Equal(t, DefaultScoringParameters.BinRewardDecay, params.Scoring.BinRewardDecay)
	assert.Equal(t, 4, params.Simulation.NumPools)
	assert.Equal(t, DefaultSimulationParameters.MaxTimesteps, params.Simulation.MaxTimesteps)
	assert.Equal(t, DefaultWeightParameters, params.Weights)
}

func TestParseScoringParametersValidates(t *testing.T) {
	_, err := ParseScoringParameters([]byte("scoring:\n  chunk_ratio: 2\n"))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = ParseScoringParameters([]byte("simulation:\n  max_optimal_rate: 1.0\n"))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = ParseScoringParameters([]byte("scoring: [not, a, map]"))
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestLoadScoringParametersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  rate_limit_blocks: 7\n"), 0o600))

	params, err := LoadScoringParametersFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), params.Weights.RateLimitBlocks)

	_, err = LoadScoringParametersFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultsAreValid(t *testing.T) {
	f := ScoringFile{
		Scoring:    DefaultScoringParameters,
		Simulation: DefaultSimulationParameters,
		Weights:    DefaultWeightParameters,
	}
	assert.NoError(t, f.Validate())
}
