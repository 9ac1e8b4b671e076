package weights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldcore/internal/types"
)

func seqUIDs(n int) []types.MinerUID {
	out := make([]types.MinerUID, n)
	for i := range out {
		out[i] = types.MinerUID(i)
	}
	return out
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func TestProcessWeightsSumsToOneUnderLimit(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.05, 0.02, 0.5, 0, 0.3, 0.7, 1.0, 0.01, 0.2, 0.6}
	limit := 0.2
	res, err := ProcessWeights(seqUIDs(len(scores)), scores, Params{MinAllowedWeights: 4, MaxWeightLimit: limit})
	require.NoError(t, err)
	assert.False(t, res.Degenerate)

	assert.InDelta(t, 1.0, sum(res.Weights), 1e-6)
	for i, w := range res.Weights {
		assert.LessOrEqual(t, w, limit+1e-6, "uid %d", i)
		assert.GreaterOrEqual(t, w, 0.0)
	}
	// zero scores stay zero
	assert.Equal(t, 0.0, res.Weights[5])
}

func TestProcessWeightsUniformFallback(t *testing.T) {
	cases := map[string][]float64{
		"all zero":           {0, 0, 0, 0},
		"too few non-zero":   {0, 0.5, 0, 0.1},
		"fewer than allowed": {0.5, 0.1},
	}
	for name, scores := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := ProcessWeights(seqUIDs(len(scores)), scores, Params{MinAllowedWeights: 3, MaxWeightLimit: 0.5})
			require.NoError(t, err)
			assert.True(t, res.Degenerate)
			for _, w := range res.Weights {
				assert.InDelta(t, 1/float64(len(scores)), w, 1e-12)
			}
		})
	}
}

func TestProcessWeightsExcludesLowQuantile(t *testing.T) {
	scores := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	// half the non-zero scores, capped by (10-2)/10 = 0.8
	res, err := ProcessWeights(seqUIDs(len(scores)), scores, Params{MinAllowedWeights: 2, MaxWeightLimit: 1, ExcludeQuantile: 32768})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 0.0, res.Weights[i], "uid %d should be excluded", i)
	}
	for i := 5; i < 10; i++ {
		assert.Greater(t, res.Weights[i], 0.0, "uid %d should be kept", i)
	}
	assert.InDelta(t, 1.0, sum(res.Weights), 1e-6)
}

func TestProcessWeightsClampIgnoresZeroScores(t *testing.T) {
	scores := []float64{10, 1, 1, 0, 0, 0, 0, 0, 0, 0}
	res, err := ProcessWeights(seqUIDs(len(scores)), scores, Params{MinAllowedWeights: 1, MaxWeightLimit: 0.2})
	require.NoError(t, err)
	assert.False(t, res.Degenerate)

	// three survivors cannot all stay under 0.2, so they share evenly
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0/3, res.Weights[i], 1e-12, "uid %d", i)
	}
	for i := 3; i < len(scores); i++ {
		assert.Equal(t, 0.0, res.Weights[i], "uid %d has no score", i)
	}
}

func TestProcessWeightsClampAfterExclusion(t *testing.T) {
	// cutoff is the 0.75-quantile of [1 2 3 4], 3.25, so only uid 0 survives
	scores := []float64{4, 3, 2, 1}
	res, err := ProcessWeights(seqUIDs(len(scores)), scores, Params{MinAllowedWeights: 1, MaxWeightLimit: 0.6, ExcludeQuantile: 65535})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 0}, res.Weights)
}

func TestProcessWeightsClampsSurvivorsOnly(t *testing.T) {
	scores := []float64{0, 10, 1, 1, 1, 0}
	res, err := ProcessWeights(seqUIDs(len(scores)), scores, Params{MinAllowedWeights: 1, MaxWeightLimit: 0.5})
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Weights[0])
	assert.Equal(t, 0.0, res.Weights[5])
	assert.InDelta(t, 0.5, res.Weights[1], 1e-6)
	for i := 2; i <= 4; i++ {
		assert.InDelta(t, 1.0/6, res.Weights[i], 1e-6, "uid %d", i)
	}
	assert.InDelta(t, 1.0, sum(res.Weights), 1e-9)
}

func TestProcessWeightsZeroQuantileKeepsEveryNonZero(t *testing.T) {
	scores := []float64{0.1, 0.2, 0, 0.4}
	res, err := ProcessWeights(seqUIDs(len(scores)), scores, Params{MinAllowedWeights: 1, MaxWeightLimit: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.1/0.7, res.Weights[0], 1e-9)
	assert.Equal(t, 0.0, res.Weights[2])
}

func TestProcessWeightsRejectsBadInput(t *testing.T) {
	_, err := ProcessWeights(seqUIDs(2), []float64{1}, Params{MaxWeightLimit: 1})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = ProcessWeights(nil, nil, Params{MaxWeightLimit: 1})
	assert.ErrorIs(t, err, ErrNoUIDs)

	_, err = ProcessWeights(seqUIDs(1), []float64{-1}, Params{MaxWeightLimit: 1})
	assert.ErrorIs(t, err, ErrInvalidScore)

	_, err = ProcessWeights(seqUIDs(1), []float64{1}, Params{MaxWeightLimit: 0})
	assert.ErrorIs(t, err, ErrInvalidWeightLimit)
}

func TestQuantile(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	assert.Equal(t, 1.0, Quantile(values, 0))
	assert.Equal(t, 4.0, Quantile(values, 1))
	assert.InDelta(t, 2.5, Quantile(values, 0.5), 1e-12)
	assert.InDelta(t, 1.3, Quantile(values, 0.1), 1e-12)
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
}

func TestNormalizeMaxWeight(t *testing.T) {
	w := NormalizeMaxWeight([]float64{1, 1, 10}, 0.4)
	assert.InDelta(t, 1.0, sum(w), 1e-9)
	assert.InDelta(t, 0.3, w[0], 1e-6)
	assert.InDelta(t, 0.3, w[1], 1e-6)
	assert.InDelta(t, 0.4, w[2], 1e-6)

	// already under the limit: plain normalization
	w = NormalizeMaxWeight([]float64{1, 2, 2}, 0.5)
	assert.InDelta(t, 0.2, w[0], 1e-12)

	// infeasible limit: uniform
	w = NormalizeMaxWeight([]float64{5, 1}, 0.4)
	assert.Equal(t, []float64{0.5, 0.5}, w)
}

func TestConvertToU16(t *testing.T) {
	out, err := ConvertToU16([]types.MinerUID{3, 4, 5, 6}, []float64{0.5, 0.25, 0, 0.000001})
	require.NoError(t, err)
	assert.Equal(t, []uint16{3, 4}, out.UIDs)
	assert.Equal(t, []uint16{65535, 32768}, out.Weights)

	empty, err := ConvertToU16([]types.MinerUID{1}, []float64{0})
	require.NoError(t, err)
	assert.Empty(t, empty.UIDs)

	_, err = ConvertToU16([]types.MinerUID{1}, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
