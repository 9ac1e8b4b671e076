/*

This file contains the conversion of raw miner scores into the weight vector published to the
ledger: degenerate-round fallback, quantile exclusion and max-weight clamping.

*/

package weights

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/types"
)

var weightLogger = logger.GetForComponent("weight_processor")

var (
	ErrLengthMismatch     = errors.New("uids and scores have different lengths")
	ErrNoUIDs             = errors.New("no uids to weight")
	ErrInvalidScore       = errors.New("score is negative or not finite")
	ErrInvalidWeightLimit = errors.New("max weight limit must be in (0, 1]")
)

// normalizeEpsilon keeps the cutoff search away from dividing by zero.
const normalizeEpsilon = 1e-7

type Params struct {
	MinAllowedWeights int
	MaxWeightLimit    float64
	ExcludeQuantile   uint16
}

// Result holds normalized weights aligned with UIDs. Degenerate is set when too few miners had a
// non-zero score and the uniform fallback was used.
type Result struct {
	UIDs       []types.MinerUID
	Weights    []float64
	Degenerate bool
}

// ProcessWeights turns raw scores into weights that sum to 1 with no entry above MaxWeightLimit.
//
//  1. With no non-zero score, fewer uids than MinAllowedWeights, or fewer non-zero scores than
//     MinAllowedWeights, every uid gets the same weight.
//  2. Otherwise scores below the q-quantile of the non-zero scores are dropped, where
//     q = min(ExcludeQuantile/65535, (nonZero-MinAllowedWeights)/nonZero).
//  3. The survivors alone are clamped with NormalizeMaxWeight. Every other uid gets 0.
func ProcessWeights(uids []types.MinerUID, scores []float64, params Params) (Result, error) {
	if len(uids) != len(scores) {
		return Result{}, fmt.Errorf("%w: %d uids, %d scores", ErrLengthMismatch, len(uids), len(scores))
	}
	if len(uids) == 0 {
		return Result{}, ErrNoUIDs
	}
	if params.MaxWeightLimit <= 0 || params.MaxWeightLimit > 1 {
		return Result{}, fmt.Errorf("%w: got %f", ErrInvalidWeightLimit, params.MaxWeightLimit)
	}

	nonZero := make([]float64, 0, len(scores))
	for i, s := range scores {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return Result{}, fmt.Errorf("%w: uid %d has %f", ErrInvalidScore, uids[i], s)
		}
		if s > 0 {
			nonZero = append(nonZero, s)
		}
	}

	outUIDs := append([]types.MinerUID(nil), uids...)
	n := len(uids)
	if len(nonZero) == 0 || n < params.MinAllowedWeights || len(nonZero) < params.MinAllowedWeights {
		weightLogger.Warn().
			Int("uids", n).
			Int("nonZero", len(nonZero)).
			Int("minAllowed", params.MinAllowedWeights).
			Msg("Too few non-zero scores, falling back to uniform weights")
		return Result{UIDs: outUIDs, Weights: uniform(n), Degenerate: true}, nil
	}

	maxExcludable := math.Max(0, float64(len(nonZero)-params.MinAllowedWeights)) / float64(len(nonZero))
	q := math.Min(float64(params.ExcludeQuantile)/math.MaxUint16, maxExcludable)
	cutoff := Quantile(nonZero, q)

	// only the survivors take part in the clamp; everyone else stays at zero
	keptIdx := make([]int, 0, len(nonZero))
	kept := make([]float64, 0, len(nonZero))
	for i, s := range scores {
		if s > 0 && s >= cutoff {
			keptIdx = append(keptIdx, i)
			kept = append(kept, s)
		}
	}

	weights := make([]float64, n)
	for j, w := range NormalizeMaxWeight(kept, params.MaxWeightLimit) {
		weights[keptIdx[j]] = w
	}

	weightLogger.Debug().
		Int("uids", n).
		Int("nonZero", len(nonZero)).
		Float64("quantile", q).
		Float64("cutoff", cutoff).
		Int("kept", len(kept)).
		Msg("Weights processed")

	return Result{UIDs: outUIDs, Weights: weights}, nil
}

// Quantile returns the q-quantile of values with linear interpolation between closest ranks.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q = math.Min(1, math.Max(0, q))

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// NormalizeMaxWeight normalizes x to sum 1 while capping every entry at limit. Entries above the
// cutoff are clamped to it and the vector renormalized. When n*limit <= 1 no vector can satisfy
// the cap and the uniform vector is returned. An all-zero input is also returned as uniform.
func NormalizeMaxWeight(x []float64, limit float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	if sum == 0 || float64(n)*limit <= 1 {
		return uniform(n)
	}

	y := make([]float64, n)
	maxY := 0.0
	for i, v := range x {
		y[i] = v / sum
		maxY = math.Max(maxY, y[i])
	}
	if maxY <= limit {
		return y
	}

	// estimation is y sorted ascending, cumsum[i] the sum of estimation up to i
	estimation := append([]float64(nil), y...)
	sort.Float64s(estimation)
	cumsum := make([]float64, n)
	running := 0.0
	for i, v := range estimation {
		running += v
		cumsum[i] = running
	}
	estimationSum := make([]float64, n)
	for i := 0; i < n; i++ {
		estimationSum[i] = float64(n-i-1) * estimation[i]
	}

	nValues := 0
	for i := 0; i < n; i++ {
		if estimation[i]/(estimationSum[i]+cumsum[i]+normalizeEpsilon) < limit {
			nValues++
		}
	}
	if nValues == 0 {
		return uniform(n)
	}

	cutoffScale := (limit*cumsum[nValues-1] - normalizeEpsilon) / (1 - limit*float64(n-nValues))
	cutoff := cutoffScale * sum

	clamped := make([]float64, n)
	clampedSum := 0.0
	for i, v := range x {
		clamped[i] = math.Min(v, cutoff)
		clampedSum += clamped[i]
	}
	for i := range clamped {
		clamped[i] /= clampedSum
	}
	return clamped
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}
