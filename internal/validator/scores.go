package validator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/weights"
)

// updateScores folds one round's rewards into the moving-average scores. Miners absent from
// rewards keep their score.
func (v *Validator) updateScores(ctx context.Context, rewards map[types.MinerUID]float64) {
	if len(rewards) == 0 {
		return
	}
	alpha := v.params.Weights.MovingAverageAlpha

	v.mu.Lock()
	for uid, r := range rewards {
		next := clip01(alpha*clip01(r) + (1-alpha)*v.scores[uid])
		v.scores[uid] = next
		v.metrics.MinerScore.WithLabelValues(strconv.Itoa(int(uid))).Set(next)
	}
	snapshot := copyScores(v.scores)
	v.mu.Unlock()

	if err := v.persistence.SaveScores(ctx, snapshot); err != nil {
		v.logger.Error().Err(err).Int("miners", len(snapshot)).Msg("Failed to persist scores")
	}
}

// Scores returns a copy of the current moving-average scores.
func (v *Validator) Scores() map[types.MinerUID]float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return copyScores(v.scores)
}

// SetWeights turns the moving-average scores into u16 weights and submits them. It returns false
// without error when there is nothing to submit, and ErrRateLimited when the previous submission
// is too recent.
func (v *Validator) SetWeights(ctx context.Context) (bool, error) {
	block, err := v.ledger.CurrentBlock(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read current block: %w", err)
	}

	v.mu.RLock()
	// a ledger reporting an older block than the last submission is still rate limited
	limited := v.weightsSet && (block < v.lastWeightBlock || block-v.lastWeightBlock < v.params.Weights.RateLimitBlocks)
	last := v.lastWeightBlock
	scores := copyScores(v.scores)
	v.mu.RUnlock()

	if limited {
		v.logger.Debug().Uint64("block", block).Uint64("last_block", last).Msg("Weights rate limited")
		return false, ErrRateLimited
	}
	if len(scores) == 0 {
		v.logger.Info().Msg("No scores yet, skipping weights")
		return false, nil
	}

	uids := make([]types.MinerUID, 0, len(scores))
	for uid := range scores {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	var sum float64
	for _, uid := range uids {
		sum += scores[uid]
	}
	raw := make([]float64, len(uids))
	for i, uid := range uids {
		if sum > 0 {
			raw[i] = scores[uid] / sum
		}
	}

	minAllowed, err := v.ledger.MinAllowedWeights(ctx)
	if err != nil {
		return false, v.weightsFailed(fmt.Errorf("failed to read min allowed weights: %w", err))
	}
	maxLimit, err := v.ledger.MaxWeightLimit(ctx)
	if err != nil {
		return false, v.weightsFailed(fmt.Errorf("failed to read max weight limit: %w", err))
	}

	processed, err := weights.ProcessWeights(uids, raw, weights.Params{
		MinAllowedWeights: minAllowed,
		MaxWeightLimit:    maxLimit,
		ExcludeQuantile:   v.params.Weights.ExcludeQuantile,
	})
	if err != nil {
		return false, v.weightsFailed(err)
	}
	u16, err := weights.ConvertToU16(processed.UIDs, processed.Weights)
	if err != nil {
		return false, v.weightsFailed(err)
	}

	if err := v.ledger.SetWeights(ctx, u16); err != nil {
		return false, v.weightsFailed(fmt.Errorf("failed to submit weights: %w", err))
	}

	v.mu.Lock()
	v.lastWeightBlock = block
	v.weightsSet = true
	v.mu.Unlock()

	v.metrics.WeightSubmissions.WithLabelValues("success").Inc()
	v.metrics.LastWeightBlock.Set(float64(block))
	v.logger.Info().
		Uint64("block", block).
		Int("uids", len(u16.UIDs)).
		Bool("uniform", processed.Degenerate).
		Msg("Weights set")
	return true, nil
}

func (v *Validator) weightsFailed(err error) error {
	v.metrics.WeightSubmissions.WithLabelValues("failure").Inc()
	return err
}

func clip01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func copyScores(in map[types.MinerUID]float64) map[types.MinerUID]float64 {
	out := make(map[types.MinerUID]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
