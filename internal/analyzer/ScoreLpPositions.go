/*

This file contains the scoring of Uniswap V3 liquidity providers. A position earns its liquidity L
while the pool's current tick sits inside its range, nothing otherwise. Tighter ranges already
hold more L for the same capital, so concentration needs no extra multiplier.

*/

package analyzer

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"sort"
	"strings"

	sdkmath "cosmossdk.io/math"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/uniswap"
	"github.com/elys-network/yieldcore/internal/utils"
)

var lpScoreLogger = logger.GetForComponent("lp_scorer")

// LpResult is the outcome of an LP round.
type LpResult struct {
	Positions []types.LpPositionScore        `json:"positions"`
	Claimed   map[types.MinerUID][]uint64    `json:"claimed"`
	RawScores map[types.MinerUID]sdkmath.Int `json:"raw_scores"`
	Rewards   map[types.MinerUID]float64     `json:"rewards"`
}

// ScoreLpPositions attributes positions to miners and scores them.
//
// Miners are visited in uid order. A miner claims the positions owned by its registered address
// (compared case-insensitively) unless an earlier miner already registered the same address. Each
// position can be claimed once. The overflow miner, if any, then claims every position still
// unclaimed. Rewards are raw scores divided by the best raw score.
func ScoreLpPositions(ctx context.Context, snapshot types.LpSnapshot, workers int) (LpResult, error) {
	if snapshot.CurrentTick < uniswap.MinTick || snapshot.CurrentTick > uniswap.MaxTick {
		return LpResult{}, fmt.Errorf("%w: current tick %d", uniswap.ErrTickOutOfRange, snapshot.CurrentTick)
	}

	positions, err := evaluatePositions(ctx, snapshot, workers)
	if err != nil {
		return LpResult{}, err
	}

	byOwner := make(map[string][]int)
	for i, p := range positions {
		owner := strings.ToLower(p.Owner)
		byOwner[owner] = append(byOwner[owner], i)
	}

	uids := make([]types.MinerUID, 0, len(snapshot.MinerAddresses))
	for uid := range snapshot.MinerAddresses {
		uids = append(uids, uid)
	}
	if snapshot.OverflowMiner != nil {
		if _, ok := snapshot.MinerAddresses[*snapshot.OverflowMiner]; !ok {
			uids = append(uids, *snapshot.OverflowMiner)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	result := LpResult{
		Positions: positions,
		Claimed:   make(map[types.MinerUID][]uint64, len(uids)),
		RawScores: make(map[types.MinerUID]sdkmath.Int, len(uids)),
		Rewards:   make(map[types.MinerUID]float64, len(uids)),
	}

	claimedPositions := make(map[uint64]bool, len(positions))
	claimedOwners := make(map[string]types.MinerUID)
	claim := func(uid types.MinerUID, idx int) {
		p := positions[idx]
		if claimedPositions[p.PositionID] {
			return
		}
		claimedPositions[p.PositionID] = true
		result.Claimed[uid] = append(result.Claimed[uid], p.PositionID)
		result.RawScores[uid] = result.RawScores[uid].Add(p.Score)
	}

	for _, uid := range uids {
		result.RawScores[uid] = sdkmath.ZeroInt()
		owner := strings.ToLower(strings.TrimSpace(snapshot.MinerAddresses[uid]))
		if owner == "" {
			continue
		}
		if first, taken := claimedOwners[owner]; taken {
			lpScoreLogger.Warn().
				Uint16("uid", uint16(uid)).
				Uint16("firstClaimant", uint16(first)).
				Str("owner", owner).
				Msg("Address already claimed by another miner, ignoring")
			continue
		}
		claimedOwners[owner] = uid
		for _, idx := range byOwner[owner] {
			claim(uid, idx)
		}
	}

	if snapshot.OverflowMiner != nil {
		for idx := range positions {
			claim(*snapshot.OverflowMiner, idx)
		}
	}

	maxScore := sdkmath.ZeroInt()
	for _, s := range result.RawScores {
		maxScore = sdkmath.MaxInt(maxScore, s)
	}
	for uid, s := range result.RawScores {
		if !maxScore.IsPositive() {
			result.Rewards[uid] = 0
			continue
		}
		ratio, err := utils.IntRatio(s, maxScore)
		if err != nil {
			return LpResult{}, fmt.Errorf("failed to normalize score of uid %d: %w", uid, err)
		}
		result.Rewards[uid] = ratio
	}

	lpScoreLogger.Info().
		Int32("currentTick", snapshot.CurrentTick).
		Int("positions", len(positions)).
		Int("claimed", len(claimedPositions)).
		Int("miners", len(uids)).
		Msg("LP positions scored")

	return result, nil
}

// evaluatePositions computes range membership, score and token amounts of every position.
// Positions with invalid ticks are kept with a zero score so they can still be audited.
func evaluatePositions(ctx context.Context, snapshot types.LpSnapshot, workers int) ([]types.LpPositionScore, error) {
	sqrtPrice, err := uniswap.SqrtRatioAtTick(snapshot.CurrentTick)
	if err != nil {
		return nil, err
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]types.LpPositionScore, len(snapshot.Positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pos := range snapshot.Positions {
		i, pos := i, pos
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = evaluatePosition(pos, snapshot.CurrentTick, sqrtPrice)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func evaluatePosition(pos types.UniswapPosition, currentTick int32, sqrtPrice *big.Int) types.LpPositionScore {
	score := types.LpPositionScore{
		PositionID: pos.PositionID,
		Owner:      pos.Owner,
		Score:      sdkmath.ZeroInt(),
		Amount0:    sdkmath.ZeroInt(),
		Amount1:    sdkmath.ZeroInt(),
	}
	if pos.Liquidity.IsNil() || pos.Liquidity.IsNegative() {
		return score
	}

	amount0, amount1, err := uniswap.AmountsForLiquidity(sqrtPrice, pos.TickLower, pos.TickUpper, pos.Liquidity.BigInt())
	if err != nil {
		lpScoreLogger.Warn().
			Uint64("positionID", pos.PositionID).
			Int32("tickLower", pos.TickLower).
			Int32("tickUpper", pos.TickUpper).
			Err(err).
			Msg("Position has an invalid range, scoring zero")
		return score
	}
	score.Amount0 = sdkmath.NewIntFromBigInt(amount0)
	score.Amount1 = sdkmath.NewIntFromBigInt(amount1)

	score.InRange = pos.TickLower <= currentTick && currentTick <= pos.TickUpper
	if score.InRange {
		score.Score = pos.Liquidity
	}
	return score
}
