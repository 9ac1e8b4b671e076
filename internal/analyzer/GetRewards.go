/*

This file contains the round scoring engine: it validates and prices every miner response in
parallel, then runs the binning, similarity penalty and top performer stages over the responses
that survived validation.

*/

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	sdkmath "cosmossdk.io/math"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/simulator"
	"github.com/elys-network/yieldcore/internal/types"
)

var minerScoreLogger = logger.GetForComponent("miner_scorer")

var ErrMissingSimulation = errors.New("synthetic request needs a simulation setup")

// SimulationSetup is what every per-miner simulator needs to replay the round's synthetic market.
// Every miner is evaluated against a fresh simulator built from the same values, which is the same
// as resetting one shared simulator between miners.
type SimulationSetup struct {
	Seed           int64
	Timesteps      int
	Stochasticity  float64
	ReversionSpeed float64
	Params         types.SimulationParameters
}

// Input is one round to score.
type Input struct {
	RequestType types.RequestType
	Problem     types.AssetsAndPools
	// UIDs are the miners that were queried. A uid without an entry in Responses is missing.
	UIDs       []types.MinerUID
	Responses  map[types.MinerUID]types.MinerResponse
	Params     types.ScoringParameters
	Simulation *SimulationSetup
}

// Result is the scored round. Every queried uid has an entry in each map.
type Result struct {
	AllocInfos      map[types.MinerUID]types.AllocInfo      `json:"alloc_infos"`
	Rewards         map[types.MinerUID]float64              `json:"rewards"`
	RelativeRewards map[types.MinerUID]float64              `json:"relative_rewards"`
	Penalties       map[types.MinerUID]float64              `json:"penalties"`
	Statuses        map[types.MinerUID]types.ResponseStatus `json:"statuses"`
	Bins            []types.Bin                             `json:"bins"`
}

type minerOutcome struct {
	status types.ResponseStatus
	apy    sdkmath.Int
	alloc  types.Allocation
	reason error
}

// GetRewards scores every queried miner of a round.
//
// Inputs:
//   - in: the round problem, the queried uids and their responses, scoring parameters and, for
//     synthetic requests, the simulation to replay.
//
// Output:
//   - A Result with rewards in [0, 1]. Cheating and missing miners get APY 0 and reward 0 and
//     never take part in binning or the bonus.
//   - An error only when the round itself is unusable (malformed problem, missing simulation,
//     cancelled context). Per-miner faults never fail the round.
func GetRewards(ctx context.Context, in Input) (Result, error) {
	if err := in.Problem.Validate(); err != nil {
		minerScoreLogger.Error().Err(err).Msg("Refusing to score a malformed problem")
		return Result{}, err
	}
	if in.RequestType == types.RequestSynthetic && in.Simulation == nil {
		return Result{}, ErrMissingSimulation
	}

	uids := dedupeUIDs(in.UIDs)
	outcomes := make([]minerOutcome, len(uids))

	workers := in.Params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, uid := range uids {
		i, uid := i, uid
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resp, ok := in.Responses[uid]
			outcomes[i] = scoreResponse(in, resp, ok)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("scoring interrupted: %w", err)
	}

	result := Result{
		AllocInfos: make(map[types.MinerUID]types.AllocInfo, len(uids)),
		Rewards:    make(map[types.MinerUID]float64, len(uids)),
		Penalties:  make(map[types.MinerUID]float64, len(uids)),
		Statuses:   make(map[types.MinerUID]types.ResponseStatus, len(uids)),
	}
	allApys := make(map[types.MinerUID]sdkmath.Int, len(uids))
	scoredApys := make(map[types.MinerUID]sdkmath.Int)
	scoredAllocs := make(map[types.MinerUID]types.Allocation)
	eligible := make(map[types.MinerUID]bool)

	for i, uid := range uids {
		o := outcomes[i]
		result.Statuses[uid] = o.status
		result.AllocInfos[uid] = types.AllocInfo{APY: o.apy, Allocations: o.alloc}
		allApys[uid] = o.apy
		result.Rewards[uid] = 0
		result.Penalties[uid] = 0

		switch o.status {
		case types.StatusScored:
			scoredApys[uid] = o.apy
			scoredAllocs[uid] = o.alloc
			eligible[uid] = true
		case types.StatusCheating:
			minerScoreLogger.Warn().
				Uint16("uid", uint16(uid)).
				Err(o.reason).
				Msg("Cheating response, scoring zero")
		default:
			minerScoreLogger.Debug().
				Uint16("uid", uint16(uid)).
				Err(o.reason).
				Msg("Missing response, scoring zero")
		}
	}

	result.RelativeRewards = RelativeRewards(allApys, in.Params.RewardEpsilon)

	result.Bins = CreateAPYBins(scoredApys, in.Params.ApyBinThreshold)
	base := BaseRewards(result.Bins, in.Params.BinRewardDecay)
	penalties := SimilarityPenalties(result.Bins, scoredAllocs, in.Problem)

	final := make(map[types.MinerUID]float64, len(uids))
	for _, uid := range uids {
		final[uid] = 0
	}
	for uid := range scoredApys {
		result.Penalties[uid] = penalties[uid]
		final[uid] = base[uid] * (1 - penalties[uid])
	}
	final = ApplyTopPerformerBonus(final, eligible, in.Params.TopPerformersCount, in.Params.TopPerformersBonus)
	result.Rewards = NormalizeByMax(final, in.Params.RewardEpsilon)

	minerScoreLogger.Info().
		Str("requestType", string(in.RequestType)).
		Int("miners", len(uids)).
		Int("scored", len(scoredApys)).
		Int("bins", len(result.Bins)).
		Msg("Round scored")

	return result, nil
}

func scoreResponse(in Input, resp types.MinerResponse, ok bool) minerOutcome {
	zero := sdkmath.ZeroInt()
	switch {
	case !ok || resp.Allocation == nil:
		return minerOutcome{status: types.StatusMissing, apy: zero, reason: errors.New("no response")}
	case resp.TimedOut || (in.Params.QueryTimeout > 0 && resp.Latency >= in.Params.QueryTimeout):
		return minerOutcome{status: types.StatusMissing, apy: zero, alloc: resp.Allocation,
			reason: fmt.Errorf("response took %s, timeout is %s", resp.Latency, in.Params.QueryTimeout)}
	}

	if err := CheckAllocations(in.Problem, resp.Allocation); err != nil {
		return minerOutcome{status: types.StatusCheating, apy: zero, alloc: resp.Allocation, reason: err}
	}

	var apy sdkmath.Int
	var err error
	if in.RequestType == types.RequestSynthetic {
		apy, err = simulatedAPY(in.Problem, resp.Allocation, *in.Simulation)
	} else {
		apy, err = CalculateAPY(resp.Allocation, in.Problem)
	}
	if err != nil {
		return minerOutcome{status: types.StatusCheating, apy: zero, alloc: resp.Allocation,
			reason: errors.Join(errors.New("failed to calculate apy"), err)}
	}
	return minerOutcome{status: types.StatusScored, apy: apy, alloc: resp.Allocation}
}

func simulatedAPY(problem types.AssetsAndPools, alloc types.Allocation, setup SimulationSetup) (sdkmath.Int, error) {
	seed := setup.Seed
	sim, err := simulator.New(simulator.Options{Seed: &seed, ReversionSpeed: setup.ReversionSpeed, Params: setup.Params})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	timesteps, stochasticity := setup.Timesteps, setup.Stochasticity
	sim.Initialize(&timesteps, &stochasticity)
	if err := sim.InitData(&problem, alloc); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := sim.UpdateReservesWithAllocs(nil); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := sim.Run(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return CalculateAggregateAPY(alloc, problem, sim.History(), sim.Timesteps())
}

func dedupeUIDs(uids []types.MinerUID) []types.MinerUID {
	seen := make(map[types.MinerUID]struct{}, len(uids))
	out := make([]types.MinerUID, 0, len(uids))
	for _, uid := range uids {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
