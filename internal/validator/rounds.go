package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldcore/internal/analyzer"
	"github.com/elys-network/yieldcore/internal/simulator"
	"github.com/elys-network/yieldcore/internal/types"
)

// RoundOutcome is what a round produced. Bins is empty for LP rounds and Lp is nil for allocation
// rounds.
type RoundOutcome struct {
	Record types.RoundRecord
	Bins   []types.Bin
	Lp     *analyzer.LpResult
}

// Best returns the scored miner with the highest reward, lowest uid on ties.
func (o *RoundOutcome) Best() (types.MinerUID, types.Allocation, bool) {
	var best types.MinerUID
	bestReward := -1.0
	found := false
	for uid, status := range o.Record.Statuses {
		if status != types.StatusScored {
			continue
		}
		r := o.Record.Rewards[uid]
		if r > bestReward || (r == bestReward && uid < best) {
			best, bestReward, found = uid, r, true
		}
	}
	if !found {
		return 0, nil, false
	}
	return best, o.Record.AllocInfos[best].Allocations, true
}

// RunAllocationRound generates a synthetic problem with the simulator, queries every allocation
// miner and scores the answers on the simulated market.
func (v *Validator) RunAllocationRound(ctx context.Context) (*RoundOutcome, error) {
	seed := v.nextSeed()
	simParams := v.params.Simulation
	sim, err := simulator.New(simulator.Options{Seed: &seed, ReversionSpeed: simParams.ReversionSpeed, Params: simParams})
	if err != nil {
		return nil, err
	}
	sim.Initialize(nil, nil)
	if err := sim.InitData(nil, nil); err != nil {
		return nil, fmt.Errorf("failed to generate synthetic problem: %w", err)
	}

	setup := &analyzer.SimulationSetup{
		Seed:           seed,
		Timesteps:      sim.Timesteps(),
		Stochasticity:  sim.Stochasticity(),
		ReversionSpeed: simParams.ReversionSpeed,
		Params:         simParams,
	}
	return v.runAllocation(ctx, types.RequestSynthetic, sim.AssetsAndPools(), setup)
}

// RunOrganicRound forwards a live problem to every allocation miner and scores the answers on the
// problem's current rates.
func (v *Validator) RunOrganicRound(ctx context.Context, problem types.AssetsAndPools) (*RoundOutcome, error) {
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	return v.runAllocation(ctx, types.RequestOrganic, problem.Clone(), nil)
}

func (v *Validator) runAllocation(ctx context.Context, requestType types.RequestType, problem types.AssetsAndPools, setup *analyzer.SimulationSetup) (*RoundOutcome, error) {
	started := time.Now()
	kind := types.AllocationMiner

	requestID := uuid.New().String()
	roundLogger := v.logger.With().Str("request_id", requestID).Str("request_type", string(requestType)).Logger()

	miners, err := v.ledger.ActiveMiners(ctx)
	if err != nil {
		return nil, v.roundFailed(kind, fmt.Errorf("failed to read active miners: %w", err))
	}
	uids := miners[kind]
	if len(uids) == 0 {
		return nil, v.roundFailed(kind, ErrNoMiners)
	}
	block, err := v.ledger.CurrentBlock(ctx)
	if err != nil {
		return nil, v.roundFailed(kind, fmt.Errorf("failed to read current block: %w", err))
	}
	round := v.nextRound(ctx)

	roundLogger.Info().
		Int("round", round).
		Uint64("block", block).
		Int("miners", len(uids)).
		Int("pools", len(problem.Pools)).
		Msg("--- Starting allocation round ---")

	req := types.AllocationRequest{RequestID: requestID, RequestType: requestType, AssetsAndPools: problem}
	responses, err := v.transport.Send(ctx, req, uids, v.params.Scoring.QueryTimeout)
	if err != nil {
		return nil, v.roundFailed(kind, fmt.Errorf("failed to query miners: %w", err))
	}

	result, err := analyzer.GetRewards(ctx, analyzer.Input{
		RequestType: requestType,
		Problem:     problem,
		UIDs:        uids,
		Responses:   responses,
		Params:      v.params.Scoring,
		Simulation:  setup,
	})
	if err != nil {
		return nil, v.roundFailed(kind, fmt.Errorf("failed to score round: %w", err))
	}

	v.updateScores(ctx, result.Rewards)

	record := types.RoundRecord{
		RequestID:   requestID,
		Round:       round,
		Kind:        kind,
		RequestType: requestType,
		Block:       block,
		Problem:     &problem,
		Responses:   responses,
		AllocInfos:  result.AllocInfos,
		Statuses:    result.Statuses,
		Rewards:     result.Rewards,
		CreatedAt:   time.Now().UTC(),
	}
	v.finishRound(roundLogger, record, started)
	return &RoundOutcome{Record: record, Bins: result.Bins}, nil
}

// RunLpRound scores the registered Uniswap V3 positions of every LP miner.
func (v *Validator) RunLpRound(ctx context.Context) (*RoundOutcome, error) {
	started := time.Now()
	kind := types.UniswapLpMiner

	requestID := uuid.New().String()
	roundLogger := v.logger.With().Str("request_id", requestID).Str("kind", kind.String()).Logger()

	snapshot, err := v.ledger.LpSnapshot(ctx)
	if err != nil {
		return nil, v.roundFailed(kind, fmt.Errorf("failed to read lp snapshot: %w", err))
	}
	block, err := v.ledger.CurrentBlock(ctx)
	if err != nil {
		return nil, v.roundFailed(kind, fmt.Errorf("failed to read current block: %w", err))
	}
	round := v.nextRound(ctx)

	roundLogger.Info().
		Int("round", round).
		Uint64("block", block).
		Int("positions", len(snapshot.Positions)).
		Int("miners", len(snapshot.MinerAddresses)).
		Msg("--- Starting LP round ---")

	result, err := analyzer.ScoreLpPositions(ctx, snapshot, v.params.Scoring.Workers)
	if err != nil {
		return nil, v.roundFailed(kind, fmt.Errorf("failed to score lp positions: %w", err))
	}

	v.updateScores(ctx, result.Rewards)

	statuses := make(map[types.MinerUID]types.ResponseStatus, len(result.Rewards))
	infos := make(map[types.MinerUID]types.AllocInfo, len(result.Rewards))
	for uid := range result.Rewards {
		statuses[uid] = types.StatusScored
		infos[uid] = types.AllocInfo{APY: result.RawScores[uid]}
	}
	record := types.RoundRecord{
		RequestID:   requestID,
		Round:       round,
		Kind:        kind,
		RequestType: types.RequestOrganic,
		Block:       block,
		AllocInfos:  infos,
		Statuses:    statuses,
		Rewards:     result.Rewards,
		CreatedAt:   time.Now().UTC(),
	}
	v.finishRound(roundLogger, record, started)
	return &RoundOutcome{Record: record, Lp: &result}, nil
}

func (v *Validator) roundFailed(kind types.MinerKind, err error) error {
	v.metrics.RoundErrors.WithLabelValues(kind.String()).Inc()
	return err
}

func (v *Validator) finishRound(roundLogger zerolog.Logger, record types.RoundRecord, started time.Time) {
	v.persistence.RecordRound(record)

	kind := record.Kind.String()
	v.metrics.RoundsTotal.WithLabelValues(kind, string(record.RequestType)).Inc()
	v.metrics.RoundDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	for _, status := range record.Statuses {
		v.metrics.MinerResponses.WithLabelValues(string(status)).Inc()
	}

	roundLogger.Info().
		Int("round", record.Round).
		Int("miners", len(record.Rewards)).
		Str("duration", time.Since(started).String()).
		Msg("--- Round completed ---")
}
