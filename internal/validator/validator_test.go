package validator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/ledger"
	"github.com/elys-network/yieldcore/internal/observability"
	"github.com/elys-network/yieldcore/internal/transport"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

func testParams() config.ScoringFile {
	params := config.ScoringFile{
		Scoring:    config.DefaultScoringParameters,
		Simulation: config.DefaultSimulationParameters,
		Weights:    config.DefaultWeightParameters,
	}
	params.Scoring.Workers = 2
	params.Simulation.NumPools = 4
	params.Simulation.MinTimesteps = 10
	params.Simulation.MaxTimesteps = 20
	return params
}

func organicProblem() types.AssetsAndPools {
	pool := func(id types.PoolID, base, borrow float64) types.Pool {
		return types.Pool{
			PoolID:          id,
			BaseRate:        utils.MustFloat64ToWei(base),
			BaseSlope:       utils.MustFloat64ToWei(0.05),
			KinkSlope:       utils.MustFloat64ToWei(0.5),
			OptimalUtilRate: utils.MustFloat64ToWei(0.8),
			BorrowAmount:    utils.MustFloat64ToWei(borrow),
			ReserveSize:     utils.MustFloat64ToWei(1),
		}
	}
	return types.AssetsAndPools{
		TotalAssets: utils.MustFloat64ToWei(3),
		Pools: map[types.PoolID]types.Pool{
			"0": pool("0", 0.01, 0.5),
			"1": pool("1", 0.03, 0.2),
			"2": pool("2", 0.02, 0.3),
		},
	}
}

type fixture struct {
	validator *Validator
	ledger    *ledger.StaticClient
	store     *MemoryPersistence
	metrics   *observability.Metrics
}

func newFixture(t *testing.T, miners map[types.MinerKind][]types.MinerUID, strategies map[types.MinerUID]transport.Strategy, lp *types.LpSnapshot, seed *int64) fixture {
	t.Helper()
	client, err := ledger.NewStaticClient(ledger.StaticConfig{
		StartBlock:        500,
		MinAllowedWeights: 1,
		MaxWeightLimit:    1,
		Miners:            miners,
		Lp:                lp,
	})
	require.NoError(t, err)

	store := NewMemoryPersistence()
	metrics := observability.NewMetrics("")
	v, err := NewValidator(Config{
		Ledger:      client,
		Transport:   transport.NewLocal(strategies, 4),
		Persistence: store,
		Metrics:     metrics,
		Params:      testParams(),
		Seed:        seed,
	})
	require.NoError(t, err)
	return fixture{validator: v, ledger: client, store: store, metrics: metrics}
}

func TestNewValidatorValidation(t *testing.T) {
	_, err := NewValidator(Config{Transport: transport.NewLocal(nil, 1), Params: testParams()})
	assert.Error(t, err)

	client, err := ledger.NewStaticClient(ledger.StaticConfig{MaxWeightLimit: 1})
	require.NoError(t, err)
	_, err = NewValidator(Config{Ledger: client, Params: testParams()})
	assert.Error(t, err)

	bad := testParams()
	bad.Weights.MovingAverageAlpha = 2
	_, err = NewValidator(Config{Ledger: client, Transport: transport.NewLocal(nil, 1), Params: bad})
	assert.Error(t, err)

	v, err := NewValidator(Config{Ledger: client, Transport: transport.NewLocal(nil, 1), Params: testParams()})
	require.NoError(t, err)
	assert.NotNil(t, v.persistence)
	assert.NotNil(t, v.metrics)
}

func TestOrganicRoundStatusesAndBest(t *testing.T) {
	strategies := map[types.MinerUID]transport.Strategy{
		1: transport.GreedyStrategy(0.01),
		2: func(ctx context.Context, req types.AllocationRequest) (types.Allocation, error) {
			// more than the total assets
			return types.Allocation{"0": utils.MustFloat64ToWei(10)}, nil
		},
		3: func(ctx context.Context, req types.AllocationRequest) (types.Allocation, error) {
			return nil, errors.New("offline")
		},
	}
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{types.AllocationMiner: {1, 2, 3}}, strategies, nil, nil)

	outcome, err := f.validator.RunOrganicRound(context.Background(), organicProblem())
	require.NoError(t, err)

	rec := outcome.Record
	assert.Equal(t, types.RequestOrganic, rec.RequestType)
	assert.Equal(t, types.AllocationMiner, rec.Kind)
	assert.Equal(t, 1, rec.Round)
	assert.NotEmpty(t, rec.RequestID)
	assert.Equal(t, uint64(500), rec.Block)
	assert.Equal(t, types.StatusScored, rec.Statuses[1])
	assert.Equal(t, types.StatusCheating, rec.Statuses[2])
	assert.Equal(t, types.StatusMissing, rec.Statuses[3])
	assert.Equal(t, 1.0, rec.Rewards[1])
	assert.Equal(t, 0.0, rec.Rewards[2])
	assert.Equal(t, 0.0, rec.Rewards[3])

	uid, alloc, ok := outcome.Best()
	require.True(t, ok)
	assert.Equal(t, types.MinerUID(1), uid)
	assert.True(t, alloc.Total().Equal(organicProblem().TotalAssets))

	records := f.store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, rec.RequestID, records[0].RequestID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RoundsTotal.WithLabelValues("allocation", "ORGANIC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MinerResponses.WithLabelValues("cheating")))
}

func TestOrganicRoundRejectsMalformedProblem(t *testing.T) {
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{types.AllocationMiner: {1}}, transport.DefaultStrategies(1), nil, nil)

	problem := organicProblem()
	p := problem.Pools["0"]
	p.BorrowAmount = utils.MustFloat64ToWei(5)
	problem.Pools["0"] = p

	_, err := f.validator.RunOrganicRound(context.Background(), problem)
	assert.ErrorIs(t, err, types.ErrInvalidPool)
	assert.Empty(t, f.store.Records())
}

func TestBestWithoutScoredMiners(t *testing.T) {
	outcome := RoundOutcome{Record: types.RoundRecord{
		Statuses: map[types.MinerUID]types.ResponseStatus{1: types.StatusMissing},
		Rewards:  map[types.MinerUID]float64{1: 0},
	}}
	_, _, ok := outcome.Best()
	assert.False(t, ok)

	outcome.Record.Statuses = map[types.MinerUID]types.ResponseStatus{4: types.StatusScored, 2: types.StatusScored}
	outcome.Record.Rewards = map[types.MinerUID]float64{4: 0.5, 2: 0.5}
	uid, _, ok := outcome.Best()
	require.True(t, ok)
	assert.Equal(t, types.MinerUID(2), uid)
}

func TestSyntheticRoundIsReproducible(t *testing.T) {
	miners := map[types.MinerKind][]types.MinerUID{types.AllocationMiner: {0, 1, 2}}
	seed := int64(42)

	run := func() types.RoundRecord {
		f := newFixture(t, miners, transport.DefaultStrategies(3), nil, &seed)
		outcome, err := f.validator.RunAllocationRound(context.Background())
		require.NoError(t, err)
		return outcome.Record
	}
	first, second := run(), run()

	assert.Equal(t, types.RequestSynthetic, first.RequestType)
	require.NotNil(t, first.Problem)
	assert.Len(t, first.Problem.Pools, 4)

	a, err := json.Marshal(first.Problem)
	require.NoError(t, err)
	b, err := json.Marshal(second.Problem)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, first.Rewards, second.Rewards)

	for _, uid := range miners[types.AllocationMiner] {
		assert.Equal(t, types.StatusScored, first.Statuses[uid])
	}
}

func TestAllocationRoundWithoutMiners(t *testing.T) {
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{}, nil, nil, nil)
	_, err := f.validator.RunAllocationRound(context.Background())
	assert.ErrorIs(t, err, ErrNoMiners)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RoundErrors.WithLabelValues("allocation")))
}

func TestLpRound(t *testing.T) {
	overflow := types.MinerUID(9)
	snapshot := &types.LpSnapshot{
		CurrentTick: 100,
		Positions: []types.UniswapPosition{
			{PositionID: 1, Owner: "0xabc", Liquidity: sdkmath.NewInt(1000), TickLower: -60, TickUpper: 120},
			{PositionID: 2, Owner: "0xdef", Liquidity: sdkmath.NewInt(4000), TickLower: 0, TickUpper: 100},
		},
		MinerAddresses: map[types.MinerUID]string{1: "0xABC", 3: "0xDEF"},
		OverflowMiner:  &overflow,
	}
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{types.UniswapLpMiner: {1, 3}}, nil, snapshot, nil)

	outcome, err := f.validator.RunLpRound(context.Background())
	require.NoError(t, err)
	require.NotNil(t, outcome.Lp)

	rec := outcome.Record
	assert.Equal(t, types.UniswapLpMiner, rec.Kind)
	assert.Equal(t, types.RequestOrganic, rec.RequestType)
	assert.Nil(t, rec.Problem)
	assert.Equal(t, 1.0, rec.Rewards[3])
	assert.InDelta(t, 0.25, rec.Rewards[1], 1e-12)
	assert.Equal(t, types.StatusScored, rec.Statuses[1])
	assert.Equal(t, "4000", rec.AllocInfos[3].APY.String())

	scores := f.validator.Scores()
	assert.InDelta(t, 0.1, scores[3], 1e-12)
	assert.InDelta(t, 0.025, scores[1], 1e-12)
}

func TestUpdateScoresMovingAverage(t *testing.T) {
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{}, nil, nil, nil)
	v := f.validator
	ctx := context.Background()

	v.updateScores(ctx, map[types.MinerUID]float64{1: 1, 2: 0.5})
	v.updateScores(ctx, map[types.MinerUID]float64{1: 0, 3: 2})

	scores := v.Scores()
	assert.InDelta(t, 0.09, scores[1], 1e-12) // 0.9 * 0.1
	assert.InDelta(t, 0.05, scores[2], 1e-12) // untouched by the second round
	assert.InDelta(t, 0.1, scores[3], 1e-12)  // reward clipped to 1

	stored, err := f.store.LoadScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, scores, stored)
	assert.InDelta(t, 0.1, testutil.ToFloat64(f.metrics.MinerScore.WithLabelValues("3")), 1e-12)
}

func TestSetWeightsSubmitsThenRateLimits(t *testing.T) {
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{}, nil, nil, nil)
	v := f.validator
	ctx := context.Background()

	submitted, err := v.SetWeights(ctx)
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.Empty(t, f.ledger.Submissions())

	v.updateScores(ctx, map[types.MinerUID]float64{1: 1, 2: 0.5, 3: 0})

	submitted, err = v.SetWeights(ctx)
	require.NoError(t, err)
	assert.True(t, submitted)

	subs := f.ledger.Submissions()
	require.Len(t, subs, 1)
	require.Len(t, subs[0].UIDs, 2)
	assert.Equal(t, []uint16{1, 2}, subs[0].UIDs)
	assert.Equal(t, uint16(65535), subs[0].Weights[0])
	assert.Equal(t, uint16(32768), subs[0].Weights[1])
	assert.Equal(t, 500.0, testutil.ToFloat64(f.metrics.LastWeightBlock))

	_, err = v.SetWeights(ctx)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, f.ledger.Submissions(), 1)
}

func TestSetWeightsRateLimitedWhenLedgerGoesBack(t *testing.T) {
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{}, nil, nil, nil)
	v := f.validator
	ctx := context.Background()
	v.updateScores(ctx, map[types.MinerUID]float64{1: 1})

	// last submission recorded ahead of the ledger's current block 500
	v.lastWeightBlock = 10_000
	v.weightsSet = true

	submitted, err := v.SetWeights(ctx)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, submitted)
	assert.Empty(t, f.ledger.Submissions())
}

func TestRestoreScores(t *testing.T) {
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{}, nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.store.SaveScores(ctx, map[types.MinerUID]float64{5: 1.5, 6: 0.4}))

	require.NoError(t, f.validator.RestoreScores(ctx))
	assert.Equal(t, map[types.MinerUID]float64{5: 1, 6: 0.4}, f.validator.Scores())
}

func TestRunRoundRecordsAndSetsWeights(t *testing.T) {
	seed := int64(7)
	f := newFixture(t, map[types.MinerKind][]types.MinerUID{types.AllocationMiner: {0, 1}}, transport.DefaultStrategies(2), nil, &seed)

	f.validator.RunRound(context.Background())

	records := f.store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, types.RequestSynthetic, records[0].RequestType)
	assert.Len(t, f.ledger.Submissions(), 1)
}
