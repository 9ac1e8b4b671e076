package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/observability"
	"github.com/elys-network/yieldcore/internal/types"
)

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	prev := DB
	DB = db
	t.Cleanup(func() {
		DB = prev
		db.Close()
	})
	return mock
}

func sampleRecord() types.RoundRecord {
	problem := types.AssetsAndPools{
		TotalAssets: sdkmath.NewInt(100),
		Pools: map[types.PoolID]types.Pool{
			"0": {
				PoolID: "0", BaseRate: sdkmath.ZeroInt(), BaseSlope: sdkmath.ZeroInt(), KinkSlope: sdkmath.ZeroInt(),
				OptimalUtilRate: sdkmath.NewInt(5), BorrowAmount: sdkmath.ZeroInt(), ReserveSize: sdkmath.NewInt(10),
			},
		},
	}
	return types.RoundRecord{
		RequestID:   "req-1",
		Round:       3,
		Kind:        types.AllocationMiner,
		RequestType: types.RequestSynthetic,
		Block:       10,
		Problem:     &problem,
		Responses: map[types.MinerUID]types.MinerResponse{
			1: {UID: 1, Allocation: types.Allocation{"0": sdkmath.NewInt(100)}, Latency: 1500 * time.Millisecond},
			2: {UID: 2, TimedOut: true, Latency: 10 * time.Second},
		},
		AllocInfos: map[types.MinerUID]types.AllocInfo{
			1: {APY: sdkmath.NewInt(1000), Allocations: types.Allocation{"0": sdkmath.NewInt(100)}},
			2: {APY: sdkmath.ZeroInt()},
		},
		Statuses:  map[types.MinerUID]types.ResponseStatus{1: types.StatusScored, 2: types.StatusMissing},
		Rewards:   map[types.MinerUID]float64{1: 1, 2: 0},
		CreatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestSaveRound(t *testing.T) {
	mock := withMockDB(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO allocation_requests").
		WithArgs("req-1", int64(3), int64(0), "SYNTHETIC", int64(10), sqlmock.AnyArg(), sqlmock.AnyArg(), rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO allocations").
		WithArgs("req-1", int64(1), "scored", `{"0":"100"}`, "1000", 1.0, int64(1500), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO allocations").
		WithArgs("req-1", int64(2), "missing", nil, "0", 0.0, int64(10000), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, SaveRound(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRoundRollsBack(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO allocation_requests").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO allocations").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := SaveRound(context.Background(), sampleRecord())
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRequiresDB(t *testing.T) {
	prev := DB
	DB = nil
	defer func() { DB = prev }()

	ctx := context.Background()
	assert.ErrorIs(t, SaveRound(ctx, sampleRecord()), ErrDBNotInitialized)
	_, err := LoadScores(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = IncrementRoundNumber(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = GetRecentRounds(ctx, 5)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
}

func TestGetRecentRounds(t *testing.T) {
	mock := withMockDB(t)
	created := time.Unix(1_700_000_000, 0).UTC()

	rows := sqlmock.NewRows([]string{"request_id", "round_number", "miner_kind", "request_type", "block", "created_at", "count", "scored", "max"}).
		AddRow("req-2", 4, 1, "SYNTHETIC", 20, created, 3, 3, 1.0).
		AddRow("req-1", 3, 0, "ORGANIC", 10, created.Add(-time.Minute), 5, 2, 0.75)
	mock.ExpectQuery("FROM allocation_requests r").WithArgs(10).WillReturnRows(rows)

	rounds, err := GetRecentRounds(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, types.UniswapLpMiner, rounds[0].Kind)
	assert.Equal(t, types.RequestOrganic, rounds[1].RequestType)
	assert.Equal(t, uint64(10), rounds[1].Block)
	assert.Equal(t, 2, rounds[1].ScoredCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRequestInfo(t *testing.T) {
	mock := withMockDB(t)
	rec := sampleRecord()
	problemJSON, err := json.Marshal(rec.Problem)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"request_id", "round_number", "miner_kind", "request_type", "block", "assets_and_pools", "miner_uids", "created_at"}).
		AddRow("req-1", 3, 0, "SYNTHETIC", 10, problemJSON, "{1,2}", rec.CreatedAt)
	mock.ExpectQuery("FROM allocation_requests").WithArgs("req-1").WillReturnRows(rows)

	info, err := GetRequestInfo(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, []types.MinerUID{1, 2}, info.MinerUIDs)
	require.NotNil(t, info.Problem)
	assert.Equal(t, "100", info.Problem.TotalAssets.String())
	assert.Equal(t, types.AllocationMiner, info.Kind)

	mock.ExpectQuery("FROM allocation_requests").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"request_id"}))
	_, err = GetRequestInfo(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMinerResponses(t *testing.T) {
	mock := withMockDB(t)
	created := time.Unix(1_700_000_000, 0).UTC()

	cols := []string{"request_id", "miner_uid", "status", "allocation", "apy", "reward", "latency_ms", "timed_out", "created_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("req-2", 7, "scored", []byte(`{"0":"60","1":"40"}`), "123456", 0.5, 250, false, created).
		AddRow("req-1", 7, "missing", nil, "0", 0.0, 10000, true, created.Add(-time.Minute))
	mock.ExpectQuery("WHERE a.miner_uid").WithArgs(7, 20).WillReturnRows(rows)

	out, err := GetMinerResponses(context.Background(), 7, 20)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "123456", out[0].APY.String())
	assert.Equal(t, "40", out[0].Allocation["1"].String())
	assert.Equal(t, 250*time.Millisecond, out[0].Latency)
	assert.Nil(t, out[1].Allocation)
	assert.True(t, out[1].TimedOut)
	assert.Equal(t, types.StatusMissing, out[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoresRoundTripQueries(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM validator_scores").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO validator_scores").WithArgs(int64(1), 0.25).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO validator_scores").WithArgs(int64(4), 0.75).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, SaveScores(context.Background(), map[types.MinerUID]float64{4: 0.75, 1: 0.25}))

	mock.ExpectQuery("SELECT miner_uid, score FROM validator_scores").
		WillReturnRows(sqlmock.NewRows([]string{"miner_uid", "score"}).AddRow(1, 0.25).AddRow(4, 0.75))
	scores, err := LoadScores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[types.MinerUID]float64{1: 0.25, 4: 0.75}, scores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundCounter(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectQuery("UPDATE round_counter").WillReturnRows(sqlmock.NewRows([]string{"current_round"}).AddRow(42))
	n, err := IncrementRoundNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	mock.ExpectQuery("SELECT current_round FROM round_counter").WillReturnRows(sqlmock.NewRows([]string{"current_round"}).AddRow(42))
	n, err = GetCurrentRoundNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	assert.Error(t, ResetRoundNumber(context.Background(), -1))
	mock.ExpectExec("UPDATE round_counter").WithArgs(0).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ResetRoundNumber(context.Background(), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoringParametersStore(t *testing.T) {
	mock := withMockDB(t)
	params := config.ScoringFile{
		Scoring:    config.DefaultScoringParameters,
		Simulation: config.DefaultSimulationParameters,
		Weights:    config.DefaultWeightParameters,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE scoring_parameters SET is_active = FALSE").WithArgs("validator").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO scoring_parameters").
		WithArgs("validator", true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"params_id", "version"}).AddRow(9, 2))
	mock.ExpectCommit()

	id, err := SaveScoringParameters(context.Background(), params, "validator", true)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	raw, err := json.Marshal(params)
	require.NoError(t, err)
	mock.ExpectQuery("FROM scoring_parameters").WithArgs("validator").
		WillReturnRows(sqlmock.NewRows([]string{"params_id", "params"}).AddRow(9, raw))
	loaded, loadedID, err := LoadActiveScoringParameters(context.Background(), "validator")
	require.NoError(t, err)
	assert.Equal(t, int64(9), loadedID)
	assert.Equal(t, params, *loaded)

	mock.ExpectQuery("FROM scoring_parameters").WithArgs("other").
		WillReturnRows(sqlmock.NewRows([]string{"params_id", "params"}))
	_, _, err = LoadActiveScoringParameters(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorderWritesAndDrops(t *testing.T) {
	metrics := observability.NewMetrics("test")
	rec := NewRecorder(1, metrics)

	release := make(chan struct{})
	var mu sync.Mutex
	var saved []string
	rec.save = func(ctx context.Context, r types.RoundRecord) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, r.RequestID)
		return nil
	}

	// nothing drains until Start, so the second record overflows the buffer
	rec.RecordRound(types.RoundRecord{RequestID: "a"})
	rec.RecordRound(types.RoundRecord{RequestID: "dropped"})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsDropped))

	rec.Start(context.Background())
	close(release)
	rec.Close()

	assert.Equal(t, []string{"a"}, saved)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsWritten))

	// closed recorder ignores new records
	rec.RecordRound(types.RoundRecord{RequestID: "late"})
	rec.Close()
	assert.Equal(t, []string{"a"}, saved)
}

func TestRecorderCountsWriteErrors(t *testing.T) {
	metrics := observability.NewMetrics("test")
	rec := NewRecorder(4, metrics)
	rec.save = func(ctx context.Context, r types.RoundRecord) error {
		return errors.New("constraint violation")
	}
	rec.Start(context.Background())
	rec.RecordRound(types.RoundRecord{RequestID: "bad"})
	rec.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DBWriteErrors.WithLabelValues("save_round")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RecordsWritten))
}
