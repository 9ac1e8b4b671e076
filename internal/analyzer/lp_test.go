package analyzer

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/uniswap"
)

func lpSnapshot() types.LpSnapshot {
	overflow := types.MinerUID(9)
	return types.LpSnapshot{
		CurrentTick: 100,
		Positions: []types.UniswapPosition{
			{PositionID: 1, Owner: "0xAbC", Liquidity: sdkmath.NewInt(1000), TickLower: -60, TickUpper: 120},
			{PositionID: 2, Owner: "0xabc", Liquidity: sdkmath.NewInt(500), TickLower: 200, TickUpper: 300}, // out of range
			{PositionID: 3, Owner: "0xdef", Liquidity: sdkmath.NewInt(4000), TickLower: 0, TickUpper: 100},  // upper bound inclusive
			{PositionID: 4, Owner: "0x999", Liquidity: sdkmath.NewInt(200), TickLower: -600, TickUpper: 600},
		},
		MinerAddresses: map[types.MinerUID]string{
			1: "0xABC",
			2: "0xabc", // same address as miner 1, ignored
			3: "0xDEF",
			4: "",
		},
		OverflowMiner: &overflow,
	}
}

func TestScoreLpPositions(t *testing.T) {
	result, err := ScoreLpPositions(context.Background(), lpSnapshot(), 2)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2}, result.Claimed[1])
	assert.Empty(t, result.Claimed[2])
	assert.Equal(t, []uint64{3}, result.Claimed[3])
	assert.Equal(t, []uint64{4}, result.Claimed[9])

	assert.Equal(t, "1000", result.RawScores[1].String())
	assert.Equal(t, "0", result.RawScores[2].String())
	assert.Equal(t, "4000", result.RawScores[3].String())
	assert.Equal(t, "0", result.RawScores[4].String())
	assert.Equal(t, "200", result.RawScores[9].String())

	assert.Equal(t, 1.0, result.Rewards[3])
	assert.InDelta(t, 0.25, result.Rewards[1], 1e-12)
	assert.InDelta(t, 0.05, result.Rewards[9], 1e-12)
	assert.Equal(t, 0.0, result.Rewards[2])

	require.Len(t, result.Positions, 4)
	assert.True(t, result.Positions[0].InRange)
	assert.False(t, result.Positions[1].InRange)
	// out of range above the price: the position is all token0
	assert.True(t, result.Positions[1].Amount0.IsPositive())
	assert.True(t, result.Positions[1].Amount1.IsZero())
	// in range: both tokens
	assert.True(t, result.Positions[0].Amount0.IsPositive())
	assert.True(t, result.Positions[0].Amount1.IsPositive())
}

func TestScoreLpPositionsWithoutOverflowMiner(t *testing.T) {
	snapshot := lpSnapshot()
	snapshot.OverflowMiner = nil
	result, err := ScoreLpPositions(context.Background(), snapshot, 0)
	require.NoError(t, err)

	_, ok := result.RawScores[9]
	assert.False(t, ok)
	assert.Empty(t, result.Claimed[9])
	assert.Equal(t, 1.0, result.Rewards[3])
}

func TestScoreLpPositionsInvalidRangeScoresZero(t *testing.T) {
	snapshot := types.LpSnapshot{
		CurrentTick: 0,
		Positions: []types.UniswapPosition{
			{PositionID: 1, Owner: "0xa", Liquidity: sdkmath.NewInt(10), TickLower: -900000, TickUpper: 10},
		},
		MinerAddresses: map[types.MinerUID]string{1: "0xa"},
	}
	result, err := ScoreLpPositions(context.Background(), snapshot, 1)
	require.NoError(t, err)
	assert.True(t, result.RawScores[1].IsZero())
	assert.Equal(t, 0.0, result.Rewards[1])
}

func TestScoreLpPositionsRejectsBadCurrentTick(t *testing.T) {
	snapshot := lpSnapshot()
	snapshot.CurrentTick = uniswap.MaxTick + 1
	_, err := ScoreLpPositions(context.Background(), snapshot, 1)
	assert.ErrorIs(t, err, uniswap.ErrTickOutOfRange)
}
