package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

func testRequest() types.AllocationRequest {
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
	return types.AllocationRequest{
		RequestID:   "req-1",
		RequestType: types.RequestSynthetic,
		AssetsAndPools: types.AssetsAndPools{
			TotalAssets: utils.MustFloat64ToWei(3),
			Pools: map[types.PoolID]types.Pool{
				"0": pool("0", 0.01, 0.5),
				"1": pool("1", 0.03, 0.2),
				"2": pool("2", 0.02, 0.3),
			},
		},
	}
}

func TestLocalSendCollectsEveryUID(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	miners := map[types.MinerUID]Strategy{
		1: GreedyStrategy(0.1),
		2: EvenStrategy(),
		3: func(ctx context.Context, req types.AllocationRequest) (types.Allocation, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return types.Allocation{"0": sdkmath.OneInt()}, nil
		},
		4: func(ctx context.Context, req types.AllocationRequest) (types.Allocation, error) {
			return nil, errors.New("miner crashed")
		},
	}
	local := NewLocal(miners, 2)
	assert.Equal(t, []types.MinerUID{1, 2, 3, 4}, local.UIDs())

	req := testRequest()
	responses, err := local.Send(context.Background(), req, []types.MinerUID{1, 2, 3, 4, 5}, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, responses, 5)

	total := req.AssetsAndPools.TotalAssets
	assert.True(t, responses[1].Allocation.Total().Equal(total))
	assert.True(t, responses[2].Allocation.Total().Equal(total))
	assert.False(t, responses[1].TimedOut)

	assert.True(t, responses[3].TimedOut)
	assert.Nil(t, responses[3].Allocation)
	assert.Equal(t, 50*time.Millisecond, responses[3].Latency)

	assert.Nil(t, responses[4].Allocation)
	assert.False(t, responses[4].TimedOut)

	// unknown uid: no answer at all
	assert.Equal(t, types.MinerUID(5), responses[5].UID)
	assert.Nil(t, responses[5].Allocation)
}

func TestEvenStrategyRespectsMinimums(t *testing.T) {
	req := testRequest()
	alloc, err := EvenStrategy()(context.Background(), req)
	require.NoError(t, err)
	for id, p := range req.AssetsAndPools.Pools {
		assert.True(t, alloc[id].GTE(p.BorrowAmount), "pool %s", id)
	}
	assert.True(t, alloc.Total().Equal(req.AssetsAndPools.TotalAssets))
}

func TestDefaultStrategies(t *testing.T) {
	strategies := DefaultStrategies(12)
	assert.Len(t, strategies, 12)
	local := NewLocal(strategies, 0)
	responses, err := local.Send(context.Background(), testRequest(), local.UIDs(), time.Second)
	require.NoError(t, err)
	for uid, resp := range responses {
		assert.NotNil(t, resp.Allocation, "uid %d", uid)
	}
}

func TestLocalSendRejectsBadTimeout(t *testing.T) {
	_, err := NewLocal(nil, 1).Send(context.Background(), testRequest(), nil, 0)
	assert.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestLocalSendCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal(DefaultStrategies(3), 1).Send(ctx, testRequest(), []types.MinerUID{0, 1, 2}, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
