package transport

import (
	"context"
	"time"

	"github.com/elys-network/yieldcore/internal/types"
)

// Transport delivers an allocation request to miners and collects their answers.
// Every queried uid has an entry in the returned map; a miner that did not answer in time has a
// nil Allocation and TimedOut set.
type Transport interface {
	Send(ctx context.Context, req types.AllocationRequest, uids []types.MinerUID, timeout time.Duration) (map[types.MinerUID]types.MinerResponse, error)
}
