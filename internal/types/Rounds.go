/*

This file contains the types describing one validator round: who was queried, what they answered,
and what the round produced.

*/

package types

import (
	"fmt"
	"time"
)

// MinerUID is a participant id in the ledger's u16 id space.
type MinerUID uint16

// MinerKind selects the scoring path of a round.
type MinerKind int

const (
	AllocationMiner MinerKind = iota
	UniswapLpMiner
)

func (k MinerKind) String() string {
	switch k {
	case AllocationMiner:
		return "allocation"
	case UniswapLpMiner:
		return "uniswap_lp"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// RequestType tells miners (and the scorer) whether the problem is simulated or a live snapshot.
type RequestType string

const (
	RequestOrganic   RequestType = "ORGANIC"
	RequestSynthetic RequestType = "SYNTHETIC"
)

// ResponseStatus is the outcome of validating one miner response.
type ResponseStatus string

const (
	StatusPending  ResponseStatus = "pending"
	StatusScored   ResponseStatus = "scored"
	StatusCheating ResponseStatus = "cheating"
	StatusMissing  ResponseStatus = "missing"
)

// AllocationRequest is the payload sent to allocation miners.
type AllocationRequest struct {
	RequestID      string         `json:"request_id"`
	RequestType    RequestType    `json:"request_type"`
	AssetsAndPools AssetsAndPools `json:"assets_and_pools"`
}

// MinerResponse is what the transport hands back for one miner. A nil Allocation means no reply.
type MinerResponse struct {
	UID        MinerUID      `json:"uid"`
	Allocation Allocation    `json:"allocations"`
	Latency    time.Duration `json:"latency"`
	TimedOut   bool          `json:"timed_out"`
}

// RoundRecord is the audit record of a finished round.
type RoundRecord struct {
	RequestID   string                      `json:"request_id"`
	Round       int                         `json:"round"`
	Kind        MinerKind                   `json:"kind"`
	RequestType RequestType                 `json:"request_type"`
	Block       uint64                      `json:"block"`
	Problem     *AssetsAndPools             `json:"problem,omitempty"`
	Responses   map[MinerUID]MinerResponse  `json:"responses"`
	AllocInfos  map[MinerUID]AllocInfo      `json:"alloc_infos"`
	Statuses    map[MinerUID]ResponseStatus `json:"statuses"`
	Rewards     map[MinerUID]float64        `json:"rewards"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// Bin groups miners whose APYs sit within the binning threshold of the bin's first (highest) APY.
// Index 0 holds the best APYs.
type Bin struct {
	Index      int        `json:"index"`
	Miners     []MinerUID `json:"miners"`
	BaseReward float64    `json:"base_reward"`
}
