/*

This file contains the types for Uniswap V3 liquidity positions scored in LP rounds.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// UniswapPosition is a concentrated liquidity position read from chain. Read-only per round.
type UniswapPosition struct {
	PositionID uint64      `json:"position_id"`
	Owner      string      `json:"owner"`     // EVM address of the position owner
	Liquidity  sdkmath.Int `json:"liquidity"` // Virtual liquidity L
	TickLower  int32       `json:"tick_lower"`
	TickUpper  int32       `json:"tick_upper"`
}

// LpSnapshot is everything an LP round needs: pool state, positions and the miners' claimed addresses.
type LpSnapshot struct {
	CurrentTick    int32               `json:"current_tick"`
	Positions      []UniswapPosition   `json:"positions"`
	MinerAddresses map[MinerUID]string `json:"miner_addresses"` // Empty string when a miner has not registered an address
	OverflowMiner  *MinerUID           `json:"overflow_miner,omitempty"`
}

// LpPositionScore is the evaluated state of one position.
type LpPositionScore struct {
	PositionID uint64      `json:"position_id"`
	Owner      string      `json:"owner"`
	InRange    bool        `json:"in_range"`
	Score      sdkmath.Int `json:"score"`
	Amount0    sdkmath.Int `json:"amount0"`
	Amount1    sdkmath.Int `json:"amount1"`
}
