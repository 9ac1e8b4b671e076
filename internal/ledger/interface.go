package ledger

import (
	"context"
	"errors"

	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/weights"
)

var (
	ErrLedgerUnavailable = errors.New("ledger is unavailable")
	ErrWeightsRejected   = errors.New("ledger rejected the weight submission")
	ErrNoLpSnapshot      = errors.New("no lp snapshot configured")
)

// Client defines the interface for talking to the consensus ledger.
// Implementations decide how the chain is reached; the validator only needs these reads and the
// single weight write.
type Client interface {
	// CurrentBlock returns the latest block height.
	CurrentBlock(ctx context.Context) (uint64, error)

	// MinAllowedWeights returns the minimum number of non-zero weights a submission must carry.
	MinAllowedWeights(ctx context.Context) (int, error)

	// MaxWeightLimit returns the largest fraction of total weight one uid may receive.
	MaxWeightLimit(ctx context.Context) (float64, error)

	// ActiveMiners returns the uids to query this round, grouped by the kind of work they do.
	ActiveMiners(ctx context.Context) (map[types.MinerKind][]types.MinerUID, error)

	// SetWeights publishes a weight vector.
	SetWeights(ctx context.Context, w weights.U16Weights) error

	// LpSnapshot returns the pool state, positions and registered addresses for an LP round.
	LpSnapshot(ctx context.Context) (types.LpSnapshot, error)
}
