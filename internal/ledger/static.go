package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/weights"
)

var ledgerLogger = logger.GetForComponent("ledger_client")

// DefaultBlockTime is the block interval the static client advances its height with.
const DefaultBlockTime = 12 * time.Second

// StaticConfig describes the fixed chain the static client serves.
type StaticConfig struct {
	StartBlock        uint64
	BlockTime         time.Duration
	MinAllowedWeights int
	MaxWeightLimit    float64
	Miners            map[types.MinerKind][]types.MinerUID
	Lp                *types.LpSnapshot
}

// StaticClient is an in-memory ledger for development and tests. The block height grows with wall
// time and submitted weights are kept so they can be inspected.
type StaticClient struct {
	cfg     StaticConfig
	started time.Time
	now     func() time.Time
	blocks  *BlockCache

	mu          sync.Mutex
	submissions []weights.U16Weights
}

func NewStaticClient(cfg StaticConfig) (*StaticClient, error) {
	if cfg.MaxWeightLimit <= 0 || cfg.MaxWeightLimit > 1 {
		return nil, fmt.Errorf("%w: max weight limit %f", weights.ErrInvalidWeightLimit, cfg.MaxWeightLimit)
	}
	if cfg.MinAllowedWeights < 0 {
		return nil, fmt.Errorf("min allowed weights cannot be negative: %d", cfg.MinAllowedWeights)
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = DefaultBlockTime
	}
	c := &StaticClient{cfg: cfg, started: time.Now(), now: time.Now}
	c.blocks = NewBlockCache(cfg.BlockTime, c.fetchBlock)

	ledgerLogger.Info().
		Uint64("startBlock", cfg.StartBlock).
		Int("minAllowedWeights", cfg.MinAllowedWeights).
		Float64("maxWeightLimit", cfg.MaxWeightLimit).
		Msg("Static ledger client created")
	return c, nil
}

func (c *StaticClient) fetchBlock(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	elapsed := c.now().Sub(c.started)
	return c.cfg.StartBlock + uint64(elapsed/c.cfg.BlockTime), nil
}

func (c *StaticClient) CurrentBlock(ctx context.Context) (uint64, error) {
	return c.blocks.Get(ctx)
}

func (c *StaticClient) MinAllowedWeights(ctx context.Context) (int, error) {
	return c.cfg.MinAllowedWeights, nil
}

func (c *StaticClient) MaxWeightLimit(ctx context.Context) (float64, error) {
	return c.cfg.MaxWeightLimit, nil
}

func (c *StaticClient) ActiveMiners(ctx context.Context) (map[types.MinerKind][]types.MinerUID, error) {
	out := make(map[types.MinerKind][]types.MinerUID, len(c.cfg.Miners))
	for kind, uids := range c.cfg.Miners {
		out[kind] = append([]types.MinerUID(nil), uids...)
	}
	return out, nil
}

func (c *StaticClient) SetWeights(ctx context.Context, w weights.U16Weights) error {
	if len(w.UIDs) != len(w.Weights) {
		return fmt.Errorf("%w: %d uids, %d weights", ErrWeightsRejected, len(w.UIDs), len(w.Weights))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}

	c.mu.Lock()
	c.submissions = append(c.submissions, w)
	c.mu.Unlock()

	ledgerLogger.Info().Int("uids", len(w.UIDs)).Msg("Weights accepted by static ledger")
	return nil
}

func (c *StaticClient) LpSnapshot(ctx context.Context) (types.LpSnapshot, error) {
	if c.cfg.Lp == nil {
		return types.LpSnapshot{}, ErrNoLpSnapshot
	}
	return *c.cfg.Lp, nil
}

// Submissions returns every weight vector accepted so far, oldest first.
func (c *StaticClient) Submissions() []weights.U16Weights {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]weights.U16Weights(nil), c.submissions...)
}
