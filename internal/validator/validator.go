package validator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/ledger"
	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/observability"
	"github.com/elys-network/yieldcore/internal/transport"
	"github.com/elys-network/yieldcore/internal/types"
)

var (
	ErrNoMiners    = errors.New("no active miners of the requested kind")
	ErrRateLimited = errors.New("weights were set too recently")
)

// Persistence is where the validator keeps its audit trail, scores and round counter.
type Persistence interface {
	// NextRound increments and returns the global round counter.
	NextRound(ctx context.Context) (int, error)

	// RecordRound queues a finished round for storage. It must not block.
	RecordRound(rec types.RoundRecord)

	// SaveScores replaces the stored moving-average scores.
	SaveScores(ctx context.Context, scores map[types.MinerUID]float64) error

	// LoadScores returns the stored moving-average scores.
	LoadScores(ctx context.Context) (map[types.MinerUID]float64, error)
}

// Validator runs scoring rounds against miners and publishes weights to the ledger.
type Validator struct {
	logger      zerolog.Logger
	ledger      ledger.Client
	transport   transport.Transport
	persistence Persistence
	metrics     *observability.Metrics
	params      config.ScoringFile

	seedMu  sync.Mutex
	seedRng *rand.Rand

	mu              sync.RWMutex
	scores          map[types.MinerUID]float64
	lastWeightBlock uint64
	weightsSet      bool

	// Runtime state
	loopCount int
}

// Config holds the configuration for creating a new Validator instance
type Config struct {
	Ledger      ledger.Client
	Transport   transport.Transport
	Persistence Persistence
	Metrics     *observability.Metrics
	Params      config.ScoringFile
	// Seed makes synthetic rounds reproducible. Nil seeds every round from the clock.
	Seed *int64
}

// NewValidator creates a new Validator instance with dependency injection
func NewValidator(cfg Config) (*Validator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validator configuration validation failed: %w", err)
	}

	v := &Validator{
		logger:      logger.GetForComponent("validator_core"),
		ledger:      cfg.Ledger,
		transport:   cfg.Transport,
		persistence: cfg.Persistence,
		metrics:     cfg.Metrics,
		params:      cfg.Params,
		scores:      make(map[types.MinerUID]float64),
	}
	if v.persistence == nil {
		v.persistence = NewMemoryPersistence()
	}
	if v.metrics == nil {
		v.metrics = observability.NewMetrics("")
	}
	if cfg.Seed != nil {
		v.seedRng = rand.New(rand.NewSource(*cfg.Seed))
	}

	v.logger.Info().
		Int("queryTimeoutMs", int(cfg.Params.Scoring.QueryTimeout.Milliseconds())).
		Float64("alpha", cfg.Params.Weights.MovingAverageAlpha).
		Bool("seeded", cfg.Seed != nil).
		Msg("Validator instance created")
	return v, nil
}

func validateConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger client cannot be nil")
	}
	if cfg.Transport == nil {
		return fmt.Errorf("transport cannot be nil")
	}
	return cfg.Params.Validate()
}

// RestoreScores loads the moving-average scores saved by a previous run.
func (v *Validator) RestoreScores(ctx context.Context) error {
	scores, err := v.persistence.LoadScores(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore scores: %w", err)
	}
	v.mu.Lock()
	for uid, s := range scores {
		v.scores[uid] = clip01(s)
	}
	v.mu.Unlock()
	v.logger.Info().Int("miners", len(scores)).Msg("Restored moving-average scores")
	return nil
}

// RunLoop runs one round immediately and then one per interval until ctx is cancelled.
func (v *Validator) RunLoop(ctx context.Context, interval time.Duration) {
	v.logger.Info().
		Dur("interval", interval).
		Msg("Starting validator main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	v.runIteration(ctx)
	for {
		select {
		case <-ctx.Done():
			v.logger.Info().Msg("Validator loop stopped due to context cancellation")
			return
		case <-ticker.C:
			v.runIteration(ctx)
		}
	}
}

func (v *Validator) runIteration(ctx context.Context) {
	v.loopCount++
	v.logger.Info().Int("iteration", v.loopCount).Msg("Initiating validator iteration")
	v.RunRound(ctx)
	v.logger.Info().Int("iteration", v.loopCount).Msg("Validator iteration completed")
}

// RunRound runs a synthetic allocation round, an LP round when LP miners are registered, and then
// tries to set weights. Failures are logged; the next round starts fresh.
func (v *Validator) RunRound(ctx context.Context) {
	miners, err := v.ledger.ActiveMiners(ctx)
	if err != nil {
		v.logger.Error().Err(err).Msg("Round skipped: failed to read active miners")
		return
	}

	if len(miners[types.AllocationMiner]) > 0 {
		if _, err := v.RunAllocationRound(ctx); err != nil {
			v.logger.Error().Err(err).Msg("Allocation round failed")
		}
	}
	if len(miners[types.UniswapLpMiner]) > 0 {
		if _, err := v.RunLpRound(ctx); err != nil {
			v.logger.Error().Err(err).Msg("LP round failed")
		}
	}

	if _, err := v.SetWeights(ctx); err != nil && !errors.Is(err, ErrRateLimited) {
		v.logger.Error().Err(err).Msg("Failed to set weights")
	}
}

// nextSeed returns the simulator seed of the next synthetic round.
func (v *Validator) nextSeed() int64 {
	if v.seedRng == nil {
		return time.Now().UnixNano()
	}
	v.seedMu.Lock()
	defer v.seedMu.Unlock()
	return v.seedRng.Int63()
}

// nextRound returns the persistent round number, falling back to a clock-derived one when the
// counter cannot be read.
func (v *Validator) nextRound(ctx context.Context) int {
	round, err := v.persistence.NextRound(ctx)
	if err != nil {
		v.logger.Error().Err(err).Msg("Failed to increment round number, using fallback")
		return int(time.Now().Unix() % 1000000)
	}
	return round
}

// Params returns the parameters the validator runs with.
func (v *Validator) Params() config.ScoringFile {
	return v.params
}
