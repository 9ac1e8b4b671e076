package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/ratemodel"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/utils"
)

var simLogger = logger.GetForComponent("simulator")

var (
	ErrNotInitialized  = errors.New("simulator must be initialized first")
	ErrNoData          = errors.New("simulator has no pool data")
	ErrHistoryAdvanced = errors.New("simulation already advanced past its initial state")
	ErrUnknownPool     = errors.New("allocation references a pool outside the simulation")
)

// PoolHistory holds one snapshot of every pool per timestep. Index 0 is the initial state.
type PoolHistory []map[types.PoolID]types.Pool

type Options struct {
	// Seed makes runs reproducible. Nil draws one from the clock, which is then kept so Reset
	// still replays the same noise.
	Seed           *int64
	ReversionSpeed float64
	Params         types.SimulationParameters
}

// Simulator evolves borrow amounts of a set of pools under mean reversion towards the median
// borrow rate plus gaussian noise. Not safe for concurrent use.
type Simulator struct {
	seed           int64
	reversionSpeed sdkmath.Int
	params         types.SimulationParameters

	rng           *rand.Rand
	initialized   bool
	timesteps     int
	stochasticity float64

	// problem is the canonical pool set. history[i] are copies taken at each step.
	problem     types.AssetsAndPools
	allocations types.Allocation
	history     PoolHistory
}

func New(opts Options) (*Simulator, error) {
	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	reversion, err := utils.Float64ToWei(opts.ReversionSpeed)
	if err != nil {
		return nil, fmt.Errorf("invalid reversion speed: %w", err)
	}
	return &Simulator{
		seed:           seed,
		reversionSpeed: reversion,
		params:         opts.Params,
	}, nil
}

// Initialize creates a fresh RNG from the seed. Missing timesteps or stochasticity are drawn from
// the configured grids, after which the RNG is rewound so data generation starts from the
// post-seed state.
func (s *Simulator) Initialize(timesteps *int, stochasticity *float64) {
	s.rng = rand.New(rand.NewSource(s.seed))

	if timesteps != nil {
		s.timesteps = *timesteps
	} else {
		s.timesteps = RandRangeInt(s.rng, s.params.MinTimesteps, s.params.MaxTimesteps, s.params.TimestepsStep)
	}
	if stochasticity != nil {
		s.stochasticity = *stochasticity
	} else {
		s.stochasticity = RandRangeFloat(s.rng, s.params.MinStochasticity, s.params.MaxStochasticity, s.params.StochasticityStep)
	}

	s.rng = rand.New(rand.NewSource(s.seed))
	s.initialized = true
	s.history = nil
}

// Reset rewinds the RNG to its post-seed state. Data and history are left untouched.
func (s *Simulator) Reset() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	s.rng = rand.New(rand.NewSource(s.seed))
	return nil
}

// InitData installs the pools and initial allocations, generating whichever is nil, and records
// the first history entry.
func (s *Simulator) InitData(problem *types.AssetsAndPools, allocs types.Allocation) error {
	if !s.initialized {
		return ErrNotInitialized
	}

	if problem == nil {
		generated, err := GenerateAssetsAndPools(s.rng, s.params)
		if err != nil {
			return err
		}
		s.problem = generated
	} else {
		if err := problem.Validate(); err != nil {
			return err
		}
		s.problem = problem.Clone()
	}

	if allocs == nil {
		s.allocations = GenerateInitialAllocations(s.problem)
	} else {
		s.allocations = allocs.Clone()
	}

	s.history = PoolHistory{snapshot(s.problem.Pools)}
	return nil
}

// UpdateReservesWithAllocs adds allocations to the pool reserves. Nil uses the allocations given to
// InitData. Only valid before Run.
func (s *Simulator) UpdateReservesWithAllocs(allocs types.Allocation) error {
	if len(s.history) == 0 || len(s.problem.Pools) == 0 {
		return ErrNoData
	}
	if len(s.history) != 1 {
		return ErrHistoryAdvanced
	}
	if allocs == nil {
		allocs = s.allocations
	}

	for id := range allocs {
		if _, ok := s.problem.Pools[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPool, id)
		}
	}
	for id, amount := range allocs {
		if amount.IsNil() {
			continue
		}
		s.addReserve(id, amount)
	}
	return nil
}

func (s *Simulator) addReserve(id types.PoolID, amount sdkmath.Int) {
	for _, pools := range []map[types.PoolID]types.Pool{s.problem.Pools, s.history[0]} {
		pool := pools[id]
		pool.ReserveSize = pool.ReserveSize.Add(amount)
		pools[id] = pool
	}
}

// Run advances the simulation timesteps-1 times.
func (s *Simulator) Run() error {
	if len(s.history) != 1 {
		if len(s.history) == 0 {
			return ErrNoData
		}
		return ErrHistoryAdvanced
	}
	for step := 1; step < s.timesteps; step++ {
		s.history = append(s.history, s.advanceStep())
	}

	simLogger.Debug().
		Int64("seed", s.seed).
		Int("timesteps", s.timesteps).
		Float64("stochasticity", s.stochasticity).
		Int("pools", len(s.problem.Pools)).
		Msg("Simulation run complete")
	return nil
}

// advanceStep derives the next snapshot from the latest one. Parameters and reserves come from
// the canonical pools, borrow amounts from the reverted and noised latest state.
func (s *Simulator) advanceStep() map[types.PoolID]types.Pool {
	latest := s.history[len(s.history)-1]
	ids := s.problem.SortedPoolIDs()

	rates := make([]sdkmath.Int, len(ids))
	for i, id := range ids {
		rates[i] = ratemodel.PoolBorrowRate(latest[id])
	}
	median := medianInt(rates)

	next := make(map[types.PoolID]types.Pool, len(ids))
	for i, id := range ids {
		noise := sdkmath.NewInt(int64(math.Round(s.rng.NormFloat64() * s.stochasticity * 1e18)))
		change := utils.WeiMul(s.reversionSpeed, rates[i].Sub(median)).Neg().Add(noise)

		current := latest[id]
		borrow := current.BorrowAmount.Add(utils.WeiMul(change, current.BorrowAmount))

		pool := s.problem.Pools[id]
		if borrow.IsNegative() {
			borrow = sdkmath.ZeroInt()
		}
		if borrow.GT(pool.ReserveSize) {
			borrow = pool.ReserveSize
		}
		pool.BorrowAmount = borrow
		next[id] = pool
	}
	return next
}

func (s *Simulator) Timesteps() int         { return s.timesteps }
func (s *Simulator) Stochasticity() float64 { return s.stochasticity }
func (s *Simulator) Seed() int64            { return s.seed }

// AssetsAndPools returns a copy of the canonical problem.
func (s *Simulator) AssetsAndPools() types.AssetsAndPools { return s.problem.Clone() }

func (s *Simulator) Allocations() types.Allocation { return s.allocations.Clone() }

// History returns a copy of every snapshot taken so far.
func (s *Simulator) History() PoolHistory {
	out := make(PoolHistory, len(s.history))
	for i, pools := range s.history {
		out[i] = snapshot(pools)
	}
	return out
}

func snapshot(pools map[types.PoolID]types.Pool) map[types.PoolID]types.Pool {
	out := make(map[types.PoolID]types.Pool, len(pools))
	for id, p := range pools {
		out[id] = p
	}
	return out
}

// medianInt averages the two middle values for even lengths, flooring.
func medianInt(values []sdkmath.Int) sdkmath.Int {
	if len(values) == 0 {
		return sdkmath.ZeroInt()
	}
	sorted := append([]sdkmath.Int(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LT(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).QuoRaw(2)
}
