/*

This file contains an in-process transport whose miners are plain functions. It is what the
validator talks to in development: every uid is served by an allocation strategy running in its
own goroutine under the query timeout.

*/

package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/ratemodel"
	"github.com/elys-network/yieldcore/internal/types"
)

var transportLogger = logger.GetForComponent("dev_transport")

var ErrInvalidTimeout = errors.New("query timeout must be positive")

// Strategy answers one allocation request.
type Strategy func(ctx context.Context, req types.AllocationRequest) (types.Allocation, error)

// GreedyStrategy runs the reference greedy allocator with the given chunk ratio.
func GreedyStrategy(chunkRatio float64) Strategy {
	return func(ctx context.Context, req types.AllocationRequest) (types.Allocation, error) {
		return ratemodel.GreedyAllocate(req.AssetsAndPools, chunkRatio)
	}
}

// EvenStrategy seeds every pool with its borrow amount and splits the rest equally, remainder to
// the last pool.
func EvenStrategy() Strategy {
	return func(ctx context.Context, req types.AllocationRequest) (types.Allocation, error) {
		problem := req.AssetsAndPools
		if err := problem.Validate(); err != nil {
			return nil, err
		}
		ids := problem.SortedPoolIDs()
		balance := problem.TotalAssets.Sub(problem.TotalBorrowed())
		share := balance.QuoRaw(int64(len(ids)))

		alloc := make(types.Allocation, len(ids))
		assigned := sdkmath.ZeroInt()
		for i, id := range ids {
			amount := problem.Pools[id].BorrowAmount
			if i == len(ids)-1 {
				amount = amount.Add(balance.Sub(assigned))
			} else {
				amount = amount.Add(share)
				assigned = assigned.Add(share)
			}
			alloc[id] = amount
		}
		return alloc, nil
	}
}

// DefaultStrategies gives n development miners, uids 0..n-1, a mix of greedy chunk sizes and an
// occasional even splitter so rounds do not collapse into a single bin.
func DefaultStrategies(n int) map[types.MinerUID]Strategy {
	chunks := []float64{0.01, 0.02, 0.05, 0.1, 0.25}
	out := make(map[types.MinerUID]Strategy, n)
	for i := 0; i < n; i++ {
		uid := types.MinerUID(i)
		if i%6 == 5 {
			out[uid] = EvenStrategy()
			continue
		}
		out[uid] = GreedyStrategy(chunks[i%len(chunks)])
	}
	return out
}

// Local is a Transport backed by in-process strategies.
type Local struct {
	miners  map[types.MinerUID]Strategy
	workers int
}

func NewLocal(miners map[types.MinerUID]Strategy, workers int) *Local {
	return &Local{miners: miners, workers: workers}
}

// UIDs returns the served uids in ascending order.
func (l *Local) UIDs() []types.MinerUID {
	out := make([]types.MinerUID, 0, len(l.miners))
	for uid := range l.miners {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (l *Local) Send(ctx context.Context, req types.AllocationRequest, uids []types.MinerUID, timeout time.Duration) (map[types.MinerUID]types.MinerResponse, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}

	responses := make([]types.MinerResponse, len(uids))
	g, gctx := errgroup.WithContext(ctx)
	if l.workers > 0 {
		g.SetLimit(l.workers)
	}
	for i, uid := range uids {
		i, uid := i, uid
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			responses[i] = l.query(gctx, req, uid, timeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("query fan-out interrupted: %w", err)
	}

	out := make(map[types.MinerUID]types.MinerResponse, len(uids))
	answered := 0
	for _, resp := range responses {
		out[resp.UID] = resp
		if resp.Allocation != nil {
			answered++
		}
	}
	transportLogger.Debug().
		Str("requestID", req.RequestID).
		Int("queried", len(uids)).
		Int("answered", answered).
		Msg("Allocation request fan-out complete")
	return out, nil
}

type answer struct {
	alloc types.Allocation
	err   error
}

func (l *Local) query(ctx context.Context, req types.AllocationRequest, uid types.MinerUID, timeout time.Duration) types.MinerResponse {
	strategy, ok := l.miners[uid]
	if !ok {
		return types.MinerResponse{UID: uid}
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan answer, 1)
	go func() {
		alloc, err := strategy(qctx, req)
		done <- answer{alloc: alloc, err: err}
	}()

	var a answer
	select {
	case <-qctx.Done():
	case a = <-done:
	}
	// an answer produced after the deadline counts as no answer
	if qctx.Err() != nil {
		transportLogger.Warn().Uint16("uid", uint16(uid)).Dur("timeout", timeout).Msg("Miner did not answer in time")
		return types.MinerResponse{UID: uid, Latency: timeout, TimedOut: true}
	}

	latency := time.Since(start)
	if a.err != nil {
		transportLogger.Warn().Err(a.err).Uint16("uid", uint16(uid)).Msg("Miner failed to answer")
		return types.MinerResponse{UID: uid, Latency: latency}
	}
	return types.MinerResponse{UID: uid, Allocation: a.alloc, Latency: latency}
}
