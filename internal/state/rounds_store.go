// ./internal/state/rounds_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldcore/internal/types"
)

// SaveRound writes a finished round and one allocations row per queried miner in a single
// transaction.
func SaveRound(ctx context.Context, rec types.RoundRecord) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}

	var problemJSON any
	if rec.Problem != nil {
		raw, mErr := json.Marshal(rec.Problem)
		if mErr != nil {
			return fmt.Errorf("failed to marshal assets_and_pools: %w", mErr)
		}
		problemJSON = string(raw)
	}

	uids := recordUIDs(rec)
	uidArray := make([]int64, len(uids))
	for i, uid := range uids {
		uidArray[i] = int64(uid)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	requestSQL := `
		INSERT INTO allocation_requests (
			request_id, round_number, miner_kind, request_type, block, assets_and_pools, miner_uids, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	_, err = tx.ExecContext(ctx, requestSQL,
		rec.RequestID, rec.Round, int(rec.Kind), string(rec.RequestType), int64(rec.Block),
		problemJSON, pq.Array(uidArray), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation request %s: %w", rec.RequestID, err)
	}

	allocationSQL := `
		INSERT INTO allocations (
			request_id, miner_uid, status, allocation, apy, reward, latency_ms, timed_out
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	for _, uid := range uids {
		info := rec.AllocInfos[uid]
		var allocJSON any
		if info.Allocations != nil {
			raw, mErr := json.Marshal(info.Allocations)
			if mErr != nil {
				err = fmt.Errorf("failed to marshal allocation of uid %d: %w", uid, mErr)
				return err
			}
			allocJSON = string(raw)
		}
		apy := "0"
		if !info.APY.IsNil() {
			apy = info.APY.String()
		}
		status := rec.Statuses[uid]
		if status == "" {
			status = types.StatusPending
		}
		resp := rec.Responses[uid]

		_, err = tx.ExecContext(ctx, allocationSQL,
			rec.RequestID, int(uid), string(status), allocJSON, apy,
			rec.Rewards[uid], resp.Latency.Milliseconds(), resp.TimedOut,
		)
		if err != nil {
			return fmt.Errorf("failed to insert allocation of uid %d: %w", uid, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit round %s: %w", rec.RequestID, err)
	}

	log.Debug().
		Str("request_id", rec.RequestID).
		Int("round", rec.Round).
		Int("miners", len(uids)).
		Msg("Round saved to database")
	return nil
}

// recordUIDs is every uid the record mentions, ascending.
func recordUIDs(rec types.RoundRecord) []types.MinerUID {
	seen := make(map[types.MinerUID]struct{})
	for uid := range rec.Statuses {
		seen[uid] = struct{}{}
	}
	for uid := range rec.Rewards {
		seen[uid] = struct{}{}
	}
	for uid := range rec.Responses {
		seen[uid] = struct{}{}
	}
	out := make([]types.MinerUID, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
