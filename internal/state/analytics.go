package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldcore/internal/types"
)

// RoundSummary is one row of the recent rounds listing.
type RoundSummary struct {
	RequestID   string            `json:"request_id"`
	Round       int               `json:"round"`
	Kind        types.MinerKind   `json:"kind"`
	RequestType types.RequestType `json:"request_type"`
	Block       uint64            `json:"block"`
	MinerCount  int               `json:"miner_count"`
	ScoredCount int               `json:"scored_count"`
	MaxReward   float64           `json:"max_reward"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RequestInfo is the stored allocation request of a round.
type RequestInfo struct {
	RequestID   string                `json:"request_id"`
	Round       int                   `json:"round"`
	Kind        types.MinerKind       `json:"kind"`
	RequestType types.RequestType     `json:"request_type"`
	Block       uint64                `json:"block"`
	Problem     *types.AssetsAndPools `json:"assets_and_pools,omitempty"`
	MinerUIDs   []types.MinerUID      `json:"miner_uids"`
	CreatedAt   time.Time             `json:"created_at"`
}

// MinerResponseRow is a stored, scored miner response.
type MinerResponseRow struct {
	RequestID  string               `json:"request_id"`
	UID        types.MinerUID       `json:"uid"`
	Status     types.ResponseStatus `json:"status"`
	Allocation types.Allocation     `json:"allocation,omitempty"`
	APY        sdkmath.Int          `json:"apy"`
	Reward     float64              `json:"reward"`
	Latency    time.Duration        `json:"latency"`
	TimedOut   bool                 `json:"timed_out"`
	CreatedAt  time.Time            `json:"created_at"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10 // Default limit
	}
	return limit
}

// GetRecentRounds retrieves the most recent rounds, newest first.
func GetRecentRounds(ctx context.Context, limit int) ([]RoundSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	limit = clampLimit(limit)

	query := `
		SELECT
			r.request_id, r.round_number, r.miner_kind, r.request_type, r.block, r.created_at,
			COUNT(a.miner_uid),
			COUNT(a.miner_uid) FILTER (WHERE a.status = 'scored'),
			COALESCE(MAX(a.reward), 0)
		FROM allocation_requests r
		LEFT JOIN allocations a ON a.request_id = r.request_id
		GROUP BY r.request_id
		ORDER BY r.created_at DESC
		LIMIT $1`

	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent rounds")
		return nil, fmt.Errorf("failed to query recent rounds: %w", err)
	}
	defer rows.Close()

	rounds := make([]RoundSummary, 0, limit)
	for rows.Next() {
		var r RoundSummary
		var kind int
		var requestType string
		var block int64
		if err := rows.Scan(
			&r.RequestID, &r.Round, &kind, &requestType, &block, &r.CreatedAt,
			&r.MinerCount, &r.ScoredCount, &r.MaxReward,
		); err != nil {
			log.Error().Err(err).Msg("Failed to scan round row")
			continue // Skip this row and continue with others
		}
		r.Kind = types.MinerKind(kind)
		r.RequestType = types.RequestType(requestType)
		r.Block = uint64(block)
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(rounds)).Int("limit", limit).Msg("Retrieved recent rounds")
	return rounds, nil
}

// GetRequestInfo loads the allocation request stored for requestID.
func GetRequestInfo(ctx context.Context, requestID string) (*RequestInfo, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT request_id, round_number, miner_kind, request_type, block, assets_and_pools, miner_uids, created_at
		FROM allocation_requests
		WHERE request_id = $1`

	var info RequestInfo
	var kind int
	var requestType string
	var block int64
	var problemJSON []byte
	var uids []int64
	err := DB.QueryRowContext(ctx, query, requestID).Scan(
		&info.RequestID, &info.Round, &kind, &requestType, &block, &problemJSON, pq.Array(&uids), &info.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}

	info.Kind = types.MinerKind(kind)
	info.RequestType = types.RequestType(requestType)
	info.Block = uint64(block)
	if len(problemJSON) > 0 {
		var problem types.AssetsAndPools
		if err := json.Unmarshal(problemJSON, &problem); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assets_and_pools of %s: %w", requestID, err)
		}
		info.Problem = &problem
	}
	info.MinerUIDs = make([]types.MinerUID, len(uids))
	for i, uid := range uids {
		info.MinerUIDs[i] = types.MinerUID(uid)
	}
	return &info, nil
}

const responseColumns = `
	a.request_id, a.miner_uid, a.status, a.allocation, a.apy::TEXT, a.reward, a.latency_ms, a.timed_out, r.created_at`

// GetRoundResponses loads every stored response of one round, ordered by uid.
func GetRoundResponses(ctx context.Context, requestID string) ([]MinerResponseRow, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	query := `SELECT` + responseColumns + `
		FROM allocations a
		JOIN allocation_requests r ON r.request_id = a.request_id
		WHERE a.request_id = $1
		ORDER BY a.miner_uid`
	return queryResponses(ctx, query, requestID)
}

// GetMinerResponses loads the most recent responses of one miner, newest first.
func GetMinerResponses(ctx context.Context, uid types.MinerUID, limit int) ([]MinerResponseRow, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	query := `SELECT` + responseColumns + `
		FROM allocations a
		JOIN allocation_requests r ON r.request_id = a.request_id
		WHERE a.miner_uid = $1
		ORDER BY r.created_at DESC
		LIMIT $2`
	return queryResponses(ctx, query, int(uid), clampLimit(limit))
}

func queryResponses(ctx context.Context, query string, args ...any) ([]MinerResponseRow, error) {
	rows, err := DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query miner responses: %w", err)
	}
	defer rows.Close()

	out := make([]MinerResponseRow, 0)
	for rows.Next() {
		var row MinerResponseRow
		var uid int
		var status, apy string
		var allocJSON []byte
		var latencyMs int64
		if err := rows.Scan(
			&row.RequestID, &uid, &status, &allocJSON, &apy, &row.Reward, &latencyMs, &row.TimedOut, &row.CreatedAt,
		); err != nil {
			log.Error().Err(err).Msg("Failed to scan miner response row")
			continue
		}
		row.UID = types.MinerUID(uid)
		row.Status = types.ResponseStatus(status)
		row.Latency = time.Duration(latencyMs) * time.Millisecond
		value, ok := sdkmath.NewIntFromString(apy)
		if !ok {
			log.Error().Str("apy", apy).Str("request_id", row.RequestID).Msg("Stored APY is not an integer")
			value = sdkmath.ZeroInt()
		}
		row.APY = value
		if len(allocJSON) > 0 {
			if err := json.Unmarshal(allocJSON, &row.Allocation); err != nil {
				log.Error().Err(err).Str("request_id", row.RequestID).Msg("Failed to unmarshal stored allocation")
				continue
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
