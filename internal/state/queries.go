package state

import (
	"context"

	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/types"
)

// Queries exposes the read helpers of this package as methods, for consumers that take an
// interface.
type Queries struct {
	// ConfigName selects the scoring parameters returned by ActiveParameters.
	ConfigName string
}

func (q Queries) RecentRounds(ctx context.Context, limit int) ([]RoundSummary, error) {
	return GetRecentRounds(ctx, limit)
}

func (q Queries) RequestInfo(ctx context.Context, requestID string) (*RequestInfo, error) {
	return GetRequestInfo(ctx, requestID)
}

func (q Queries) RoundResponses(ctx context.Context, requestID string) ([]MinerResponseRow, error) {
	return GetRoundResponses(ctx, requestID)
}

func (q Queries) MinerResponses(ctx context.Context, uid types.MinerUID, limit int) ([]MinerResponseRow, error) {
	return GetMinerResponses(ctx, uid, limit)
}

func (q Queries) ActiveParameters(ctx context.Context) (*config.ScoringFile, error) {
	params, _, err := LoadActiveScoringParameters(ctx, q.ConfigName)
	return params, err
}

func (q Queries) Ping() error {
	return TestDBConnection()
}
