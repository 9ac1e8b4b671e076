package state

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldcore/internal/types"
)

// SaveScores replaces the stored moving-average scores with scores.
func SaveScores(ctx context.Context, scores map[types.MinerUID]float64) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}

	uids := make([]types.MinerUID, 0, len(scores))
	for uid := range scores {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM validator_scores;`); err != nil {
		return fmt.Errorf("failed to clear validator scores: %w", err)
	}
	upsert := `
		INSERT INTO validator_scores (miner_uid, score, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP);`
	for _, uid := range uids {
		if _, err = tx.ExecContext(ctx, upsert, int(uid), scores[uid]); err != nil {
			return fmt.Errorf("failed to save score of uid %d: %w", uid, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit validator scores: %w", err)
	}

	log.Debug().Int("miners", len(uids)).Msg("Validator scores saved")
	return nil
}

// LoadScores returns the stored moving-average scores. An empty table yields an empty map.
func LoadScores(ctx context.Context) (map[types.MinerUID]float64, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := DB.QueryContext(ctx, `SELECT miner_uid, score FROM validator_scores ORDER BY miner_uid;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query validator scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[types.MinerUID]float64)
	for rows.Next() {
		var uid int
		var score float64
		if err := rows.Scan(&uid, &score); err != nil {
			return nil, fmt.Errorf("failed to scan validator score: %w", err)
		}
		scores[types.MinerUID(uid)] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Info().Int("miners", len(scores)).Msg("Loaded validator scores")
	return scores, nil
}
