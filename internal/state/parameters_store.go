// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldcore/internal/config"
)

// SaveScoringParameters stores params as the next version of configName and returns its id.
// With makeActive the previously active version of configName is deactivated.
func SaveScoringParameters(ctx context.Context, params config.ScoringFile, configName string, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal scoring parameters: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE scoring_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		if _, err = tx.ExecContext(ctx, stmtDeactivate, configName); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	var version int
	stmt := `
		INSERT INTO scoring_parameters (config_name, version, is_active, params)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3
		FROM scoring_parameters WHERE config_name = $1
		RETURNING params_id, version;`
	if err = tx.QueryRowContext(ctx, stmt, configName, makeActive, string(raw)).Scan(&paramsID, &version); err != nil {
		return 0, fmt.Errorf("failed to insert scoring parameters for %s: %w", configName, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scoring parameters: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved scoring parameters")
	return paramsID, nil
}

// LoadActiveScoringParameters loads the currently active parameters of configName.
func LoadActiveScoringParameters(ctx context.Context, configName string) (*config.ScoringFile, int64, error) {
	if DB == nil {
		return nil, 0, ErrDBNotInitialized
	}

	query := `
		SELECT params_id, params
		FROM scoring_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1;`

	var paramsID int64
	var raw []byte
	err := DB.QueryRowContext(ctx, query, configName).Scan(&paramsID, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("%w: no active scoring parameters for config '%s'", ErrNotFound, configName)
		}
		return nil, 0, fmt.Errorf("failed to load active scoring parameters for config '%s': %w", configName, err)
	}

	var params config.ScoringFile
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal scoring parameters %d: %w", paramsID, err)
	}
	if err := params.Validate(); err != nil {
		return nil, 0, err
	}
	log.Info().Str("config", configName).Int64("params_id", paramsID).Msg("Loaded active scoring parameters")
	return &params, paramsID, nil
}
