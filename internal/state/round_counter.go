/*

This file manages the persistent global round counter of the validator.
The counter is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentRoundNumber retrieves the current round number from the database
func GetCurrentRoundNumber(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	query := `SELECT current_round FROM round_counter WHERE id = 1;`

	var currentRound int
	err := DB.QueryRowContext(ctx, query).Scan(&currentRound)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// This should not happen due to the INSERT in EnsureSchema
			log.Warn().Msg("No round counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current round number: %w", err)
	}

	log.Debug().Int("currentRound", currentRound).Msg("Retrieved current round number")
	return currentRound, nil
}

// IncrementRoundNumber increments the round counter and returns the new value
func IncrementRoundNumber(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	updateQuery := `
		UPDATE round_counter
		SET current_round = current_round + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_round;`

	var newRound int
	if err := DB.QueryRowContext(ctx, updateQuery).Scan(&newRound); err != nil {
		return 0, fmt.Errorf("failed to increment round number: %w", err)
	}

	log.Debug().Int("newRound", newRound).Msg("Incremented round counter")
	return newRound, nil
}

// ResetRoundNumber resets the round counter to a specific value (for testing/maintenance)
func ResetRoundNumber(ctx context.Context, roundNumber int) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if roundNumber < 0 {
		return fmt.Errorf("round number cannot be negative: %d", roundNumber)
	}

	updateQuery := `
		UPDATE round_counter
		SET current_round = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.ExecContext(ctx, updateQuery, roundNumber)
	if err != nil {
		return fmt.Errorf("failed to reset round number to %d: %w", roundNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting round number")
	}

	log.Warn().Int("roundNumber", roundNumber).Msg("Reset round counter")
	return nil
}
