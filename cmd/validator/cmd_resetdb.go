package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/state"
)

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Drop and recreate every validator table",
	Long: `Drop the audit, score, parameter and round counter tables and recreate the
schema. Every stored round is lost.`,
	RunE: runResetDB,
}

var resetRound int

func init() {
	rootCmd.AddCommand(resetDBCmd)
	resetDBCmd.Flags().IntVar(&resetRound, "round", 0, "Round number to restart the counter at")
}

func runResetDB(cmd *cobra.Command, args []string) error {
	logger.Initialize("info")
	log.Info().Msg("Starting database reset...")

	if err := config.LoadEndpointConfig(); err != nil {
		return err
	}
	dbCfg := dbConfig()

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		return err
	}
	defer state.CloseDB()

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := state.DropSchema(); err != nil {
		return err
	}

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		return err
	}
	if resetRound > 0 {
		if err := state.ResetRoundNumber(context.Background(), resetRound); err != nil {
			return err
		}
	}

	log.Info().Int("round", resetRound).Msg("Database reset complete!")
	return nil
}
