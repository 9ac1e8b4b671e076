package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/ledger"
	"github.com/elys-network/yieldcore/internal/logger"
	"github.com/elys-network/yieldcore/internal/observability"
	"github.com/elys-network/yieldcore/internal/state"
	"github.com/elys-network/yieldcore/internal/transport"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/validator"
	"github.com/elys-network/yieldcore/internal/web"
)

const (
	DEFAULT_SCORING_CONFIG_NAME = "default_validator"
	shutdownTimeout             = 15 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   "validator",
	Short: "Yield allocation validator",
	Long: `Scores miners that allocate assets across lending pools or provide Uniswap V3
liquidity, and turns the scores into ledger weights.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the validator loop",
	Long: `Run scoring rounds on a fixed interval against the development ledger and the
in-process miners, persist every round and serve the HTTP API.

Examples:
  validator run
  validator run --memory --min-allowed-weights 4`,
	RunE: runValidator,
}

var (
	runMemory            bool
	runMinAllowedWeights int
	runMaxWeightLimit    float64
	runStartBlock        uint64
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runMemory, "memory", false, "Keep rounds and scores in memory instead of Postgres")
	runCmd.Flags().IntVar(&runMinAllowedWeights, "min-allowed-weights", 1, "Minimum number of non-zero weights the ledger accepts")
	runCmd.Flags().Float64Var(&runMaxWeightLimit, "max-weight-limit", 0.5, "Largest share a single miner may receive")
	runCmd.Flags().Uint64Var(&runStartBlock, "start-block", 0, "Block height of the development ledger at startup")
}

// main is the entry point for the validator.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogging() {
	if config.LogFile == "" {
		logger.Initialize(config.LogLevel)
		return
	}
	file, err := logger.FileWriter(config.LogFile)
	if err != nil {
		logger.Initialize(config.LogLevel)
		log.Error().Err(err).Str("path", config.LogFile).Msg("Failed to open log file, logging to console only")
		return
	}
	logger.Initialize(config.LogLevel, file)
}

func dbConfig() state.DBConfig {
	return state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
}

func runValidator(cmd *cobra.Command, args []string) error {
	// --- 1. Initialization Phase ---
	if err := config.LoadConfig(); err != nil {
		return err
	}
	initLogging()
	log.Info().Uint16("netuid", config.NetUID).Msg("Validator starting...")

	if paramsFile != "" {
		config.ScoringParamsFile = paramsFile
	}
	params, err := config.EffectiveParameters()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(config.MetricsNamespace)

	// --- 2. Persistence ---
	var persistence validator.Persistence
	var store web.Store
	var recorder *state.Recorder
	if runMemory {
		log.Warn().Msg("Running without a database. Rounds and scores are lost on exit.")
		persistence = validator.NewMemoryPersistence()
	} else {
		if err := state.InitDB(dbConfig()); err != nil {
			return err
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			return err
		}
		if _, err := state.SaveScoringParameters(ctx, params, DEFAULT_SCORING_CONFIG_NAME, true); err != nil {
			return err
		}

		recorder = state.NewRecorder(state.DefaultRecorderBuffer, metrics)
		recorder.Start(ctx)
		persistence = recorder
		store = state.Queries{ConfigName: DEFAULT_SCORING_CONFIG_NAME}
	}

	// --- 3. Collaborators ---
	strategies := transport.DefaultStrategies(config.DevMinerCount)
	local := transport.NewLocal(strategies, params.Scoring.Workers)

	ledgerClient, err := ledger.NewStaticClient(ledger.StaticConfig{
		StartBlock:        runStartBlock,
		MinAllowedWeights: runMinAllowedWeights,
		MaxWeightLimit:    runMaxWeightLimit,
		Miners:            map[types.MinerKind][]types.MinerUID{types.AllocationMiner: local.UIDs()},
	})
	if err != nil {
		return err
	}

	// --- 4. Validator Instance ---
	v, err := validator.NewValidator(validator.Config{
		Ledger:      ledgerClient,
		Transport:   local,
		Persistence: persistence,
		Metrics:     metrics,
		Params:      params,
		Seed:        config.SimulatorSeed,
	})
	if err != nil {
		return err
	}
	if err := v.RestoreScores(ctx); err != nil {
		log.Warn().Err(err).Msg("Starting with empty scores")
	}

	// --- 5. Web Server ---
	webServer := web.NewWebServer(strconv.Itoa(config.WebPort), store, v, metrics.Handler())
	go func() {
		log.Info().Int("port", config.WebPort).Str("url", "http://localhost:"+strconv.Itoa(config.WebPort)).Msg("Starting validator API")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 6. Main Loop ---
	v.RunLoop(ctx, config.RoundInterval)

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	if recorder != nil {
		recorder.Close()
	}
	log.Info().Msg("Validator stopped")
	return nil
}
