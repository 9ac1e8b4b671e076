package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NetUID is the subnet this validator scores miners for.
	NetUID uint16

	// RoundInterval is the delay between two rounds of the run loop.
	RoundInterval time.Duration
	// QueryTimeout bounds every miner query. Slower responses score zero.
	QueryTimeout time.Duration

	// MovingAverageAlpha is the weight of the newest reward in the score moving average.
	MovingAverageAlpha float64
	// ExcludeQuantile is the share (out of 65535) of the lowest non-zero scores dropped before emission.
	ExcludeQuantile uint16
	// WeightsRateLimitBlocks is the minimum number of blocks between weight submissions.
	WeightsRateLimitBlocks uint64

	// DevMinerCount is the number of in-process miners served by the development transport.
	DevMinerCount int
	// SimulatorSeed fixes the synthetic problem generator. Nil draws a fresh seed each round.
	SimulatorSeed *int64

	// ScoringParamsFile optionally overrides the default parameters with a YAML file.
	ScoringParamsFile string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFile optionally mirrors the console log into a file.
	LogFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// NETUID is required, everything else falls back to a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	netUID, err := getEnvAsUint64("NETUID")
	if err != nil {
		return err
	}
	if netUID > 65535 {
		return errors.New("environment variable NETUID must fit in a uint16, got: " + strconv.FormatUint(netUID, 10))
	}
	NetUID = uint16(netUID)

	RoundInterval, err = getEnvAsDurationOr("ROUND_INTERVAL", 5*time.Minute)
	if err != nil {
		return err
	}

	QueryTimeout, err = getEnvAsDurationOr("QUERY_TIMEOUT", DefaultScoringParameters.QueryTimeout)
	if err != nil {
		return err
	}

	MovingAverageAlpha, err = getEnvAsFloat64Or("MOVING_AVERAGE_ALPHA", DefaultWeightParameters.MovingAverageAlpha)
	if err != nil {
		return err
	}
	if MovingAverageAlpha <= 0 || MovingAverageAlpha > 1 {
		return errors.New("environment variable MOVING_AVERAGE_ALPHA must be in (0, 1]")
	}

	excludeQuantile, err := getEnvAsUint64Or("EXCLUDE_QUANTILE", uint64(DefaultWeightParameters.ExcludeQuantile))
	if err != nil {
		return err
	}
	if excludeQuantile > 65535 {
		return errors.New("environment variable EXCLUDE_QUANTILE must fit in a uint16")
	}
	ExcludeQuantile = uint16(excludeQuantile)

	WeightsRateLimitBlocks, err = getEnvAsUint64Or("WEIGHTS_RATE_LIMIT_BLOCKS", DefaultWeightParameters.RateLimitBlocks)
	if err != nil {
		return err
	}

	devMiners, err := getEnvAsUint64Or("DEV_MINER_COUNT", 16)
	if err != nil {
		return err
	}
	DevMinerCount = int(devMiners)

	SimulatorSeed = nil
	if seedStr := getEnvOr("SIMULATOR_SEED", ""); seedStr != "" {
		seed, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			return errors.New("environment variable SIMULATOR_SEED must be a valid int64, got: " + seedStr)
		}
		SimulatorSeed = &seed
	}

	ScoringParamsFile = getEnvOr("SCORING_PARAMS_FILE", "")
	LogLevel = getEnvOr("LOG_LEVEL", "info")
	LogFile = getEnvOr("LOG_FILE", "")

	// Load endpoint configuration
	if err := LoadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint16("NetUID", NetUID).
		Dur("RoundInterval", RoundInterval).
		Dur("QueryTimeout", QueryTimeout).
		Int("DevMinerCount", DevMinerCount).
		Msg("Configuration loaded successfully.")

	return nil
}

// EffectiveParameters returns the parameters in effect: defaults, then the optional YAML file, then
// any of QUERY_TIMEOUT, MOVING_AVERAGE_ALPHA, EXCLUDE_QUANTILE or WEIGHTS_RATE_LIMIT_BLOCKS that is
// explicitly set in the environment.
func EffectiveParameters() (ScoringFile, error) {
	params := ScoringFile{
		Scoring:    DefaultScoringParameters,
		Simulation: DefaultSimulationParameters,
		Weights:    DefaultWeightParameters,
	}
	if ScoringParamsFile != "" {
		loaded, err := LoadScoringParametersFile(ScoringParamsFile)
		if err != nil {
			return ScoringFile{}, err
		}
		params = loaded
	}
	if isSet("QUERY_TIMEOUT") {
		params.Scoring.QueryTimeout = QueryTimeout
	}
	if isSet("MOVING_AVERAGE_ALPHA") {
		params.Weights.MovingAverageAlpha = MovingAverageAlpha
	}
	if isSet("EXCLUDE_QUANTILE") {
		params.Weights.ExcludeQuantile = ExcludeQuantile
	}
	if isSet("WEIGHTS_RATE_LIMIT_BLOCKS") {
		params.Weights.RateLimitBlocks = WeightsRateLimitBlocks
	}
	return params, nil
}

func isSet(key string) bool {
	return getEnvOr(key, "") != ""
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOr(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsUint64Or(key string, def uint64) (uint64, error) {
	if getEnvOr(key, "") == "" {
		return def, nil
	}
	return getEnvAsUint64(key)
}

// getEnvAsFloat64Or retrieves an environment variable as a float64, or def when unset.
func getEnvAsFloat64Or(key string, def float64) (float64, error) {
	valueStr := getEnvOr(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOr accepts Go durations ("90s", "5m").
func getEnvAsDurationOr(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOr(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}
