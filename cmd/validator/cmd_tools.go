package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/elys-network/yieldcore/internal/analyzer"
	"github.com/elys-network/yieldcore/internal/config"
	"github.com/elys-network/yieldcore/internal/ratemodel"
	"github.com/elys-network/yieldcore/internal/simulator"
	"github.com/elys-network/yieldcore/internal/types"
	"github.com/elys-network/yieldcore/internal/uniswap"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a synthetic problem and print its simulated history",
	Long: `Generate a synthetic lending problem with the configured parameters, run the
simulator over it and print the problem and every pool snapshot as JSON.

Examples:
  validator simulate --seed 42
  validator simulate --seed 42 --timesteps 20 --params params.yaml`,
	RunE: runSimulate,
}

var allocateCmd = &cobra.Command{
	Use:   "allocate [problem.json]",
	Short: "Run the greedy allocator on a problem",
	Long: `Read an assets-and-pools problem as JSON (from a file or stdin) and print the
greedy reference allocation with its immediate APY.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAllocate,
}

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Print the token amounts of a Uniswap V3 position",
	RunE:  runPosition,
}

var (
	simSeed      int64
	simTimesteps int
	paramsFile   string

	allocChunkRatio float64

	posTick      int32
	posLower     int32
	posUpper     int32
	posLiquidity string
)

func init() {
	rootCmd.AddCommand(simulateCmd, allocateCmd, positionCmd)

	rootCmd.PersistentFlags().StringVar(&paramsFile, "params", "", "YAML file overriding the default parameters")

	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Simulator seed (default: clock)")
	simulateCmd.Flags().IntVar(&simTimesteps, "timesteps", 0, "Number of steps (default: drawn from the parameter grid)")

	allocateCmd.Flags().Float64Var(&allocChunkRatio, "chunk-ratio", config.DefaultScoringParameters.ChunkRatio, "Fraction of total assets placed per greedy step")

	positionCmd.Flags().Int32Var(&posTick, "tick", 0, "Current pool tick")
	positionCmd.Flags().Int32Var(&posLower, "lower", 0, "Lower tick of the position")
	positionCmd.Flags().Int32Var(&posUpper, "upper", 0, "Upper tick of the position")
	positionCmd.Flags().StringVar(&posLiquidity, "liquidity", "", "Position liquidity")
	positionCmd.MarkFlagRequired("liquidity")
}

func loadParams() (config.ScoringFile, error) {
	if paramsFile != "" {
		return config.LoadScoringParametersFile(paramsFile)
	}
	return config.ScoringFile{
		Scoring:    config.DefaultScoringParameters,
		Simulation: config.DefaultSimulationParameters,
		Weights:    config.DefaultWeightParameters,
	}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	params, err := loadParams()
	if err != nil {
		return err
	}

	seed := simSeed
	if !cmd.Flags().Changed("seed") {
		seed = time.Now().UnixNano()
	}
	sim, err := simulator.New(simulator.Options{Seed: &seed, ReversionSpeed: params.Simulation.ReversionSpeed, Params: params.Simulation})
	if err != nil {
		return err
	}

	var timesteps *int
	if simTimesteps > 0 {
		timesteps = &simTimesteps
	}
	sim.Initialize(timesteps, nil)
	if err := sim.InitData(nil, nil); err != nil {
		return err
	}
	if err := sim.Run(); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"seed":          sim.Seed(),
		"timesteps":     sim.Timesteps(),
		"stochasticity": sim.Stochasticity(),
		"problem":       sim.AssetsAndPools(),
		"allocations":   sim.Allocations(),
		"history":       sim.History(),
	})
}

func runAllocate(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open problem file: %w", err)
		}
		defer f.Close()
		in = f
	}

	var problem types.AssetsAndPools
	if err := json.NewDecoder(in).Decode(&problem); err != nil {
		return fmt.Errorf("failed to decode problem: %w", err)
	}

	alloc, err := ratemodel.GreedyAllocate(problem, allocChunkRatio)
	if err != nil {
		return err
	}
	apy, err := analyzer.CalculateAPY(alloc, problem)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"allocations": alloc,
		"apy":         apy,
	})
}

func runPosition(cmd *cobra.Command, args []string) error {
	liquidity, ok := new(big.Int).SetString(posLiquidity, 10)
	if !ok || liquidity.Sign() < 0 {
		return fmt.Errorf("liquidity must be a non-negative integer, got %q", posLiquidity)
	}
	sqrtPrice, err := uniswap.SqrtRatioAtTick(posTick)
	if err != nil {
		return err
	}
	amount0, amount1, err := uniswap.AmountsForLiquidity(sqrtPrice, posLower, posUpper, liquidity)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"in_range": posLower <= posTick && posTick <= posUpper,
		"amount0":  amount0.String(),
		"amount1":  amount1.String(),
	})
}
