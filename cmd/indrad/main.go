package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgPath    string
	listenFlag string
	watchFlag  string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "indrad",
	Short: "indrad - coupled-oscillator wavefield engine daemon",
	Long: `indrad hosts the Indra wavefield engine behind a small REST surface.

serve exposes the live kernel spec (GET/POST /spec) and batch simulation
(POST /simulate); simulate runs one batch locally and prints the telemetry.
The daemon never renders pixels: consumers read telemetry, metrics, and the
raw irradiance buffer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the spec and simulation REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		if listenFlag != "" {
			cfg.Listen = listenFlag
		}
		if watchFlag != "" {
			cfg.Watch = watchFlag
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return newServer(cfg, logger).run(ctx)
	},
}

var (
	simWidth   int
	simHeight  int
	simSteps   int
	simSeed    int64
	simCapture bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a batch simulation and print telemetry as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		req := simRequest{
			Width:             simWidth,
			Height:            simHeight,
			Steps:             simSteps,
			Seed:              simSeed,
			Params:            &cfg.Params,
			CaptureIrradiance: simCapture,
		}
		if err := req.validate(); err != nil {
			return err
		}
		res, err := runSimulation(req, cfg.initialSpec(), 0, cfg.Workers, logger)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	serveCmd.Flags().StringVarP(&listenFlag, "listen", "l", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&watchFlag, "watch", "", "Spec patch file to hot-reload on change (overrides config)")

	simulateCmd.Flags().IntVar(&simWidth, "width", 256, "Lattice width")
	simulateCmd.Flags().IntVar(&simHeight, "height", 256, "Lattice height")
	simulateCmd.Flags().IntVar(&simSteps, "steps", 120, "Number of integrator steps")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "Noise and phase seed")
	simulateCmd.Flags().BoolVar(&simCapture, "irradiance", false, "Include the base64 binary16 irradiance buffer")

	rootCmd.AddCommand(serveCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "indrad: %v\n", err)
		os.Exit(1)
	}
}
