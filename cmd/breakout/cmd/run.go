package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/engine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a trading day from a config file",
	Long: `Run the breakout engine for the timetable's trading day.

The engine recovers any prior state for the day from the journal before
the scheduler starts, so restarting mid-day is safe: locked ranges are
reloaded, journaled orders are never submitted twice.

Example:
  breakout run --config breakout.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.Logging.Level)

	e, err := engine.New(cfg, log)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer e.Close()

	if err := e.Recover(); err != nil {
		return fmt.Errorf("recover journal: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
