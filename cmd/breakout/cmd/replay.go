package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/engine"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a trading day against snapshot bar data",
	Long: `Replay runs the full breakout lifecycle against CSV snapshot data
using the sim adapter: range build, lock, brackets, fills, protection and
close-out, with every step journaled exactly as in a live run.

The config must set engine.data_dir; each instrument reads from
<data_dir>/<INSTRUMENT>.csv.

Example:
  breakout replay --config replay.yaml`,
	RunE: runReplay,
}

var replayConfigPath string

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	replayCmd.MarkFlagRequired("config")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(replayConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Adapter.Type != "sim" {
		return fmt.Errorf("replay requires adapter.type sim, got %q", cfg.Adapter.Type)
	}
	log := newLogger(cfg.Logging.Level)

	e, err := engine.New(cfg, log)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer e.Close()

	if err := e.Replay(context.Background()); err != nil {
		return err
	}

	fmt.Printf("Replay complete for %s:\n", e.TradingDate())
	for _, s := range e.Streams() {
		fmt.Printf("  %-20s %s\n", s.ID(), s.Terminal())
	}
	return nil
}
