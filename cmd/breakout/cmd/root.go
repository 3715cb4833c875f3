package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "breakout",
	Short: "An automated range-breakout execution engine for futures",
	Long: `Breakout runs time-triggered range-breakout sessions against a broker
adapter with a durable execution journal.

It provides tools for:
  - Running live or simulated trading days from a timetable
  - Replaying a day against snapshot bar data
  - Inspecting stream journals and event logs
  - Generating and validating configuration files

Complete documentation is available at https://github.com/rustyeddy/breakout`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
