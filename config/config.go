package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/breakout/session"
)

// Config represents the complete engine configuration
type Config struct {
	Engine    EngineConfig    `json:"engine" yaml:"engine"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Adapter   AdapterConfig   `json:"adapter" yaml:"adapter"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// EngineConfig contains scheduling and data parameters
type EngineConfig struct {
	TimetablePath string `json:"timetable_path" yaml:"timetable_path"`
	// PollInterval between timetable re-reads, e.g. "1m"
	PollInterval string `json:"poll_interval" yaml:"poll_interval"`
	// TickInterval of the scheduler loop, e.g. "1s"
	TickInterval string `json:"tick_interval" yaml:"tick_interval"`
	// CloseTime is the market close in the timetable's timezone, "HH:MM:SS"
	CloseTime string `json:"close_time" yaml:"close_time"`
	// Grace allowed for late hydration after a range window opens, e.g. "2m"
	Grace string `json:"grace" yaml:"grace"`
	// DataDir holds snapshot CSV files named <INSTRUMENT>.csv
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
}

// ExecutionConfig contains order sizing and protection parameters
type ExecutionConfig struct {
	Quantity          float64 `json:"quantity" yaml:"quantity"`
	ProtectiveRetries int     `json:"protective_retries" yaml:"protective_retries"`
	BreakEvenFraction float64 `json:"break_even_fraction" yaml:"break_even_fraction"`
	TargetFraction    float64 `json:"target_fraction" yaml:"target_fraction"`
}

// JournalConfig contains durable journaling parameters
type JournalConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// AdapterConfig selects and tunes the order adapter
type AdapterConfig struct {
	Type string `json:"type" yaml:"type"` // "sim" or "log"
	// SplitFills makes the sim adapter report entries in two partial fills
	SplitFills bool `json:"split_fills,omitempty" yaml:"split_fills,omitempty"`
}

// LoggingConfig contains log output parameters
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"` // zerolog level name
}

// ParsePollInterval converts the poll interval string to time.Duration
func (e EngineConfig) ParsePollInterval() (time.Duration, error) {
	if e.PollInterval == "" {
		return time.Minute, nil
	}
	return time.ParseDuration(e.PollInterval)
}

// ParseTickInterval converts the tick interval string to time.Duration
func (e EngineConfig) ParseTickInterval() (time.Duration, error) {
	if e.TickInterval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(e.TickInterval)
}

// ParseGrace converts the grace string to time.Duration
func (e EngineConfig) ParseGrace() (time.Duration, error) {
	if e.Grace == "" {
		return 2 * time.Minute, nil
	}
	return time.ParseDuration(e.Grace)
}

// ParseCloseTime converts the close time string to a session clock time
func (e EngineConfig) ParseCloseTime() (session.ClockTime, error) {
	return session.ParseClockTime(e.CloseTime)
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if (len(path) > 5 && path[len(path)-5:] == ".yaml") || (len(path) > 4 && path[len(path)-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Any failure here keeps
// the engine from submitting orders.
func (c *Config) Validate() error {
	if c.Engine.TimetablePath == "" {
		return fmt.Errorf("engine.timetable_path is required")
	}
	if _, err := c.Engine.ParsePollInterval(); err != nil {
		return fmt.Errorf("engine.poll_interval: %w", err)
	}
	if _, err := c.Engine.ParseTickInterval(); err != nil {
		return fmt.Errorf("engine.tick_interval: %w", err)
	}
	if _, err := c.Engine.ParseGrace(); err != nil {
		return fmt.Errorf("engine.grace: %w", err)
	}
	if _, err := c.Engine.ParseCloseTime(); err != nil {
		return fmt.Errorf("engine.close_time: %w", err)
	}
	if c.Execution.Quantity <= 0 {
		return fmt.Errorf("execution.quantity must be positive")
	}
	if c.Execution.ProtectiveRetries <= 0 {
		return fmt.Errorf("execution.protective_retries must be positive")
	}
	if c.Execution.BreakEvenFraction <= 0 || c.Execution.BreakEvenFraction >= 1 {
		return fmt.Errorf("execution.break_even_fraction must be between 0 and 1")
	}
	if c.Execution.TargetFraction <= 0 {
		return fmt.Errorf("execution.target_fraction must be positive")
	}
	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	if c.Adapter.Type != "sim" && c.Adapter.Type != "log" {
		return fmt.Errorf("adapter.type must be 'sim' or 'log'")
	}
	if c.Logging.Level != "" {
		if err := checkLogLevel(c.Logging.Level); err != nil {
			return err
		}
	}
	return nil
}

func checkLogLevel(name string) error {
	switch name {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		return nil
	}
	return fmt.Errorf("unknown log level: %s", name)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			TimetablePath: "./timetable.yaml",
			PollInterval:  "1m",
			TickInterval:  "1s",
			CloseTime:     "22:00:00",
			Grace:         "2m",
		},
		Execution: ExecutionConfig{
			Quantity:          1,
			ProtectiveRetries: 3,
			BreakEvenFraction: 0.5,
			TargetFraction:    1.0,
		},
		Journal: JournalConfig{
			DBPath: "./breakout.db",
		},
		Adapter: AdapterConfig{
			Type: "sim",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
