package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  timetable_path: /etc/breakout/timetable.yaml
  poll_interval: 30s
  tick_interval: 500ms
  close_time: "16:00:00"
  grace: 3m
execution:
  quantity: 2
  protective_retries: 5
  break_even_fraction: 0.6
  target_fraction: 1.5
journal:
  db_path: /var/lib/breakout/journal.db
adapter:
  type: sim
  split_fills: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/breakout/timetable.yaml", cfg.Engine.TimetablePath)
	poll, err := cfg.Engine.ParsePollInterval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, poll)
	grace, err := cfg.Engine.ParseGrace()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, grace)
	closeClock, err := cfg.Engine.ParseCloseTime()
	require.NoError(t, err)
	assert.Equal(t, 16, closeClock.Hour)

	assert.Equal(t, 2.0, cfg.Execution.Quantity)
	assert.Equal(t, 5, cfg.Execution.ProtectiveRetries)
	assert.True(t, cfg.Adapter.SplitFills)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]func(*Config){
		"empty timetable path": func(c *Config) { c.Engine.TimetablePath = "" },
		"bad grace":            func(c *Config) { c.Engine.Grace = "soon" },
		"bad close time":       func(c *Config) { c.Engine.CloseTime = "noon" },
		"zero quantity":        func(c *Config) { c.Execution.Quantity = 0 },
		"zero retries":         func(c *Config) { c.Execution.ProtectiveRetries = 0 },
		"break even too big":   func(c *Config) { c.Execution.BreakEvenFraction = 1.5 },
		"empty db path":        func(c *Config) { c.Journal.DBPath = "" },
		"unknown adapter":      func(c *Config) { c.Adapter.Type = "oanda" },
		"unknown log level":    func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Execution.Quantity = 3
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDefaultsFillMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  timetable_path: ./tt.yaml
journal:
  db_path: ./j.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.Adapter.Type)
	assert.Equal(t, 3, cfg.Execution.ProtectiveRetries)
	tick, err := cfg.Engine.ParseTickInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Second, tick)
}
