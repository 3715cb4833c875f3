package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Timetable is the per-trading-day session configuration: which streams
// exist today and when their range windows run. It is produced by an
// external scheduler and polled for changes; the engine never writes it.
type Timetable struct {
	TradingDate string        `yaml:"trading_date"`
	Timezone    string        `yaml:"timezone"`
	Streams     []StreamEntry `yaml:"streams"`
}

// StreamEntry configures one instrument/session/slot combination.
type StreamEntry struct {
	Instrument string `yaml:"instrument"`
	Session    string `yaml:"session"`
	RangeStart string `yaml:"range_start"`
	SlotTime   string `yaml:"slot_time"`
	Enabled    bool   `yaml:"enabled"`
}

// ID is the stream's stable identity for journals and logs.
func (e StreamEntry) ID() string {
	return fmt.Sprintf("%s_%s_%s", e.Instrument, e.Session, e.SlotTime)
}

// LoadTimetable reads and validates a timetable file. Any validation
// failure is fail-closed: the caller stands every stream down rather than
// trading on a guessed schedule.
func LoadTimetable(path string) (*Timetable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timetable: %w", err)
	}

	tt := &Timetable{}
	if err := yaml.Unmarshal(data, tt); err != nil {
		return nil, fmt.Errorf("parse timetable: %w", err)
	}
	if err := tt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timetable: %w", err)
	}
	return tt, nil
}

// Validate checks the timetable is complete and internally consistent.
func (tt *Timetable) Validate() error {
	if tt.TradingDate == "" {
		return fmt.Errorf("trading_date is required")
	}
	if _, err := ParseTradingDate(tt.TradingDate); err != nil {
		return err
	}
	if tt.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(tt.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	seen := map[string]bool{}
	for i, e := range tt.Streams {
		if e.Instrument == "" {
			return fmt.Errorf("streams[%d]: instrument is required", i)
		}
		if e.Session == "" {
			return fmt.Errorf("streams[%d]: session is required", i)
		}
		rs, err := ParseClockTime(e.RangeStart)
		if err != nil {
			return fmt.Errorf("streams[%d]: range_start: %w", i, err)
		}
		st, err := ParseClockTime(e.SlotTime)
		if err != nil {
			return fmt.Errorf("streams[%d]: slot_time: %w", i, err)
		}
		if !lessClock(rs, st) {
			return fmt.Errorf("streams[%d]: range_start %s must precede slot_time %s", i, rs, st)
		}
		if seen[e.ID()] {
			return fmt.Errorf("streams[%d]: duplicate stream %s", i, e.ID())
		}
		seen[e.ID()] = true
	}
	return nil
}

// Date returns the parsed trading date. Validate must have passed.
func (tt *Timetable) Date() TradingDate {
	d, _ := ParseTradingDate(tt.TradingDate)
	return d
}

func lessClock(a, b ClockTime) bool {
	if a.Hour != b.Hour {
		return a.Hour < b.Hour
	}
	if a.Minute != b.Minute {
		return a.Minute < b.Minute
	}
	return a.Second < b.Second
}
