package session

import (
	"fmt"
	"time"
)

// TimeService converts between the exchange's trading timezone and UTC and
// is the sole authority for which trading day a timestamp belongs to.
// A trading day boundary is the exchange-local midnight, so daylight-saving
// transitions shift the UTC boundary with the exchange, never the engine.
type TimeService struct {
	loc *time.Location
}

// NewTimeService loads the exchange timezone. An unknown or malformed zone
// name is a startup error; the engine must not run with a guessed offset.
func NewTimeService(zone string) (*TimeService, error) {
	if zone == "" {
		return nil, fmt.Errorf("timezone is required")
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &TimeService{loc: loc}, nil
}

// Location exposes the loaded timezone rules.
func (ts *TimeService) Location() *time.Location { return ts.loc }

// ToLocal converts a UTC instant to exchange-local time.
func (ts *TimeService) ToLocal(utc time.Time) time.Time {
	return utc.In(ts.loc)
}

// ToUTC anchors an exchange-local clock time (e.g. "09:00") on a trading
// date and returns the UTC instant. DST is resolved by the zone rules for
// that specific date.
func (ts *TimeService) ToUTC(clock ClockTime, date TradingDate) time.Time {
	t := time.Date(date.Year, time.Month(date.Month), date.Day,
		clock.Hour, clock.Minute, clock.Second, 0, ts.loc)
	return t.UTC()
}

// TradingDateFor returns the trading day a UTC instant falls in.
func (ts *TimeService) TradingDateFor(utc time.Time) TradingDate {
	l := utc.In(ts.loc)
	return TradingDate{Year: l.Year(), Month: int(l.Month()), Day: l.Day()}
}

// ClockTime is a wall-clock time of day in the exchange timezone.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	var ct ClockTime
	switch n, _ := fmt.Sscanf(s, "%d:%d:%d", &ct.Hour, &ct.Minute, &ct.Second); n {
	case 2, 3:
	default:
		return ClockTime{}, fmt.Errorf("invalid clock time %q", s)
	}
	if ct.Hour < 0 || ct.Hour > 23 || ct.Minute < 0 || ct.Minute > 59 || ct.Second < 0 || ct.Second > 59 {
		return ClockTime{}, fmt.Errorf("clock time out of range %q", s)
	}
	return ct, nil
}

func (ct ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", ct.Hour, ct.Minute, ct.Second)
}

// TradingDate is an exchange-local calendar day.
type TradingDate struct {
	Year  int
	Month int
	Day   int
}

// ParseTradingDate parses "YYYY-MM-DD".
func ParseTradingDate(s string) (TradingDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return TradingDate{}, fmt.Errorf("invalid trading date %q: %w", s, err)
	}
	return TradingDate{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
}

func (d TradingDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether the date is unset.
func (d TradingDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Before orders trading dates chronologically.
func (d TradingDate) Before(o TradingDate) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}
