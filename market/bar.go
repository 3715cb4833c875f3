package market

import "time"

// Source identifies where a bar came from. Higher values carry higher
// authority when two bars share a timestamp.
type Source int

const (
	SourceSnapshot Source = iota
	SourceHistorical
	SourceLive
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceHistorical:
		return "historical"
	case SourceSnapshot:
		return "snapshot"
	}
	return "unknown"
}

// Bar is one closed OHLC period. Bars are immutable once constructed;
// Time is the bar's open timestamp in UTC and Period its nominal length.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Period time.Duration
	Source Source
}

// CloseTime is the nominal end of the bar's period.
func (b Bar) CloseTime() time.Time {
	return b.Time.Add(b.Period)
}
