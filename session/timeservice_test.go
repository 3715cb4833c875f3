package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeServiceRejectsBadZone(t *testing.T) {
	_, err := NewTimeService("Mars/Olympus_Mons")
	assert.Error(t, err)

	_, err = NewTimeService("")
	assert.Error(t, err)
}

func TestToUTCAcrossDST(t *testing.T) {
	ts, err := NewTimeService("America/Chicago")
	require.NoError(t, err)

	clock := ClockTime{Hour: 9, Minute: 0}

	// Winter: CST is UTC-6.
	winter := ts.ToUTC(clock, TradingDate{Year: 2025, Month: 1, Day: 15})
	assert.Equal(t, time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC), winter)

	// Summer: CDT is UTC-5. Same local clock, different UTC instant.
	summer := ts.ToUTC(clock, TradingDate{Year: 2025, Month: 7, Day: 15})
	assert.Equal(t, time.Date(2025, 7, 15, 14, 0, 0, 0, time.UTC), summer)
}

func TestTradingDateForUsesLocalMidnight(t *testing.T) {
	ts, err := NewTimeService("America/Chicago")
	require.NoError(t, err)

	// 03:00 UTC is still 21:00/22:00 the previous day in Chicago.
	d := ts.TradingDateFor(time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, TradingDate{Year: 2025, Month: 6, Day: 9}, d)

	d = ts.TradingDateFor(time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC))
	assert.Equal(t, TradingDate{Year: 2025, Month: 6, Day: 10}, d)
}

func TestParseClockTime(t *testing.T) {
	ct, err := ParseClockTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 30}, ct)

	ct, err = ParseClockTime("07:30:15")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 7, Minute: 30, Second: 15}, ct)

	_, err = ParseClockTime("25:00")
	assert.Error(t, err)
	_, err = ParseClockTime("bogus")
	assert.Error(t, err)
}

func TestTradingDateOrdering(t *testing.T) {
	a := TradingDate{Year: 2025, Month: 3, Day: 9}
	b := TradingDate{Year: 2025, Month: 3, Day: 10}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.False(t, a.Before(a))
	assert.Equal(t, "2025-03-09", a.String())
}
