package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)

func minuteBar(ts time.Time, src Source, close float64) Bar {
	return Bar{
		Time:   ts,
		Open:   close,
		High:   close + 1,
		Low:    close - 1,
		Close:  close,
		Period: time.Minute,
		Source: src,
	}
}

func TestAcceptBuffersClosedBar(t *testing.T) {
	bb := NewBuffer()
	now := t0.Add(5 * time.Minute)

	res := bb.Accept(minuteBar(t0, SourceHistorical, 4100), now)
	assert.Equal(t, Buffered, res)
	assert.Equal(t, 1, bb.Len())
}

func TestAcceptRejectsFutureBar(t *testing.T) {
	bb := NewBuffer()
	now := t0

	res := bb.Accept(minuteBar(t0.Add(time.Minute), SourceLive, 4100), now)
	assert.Equal(t, RejectedFuture, res)
	assert.Equal(t, 0, bb.Len())
}

func TestAcceptRejectsPartialBar(t *testing.T) {
	bb := NewBuffer()

	// 30 seconds into a 1-minute bar's period: not yet closed.
	now := t0.Add(30 * time.Second)
	res := bb.Accept(minuteBar(t0, SourceHistorical, 4100), now)
	assert.Equal(t, RejectedPartial, res)

	// The Live feed only emits closed bars, so Live bypasses the check.
	res = bb.Accept(minuteBar(t0, SourceLive, 4100), now)
	assert.Equal(t, Buffered, res)
}

func TestDedupPrecedenceBothOrders(t *testing.T) {
	now := t0.Add(time.Hour)

	// Snapshot first, then Live: Live replaces.
	bb := NewBuffer()
	assert.Equal(t, Buffered, bb.Accept(minuteBar(t0, SourceSnapshot, 4080), now))
	assert.Equal(t, Replaced, bb.Accept(minuteBar(t0, SourceLive, 4100), now))
	got := bb.Between(t0, t0.Add(time.Minute))
	assert.Len(t, got, 1)
	assert.Equal(t, SourceLive, got[0].Source)
	assert.Equal(t, 4100.0, got[0].Close)

	// Live first, then Snapshot: Live is retained.
	bb = NewBuffer()
	assert.Equal(t, Buffered, bb.Accept(minuteBar(t0, SourceLive, 4100), now))
	assert.Equal(t, RejectedStale, bb.Accept(minuteBar(t0, SourceSnapshot, 4080), now))
	got = bb.Between(t0, t0.Add(time.Minute))
	assert.Len(t, got, 1)
	assert.Equal(t, SourceLive, got[0].Source)
	assert.Equal(t, 4100.0, got[0].Close)
}

func TestEqualPrecedenceKeepsFirst(t *testing.T) {
	bb := NewBuffer()
	now := t0.Add(time.Hour)

	assert.Equal(t, Buffered, bb.Accept(minuteBar(t0, SourceHistorical, 4090), now))
	assert.Equal(t, RejectedStale, bb.Accept(minuteBar(t0, SourceHistorical, 4095), now))

	got := bb.Between(t0, t0.Add(time.Minute))
	assert.Equal(t, 4090.0, got[0].Close)
}

func TestBetweenFiltersAndSorts(t *testing.T) {
	bb := NewBuffer()
	now := t0.Add(time.Hour)

	// Delivered out of timestamp order on purpose.
	bb.Accept(minuteBar(t0.Add(2*time.Minute), SourceLive, 4102), now)
	bb.Accept(minuteBar(t0, SourceLive, 4100), now)
	bb.Accept(minuteBar(t0.Add(time.Minute), SourceLive, 4101), now)
	bb.Accept(minuteBar(t0.Add(10*time.Minute), SourceLive, 4110), now)

	got := bb.Between(t0, t0.Add(3*time.Minute))
	assert.Len(t, got, 3)
	assert.Equal(t, 4100.0, got[0].Close)
	assert.Equal(t, 4101.0, got[1].Close)
	assert.Equal(t, 4102.0, got[2].Close)
}

func TestRoundingToTick(t *testing.T) {
	assert.Equal(t, 4100.25, LongBreakout(4100.00, 0.25))
	assert.Equal(t, 4079.75, ShortBreakout(4080.00, 0.25))

	assert.Equal(t, 4100.25, RoundUpToTick(4100.01, 0.25))
	assert.Equal(t, 4100.00, RoundDownToTick(4100.24, 0.25))

	// On-grid prices are unchanged.
	assert.Equal(t, 4100.25, RoundUpToTick(4100.25, 0.25))
	assert.Equal(t, 4100.25, RoundDownToTick(4100.25, 0.25))

	// GC ticks in dimes.
	assert.Equal(t, 2389.4, LongBreakout(2389.3, 0.10))
}
