package stream

import (
	"errors"
	"time"

	"github.com/rustyeddy/breakout/market"
)

// ErrNoBars means the window [start, end) held no bars; the stream is
// suspended for the day rather than trading a guessed range.
var ErrNoBars = errors.New("no bars in range window")

// RangeResult is the locked range. Immutable once a stream reaches
// RangeLocked; no code path may write to a stream's copy after that.
type RangeResult struct {
	High        float64
	Low         float64
	FreezeClose float64
	BarCount    int
	FirstTS     time.Time
	LastTS      time.Time
}

// ComputeRange folds the buffered bars in [start, end) into the session
// range in a single pass. FreezeClose is the close of the last bar before
// end, the fallback price for immediate-breakout detection at lock time.
//
// Callers must invoke this at most once per stream per day; the stream's
// computed flag enforces that.
func ComputeRange(buf *market.Buffer, start, end time.Time) (RangeResult, error) {
	bars := buf.Between(start, end)
	if len(bars) == 0 {
		return RangeResult{}, ErrNoBars
	}

	r := RangeResult{
		High:     bars[0].High,
		Low:      bars[0].Low,
		BarCount: len(bars),
		FirstTS:  bars[0].Time,
		LastTS:   bars[len(bars)-1].Time,
	}
	for _, b := range bars[1:] {
		if b.High > r.High {
			r.High = b.High
		}
		if b.Low < r.Low {
			r.Low = b.Low
		}
	}
	r.FreezeClose = bars[len(bars)-1].Close
	return r, nil
}
