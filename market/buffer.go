package market

import (
	"sort"
	"sync"
	"time"
)

// AcceptResult reports what Buffer.Accept did with a bar.
type AcceptResult int

const (
	Buffered AcceptResult = iota
	Replaced
	RejectedPartial
	RejectedFuture
	RejectedStale
)

func (r AcceptResult) String() string {
	switch r {
	case Buffered:
		return "buffered"
	case Replaced:
		return "replaced"
	case RejectedPartial:
		return "rejected-partial"
	case RejectedFuture:
		return "rejected-future"
	case RejectedStale:
		return "rejected-stale"
	}
	return "unknown"
}

// Buffer holds the bars for one stream, deduplicated by timestamp with
// source precedence. Replaying the same set of bars in any order converges
// to the same buffered state.
type Buffer struct {
	mu   sync.RWMutex
	bars map[int64]Bar // keyed by unix-nano open time
}

func NewBuffer() *Buffer {
	return &Buffer{bars: make(map[int64]Bar)}
}

// Accept applies the ingestion policy:
//   - bars stamped after now are rejected outright
//   - bars whose period has not fully elapsed are rejected, except Live
//     bars, which the feed only emits once closed
//   - on a timestamp collision the higher-authority source wins; equal or
//     lower authority is discarded
func (bb *Buffer) Accept(b Bar, now time.Time) AcceptResult {
	if b.Time.After(now) {
		return RejectedFuture
	}
	if b.Source != SourceLive && b.Period > 0 && now.Sub(b.CloseTime()) < 0 {
		return RejectedPartial
	}

	bb.mu.Lock()
	defer bb.mu.Unlock()

	key := b.Time.UnixNano()
	existing, ok := bb.bars[key]
	if !ok {
		bb.bars[key] = b
		return Buffered
	}
	if existing.Source >= b.Source {
		return RejectedStale
	}
	bb.bars[key] = b
	return Replaced
}

// Len returns the number of buffered bars.
func (bb *Buffer) Len() int {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	return len(bb.bars)
}

// Between returns the buffered bars with open time in [start, end),
// sorted ascending by time.
func (bb *Buffer) Between(start, end time.Time) []Bar {
	bb.mu.RLock()
	out := make([]Bar, 0, len(bb.bars))
	for _, b := range bb.bars {
		if b.Time.Before(start) || !b.Time.Before(end) {
			continue
		}
		out = append(out, b)
	}
	bb.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
