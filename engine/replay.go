package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rustyeddy/breakout/market"
)

// snapshotRequester serves historical backfill requests from snapshot CSV
// files, one file per instrument. Delivery is asynchronous; the stream's
// done callback takes the stream lock, so it must never run on the
// caller's stack.
type snapshotRequester struct {
	dir    string
	period time.Duration
}

func newSnapshotRequester(dir string, period time.Duration) *snapshotRequester {
	return &snapshotRequester{dir: dir, period: period}
}

func (r *snapshotRequester) RequestBars(instrument string, from, to time.Time, sink func(market.Bar), done func(error)) {
	go func() {
		path := filepath.Join(r.dir, instrument+".csv")
		bars, err := market.LoadSnapshotCSV(path, r.period)
		if err != nil {
			done(err)
			return
		}
		for _, b := range bars {
			if b.Time.Before(from) || !b.Time.Before(to) {
				continue
			}
			b.Source = market.SourceHistorical
			sink(b)
		}
		done(nil)
	}()
}

// timedBar pairs a bar with its instrument for the merged replay feed.
type timedBar struct {
	instrument string
	bar        market.Bar
}

// Replay runs the whole trading day against snapshot data: every bar is
// delivered in close-time order with the engine clock pinned to the bar's
// close, then a final tick past market close settles the day. Requires
// the sim adapter and a data directory.
func (e *Engine) Replay(ctx context.Context) error {
	if e.sim == nil {
		return fmt.Errorf("replay requires the sim adapter")
	}
	if e.cfg.Engine.DataDir == "" {
		return fmt.Errorf("replay requires engine.data_dir")
	}

	feed, err := e.loadReplayFeed()
	if err != nil {
		return err
	}
	e.log.Info().Int("bars", len(feed)).Str("date", e.date.String()).Msg("replay starting")

	for _, tb := range feed {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := tb.bar.CloseTime()
		e.DeliverBar(tb.instrument, tb.bar, now)
		e.Tick(ctx, now)
	}

	// Past close: working orders cancel, open positions flatten, every
	// stream commits its terminal classification.
	e.Tick(ctx, e.closeUTC.Add(time.Second))

	for _, s := range e.Streams() {
		e.log.Info().Str("stream", s.ID()).Str("terminal", s.Terminal()).Msg("replay result")
	}
	return nil
}

func (e *Engine) loadReplayFeed() ([]timedBar, error) {
	instruments := map[string]bool{}
	for _, s := range e.Streams() {
		instruments[s.Instrument()] = true
	}

	var feed []timedBar
	for instrument := range instruments {
		path := filepath.Join(e.cfg.Engine.DataDir, instrument+".csv")
		bars, err := market.LoadSnapshotCSV(path, time.Minute)
		if err != nil {
			if os.IsNotExist(err) {
				e.log.Warn().Str("instrument", instrument).Msg("no snapshot file, instrument skipped")
				continue
			}
			return nil, err
		}
		for _, b := range bars {
			feed = append(feed, timedBar{instrument: instrument, bar: b})
		}
	}
	if len(feed) == 0 {
		return nil, fmt.Errorf("no snapshot data under %s", e.cfg.Engine.DataDir)
	}

	sort.Slice(feed, func(i, j int) bool {
		return feed[i].bar.CloseTime().Before(feed[j].bar.CloseTime())
	})
	return feed, nil
}
