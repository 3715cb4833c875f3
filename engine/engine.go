package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/events"
	"github.com/rustyeddy/breakout/exec"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/session"
	"github.com/rustyeddy/breakout/stream"
)

// fillRouter breaks the construction cycle between the adapter and the
// coordinator: the adapter needs its listener up front, the coordinator
// needs the adapter.
type fillRouter struct {
	mu     sync.RWMutex
	target broker.FillListener
}

func (r *fillRouter) Bind(l broker.FillListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = l
}

func (r *fillRouter) OnFill(f broker.Fill) {
	r.mu.RLock()
	t := r.target
	r.mu.RUnlock()
	if t != nil {
		t.OnFill(f)
	}
}

// Engine owns every stream of one trading day and drives them from a
// single scheduler loop. The trading date is fixed at construction from
// the timetable; a timetable that later names a different date is
// rejected, never adopted.
type Engine struct {
	cfg   *config.Config
	log   zerolog.Logger
	ts    *session.TimeService
	store journal.Store
	bus   *events.Bus
	coord *exec.Coordinator

	adapter broker.Adapter
	sim     *broker.SimAdapter // non-nil only for the sim adapter

	date     session.TradingDate
	closeUTC time.Time
	grace    time.Duration

	mu      sync.Mutex
	streams map[string]*stream.Stream
}

// New assembles an engine from configuration. The timetable must load and
// validate at startup; a bad schedule is a refusal to start, not a warning.
func New(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	tt, err := session.LoadTimetable(cfg.Engine.TimetablePath)
	if err != nil {
		return nil, err
	}

	ts, err := session.NewTimeService(tt.Timezone)
	if err != nil {
		return nil, err
	}

	store, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(events.NewLogSink(log), journal.NewSink(store, log))

	router := &fillRouter{}
	var adapter broker.Adapter
	var sim *broker.SimAdapter
	switch cfg.Adapter.Type {
	case "sim":
		sim = broker.NewSimAdapter(router, log)
		sim.SplitFills = cfg.Adapter.SplitFills
		adapter = sim
	case "log":
		adapter = broker.NewLogAdapter(log)
	default:
		store.Close()
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Adapter.Type)
	}

	grace, _ := cfg.Engine.ParseGrace()
	closeClock, _ := cfg.Engine.ParseCloseTime()

	e := &Engine{
		cfg:      cfg,
		log:      log,
		ts:       ts,
		store:    store,
		bus:      bus,
		adapter:  adapter,
		sim:      sim,
		date:     tt.Date(),
		closeUTC: ts.ToUTC(closeClock, tt.Date()),
		grace:    grace,
		streams:  make(map[string]*stream.Stream),
	}

	e.coord = exec.NewCoordinator(e.date.String(), exec.Config{
		ProtectiveRetries: cfg.Execution.ProtectiveRetries,
		BreakEvenFraction: cfg.Execution.BreakEvenFraction,
	}, store, adapter, bus, lifecycle{e}, log)
	router.Bind(e.coord)

	e.applyTimetable(tt)
	return e, nil
}

// Close releases the journal.
func (e *Engine) Close() error { return e.store.Close() }

// Bus exposes the event bus for subscribers.
func (e *Engine) Bus() *events.Bus { return e.bus }

// TradingDate returns the locked trading date.
func (e *Engine) TradingDate() session.TradingDate { return e.date }

// Streams returns a snapshot of the engine's streams.
func (e *Engine) Streams() []*stream.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*stream.Stream, 0, len(e.streams))
	for _, s := range e.streams {
		out = append(out, s)
	}
	return out
}

// EngageKillSwitch blocks all further order submissions.
func (e *Engine) EngageKillSwitch() { e.coord.EngageKillSwitch() }

// lifecycle routes execution outcomes back to the owning stream.
type lifecycle struct{ e *Engine }

func (l lifecycle) OnEntryDetected(streamID string) {
	if s := l.e.lookup(streamID); s != nil {
		s.MarkEntry()
	}
}

func (l lifecycle) OnTradeCompleted(streamID string) {
	if s := l.e.lookup(streamID); s != nil {
		s.Commit(journal.TerminalTradeCompleted)
	}
}

func (l lifecycle) OnStandDown(streamID, reason string) {
	if s := l.e.lookup(streamID); s != nil {
		s.StandDown(reason)
	}
}

func (e *Engine) lookup(streamID string) *stream.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streams[streamID]
}

// applyTimetable creates streams for entries not seen before and skips
// entries flagged disabled. Existing streams keep running; a timetable
// cannot un-commit a day already underway.
func (e *Engine) applyTimetable(tt *session.Timetable) {
	var hist stream.HistoricalRequester
	if e.cfg.Engine.DataDir != "" {
		hist = newSnapshotRequester(e.cfg.Engine.DataDir, time.Minute)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range tt.Streams {
		id := entry.ID()
		if s, ok := e.streams[id]; ok {
			if !entry.Enabled && s.State() != stream.Done {
				s.Skip()
			}
			continue
		}

		rs, _ := session.ParseClockTime(entry.RangeStart)
		st, _ := session.ParseClockTime(entry.SlotTime)
		s := stream.New(stream.Config{
			ID:             id,
			Instrument:     entry.Instrument,
			Session:        entry.Session,
			TradingDate:    e.date,
			SlotLocal:      entry.SlotTime,
			RangeStart:     e.ts.ToUTC(rs, e.date),
			SlotTime:       e.ts.ToUTC(st, e.date),
			CloseTime:      e.closeUTC,
			Grace:          e.grace,
			Qty:            e.cfg.Execution.Quantity,
			TickSize:       market.Tick(entry.Instrument),
			TargetFraction: e.cfg.Execution.TargetFraction,
		}, stream.Deps{
			Exec:  e.coord,
			Store: e.store,
			Bus:   e.bus,
			Hist:  hist,
			Log:   e.log,
		})
		e.streams[id] = s
		if !entry.Enabled {
			s.Skip()
		}
	}
}

// PollTimetable re-reads the schedule. Validation failures and date
// changes fail closed: the submission gate shuts until a good timetable
// for the locked date comes back.
func (e *Engine) PollTimetable() {
	tt, err := session.LoadTimetable(e.cfg.Engine.TimetablePath)
	if err != nil {
		e.coord.SetConfigValid(false)
		e.bus.Publish(events.New(e.date.String(), "", events.TimetableRejected, map[string]any{
			"error": err.Error(),
		}))
		return
	}
	if tt.TradingDate != e.date.String() {
		e.coord.SetConfigValid(false)
		e.bus.Publish(events.New(e.date.String(), "", events.TimetableRejected, map[string]any{
			"error": fmt.Sprintf("timetable names %s, engine is locked to %s", tt.TradingDate, e.date),
		}))
		return
	}
	e.coord.SetConfigValid(true)
	e.applyTimetable(tt)
}

// Tick advances every stream. A panic in one stream stands that stream
// down and leaves the rest of the day running.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	for _, s := range e.Streams() {
		e.tickStream(ctx, s, now)
	}
}

func (e *Engine) tickStream(ctx context.Context, s *stream.Stream, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("stream", s.ID()).Interface("panic", r).Msg("stream tick panicked")
			s.StandDown(fmt.Sprintf("panic: %v", r))
		}
	}()
	s.Tick(ctx, now)
}

// DeliverBar routes one closed bar to the instrument's streams, marks the
// sim order book, and feeds the break-even rule.
func (e *Engine) DeliverBar(instrument string, b market.Bar, now time.Time) {
	for _, s := range e.Streams() {
		if s.Instrument() == instrument {
			s.DeliverBar(b, now)
		}
	}
	if e.sim != nil {
		e.sim.OnBar(instrument, b)
	}
	e.coord.OnPrice(instrument, b.Close)
}

// AllDone reports whether every stream reached its terminal state.
func (e *Engine) AllDone() bool {
	streams := e.Streams()
	if len(streams) == 0 {
		return false
	}
	for _, s := range streams {
		if s.State() != stream.Done {
			return false
		}
	}
	return true
}

// Run drives the scheduler until the day completes or the context ends.
func (e *Engine) Run(ctx context.Context) error {
	tickIv, _ := e.cfg.Engine.ParseTickInterval()
	pollIv, _ := e.cfg.Engine.ParsePollInterval()

	tick := time.NewTicker(tickIv)
	defer tick.Stop()
	poll := time.NewTicker(pollIv)
	defer poll.Stop()

	e.log.Info().Str("date", e.date.String()).Int("streams", len(e.Streams())).Msg("engine running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			e.Tick(ctx, now.UTC())
			if e.AllDone() {
				e.log.Info().Msg("all streams done")
				return nil
			}
		case <-poll.C:
			e.PollTimetable()
		}
	}
}
