package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/events"
	"github.com/rustyeddy/breakout/exec"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/session"
)

// State of a stream's trading day.
type State int

const (
	PreHydration State = iota
	Armed
	RangeBuilding
	RangeLocked
	Done
)

func (s State) String() string {
	switch s {
	case PreHydration:
		return "PreHydration"
	case Armed:
		return "Armed"
	case RangeBuilding:
		return "RangeBuilding"
	case RangeLocked:
		return "RangeLocked"
	case Done:
		return "Done"
	}
	return "unknown"
}

func stateFromString(s string) State {
	switch s {
	case "Armed":
		return Armed
	case "RangeBuilding":
		return RangeBuilding
	case "RangeLocked":
		return RangeLocked
	case "Done":
		return Done
	}
	return PreHydration
}

// HistoricalRequester loads bars asynchronously. The state machine never
// blocks on it; completion flips a flag the tick path polls.
type HistoricalRequester interface {
	RequestBars(instrument string, from, to time.Time, sink func(market.Bar), done func(error))
}

// Submitter is the execution surface the stream hands intents to.
type Submitter interface {
	SubmitBrackets(ctx context.Context, streamID string, intents []exec.Intent, now, windowStart, windowEnd time.Time)
	CloseOut(ctx context.Context, streamID string) bool
}

// Config fixes a stream's identity and schedule for one trading day.
// All times are UTC instants derived from the exchange-local timetable.
type Config struct {
	ID          string
	Instrument  string
	Session     string
	TradingDate session.TradingDate
	SlotLocal   string // local clock label, part of the intent's identity
	RangeStart  time.Time
	SlotTime    time.Time
	CloseTime   time.Time

	Grace          time.Duration
	Qty            float64
	TickSize       float64
	TargetFraction float64 // target distance as a fraction of range size
}

// Deps are the stream's collaborators, injected at construction.
type Deps struct {
	Exec  Submitter
	Store journal.Store
	Bus   *events.Bus
	Hist  HistoricalRequester
	Log   zerolog.Logger
}

// Stream is the per-instrument/session/day state machine:
// PreHydration -> Armed -> RangeBuilding -> RangeLocked -> Done, with a
// stand-down branch from anywhere. Both the tick driver and the bar path
// converge here; the mutex makes arbitrary interleaving safe.
type Stream struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	state     State
	buffer    *market.Buffer
	hydrated  bool
	requested bool
	computed  bool // range single-shot flag, set before the work
	result    RangeResult
	longLvl   float64
	shortLvl  float64
	brackets  bool
	entry     bool
	terminal  string
	committed bool
}

func New(cfg Config, deps Deps) *Stream {
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Minute
	}
	if cfg.TargetFraction <= 0 {
		cfg.TargetFraction = 1.0
	}
	return &Stream{
		cfg:    cfg,
		deps:   deps,
		state:  PreHydration,
		buffer: market.NewBuffer(),
	}
}

func (s *Stream) ID() string         { return s.cfg.ID }
func (s *Stream) Instrument() string { return s.cfg.Instrument }

// State returns the current FSM state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Levels returns the derived breakout trigger prices. Zero before lock.
func (s *Stream) Levels() (long, short float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longLvl, s.shortLvl
}

// Range returns the locked range result. Zero value before lock.
func (s *Stream) Range() RangeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Terminal returns the terminal classification, empty until committed.
func (s *Stream) Terminal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// DeliverBar feeds one bar through the ingestion policy. Safe at any
// state; bars arriving after lock cannot touch the locked range because
// the range is never recomputed.
func (s *Stream) DeliverBar(b market.Bar, now time.Time) market.AcceptResult {
	return s.buffer.Accept(b, now)
}

// Tick advances all wall-clock-gated transitions to the stable state for
// now. Calling it twice with the same timestamp is a no-op beyond
// redundant checks.
func (s *Stream) Tick(ctx context.Context, now time.Time) {
	type submitJob struct {
		intents   []exec.Intent
		windowEnd time.Time
	}
	var submit *submitJob
	var closeOut, entrySeen bool

	s.mu.Lock()
	for {
		if s.committed {
			break
		}
		prev := s.state

		switch s.state {
		case PreHydration:
			s.preHydrationLocked(now)
			if s.hydrated || !now.Before(s.cfg.RangeStart.Add(s.cfg.Grace)) {
				if !s.hydrated {
					s.publish(events.HydrationTimeout, nil)
					if s.buffer.Len() == 0 {
						s.publish(events.MissingDataIncident, map[string]any{
							"reason": "no bars at liveness timeout",
						})
					}
				} else {
					s.publish(events.StreamHydrated, nil)
				}
				s.state = Armed
				s.journalLocked()
				s.publish(events.StreamArmed, nil)
			}

		case Armed:
			if !now.Before(s.cfg.RangeStart) {
				s.state = RangeBuilding
				s.journalLocked()
				s.publish(events.RangeBuilding, nil)
			}

		case RangeBuilding:
			if now.Before(s.cfg.SlotTime) {
				break
			}
			// A pending mid-window backfill gets a short grace before the
			// lock proceeds with whatever arrived.
			if s.requested && !s.hydrated && now.Before(s.cfg.SlotTime.Add(s.cfg.Grace)) {
				break
			}
			if job := s.lockRangeLocked(now); job != nil {
				submit = &submitJob{intents: job, windowEnd: s.cfg.CloseTime}
			}

		case RangeLocked:
			if !now.Before(s.cfg.CloseTime) {
				closeOut = true
				entrySeen = s.entry
			}
		}

		if s.state == prev || closeOut {
			break
		}
	}
	s.mu.Unlock()

	// Execution calls run outside the stream lock: the coordinator's
	// stand-down callback re-enters this stream.
	if submit != nil {
		s.deps.Exec.SubmitBrackets(ctx, s.cfg.ID, submit.intents, now, s.cfg.SlotTime, submit.windowEnd)
	}
	if closeOut {
		entryDetected := s.deps.Exec.CloseOut(ctx, s.cfg.ID) || entrySeen
		if entryDetected {
			s.Commit(journal.TerminalTradeCompleted)
		} else {
			s.Commit(journal.TerminalNoTrade)
		}
	}
}

// preHydrationLocked issues the one-shot backfill request for a stream
// started mid-window.
func (s *Stream) preHydrationLocked(now time.Time) {
	if s.requested {
		return
	}
	s.requested = true

	if !now.After(s.cfg.RangeStart) || s.deps.Hist == nil {
		// Nothing to backfill: the whole window is still ahead.
		s.hydrated = true
		return
	}

	from, to := s.cfg.RangeStart, now
	if to.After(s.cfg.SlotTime) {
		to = s.cfg.SlotTime
	}
	s.deps.Hist.RequestBars(s.cfg.Instrument, from, to,
		func(b market.Bar) {
			s.buffer.Accept(b, time.Now().UTC())
		},
		func(err error) {
			s.mu.Lock()
			s.hydrated = true
			s.mu.Unlock()
			if err != nil {
				s.deps.Log.Warn().Err(err).Str("stream", s.cfg.ID).Msg("historical load failed")
			}
		})
}

// lockRangeLocked is the single-shot range computation and breakout-level
// derivation. The computed flag flips before the work starts and rolls
// back only on failure, so a concurrent late path can never race a second
// computation in.
func (s *Stream) lockRangeLocked(now time.Time) []exec.Intent {
	if s.computed {
		return nil
	}
	s.computed = true

	res, err := ComputeRange(s.buffer, s.cfg.RangeStart, s.cfg.SlotTime)
	if err != nil {
		s.computed = false
		s.publish(events.InsufficientData, map[string]any{"error": err.Error()})
		s.commitLocked(journal.TerminalInsufficientData)
		return nil
	}

	s.result = res
	s.longLvl = market.LongBreakout(res.High, s.cfg.TickSize)
	s.shortLvl = market.ShortBreakout(res.Low, s.cfg.TickSize)
	s.state = RangeLocked
	s.journalLocked()
	s.publish(events.RangeLocked, map[string]any{
		"high":         res.High,
		"low":          res.Low,
		"freeze_close": res.FreezeClose,
		"bar_count":    res.BarCount,
		"long_level":   s.longLvl,
		"short_level":  s.shortLvl,
	})

	if s.brackets {
		// Already handed over (restored from journal); never twice.
		return nil
	}
	s.brackets = true
	s.journalLocked()

	intents := s.buildIntentsLocked()
	payload := map[string]any{"count": len(intents)}
	for _, in := range intents {
		key := "long"
		if in.Direction == broker.Short {
			key = "short"
		}
		payload[key] = map[string]any{
			"immediate": in.Immediate,
			"entry":     in.Entry,
			"stop":      in.Stop,
			"target":    in.Target,
			"qty":       in.Qty,
		}
	}
	s.publish(events.BracketsSubmitted, payload)
	if imm := s.immediateSideLocked(); imm != "" {
		s.publish(events.ImmediateBreakout, map[string]any{"side": imm})
	}
	return intents
}

func (s *Stream) immediateSideLocked() string {
	switch {
	case s.result.FreezeClose >= s.longLvl:
		return "long"
	case s.result.FreezeClose <= s.shortLvl:
		return "short"
	}
	return ""
}

// buildIntentsLocked derives the entry intents from the locked range.
// Stops sit at the opposite breakout level; targets extend one
// TargetFraction of the range size beyond the entry.
func (s *Stream) buildIntentsLocked() []exec.Intent {
	size := s.result.High - s.result.Low
	dist := s.cfg.TargetFraction * size

	long := exec.Intent{
		Instrument:  s.cfg.Instrument,
		Stream:      s.cfg.ID,
		TradingDate: s.cfg.TradingDate.String(),
		Session:     s.cfg.Session,
		SlotTime:    s.cfg.SlotLocal,
		Direction:   broker.Long,
		Entry:       s.longLvl,
		Stop:        s.shortLvl,
		Target:      market.RoundUpToTick(s.longLvl+dist, s.cfg.TickSize),
		Qty:         s.cfg.Qty,
	}
	short := exec.Intent{
		Instrument:  s.cfg.Instrument,
		Stream:      s.cfg.ID,
		TradingDate: s.cfg.TradingDate.String(),
		Session:     s.cfg.Session,
		SlotTime:    s.cfg.SlotLocal,
		Direction:   broker.Short,
		Entry:       s.shortLvl,
		Stop:        s.longLvl,
		Target:      market.RoundDownToTick(s.shortLvl-dist, s.cfg.TickSize),
		Qty:         s.cfg.Qty,
	}

	switch s.immediateSideLocked() {
	case "long":
		long.Immediate = true
		return []exec.Intent{long}
	case "short":
		short.Immediate = true
		return []exec.Intent{short}
	}
	return []exec.Intent{long, short}
}

// MarkEntry records that an entry fill has been seen, durably, so a
// restart classifies the day as traded even when the execution journal
// alone cannot settle it.
func (s *Stream) MarkEntry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry || s.committed {
		return
	}
	s.entry = true
	s.journalLocked()
}

// Commit sets the terminal classification, exactly once.
func (s *Stream) Commit(terminal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked(terminal)
}

func (s *Stream) commitLocked(terminal string) {
	if s.committed {
		if terminal != s.terminal {
			s.publish(events.InvariantViolation, map[string]any{
				"reason": "second terminal classification refused",
				"have":   s.terminal,
				"want":   terminal,
			})
		}
		return
	}
	s.committed = true
	s.terminal = terminal
	s.state = Done
	s.journalLocked()
	s.publish(events.StreamDone, map[string]any{"terminal": terminal})
}

// StandDown halts the stream for the day after an unrecoverable failure.
func (s *Stream) StandDown(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return
	}
	s.publish(events.StreamStoodDown, map[string]any{"reason": reason})
	s.commitLocked(journal.TerminalFailedAtRuntime)
}

// Skip marks a stream disabled by configuration.
func (s *Stream) Skip() {
	s.Commit(journal.TerminalSkippedByConfig)
}

// Restore rebuilds in-memory state from the stream's journal record.
// A locked range is taken from the journal, never recomputed; when the
// journal says locked but carries no values the restoration has failed
// and the stream proceeds without levels rather than derive fresh ones.
func (s *Stream) Restore(rec journal.StreamRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateFromString(rec.State)
	s.brackets = rec.Brackets
	s.entry = rec.Entry
	s.terminal = rec.Terminal
	s.committed = rec.Terminal != ""

	if s.state == PreHydration || s.state == Armed || s.state == RangeBuilding {
		// Pre-lock states re-enter through PreHydration so a mid-window
		// restart issues the historical backfill for the missed portion
		// before anything can lock.
		s.state = PreHydration
		return
	}

	s.computed = true // a locked range must never be computed again
	if rec.RangeLocked && rec.RangeHigh != 0 {
		s.result = RangeResult{
			High:        rec.RangeHigh,
			Low:         rec.RangeLow,
			FreezeClose: rec.FreezeClose,
		}
		s.longLvl = rec.LongLevel
		s.shortLvl = rec.ShortLevel
		s.publish(events.RestoreApplied, map[string]any{
			"state":       rec.State,
			"long_level":  s.longLvl,
			"short_level": s.shortLvl,
		})
		return
	}
	s.publish(events.RestoreFailed, map[string]any{
		"reason": "journal shows locked range without values",
	})
}

func (s *Stream) journalLocked() {
	rec := journal.StreamRecord{
		TradingDate: s.cfg.TradingDate.String(),
		Stream:      s.cfg.ID,
		State:       s.state.String(),
		RangeLocked: s.state >= RangeLocked && s.computed,
		RangeHigh:   s.result.High,
		RangeLow:    s.result.Low,
		FreezeClose: s.result.FreezeClose,
		LongLevel:   s.longLvl,
		ShortLevel:  s.shortLvl,
		Brackets:    s.brackets,
		Entry:       s.entry,
		Terminal:    s.terminal,
	}
	if err := s.deps.Store.UpsertStream(rec); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.ID).Msg("stream journal write failed")
	}
}

func (s *Stream) publish(typ events.Type, payload map[string]any) {
	s.deps.Bus.Publish(events.New(s.cfg.TradingDate.String(), s.cfg.ID, typ, payload))
}
