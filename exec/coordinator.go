package exec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/events"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
)

// Lifecycle is the narrow callback surface back into stream ownership.
// Injected at construction; the coordinator never holds a stream.
type Lifecycle interface {
	OnEntryDetected(streamID string)
	OnTradeCompleted(streamID string)
	OnStandDown(streamID, reason string)
}

// Config tunes the coordinator's protective behavior.
type Config struct {
	// ProtectiveRetries bounds submission attempts for stop and target
	// orders. Entries are never retried.
	ProtectiveRetries int
	// BreakEvenFraction of the target distance that must be in profit
	// before the stop relocates to break-even.
	BreakEvenFraction float64
}

// entryState tracks one entry intent from submission to exit.
type entryState struct {
	intent       Intent
	hash         string
	orderID      string
	filled       float64
	oppositeHash string
	stopOrderID  string
	protected    bool
	breakEven    bool
	exited       bool
	rejected     bool
}

// Coordinator turns trade intents into an idempotent, journaled,
// fail-closed order lifecycle: gate, journal-write-then-submit, fill
// tracking, protection, break-even, flatten on persistent failure.
type Coordinator struct {
	date    string // locked trading date, set once at construction
	cfg     Config
	store   journal.Store
	adapter broker.Adapter
	bus     *events.Bus
	life    Lifecycle
	log     zerolog.Logger

	kill        atomic.Bool
	configValid atomic.Bool

	mu      sync.Mutex
	entries map[string]*entryState // by entry client id (= intent hash)
	protect map[string]*entryState // protective client id -> owning entry
}

func NewCoordinator(date string, cfg Config, store journal.Store, adapter broker.Adapter,
	bus *events.Bus, life Lifecycle, log zerolog.Logger) *Coordinator {

	if cfg.ProtectiveRetries <= 0 {
		cfg.ProtectiveRetries = 3
	}
	if cfg.BreakEvenFraction <= 0 {
		cfg.BreakEvenFraction = 0.5
	}
	c := &Coordinator{
		date:    date,
		cfg:     cfg,
		store:   store,
		adapter: adapter,
		bus:     bus,
		life:    life,
		log:     log,
		entries: make(map[string]*entryState),
		protect: make(map[string]*entryState),
	}
	c.configValid.Store(true)
	return c
}

// EngageKillSwitch blocks all further submissions globally.
func (c *Coordinator) EngageKillSwitch()  { c.kill.Store(true) }
func (c *Coordinator) ReleaseKillSwitch() { c.kill.Store(false) }

// SetConfigValid flips the gate's session-configuration condition; the
// engine clears it when a timetable poll fails validation.
func (c *Coordinator) SetConfigValid(ok bool) { c.configValid.Store(ok) }

// SubmitBrackets hands the coordinator a stream's entry intents, exactly
// one or two of them, produced once at range lock. Each intent passes the
// gate and the journal's at-most-once check independently.
func (c *Coordinator) SubmitBrackets(ctx context.Context, streamID string, intents []Intent, now, windowStart, windowEnd time.Time) {
	hashes := make([]string, len(intents))
	for i, in := range intents {
		hashes[i] = in.Hash()
	}
	for i, in := range intents {
		opposite := ""
		if len(intents) == 2 {
			opposite = hashes[1-i]
		}
		c.submitEntry(ctx, streamID, in, opposite, now, windowStart, windowEnd)
	}
}

func (c *Coordinator) submitEntry(ctx context.Context, streamID string, in Intent, oppositeHash string, now, windowStart, windowEnd time.Time) {
	committed := false
	if rec, ok, err := c.store.GetStream(c.date, streamID); err == nil && ok {
		committed = rec.Terminal != ""
	}

	d := evaluateGate(gateInput{
		intent:      in,
		now:         now,
		windowStart: windowStart,
		windowEnd:   windowEnd,
		committed:   committed,
		killSwitch:  c.kill.Load(),
		configValid: c.configValid.Load(),
		lockedDate:  c.date,
	})
	if !d.Allowed {
		c.log.Warn().Str("stream", streamID).Str("reason", d.Reason()).Msg("gate blocked submission")
		c.publish(streamID, events.GateRejected, map[string]any{
			"reason":    d.Reason(),
			"direction": in.Direction.String(),
		})
		return
	}

	hash := in.Hash()

	// Journal-write-then-submit: the Submitted record lands before the
	// adapter sees the order. A crash in between resolves as "assume
	// submitted" and the broker's order state settles it.
	inserted, err := c.store.InsertIntent(journal.IntentRecord{
		TradingDate: c.date,
		Stream:      streamID,
		IntentHash:  hash,
		State:       journal.IntentSubmitted,
	})
	if err != nil {
		c.log.Error().Err(err).Str("stream", streamID).Msg("journal write failed, submission refused")
		return
	}
	if !inserted {
		c.log.Info().Str("stream", streamID).Str("hash", hash).Msg("intent already journaled, skipping submit")
		return
	}

	es := &entryState{intent: in, hash: hash, oppositeHash: oppositeHash}
	c.mu.Lock()
	c.entries[hash] = es
	c.mu.Unlock()

	trigger := in.Entry
	if in.Immediate {
		trigger = 0
	}
	res := c.adapter.SubmitEntry(ctx, broker.EntryOrder{
		ClientID:   hash,
		Stream:     streamID,
		Instrument: in.Instrument,
		Direction:  in.Direction,
		Qty:        in.Qty,
		Trigger:    trigger,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	switch res.Status {
	case broker.Ok:
		es.orderID = res.OrderID
		// The adapter may fill synchronously during SubmitEntry; this
		// update must never journal the intent backwards past a fill
		// already recorded.
		state := journal.IntentSubmitted
		if es.filled >= es.intent.Qty {
			state = journal.IntentFilled
		}
		if !es.exited {
			c.updateIntent(streamID, es, state, res.OrderID)
		}
		c.publish(streamID, events.OrderSubmitted, map[string]any{
			"hash":      hash,
			"order_id":  res.OrderID,
			"direction": in.Direction.String(),
			"immediate": in.Immediate,
			"entry":     in.Entry,
			"stop":      in.Stop,
			"target":    in.Target,
			"qty":       in.Qty,
		})
	default:
		// A rejected entry is no trade, never a retry.
		es.rejected = true
		delete(c.entries, hash)
		c.updateIntent(streamID, es, journal.IntentRejected, "")
		c.publish(streamID, events.OrderRejected, map[string]any{
			"hash":   hash,
			"reason": res.Reason,
		})
	}
}

// OnFill implements broker.FillListener. Entry fills trigger the
// opposite-side cancel and protective attachment; protective fills close
// the trade out.
func (c *Coordinator) OnFill(f broker.Fill) {
	c.mu.Lock()
	if es, ok := c.entries[f.ClientID]; ok {
		c.entryFillLocked(es, f)
		return // entryFillLocked releases the lock
	}
	if es, ok := c.protect[f.ClientID]; ok {
		c.exitFillLocked(es, f)
		return
	}
	c.mu.Unlock()
	c.log.Warn().Str("client_id", f.ClientID).Msg("fill for unknown order")
}

// entryFillLocked is entered holding c.mu and releases it before any
// adapter call.
func (c *Coordinator) entryFillLocked(es *entryState, f broker.Fill) {
	first := es.filled == 0
	es.filled += f.Qty
	full := es.filled >= es.intent.Qty

	state := journal.IntentSubmitted
	if full {
		state = journal.IntentFilled
	}
	c.updateIntent(f.Stream, es, state, es.orderID)
	c.publish(f.Stream, events.EntryFilled, map[string]any{
		"hash":   es.hash,
		"qty":    f.Qty,
		"filled": es.filled,
		"price":  f.Price,
	})

	var cancelID string
	if es.oppositeHash != "" {
		if opp, ok := c.entries[es.oppositeHash]; ok && opp.orderID != "" && !opp.rejected {
			cancelID = opp.orderID
		}
	}

	// Exactly one protective submission per intent: the flag flips with
	// the lock held, before the adapter is involved.
	attach := full && !es.protected
	if attach {
		es.protected = true
	}
	c.mu.Unlock()

	if first {
		c.life.OnEntryDetected(f.Stream)
	}
	if cancelID != "" {
		c.cancelOpposite(f.Stream, es.oppositeHash, cancelID)
	}
	if attach {
		c.attachProtection(context.Background(), f.Stream, es)
	}
}

func (c *Coordinator) cancelOpposite(streamID, oppositeHash, orderID string) {
	res := c.adapter.Cancel(context.Background(), orderID)
	if res.Status == broker.Ok {
		c.mu.Lock()
		if opp, ok := c.entries[oppositeHash]; ok {
			c.updateIntent(streamID, opp, journal.IntentCancelled, opp.orderID)
			delete(c.entries, oppositeHash)
		}
		c.mu.Unlock()
		c.publish(streamID, events.OrderCancelled, map[string]any{"hash": oppositeHash})
		return
	}
	// The opposite side filled before the cancel landed; its own fill
	// callback owns the bookkeeping. The broker's word is final.
	c.log.Warn().Str("stream", streamID).Str("reason", res.Reason).
		Msg("opposite cancel not honored")
}

// attachProtection submits the stop then the target, each journaled
// first and bounded-retried. Any exhausted retry flattens immediately:
// an unprotected position is worse than no position.
func (c *Coordinator) attachProtection(ctx context.Context, streamID string, es *entryState) {
	in := es.intent

	stopRes, ok := c.submitProtective(ctx, streamID, es, "stop", in.Stop, func(o broker.ProtectiveOrder) broker.Result {
		return c.adapter.SubmitProtectiveStop(ctx, o)
	})
	if !ok {
		c.flattenAndStandDown(ctx, streamID, in.Instrument, "protective stop submission exhausted retries")
		return
	}
	if stopRes != "" {
		c.mu.Lock()
		es.stopOrderID = stopRes
		c.protect[es.hash+":stop"] = es
		c.mu.Unlock()
	}

	targetRes, ok := c.submitProtective(ctx, streamID, es, "target", in.Target, func(o broker.ProtectiveOrder) broker.Result {
		return c.adapter.SubmitTarget(ctx, o)
	})
	if !ok {
		c.flattenAndStandDown(ctx, streamID, in.Instrument, "target submission exhausted retries")
		return
	}
	if targetRes != "" {
		c.mu.Lock()
		c.protect[es.hash+":target"] = es
		c.mu.Unlock()
	}

	c.publish(streamID, events.ProtectionAttached, map[string]any{
		"hash":   es.hash,
		"stop":   in.Stop,
		"target": in.Target,
		"qty":    es.filled,
	})
}

// submitProtective journals then submits one protective order sized to the
// cumulative filled quantity. Returns the broker order id and whether the
// order is confirmed working. A previously journaled submission (restart)
// reports ok without resubmitting.
func (c *Coordinator) submitProtective(ctx context.Context, streamID string, es *entryState,
	kind string, price float64, call func(broker.ProtectiveOrder) broker.Result) (string, bool) {

	clientID := es.hash + ":" + kind
	inserted, err := c.store.InsertIntent(journal.IntentRecord{
		TradingDate: c.date,
		Stream:      streamID,
		IntentHash:  clientID,
		State:       journal.IntentSubmitted,
	})
	if err != nil {
		c.log.Error().Err(err).Str("stream", streamID).Msg("protective journal write failed")
		return "", false
	}
	if !inserted {
		c.log.Info().Str("stream", streamID).Str("kind", kind).Msg("protective order already journaled")
		return "", true
	}

	res := submitWithRetry(ctx, c.cfg.ProtectiveRetries, func() broker.Result {
		return call(broker.ProtectiveOrder{
			ClientID:   clientID,
			Stream:     streamID,
			Instrument: es.intent.Instrument,
			Direction:  es.intent.Direction,
			Qty:        es.filled,
			Price:      price,
		})
	})
	if res.Status != broker.Ok {
		c.publish(streamID, events.ProtectionFailed, map[string]any{
			"hash":   es.hash,
			"kind":   kind,
			"reason": res.Reason,
		})
		return "", false
	}

	rec := journal.IntentRecord{
		TradingDate: c.date,
		Stream:      streamID,
		IntentHash:  clientID,
		State:       journal.IntentSubmitted,
		OrderID:     res.OrderID,
	}
	if err := c.store.UpdateIntent(rec); err != nil {
		c.log.Error().Err(err).Str("stream", streamID).Msg("protective journal update failed")
	}
	return res.OrderID, true
}

// exitFillLocked handles a stop or target fill: cancel the sibling and
// commit the trade. Entered holding c.mu, releases it.
func (c *Coordinator) exitFillLocked(es *entryState, f broker.Fill) {
	if es.exited {
		c.mu.Unlock()
		return
	}
	es.exited = true

	isStop := f.ClientID == es.hash+":stop"
	siblingClient := es.hash + ":target"
	if !isStop {
		siblingClient = es.hash + ":stop"
	}

	siblingOrderID := es.stopOrderID
	if isStop || siblingOrderID == "" {
		// Fall back to the journaled order id; after a restart the
		// in-memory bookkeeping may not carry it.
		if rec, ok, err := c.store.GetIntent(c.date, f.Stream, siblingClient); err == nil && ok {
			siblingOrderID = rec.OrderID
		}
	}

	rec := journal.IntentRecord{
		TradingDate: c.date,
		Stream:      f.Stream,
		IntentHash:  es.hash,
		State:       journal.IntentFilled,
		FilledQty:   es.filled,
		Completed:   true,
		OrderID:     es.orderID,
	}
	if err := c.store.UpdateIntent(rec); err != nil {
		c.log.Error().Err(err).Str("stream", f.Stream).Msg("completion journal update failed")
	}
	delete(c.protect, es.hash+":stop")
	delete(c.protect, es.hash+":target")
	delete(c.entries, es.hash)
	c.mu.Unlock()

	if siblingOrderID != "" {
		res := c.adapter.Cancel(context.Background(), siblingOrderID)
		if res.Status != broker.Ok {
			c.log.Warn().Str("stream", f.Stream).Str("reason", res.Reason).
				Msg("sibling protective cancel not honored")
		}
	}

	kind := "target"
	if isStop {
		kind = "stop"
	}
	c.publish(f.Stream, events.TradeCompleted, map[string]any{
		"hash":  es.hash,
		"exit":  kind,
		"price": f.Price,
		"qty":   f.Qty,
	})
	c.life.OnTradeCompleted(f.Stream)
}

// OnPrice feeds the break-even rule. Once unrealized profit reaches the
// configured fraction of the target distance, the stop relocates to one
// tick beyond the original breakout level, never the fill price. The
// relocation is idempotent.
func (c *Coordinator) OnPrice(instrument string, price float64) {
	type move struct {
		es       *entryState
		streamID string
		level    float64
	}
	var moves []move

	c.mu.Lock()
	for _, es := range c.entries {
		in := es.intent
		if in.Instrument != instrument || !es.protected || es.breakEven || es.exited || es.stopOrderID == "" {
			continue
		}
		var progress, distance float64
		if in.Direction == broker.Long {
			progress = price - in.Entry
			distance = in.Target - in.Entry
		} else {
			progress = in.Entry - price
			distance = in.Entry - in.Target
		}
		if distance <= 0 || progress < c.cfg.BreakEvenFraction*distance {
			continue
		}

		tick := market.Tick(instrument)
		level := in.Entry + tick
		if in.Direction == broker.Short {
			level = in.Entry - tick
		}
		es.breakEven = true
		moves = append(moves, move{es: es, streamID: in.Stream, level: level})
	}
	c.mu.Unlock()

	for _, m := range moves {
		res := c.adapter.ModifyStop(context.Background(), m.es.stopOrderID, m.level)
		if res.Status != broker.Ok {
			// Not confirmed; allow the next price update to try again.
			c.mu.Lock()
			m.es.breakEven = false
			c.mu.Unlock()
			c.log.Warn().Str("stream", m.streamID).Str("reason", res.Reason).
				Msg("break-even relocation not confirmed")
			continue
		}
		c.publish(m.streamID, events.BreakEvenMoved, map[string]any{
			"hash":  m.es.hash,
			"level": m.level,
		})
	}
}

// CloseOut cancels any working entries for the stream and flattens an open
// position. Called at market close and on stand-down. Reports whether an
// entry fill had been seen.
func (c *Coordinator) CloseOut(ctx context.Context, streamID string) bool {
	type cancel struct {
		hash    string
		orderID string
	}
	var cancels []cancel
	var flatten string
	entryDetected := false

	c.mu.Lock()
	for hash, es := range c.entries {
		if es.intent.Stream != streamID {
			continue
		}
		if es.filled > 0 {
			entryDetected = true
			if !es.exited {
				flatten = es.intent.Instrument
			}
		} else if es.orderID != "" {
			cancels = append(cancels, cancel{hash: hash, orderID: es.orderID})
		}
		delete(c.protect, es.hash+":stop")
		delete(c.protect, es.hash+":target")
		delete(c.entries, hash)
	}
	c.mu.Unlock()

	for _, cn := range cancels {
		res := c.adapter.Cancel(ctx, cn.orderID)
		if res.Status == broker.Ok {
			rec := journal.IntentRecord{
				TradingDate: c.date,
				Stream:      streamID,
				IntentHash:  cn.hash,
				State:       journal.IntentCancelled,
			}
			if err := c.store.UpdateIntent(rec); err != nil {
				c.log.Error().Err(err).Str("stream", streamID).Msg("cancel journal update failed")
			}
			c.publish(streamID, events.OrderCancelled, map[string]any{"hash": cn.hash})
		}
	}
	if flatten != "" {
		res := c.adapter.Flatten(ctx, flatten)
		c.publish(streamID, events.PositionFlattened, map[string]any{
			"instrument": flatten,
			"ok":         res.Status == broker.Ok,
		})
	}
	return entryDetected
}

func (c *Coordinator) flattenAndStandDown(ctx context.Context, streamID, instrument, reason string) {
	res := c.adapter.Flatten(ctx, instrument)
	c.publish(streamID, events.PositionFlattened, map[string]any{
		"instrument": instrument,
		"reason":     reason,
		"ok":         res.Status == broker.Ok,
	})
	c.life.OnStandDown(streamID, reason)
}

// Restore re-registers an in-flight intent after a restart. The journal
// already holds the hash, so nothing is resubmitted; this only rebuilds
// the in-memory bookkeeping needed to manage fills from here on.
func (c *Coordinator) Restore(streamID string, in Intent, rec journal.IntentRecord) {
	es := &entryState{
		intent:  in,
		hash:    rec.IntentHash,
		orderID: rec.OrderID,
		filled:  rec.FilledQty,
	}
	if rec.Completed {
		es.exited = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch rec.State {
	case journal.IntentRejected, journal.IntentCancelled:
		return
	}
	c.entries[rec.IntentHash] = es

	if stopRec, ok, err := c.store.GetIntent(c.date, streamID, rec.IntentHash+":stop"); err == nil && ok {
		es.protected = true
		es.stopOrderID = stopRec.OrderID
		c.protect[rec.IntentHash+":stop"] = es
	}
	if _, ok, err := c.store.GetIntent(c.date, streamID, rec.IntentHash+":target"); err == nil && ok {
		c.protect[rec.IntentHash+":target"] = es
	}
}

func (c *Coordinator) updateIntent(streamID string, es *entryState, state, orderID string) {
	rec := journal.IntentRecord{
		TradingDate: c.date,
		Stream:      streamID,
		IntentHash:  es.hash,
		State:       state,
		FilledQty:   es.filled,
		OrderID:     orderID,
	}
	if err := c.store.UpdateIntent(rec); err != nil {
		c.log.Error().Err(err).Str("stream", streamID).Str("hash", es.hash).
			Msg("intent journal update failed")
	}
}

func (c *Coordinator) publish(streamID string, typ events.Type, payload map[string]any) {
	c.bus.Publish(events.New(c.date, streamID, typ, payload))
}
