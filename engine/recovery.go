package engine

import (
	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/events"
	"github.com/rustyeddy/breakout/exec"
	"github.com/rustyeddy/breakout/journal"
)

// Recover replays the journal for the locked trading date and rebuilds
// in-memory state. Nothing is resubmitted: locked ranges come back from
// the stream journal, in-flight orders from the execution journal and the
// order-submission events. A stream with no journal record simply starts
// fresh.
func (e *Engine) Recover() error {
	recs, err := e.store.ListStreams(e.date.String())
	if err != nil {
		return err
	}

	for _, rec := range recs {
		s := e.lookup(rec.Stream)
		if s == nil {
			// Journaled under a stream the timetable no longer names;
			// nothing to drive, the record stays for the audit trail.
			e.log.Warn().Str("stream", rec.Stream).Msg("journal record without a timetable entry")
			continue
		}
		s.Restore(rec)
		if err := e.restoreOrders(rec); err != nil {
			e.log.Error().Err(err).Str("stream", rec.Stream).Msg("order recovery failed")
		}
	}
	return nil
}

// restoreOrders re-registers the stream's in-flight intents with the
// coordinator. The intent's trading parameters come from the
// ORDER_SUBMITTED event payload; the journal supplies fill progress and
// protection state.
func (e *Engine) restoreOrders(rec journal.StreamRecord) error {
	evs, err := e.store.EventsFor(e.date.String(), rec.Stream)
	if err != nil {
		return err
	}

	s := e.lookup(rec.Stream)
	for _, ev := range evs {
		if ev.Type != events.OrderSubmitted {
			continue
		}
		hash, _ := ev.Payload["hash"].(string)
		if hash == "" {
			continue
		}
		irec, ok, err := e.store.GetIntent(e.date.String(), rec.Stream, hash)
		if err != nil || !ok {
			continue
		}
		in := intentFromPayload(ev.Payload)
		in.Instrument = s.Instrument()
		in.Stream = rec.Stream
		in.TradingDate = e.date.String()
		e.coord.Restore(rec.Stream, in, irec)
	}
	return nil
}

// intentFromPayload rebuilds the trade parameters persisted with the
// submission event. JSON round-trips numbers as float64.
func intentFromPayload(p map[string]any) exec.Intent {
	var in exec.Intent
	if d, _ := p["direction"].(string); d == "short" {
		in.Direction = broker.Short
	} else {
		in.Direction = broker.Long
	}
	in.Immediate, _ = p["immediate"].(bool)
	in.Entry, _ = p["entry"].(float64)
	in.Stop, _ = p["stop"].(float64)
	in.Target, _ = p["target"].(float64)
	in.Qty, _ = p["qty"].(float64)
	return in
}
