package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives every event published on the bus. Implementations must not
// block; slow consumers are the bus's problem, not the publisher's.
type Sink interface {
	Emit(Event)
}

// Bus fans events out to registered sinks and optional channel subscribers.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
	subs  []chan Event
}

func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

// AddSink registers an additional sink.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Subscribe returns a buffered channel of events and an unsubscribe func.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	b.subs = append(b.subs, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.subs {
			if c == ch {
				close(c)
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Publish delivers the event to all sinks, then to subscribers. Subscriber
// channels drop on overflow so a stalled consumer cannot block trading.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.sinks {
		s.Emit(e)
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// LogSink writes events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(e Event) {
	ev := s.log.Info()
	if e.Type == InvariantViolation {
		ev = s.log.Error()
	}
	ev.Str("event_id", e.ID).
		Str("date", e.TradingDate).
		Str("stream", e.Stream).
		Str("type", string(e.Type)).
		Fields(e.Payload).
		Msg("engine event")
}
