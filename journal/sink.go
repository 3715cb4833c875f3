package journal

import (
	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/events"
)

// Sink adapts a Store to the event bus. Append failures are logged at error
// level; a broken journal disk must not take the publisher down with it,
// the engine notices separately via its own journal writes failing.
type Sink struct {
	store Store
	log   zerolog.Logger
}

func NewSink(store Store, log zerolog.Logger) *Sink {
	return &Sink{store: store, log: log}
}

func (s *Sink) Emit(e events.Event) {
	if err := s.store.AppendEvent(e); err != nil {
		s.log.Error().Err(err).
			Str("event_id", e.ID).
			Str("stream", e.Stream).
			Str("type", string(e.Type)).
			Msg("event journal append failed")
	}
}
