package journal

import (
	"time"

	"github.com/rustyeddy/breakout/events"
)

// Terminal classifications for a stream's trading day.
const (
	TerminalNoTrade          = "NoTrade"
	TerminalTradeCompleted   = "TradeCompleted"
	TerminalSkippedByConfig  = "SkippedByConfig"
	TerminalFailedAtRuntime  = "FailedAtRuntime"
	TerminalInsufficientData = "SuspendedInsufficientData"
)

// Intent states. An intent only ever moves forward:
// Submitted -> {Filled | Rejected | Cancelled}.
const (
	IntentSubmitted = "Submitted"
	IntentFilled    = "Filled"
	IntentRejected  = "Rejected"
	IntentCancelled = "Cancelled"
)

// StreamRecord is the durable per-(trading_date, stream) journal entry.
// It is written on every committed transition and read back on restart.
type StreamRecord struct {
	TradingDate string
	Stream      string
	State       string
	RangeLocked bool
	RangeHigh   float64
	RangeLow    float64
	FreezeClose float64
	LongLevel   float64
	ShortLevel  float64
	Brackets    bool // entry stop-brackets already submitted
	Entry       bool // an entry fill has been detected
	Terminal    string
	UpdatedAt   time.Time
}

// IntentRecord is the durable per-(trading_date, stream, intent_hash)
// execution journal entry, the authoritative "has this already happened"
// store consulted before any order is placed.
type IntentRecord struct {
	TradingDate string
	Stream      string
	IntentHash  string
	State       string
	FilledQty   float64
	Completed   bool
	OrderID     string // broker-assigned id, once known
	UpdatedAt   time.Time
}

// Store is the durable journal the engine writes through.
type Store interface {
	UpsertStream(StreamRecord) error
	GetStream(date, stream string) (StreamRecord, bool, error)
	ListStreams(date string) ([]StreamRecord, error)

	// InsertIntent records a new intent atomically. It reports false when
	// an entry for the same (date, stream, hash) already exists, which is
	// the at-most-once submission check.
	InsertIntent(IntentRecord) (bool, error)
	UpdateIntent(IntentRecord) error
	GetIntent(date, stream, hash string) (IntentRecord, bool, error)
	ListIntents(date, stream string) ([]IntentRecord, error)

	AppendEvent(events.Event) error
	EventsFor(date, stream string) ([]events.Event, error)

	Close() error
}
