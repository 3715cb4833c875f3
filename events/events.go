package events

import (
	"time"

	"github.com/rustyeddy/breakout/id"
)

// Type enumerates the engine lifecycle events written to the event sink.
type Type string

const (
	StreamHydrated      Type = "STREAM_HYDRATED"
	StreamArmed         Type = "STREAM_ARMED"
	RangeBuilding       Type = "RANGE_BUILDING"
	RangeLocked         Type = "RANGE_LOCKED"
	HydrationTimeout    Type = "HYDRATION_TIMEOUT"
	InsufficientData    Type = "INSUFFICIENT_DATA"
	ImmediateBreakout   Type = "IMMEDIATE_BREAKOUT"
	BracketsSubmitted   Type = "BRACKETS_SUBMITTED"
	GateRejected        Type = "GATE_REJECTED"
	OrderSubmitted      Type = "ORDER_SUBMITTED"
	OrderRejected       Type = "ORDER_REJECTED"
	OrderCancelled      Type = "ORDER_CANCELLED"
	EntryFilled         Type = "ENTRY_FILLED"
	ProtectionAttached  Type = "PROTECTION_ATTACHED"
	ProtectionFailed    Type = "PROTECTION_FAILED"
	BreakEvenMoved      Type = "BREAKEVEN_MOVED"
	PositionFlattened   Type = "POSITION_FLATTENED"
	TradeCompleted      Type = "TRADE_COMPLETED"
	StreamStoodDown     Type = "STREAM_STOOD_DOWN"
	StreamDone          Type = "STREAM_DONE"
	RestoreApplied      Type = "RESTORE_APPLIED"
	RestoreFailed       Type = "RESTORE_FAILED"
	InvariantViolation  Type = "INVARIANT_VIOLATION"
	TimetableRejected   Type = "TIMETABLE_REJECTED"
	MissingDataIncident Type = "MISSING_DATA_INCIDENT"
)

// Event is one append-only record for the event sink. Payload carries
// event-specific fields and is persisted as JSON.
type Event struct {
	ID          string         `json:"id"`
	TradingDate string         `json:"trading_date"`
	Stream      string         `json:"stream"`
	Type        Type           `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	At          time.Time      `json:"at"`
}

// New builds an event stamped now with a fresh ULID.
func New(date, stream string, typ Type, payload map[string]any) Event {
	return Event{
		ID:          id.New(),
		TradingDate: date,
		Stream:      stream,
		Type:        typ,
		Payload:     payload,
		At:          time.Now().UTC(),
	}
}
