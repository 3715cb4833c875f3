package broker

import (
	"context"
	"time"
)

// Direction of a position. Protective orders carry the position's
// direction; the adapter works out the closing side.
type Direction int

const (
	Long Direction = iota + 1
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return "unknown"
}

// Status is the explicit submission outcome consumed by retry loops.
// NotYetVisible covers the broker race where an order exists but cannot be
// confirmed yet; callers retry instead of blindly resubmitting.
type Status int

const (
	Ok Status = iota
	NotYetVisible
	Failed
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case NotYetVisible:
		return "not-yet-visible"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result reports one adapter call. OrderID is broker-assigned and only
// meaningful when Status == Ok.
type Result struct {
	Status  Status
	OrderID string
	Reason  string
}

// EntryOrder is a breakout entry. Trigger == 0 means enter at market
// (price already broke out before the range locked).
type EntryOrder struct {
	ClientID   string
	Stream     string
	Instrument string
	Direction  Direction
	Qty        float64
	Trigger    float64
}

// ProtectiveOrder is a stop or target protecting an open position.
type ProtectiveOrder struct {
	ClientID   string
	Stream     string
	Instrument string
	Direction  Direction // direction of the protected position
	Qty        float64
	Price      float64
}

// Fill is reported by an adapter when an order executes, possibly more
// than once per order for partial fills.
type Fill struct {
	Stream   string
	ClientID string
	OrderID  string
	Qty      float64
	Price    float64
	Time     time.Time
}

// FillListener receives fills from an adapter. Registered once at
// construction; the adapter never reaches back into engine state.
type FillListener interface {
	OnFill(Fill)
}

// Adapter is the order-placement boundary. One implementation per broker
// or platform; version quirks stay behind this interface.
type Adapter interface {
	SubmitEntry(ctx context.Context, o EntryOrder) Result
	SubmitProtectiveStop(ctx context.Context, o ProtectiveOrder) Result
	SubmitTarget(ctx context.Context, o ProtectiveOrder) Result
	ModifyStop(ctx context.Context, orderID string, price float64) Result
	Cancel(ctx context.Context, orderID string) Result
	Flatten(ctx context.Context, instrument string) Result
}
