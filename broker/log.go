package broker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/id"
)

// LogAdapter accepts every order and does nothing beyond logging it.
// Useful for dry runs and for exercising the full engine path without an
// account.
type LogAdapter struct {
	log zerolog.Logger
}

func NewLogAdapter(log zerolog.Logger) *LogAdapter {
	return &LogAdapter{log: log}
}

func (a *LogAdapter) SubmitEntry(_ context.Context, o EntryOrder) Result {
	oid := id.New()
	a.log.Info().Str("client_id", o.ClientID).Str("stream", o.Stream).
		Str("direction", o.Direction.String()).Float64("qty", o.Qty).
		Float64("trigger", o.Trigger).Str("order_id", oid).
		Msg("dry-run entry")
	return Result{Status: Ok, OrderID: oid}
}

func (a *LogAdapter) SubmitProtectiveStop(_ context.Context, o ProtectiveOrder) Result {
	oid := id.New()
	a.log.Info().Str("client_id", o.ClientID).Str("stream", o.Stream).
		Float64("qty", o.Qty).Float64("price", o.Price).Str("order_id", oid).
		Msg("dry-run protective stop")
	return Result{Status: Ok, OrderID: oid}
}

func (a *LogAdapter) SubmitTarget(_ context.Context, o ProtectiveOrder) Result {
	oid := id.New()
	a.log.Info().Str("client_id", o.ClientID).Str("stream", o.Stream).
		Float64("qty", o.Qty).Float64("price", o.Price).Str("order_id", oid).
		Msg("dry-run target")
	return Result{Status: Ok, OrderID: oid}
}

func (a *LogAdapter) ModifyStop(_ context.Context, orderID string, price float64) Result {
	a.log.Info().Str("order_id", orderID).Float64("price", price).Msg("dry-run modify stop")
	return Result{Status: Ok, OrderID: orderID}
}

func (a *LogAdapter) Cancel(_ context.Context, orderID string) Result {
	a.log.Info().Str("order_id", orderID).Msg("dry-run cancel")
	return Result{Status: Ok, OrderID: orderID}
}

func (a *LogAdapter) Flatten(_ context.Context, instrument string) Result {
	a.log.Info().Str("instrument", instrument).Msg("dry-run flatten")
	return Result{Status: Ok}
}
