package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/breakout/id"
	"github.com/rustyeddy/breakout/market"
)

type orderKind int

const (
	kindEntry orderKind = iota
	kindStop
	kindTarget
)

type workingOrder struct {
	kind       orderKind
	clientID   string
	orderID    string
	stream     string
	instrument string
	direction  Direction
	qty        float64
	price      float64 // trigger for entries/stops, limit for targets
	market     bool    // entry at market, fills on the next price
}

// SimAdapter is a simulated account. Pending orders rest locally and are
// evaluated against delivered bars; fills go to the registered listener.
// The rate limiter paces submissions the way a real broker API would.
type SimAdapter struct {
	mu       sync.Mutex
	working  map[string]*workingOrder // by client id
	byOrder  map[string]string        // broker order id -> client id
	position map[string]float64       // signed qty per instrument
	last     map[string]float64       // last seen price per instrument

	// SplitFills fills entry orders of qty >= 2 in two partial fills,
	// exercising the partial-fill sizing path.
	SplitFills bool

	listener FillListener
	lim      *rate.Limiter
	log      zerolog.Logger
}

func NewSimAdapter(listener FillListener, log zerolog.Logger) *SimAdapter {
	return &SimAdapter{
		working:  make(map[string]*workingOrder),
		byOrder:  make(map[string]string),
		position: make(map[string]float64),
		last:     make(map[string]float64),
		listener: listener,
		lim:      rate.NewLimiter(rate.Limit(20), 40),
		log:      log,
	}
}

func (a *SimAdapter) SubmitEntry(ctx context.Context, o EntryOrder) Result {
	if err := a.lim.Wait(ctx); err != nil {
		return Result{Status: Failed, Reason: err.Error()}
	}

	a.mu.Lock()
	w := &workingOrder{
		kind:       kindEntry,
		clientID:   o.ClientID,
		orderID:    id.New(),
		stream:     o.Stream,
		instrument: o.Instrument,
		direction:  o.Direction,
		qty:        o.Qty,
		price:      o.Trigger,
		market:     o.Trigger == 0,
	}
	a.working[o.ClientID] = w
	a.byOrder[w.orderID] = o.ClientID

	var fills []Fill
	if w.market {
		if px, ok := a.last[o.Instrument]; ok {
			fills = a.fillLocked(w, px, time.Now().UTC())
		}
		// No price seen yet: fills on the first delivered bar.
	}
	a.mu.Unlock()

	a.dispatch(fills)
	return Result{Status: Ok, OrderID: w.orderID}
}

func (a *SimAdapter) SubmitProtectiveStop(ctx context.Context, o ProtectiveOrder) Result {
	return a.submitProtective(ctx, o, kindStop)
}

func (a *SimAdapter) SubmitTarget(ctx context.Context, o ProtectiveOrder) Result {
	return a.submitProtective(ctx, o, kindTarget)
}

func (a *SimAdapter) submitProtective(ctx context.Context, o ProtectiveOrder, kind orderKind) Result {
	if err := a.lim.Wait(ctx); err != nil {
		return Result{Status: Failed, Reason: err.Error()}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	w := &workingOrder{
		kind:       kind,
		clientID:   o.ClientID,
		orderID:    id.New(),
		stream:     o.Stream,
		instrument: o.Instrument,
		direction:  o.Direction,
		qty:        o.Qty,
		price:      o.Price,
	}
	a.working[o.ClientID] = w
	a.byOrder[w.orderID] = o.ClientID
	return Result{Status: Ok, OrderID: w.orderID}
}

func (a *SimAdapter) ModifyStop(_ context.Context, orderID string, price float64) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	cid, ok := a.byOrder[orderID]
	if !ok {
		return Result{Status: NotYetVisible, Reason: "order not found"}
	}
	w, ok := a.working[cid]
	if !ok || w.kind != kindStop {
		return Result{Status: Failed, Reason: "not a working stop"}
	}
	w.price = price
	return Result{Status: Ok, OrderID: orderID}
}

// Cancel removes a working order. If the order already filled, the fill
// stands and the cancel reports Failed; both outcomes are valid for the
// caller, the broker's word is final.
func (a *SimAdapter) Cancel(_ context.Context, orderID string) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	cid, ok := a.byOrder[orderID]
	if !ok {
		return Result{Status: NotYetVisible, Reason: "order not found"}
	}
	if _, ok := a.working[cid]; !ok {
		return Result{Status: Failed, Reason: "already filled"}
	}
	delete(a.working, cid)
	delete(a.byOrder, orderID)
	return Result{Status: Ok, OrderID: orderID}
}

// Flatten closes any open position at the last seen price and cancels all
// working orders for the instrument.
func (a *SimAdapter) Flatten(_ context.Context, instrument string) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	for cid, w := range a.working {
		if w.instrument == instrument {
			delete(a.byOrder, w.orderID)
			delete(a.working, cid)
		}
	}
	if qty := a.position[instrument]; qty != 0 {
		a.log.Info().Str("instrument", instrument).Float64("qty", qty).
			Float64("price", a.last[instrument]).Msg("sim flatten")
		a.position[instrument] = 0
	}
	return Result{Status: Ok}
}

// Position returns the signed open quantity for an instrument.
func (a *SimAdapter) Position(instrument string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position[instrument]
}

// OnBar marks the instrument's price path against all working orders.
// Entries and targets trigger on range penetration, stops on adverse
// penetration.
func (a *SimAdapter) OnBar(instrument string, b market.Bar) {
	a.mu.Lock()
	a.last[instrument] = b.Close

	var fills []Fill
	for _, w := range a.working {
		if w.instrument != instrument {
			continue
		}
		px, hit := w.triggerPrice(b)
		if !hit {
			continue
		}
		fills = append(fills, a.fillLocked(w, px, b.CloseTime())...)
	}
	a.mu.Unlock()

	a.dispatch(fills)
}

func (w *workingOrder) triggerPrice(b market.Bar) (float64, bool) {
	if w.market {
		return b.Open, true
	}
	switch w.kind {
	case kindEntry:
		// Stop entry: buy above the market, sell below it.
		if w.direction == Long && b.High >= w.price {
			return w.price, true
		}
		if w.direction == Short && b.Low <= w.price {
			return w.price, true
		}
	case kindStop:
		// Closing stop for the position's direction.
		if w.direction == Long && b.Low <= w.price {
			return w.price, true
		}
		if w.direction == Short && b.High >= w.price {
			return w.price, true
		}
	case kindTarget:
		if w.direction == Long && b.High >= w.price {
			return w.price, true
		}
		if w.direction == Short && b.Low <= w.price {
			return w.price, true
		}
	}
	return 0, false
}

func (a *SimAdapter) fillLocked(w *workingOrder, px float64, ts time.Time) []Fill {
	delete(a.working, w.clientID)
	delete(a.byOrder, w.orderID)

	signed := w.qty
	if w.direction == Short {
		signed = -signed
	}
	switch w.kind {
	case kindEntry:
		a.position[w.instrument] += signed
	case kindStop, kindTarget:
		a.position[w.instrument] -= signed
	}

	fill := Fill{
		Stream:   w.stream,
		ClientID: w.clientID,
		OrderID:  w.orderID,
		Qty:      w.qty,
		Price:    px,
		Time:     ts,
	}
	if a.SplitFills && w.kind == kindEntry && w.qty >= 2 {
		half := fill
		half.Qty = 1
		rest := fill
		rest.Qty = w.qty - 1
		return []Fill{half, rest}
	}
	return []Fill{fill}
}

// dispatch runs outside the adapter lock so listeners can call back into
// the adapter (cancel the sibling order) without deadlocking.
func (a *SimAdapter) dispatch(fills []Fill) {
	if a.listener == nil {
		return
	}
	for _, f := range fills {
		a.listener.OnFill(f)
	}
}
