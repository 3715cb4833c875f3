package exec

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/events"
	"github.com/rustyeddy/breakout/journal"
)

// scriptAdapter records every call and answers from a small script.
type scriptAdapter struct {
	mu       sync.Mutex
	entries  []broker.EntryOrder
	stops    []broker.ProtectiveOrder
	targets  []broker.ProtectiveOrder
	cancels  []string
	flattens []string
	modified []float64

	rejectEntries bool
	failStops     int // fail this many stop submissions; -1 fails forever
	seq           int

	// fillOnSubmit delivers an immediate fill from inside SubmitEntry,
	// the way the sim adapter does when it already has a last price.
	fillOnSubmit func(broker.EntryOrder)
}

func (a *scriptAdapter) nextID() string {
	a.seq++
	return fmt.Sprintf("ord-%d", a.seq)
}

func (a *scriptAdapter) SubmitEntry(_ context.Context, o broker.EntryOrder) broker.Result {
	a.mu.Lock()
	a.entries = append(a.entries, o)
	res := broker.Result{Status: broker.Ok, OrderID: a.nextID()}
	if a.rejectEntries {
		res = broker.Result{Status: broker.Failed, Reason: "scripted rejection"}
	}
	fill := a.fillOnSubmit
	a.mu.Unlock()

	if fill != nil && res.Status == broker.Ok {
		fill(o)
	}
	return res
}

func (a *scriptAdapter) SubmitProtectiveStop(_ context.Context, o broker.ProtectiveOrder) broker.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops = append(a.stops, o)
	if a.failStops != 0 {
		if a.failStops > 0 {
			a.failStops--
		}
		return broker.Result{Status: broker.NotYetVisible, Reason: "scripted failure"}
	}
	return broker.Result{Status: broker.Ok, OrderID: a.nextID()}
}

func (a *scriptAdapter) SubmitTarget(_ context.Context, o broker.ProtectiveOrder) broker.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.targets = append(a.targets, o)
	return broker.Result{Status: broker.Ok, OrderID: a.nextID()}
}

func (a *scriptAdapter) ModifyStop(_ context.Context, _ string, price float64) broker.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modified = append(a.modified, price)
	return broker.Result{Status: broker.Ok}
}

func (a *scriptAdapter) Cancel(_ context.Context, orderID string) broker.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancels = append(a.cancels, orderID)
	return broker.Result{Status: broker.Ok}
}

func (a *scriptAdapter) Flatten(_ context.Context, instrument string) broker.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flattens = append(a.flattens, instrument)
	return broker.Result{Status: broker.Ok}
}

type recordingLifecycle struct {
	mu        sync.Mutex
	detected  []string
	completed []string
	standDown []string
	reasons   []string
}

func (l *recordingLifecycle) OnEntryDetected(streamID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detected = append(l.detected, streamID)
}

func (l *recordingLifecycle) OnTradeCompleted(streamID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, streamID)
}

func (l *recordingLifecycle) OnStandDown(streamID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.standDown = append(l.standDown, streamID)
	l.reasons = append(l.reasons, reason)
}

const (
	testDate   = "2025-03-10"
	testStream = "ES_EU_07:30"
)

func bracketIntents() []Intent {
	long := Intent{
		Instrument:  "ES",
		Stream:      testStream,
		TradingDate: testDate,
		Session:     "EU",
		SlotTime:    "07:30",
		Direction:   broker.Long,
		Entry:       4100.25,
		Stop:        4079.75,
		Target:      4120.75,
		Qty:         2,
	}
	short := Intent{
		Instrument:  "ES",
		Stream:      testStream,
		TradingDate: testDate,
		Session:     "EU",
		SlotTime:    "07:30",
		Direction:   broker.Short,
		Entry:       4079.75,
		Stop:        4100.25,
		Target:      4059.25,
		Qty:         2,
	}
	return []Intent{long, short}
}

func testWindow() (now, start, end time.Time) {
	return time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC)
}

func newStore(t *testing.T) journal.Store {
	t.Helper()
	store, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCoordinator(store journal.Store, adapter broker.Adapter, life Lifecycle) *Coordinator {
	return NewCoordinator(testDate, Config{}, store, adapter, events.NewBus(), life, zerolog.Nop())
}

func TestSubmitBracketsPlacesBothSides(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, bracketIntents(), now, start, end)

	require.Len(t, adapter.entries, 2)
	assert.Equal(t, broker.Long, adapter.entries[0].Direction)
	assert.Equal(t, 4100.25, adapter.entries[0].Trigger)
	assert.Equal(t, broker.Short, adapter.entries[1].Direction)
	assert.Equal(t, 4079.75, adapter.entries[1].Trigger)

	rec, ok, err := store.GetIntent(testDate, testStream, bracketIntents()[0].Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.IntentSubmitted, rec.State)
	assert.NotEmpty(t, rec.OrderID)
}

func TestAtMostOnceAcrossRestart(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, bracketIntents(), now, start, end)
	require.Len(t, adapter.entries, 2)

	// Same journal, fresh process: identical intents hash to already
	// journaled keys and never reach the adapter again.
	c2 := newCoordinator(store, adapter, &recordingLifecycle{})
	c2.SubmitBrackets(context.Background(), testStream, bracketIntents(), now, start, end)
	assert.Len(t, adapter.entries, 2, "restart must not resubmit journaled intents")
}

func TestImmediateIntentGoesAtMarket(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	in := bracketIntents()[0]
	in.Immediate = true
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)

	require.Len(t, adapter.entries, 1)
	assert.Zero(t, adapter.entries[0].Trigger)
}

func TestRejectedEntryIsNoTrade(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{rejectEntries: true}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	now, start, end := testWindow()
	in := bracketIntents()[0]
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)
	require.Len(t, adapter.entries, 1)

	rec, ok, err := store.GetIntent(testDate, testStream, in.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.IntentRejected, rec.State)

	// The journaled hash still blocks a retry.
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)
	assert.Len(t, adapter.entries, 1, "rejected entries are never retried")
}

func TestEntryFillCancelsOppositeAndAttachesProtection(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	intents := bracketIntents()
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, intents, now, start, end)

	c.OnFill(broker.Fill{
		Stream:   testStream,
		ClientID: intents[0].Hash(),
		Qty:      2,
		Price:    4100.25,
		Time:     now,
	})

	require.Len(t, adapter.cancels, 1, "the opposite entry is cancelled on fill")
	assert.Equal(t, "ord-2", adapter.cancels[0])

	require.Len(t, adapter.stops, 1)
	assert.Equal(t, 4079.75, adapter.stops[0].Price)
	assert.Equal(t, 2.0, adapter.stops[0].Qty)
	require.Len(t, adapter.targets, 1)
	assert.Equal(t, 4120.75, adapter.targets[0].Price)
	assert.Equal(t, 2.0, adapter.targets[0].Qty)
}

func TestPartialFillsProtectOnceAtFullQuantity(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	life := &recordingLifecycle{}
	c := newCoordinator(store, adapter, life)

	in := bracketIntents()[0]
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)

	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash(), Qty: 1, Price: 4100.25})
	assert.Empty(t, adapter.stops, "no protection until the full quantity is in")

	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash(), Qty: 1, Price: 4100.50})
	require.Len(t, adapter.stops, 1, "exactly one protective stop")
	assert.Equal(t, 2.0, adapter.stops[0].Qty, "stop is sized to the cumulative fill")
	require.Len(t, adapter.targets, 1)
	assert.Equal(t, 2.0, adapter.targets[0].Qty)
	assert.Equal(t, []string{testStream}, life.detected, "entry detection fires on the first fill only")
}

func TestSynchronousFillKeepsJournalAdvanced(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})
	adapter.fillOnSubmit = func(o broker.EntryOrder) {
		c.OnFill(broker.Fill{Stream: o.Stream, ClientID: o.ClientID, Qty: o.Qty, Price: 4101.00})
	}

	in := bracketIntents()[0]
	in.Immediate = true
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)

	require.Len(t, adapter.stops, 1, "protection attaches off the in-call fill")

	rec, ok, err := store.GetIntent(testDate, testStream, in.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, journal.IntentFilled, rec.State, "the post-submit update must not regress the fill")
	assert.Equal(t, 2.0, rec.FilledQty)
	assert.NotEmpty(t, rec.OrderID)
}

func TestProtectiveStopExhaustionFlattens(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{failStops: -1}
	life := &recordingLifecycle{}
	c := newCoordinator(store, adapter, life)

	in := bracketIntents()[0]
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)
	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash(), Qty: 2, Price: 4100.25})

	assert.Len(t, adapter.stops, 3, "bounded retries, then stop trying")
	assert.Empty(t, adapter.targets, "no target without a working stop")
	require.Len(t, adapter.flattens, 1, "an unprotected position is flattened")
	assert.Equal(t, "ES", adapter.flattens[0])
	require.Len(t, life.standDown, 1)
	assert.Equal(t, testStream, life.standDown[0])
}

func TestStopFillCompletesTradeAndCancelsTarget(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	life := &recordingLifecycle{}
	c := newCoordinator(store, adapter, life)

	in := bracketIntents()[0]
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)
	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash(), Qty: 2, Price: 4100.25})
	require.Len(t, adapter.targets, 1)

	cancelsBefore := len(adapter.cancels)
	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash() + ":stop", Qty: 2, Price: 4079.75})

	require.Len(t, life.completed, 1)
	assert.Equal(t, testStream, life.completed[0])
	assert.Len(t, adapter.cancels, cancelsBefore+1, "the sibling target is cancelled")

	rec, ok, err := store.GetIntent(testDate, testStream, in.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Completed)

	// A duplicate exit fill is a no-op.
	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash() + ":stop", Qty: 2, Price: 4079.75})
	assert.Len(t, life.completed, 1)
}

func TestBreakEvenMovesOnceToLevelPlusTick(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	in := bracketIntents()[0]
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)
	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash(), Qty: 2, Price: 4101.00})

	// Short of half the target distance: no move.
	c.OnPrice("ES", 4105.00)
	assert.Empty(t, adapter.modified)

	// Past it: stop relocates to one tick beyond the breakout level,
	// regardless of the better fill price above.
	c.OnPrice("ES", 4111.00)
	require.Len(t, adapter.modified, 1)
	assert.Equal(t, 4100.50, adapter.modified[0])

	// Further advances never move it again.
	c.OnPrice("ES", 4118.00)
	assert.Len(t, adapter.modified, 1)
}

func TestCloseOutCancelsWorkingAndFlattensFilled(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	intents := bracketIntents()
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, intents, now, start, end)

	// Nothing filled: both entries cancelled, no position to flatten.
	detected := c.CloseOut(context.Background(), testStream)
	assert.False(t, detected)
	assert.Len(t, adapter.cancels, 2)
	assert.Empty(t, adapter.flattens)
}

func TestCloseOutFlattensOpenPosition(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	in := bracketIntents()[0]
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)
	c.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash(), Qty: 2, Price: 4100.25})

	detected := c.CloseOut(context.Background(), testStream)
	assert.True(t, detected, "an entry fill was seen this session")
	require.Len(t, adapter.flattens, 1)
	assert.Equal(t, "ES", adapter.flattens[0])
}

func TestRestoreManagesFillsWithoutResubmitting(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})

	in := bracketIntents()[0]
	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, []Intent{in}, now, start, end)
	entriesBefore := len(adapter.entries)

	rec, ok, err := store.GetIntent(testDate, testStream, in.Hash())
	require.NoError(t, err)
	require.True(t, ok)

	// A fresh coordinator over the same journal picks up the working
	// order and handles the fill exactly as the original would have.
	c2 := newCoordinator(store, adapter, &recordingLifecycle{})
	c2.Restore(testStream, in, rec)
	assert.Len(t, adapter.entries, entriesBefore, "restore never touches the adapter")

	c2.OnFill(broker.Fill{Stream: testStream, ClientID: in.Hash(), Qty: 2, Price: 4100.25})
	require.Len(t, adapter.stops, 1)
	assert.Equal(t, 2.0, adapter.stops[0].Qty)
}

func TestKillSwitchBlocksSubmission(t *testing.T) {
	store := newStore(t)
	adapter := &scriptAdapter{}
	c := newCoordinator(store, adapter, &recordingLifecycle{})
	c.EngageKillSwitch()

	now, start, end := testWindow()
	c.SubmitBrackets(context.Background(), testStream, bracketIntents(), now, start, end)
	assert.Empty(t, adapter.entries)

	_, ok, err := store.GetIntent(testDate, testStream, bracketIntents()[0].Hash())
	require.NoError(t, err)
	assert.False(t, ok, "a blocked intent never reaches the journal")
}
