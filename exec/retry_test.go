package exec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/breakout/broker"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, backoffDelay(0))
	assert.Equal(t, 500*time.Millisecond, backoffDelay(1))
	assert.Equal(t, time.Second, backoffDelay(2))
	assert.Equal(t, 5*time.Second, backoffDelay(10))
	assert.Equal(t, 5*time.Second, backoffDelay(100))
}

func TestSubmitWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	res := submitWithRetry(context.Background(), 3, func() broker.Result {
		calls++
		if calls < 2 {
			return broker.Result{Status: broker.NotYetVisible}
		}
		return broker.Result{Status: broker.Ok, OrderID: "ord-1"}
	})
	assert.Equal(t, broker.Ok, res.Status)
	assert.Equal(t, 2, calls)
}

func TestSubmitWithRetryExhausts(t *testing.T) {
	calls := 0
	res := submitWithRetry(context.Background(), 3, func() broker.Result {
		calls++
		return broker.Result{Status: broker.Failed, Reason: "down"}
	})
	assert.Equal(t, broker.Failed, res.Status)
	assert.Equal(t, 3, calls)
}

func TestSubmitWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	res := submitWithRetry(ctx, 5, func() broker.Result {
		calls++
		return broker.Result{Status: broker.NotYetVisible}
	})
	assert.Equal(t, broker.Failed, res.Status)
	assert.Equal(t, 1, calls, "cancellation stops the loop before the next attempt")
}
