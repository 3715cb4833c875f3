package exec

import (
	"context"
	"time"

	"github.com/rustyeddy/breakout/broker"
)

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// backoffDelay returns the exponential backoff for a retry attempt,
// capped at retryMaxDelay.
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		return retryBaseDelay
	}
	if attempt > 20 {
		return retryMaxDelay
	}
	d := retryBaseDelay * time.Duration(1<<attempt)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

// submitWithRetry runs an adapter call up to attempts times, backing off
// between tries. NotYetVisible and Failed both retry; the first Ok wins.
// Context cancellation cuts the loop short with a Failed result.
func submitWithRetry(ctx context.Context, attempts int, f func() broker.Result) broker.Result {
	var last broker.Result
	for i := 0; i < attempts; i++ {
		last = f()
		if last.Status == broker.Ok {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return broker.Result{Status: broker.Failed, Reason: ctx.Err().Error()}
		case <-time.After(backoffDelay(i)):
		}
	}
	return last
}
