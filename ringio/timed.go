package ringio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// runTimed invokes fn with a derived context bounded by d, folds the wall
// time of the call into metric's EMA, and translates a deadline overrun
// into ErrTimeout. It is the Go stand-in for the source's chained
// with_timeout().measure_latency() future combinators.
func runTimed[R any](ctx context.Context, d time.Duration, metric *atomic.Uint64, fn func(context.Context) (R, error)) (R, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val R
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		v, err := fn(cctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		updateEMA(metric, uint64(time.Since(start).Microseconds()))
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			var zero R
			return zero, fmt.Errorf("%w", ErrTimeout)
		}
		if r.err != nil && !isTaggedRingError(r.err) {
			var zero R
			return zero, wrapTargetErr(r.err)
		}
		return r.val, r.err
	case <-cctx.Done():
		var zero R
		return zero, fmt.Errorf("%w", ErrTimeout)
	}
}
