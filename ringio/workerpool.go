package ringio

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// workerPool bounds how many blocking target calls run concurrently,
// dispatching each onto its own goroutine gated by a counting semaphore.
// This keeps a PositionalFileAdapter's pread/pwrite calls off whatever
// goroutine is driving write_at/read_at without letting an unbounded burst
// of callers spawn unbounded OS-thread-blocking goroutines.
type workerPool struct {
	sem *semaphore.Weighted
}

// defaultPoolCapacity mirrors the rough sizing a blocking-syscall pool
// needs: enough concurrency to hide disk latency without flooding the
// scheduler with blocked threads.
func defaultPoolCapacity() int64 {
	n := int64(runtime.GOMAXPROCS(0)) * 2
	if n < 2 {
		n = 2
	}
	return n
}

func newWorkerPool(capacity int64) *workerPool {
	if capacity <= 0 {
		capacity = defaultPoolCapacity()
	}
	return &workerPool{sem: semaphore.NewWeighted(capacity)}
}

// dispatch runs fn on a pooled goroutine and waits for it to finish or for
// ctx to be cancelled. A panic inside fn is recovered and surfaced as
// ErrInternal rather than crashing the process, mirroring the "Internal —
// unexpected worker-pool failure" error kind from the error design.
func (p *workerPool) dispatch(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer p.sem.Release(1)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: panic in worker: %v", ErrInternal, r)
				return
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}
