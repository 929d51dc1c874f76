package ringio

import (
	"context"
	"runtime"
)

// BufferWriter is a thin handle delegating to a shared IoContext. Multiple
// writer handles may share one context; none of them owns it exclusively.
type BufferWriter[T IoTarget] struct {
	ctx *IoContext[T]
}

// NewBufferWriter wraps ctx in a writer handle.
func NewBufferWriter[T IoTarget](ctx *IoContext[T]) *BufferWriter[T] {
	w := &BufferWriter[T]{ctx: ctx}
	// Best-effort flush-on-drop: convenience only, not a durability
	// guarantee. Callers needing durability must call Shutdown and check
	// its error themselves.
	runtime.SetFinalizer(w, func(w *BufferWriter[T]) {
		go func() {
			_ = w.ctx.Flush(context.Background())
		}()
	})
	return w
}

// WriteAt buffers or issues the write per the context's adaptive policy.
func (w *BufferWriter[T]) WriteAt(ctx context.Context, offset uint64, data []byte) error {
	return w.ctx.WriteAt(ctx, offset, data)
}

// Flush drains and issues all pending writes, blocking until they land (or
// fail) on the target.
func (w *BufferWriter[T]) Flush(ctx context.Context) error {
	return w.ctx.Flush(ctx)
}

// Shutdown flushes pending writes and releases the finalizer; it is the
// explicit, awaited alternative to relying on drop-time flush.
func (w *BufferWriter[T]) Shutdown(ctx context.Context) error {
	runtime.SetFinalizer(w, nil)
	return w.ctx.Flush(ctx)
}

// AddFlushObserver registers o on the shared context, to be notified after
// each successful flush.
func (w *BufferWriter[T]) AddFlushObserver(o FlushObserver) {
	w.ctx.AddFlushObserver(o)
}

// Metrics returns the shared context's latency/ops counters.
func (w *BufferWriter[T]) Metrics() *Metrics {
	return w.ctx.Metrics()
}

// LastOutMS returns the millisecond timestamp of the context's last
// completed flush, or 0 if it has never flushed.
func (w *BufferWriter[T]) LastOutMS() int64 {
	return w.ctx.LastOutMS()
}
