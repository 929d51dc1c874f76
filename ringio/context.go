package ringio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/neehar-mavuduru/ringest/ringtime"
)

// FlushObserver is notified, best-effort and after the flush mutex has been
// released, whenever a flush completes successfully. ranges holds the
// coalesced runs that were just issued to the target, in the order they
// were written. Observers must not block for long; they run synchronously
// on the goroutine that triggered the flush.
type FlushObserver interface {
	OnFlush(id uint64, ranges []PendingWrite)
}

// IoContext is the per-target core: the target handle, its metrics, a
// pending write_queue, a flushing_queue that shadows the set being drained,
// and the flush mutex serializing flush with the read-merge path. It owns
// the buffer/flush/read-merge protocols described in the package doc.
type IoContext[T IoTarget] struct {
	id     uint64
	target T
	clock  *ringtime.Cache
	opts   ContextOptions

	metrics Metrics

	writeMu    sync.RWMutex
	writeQueue WriteQueue

	flushingMu    sync.RWMutex
	flushingQueue WriteQueue

	flushMu sync.Mutex

	observersMu sync.Mutex
	observers   []FlushObserver
}

// newIoContext constructs a context with the given options, defaulting any
// zero fields per the spec's configuration table.
func newIoContext[T IoTarget](id uint64, target T, opts ContextOptions, clock *ringtime.Cache) *IoContext[T] {
	opts.applyDefaults()
	return &IoContext[T]{
		id:     id,
		target: target,
		clock:  clock,
		opts:   opts,
	}
}

// AddFlushObserver registers an observer to be notified on future flush
// completions.
func (c *IoContext[T]) AddFlushObserver(o FlushObserver) {
	c.observersMu.Lock()
	c.observers = append(c.observers, o)
	c.observersMu.Unlock()
}

// Metrics exposes the context's metrics snapshot for callers (e.g. the
// janitor, diagnostics) that need last-in/last-out or EMA values.
func (c *IoContext[T]) Metrics() *Metrics {
	return &c.metrics
}

// LastInMS and LastOutMS satisfy the janitor's type-erased flusher interface.
func (c *IoContext[T]) LastInMS() int64  { return c.metrics.LastInMS.Load() }
func (c *IoContext[T]) LastOutMS() int64 { return c.metrics.LastOutMS.Load() }

// WriteAt implements the write path: stamp last_in, route buffered or
// direct based on the EMA/threshold/size predicate, and either enqueue (and
// maybe trigger a flush) or issue the write to the target directly under a
// timeout.
func (c *IoContext[T]) WriteAt(ctx context.Context, offset uint64, data []byte) error {
	c.metrics.LastInMS.Store(c.clock.NowMillis())
	c.metrics.TotalOps.Add(1)

	avgUS := c.metrics.AvgWriteLatencyUS.Load()
	buffered := avgUS > c.opts.ThresholdNS || len(data) < c.opts.SmallWriteCutoff

	if buffered {
		owned := append([]byte(nil), data...)

		c.writeMu.Lock()
		c.writeQueue.Push(PendingWrite{Offset: offset, Data: owned})
		overTrigger := c.writeQueue.TotalBytes() > c.opts.FlushTriggerBytes
		c.writeMu.Unlock()

		if overTrigger {
			return c.Flush(ctx)
		}
		return nil
	}

	_, err := runTimed(ctx, c.opts.WriteTimeout, &c.metrics.AvgWriteLatencyUS, func(tctx context.Context) (struct{}, error) {
		return struct{}{}, c.target.WriteAt(tctx, offset, data)
	})
	return err
}

// Flush is serialized by the flush mutex. It swaps the pending queue out,
// prepends whatever an earlier failed flush left in the flushing queue,
// mirrors the result into the flushing queue, sorts by offset, greedily
// merges adjacent runs, and issues one target write per run, shrinking the
// flushing queue as each run lands so a failure mid-flush leaves only the
// unflushed remainder behind for the next flush cycle to reissue.
func (c *IoContext[T]) Flush(ctx context.Context) error {
	c.flushMu.Lock()

	c.flushingMu.RLock()
	leftover := c.flushingQueue.writes
	c.flushingMu.RUnlock()

	c.writeMu.Lock()
	if c.writeQueue.IsEmpty() && len(leftover) == 0 {
		c.writeMu.Unlock()
		c.flushMu.Unlock()
		return nil
	}
	taken := c.writeQueue.take()
	c.writeMu.Unlock()

	if len(leftover) > 0 {
		var combined WriteQueue
		for _, w := range append(append([]PendingWrite(nil), leftover...), taken.writes...) {
			combined.Push(w)
		}
		taken = combined
	}

	c.flushingMu.Lock()
	c.flushingQueue.replace(taken)
	c.flushingMu.Unlock()

	type indexed struct {
		PendingWrite
		orig int
	}
	sorted := make([]indexed, len(taken.writes))
	for i, w := range taken.writes {
		sorted[i] = indexed{PendingWrite: w, orig: i}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	done := make([]bool, len(taken.writes))
	shrinkFlushingQueue := func() {
		remaining := make([]PendingWrite, 0, len(taken.writes))
		var tb uint64
		for i, w := range taken.writes {
			if !done[i] {
				remaining = append(remaining, w)
				tb += uint64(len(w.Data))
			}
		}
		c.flushingMu.Lock()
		c.flushingQueue.writes = remaining
		c.flushingQueue.totalBytes = tb
		c.flushingMu.Unlock()
	}

	var mergedRuns []PendingWrite

	i := 0
	for i < len(sorted) {
		run := append([]byte(nil), sorted[i].Data...)
		start := sorted[i].Offset
		origIdxs := []int{sorted[i].orig}

		j := i + 1
		for j < len(sorted) && start+uint64(len(run)) == sorted[j].Offset {
			run = append(run, sorted[j].Data...)
			origIdxs = append(origIdxs, sorted[j].orig)
			j++
		}

		if err := c.target.WriteAt(ctx, start, run); err != nil {
			c.flushMu.Unlock()
			return wrapTargetErr(err)
		}

		for _, oi := range origIdxs {
			done[oi] = true
		}
		shrinkFlushingQueue()
		mergedRuns = append(mergedRuns, PendingWrite{Offset: start, Data: run})

		i = j
	}

	c.metrics.LastOutMS.Store(c.clock.NowMillis())
	c.flushMu.Unlock()

	c.notifyObservers(mergedRuns)
	return nil
}

func (c *IoContext[T]) notifyObservers(ranges []PendingWrite) {
	if len(ranges) == 0 {
		return
	}
	c.observersMu.Lock()
	observers := append([]FlushObserver(nil), c.observers...)
	c.observersMu.Unlock()

	for _, o := range observers {
		o.OnFlush(c.id, ranges)
	}
}

// ReadAt implements the read path: an exact-match short-circuit against
// both queues (newest write wins), then a flush-mutex-guarded merge of a
// fresh disk read with every pending/flushing patch overlapping the range.
func (c *IoContext[T]) ReadAt(ctx context.Context, offset uint64, length int) ([]byte, error) {
	c.metrics.TotalOps.Add(1)
	if length <= 0 {
		return []byte{}, nil
	}
	readEnd := offset + uint64(length)

	c.writeMu.RLock()
	if w, ok := c.writeQueue.findExact(offset, length); ok {
		c.writeMu.RUnlock()
		return append([]byte(nil), w.Data...), nil
	}
	c.writeMu.RUnlock()

	c.flushingMu.RLock()
	if w, ok := c.flushingQueue.findExact(offset, length); ok {
		c.flushingMu.RUnlock()
		return append([]byte(nil), w.Data...), nil
	}
	c.flushingMu.RUnlock()

	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	disk, err := runTimed(ctx, c.opts.ReadTimeout, &c.metrics.AvgReadLatencyUS, func(tctx context.Context) ([]byte, error) {
		return c.target.ReadAt(tctx, offset, length)
	})
	if err != nil {
		return nil, err
	}

	var patches []PendingWrite
	c.flushingMu.RLock()
	patches = c.flushingQueue.collectOverlapping(offset, readEnd, patches)
	c.flushingMu.RUnlock()

	c.writeMu.RLock()
	patches = c.writeQueue.collectOverlapping(offset, readEnd, patches)
	c.writeMu.RUnlock()

	buf := append([]byte(nil), disk...)
	if uint64(len(buf)) != uint64(length) {
		return nil, fmt.Errorf("%w: target returned %d bytes, wanted %d", ErrTargetIO, len(buf), length)
	}

	for _, p := range patches {
		overlayPatch(buf, offset, readEnd, p)
	}
	return buf, nil
}

// overlayPatch copies the portion of patch intersecting [offset, readEnd)
// onto buf, which represents that exact range. Later calls for
// intersecting patches overwrite earlier ones, so callers must apply
// patches oldest-to-newest within a queue and flushing-queue-before-
// write-queue across queues.
func overlayPatch(buf []byte, offset, readEnd uint64, patch PendingWrite) {
	pStart := patch.Offset
	pEnd := patch.end()
	if pStart >= readEnd || pEnd <= offset {
		return
	}

	startInBuf := uint64(0)
	if pStart > offset {
		startInBuf = pStart - offset
	}
	endInBuf := readEnd - offset
	if pEnd < readEnd {
		endInBuf = pEnd - offset
	}

	startInPatch := uint64(0)
	if pStart < offset {
		startInPatch = offset - pStart
	}

	n := endInBuf - startInBuf
	copy(buf[startInBuf:startInBuf+n], patch.Data[startInPatch:startInPatch+n])
}
