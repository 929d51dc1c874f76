package ringio

// PendingWrite is a write accepted by the buffer but not yet issued to the
// target. The payload is treated as immutable once pushed onto a queue; it
// is shared, never mutated, by every reader that overlays it.
type PendingWrite struct {
	Offset uint64
	Data   []byte
}

// end returns the exclusive end of the range this write covers.
func (p PendingWrite) end() uint64 {
	return p.Offset + uint64(len(p.Data))
}

// overlaps reports whether p's range intersects [start, end).
func (p PendingWrite) overlaps(start, end uint64) bool {
	return p.Offset < end && p.end() > start
}

// WriteQueue is an ordered collection of pending writes plus a running byte
// tally. Ordering is strictly insertion order until a flush sorts a
// snapshot of it; WriteQueue itself never sorts or merges.
type WriteQueue struct {
	writes     []PendingWrite
	totalBytes uint64
}

// Push appends op and updates the byte tally.
func (q *WriteQueue) Push(op PendingWrite) {
	q.writes = append(q.writes, op)
	q.totalBytes += uint64(len(op.Data))
}

// Clear empties the queue and resets the tally.
func (q *WriteQueue) Clear() {
	q.writes = nil
	q.totalBytes = 0
}

// Len returns the number of pending writes.
func (q *WriteQueue) Len() int {
	return len(q.writes)
}

// IsEmpty reports whether the queue holds no writes.
func (q *WriteQueue) IsEmpty() bool {
	return len(q.writes) == 0
}

// TotalBytes returns the sum of buffered payload lengths.
func (q *WriteQueue) TotalBytes() uint64 {
	return q.totalBytes
}

// Writes returns the queue's writes in insertion order. The returned slice
// aliases the queue's backing array and must be treated as read-only by the
// caller — it is used to produce snapshots under a reader lock.
func (q *WriteQueue) Writes() []PendingWrite {
	return q.writes
}

// take atomically empties the queue and returns what it held, leaving the
// receiver empty and zero-tallied. Used exclusively by flush, which owns
// the write lock on the queue while calling this.
func (q *WriteQueue) take() WriteQueue {
	taken := WriteQueue{writes: q.writes, totalBytes: q.totalBytes}
	q.writes = nil
	q.totalBytes = 0
	return taken
}

// replace overwrites the queue's contents wholesale. Used by flush to
// repopulate flushingQueue from the just-taken pending queue.
func (q *WriteQueue) replace(with WriteQueue) {
	q.writes = with.writes
	q.totalBytes = with.totalBytes
}

// findExact returns the most recently pushed write matching (offset, length)
// exactly, scanning newest to oldest, or false if none matches.
func (q *WriteQueue) findExact(offset uint64, length int) (PendingWrite, bool) {
	for i := len(q.writes) - 1; i >= 0; i-- {
		w := q.writes[i]
		if w.Offset == offset && len(w.Data) == length {
			return w, true
		}
	}
	return PendingWrite{}, false
}

// collectOverlapping appends every write overlapping [start, end) to dst, in
// the queue's insertion order.
func (q *WriteQueue) collectOverlapping(start, end uint64, dst []PendingWrite) []PendingWrite {
	for _, w := range q.writes {
		if w.overlaps(start, end) {
			dst = append(dst, w)
		}
	}
	return dst
}
