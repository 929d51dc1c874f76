package ringio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neehar-mavuduru/ringest/ringtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, target *mockTarget) *IoContext[*mockTarget] {
	t.Helper()
	clock := ringtime.New(2 * time.Millisecond)
	t.Cleanup(clock.Stop)
	opts := NewContextOptions(time.Second, time.Second)
	return newIoContext[*mockTarget](1, target, opts, clock)
}

// S1 — full cycle: write, read back before flush, flush, read back again.
func TestScenario_S1_FullCycle(t *testing.T) {
	target := newMockTarget()
	ctx := newTestContext(t, target)

	msg := []byte("Highload consistency check")
	require.NoError(t, ctx.WriteAt(context.Background(), 0, msg))

	got, err := ctx.ReadAt(context.Background(), 0, len(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	require.NoError(t, ctx.Flush(context.Background()))

	got2, err := ctx.ReadAt(context.Background(), 0, len(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got2)

	assert.True(t, ctx.writeQueue.IsEmpty())
	assert.True(t, ctx.flushingQueue.IsEmpty())
}

// S2 — high concurrency: 20 tasks x 20 ops each writing and reading back
// disjoint 8-byte regions.
func TestScenario_S2_HighConcurrency(t *testing.T) {
	target := newMockTarget()
	ctx := newTestContext(t, target)

	const tasks = 20
	const opsPerTask = 20

	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < opsPerTask; j++ {
				data := []byte(fmt.Sprintf("d%02dt%02dxx", i, j))
				offset := uint64((i*opsPerTask + j) * 8)

				require.NoError(t, ctx.WriteAt(context.Background(), offset, data))
				got, err := ctx.ReadAt(context.Background(), offset, 8)
				require.NoError(t, err)
				assert.Equal(t, data, got)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, ctx.Flush(context.Background()))

	for i := 0; i < tasks; i++ {
		for j := 0; j < opsPerTask; j++ {
			want := []byte(fmt.Sprintf("d%02dt%02dxx", i, j))
			offset := uint64((i*opsPerTask + j) * 8)
			got, err := ctx.ReadAt(context.Background(), offset, 8)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

// S3 — coalescing: 8 sequential 1KiB buffers below the 16KiB trigger merge
// into a single target write on flush.
func TestScenario_S3_Coalescing(t *testing.T) {
	target := newMockTarget()
	ctx := newTestContext(t, target)

	chunk := bytes.Repeat([]byte{0x42}, 1024)
	for i := 0; i < 8; i++ {
		require.NoError(t, ctx.WriteAt(context.Background(), uint64(i*1024), chunk))
	}

	require.NoError(t, ctx.Flush(context.Background()))

	writes, _ := target.counts()
	assert.Equal(t, 1, writes)
	require.Len(t, target.writeLens, 1)
	assert.Equal(t, 8*1024, target.writeLens[0])
}

// S4 — read-merge with overlap against a pre-seeded disk image.
func TestScenario_S4_ReadMergeWithOverlap(t *testing.T) {
	target := newMockTarget()
	target.seed(0, bytes.Repeat([]byte{0xFF}, 100))

	ctx := newTestContext(t, target)

	require.NoError(t, ctx.WriteAt(context.Background(), 10, bytes.Repeat([]byte{0xAA}, 20)))
	require.NoError(t, ctx.WriteAt(context.Background(), 40, bytes.Repeat([]byte{0xBB}, 10)))

	got, err := ctx.ReadAt(context.Background(), 0, 100)
	require.NoError(t, err)

	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 10), got[0:10])
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 20), got[10:30])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 10), got[30:40])
	assert.Equal(t, bytes.Repeat([]byte{0xBB}, 10), got[40:50])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 50), got[50:100])
}

// S5 — timeout: a hanging target forces the direct path to fail within the
// configured write_timeout.
func TestScenario_S5_Timeout(t *testing.T) {
	target := newMockTarget()
	target.hang = true

	clock := ringtime.New(2 * time.Millisecond)
	t.Cleanup(clock.Stop)
	opts := NewContextOptions(50*time.Millisecond, 50*time.Millisecond)
	ctx := newIoContext[*mockTarget](1, target, opts, clock)

	payload := bytes.Repeat([]byte{0x01}, 4096) // >= cutoff, avg latency 0 -> direct path

	start := time.Now()
	err := ctx.WriteAt(context.Background(), 0, payload)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, elapsed, 500*time.Millisecond)
}

// S6 — janitor: an idle buffered write is flushed automatically.
func TestScenario_S6_Janitor(t *testing.T) {
	clock := ringtime.New(2 * time.Millisecond)
	t.Cleanup(clock.Stop)

	target := newMockTarget()
	reg := NewRegistry(clock)
	InsertTarget[*mockTarget](reg, 1, target, NewContextOptions(time.Second, time.Second))

	writer, err := GetWriter[*mockTarget](reg, 1)
	require.NoError(t, err)

	require.NoError(t, writer.WriteAt(context.Background(), 0, bytes.Repeat([]byte{0x09}, 1024)))

	j := reg.StartJanitor(100, 20*time.Millisecond)
	t.Cleanup(j.Stop)

	require.Eventually(t, func() bool {
		ctx, err := lookupTyped[*mockTarget](reg, 1)
		if err != nil {
			return false
		}
		return ctx.LastOutMS() > 0 && ctx.writeQueue.IsEmpty()
	}, time.Second, 10*time.Millisecond)
}

func TestWriteQueue_TallyInvariant(t *testing.T) {
	var q WriteQueue
	q.Push(PendingWrite{Offset: 0, Data: []byte("abc")})
	q.Push(PendingWrite{Offset: 3, Data: []byte("de")})

	assert.Equal(t, uint64(5), q.TotalBytes())
	assert.Equal(t, 2, q.Len())

	q.Clear()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, uint64(0), q.TotalBytes())
}

func TestFlush_PreservesContentAfterward(t *testing.T) {
	target := newMockTarget()
	ctx := newTestContext(t, target)

	require.NoError(t, ctx.WriteAt(context.Background(), 0, []byte("abcdef")))
	require.NoError(t, ctx.Flush(context.Background()))

	before := target.snapshot()

	got, err := ctx.ReadAt(context.Background(), 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), got)
	assert.Equal(t, before[:6], got)
}

func TestFlush_ErrorLeavesFlushingQueuePopulated(t *testing.T) {
	target := &failingTarget{}
	clock := ringtime.New(2 * time.Millisecond)
	t.Cleanup(clock.Stop)
	ctx := newIoContext[*failingTarget](1, target, NewContextOptions(time.Second, time.Second), clock)

	require.NoError(t, ctx.WriteAt(context.Background(), 0, []byte("short")))

	err := ctx.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTargetIO))
	assert.False(t, ctx.flushingQueue.IsEmpty())
}

func TestReadAt_ExactMatchShortCircuitsWithoutDiskRead(t *testing.T) {
	target := newMockTarget()
	ctx := newTestContext(t, target)

	data := []byte("exact-match-bytes")
	require.NoError(t, ctx.WriteAt(context.Background(), 5, data))

	_, reads := target.counts()
	assert.Equal(t, 0, reads)

	got, err := ctx.ReadAt(context.Background(), 5, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, reads = target.counts()
	assert.Equal(t, 0, reads, "exact match should avoid a disk read")
}

func TestWriteAt_RoutingPredicate(t *testing.T) {
	target := newMockTarget()
	ctx := newTestContext(t, target)

	// Small write always buffers, regardless of latency.
	require.NoError(t, ctx.WriteAt(context.Background(), 0, []byte("x")))
	assert.Equal(t, 1, ctx.writeQueue.Len())

	// Large write with cold (zero) EMA takes the direct path.
	large := bytes.Repeat([]byte{0x02}, ctx.opts.SmallWriteCutoff)
	require.NoError(t, ctx.WriteAt(context.Background(), 100, large))
	writes, _ := target.counts()
	assert.Equal(t, 1, writes)
}
