package ringio

import (
	"context"
	"testing"
	"time"

	"github.com/neehar-mavuduru/ringest/ringtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_FlushesMultipleIdleTargets(t *testing.T) {
	clock := ringtime.New(2 * time.Millisecond)
	t.Cleanup(clock.Stop)

	reg := NewRegistry(clock)
	targets := make([]*mockTarget, 3)
	for i := range targets {
		targets[i] = newMockTarget()
		InsertTarget[*mockTarget](reg, uint64(i+1), targets[i], NewContextOptions(time.Second, time.Second))
	}

	for i := range targets {
		writer, err := GetWriter[*mockTarget](reg, uint64(i+1))
		require.NoError(t, err)
		require.NoError(t, writer.WriteAt(context.Background(), 0, []byte("idle-payload")))
	}

	j := reg.StartJanitor(50, 20*time.Millisecond)
	t.Cleanup(j.Stop)

	require.Eventually(t, func() bool {
		for i := range targets {
			writes, _ := targets[i].counts()
			if writes == 0 {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestJanitor_SkipsTargetsThatAreNotIdleYet(t *testing.T) {
	clock := ringtime.New(2 * time.Millisecond)
	t.Cleanup(clock.Stop)

	reg := NewRegistry(clock)
	target := newMockTarget()
	InsertTarget[*mockTarget](reg, 1, target, NewContextOptions(time.Second, time.Second))

	writer, err := GetWriter[*mockTarget](reg, 1)
	require.NoError(t, err)
	require.NoError(t, writer.WriteAt(context.Background(), 0, []byte("fresh-payload")))

	// A very high idle threshold means the sweep should never consider this
	// write due for a flush within the test's lifetime.
	j := reg.StartJanitor(10_000, 10*time.Millisecond)
	t.Cleanup(j.Stop)

	time.Sleep(60 * time.Millisecond)

	writes, _ := target.counts()
	assert.Equal(t, 0, writes)
}

func TestJanitor_StopHaltsFurtherSweeps(t *testing.T) {
	clock := ringtime.New(2 * time.Millisecond)
	t.Cleanup(clock.Stop)

	reg := NewRegistry(clock)
	target := newMockTarget()
	InsertTarget[*mockTarget](reg, 1, target, NewContextOptions(time.Second, time.Second))

	j := reg.StartJanitor(0, 10*time.Millisecond)
	j.Stop()

	writer, err := GetWriter[*mockTarget](reg, 1)
	require.NoError(t, err)
	require.NoError(t, writer.WriteAt(context.Background(), 0, []byte("after-stop")))

	time.Sleep(40 * time.Millisecond)

	writes, _ := target.counts()
	assert.Equal(t, 0, writes, "a stopped janitor must not keep sweeping")
}
