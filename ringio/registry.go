package ringio

import (
	"context"
	"sync"
	"time"

	"github.com/neehar-mavuduru/ringest/ringtime"
)

// flusher is the type-erased entry point the janitor uses to flush a
// context without knowing its target type, resolving the open question of
// how a heterogeneous registry flushes contexts of different target types.
type flusher interface {
	Flush(ctx context.Context) error
	LastInMS() int64
	LastOutMS() int64
}

// registryEntry pairs the type-erased flusher view with the concrete
// context stored as any, so GetWriter/GetReader can recover a typed handle
// with a single type assertion (Go's stand-in for the source's
// downcast::<IoContext<T>>).
type registryEntry struct {
	ctx     any
	flusher flusher
}

// Registry maps a numeric target id to an IoContext, with the concrete
// target type erased. A lookup that knows the expected target type
// recovers a typed handle; a lookup that doesn't (the janitor) still gets a
// flush entry point.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint64]registryEntry
	clock   *ringtime.Cache
}

// NewRegistry creates an empty registry backed by clock for idleness
// timestamps. Callers own clock's lifetime (Stop it when the registry is no
// longer needed).
func NewRegistry(clock *ringtime.Cache) *Registry {
	return &Registry{
		entries: make(map[uint64]registryEntry),
		clock:   clock,
	}
}

// InsertTarget constructs an IoContext for target under id, replacing any
// prior entry for id atomically. It is a free function, not a method,
// because Go methods cannot introduce their own type parameters.
func InsertTarget[T IoTarget](r *Registry, id uint64, target T, opts ContextOptions) {
	ctx := newIoContext[T](id, target, opts, r.clock)

	r.mu.Lock()
	r.entries[id] = registryEntry{ctx: ctx, flusher: ctx}
	r.mu.Unlock()
}

// GetWriter looks up id and, if its stored context holds a target of type
// T, returns a writer handle sharing that context.
func GetWriter[T IoTarget](r *Registry, id uint64) (*BufferWriter[T], error) {
	ctx, err := lookupTyped[T](r, id)
	if err != nil {
		return nil, err
	}
	return NewBufferWriter(ctx), nil
}

// GetReader looks up id and, if its stored context holds a target of type
// T, returns a reader handle sharing that context.
func GetReader[T IoTarget](r *Registry, id uint64) (*BufferReader[T], error) {
	ctx, err := lookupTyped[T](r, id)
	if err != nil {
		return nil, err
	}
	return NewBufferReader(ctx), nil
}

func lookupTyped[T IoTarget](r *Registry, id uint64) (*IoContext[T], error) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotRegistered
	}

	ctx, ok := entry.ctx.(*IoContext[T])
	if !ok {
		return nil, ErrTypeMismatch
	}
	return ctx, nil
}

// Remove drops the registry's reference to id. Outstanding handles created
// before the call keep the context alive until they themselves are
// dropped.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// StartJanitor starts and returns a Janitor that flushes idle contexts
// every interval.
func (r *Registry) StartJanitor(thresholdMS int64, interval time.Duration) *Janitor {
	return startJanitor(r, thresholdMS, interval)
}

// snapshot returns the current flushers, used by the janitor each tick.
func (r *Registry) snapshot() []flusher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]flusher, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.flusher)
	}
	return out
}
