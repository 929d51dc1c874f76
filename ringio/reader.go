package ringio

import "context"

// BufferReader is a thin handle delegating to a shared IoContext.
type BufferReader[T IoTarget] struct {
	ctx *IoContext[T]
}

// NewBufferReader wraps ctx in a reader handle.
func NewBufferReader[T IoTarget](ctx *IoContext[T]) *BufferReader[T] {
	return &BufferReader[T]{ctx: ctx}
}

// ReadAt returns the freshest len bytes at offset, reflecting every write
// that has been enqueued or issued so far (read-your-writes).
func (r *BufferReader[T]) ReadAt(ctx context.Context, offset uint64, length int) ([]byte, error) {
	return r.ctx.ReadAt(ctx, offset, length)
}
