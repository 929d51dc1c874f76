// Package ringio is the buffered positional I/O layer: a per-target write
// coalescing buffer, a read-through merge giving callers read-your-writes,
// an adaptive buffered/direct write router, and a janitor that flushes
// buffers left idle too long.
package ringio

import "context"

// IoTarget is the capability the core consumes: positional read/write of
// byte ranges on some backing store. Implementations must be safe to call
// concurrently for non-overlapping ranges and must not block the calling
// goroutine on a syscall for longer than necessary — blocking work belongs
// on a worker pool (see PositionalFileAdapter).
type IoTarget interface {
	// ReadAt returns exactly len bytes starting at offset, or fails.
	// Implementations must loop internally if the backing API can short-read.
	ReadAt(ctx context.Context, offset uint64, length int) ([]byte, error)

	// WriteAt writes all of data at offset, or fails. Implementations must
	// loop internally if the backing API can short-write.
	WriteAt(ctx context.Context, offset uint64, data []byte) error
}
