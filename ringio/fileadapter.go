package ringio

import (
	"context"
	"fmt"
	"os"
)

// PositionalFileAdapter adapts an *os.File to IoTarget by dispatching
// blocking positional reads/writes onto a worker pool so callers never
// block on the syscall directly. The platform-specific read/write
// implementations (pread/pwrite on Linux, ReadAt/WriteAt elsewhere) live in
// fileadapter_linux.go and fileadapter_default.go.
type PositionalFileAdapter struct {
	file *os.File
	pool *workerPool
}

// NewPositionalFileAdapter wraps file. poolCapacity bounds how many
// positional syscalls may be in flight at once; 0 selects a default sized
// off GOMAXPROCS.
func NewPositionalFileAdapter(file *os.File, poolCapacity int64) *PositionalFileAdapter {
	return &PositionalFileAdapter{
		file: file,
		pool: newWorkerPool(poolCapacity),
	}
}

// ReadAt implements IoTarget.
func (a *PositionalFileAdapter) ReadAt(ctx context.Context, offset uint64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}

	buf := make([]byte, length)
	err := a.pool.dispatch(ctx, func() error {
		return platformReadAt(a.file, buf, int64(offset))
	})
	if err != nil {
		return nil, wrapTargetErr(err)
	}
	return buf, nil
}

// WriteAt implements IoTarget.
func (a *PositionalFileAdapter) WriteAt(ctx context.Context, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	err := a.pool.dispatch(ctx, func() error {
		return platformWriteAt(a.file, data, int64(offset))
	})
	if err != nil {
		return wrapTargetErr(err)
	}
	return nil
}

// Close closes the underlying file.
func (a *PositionalFileAdapter) Close() error {
	return a.file.Close()
}

// wrapTargetErr leaves ErrTimeout/ErrInternal (already tagged by the
// worker pool) alone and wraps anything else as target I/O failure.
func wrapTargetErr(err error) error {
	if err == nil {
		return nil
	}
	if isTaggedRingError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTargetIO, err)
}
