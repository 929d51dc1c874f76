//go:build linux

package ringio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// platformReadAt fills buf completely starting at off, looping on short
// reads the way Pread can produce on Linux.
func platformReadAt(file *os.File, buf []byte, off int64) error {
	fd := int(file.Fd())
	read := 0
	for read < len(buf) {
		n, err := unix.Pread(fd, buf[read:], off+int64(read))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("pread: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("pread: unexpected EOF after %d of %d bytes", read, len(buf))
		}
		read += n
	}
	return nil
}

// platformWriteAt writes all of data starting at off, looping on short
// writes the way Pwrite can produce on Linux.
func platformWriteAt(file *os.File, data []byte, off int64) error {
	fd := int(file.Fd())
	written := 0
	for written < len(data) {
		n, err := unix.Pwrite(fd, data[written:], off+int64(written))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("pwrite: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("pwrite: wrote 0 bytes after %d of %d", written, len(data))
		}
		written += n
	}
	return nil
}
