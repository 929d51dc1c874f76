//go:build !linux

package ringio

import (
	"fmt"
	"io"
	"os"
)

// platformReadAt fills buf completely starting at off using os.File's
// ReadAt, which already loops on short reads internally per io.ReaderAt's
// contract.
func platformReadAt(file *os.File, buf []byte, off int64) error {
	_, err := file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read_at: %w", err)
	}
	return nil
}

// platformWriteAt writes all of data starting at off using os.File's
// WriteAt, which already loops on short writes internally.
func platformWriteAt(file *os.File, data []byte, off int64) error {
	_, err := file.WriteAt(data, off)
	if err != nil {
		return fmt.Errorf("write_at: %w", err)
	}
	return nil
}
