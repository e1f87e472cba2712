package writerutils

import (
	"errors"
	"io"
	"os"
)

// SafeFile wraps an os.File and syncs it to disk before closing.
type SafeFile struct {
	f *os.File
}

// NewSafeFileWriter returns a writer that flushes to disk on Close.
func NewSafeFileWriter(f *os.File) io.WriteCloser {
	return &SafeFile{f: f}
}

func (s *SafeFile) Write(p []byte) (n int, err error) {
	return s.f.Write(p)
}

func (s *SafeFile) Close() error {
	return errors.Join(
		s.f.Sync(),
		s.f.Close(),
	)
}
