package fetch

import (
	"os"
	"path/filepath"
)

// scratch is a temporary file created next to its destination. It is
// removed by Release on every exit path unless Promote moved it onto the
// destination first. Creating it in the destination's directory keeps the
// final rename on one filesystem.
type scratch struct {
	file     *os.File
	path     string
	closed   bool
	promoted bool
}

// newScratch creates a scratch file in the directory of dest, creating the
// directory if needed. The file is readable by everyone once promoted, like
// any other file in the mirror.
func newScratch(dest string) (*scratch, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, err
	}
	s := &scratch{file: f, path: f.Name()}
	if err := f.Chmod(0o644); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// Write appends p to the scratch file.
func (s *scratch) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// Close flushes the scratch file to stable storage and closes it.
// Calling Close more than once is a no-op.
func (s *scratch) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// Promote closes the scratch file and renames it onto dest, replacing any
// file already there in one filesystem operation.
func (s *scratch) Promote(dest string) error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Rename(s.path, dest); err != nil {
		return err
	}
	s.promoted = true
	return nil
}

// Release discards the scratch file unless it was promoted.
func (s *scratch) Release() {
	if s.promoted {
		return
	}
	if !s.closed {
		s.closed = true
		s.file.Close()
	}
	os.Remove(s.path)
}
