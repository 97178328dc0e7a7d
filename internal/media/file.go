package media

import (
	"fmt"
	"io"
	"os"
)

// File is a Source backed by a regular file.
type File struct {
	f        *os.File
	pos      int64
	readOnly bool
}

// OpenFile opens path for reading and writing, falling back to read-only
// access when the file is not writable.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		return &File{f: f}, nil
	}
	f, err = os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{f: f, readOnly: true}, nil
}

// Read implements io.Reader.
func (m *File) Read(p []byte) (int, error) {
	if m.f == nil {
		return 0, ErrClosed
	}
	n, err := m.f.ReadAt(p, m.pos)
	m.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Write implements io.Writer.
func (m *File) Write(p []byte) (int, error) {
	if m.f == nil {
		return 0, ErrClosed
	}
	if m.readOnly {
		return 0, ErrReadOnly
	}
	n, err := m.f.WriteAt(p, m.pos)
	m.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker.
func (m *File) Seek(offset int64, whence int) (int64, error) {
	size, err := m.Size()
	if err != nil {
		return m.pos, err
	}
	abs, err := resolve(m.pos, size, offset, whence)
	if err != nil {
		return m.pos, err
	}
	m.pos = abs
	return abs, nil
}

// Skip moves the offset relative to the current position.
func (m *File) Skip(n int64) (int64, error) {
	return m.Seek(n, io.SeekCurrent)
}

// Position returns the current offset.
func (m *File) Position() int64 {
	return m.pos
}

// Size returns the file size.
func (m *File) Size() (int64, error) {
	if m.f == nil {
		return 0, ErrClosed
	}
	st, err := m.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Truncate cuts the file to size bytes.
func (m *File) Truncate(size int64) error {
	if m.f == nil {
		return ErrClosed
	}
	if m.readOnly {
		return ErrReadOnly
	}
	return m.f.Truncate(size)
}

// Close closes the underlying file.
func (m *File) Close() error {
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}
