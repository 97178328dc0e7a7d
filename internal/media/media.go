// Package media provides the seekable byte sources that container readers
// parse: regular files, raw optical devices and in-memory images.
package media

import (
	"errors"
	"io"
)

// SectorSize is the logical sector size of SACD media in bytes.
const SectorSize = 2048

var (
	// ErrReadOnly is returned by write operations on read-only sources.
	ErrReadOnly = errors.New("media: source is read-only")

	// ErrClosed is returned when a closed source is used.
	ErrClosed = errors.New("media: source is closed")

	// ErrNegativePosition is returned when a seek would move before the start.
	ErrNegativePosition = errors.New("media: negative position")
)

// Source is a seekable byte stream. Readers parse containers through it and
// the tag commit path writes back through it.
type Source interface {
	io.ReadWriteSeeker
	io.Closer

	// Size returns the current size of the source in bytes.
	Size() (int64, error)

	// Position returns the current read/write offset.
	Position() int64

	// Skip moves the offset by n bytes relative to the current position.
	Skip(n int64) (int64, error)

	// Truncate cuts the source to size bytes.
	Truncate(size int64) error
}

// ReadFull reads exactly len(p) bytes from src. A short read is reported as
// io.ErrUnexpectedEOF, or io.EOF when nothing was read.
func ReadFull(src Source, p []byte) error {
	_, err := io.ReadFull(src, p)
	return err
}

// resolve computes the absolute offset of a seek request.
func resolve(pos, size, offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = pos + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return pos, errors.New("media: invalid whence")
	}
	if abs < 0 {
		return pos, ErrNegativePosition
	}
	return abs, nil
}
