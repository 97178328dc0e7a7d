package dsdiff

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/media"
)

// chunkHeaderSize is the size of a chunk id plus its 64-bit length.
const chunkHeaderSize = 12

type chunk struct {
	id   string
	size uint64
}

// padded returns the size rounded up to even, the on-disk extent of the body.
func (c chunk) padded() int64 {
	return int64(c.size + c.size&1)
}

func readChunk(src media.Source) (chunk, error) {
	var b [chunkHeaderSize]byte
	if err := media.ReadFull(src, b[:]); err != nil {
		return chunk{}, err
	}
	return chunk{id: string(b[:4]), size: binary.BigEndian.Uint64(b[4:])}, nil
}

func writeChunkHeader(src media.Source, id string, size uint64) error {
	var b [chunkHeaderSize]byte
	copy(b[:4], id)
	binary.BigEndian.PutUint64(b[4:], size)
	_, err := src.Write(b[:])
	return err
}

func readID(src media.Source) (string, error) {
	var b [4]byte
	if err := media.ReadFull(src, b[:]); err != nil {
		return "", err
	}
	return string(b[:]), nil
}

func readU16(src media.Source) (uint16, error) {
	var b [2]byte
	if err := media.ReadFull(src, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(src media.Source) (uint32, error) {
	var b [4]byte
	if err := media.ReadFull(src, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// skipTo moves to an absolute offset.
func skipTo(src media.Source, pos int64) error {
	if _, err := src.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	return nil
}

// marker is a DIIN/MARK record.
type marker struct {
	hours    uint16
	minutes  uint8
	seconds  uint8
	samples  uint32
	offset   int32
	markType uint16
}

const (
	markerSize = 22

	markTrackStart = 0
	markTrackStop  = 1
)

func parseMarker(b []byte) marker {
	be := binary.BigEndian
	return marker{
		hours:    be.Uint16(b[0:]),
		minutes:  b[2],
		seconds:  b[3],
		samples:  be.Uint32(b[4:]),
		offset:   int32(be.Uint32(b[8:])),
		markType: be.Uint16(b[12:]),
	}
}

// time returns the marker position in seconds from the start of the file.
func (m marker) time(samplerate int) float64 {
	return float64(m.hours)*3600 + float64(m.minutes)*60 + float64(m.seconds) +
		(float64(m.samples)+float64(m.offset))/float64(samplerate)
}
