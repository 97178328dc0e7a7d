package media

import (
	"fmt"
	"io"
	"os"
)

// Device is a read-only Source over a raw optical drive. The drive only
// accepts whole-sector transfers, so every read is widened to sector
// boundaries and the requested span is copied out.
type Device struct {
	r      io.ReaderAt
	closer io.Closer
	size   int64
	pos    int64
	block  []byte
}

// OpenDevice opens a raw device node such as /dev/sr0.
func OpenDevice(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", path, err)
	}
	// Block devices report a zero size from Stat.
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("size of device %s: %w", path, err)
	}
	d := NewDevice(f, size)
	d.closer = f
	return d, nil
}

// NewDevice wraps r, which must only be accessed in whole sectors.
func NewDevice(r io.ReaderAt, size int64) *Device {
	return &Device{r: r, size: size}
}

// Read implements io.Reader with sector-aligned transfers.
func (d *Device) Read(p []byte) (int, error) {
	if d.r == nil {
		return 0, ErrClosed
	}
	if d.pos >= d.size {
		return 0, io.EOF
	}
	if remaining := d.size - d.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	start := d.pos &^ (SectorSize - 1)
	end := (d.pos + int64(len(p)) + SectorSize - 1) &^ (SectorSize - 1)
	if need := int(end - start); cap(d.block) < need {
		d.block = make([]byte, need)
	}
	block := d.block[:end-start]
	n, err := d.r.ReadAt(block, start)
	if err != nil && err != io.EOF {
		return 0, err
	}
	skip := int(d.pos - start)
	if n <= skip {
		return 0, io.ErrUnexpectedEOF
	}
	copied := copy(p, block[skip:n])
	d.pos += int64(copied)
	return copied, nil
}

// Write always fails.
func (d *Device) Write([]byte) (int, error) {
	return 0, ErrReadOnly
}

// Seek implements io.Seeker. Positions need not be aligned.
func (d *Device) Seek(offset int64, whence int) (int64, error) {
	abs, err := resolve(d.pos, d.size, offset, whence)
	if err != nil {
		return d.pos, err
	}
	d.pos = abs
	return abs, nil
}

// Skip moves the offset relative to the current position.
func (d *Device) Skip(n int64) (int64, error) {
	return d.Seek(n, io.SeekCurrent)
}

// Position returns the current offset.
func (d *Device) Position() int64 {
	return d.pos
}

// Size returns the device capacity in bytes.
func (d *Device) Size() (int64, error) {
	return d.size, nil
}

// Truncate always fails.
func (d *Device) Truncate(int64) error {
	return ErrReadOnly
}

// Close releases the device handle.
func (d *Device) Close() error {
	d.r = nil
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}
