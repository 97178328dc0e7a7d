package sacd

import (
	"fmt"
	"io"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/container/dsdiff"
	"github.com/tphakala/go-sacd/internal/container/dsf"
	"github.com/tphakala/go-sacd/internal/media"
)

// maxDSDMultiple is the largest DSD rate SetSampleRate writes, DSD1024.
const maxDSDMultiple = 1024

// SetSampleRate rewrites the DSD rate recorded in a DSF or DSDIFF file, for
// files whose header was written with the wrong rate. The rate must be a
// power of two multiple of 2.8224 MHz. It reports whether the file changed.
func SetSampleRate(path string, rate int) (bool, error) {
	mult := rate / Rate44k1
	if rate <= 0 || rate%container.SampleRate64 != 0 || mult > maxDSDMultiple || mult&(mult-1) != 0 {
		return false, fmt.Errorf("%w: DSD rate %d", ErrInvalidConfig, rate)
	}

	f, err := media.OpenFile(path)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 16)
	n, _ := io.ReadFull(f, head)
	head = head[:n]

	switch {
	case dsf.Probe(head):
		return dsf.SetSampleRate(f, rate)
	case dsdiff.Probe(head):
		return dsdiff.SetSampleRate(f, rate)
	default:
		return false, fmt.Errorf("%w: sample rate of %s cannot be changed", ErrNotSupported, path)
	}
}
