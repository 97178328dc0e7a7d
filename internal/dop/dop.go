// Package dop packs DSD into PCM frames following the DSD over PCM
// convention: every 24-bit sample carries a marker byte and 16 DSD bits of
// one channel. The marker alternates between 0x05 and 0xFA from one sample
// frame to the next.
package dop

import (
	"errors"
	"fmt"
)

const (
	// MarkerA and MarkerB are the alternating DoP marker bytes.
	MarkerA = 0x05
	MarkerB = 0xFA

	// BitDepth is the PCM sample width that carries DoP.
	BitDepth = 24

	bytesPerSample = 2
	dsdBitsPerPCM  = 16
)

var (
	// ErrNoMarker indicates PCM samples that are not DoP.
	ErrNoMarker = errors.New("dop: missing marker")

	// ErrChannels indicates a channel count below one.
	ErrChannels = errors.New("dop: invalid channel count")
)

// Rate returns the PCM sample rate that carries a DSD stream of dsdRate.
func Rate(dsdRate int) int {
	return dsdRate / dsdBitsPerPCM
}

// Packer turns interleaved DSD bytes (one byte per channel in turn, oldest
// bit first) into interleaved 24-bit DoP samples. The marker phase and an
// odd trailing byte per channel carry over between calls.
type Packer struct {
	channels int
	phase    bool
	pending  []byte
	held     bool
}

// NewPacker returns a packer for the given channel count.
func NewPacker(channels int) (*Packer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrChannels, channels)
	}
	return &Packer{channels: channels, pending: make([]byte, channels)}, nil
}

// Channels returns the channel count.
func (p *Packer) Channels() int { return p.channels }

// OutputSize returns the number of samples Pack writes at most for n bytes.
func (p *Packer) OutputSize(n int) int {
	return (n/p.channels/bytesPerSample + 1) * p.channels
}

// Pack converts dsd and writes DoP samples to out, which must hold
// OutputSize(len(dsd)) samples. It returns the number of samples per channel.
// Samples are sign-extended 24-bit values.
func (p *Packer) Pack(dsd []byte, out []int) int {
	ch := p.channels
	frames := len(dsd) / ch
	n := 0

	i := 0
	if p.held && frames > 0 {
		p.write(out, p.pending, dsd[:ch])
		n++
		i = 1
		p.held = false
	}
	for ; i+1 < frames; i += bytesPerSample {
		p.write(out[n*ch:], dsd[i*ch:(i+1)*ch], dsd[(i+1)*ch:(i+2)*ch])
		n++
	}
	if i < frames {
		copy(p.pending, dsd[i*ch:(i+1)*ch])
		p.held = true
	}
	return n
}

func (p *Packer) write(out []int, first, second []byte) {
	marker := MarkerA
	if p.phase {
		marker = MarkerB
	}
	p.phase = !p.phase

	for c := range p.channels {
		word := uint32(marker)<<16 | uint32(first[c])<<8 | uint32(second[c])
		out[c] = int(int32(word<<8) >> 8)
	}
}

// Reset drops a held byte and restarts the marker sequence.
func (p *Packer) Reset() {
	p.phase = false
	p.held = false
}

// Unpack reverses Pack. It returns the DSD bytes written to dsd, which must
// hold len(samples) / channels * 2 * channels bytes, and ErrNoMarker at the
// first sample whose marker is not a DoP marker.
func Unpack(samples []int, channels int, dsd []byte) (int, error) {
	if channels < 1 {
		return 0, fmt.Errorf("%w: %d", ErrChannels, channels)
	}
	frames := len(samples) / channels
	for f := range frames {
		for c := range channels {
			v := uint32(samples[f*channels+c]) & 0xffffff
			if m := v >> 16; m != MarkerA && m != MarkerB {
				return f * bytesPerSample * channels, fmt.Errorf("%w: frame %d channel %d has 0x%02x", ErrNoMarker, f, c, m)
			}
			dsd[(2*f)*channels+c] = byte(v >> 8)
			dsd[(2*f+1)*channels+c] = byte(v)
		}
	}
	return frames * bytesPerSample * channels, nil
}
