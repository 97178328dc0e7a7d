// Package dst decodes Direct Stream Transfer frames, the lossless
// compression used for DSD audio on SACD.
//
// A coded frame carries per-element prediction filters and probability
// tables followed by arithmetic coded residual bits. Each output bit is the
// sign of a 128-tap linear prediction over the channel history, flipped by
// the residual. Frames are independent: the channel history is reset at the
// start of every frame.
package dst

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidData indicates a corrupt or truncated DST frame.
	ErrInvalidData = errors.New("dst: invalid frame data")

	// ErrNotSupported indicates a valid frame using an unsupported feature,
	// such as non-uniform segmentation.
	ErrNotSupported = errors.New("dst: unsupported frame feature")

	// ErrInvalidConfig indicates an unusable channel or rate setup.
	ErrInvalidConfig = errors.New("dst: invalid decoder configuration")

	// ErrBufferTooSmall indicates the output buffer cannot hold a frame.
	ErrBufferTooSmall = errors.New("dst: output buffer too small")
)

// initialStatus is the channel history at the start of a frame.
const initialStatus = 0xAAAAAAAAAAAAAAAA

// maxSampleRate bounds the supported DSD rate (DSD512).
const maxSampleRate = 512 * 44100

// Decoder decodes DST frames of a fixed channel layout. It is not safe for
// concurrent use.
type Decoder struct {
	channels int
	bits     int // samples per channel per frame

	fsets  table
	probs  table
	filter filterLUT
	status [maxChannels][2]uint64
}

// NewDecoder returns a decoder for frames of channels channels at
// sampleRate bits per second and frameRate frames per second.
func NewDecoder(channels, sampleRate, frameRate int) (*Decoder, error) {
	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidConfig, channels)
	}
	if sampleRate <= 0 || sampleRate > maxSampleRate || frameRate <= 0 {
		return nil, fmt.Errorf("%w: %d Hz at %d frames/s", ErrInvalidConfig, sampleRate, frameRate)
	}
	bits := sampleRate / frameRate
	if bits%8 != 0 || sampleRate%frameRate != 0 {
		return nil, fmt.Errorf("%w: %d Hz does not split into whole bytes at %d frames/s",
			ErrInvalidConfig, sampleRate, frameRate)
	}
	return &Decoder{channels: channels, bits: bits}, nil
}

// Channels returns the channel count.
func (d *Decoder) Channels() int { return d.channels }

// FrameSize returns the size of a decoded frame in bytes.
func (d *Decoder) FrameSize() int {
	return d.bits / 8 * d.channels
}

// Decode decodes frame into out, which must hold FrameSize bytes. The output
// is byte-interleaved DSD, MSB first.
func (d *Decoder) Decode(out, frame []byte) error {
	size := d.FrameSize()
	if len(out) < size {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, size, len(out))
	}
	out = out[:size]
	if len(frame) <= 1 {
		return fmt.Errorf("%w: frame of %d bytes", ErrInvalidData, len(frame))
	}

	r := newBitReader(frame)

	if !r.flag() {
		// Stored DSD: one header byte, then the raw interleaved frame.
		r.bit()
		if r.bits(6) != 0 {
			return fmt.Errorf("%w: nonzero stuffing in stored frame", ErrInvalidData)
		}
		n := copy(out, frame[1:])
		for i := n; i < size; i++ {
			out[i] = 0x69
		}
		return nil
	}

	if !r.flag() {
		return fmt.Errorf("%w: segmentation differs between filters and probabilities", ErrNotSupported)
	}
	if !r.flag() {
		return fmt.Errorf("%w: segmentation differs between channels", ErrNotSupported)
	}
	if !r.flag() {
		return fmt.Errorf("%w: channels are segmented", ErrNotSupported)
	}

	var felem, pelem [maxChannels]int
	sameMap := r.flag()
	if err := readMap(r, &d.fsets, &felem, d.channels); err != nil {
		return err
	}
	if sameMap {
		d.probs.elements = d.fsets.elements
		pelem = felem
	} else if err := readMap(r, &d.probs, &pelem, d.channels); err != nil {
		return err
	}

	var halfProb [maxChannels]bool
	for ch := range d.channels {
		halfProb[ch] = r.flag()
	}

	if err := readTable(r, &d.fsets, &filterPredCoeff, filterLengthBits, filterCoeffBits, true, 0); err != nil {
		return fmt.Errorf("filter sets: %w", err)
	}
	if err := readTable(r, &d.probs, &probPredCoeff, probLengthBits, probCoeffBits, false, 1); err != nil {
		return fmt.Errorf("probability tables: %w", err)
	}

	if r.flag() {
		return fmt.Errorf("%w: arithmetic data marker set", ErrInvalidData)
	}
	var ac arithDecoder
	ac.init(r)

	if err := d.filter.build(&d.fsets); err != nil {
		return err
	}

	for ch := range d.channels {
		d.status[ch] = [2]uint64{initialStatus, initialStatus}
	}
	clear(out)

	// The first decoded bit is the reserved DST_X_Bit and is discarded.
	ac.decode(r, xBitProbability(d.fsets.coeff[0][0]))

	for i := range d.bits {
		for ch := range d.channels {
			fe := felem[ch]
			lut := &d.filter[fe]
			lo, hi := d.status[ch][0], d.status[ch][1]

			var sum int
			for j := range 8 {
				sum += int(lut[j][byte(lo>>(8*j))])
				sum += int(lut[8+j][byte(hi>>(8*j))])
			}
			predict := int16(sum)

			prob := 128
			if !halfProb[ch] || i >= d.fsets.length[fe] {
				pe := pelem[ch]
				idx := abs(int(predict)) >> 3
				prob = d.probs.coeff[pe][min(idx, d.probs.length[pe]-1)]
			}

			residual := ac.decode(r, prob)
			v := (uint32(predict>>15) ^ residual) & 1
			out[(i>>3)*d.channels+ch] |= byte(v) << (7 - uint(i&7))

			d.status[ch][1] = hi<<1 | lo>>63
			d.status[ch][0] = lo<<1 | uint64(v)
		}
	}
	return nil
}

// xBitProbability derives the probability of the reserved first bit from the
// first filter coefficient.
func xBitProbability(c int) int {
	return int(reverse7(uint8(c&127))) + 1
}

// reverse7 returns the bit reversal of b shifted down by one, as a 7-bit
// value.
func reverse7(b uint8) uint8 {
	var r uint8
	for range 8 {
		r = r<<1 | b&1
		b >>= 1
	}
	return r >> 1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
