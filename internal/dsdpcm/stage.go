package dsdpcm

import (
	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/simdops"
)

const bitsPerByte = 8

// byteTables expands a DSD stage filter into one 256-entry table per byte
// of the delay line. Table j holds, for every byte value, the filter output
// contribution of that byte at position j, oldest byte first and oldest
// (most significant) bit first. A set bit counts as +1, a clear bit as -1.
func byteTables[F simdops.Float](coeffs []float64, gain float64) [][256]F {
	n := (len(coeffs) + bitsPerByte - 1) / bitsPerByte
	span := n * bitsPerByte

	// Zero taps pad the oldest end so the newest bit meets coeffs[0].
	tap := func(p int) float64 {
		if k := span - 1 - p; k < len(coeffs) {
			return coeffs[k] * gain
		}
		return 0
	}

	tables := make([][256]F, n)
	for j := range tables {
		for v := range 256 {
			var acc float64
			for b := range bitsPerByte {
				h := tap(j*bitsPerByte + b)
				if v&(0x80>>b) != 0 {
					acc += h
				} else {
					acc -= h
				}
			}
			tables[j][v] = F(acc)
		}
	}
	return tables
}

// dsdStage filters packed DSD bytes and decimates by a whole number of bytes.
type dsdStage[F simdops.Float] struct {
	tables     [][256]F
	decimation int // bytes per output sample

	// Doubled delay line: buf[i] == buf[i+len(tables)].
	buf  []byte
	pos  int
	fill int
}

func newDSDStage[F simdops.Float](tables [][256]F, decimationBits int) *dsdStage[F] {
	s := &dsdStage[F]{
		tables:     tables,
		decimation: max(decimationBits/bitsPerByte, 1),
		buf:        make([]byte, 2*len(tables)),
	}
	container.Silence(s.buf)
	return s
}

func (s *dsdStage[F]) run(in []byte, out []F) int {
	n := 0
	length := len(s.tables)
	for _, v := range in {
		s.buf[s.pos] = v
		s.buf[s.pos+length] = v
		if s.pos++; s.pos == length {
			s.pos = 0
		}
		if s.fill++; s.fill < s.decimation {
			continue
		}
		s.fill = 0

		var acc F
		for j, b := range s.buf[s.pos : s.pos+length] {
			acc += s.tables[j][b]
		}
		out[n] = acc
		n++
	}
	return n
}

// pcmStage is a decimating FIR on PCM samples.
type pcmStage[F simdops.Float] struct {
	ops        *simdops.Ops[F]
	coeffs     []F // time reversed, coeffs[0] weighs the oldest sample
	decimation int

	buf  []F
	pos  int
	fill int
}

func newPCMStage[F simdops.Float](reversed []F, decimation int) *pcmStage[F] {
	return &pcmStage[F]{
		ops:        simdops.For[F](),
		coeffs:     reversed,
		decimation: decimation,
		buf:        make([]F, 2*len(reversed)),
	}
}

func (s *pcmStage[F]) run(in, out []F) int {
	n := 0
	length := len(s.coeffs)
	for _, v := range in {
		s.buf[s.pos] = v
		s.buf[s.pos+length] = v
		if s.pos++; s.pos == length {
			s.pos = 0
		}
		if s.fill++; s.fill < s.decimation {
			continue
		}
		s.fill = 0

		out[n] = s.ops.DotProductUnsafe(s.coeffs, s.buf[s.pos:s.pos+length])
		n++
	}
	return n
}

func reversedCoefficients[F simdops.Float](coeffs []float64) []F {
	out := make([]F, len(coeffs))
	for i, c := range coeffs {
		out[len(coeffs)-1-i] = F(c)
	}
	return out
}
