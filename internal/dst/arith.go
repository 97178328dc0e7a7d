package dst

import "math/bits"

// arithDecoder is the 12-bit binary arithmetic decoder of the DST bitstream.
type arithDecoder struct {
	a uint32
	c uint32
}

func (d *arithDecoder) init(r *bitReader) {
	d.a = 4095
	d.c = r.bits(12)
}

// decode returns the next bit given p, the probability of a one in 1/256
// units scaled to the coder range.
func (d *arithDecoder) decode(r *bitReader, p int) uint32 {
	k := d.a>>8 | (d.a>>7)&1
	q := k * uint32(p)
	aq := d.a - q

	var bit uint32
	if d.c < aq {
		bit = 1
		d.a = aq
	} else {
		d.a = q
		d.c -= aq
	}

	if d.a < 2048 {
		n := 11
		if d.a > 0 {
			n = 12 - bits.Len32(d.a)
		}
		d.a <<= uint(n)
		d.c = d.c<<uint(n) | r.bits(n)
	}
	return bit
}
