package dst

// bitReader reads a DST frame MSB first. Reads past the end return zero bits
// and are counted in overrun.
type bitReader struct {
	buf     []byte
	pos     int // bit position
	overrun int
}

func newBitReader(b []byte) *bitReader {
	return &bitReader{buf: b}
}

func (r *bitReader) left() int {
	return len(r.buf)*8 - r.pos
}

func (r *bitReader) bit() uint32 {
	i, shift := r.pos>>3, 7-r.pos&7
	r.pos++
	if i >= len(r.buf) {
		r.overrun++
		return 0
	}
	return uint32(r.buf[i]>>shift) & 1
}

func (r *bitReader) flag() bool {
	return r.bit() == 1
}

// bits reads n <= 32 bits.
func (r *bitReader) bits(n int) uint32 {
	var v uint32
	for n > 0 {
		i := r.pos >> 3
		if i >= len(r.buf) {
			v <<= uint(n)
			r.pos += n
			r.overrun += n
			return v
		}
		avail := 8 - r.pos&7
		take := min(avail, n)
		chunk := uint32(r.buf[i]>>(avail-take)) & (1<<uint(take) - 1)
		v = v<<uint(take) | chunk
		r.pos += take
		n -= take
	}
	return v
}

// signed reads an n-bit two's complement value.
func (r *bitReader) signed(n int) int32 {
	v := r.bits(n)
	shift := 32 - uint(n)
	return int32(v<<shift) >> shift
}

// rice reads a Rice code with parameter k: a run of zeros terminated by a
// one, followed by k low bits. A nonzero value is followed by a sign bit.
func (r *bitReader) rice(k int) int {
	q := 0
	for r.bit() == 0 {
		q++
		if r.left() < 0 {
			return 0
		}
	}
	v := q<<uint(k) | int(r.bits(k))
	if v != 0 && r.flag() {
		v = -v
	}
	return v
}
