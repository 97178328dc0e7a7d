package dst

import "fmt"

const (
	maxChannels = 6
	maxElements = 2 * maxChannels

	maxFilterLength = 128
	maxProbLength   = 64

	filterLengthBits = 7
	filterCoeffBits  = 9
	probLengthBits   = 6
	probCoeffBits    = 7
)

// Prediction coefficients for the coded table methods.
var (
	filterPredCoeff = [3][3]int{
		{-8},
		{-16, 8},
		{-9, -5, 6},
	}
	probPredCoeff = [3][3]int{
		{-8},
		{-16, 8},
		{-24, 24, -8},
	}
)

// table holds the filter coefficient sets or the probability tables of a
// frame.
type table struct {
	elements int
	length   [maxElements]int
	coeff    [maxElements][maxFilterLength]int
}

// readMap reads the channel to element mapping.
func readMap(r *bitReader, t *table, m *[maxChannels]int, channels int) error {
	t.elements = 1
	m[0] = 0
	if r.flag() {
		for ch := range m {
			m[ch] = 0
		}
		return nil
	}
	for ch := 1; ch < channels; ch++ {
		n := bitLen(t.elements)
		m[ch] = int(r.bits(n))
		switch {
		case m[ch] == t.elements:
			t.elements++
			if t.elements >= maxElements {
				return fmt.Errorf("%w: too many table elements", ErrInvalidData)
			}
		case m[ch] > t.elements:
			return fmt.Errorf("%w: channel %d maps to element %d of %d", ErrInvalidData, ch, m[ch], t.elements)
		}
	}
	return nil
}

// bitLen returns floor(log2(v)) + 1 for v > 0.
func bitLen(v int) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

func readUncoded(r *bitReader, dst []int, coeffBits int, signed bool, offset int) {
	for i := range dst {
		if signed {
			dst[i] = int(r.signed(coeffBits)) + offset
		} else {
			dst[i] = int(r.bits(coeffBits)) + offset
		}
	}
}

// readTable reads the coefficient data of every element in t. Coded
// elements are predicted from their previous coefficients and corrected by
// Rice coded residuals.
func readTable(r *bitReader, t *table, pred *[3][3]int, lengthBits, coeffBits int, signed bool, offset int) error {
	for i := range t.elements {
		length := int(r.bits(lengthBits)) + 1
		t.length[i] = length
		c := t.coeff[i][:length]

		if !r.flag() {
			readUncoded(r, c, coeffBits, signed, offset)
			continue
		}

		method := int(r.bits(2))
		if method == 3 {
			return fmt.Errorf("%w: reserved table coding method", ErrInvalidData)
		}
		readUncoded(r, t.coeff[i][:method+1], coeffBits, signed, offset)

		lsb := int(r.bits(3))
		for j := method + 1; j < length; j++ {
			x := 0
			for k := 0; k <= method; k++ {
				x += pred[method][k] * c[j-k-1]
			}
			v := r.rice(lsb)
			if x >= 0 {
				v -= (x + 4) / 8
			} else {
				v += (-x + 3) / 8
			}
			if !signed && (v < offset || v >= offset+1<<coeffBits) {
				return fmt.Errorf("%w: table coefficient %d out of range", ErrInvalidData, v)
			}
			c[j] = v
		}
	}
	return nil
}

// filterLUT holds, per element, the prediction contribution of each status
// byte for all 256 byte values.
type filterLUT [maxElements][16][256]int16

func (f *filterLUT) build(t *table) error {
	for i := range t.elements {
		length := t.length[i]
		for j := range 16 {
			total := max(0, min(length-j*8, 8))
			for k := range 256 {
				v := 0
				for l := range total {
					v += ((k>>l)&1*2 - 1) * t.coeff[i][j*8+l]
				}
				if int(int16(v)) != v {
					return fmt.Errorf("%w: prediction filter overflows", ErrInvalidData)
				}
				f[i][j][k] = int16(v)
			}
		}
	}
	return nil
}
