package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-sacd/internal/testutil"
)

const (
	magnitudeTolerance = 1e-2
	coeffTolerance     = 1e-10

	testAttenuation80 = 80.0
	testCutoff0_25    = 0.25
	testTransitionBW  = 0.05
	testGainUnity     = 1.0

	// Kaiser length for 80 dB over a 0.05 transition band
	testTaps80 = 101

	testNumPoints512  = 512
	testNumPoints1024 = 1024

	passbandRippleDB = 0.1
)

func testParams() FilterParams {
	return FilterParams{
		NumTaps:     testTaps80,
		CutoffFreq:  testCutoff0_25,
		Attenuation: testAttenuation80,
		Gain:        testGainUnity,
	}
}

func TestKaiserWindow(t *testing.T) {
	for _, length := range []int{2, 11, 64, 704} {
		w := KaiserWindow(length, 8.65)
		require.Len(t, w, length)
		testutil.AssertSymmetric(t, w, 0, "length %d", length)
		testutil.AssertAllInRange(t, w, 0, 1, "length %d", length)
		assert.Less(t, w[0], 0.01, "edges are tapered, length %d", length)
	}

	odd := KaiserWindow(21, 8.65)
	testutil.AssertCenterIsMax(t, odd)
	assert.Equal(t, 1.0, odd[10])

	// β = 0 is rectangular.
	for _, v := range KaiserWindow(9, 0) {
		assert.InDelta(t, 1.0, v, coeffTolerance)
	}

	assert.Empty(t, KaiserWindow(0, 5))
	assert.Equal(t, []float64{1}, KaiserWindow(1, 5))
}

func TestFilterParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*FilterParams)
		ok     bool
	}{
		{"valid", func(*FilterParams) {}, true},
		{"even length", func(p *FilterParams) { p.NumTaps = 384 }, true},
		{"too few taps", func(p *FilterParams) { p.NumTaps = 2 }, false},
		{"too many taps", func(p *FilterParams) { p.NumTaps = 10000 }, false},
		{"cutoff zero", func(p *FilterParams) { p.CutoffFreq = 0 }, false},
		{"cutoff nyquist", func(p *FilterParams) { p.CutoffFreq = 0.5 }, false},
		{"negative attenuation", func(p *FilterParams) { p.Attenuation = -10 }, false},
		{"zero gain", func(p *FilterParams) { p.Gain = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.modify(&p)
			if tt.ok {
				assert.NoError(t, p.Validate())
			} else {
				assert.Error(t, p.Validate())
			}
		})
	}

	_, err := DesignLowPassFilter(FilterParams{NumTaps: 1})
	require.Error(t, err)
}

func TestDesignLowPassFilterGain(t *testing.T) {
	for _, gain := range []float64{0.5, 1, 2} {
		p := testParams()
		p.Gain = gain
		h, err := DesignLowPassFilter(p)
		require.NoError(t, err)

		assert.Len(t, h, testTaps80)
		testutil.AssertDCGain(t, h, gain, coeffTolerance)
		testutil.AssertSymmetric(t, h, coeffTolerance)
		testutil.AssertCenterIsMax(t, h)
	}
}

func TestDesignLowPassFilterEvenLength(t *testing.T) {
	p := testParams()
	p.NumTaps = 64
	h, err := DesignLowPassFilter(p)
	require.NoError(t, err)

	require.Len(t, h, 64)
	testutil.AssertSymmetric(t, h, coeffTolerance)
	testutil.AssertDCGain(t, h, 1, coeffTolerance)
}

func TestDesignLowPassFilterResponse(t *testing.T) {
	h, err := DesignLowPassFilter(testParams())
	require.NoError(t, err)

	r := ComputeFrequencyResponse(h, testNumPoints512)
	passEnd := testCutoff0_25 - testTransitionBW/2
	stopStart := testCutoff0_25 + testTransitionBW/2
	for i, f := range r.Frequencies {
		db := MagnitudeDB(r.Magnitude[i])
		switch {
		case f <= passEnd:
			assert.LessOrEqual(t, math.Abs(db), passbandRippleDB, "passband at %f", f)
		case f >= stopStart:
			assert.LessOrEqual(t, db, -testAttenuation80+10, "stopband at %f", f)
		}
	}
}

func BenchmarkDesignLowPassFilter(b *testing.B) {
	p := FilterParams{NumTaps: 4096, CutoffFreq: 0.0078, Attenuation: 110, Gain: 1}
	for b.Loop() {
		_, _ = DesignLowPassFilter(p)
	}
}
