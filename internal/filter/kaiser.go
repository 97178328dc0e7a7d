// Package filter designs the lowpass FIR stages used by the DSD to PCM
// decimation cascades.
package filter

import (
	"fmt"
	"math"

	"github.com/tphakala/go-sacd/internal/mathutil"
	"github.com/tphakala/go-sacd/internal/simdops"
)

const (
	minFilterTaps = 3
	maxFilterTaps = 8191

	// Below this distance from the center the sinc takes its limit value.
	sincCenterEpsilon = 1e-10
)

// KaiserWindow returns a symmetric Kaiser window of the given length:
//
//	w[n] = I₀(β·sqrt(1 - ((n - α)/α)²)) / I₀(β),  α = (N-1)/2
func KaiserWindow(length int, beta float64) []float64 {
	switch {
	case length < 1:
		return []float64{}
	case length == 1:
		return []float64{1}
	}

	window := make([]float64, length)
	alpha := float64(length-1) / 2
	norm := 1 / mathutil.BesselI0(beta)
	for n := range length / 2 {
		x := (float64(n) - alpha) / alpha
		w := mathutil.BesselI0(beta*math.Sqrt(1-x*x)) * norm
		window[n], window[length-1-n] = w, w
	}
	if length%2 == 1 {
		window[length/2] = 1
	}
	return window
}

// FilterParams describes a lowpass prototype.
type FilterParams struct {
	// NumTaps is the filter length. Even lengths are allowed; DSD stage
	// tables are built from whole bytes of taps.
	NumTaps int

	// CutoffFreq is the -6 dB point normalized to the stage input rate (0 to 0.5).
	CutoffFreq float64

	// Attenuation is the stopband attenuation in dB that selects the window β.
	Attenuation float64

	// Gain is the DC gain of the designed filter.
	Gain float64
}

// Validate checks if filter parameters are valid.
func (fp *FilterParams) Validate() error {
	switch {
	case fp.NumTaps < minFilterTaps || fp.NumTaps > maxFilterTaps:
		return fmt.Errorf("filter length %d outside %d-%d taps", fp.NumTaps, minFilterTaps, maxFilterTaps)
	case fp.CutoffFreq <= 0 || fp.CutoffFreq >= 0.5:
		return fmt.Errorf("invalid cutoff frequency: %f (must be in (0, 0.5))", fp.CutoffFreq)
	case fp.Attenuation < 0:
		return fmt.Errorf("invalid attenuation: %f dB (must be positive)", fp.Attenuation)
	case fp.Gain <= 0:
		return fmt.Errorf("invalid gain: %f (must be positive)", fp.Gain)
	}
	return nil
}

// DesignLowPassFilter designs a Kaiser windowed-sinc lowpass FIR filter whose
// coefficients sum to Gain. The result is symmetric, so the group delay is
// (NumTaps-1)/2 input samples.
func DesignLowPassFilter(params FilterParams) ([]float64, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	h := KaiserWindow(params.NumTaps, mathutil.KaiserBeta(params.Attenuation))
	center := float64(params.NumTaps-1) / 2
	fc2 := 2 * params.CutoffFreq

	for n := range h {
		x := float64(n) - center
		sinc := fc2
		if math.Abs(x) >= sincCenterEpsilon {
			sinc = math.Sin(math.Pi*fc2*x) / (math.Pi * x)
		}
		h[n] *= sinc
	}

	ops := simdops.Float64Ops()
	if sum := ops.Sum(h); math.Abs(sum) > sincCenterEpsilon {
		ops.Scale(h, h, params.Gain/sum)
	}
	return h, nil
}
