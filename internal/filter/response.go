package filter

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	defaultResponsePoints = 512

	// Floor for dB conversion, avoids log(0)
	minMagnitude = 1e-10
	dbMultiplier = 20.0
)

// FilterResponse holds the frequency response of a filter.
type FilterResponse struct {
	// Frequencies at which response was calculated (normalized, 0 to 0.5)
	Frequencies []float64

	// Magnitude response at each frequency (linear scale)
	Magnitude []float64

	// Phase response at each frequency (radians)
	Phase []float64
}

// ComputeFrequencyResponse samples the frequency response of an FIR filter at
// numPoints frequencies k/(2*numPoints), k = 0..numPoints-1.
//
// The response comes from one real FFT of size 2*numPoints. Filters longer
// than the transform are folded modulo its size first, which samples the
// same DTFT points.
func ComputeFrequencyResponse(coeffs []float64, numPoints int) FilterResponse {
	if numPoints <= 0 {
		numPoints = defaultResponsePoints
	}
	size := 2 * numPoints

	seq := make([]float64, size)
	for n, h := range coeffs {
		seq[n%size] += h
	}
	spectrum := fourier.NewFFT(size).Coefficients(nil, seq)

	response := FilterResponse{
		Frequencies: make([]float64, numPoints),
		Magnitude:   make([]float64, numPoints),
		Phase:       make([]float64, numPoints),
	}
	for k := range numPoints {
		response.Frequencies[k] = float64(k) / float64(size)
		response.Magnitude[k] = cmplx.Abs(spectrum[k])
		response.Phase[k] = cmplx.Phase(spectrum[k])
	}

	return response
}

// MagnitudeDB converts linear magnitude to decibels.
func MagnitudeDB(magnitude float64) float64 {
	if magnitude < minMagnitude {
		magnitude = minMagnitude
	}
	return dbMultiplier * math.Log10(magnitude)
}

// StopbandAttenuation returns the smallest attenuation in dB (a positive
// number) the response shows at or above the normalized frequency from.
func StopbandAttenuation(r FilterResponse, from float64) float64 {
	peak := 0.0
	for i, f := range r.Frequencies {
		if f >= from && r.Magnitude[i] > peak {
			peak = r.Magnitude[i]
		}
	}
	return -MagnitudeDB(peak)
}

// PassbandRipple returns the peak deviation from unity gain in dB over
// frequencies at or below to.
func PassbandRipple(r FilterResponse, to float64) float64 {
	ripple := 0.0
	for i, f := range r.Frequencies {
		if f > to {
			break
		}
		ripple = max(ripple, math.Abs(MagnitudeDB(r.Magnitude[i])))
	}
	return ripple
}
