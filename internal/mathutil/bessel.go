// Package mathutil provides the numeric helpers behind decimation filter design.
package mathutil

import "math"

// Polynomial fits of I₀ from Abramowitz & Stegun 9.8.1 (|x| < 3.75, in
// (x/3.75)²) and 9.8.2 (|x| >= 3.75, in 3.75/|x|, scaled by eˣ/√x).
var (
	i0Series = [...]float64{
		1.0, 3.5156229, 3.0899424, 1.2067492, 0.2659732, 0.360768e-1, 0.45813e-2,
	}
	i0Asymptotic = [...]float64{
		0.39894228, 0.1328592e-1, 0.225319e-2, -0.157565e-2, 0.916281e-2,
		-0.2057706e-1, 0.2635537e-1, -0.1647633e-1, 0.392377e-2,
	}
)

const (
	i0Split = 3.75

	// Kaiser & Schafer β formula
	betaHighAtt    = 50.0
	betaMidAtt     = 21.0
	betaHighSlope  = 0.1102
	betaHighOffset = 8.7
	betaMidScale   = 0.5842
	betaMidPower   = 0.4
	betaMidSlope   = 0.07886

	dbPerDecade = 20.0
)

func poly(c []float64, t float64) float64 {
	r := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		r = r*t + c[i]
	}
	return r
}

// BesselI0 computes the modified Bessel function of the first kind, order
// zero. It shapes the Kaiser window of every decimation stage.
func BesselI0(x float64) float64 {
	ax := math.Abs(x)
	if ax < i0Split {
		t := ax / i0Split
		return poly(i0Series[:], t*t)
	}
	return math.Exp(ax) / math.Sqrt(ax) * poly(i0Asymptotic[:], i0Split/ax)
}

// KaiserBeta returns the Kaiser window β that reaches the given stopband
// attenuation in dB.
func KaiserBeta(attenuation float64) float64 {
	switch {
	case attenuation > betaHighAtt:
		return betaHighSlope * (attenuation - betaHighOffset)
	case attenuation >= betaMidAtt:
		d := attenuation - betaMidAtt
		return betaMidScale*math.Pow(d, betaMidPower) + betaMidSlope*d
	default:
		return 0
	}
}

// DBToGain converts a level in decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/dbPerDecade)
}
