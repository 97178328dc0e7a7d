// Package simdops binds the SIMD kernels the DSD to PCM converter needs for
// float32 and float64, so the PCM decimation stages keep one code path for
// both precisions.
package simdops

import (
	"github.com/tphakala/simd/f32"
	"github.com/tphakala/simd/f64"
)

// Float is the type constraint for supported floating-point types.
type Float interface {
	float32 | float64
}

// Ops holds the kernels for precision F.
type Ops[F Float] struct {
	// DotProductUnsafe is the FIR kernel. Both slices must have equal length.
	DotProductUnsafe func(a, b []F) F

	// Interleave2 merges two channels into stereo frames.
	Interleave2 func(dst, a, b []F)

	// Sum and Scale normalise filter gain.
	Sum   func(a []F) F
	Scale func(dst, a []F, s F)
}

var (
	ops32 = Ops[float32]{
		DotProductUnsafe: f32.DotProductUnsafe,
		Interleave2:      f32.Interleave2,
		Sum:              f32.Sum,
		Scale:            f32.Scale,
	}
	ops64 = Ops[float64]{
		DotProductUnsafe: f64.DotProductUnsafe,
		Interleave2:      f64.Interleave2,
		Sum:              f64.Sum,
		Scale:            f64.Scale,
	}
)

// For returns the operations of precision F. The decimation stages resolve
// it once per converter.
func For[F Float]() *Ops[F] {
	var zero F
	if _, ok := any(zero).(float32); ok {
		return any(&ops32).(*Ops[F])
	}
	return any(&ops64).(*Ops[F])
}

// Float32Ops returns the float32 SIMD operations.
func Float32Ops() *Ops[float32] {
	return &ops32
}

// Float64Ops returns the float64 SIMD operations for non-generic code.
func Float64Ops() *Ops[float64] {
	return &ops64
}
