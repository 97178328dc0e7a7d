package simdops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForSelectsPrecision(t *testing.T) {
	assert.Same(t, Float32Ops(), For[float32]())
	assert.Same(t, Float64Ops(), For[float64]())
}

func testOps[F Float](t *testing.T) {
	t.Helper()
	ops := For[F]()

	a := []F{1, 2, 3, 4, 5}
	b := []F{0.5, -1, 2, 0, 1}
	assert.InDelta(t, 0.5-2+6+0+5, float64(ops.DotProductUnsafe(a, b)), 1e-6)
	assert.InDelta(t, 15, float64(ops.Sum(a)), 1e-6)

	scaled := make([]F, len(a))
	ops.Scale(scaled, a, 2)
	assert.Equal(t, []F{2, 4, 6, 8, 10}, scaled)

	dst := make([]F, 2*len(a))
	ops.Interleave2(dst, a, b)
	assert.Equal(t, []F{1, 0.5, 2, -1, 3, 2, 4, 0, 5, 1}, dst)
}

func TestOps(t *testing.T) {
	t.Run("float32", testOps[float32])
	t.Run("float64", testOps[float64])
}
