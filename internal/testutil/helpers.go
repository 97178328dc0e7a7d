// Package testutil provides shared assertions and synthetic SACD, DSF and
// DSDIFF images for tests.
package testutil

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// context renders optional testify style message arguments as a prefix.
func context(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return ""
	case 1:
		return fmt.Sprint(msgAndArgs[0]) + ": "
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...) + ": "
	}
	return fmt.Sprint(msgAndArgs...) + ": "
}

// firstIndex returns the first index whose value fails ok, or -1.
func firstIndex(s []float64, ok func(i int, v float64) bool) int {
	for i, v := range s {
		if !ok(i, v) {
			return i
		}
	}
	return -1
}

// AssertSymmetric verifies s[i] == s[n-1-i] within tolerance, as for a linear
// phase FIR.
func AssertSymmetric(t *testing.T, s []float64, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	n := len(s)
	i := firstIndex(s[:n/2], func(i int, v float64) bool { return math.Abs(v-s[n-1-i]) <= tolerance })
	if i < 0 {
		return true
	}
	return assert.Fail(t, context(msgAndArgs)+"not symmetric",
		"s[%d]=%g, s[%d]=%g", i, s[i], n-1-i, s[n-1-i])
}

// AssertNoNaNOrInf verifies that every element is finite.
func AssertNoNaNOrInf(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	i := firstIndex(s, func(_ int, v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) })
	if i < 0 {
		return true
	}
	return assert.Fail(t, context(msgAndArgs)+"not finite", "s[%d]=%g", i, s[i])
}

// AssertAllInRange verifies that every element is within [minVal, maxVal].
func AssertAllInRange(t *testing.T, s []float64, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	i := firstIndex(s, func(_ int, v float64) bool { return v >= minVal && v <= maxVal })
	if i < 0 {
		return true
	}
	return assert.Fail(t, context(msgAndArgs)+"value out of range",
		"s[%d]=%g outside [%g, %g]", i, s[i], minVal, maxVal)
}

// AssertDCGain verifies that the coefficients sum to expectedGain.
func AssertDCGain(t *testing.T, coeffs []float64, expectedGain, tolerance float64) bool {
	t.Helper()
	sum := 0.0
	for _, c := range coeffs {
		sum += c
	}
	return assert.InDelta(t, expectedGain, sum, tolerance, "DC gain %g, want %g", sum, expectedGain)
}

// AssertCenterIsMax verifies that no element exceeds the one at len(s)/2.
func AssertCenterIsMax(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	if len(s) == 0 {
		return assert.Fail(t, context(msgAndArgs)+"empty slice")
	}
	c := len(s) / 2
	i := firstIndex(s, func(_ int, v float64) bool { return v <= s[c] })
	if i < 0 {
		return true
	}
	return assert.Fail(t, context(msgAndArgs)+"center is not max",
		"s[%d]=%g > s[%d]=%g", i, s[i], c, s[c])
}

// AssertRelativeError verifies |actual-expected|/|expected| <= tolerance.
// A zero expectation compares absolutely.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	rel := math.Abs(actual-expected) / math.Abs(expected)
	if rel <= tolerance {
		return true
	}
	return assert.Fail(t, context(msgAndArgs)+"relative error too large",
		"%e > %e (expected %g, actual %g)", rel, tolerance, expected, actual)
}
