package systems

import "math"

// clamp01 clamps a float32 value to the [0, 1] range. NaN maps to 0.
func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// wrap01 wraps a coordinate onto the unit torus.
// Non-finite input maps to 0; a result that rounds up to 1 maps to 0.
func wrap01(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	v = float32(f - math.Floor(f))
	if v >= 1 || v < 0 {
		return 0
	}
	return v
}

// modInt returns a mod m in [0, m).
func modInt(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// cellOf maps a normalized coordinate to a cell index in [0, n).
func cellOf(u float32, n int) int {
	c := int(math.Floor(float64(u) * float64(n)))
	return modInt(c, n)
}
