package systems

import "fmt"

// GroupCount returns how many lane groups of width g cover n lanes.
// The last group may over-dispatch by up to g-1 lanes; kernels bounds-check.
// g must be positive: a non-positive width is a configuration bug and panics.
func GroupCount(n, g int) int {
	if g <= 0 {
		panic(fmt.Sprintf("systems: lane group width must be positive, got %d", g))
	}
	if n <= 0 {
		return 0
	}
	return (n + g - 1) / g
}

// GroupGrid returns the 2-D group counts covering a w x h domain.
func GroupGrid(w, h, gx, gy int) (int, int) {
	return GroupCount(w, gx), GroupCount(h, gy)
}
