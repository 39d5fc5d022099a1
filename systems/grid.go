package systems

import (
	"math"
	"sync/atomic"
	"unsafe"

	"gonum.org/v1/gonum/blas/blas32"
)

// Grid is a W x H float32 field stored row-major with toroidal addressing.
type Grid struct {
	W, H int
	Data []float32
}

// NewGrid allocates a zeroed grid.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Data: make([]float32, w*h)}
}

// Index returns the flat index of (x, y), wrapping both coordinates.
func (g *Grid) Index(x, y int) int {
	return modInt(y, g.H)*g.W + modInt(x, g.W)
}

// At returns the value at (x, y) with wrap-around.
func (g *Grid) At(x, y int) float32 {
	return g.Data[g.Index(x, y)]
}

// Cell maps a normalized position to its cell coordinates.
func (g *Grid) Cell(u, v float32) (int, int) {
	return cellOf(u, g.W), cellOf(v, g.H)
}

// SampleWindow averages a size x size window centred on (cx, cy).
// Even sizes put the extra cell on the negative side.
func (g *Grid) SampleWindow(cx, cy, size int) float32 {
	if size <= 1 {
		return g.At(cx, cy)
	}
	start := -(size / 2)
	var sum float32
	for oy := 0; oy < size; oy++ {
		row := modInt(cy+start+oy, g.H) * g.W
		for ox := 0; ox < size; ox++ {
			sum += g.Data[row+modInt(cx+start+ox, g.W)]
		}
	}
	return sum / float32(size*size)
}

// DepositMax raises cell i to at least v. Safe for concurrent use by lanes
// of the same stage; concurrent callers may land in any order and the
// result is the same. Both v and the stored values must be non-negative.
func (g *Grid) DepositMax(i int, v float32) {
	p := (*uint32)(unsafe.Pointer(&g.Data[i]))
	bits := math.Float32bits(v)
	for {
		old := atomic.LoadUint32(p)
		if math.Float32frombits(old) >= v {
			return
		}
		if atomic.CompareAndSwapUint32(p, old, bits) {
			return
		}
	}
}

// CopyFrom overwrites g with src. Dimensions must match.
func (g *Grid) CopyFrom(src *Grid) {
	copy(g.Data, src.Data)
}

// Clear zeroes every cell.
func (g *Grid) Clear() {
	clear(g.Data)
}

// Mass returns the sum of all cells. Cells are non-negative, so the
// absolute sum is the plain sum.
func (g *Grid) Mass() float32 {
	if len(g.Data) == 0 {
		return 0
	}
	return blas32.Asum(g.vector())
}

// Max returns the largest cell value.
func (g *Grid) Max() float32 {
	if len(g.Data) == 0 {
		return 0
	}
	return g.Data[blas32.Iamax(g.vector())]
}

func (g *Grid) vector() blas32.Vector {
	return blas32.Vector{N: len(g.Data), Inc: 1, Data: g.Data}
}
