package systems

// UpdateCell runs one lane of the trail stage for cell (x, y): blend toward
// the wrapped 3x3 box average of src, evaporate, and write into dst.
// Lanes outside the grid do nothing. src and dst must be different grids.
func UpdateCell(x, y int, src, dst *Grid, u *Uniforms) {
	if x < 0 || y < 0 || x >= src.W || y >= src.H {
		return
	}
	w, h := src.W, src.H

	var sum float32
	for oy := -1; oy <= 1; oy++ {
		row := modInt(y+oy, h) * w
		for ox := -1; ox <= 1; ox++ {
			sum += src.Data[row+modInt(x+ox, w)]
		}
	}
	mean := sum / 9

	i := y*w + x
	v := src.Data[i]
	diffused := v + (mean-v)*clamp01(u.DiffuseRate*u.DT)

	out := diffused * EvaporationFactor(u.EvaporateRate, u.DT)
	if !(out > 0) {
		out = 0
	}
	dst.Data[i] = out
}

// EvaporationFactor is the per-tick multiplier max(0, 1 - rate*dt).
func EvaporationFactor(rate, dt float32) float32 {
	f := 1 - rate*dt
	if !(f > 0) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
