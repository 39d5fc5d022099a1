package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/stat"
)

// coverageFraction is the share of the field maximum a cell must reach to
// count as covered by trail.
const coverageFraction = 0.1

// FieldStats summarises one published trail field.
type FieldStats struct {
	Mass     float64 // sum of all cells
	Max      float64
	Mean     float64
	Std      float64
	P50      float64
	P90      float64
	Coverage float64 // fraction of cells >= coverageFraction * Max
	Contrast float64 // Std / Mean, 0 for an empty field
}

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	RunID           string  `csv:"run_id"`
	WindowStartTick uint32  `csv:"-"`
	WindowEndTick   uint32  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	Ticks           int     `csv:"ticks"`
	Agents          int     `csv:"agents"`

	// Field sampled at window end
	Mass     float64 `csv:"mass"`
	Max      float64 `csv:"max"`
	Mean     float64 `csv:"mean"`
	Std      float64 `csv:"std"`
	P50      float64 `csv:"p50"`
	P90      float64 `csv:"p90"`
	Coverage float64 `csv:"coverage"`
	Contrast float64 `csv:"contrast"`

	// Mass averaged over every sample in the window
	MeanMass float64 `csv:"mean_mass"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// FieldAnalyzer computes FieldStats, reusing its scratch buffer between calls.
type FieldAnalyzer struct {
	scratch []float64
}

// Analyze computes statistics over cells. cells is not modified.
func (a *FieldAnalyzer) Analyze(cells []float32) FieldStats {
	n := len(cells)
	if n == 0 {
		return FieldStats{}
	}

	v := blas32.Vector{N: n, Inc: 1, Data: cells}
	fs := FieldStats{
		Mass: float64(blas32.Asum(v)),
		Max:  float64(cells[blas32.Iamax(v)]),
	}

	if cap(a.scratch) < n {
		a.scratch = make([]float64, n)
	}
	values := a.scratch[:n]
	threshold := coverageFraction * fs.Max
	covered := 0
	for i, c := range cells {
		values[i] = float64(c)
		if fs.Max > 0 && values[i] >= threshold {
			covered++
		}
	}
	fs.Coverage = float64(covered) / float64(n)

	fs.Mean, fs.Std = stat.PopMeanStdDev(values, nil)
	if math.IsNaN(fs.Std) {
		fs.Std = 0
	}
	if fs.Mean > 0 {
		fs.Contrast = fs.Std / fs.Mean
	}

	sort.Float64s(values)
	fs.P50 = Percentile(values, 0.50)
	fs.P90 = Percentile(values, 0.90)

	return fs
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("ticks", s.Ticks),
		slog.Int("agents", s.Agents),
		slog.Float64("mass", s.Mass),
		slog.Float64("max", s.Max),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
		slog.Float64("coverage", s.Coverage),
		slog.Float64("contrast", s.Contrast),
		slog.Float64("mean_mass", s.MeanMass),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "run_id", s.RunID, "window", s)
}
