package telemetry

import (
	"log/slog"
	"slices"
	"time"
)

// Phase names for one tick. The first three are the orchestrator states.
const (
	PhaseSenseAndMove = "sense_and_move"
	PhaseDiffuse      = "diffuse"
	PhasePublish      = "publish"
	PhaseTelemetry    = "telemetry"
)

// phases is the logging and CSV order.
var phases = []string{PhaseSenseAndMove, PhaseDiffuse, PhasePublish, PhaseTelemetry}

// Phases returns the phase names in tick order.
func Phases() []string {
	return slices.Clone(phases)
}

// maxPhases bounds the distinct phase names one collector tracks. Phases
// beyond it are folded into the tick total only.
const maxPhases = 8

type tickSample struct {
	total  time.Duration
	phases [maxPhases]time.Duration
}

// PerfCollector times ticks and their phases over a rolling window of the
// most recent ticks. It is not safe for concurrent use.
type PerfCollector struct {
	now func() time.Time

	names []string // phase slot -> name
	slot  map[string]int

	ring  []tickSample
	next  int
	count int

	cur        tickSample
	tickStart  time.Time
	phaseStart time.Time
	phase      int // current slot, -1 outside a phase

	lastFrame time.Time
	frame     time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
// The known tick phases are preallocated in tick order.
func NewPerfCollector(windowSize int) *PerfCollector {
	return newPerfCollector(windowSize, time.Now)
}

func newPerfCollector(windowSize int, now func() time.Time) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	p := &PerfCollector{
		now:   now,
		slot:  make(map[string]int, maxPhases),
		ring:  make([]tickSample, windowSize),
		phase: -1,
	}
	for _, name := range phases {
		p.slotOf(name)
	}
	return p
}

func (p *PerfCollector) slotOf(name string) int {
	if i, ok := p.slot[name]; ok {
		return i
	}
	if len(p.names) == maxPhases {
		return -1
	}
	p.slot[name] = len(p.names)
	p.names = append(p.names, name)
	return len(p.names) - 1
}

// StartTick begins timing a tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = p.now()
	p.cur = tickSample{}
	p.phase = -1
}

// StartPhase closes the running phase, if any, and opens the named one.
func (p *PerfCollector) StartPhase(name string) {
	now := p.now()
	p.closePhase(now)
	p.phaseStart = now
	p.phase = p.slotOf(name)
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase >= 0 {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.phase = -1
}

// EndTick closes the running phase and records the tick.
func (p *PerfCollector) EndTick() {
	now := p.now()
	p.closePhase(now)
	p.cur.total = now.Sub(p.tickStart)

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	if p.count < len(p.ring) {
		p.count++
	}
}

// RecordFrame marks one presented frame; the interval between the last two
// marks gives FPS.
func (p *PerfCollector) RecordFrame() {
	now := p.now()
	if !p.lastFrame.IsZero() {
		p.frame = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats summarizes the window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration
	P50TickDuration time.Duration
	P95TickDuration time.Duration

	// Per-phase averages and their share of the average tick, in percent.
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	TicksPerSecond float64

	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the ticks currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		PhaseAvg:      make(map[string]time.Duration, len(p.names)),
		PhasePct:      make(map[string]float64, len(p.names)),
		FrameDuration: p.frame,
	}
	if p.frame > 0 {
		s.FPS = float64(time.Second) / float64(p.frame)
	}
	if p.count == 0 {
		return s
	}

	var total time.Duration
	var phaseSum [maxPhases]time.Duration
	ticks := make([]float64, p.count)
	s.MinTickDuration = p.ring[0].total
	for i, t := range p.ring[:p.count] {
		total += t.total
		ticks[i] = float64(t.total)
		s.MinTickDuration = min(s.MinTickDuration, t.total)
		s.MaxTickDuration = max(s.MaxTickDuration, t.total)
		for j := range p.names {
			phaseSum[j] += t.phases[j]
		}
	}
	slices.Sort(ticks)
	s.P50TickDuration = time.Duration(Percentile(ticks, 0.50))
	s.P95TickDuration = time.Duration(Percentile(ticks, 0.95))

	n := time.Duration(p.count)
	s.AvgTickDuration = total / n
	for j, name := range p.names {
		if phaseSum[j] == 0 {
			continue
		}
		avg := phaseSum[j] / n
		s.PhaseAvg[name] = avg
		if s.AvgTickDuration > 0 {
			s.PhasePct[name] = float64(avg) / float64(s.AvgTickDuration) * 100
		}
	}
	if s.AvgTickDuration > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgTickDuration)
	}
	return s
}

// LogStats logs the summary at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "stats", s)
}

// LogValue implements slog.LogValuer. Phases are listed in tick order.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("p95_tick_us", s.P95TickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", round1(s.TicksPerSecond)),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", round1(s.FPS)))
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", round1(pct)))
		}
	}
	return slog.GroupValue(attrs...)
}

func round1(v float64) float64 {
	return float64(int64(v*10)) / 10
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	RunID           string  `csv:"run_id"`
	WindowEnd       uint32  `csv:"window_end"`
	AvgTickUS       int64   `csv:"avg_tick_us"`
	MinTickUS       int64   `csv:"min_tick_us"`
	P50TickUS       int64   `csv:"p50_tick_us"`
	P95TickUS       int64   `csv:"p95_tick_us"`
	MaxTickUS       int64   `csv:"max_tick_us"`
	TicksPerSec     float64 `csv:"ticks_per_sec"`
	FPS             float64 `csv:"fps"`
	SenseAndMovePct float64 `csv:"sense_and_move_pct"`
	DiffusePct      float64 `csv:"diffuse_pct"`
	PublishPct      float64 `csv:"publish_pct"`
	TelemetryPct    float64 `csv:"telemetry_pct"`
}

// ToCSV flattens the summary for the window ending at windowEnd.
func (s PerfStats) ToCSV(runID string, windowEnd uint32) PerfStatsCSV {
	return PerfStatsCSV{
		RunID:           runID,
		WindowEnd:       windowEnd,
		AvgTickUS:       s.AvgTickDuration.Microseconds(),
		MinTickUS:       s.MinTickDuration.Microseconds(),
		P50TickUS:       s.P50TickDuration.Microseconds(),
		P95TickUS:       s.P95TickDuration.Microseconds(),
		MaxTickUS:       s.MaxTickDuration.Microseconds(),
		TicksPerSec:     s.TicksPerSecond,
		FPS:             s.FPS,
		SenseAndMovePct: s.PhasePct[PhaseSenseAndMove],
		DiffusePct:      s.PhasePct[PhaseDiffuse],
		PublishPct:      s.PhasePct[PhasePublish],
		TelemetryPct:    s.PhasePct[PhaseTelemetry],
	}
}
