package telemetry

import (
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newFakeClock() *fakeClock               { return &fakeClock{t: time.Unix(1000, 0)} }

// runTick records one tick with the given phase durations, in order.
func runTick(pc *PerfCollector, clk *fakeClock, phases ...any) {
	pc.StartTick()
	for i := 0; i < len(phases); i += 2 {
		pc.StartPhase(phases[i].(string))
		clk.advance(phases[i+1].(time.Duration))
	}
	pc.EndTick()
}

func TestPerfCollectorPhaseBreakdown(t *testing.T) {
	clk := newFakeClock()
	pc := newPerfCollector(10, clk.now)

	for range 4 {
		runTick(pc, clk,
			PhaseSenseAndMove, 600*time.Microsecond,
			PhaseDiffuse, 300*time.Microsecond,
			PhasePublish, 100*time.Microsecond,
		)
	}
	s := pc.Stats()

	if s.AvgTickDuration != time.Millisecond {
		t.Errorf("AvgTickDuration = %v, want 1ms", s.AvgTickDuration)
	}
	if s.TicksPerSecond != 1000 {
		t.Errorf("TicksPerSecond = %v, want 1000", s.TicksPerSecond)
	}
	want := map[string]float64{PhaseSenseAndMove: 60, PhaseDiffuse: 30, PhasePublish: 10}
	for phase, pct := range want {
		if got := s.PhasePct[phase]; got < pct-0.001 || got > pct+0.001 {
			t.Errorf("PhasePct[%s] = %v, want %v", phase, got, pct)
		}
	}
	if _, ok := s.PhaseAvg[PhaseTelemetry]; ok {
		t.Error("unrecorded telemetry phase present in PhaseAvg")
	}
}

func TestPerfCollectorRollingWindow(t *testing.T) {
	clk := newFakeClock()
	pc := newPerfCollector(3, clk.now)

	for _, d := range []time.Duration{100, 100, 100, 400, 400, 400} {
		runTick(pc, clk, PhaseDiffuse, d*time.Microsecond)
	}
	s := pc.Stats()

	if s.AvgTickDuration != 400*time.Microsecond {
		t.Errorf("AvgTickDuration = %v, want 400µs once old ticks roll out", s.AvgTickDuration)
	}
	if s.MinTickDuration != 400*time.Microsecond {
		t.Errorf("MinTickDuration = %v, want 400µs", s.MinTickDuration)
	}
}

func TestPerfCollectorPercentiles(t *testing.T) {
	clk := newFakeClock()
	pc := newPerfCollector(100, clk.now)

	for i := 1; i <= 100; i++ {
		runTick(pc, clk, PhaseSenseAndMove, time.Duration(i)*time.Microsecond)
	}
	s := pc.Stats()

	if s.MinTickDuration != time.Microsecond || s.MaxTickDuration != 100*time.Microsecond {
		t.Errorf("min/max = %v/%v, want 1µs/100µs", s.MinTickDuration, s.MaxTickDuration)
	}
	if s.P50TickDuration < 50*time.Microsecond || s.P50TickDuration > 51*time.Microsecond {
		t.Errorf("P50 = %v, want ~50.5µs", s.P50TickDuration)
	}
	if s.P95TickDuration < 95*time.Microsecond || s.P95TickDuration > 96*time.Microsecond {
		t.Errorf("P95 = %v, want ~95µs", s.P95TickDuration)
	}
}

func TestPerfCollectorExtraPhases(t *testing.T) {
	clk := newFakeClock()
	pc := newPerfCollector(4, clk.now)

	runTick(pc, clk, "readback", 250*time.Microsecond, PhaseDiffuse, 750*time.Microsecond)
	s := pc.Stats()

	if got := s.PhasePct["readback"]; got != 25 {
		t.Errorf("PhasePct[readback] = %v, want 25", got)
	}

	// Names past the slot limit still count toward the tick total.
	for i := range 2 * maxPhases {
		runTick(pc, clk, string(rune('a'+i)), time.Microsecond)
	}
	if n := len(pc.names); n != maxPhases {
		t.Errorf("tracked %d phase names, want %d", n, maxPhases)
	}
}

func TestPerfCollectorEmptyStats(t *testing.T) {
	s := NewPerfCollector(10).Stats()

	if s.AvgTickDuration != 0 || s.TicksPerSecond != 0 {
		t.Errorf("empty stats = %+v, want zero timings", s)
	}
	if s.PhaseAvg == nil || s.PhasePct == nil {
		t.Error("empty stats should carry non-nil phase maps")
	}
}

func TestPerfCollectorFrameTiming(t *testing.T) {
	clk := newFakeClock()
	pc := newPerfCollector(10, clk.now)

	pc.RecordFrame()
	if fps := pc.Stats().FPS; fps != 0 {
		t.Errorf("FPS after one frame = %v, want 0", fps)
	}
	clk.advance(20 * time.Millisecond)
	pc.RecordFrame()

	if s := pc.Stats(); s.FPS != 50 || s.FrameDuration != 20*time.Millisecond {
		t.Errorf("FPS = %v (frame %v), want 50 (20ms)", s.FPS, s.FrameDuration)
	}
}

func TestPhasesIsACopy(t *testing.T) {
	p := Phases()
	p[0] = "mutated"
	if Phases()[0] != PhaseSenseAndMove {
		t.Error("Phases() exposes the package slice")
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	s := PerfStats{
		AvgTickDuration: 1500 * time.Microsecond,
		P95TickDuration: 2 * time.Millisecond,
		TicksPerSecond:  666,
		PhasePct: map[string]float64{
			PhaseSenseAndMove: 60,
			PhaseDiffuse:      30,
			PhasePublish:      10,
		},
	}

	row := s.ToCSV("run-1", 240)
	if row.RunID != "run-1" || row.WindowEnd != 240 {
		t.Errorf("row identity = %q/%d, want run-1/240", row.RunID, row.WindowEnd)
	}
	if row.AvgTickUS != 1500 || row.P95TickUS != 2000 {
		t.Errorf("AvgTickUS/P95TickUS = %d/%d, want 1500/2000", row.AvgTickUS, row.P95TickUS)
	}
	if row.SenseAndMovePct != 60 || row.DiffusePct != 30 || row.PublishPct != 10 {
		t.Errorf("phase pcts = %v/%v/%v, want 60/30/10", row.SenseAndMovePct, row.DiffusePct, row.PublishPct)
	}
	if row.TelemetryPct != 0 {
		t.Errorf("TelemetryPct = %v, want 0 for an unrecorded phase", row.TelemetryPct)
	}
}

func BenchmarkPerfCollectorTick(b *testing.B) {
	pc := NewPerfCollector(120)
	for b.Loop() {
		pc.StartTick()
		pc.StartPhase(PhaseSenseAndMove)
		pc.StartPhase(PhaseDiffuse)
		pc.StartPhase(PhasePublish)
		pc.EndTick()
	}
}
