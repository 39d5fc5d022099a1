package telemetry

import (
	"math"
	"testing"
)

func TestCollectorWindows(t *testing.T) {
	c := NewCollector("run", 1.0, 42)

	for i := 0; i < 9; i++ {
		c.RecordTick(0.1)
	}
	if c.ShouldFlush() {
		t.Fatal("flushed before the window elapsed")
	}
	c.RecordTick(0.1)
	c.RecordTick(0.1)
	if !c.ShouldFlush() {
		t.Fatal("expected flush after 1.1s")
	}

	cells := []float32{1, 0, 0, 1}
	c.RecordMass(4)
	s := c.Flush(11, cells)

	if s.RunID != "run" || s.Agents != 42 {
		t.Errorf("identity = %q/%d", s.RunID, s.Agents)
	}
	if s.WindowStartTick != 0 || s.WindowEndTick != 11 || s.Ticks != 11 {
		t.Errorf("window = [%d, %d] over %d ticks, want [0, 11] over 11", s.WindowStartTick, s.WindowEndTick, s.Ticks)
	}
	if math.Abs(s.SimTimeSec-1.1) > 1e-9 {
		t.Errorf("SimTimeSec = %v, want 1.1", s.SimTimeSec)
	}
	if s.Mass != 2 || s.MeanMass != 3 {
		t.Errorf("Mass/MeanMass = %v/%v, want 2/3", s.Mass, s.MeanMass)
	}

	if c.ShouldFlush() {
		t.Error("window should restart after flush")
	}
	c.RecordTick(0.5)
	s = c.Flush(12, cells)
	if s.WindowStartTick != 11 || s.Ticks != 1 || s.MeanMass != 2 {
		t.Errorf("second window = %+v", s)
	}
}

func TestCollectorIgnoresNegativeDT(t *testing.T) {
	c := NewCollector("run", 0, 1)
	c.RecordTick(-5)
	if c.SimTime() != 0 {
		t.Errorf("SimTime = %v, want 0", c.SimTime())
	}
}
