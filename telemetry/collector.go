package telemetry

// Collector accumulates field samples within windows of simulation time and
// produces WindowStats.
type Collector struct {
	runID             string
	windowDurationSec float64
	agents            int

	// Current window tracking
	windowStartTick uint32
	windowStartTime float64
	simTime         float64
	ticks           int
	massSum         float64
	massSamples     int

	analyzer FieldAnalyzer
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds.
func NewCollector(runID string, windowDurationSec float64, agents int) *Collector {
	if windowDurationSec <= 0 {
		windowDurationSec = 1
	}
	return &Collector{
		runID:             runID,
		windowDurationSec: windowDurationSec,
		agents:            agents,
	}
}

// RecordTick advances simulation time by dt seconds.
func (c *Collector) RecordTick(dt float64) {
	if dt > 0 {
		c.simTime += dt
	}
	c.ticks++
}

// RecordMass adds an intermediate mass sample to the window average.
func (c *Collector) RecordMass(mass float64) {
	c.massSum += mass
	c.massSamples++
}

// SimTime returns the total simulated seconds.
func (c *Collector) SimTime() float64 {
	return c.simTime
}

// ShouldFlush returns true once the current window spans its full duration.
func (c *Collector) ShouldFlush() bool {
	return c.simTime-c.windowStartTime >= c.windowDurationSec
}

// Flush produces a WindowStats from the published field and resets the
// window. currentTick is the tick count after the last publish.
func (c *Collector) Flush(currentTick uint32, cells []float32) WindowStats {
	fs := c.analyzer.Analyze(cells)

	c.RecordMass(fs.Mass)
	stats := WindowStats{
		RunID:           c.runID,
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      c.simTime,
		Ticks:           c.ticks,
		Agents:          c.agents,
		Mass:            fs.Mass,
		Max:             fs.Max,
		Mean:            fs.Mean,
		Std:             fs.Std,
		P50:             fs.P50,
		P90:             fs.P90,
		Coverage:        fs.Coverage,
		Contrast:        fs.Contrast,
		MeanMass:        c.massSum / float64(c.massSamples),
	}

	c.windowStartTick = currentTick
	c.windowStartTime = c.simTime
	c.ticks = 0
	c.massSum = 0
	c.massSamples = 0

	return stats
}
