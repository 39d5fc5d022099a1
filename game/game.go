// Package game runs the simulation: the per-tick orchestrator, the clocks and
// stop signals that drive it, and the loop that feeds telemetry and
// presenters.
package game

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/mould/config"
	"github.com/pthm-cable/mould/gpu"
	"github.com/pthm-cable/mould/telemetry"
)

// MaxStepsPerUpdate bounds the ticks run per Update.
const MaxStepsPerUpdate = 64

// Options configures a Game beyond the simulation config.
type Options struct {
	RunID          string
	LogStats       bool   // log stats and perf windows via slog
	OutputDir      string // CSV telemetry and config snapshot (empty = off)
	StepsPerUpdate int    // ticks per Update call

	// StatsCallback, if set, receives every flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Frame is a host copy of the published trail field. Presenters must copy
// Cells if they keep it past Present.
type Frame struct {
	Tick  uint32
	W, H  int
	Cells []float32
}

// Presenter consumes published frames.
type Presenter interface {
	Present(f *Frame) error
}

// Game holds a running simulation and everything observing it.
type Game struct {
	cfg  *config.Config
	orch *Orchestrator

	presenters []Presenter
	frame      Frame
	frameValid bool

	perfCollector *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
	statsCallback func(telemetry.WindowStats)
	lastWindow    telemetry.WindowStats
	haveWindow    bool
	logStats      bool
	runID         string

	paused         bool
	stepsPerUpdate int
}

// NewGame builds the orchestrator on dev and opens telemetry output.
func NewGame(dev gpu.Device, cfg *config.Config, rng *rand.Rand, opts Options) (*Game, error) {
	orch, err := NewOrchestrator(dev, cfg, rng)
	if err != nil {
		return nil, err
	}

	g := &Game{
		cfg:            cfg,
		orch:           orch,
		perfCollector:  telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector:      telemetry.NewCollector(opts.RunID, cfg.Telemetry.StatsWindow, cfg.Simulation.AgentCount),
		statsCallback:  opts.StatsCallback,
		logStats:       opts.LogStats,
		runID:          opts.RunID,
		stepsPerUpdate: 1,
	}
	g.SetStepsPerUpdate(opts.StepsPerUpdate)
	orch.SetPerf(g.perfCollector)

	w, h := orch.Field().Size()
	g.frame = Frame{W: w, H: h, Cells: make([]float32, w*h)}

	g.outputManager, err = telemetry.NewOutputManager(opts.OutputDir, opts.RunID)
	if err != nil {
		orch.Release()
		return nil, fmt.Errorf("opening output: %w", err)
	}
	if err := g.outputManager.WriteConfig(cfg); err != nil {
		g.Unload()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	return g, nil
}

// AddPresenter registers p to receive every frame.
func (g *Game) AddPresenter(p Presenter) {
	g.presenters = append(g.presenters, p)
}

// Run polls stop, advances the simulation by clock and presents, until stop
// ends the run or a device error occurs.
func (g *Game) Run(clock Clock, stop StopSignal) error {
	for stop.Continue() {
		if err := g.Update(clock.Elapsed(), stop); err != nil {
			return err
		}
	}
	return nil
}

// Update runs up to StepsPerUpdate ticks of dt seconds unless paused, then
// presents the latest frame. stop is re-checked between ticks; nil never stops.
func (g *Game) Update(dt float64, stop StopSignal) error {
	if !g.paused {
		for i := 0; i < g.stepsPerUpdate; i++ {
			if i > 0 && stop != nil && !stop.Continue() {
				break
			}
			if err := g.Step(dt); err != nil {
				return err
			}
		}
	}
	return g.present()
}

// Step runs exactly one tick, regardless of pause.
func (g *Game) Step(dt float64) error {
	g.perfCollector.StartTick()
	err := g.orch.Tick(dt)
	if err == nil {
		g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
		g.collector.RecordTick(sanitizeDT(dt))
		g.frameValid = false
	}
	g.perfCollector.EndTick()
	if err != nil {
		return fmt.Errorf("tick %d: %w", g.orch.TickCount(), err)
	}
	return nil
}

// present reads the display slot back when someone needs it and hands it on.
func (g *Game) present() error {
	g.perfCollector.RecordFrame()

	flush := g.collector.ShouldFlush()
	if len(g.presenters) == 0 && !flush {
		return nil
	}
	if err := g.readFrame(); err != nil {
		return err
	}
	if flush {
		g.flushTelemetry()
	}
	for _, p := range g.presenters {
		if err := p.Present(&g.frame); err != nil {
			return fmt.Errorf("presenting tick %d: %w", g.frame.Tick, err)
		}
	}
	return nil
}

// readFrame copies the display slot into the host frame if it is stale.
func (g *Game) readFrame() error {
	if g.frameValid {
		return nil
	}
	if err := g.orch.Device().ReadField(g.orch.Published(), g.frame.Cells); err != nil {
		return fmt.Errorf("reading display slot: %w", err)
	}
	g.frame.Tick = g.orch.TickCount()
	g.frameValid = true
	return nil
}

// Frame returns the latest published field, reading it back if needed.
func (g *Game) Frame() (*Frame, error) {
	if err := g.readFrame(); err != nil {
		return nil, err
	}
	return &g.frame, nil
}

// Orchestrator exposes the simulation driver.
func (g *Game) Orchestrator() *Orchestrator { return g.orch }

// Tick returns the number of completed ticks.
func (g *Game) Tick() uint32 { return g.orch.TickCount() }

// SimTime returns the simulated seconds so far.
func (g *Game) SimTime() float64 { return g.collector.SimTime() }

// Paused reports whether Update skips ticking.
func (g *Game) Paused() bool { return g.paused }

// TogglePause flips the pause state.
func (g *Game) TogglePause() {
	g.paused = !g.paused
	slog.Debug("pause toggled", "paused", g.paused, "tick", g.Tick())
}

// StepsPerUpdate returns the ticks run per Update.
func (g *Game) StepsPerUpdate() int { return g.stepsPerUpdate }

// SetStepsPerUpdate sets the ticks per Update, clamped to [1, MaxStepsPerUpdate].
func (g *Game) SetStepsPerUpdate(n int) {
	g.stepsPerUpdate = max(1, min(n, MaxStepsPerUpdate))
}

// Perf returns current performance statistics.
func (g *Game) Perf() telemetry.PerfStats { return g.perfCollector.Stats() }

// LastWindow returns the most recently flushed stats window; ok is false
// until the first window closes.
func (g *Game) LastWindow() (ws telemetry.WindowStats, ok bool) {
	return g.lastWindow, g.haveWindow
}

// Unload releases the simulation and closes telemetry output.
func (g *Game) Unload() {
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	g.orch.Release()
}
