package game

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/dustin/go-humanize"

	"github.com/pthm-cable/mould/components"
	"github.com/pthm-cable/mould/config"
	"github.com/pthm-cable/mould/gpu"
	"github.com/pthm-cable/mould/shaders"
	"github.com/pthm-cable/mould/systems"
	"github.com/pthm-cable/mould/telemetry"
)

// State is one step of the per-tick pipeline.
type State int

const (
	StateSenseAndMove State = iota
	StateDiffuse
	StatePublish
)

func (s State) String() string {
	switch s {
	case StateSenseAndMove:
		return "sense_and_move"
	case StateDiffuse:
		return "diffuse"
	case StatePublish:
		return "publish"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Orchestrator drives one simulation: it owns the compiled kernels, the agent
// population and the trail field, and sequences the stages of every tick.
type Orchestrator struct {
	dev    gpu.Device
	params systems.Params

	agentProg *gpu.ComputeProgram
	trailProg *gpu.ComputeProgram

	agents gpu.AgentBuffer
	field  *TrailField

	agentGroups                int
	trailGroupsX, trailGroupsY int

	tick  uint32
	state State
	perf  *telemetry.PerfCollector
}

// NewOrchestrator compiles both kernels with the configured lane-group
// shapes, spawns the population from rng and allocates the field. The
// run's hash seed is the first value drawn from rng.
func NewOrchestrator(dev gpu.Device, cfg *config.Config, rng *rand.Rand) (*Orchestrator, error) {
	o := &Orchestrator{dev: dev}
	hashSeed := rng.Uint32()
	o.params = systems.NewParams(cfg, hashSeed)

	var err error
	o.agentProg, err = compile(dev, shaders.AgentUpdate, shaders.AgentUpdateSource,
		gpu.GroupSize{X: cfg.GPU.AgentGroupSize, Y: 1, Z: 1})
	if err != nil {
		return nil, err
	}
	o.trailProg, err = compile(dev, shaders.TrailUpdate, shaders.TrailUpdateSource,
		gpu.GroupSize{X: cfg.GPU.TrailGroupX, Y: cfg.GPU.TrailGroupY, Z: 1})
	if err != nil {
		o.Release()
		return nil, err
	}

	population := systems.SpawnAgents(cfg.Simulation.AgentCount, rng)
	o.agents, err = dev.NewAgents(population)
	if err != nil {
		o.Release()
		return nil, fmt.Errorf("allocating agents: %w", err)
	}

	o.field, err = NewTrailField(dev, cfg.Simulation.ResX, cfg.Simulation.ResY)
	if err != nil {
		o.Release()
		return nil, err
	}

	// Group counts use the width the device actually compiled.
	o.agentGroups = systems.GroupCount(cfg.Simulation.AgentCount, o.agentProg.GroupSize().X)
	o.trailGroupsX, o.trailGroupsY = systems.GroupGrid(cfg.Simulation.ResX, cfg.Simulation.ResY,
		o.trailProg.GroupSize().X, o.trailProg.GroupSize().Y)

	fieldBytes := uint64(cfg.Derived.Cells) * 4
	slog.Info("simulation allocated",
		"device", dev.Name(),
		"agents", cfg.Simulation.AgentCount,
		"agent_buffer", humanize.IBytes(uint64(cfg.Simulation.AgentCount*components.AgentSize)),
		"field", fmt.Sprintf("%dx%d", cfg.Simulation.ResX, cfg.Simulation.ResY),
		"field_buffers", humanize.IBytes(3*fieldBytes),
		"agent_group", o.agentProg.GroupSize().String(),
		"trail_group", o.trailProg.GroupSize().String(),
		"agent_groups", o.agentGroups,
		"trail_groups", fmt.Sprintf("%dx%d", o.trailGroupsX, o.trailGroupsY),
	)

	return o, nil
}

func compile(dev gpu.Device, name, source string, group gpu.GroupSize) (*gpu.ComputeProgram, error) {
	src, err := gpu.SetLocalSize(source, group)
	if err != nil {
		return nil, fmt.Errorf("preparing %s: %w", name, err)
	}
	p, err := dev.CompileCompute(name, src)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}
	return p, nil
}

// SetPerf attaches a perf collector. Each state is recorded as a phase of
// the collector's current tick; the caller brackets ticks.
func (o *Orchestrator) SetPerf(p *telemetry.PerfCollector) {
	o.perf = p
}

// Tick advances the simulation by dt seconds. Negative or non-finite dt is
// treated as 0. Any device error aborts the tick and is returned wrapped
// with the state it occurred in; the tick counter does not advance.
func (o *Orchestrator) Tick(dt float64) error {
	u := systems.Uniforms{
		Params: o.params,
		DT:     float32(sanitizeDT(dt)),
		Tick:   o.tick,
	}

	o.enter(StateSenseAndMove)
	if err := o.senseAndMove(u); err != nil {
		return o.fail(err)
	}

	o.enter(StateDiffuse)
	written, err := o.diffuse(u)
	if err != nil {
		return o.fail(err)
	}

	o.enter(StatePublish)
	if err := o.publish(written); err != nil {
		return o.fail(err)
	}

	o.state = StateSenseAndMove
	return nil
}

func (o *Orchestrator) enter(s State) {
	o.state = s
	if o.perf != nil {
		o.perf.StartPhase(s.String())
	}
}

func (o *Orchestrator) fail(err error) error {
	return fmt.Errorf("%s: %w", o.state, err)
}

// senseAndMove seeds the deposit slot with the current trail, then runs the
// agent kernel reading the read slot and depositing into the deposit slot.
func (o *Orchestrator) senseAndMove(u systems.Uniforms) error {
	read, deposit := o.field.Read(), o.field.Deposit()
	if err := o.dev.CopyField(deposit, read); err != nil {
		return fmt.Errorf("seeding deposit slot: %w", err)
	}
	if o.agentGroups > 0 {
		b := gpu.Bindings{Agents: o.agents, Read: read, Write: deposit}
		if err := o.dev.Dispatch(o.agentProg, b, u, o.agentGroups, 1); err != nil {
			return err
		}
	}
	return o.dev.Barrier()
}

// diffuse runs the trail kernel from the deposit slot into the other slot
// and returns the index of the slot it wrote.
func (o *Orchestrator) diffuse(u systems.Uniforms) (int, error) {
	src := 1 - o.field.ReadIndex()
	dst := 1 - src
	b := gpu.Bindings{Read: o.field.Slot(src), Write: o.field.Slot(dst)}
	if err := o.dev.Dispatch(o.trailProg, b, u, o.trailGroupsX, o.trailGroupsY); err != nil {
		return 0, err
	}
	if err := o.dev.Barrier(); err != nil {
		return 0, err
	}
	return dst, nil
}

// publish snapshots the freshly written slot into the display slot and hands
// it to the next tick. Nothing advances if the copy fails.
func (o *Orchestrator) publish(written int) error {
	if err := o.dev.CopyField(o.field.Display(), o.field.Slot(written)); err != nil {
		return fmt.Errorf("copying display slot: %w", err)
	}
	if err := o.dev.Barrier(); err != nil {
		return err
	}
	o.field.SetRead(written)
	o.tick++
	return nil
}

// Published returns the display slot holding the last completed tick.
func (o *Orchestrator) Published() gpu.FieldBuffer { return o.field.Display() }

// ReadIndex is the trail slot the next tick samples.
func (o *Orchestrator) ReadIndex() int { return o.field.ReadIndex() }

// TickCount is the number of completed ticks.
func (o *Orchestrator) TickCount() uint32 { return o.tick }

// State is the state the last Tick ended in; after a failed tick it names
// the failing state.
func (o *Orchestrator) State() State { return o.state }

// Params returns the per-run stage parameters.
func (o *Orchestrator) Params() systems.Params { return o.params }

// Agents returns the device population buffer.
func (o *Orchestrator) Agents() gpu.AgentBuffer { return o.agents }

// Field returns the trail field slots.
func (o *Orchestrator) Field() *TrailField { return o.field }

// Device returns the device the orchestrator dispatches to.
func (o *Orchestrator) Device() gpu.Device { return o.dev }

// Release frees programs and buffers. The device itself is left to its owner.
func (o *Orchestrator) Release() {
	if o.field != nil {
		o.field.Release()
		o.field = nil
	}
	if o.agents != nil {
		o.agents.Release()
		o.agents = nil
	}
	if o.trailProg != nil {
		o.trailProg.Release()
		o.trailProg = nil
	}
	if o.agentProg != nil {
		o.agentProg.Release()
		o.agentProg = nil
	}
}

// sanitizeDT coerces negative and non-finite steps to 0.
func sanitizeDT(dt float64) float64 {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return 0
	}
	return dt
}
