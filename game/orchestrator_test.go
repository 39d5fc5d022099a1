package game

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pthm-cable/mould/components"
	"github.com/pthm-cable/mould/config"
	"github.com/pthm-cable/mould/gpu"
	"github.com/pthm-cable/mould/gpu/lanes"
	"github.com/pthm-cable/mould/shaders"
	"github.com/pthm-cable/mould/systems"
)

func testConfig(t testing.TB, agents int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Simulation.ResX = 64
	cfg.Simulation.ResY = 48
	cfg.Simulation.AgentCount = agents
	cfg.Simulation.DT = 1.0 / 30
	cfg.GPU.Workers = 4
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func newTestOrchestrator(t testing.TB, dev gpu.Device, cfg *config.Config, seed int64) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(dev, cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	t.Cleanup(o.Release)
	return o
}

func readField(t testing.TB, o *Orchestrator, f gpu.FieldBuffer) []float32 {
	t.Helper()
	w, h := f.Size()
	cells := make([]float32, w*h)
	if err := o.Device().ReadField(f, cells); err != nil {
		t.Fatal(err)
	}
	return cells
}

func TestOrchestratorZeroAgents(t *testing.T) {
	dev := lanes.New(2)
	defer dev.Release()
	o := newTestOrchestrator(t, dev, testConfig(t, 0), 1)

	for i := 0; i < 5; i++ {
		if err := o.Tick(1.0 / 60); err != nil {
			t.Fatal(err)
		}
	}

	if o.TickCount() != 5 {
		t.Errorf("TickCount = %d, want 5", o.TickCount())
	}
	for i, v := range readField(t, o, o.Published()) {
		if v != 0 {
			t.Fatalf("cell %d = %v, want 0 with no agents", i, v)
		}
	}
}

func TestOrchestratorInvariants(t *testing.T) {
	dev := lanes.New(4)
	defer dev.Release()
	cfg := testConfig(t, 500)
	o := newTestOrchestrator(t, dev, cfg, 2)

	for i := 0; i < 40; i++ {
		if err := o.Tick(cfg.Simulation.DT); err != nil {
			t.Fatal(err)
		}
	}

	agents := make([]components.Agent, cfg.Simulation.AgentCount)
	if err := dev.ReadAgents(o.Agents(), agents); err != nil {
		t.Fatal(err)
	}
	for i, a := range agents {
		if a.Pos.X < 0 || a.Pos.X >= 1 || a.Pos.Y < 0 || a.Pos.Y >= 1 {
			t.Fatalf("agent %d off the torus: %+v", i, a.Pos)
		}
	}

	var mass float64
	for i, v := range readField(t, o, o.Published()) {
		if !(v >= 0) || math.IsInf(float64(v), 0) {
			t.Fatalf("cell %d = %v", i, v)
		}
		mass += float64(v)
	}
	if mass == 0 {
		t.Error("expected trail after 40 ticks with 500 agents")
	}
}

func TestOrchestratorPublishesReadSlot(t *testing.T) {
	dev := lanes.New(2)
	defer dev.Release()
	cfg := testConfig(t, 200)
	o := newTestOrchestrator(t, dev, cfg, 3)

	for i := 0; i < 3; i++ {
		if err := o.Tick(cfg.Simulation.DT); err != nil {
			t.Fatal(err)
		}
		if idx := o.ReadIndex(); idx != 0 && idx != 1 {
			t.Fatalf("read index %d", idx)
		}
		if o.State() != StateSenseAndMove {
			t.Errorf("state after tick = %v, want %v", o.State(), StateSenseAndMove)
		}

		display := readField(t, o, o.Published())
		read := readField(t, o, o.Field().Read())
		for j := range display {
			if display[j] != read[j] {
				t.Fatalf("tick %d: display cell %d = %v, read slot %v", i, j, display[j], read[j])
			}
		}
	}

	if o.Published() == o.Field().Read() || o.Published() == o.Field().Deposit() {
		t.Error("display slot must not alias a simulation slot")
	}
}

func TestOrchestratorIsReproducible(t *testing.T) {
	cfg := testConfig(t, 300)
	run := func(workers int) []float32 {
		dev := lanes.New(workers)
		defer dev.Release()
		o := newTestOrchestrator(t, dev, cfg, 11)
		for i := 0; i < 20; i++ {
			if err := o.Tick(cfg.Simulation.DT); err != nil {
				t.Fatal(err)
			}
		}
		return readField(t, o, o.Published())
	}

	a, b := run(1), run(6)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("cell %d differs across worker counts: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestOrchestratorPureAccumulation(t *testing.T) {
	dev := lanes.New(3)
	defer dev.Release()
	cfg := testConfig(t, 300)
	cfg.Trail.DiffuseRate = 0
	cfg.Trail.EvaporateRate = 0
	if err := cfg.Refresh(); err != nil {
		t.Fatal(err)
	}
	o := newTestOrchestrator(t, dev, cfg, 4)

	prev := readField(t, o, o.Published())
	for i := 0; i < 10; i++ {
		if err := o.Tick(cfg.Simulation.DT); err != nil {
			t.Fatal(err)
		}
		cur := readField(t, o, o.Published())
		for j := range cur {
			if cur[j] < prev[j] {
				t.Fatalf("tick %d: cell %d decreased from %v to %v", i, j, prev[j], cur[j])
			}
		}
		prev = cur
	}
}

func TestOrchestratorSanitizesDT(t *testing.T) {
	dev := lanes.New(1)
	defer dev.Release()
	cfg := testConfig(t, 50)
	o := newTestOrchestrator(t, dev, cfg, 5)

	before := make([]components.Agent, 50)
	_ = dev.ReadAgents(o.Agents(), before)

	for _, dt := range []float64{-1, math.NaN(), math.Inf(1)} {
		if err := o.Tick(dt); err != nil {
			t.Fatal(err)
		}
	}

	after := make([]components.Agent, 50)
	_ = dev.ReadAgents(o.Agents(), after)
	for i := range before {
		if before[i].Pos != after[i].Pos {
			t.Fatalf("agent %d moved with a zero step: %+v -> %+v", i, before[i].Pos, after[i].Pos)
		}
	}
}

func TestOrchestratorUsesCompiledGroupSize(t *testing.T) {
	dev := lanes.New(1)
	defer dev.Release()
	cfg := testConfig(t, 100)
	cfg.GPU.AgentGroupSize = 32
	cfg.GPU.TrailGroupX = 16
	cfg.GPU.TrailGroupY = 4
	o := newTestOrchestrator(t, dev, cfg, 6)

	if o.agentGroups != 4 {
		t.Errorf("agent groups = %d, want 4", o.agentGroups)
	}
	if o.trailGroupsX != 4 || o.trailGroupsY != 12 {
		t.Errorf("trail groups = %dx%d, want 4x12", o.trailGroupsX, o.trailGroupsY)
	}
}

var errInjected = errors.New("injected device fault")

// faultyDevice fails the first operation matching its trigger.
type faultyDevice struct {
	*lanes.Device
	failDispatch string          // program name
	failCopyTo   gpu.FieldBuffer // copy destination
}

func (d *faultyDevice) Dispatch(p *gpu.ComputeProgram, b gpu.Bindings, u systems.Uniforms, gx, gy int) error {
	if p.Name() == d.failDispatch {
		return errInjected
	}
	return d.Device.Dispatch(p, b, u, gx, gy)
}

func (d *faultyDevice) CopyField(dst, src gpu.FieldBuffer) error {
	if d.failCopyTo != nil && dst == d.failCopyTo {
		return errInjected
	}
	return d.Device.CopyField(dst, src)
}

func TestOrchestratorWrapsDeviceErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *faultyDevice, o *Orchestrator)
		state State
	}{
		{"agent dispatch", func(d *faultyDevice, _ *Orchestrator) { d.failDispatch = shaders.AgentUpdate }, StateSenseAndMove},
		{"seed copy", func(d *faultyDevice, o *Orchestrator) { d.failCopyTo = o.Field().Deposit() }, StateSenseAndMove},
		{"trail dispatch", func(d *faultyDevice, _ *Orchestrator) { d.failDispatch = shaders.TrailUpdate }, StateDiffuse},
		{"display copy", func(d *faultyDevice, o *Orchestrator) { d.failCopyTo = o.Published() }, StatePublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &faultyDevice{Device: lanes.New(1)}
			defer dev.Release()
			o := newTestOrchestrator(t, dev, testConfig(t, 10), 7)

			if err := o.Tick(0.01); err != nil {
				t.Fatalf("healthy tick: %v", err)
			}
			tt.setup(dev, o)

			err := o.Tick(0.01)
			if !errors.Is(err, errInjected) {
				t.Fatalf("error = %v, want injected fault", err)
			}
			if !strings.HasPrefix(err.Error(), tt.state.String()+":") {
				t.Errorf("error %q not prefixed with state %q", err, tt.state)
			}
			if o.State() != tt.state {
				t.Errorf("State = %v, want %v", o.State(), tt.state)
			}
			if o.TickCount() != 1 {
				t.Errorf("TickCount = %d, want 1 after a failed tick", o.TickCount())
			}
		})
	}
}

func TestOrchestratorTrailFaultStopsPublish(t *testing.T) {
	inner := lanes.New(4)
	dev := &copyRecorder{Device: inner}
	defer dev.Release()
	var faulty atomic.Bool
	inner.Register(shaders.TrailUpdate, func(x, y int, in *lanes.Invocation) {
		if faulty.Load() && x == 5 && y == 5 {
			panic("trail lane (5,5) failed")
		}
		systems.UpdateCell(x, y, in.Read, in.Write, &in.U)
	})
	// 64x48 cells is far past the serial cutoff, so the trail stage runs on
	// the worker pool and its fault only shows at the barrier.
	o := newTestOrchestrator(t, dev, testConfig(t, 10), 7)

	if err := o.Tick(0.01); err != nil {
		t.Fatalf("healthy tick: %v", err)
	}
	readIdx := o.ReadIndex()
	dev.dsts = nil

	faulty.Store(true)
	err := o.Tick(0.01)
	if err == nil || !strings.Contains(err.Error(), "trail lane (5,5)") {
		t.Fatalf("error = %v, want trail kernel fault", err)
	}
	if !strings.HasPrefix(err.Error(), StateDiffuse.String()+":") {
		t.Errorf("error %q not prefixed with state %q", err, StateDiffuse)
	}
	if o.State() != StateDiffuse {
		t.Errorf("State = %v, want %v", o.State(), StateDiffuse)
	}
	if o.TickCount() != 1 {
		t.Errorf("TickCount = %d, want 1 after a failed tick", o.TickCount())
	}
	if o.ReadIndex() != readIdx {
		t.Errorf("ReadIndex = %d, want %d", o.ReadIndex(), readIdx)
	}
	for _, dst := range dev.dsts {
		if dst == o.Published() {
			t.Error("faulted tick wrote the display slot")
		}
	}
}

// copyRecorder remembers every CopyField destination.
type copyRecorder struct {
	*lanes.Device
	dsts []gpu.FieldBuffer
}

func (d *copyRecorder) CopyField(dst, src gpu.FieldBuffer) error {
	d.dsts = append(d.dsts, dst)
	return d.Device.CopyField(dst, src)
}

func TestNewOrchestratorCompileErrors(t *testing.T) {
	dev := lanes.New(1)
	defer dev.Release()
	// A device with no trail kernel cannot build the pipeline.
	bare := &missingKernelDevice{Device: dev, missing: shaders.TrailUpdate}

	_, err := NewOrchestrator(bare, testConfig(t, 1), rand.New(rand.NewSource(1)))
	if !errors.Is(err, gpu.ErrUnknownKernel) {
		t.Fatalf("error = %v, want ErrUnknownKernel", err)
	}
	if !strings.Contains(err.Error(), "compiling "+shaders.TrailUpdate) {
		t.Errorf("error %q does not name the kernel", err)
	}
}

type missingKernelDevice struct {
	*lanes.Device
	missing string
}

func (d *missingKernelDevice) CompileCompute(name, source string) (*gpu.ComputeProgram, error) {
	if name == d.missing {
		return nil, gpu.ErrUnknownKernel
	}
	return d.Device.CompileCompute(name, source)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateSenseAndMove, "sense_and_move"},
		{StateDiffuse, "diffuse"},
		{StatePublish, "publish"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func BenchmarkOrchestratorTick(b *testing.B) {
	dev := lanes.New(0)
	defer dev.Release()
	cfg := config.Default()
	o := newTestOrchestrator(b, dev, cfg, 1)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if err := o.Tick(cfg.Simulation.DT); err != nil {
			b.Fatal(err)
		}
	}
}
