// Package lanes implements gpu.Device on goroutines. Each compute program is
// bound to a Go kernel by name, and a dispatch splits its lane groups across
// a persistent worker pool. It is the reference device for tests and the
// default when no compute-capable GL context is available.
package lanes

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pthm-cable/mould/components"
	"github.com/pthm-cable/mould/gpu"
	"github.com/pthm-cable/mould/shaders"
	"github.com/pthm-cable/mould/systems"
)

// serialThreshold is the lane count below which a dispatch runs on the
// calling goroutine.
const serialThreshold = 256

// Invocation is what one dispatch exposes to its lanes.
type Invocation struct {
	Agents []components.Agent
	Read   *systems.Grid
	Write  *systems.Grid
	U      systems.Uniforms
}

// Kernel runs the lane with global invocation id (x, y).
type Kernel func(x, y int, in *Invocation)

// workChunk is a contiguous range of lane groups for one worker.
type workChunk struct {
	start, end int
	groupsX    int
	group      gpu.GroupSize
	kernel     Kernel
	in         *Invocation
}

// Device is a CPU lane-group device.
type Device struct {
	kernels    map[string]Kernel
	programs   map[uint32]Kernel
	nextHandle uint32
	numWorkers int

	// Worker pool
	workChan chan workChunk
	stopChan chan struct{}
	wg       sync.WaitGroup // live workers
	pending  sync.WaitGroup // chunks not yet finished
	running  bool

	faultMu sync.Mutex
	fault   error
}

// New creates a device with the given number of workers (0 = GOMAXPROCS).
// The simulation kernels are registered under their shader names.
func New(workers int) *Device {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &Device{
		kernels:    make(map[string]Kernel),
		programs:   make(map[uint32]Kernel),
		numWorkers: workers,
	}
	d.Register(shaders.AgentUpdate, func(x, _ int, in *Invocation) {
		systems.UpdateAgent(x, in.Agents, in.Read, in.Write, &in.U)
	})
	d.Register(shaders.TrailUpdate, func(x, y int, in *Invocation) {
		systems.UpdateCell(x, y, in.Read, in.Write, &in.U)
	})
	return d
}

// Register binds a kernel to a program name. Later registrations replace
// earlier ones.
func (d *Device) Register(name string, k Kernel) {
	d.kernels[name] = k
}

// Name implements gpu.Device.
func (d *Device) Name() string { return "lanes" }

// Workers reports the size of the worker pool.
func (d *Device) Workers() int { return d.numWorkers }

// CompileCompute reads the lane-group shape from the source's layout
// qualifier and binds the kernel registered under name.
func (d *Device) CompileCompute(name, source string) (*gpu.ComputeProgram, error) {
	group, err := gpu.ParseLocalSize(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	k, ok := d.kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", gpu.ErrUnknownKernel, name)
	}

	d.nextHandle++
	h := d.nextHandle
	d.programs[h] = k
	return gpu.NewComputeProgram(name, h, group, func() { delete(d.programs, h) }), nil
}

// CompileGraphics is not available without a GL context.
func (d *Device) CompileGraphics(name, _, _ string) (*gpu.GraphicsProgram, error) {
	return nil, fmt.Errorf("%w: graphics program %q", gpu.ErrUnsupported, name)
}

// NewField allocates a zeroed w x h field.
func (d *Device) NewField(w, h int) (gpu.FieldBuffer, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("lanes: invalid field size %dx%d", w, h)
	}
	return &fieldBuffer{dev: d, grid: systems.NewGrid(w, h)}, nil
}

// NewAgents copies agents into a device buffer.
func (d *Device) NewAgents(agents []components.Agent) (gpu.AgentBuffer, error) {
	buf := make([]components.Agent, len(agents))
	copy(buf, agents)
	return &agentBuffer{dev: d, agents: buf}, nil
}

// Dispatch queues groupsX x groupsY lane groups of p and returns without
// waiting. Writes become visible after Barrier.
func (d *Device) Dispatch(p *gpu.ComputeProgram, b gpu.Bindings, u systems.Uniforms, groupsX, groupsY int) error {
	if err := d.Err(); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: nil program", gpu.ErrBinding)
	}
	k, ok := d.programs[p.Handle()]
	if !ok {
		return fmt.Errorf("%w: program %q is not live on this device", gpu.ErrBinding, p.Name())
	}
	if err := b.Validate(); err != nil {
		return err
	}

	in := &Invocation{U: u}
	var err error
	if in.Agents, err = d.agents(b.Agents); err != nil {
		return err
	}
	if in.Read, err = d.grid(b.Read); err != nil {
		return err
	}
	if in.Write, err = d.grid(b.Write); err != nil {
		return err
	}

	if groupsX <= 0 || groupsY <= 0 {
		return nil
	}
	n := groupsX * groupsY
	group := p.GroupSize()

	if n*group.Lanes() < serialThreshold || d.numWorkers == 1 {
		d.run(workChunk{start: 0, end: n, groupsX: groupsX, group: group, kernel: k, in: in})
		return d.Err()
	}

	if !d.running {
		d.startWorkers()
	}
	chunkSize := (n + d.numWorkers - 1) / d.numWorkers
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		d.pending.Add(1)
		d.workChan <- workChunk{start: start, end: end, groupsX: groupsX, group: group, kernel: k, in: in}
	}
	return nil
}

// Barrier waits for every queued chunk to finish and reports any kernel
// fault they raised.
func (d *Device) Barrier() error {
	d.pending.Wait()
	return d.Err()
}

// CopyField copies src into dst. Sizes must match.
func (d *Device) CopyField(dst, src gpu.FieldBuffer) error {
	if err := d.Barrier(); err != nil {
		return err
	}
	dg, err := d.grid(dst)
	if err != nil {
		return err
	}
	sg, err := d.grid(src)
	if err != nil {
		return err
	}
	if dg == nil || sg == nil {
		return fmt.Errorf("%w: copy needs two fields", gpu.ErrBinding)
	}
	if dg.W != sg.W || dg.H != sg.H {
		return fmt.Errorf("%w: copy between %dx%d and %dx%d", gpu.ErrBinding, sg.W, sg.H, dg.W, dg.H)
	}
	dg.CopyFrom(sg)
	return nil
}

// ClearField zeroes f.
func (d *Device) ClearField(f gpu.FieldBuffer) error {
	if err := d.Barrier(); err != nil {
		return err
	}
	g, err := d.grid(f)
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("%w: nil field", gpu.ErrBinding)
	}
	g.Clear()
	return nil
}

// ReadField copies f into dst, which must hold exactly w*h values.
func (d *Device) ReadField(f gpu.FieldBuffer, dst []float32) error {
	if err := d.Barrier(); err != nil {
		return err
	}
	g, err := d.grid(f)
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("%w: nil field", gpu.ErrBinding)
	}
	if len(dst) != len(g.Data) {
		return fmt.Errorf("lanes: read of %d cells into buffer of %d", len(g.Data), len(dst))
	}
	copy(dst, g.Data)
	return nil
}

// ReadAgents copies a into dst, which must hold exactly a.Len() agents.
func (d *Device) ReadAgents(a gpu.AgentBuffer, dst []components.Agent) error {
	if err := d.Barrier(); err != nil {
		return err
	}
	agents, err := d.agents(a)
	if err != nil {
		return err
	}
	if len(dst) != len(agents) {
		return fmt.Errorf("lanes: read of %d agents into buffer of %d", len(agents), len(dst))
	}
	copy(dst, agents)
	return nil
}

// Err returns the first kernel fault, if any. A faulted device stays faulted.
func (d *Device) Err() error {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	return d.fault
}

// Release stops the worker pool and drops every program.
func (d *Device) Release() {
	d.pending.Wait()
	d.stopWorkers()
	clear(d.programs)
}

func (d *Device) grid(f gpu.FieldBuffer) (*systems.Grid, error) {
	if f == nil {
		return nil, nil
	}
	fb, ok := f.(*fieldBuffer)
	if !ok || fb.dev != d {
		return nil, fmt.Errorf("%w: field belongs to another device", gpu.ErrBinding)
	}
	if fb.grid == nil {
		return nil, fmt.Errorf("%w: field was released", gpu.ErrBinding)
	}
	return fb.grid, nil
}

func (d *Device) agents(a gpu.AgentBuffer) ([]components.Agent, error) {
	if a == nil {
		return nil, nil
	}
	ab, ok := a.(*agentBuffer)
	if !ok || ab.dev != d {
		return nil, fmt.Errorf("%w: agent buffer belongs to another device", gpu.ErrBinding)
	}
	if ab.released {
		return nil, fmt.Errorf("%w: agent buffer was released", gpu.ErrBinding)
	}
	return ab.agents, nil
}

// startWorkers launches persistent worker goroutines.
func (d *Device) startWorkers() {
	d.workChan = make(chan workChunk, d.numWorkers)
	d.stopChan = make(chan struct{})
	d.running = true

	for i := 0; i < d.numWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (d *Device) stopWorkers() {
	if !d.running {
		return
	}
	close(d.stopChan)
	d.wg.Wait()
	close(d.workChan)
	d.running = false
}

func (d *Device) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopChan:
			return
		case chunk, ok := <-d.workChan:
			if !ok {
				return
			}
			d.run(chunk)
			d.pending.Done()
		}
	}
}

// run executes every lane of groups [start, end).
func (d *Device) run(c workChunk) {
	defer func() {
		if r := recover(); r != nil {
			d.setFault(fmt.Errorf("lanes: kernel panicked: %v", r))
		}
	}()

	gs := c.group
	for g := c.start; g < c.end; g++ {
		baseX := (g % c.groupsX) * gs.X
		baseY := (g / c.groupsX) * gs.Y
		for lz := 0; lz < gs.Z; lz++ {
			for ly := 0; ly < gs.Y; ly++ {
				for lx := 0; lx < gs.X; lx++ {
					c.kernel(baseX+lx, baseY+ly, c.in)
				}
			}
		}
	}
}

func (d *Device) setFault(err error) {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	if d.fault == nil {
		d.fault = err
	}
}

type fieldBuffer struct {
	dev  *Device
	grid *systems.Grid
}

func (f *fieldBuffer) Size() (int, int) {
	if f.grid == nil {
		return 0, 0
	}
	return f.grid.W, f.grid.H
}

func (f *fieldBuffer) Release() { f.grid = nil }

type agentBuffer struct {
	dev      *Device
	agents   []components.Agent
	released bool
}

func (a *agentBuffer) Len() int { return len(a.agents) }

func (a *agentBuffer) Release() {
	a.agents = nil
	a.released = true
}

var _ gpu.Device = (*Device)(nil)
