// Package gpu defines the parallel-device boundary the simulation core drives:
// compiling kernel programs, owning device buffers, dispatching lane groups
// and ordering their writes.
package gpu

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/mould/components"
	"github.com/pthm-cable/mould/systems"
)

var (
	// ErrCompile wraps every program compile or link failure.
	ErrCompile = errors.New("program compile failed")
	// ErrUnknownKernel is returned when a device has no implementation for a program name.
	ErrUnknownKernel = errors.New("unknown kernel")
	// ErrUnsupported is returned for operations a device does not provide.
	ErrUnsupported = errors.New("unsupported by device")
	// ErrBinding is returned when a dispatch is given buffers from another device
	// or a binding set that aliases a read buffer with a write buffer.
	ErrBinding = errors.New("invalid buffer binding")
)

// GroupSize is the lane-group shape a compute program was compiled with.
type GroupSize struct {
	X, Y, Z int
}

// Lanes returns the number of lanes in one group.
func (g GroupSize) Lanes() int {
	return g.X * g.Y * g.Z
}

func (g GroupSize) String() string {
	return fmt.Sprintf("%dx%dx%d", g.X, g.Y, g.Z)
}

// Program is a linked device program. The set of implementations is closed:
// *GraphicsProgram and *ComputeProgram.
type Program interface {
	Name() string
	Handle() uint32
	Release()
	program()
}

type linked struct {
	name    string
	handle  uint32
	release func()
}

func (l *linked) Name() string   { return l.name }
func (l *linked) Handle() uint32 { return l.handle }

// Release frees the device resources of the program. Safe to call twice.
func (l *linked) Release() {
	if l.release != nil {
		l.release()
		l.release = nil
	}
}

// GraphicsProgram is a vertex+fragment program used for presentation.
type GraphicsProgram struct {
	linked
}

func (*GraphicsProgram) program() {}

// NewGraphicsProgram wraps a linked graphics program handle.
func NewGraphicsProgram(name string, handle uint32, release func()) *GraphicsProgram {
	return &GraphicsProgram{linked{name: name, handle: handle, release: release}}
}

// ComputeProgram is a compute kernel plus the lane-group shape it was
// compiled with.
type ComputeProgram struct {
	linked
	group GroupSize
}

func (*ComputeProgram) program() {}

// GroupSize reports the per-dispatch lane group shape.
func (p *ComputeProgram) GroupSize() GroupSize { return p.group }

// NewComputeProgram wraps a linked compute program handle.
func NewComputeProgram(name string, handle uint32, group GroupSize, release func()) *ComputeProgram {
	return &ComputeProgram{linked: linked{name: name, handle: handle, release: release}, group: group}
}

// FieldBuffer is a device-resident trail field.
type FieldBuffer interface {
	Size() (w, h int)
	Release()
}

// AgentBuffer is a device-resident agent population.
type AgentBuffer interface {
	Len() int
	Release()
}

// Bindings are the buffers a dispatch reads and writes. Unused slots are nil.
type Bindings struct {
	Agents AgentBuffer
	Read   FieldBuffer // sampled only
	Write  FieldBuffer // written only
}

// Validate rejects aliasing between the read and write field slots.
func (b Bindings) Validate() error {
	if b.Read != nil && b.Read == b.Write {
		return fmt.Errorf("%w: read and write field are the same buffer", ErrBinding)
	}
	return nil
}

// Device compiles programs, owns buffers and runs dispatches. Calls are made
// from a single goroutine; parallelism lives inside Dispatch.
type Device interface {
	Name() string

	CompileCompute(name, source string) (*ComputeProgram, error)
	CompileGraphics(name, vertex, fragment string) (*GraphicsProgram, error)

	NewField(w, h int) (FieldBuffer, error)
	NewAgents(agents []components.Agent) (AgentBuffer, error)

	// Dispatch launches groupsX x groupsY lane groups of p.
	Dispatch(p *ComputeProgram, b Bindings, u systems.Uniforms, groupsX, groupsY int) error
	// Barrier makes every write of earlier dispatches and copies visible to
	// later ones. It returns the first device fault raised by that work.
	Barrier() error

	CopyField(dst, src FieldBuffer) error
	ClearField(f FieldBuffer) error
	ReadField(f FieldBuffer, dst []float32) error
	ReadAgents(a AgentBuffer, dst []components.Agent) error

	Release()
}
