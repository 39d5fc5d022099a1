// Package glcompute implements gpu.Device with OpenGL 4.3 compute shaders.
// Every call must be made on the goroutine that owns a current GL 4.3 context
// (with raylib, build with the opengl43 tag and open a window first).
package glcompute

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"

	"github.com/pthm-cable/mould/components"
	"github.com/pthm-cable/mould/gpu"
	"github.com/pthm-cable/mould/systems"
)

// Storage buffer binding points shared with the kernel sources.
const (
	bindingAgents = 0
	bindingRead   = 1
	bindingWrite  = 2
)

// Device is an OpenGL compute device.
type Device struct {
	programs map[uint32]*program
	maxGroup [3]int32
	version  string
	renderer string
}

type program struct {
	uniforms map[string]int32
}

// New loads GL entry points from the current context and checks that it
// provides compute shaders.
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("%w: loading OpenGL: %w", gpu.ErrUnsupported, err)
	}

	var major, minor int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	gl.GetIntegerv(gl.MINOR_VERSION, &minor)
	if major < 4 || (major == 4 && minor < 3) {
		return nil, fmt.Errorf("%w: compute shaders need OpenGL 4.3, context is %d.%d", gpu.ErrUnsupported, major, minor)
	}

	d := &Device{
		programs: make(map[uint32]*program),
		version:  gl.GoStr(gl.GetString(gl.VERSION)),
		renderer: gl.GoStr(gl.GetString(gl.RENDERER)),
	}
	for i := range d.maxGroup {
		gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_COUNT, uint32(i), &d.maxGroup[i])
	}
	return d, nil
}

// Name implements gpu.Device.
func (d *Device) Name() string { return "opengl" }

// Version returns the GL version and renderer strings of the context.
func (d *Device) Version() (version, renderer string) { return d.version, d.renderer }

// CompileCompute compiles and links a compute program and reports the
// work-group size the driver compiled.
func (d *Device) CompileCompute(name, source string) (*gpu.ComputeProgram, error) {
	shader, err := compileShader(gl.COMPUTE_SHADER, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", gpu.ErrCompile, name, err)
	}
	handle, err := linkProgram(shader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", gpu.ErrCompile, name, err)
	}

	var size [3]int32
	gl.GetProgramiv(handle, gl.COMPUTE_WORK_GROUP_SIZE, &size[0])
	group := gpu.GroupSize{X: int(size[0]), Y: int(size[1]), Z: int(size[2])}

	d.programs[handle] = &program{uniforms: make(map[string]int32)}
	release := func() {
		delete(d.programs, handle)
		gl.DeleteProgram(handle)
	}
	return gpu.NewComputeProgram(name, handle, group, release), nil
}

// CompileGraphics compiles and links a vertex+fragment program.
func (d *Device) CompileGraphics(name, vertex, fragment string) (*gpu.GraphicsProgram, error) {
	vs, err := compileShader(gl.VERTEX_SHADER, vertex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s vertex: %w", gpu.ErrCompile, name, err)
	}
	fs, err := compileShader(gl.FRAGMENT_SHADER, fragment)
	if err != nil {
		gl.DeleteShader(vs)
		return nil, fmt.Errorf("%w: %s fragment: %w", gpu.ErrCompile, name, err)
	}
	handle, err := linkProgram(vs, fs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", gpu.ErrCompile, name, err)
	}
	return gpu.NewGraphicsProgram(name, handle, func() { gl.DeleteProgram(handle) }), nil
}

// NewField allocates a zeroed w x h float32 storage buffer.
func (d *Device) NewField(w, h int) (gpu.FieldBuffer, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("opengl: invalid field size %dx%d", w, h)
	}
	id, err := newBuffer(w*h*4, nil)
	if err != nil {
		return nil, fmt.Errorf("allocating %dx%d field: %w", w, h, err)
	}
	f := &fieldBuffer{dev: d, id: id, w: w, h: h}
	if err := d.ClearField(f); err != nil {
		f.Release()
		return nil, err
	}
	return f, nil
}

// NewAgents uploads agents into a storage buffer. An empty population gets a
// one-element buffer so the binding stays valid.
func (d *Device) NewAgents(agents []components.Agent) (gpu.AgentBuffer, error) {
	size := len(agents) * components.AgentSize
	var data unsafe.Pointer
	if len(agents) > 0 {
		data = gl.Ptr(agents)
	} else {
		size = components.AgentSize
	}
	id, err := newBuffer(size, data)
	if err != nil {
		return nil, fmt.Errorf("allocating %d agents: %w", len(agents), err)
	}
	return &agentBuffer{dev: d, id: id, n: len(agents)}, nil
}

// Dispatch binds the buffers and uniforms and launches groupsX x groupsY
// work groups.
func (d *Device) Dispatch(p *gpu.ComputeProgram, b gpu.Bindings, u systems.Uniforms, groupsX, groupsY int) error {
	if p == nil {
		return fmt.Errorf("%w: nil program", gpu.ErrBinding)
	}
	prog, ok := d.programs[p.Handle()]
	if !ok {
		return fmt.Errorf("%w: program %q is not live on this device", gpu.ErrBinding, p.Name())
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if groupsX <= 0 || groupsY <= 0 {
		return nil
	}
	if int32(groupsX) > d.maxGroup[0] || int32(groupsY) > d.maxGroup[1] {
		return fmt.Errorf("%w: %dx%d groups exceed the device limit %dx%d", gpu.ErrUnsupported, groupsX, groupsY, d.maxGroup[0], d.maxGroup[1])
	}

	gl.UseProgram(p.Handle())
	if b.Agents != nil {
		a, err := d.agentBuffer(b.Agents)
		if err != nil {
			return err
		}
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindingAgents, a.id)
	}
	if b.Read != nil {
		f, err := d.fieldBuffer(b.Read)
		if err != nil {
			return err
		}
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindingRead, f.id)
	}
	if b.Write != nil {
		f, err := d.fieldBuffer(b.Write)
		if err != nil {
			return err
		}
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindingWrite, f.id)
	}

	prog.set(p.Handle(), u)
	gl.DispatchCompute(uint32(groupsX), uint32(groupsY), 1)
	return checkError("dispatch " + p.Name())
}

// Barrier makes all earlier shader and copy writes visible to later
// commands.
func (d *Device) Barrier() error {
	gl.MemoryBarrier(gl.ALL_BARRIER_BITS)
	return checkError("barrier")
}

// CopyField copies src into dst on the device.
func (d *Device) CopyField(dst, src gpu.FieldBuffer) error {
	df, err := d.fieldBuffer(dst)
	if err != nil {
		return err
	}
	sf, err := d.fieldBuffer(src)
	if err != nil {
		return err
	}
	if df.w != sf.w || df.h != sf.h {
		return fmt.Errorf("%w: copy between %dx%d and %dx%d", gpu.ErrBinding, sf.w, sf.h, df.w, df.h)
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, sf.id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, df.id)
	gl.CopyBufferSubData(gl.COPY_READ_BUFFER, gl.COPY_WRITE_BUFFER, 0, 0, sf.bytes())
	return checkError("copy field")
}

// ClearField zeroes f.
func (d *Device) ClearField(f gpu.FieldBuffer) error {
	fb, err := d.fieldBuffer(f)
	if err != nil {
		return err
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, fb.id)
	gl.ClearBufferData(gl.SHADER_STORAGE_BUFFER, gl.R32F, gl.RED, gl.FLOAT, nil)
	return checkError("clear field")
}

// ReadField copies f into dst, which must hold exactly w*h values.
func (d *Device) ReadField(f gpu.FieldBuffer, dst []float32) error {
	fb, err := d.fieldBuffer(f)
	if err != nil {
		return err
	}
	if len(dst) != fb.w*fb.h {
		return fmt.Errorf("opengl: read of %d cells into buffer of %d", fb.w*fb.h, len(dst))
	}
	gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, fb.id)
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, fb.bytes(), gl.Ptr(dst))
	return checkError("read field")
}

// ReadAgents copies a into dst, which must hold exactly a.Len() agents.
func (d *Device) ReadAgents(a gpu.AgentBuffer, dst []components.Agent) error {
	ab, err := d.agentBuffer(a)
	if err != nil {
		return err
	}
	if len(dst) != ab.n {
		return fmt.Errorf("opengl: read of %d agents into buffer of %d", ab.n, len(dst))
	}
	if ab.n == 0 {
		return nil
	}
	gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ab.id)
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, ab.n*components.AgentSize, gl.Ptr(dst))
	return checkError("read agents")
}

// Release deletes every live program. Buffers are released by their owners.
func (d *Device) Release() {
	for h := range d.programs {
		gl.DeleteProgram(h)
	}
	clear(d.programs)
}

func (d *Device) fieldBuffer(f gpu.FieldBuffer) (*fieldBuffer, error) {
	fb, ok := f.(*fieldBuffer)
	if !ok || fb.dev != d {
		return nil, fmt.Errorf("%w: field belongs to another device", gpu.ErrBinding)
	}
	if fb.id == 0 {
		return nil, fmt.Errorf("%w: field was released", gpu.ErrBinding)
	}
	return fb, nil
}

func (d *Device) agentBuffer(a gpu.AgentBuffer) (*agentBuffer, error) {
	ab, ok := a.(*agentBuffer)
	if !ok || ab.dev != d {
		return nil, fmt.Errorf("%w: agent buffer belongs to another device", gpu.ErrBinding)
	}
	if ab.id == 0 {
		return nil, fmt.Errorf("%w: agent buffer was released", gpu.ErrBinding)
	}
	return ab, nil
}

// set uploads the tick uniforms. Names the program does not use resolve to
// location -1, which GL ignores.
func (p *program) set(handle uint32, u systems.Uniforms) {
	gl.Uniform2i(p.location(handle, "resolution"), u.ResX, u.ResY)
	gl.Uniform1i(p.location(handle, "agentCount"), u.AgentCount)
	gl.Uniform1i(p.location(handle, "sensorSize"), u.SensorSize)
	gl.Uniform1f(p.location(handle, "agentSpeed"), u.AgentSpeed)
	gl.Uniform1f(p.location(handle, "turnSpeed"), u.TurnSpeed)
	gl.Uniform1f(p.location(handle, "sensorSpan"), u.SensorSpan)
	gl.Uniform1f(p.location(handle, "sensorRange"), u.SensorRange)
	gl.Uniform1f(p.location(handle, "depositAmount"), u.DepositAmount)
	gl.Uniform1f(p.location(handle, "diffuseRate"), u.DiffuseRate)
	gl.Uniform1f(p.location(handle, "evaporateRate"), u.EvaporateRate)
	gl.Uniform1ui(p.location(handle, "seed"), u.Seed)
	gl.Uniform1f(p.location(handle, "dt"), u.DT)
	gl.Uniform1ui(p.location(handle, "tick"), u.Tick)
}

func (p *program) location(handle uint32, name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(handle, gl.Str(name+"\x00"))
	p.uniforms[name] = loc
	return loc
}

func compileShader(kind uint32, source string) (uint32, error) {
	shader := gl.CreateShader(kind)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := make([]byte, max(logLength, 1))
		gl.GetShaderInfoLog(shader, logLength, nil, &log[0])
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %s", strings.TrimRight(string(log), "\x00\n"))
	}
	return shader, nil
}

// linkProgram links shaders into a program and deletes the shader objects.
func linkProgram(shaders ...uint32) (uint32, error) {
	prog := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(prog, s)
	}
	gl.LinkProgram(prog)
	for _, s := range shaders {
		gl.DeleteShader(s)
	}

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLength)
		log := make([]byte, max(logLength, 1))
		gl.GetProgramInfoLog(prog, logLength, nil, &log[0])
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link failed: %s", strings.TrimRight(string(log), "\x00\n"))
	}
	return prog, nil
}

func newBuffer(size int, data unsafe.Pointer) (uint32, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, id)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, data, gl.DYNAMIC_COPY)
	if err := checkError("allocate buffer"); err != nil {
		gl.DeleteBuffers(1, &id)
		return 0, err
	}
	return id, nil
}

func checkError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("opengl: %s: error 0x%04x", op, code)
	}
	return nil
}

type fieldBuffer struct {
	dev  *Device
	id   uint32
	w, h int
}

func (f *fieldBuffer) Size() (int, int) { return f.w, f.h }
func (f *fieldBuffer) bytes() int       { return f.w * f.h * 4 }

func (f *fieldBuffer) Release() {
	if f.id != 0 {
		gl.DeleteBuffers(1, &f.id)
		f.id = 0
	}
}

type agentBuffer struct {
	dev *Device
	id  uint32
	n   int
}

func (a *agentBuffer) Len() int { return a.n }

func (a *agentBuffer) Release() {
	if a.id != 0 {
		gl.DeleteBuffers(1, &a.id)
		a.id = 0
	}
}

var _ gpu.Device = (*Device)(nil)
