// Package gpucoretest provides an in-memory gpucore.GPUAdapter for tests.
//
// The fake keeps buffer and texture contents in memory, records every
// dispatch and tracks live resources so tests can assert allocation churn
// and leaks without a GPU.
package gpucoretest

import (
	"fmt"
	"sync"

	"github.com/gogpu/pathtracer/gpucore"
)

// Dispatch records one compute dispatch.
type Dispatch struct {
	Pipeline gpucore.ComputePipelineID
	Entries  []gpucore.BindGroupEntry
	X, Y, Z  uint32
}

// Entry returns the bind group entry for binding, or false if absent.
func (d Dispatch) Entry(binding uint32) (gpucore.BindGroupEntry, bool) {
	for _, e := range d.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return gpucore.BindGroupEntry{}, false
}

type texture struct {
	width, height int
	format        gpucore.TextureFormat
	data          []byte
}

// Adapter is a fake GPUAdapter. The zero value is not usable; call New.
type Adapter struct {
	mu sync.Mutex

	nextID uint64

	buffers    map[gpucore.BufferID][]byte
	usages     map[gpucore.BufferID]gpucore.BufferUsage
	textures   map[gpucore.TextureID]*texture
	modules    map[gpucore.ShaderModuleID]bool
	bgLayouts  map[gpucore.BindGroupLayoutID]bool
	plLayouts  map[gpucore.PipelineLayoutID]bool
	pipelines  map[gpucore.ComputePipelineID]string
	bindGroups map[gpucore.BindGroupID][]gpucore.BindGroupEntry

	dispatches     []Dispatch
	submits        int
	buffersCreated int
	texturesMade   int

	// Compute reports SupportsCompute. New sets it to true.
	Compute bool

	// CreateBufferErr, when set, is returned by every CreateBuffer call.
	CreateBufferErr error

	// WriteBufferErr, when set, is returned by every WriteBuffer call.
	WriteBufferErr error

	// CreatePipelineErr, when set, is returned by CreateComputePipeline.
	CreatePipelineErr error
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

// New returns an empty fake adapter with compute support.
func New() *Adapter {
	return &Adapter{
		buffers:    make(map[gpucore.BufferID][]byte),
		usages:     make(map[gpucore.BufferID]gpucore.BufferUsage),
		textures:   make(map[gpucore.TextureID]*texture),
		modules:    make(map[gpucore.ShaderModuleID]bool),
		bgLayouts:  make(map[gpucore.BindGroupLayoutID]bool),
		plLayouts:  make(map[gpucore.PipelineLayoutID]bool),
		pipelines:  make(map[gpucore.ComputePipelineID]string),
		bindGroups: make(map[gpucore.BindGroupID][]gpucore.BindGroupEntry),
		Compute:    true,
	}
}

func (a *Adapter) id() uint64 {
	a.nextID++
	return a.nextID
}

// SupportsCompute implements gpucore.GPUAdapter.
func (a *Adapter) SupportsCompute() bool { return a.Compute }

// MaxWorkgroupSize implements gpucore.GPUAdapter.
func (a *Adapter) MaxWorkgroupSize() [3]uint32 { return [3]uint32{256, 256, 64} }

// MaxBufferSize implements gpucore.GPUAdapter.
func (a *Adapter) MaxBufferSize() uint64 { return 1 << 28 }

// MaxTextureDimension implements gpucore.GPUAdapter.
func (a *Adapter) MaxTextureDimension() uint32 { return 8192 }

// CreateShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.ShaderModuleID(a.id())
	a.modules[id] = true
	return id, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.modules, id)
	a.mu.Unlock()
}

// CreateBuffer implements gpucore.GPUAdapter.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.CreateBufferErr != nil {
		return gpucore.InvalidID, a.CreateBufferErr
	}
	id := gpucore.BufferID(a.id())
	a.buffers[id] = make([]byte, size)
	a.usages[id] = usage
	a.buffersCreated++
	return id, nil
}

// DestroyBuffer implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	delete(a.buffers, id)
	delete(a.usages, id)
	a.mu.Unlock()
}

// WriteBuffer implements gpucore.GPUAdapter.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.WriteBufferErr != nil {
		return a.WriteBufferErr
	}
	buf, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("gpucoretest: write to unknown buffer %d", id)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("gpucoretest: write of %d bytes at %d overflows buffer of %d", len(data), offset, len(buf))
	}
	copy(buf[offset:], data)
	return nil
}

// ReadBuffer implements gpucore.GPUAdapter.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("gpucoretest: read from unknown buffer %d", id)
	}
	if offset+size > uint64(len(buf)) {
		return nil, fmt.Errorf("gpucoretest: read out of range")
	}
	out := make([]byte, size)
	copy(out, buf[offset:])
	return out, nil
}

// CreateTexture implements gpucore.GPUAdapter.
func (a *Adapter) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: invalid texture size %dx%d", width, height)
	}
	id := gpucore.TextureID(a.id())
	a.textures[id] = &texture{
		width:  width,
		height: height,
		format: format,
		data:   make([]byte, width*height*format.BytesPerPixel()),
	}
	a.texturesMade++
	return id, nil
}

// DestroyTexture implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// WriteTexture implements gpucore.GPUAdapter.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	tex, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("gpucoretest: write to unknown texture %d", id)
	}
	if len(data) != len(tex.data) {
		return fmt.Errorf("gpucoretest: texture data is %d bytes, want %d", len(data), len(tex.data))
	}
	copy(tex.data, data)
	return nil
}

// ReadTexture implements gpucore.GPUAdapter.
func (a *Adapter) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tex, ok := a.textures[id]
	if !ok {
		return nil, fmt.Errorf("gpucoretest: read from unknown texture %d", id)
	}
	return append([]byte(nil), tex.data...), nil
}

// CreateBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.BindGroupLayoutID(a.id())
	a.bgLayouts[id] = true
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bgLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.PipelineLayoutID(a.id())
	a.plLayouts[id] = true
	return id, nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.plLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.CreatePipelineErr != nil {
		return gpucore.InvalidID, a.CreatePipelineErr
	}
	id := gpucore.ComputePipelineID(a.id())
	a.pipelines[id] = desc.Label
	return id, nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.pipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.bgLayouts[layout] {
		return gpucore.InvalidID, fmt.Errorf("gpucoretest: unknown bind group layout %d", layout)
	}
	for _, e := range entries {
		if e.Buffer != gpucore.InvalidID {
			if _, ok := a.buffers[e.Buffer]; !ok {
				return gpucore.InvalidID, fmt.Errorf("gpucoretest: binding %d: unknown buffer %d", e.Binding, e.Buffer)
			}
		}
		if e.Texture != gpucore.InvalidID {
			if _, ok := a.textures[e.Texture]; !ok {
				return gpucore.InvalidID, fmt.Errorf("gpucoretest: binding %d: unknown texture %d", e.Binding, e.Texture)
			}
		}
	}
	id := gpucore.BindGroupID(a.id())
	a.bindGroups[id] = append([]gpucore.BindGroupEntry(nil), entries...)
	return id, nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// BeginComputePass implements gpucore.GPUAdapter.
func (a *Adapter) BeginComputePass() gpucore.ComputePassEncoder {
	return &pass{adapter: a}
}

// Submit implements gpucore.GPUAdapter.
func (a *Adapter) Submit() error {
	a.mu.Lock()
	a.submits++
	a.mu.Unlock()
	return nil
}

// WaitIdle implements gpucore.GPUAdapter.
func (a *Adapter) WaitIdle() error { return nil }

// Buffer returns a copy of the contents of buffer id, or nil if it does
// not exist.
func (a *Adapter) Buffer(id gpucore.BufferID) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), buf...)
}

// BufferUsage returns the usage buffer id was created with.
func (a *Adapter) BufferUsage(id gpucore.BufferID) gpucore.BufferUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usages[id]
}

// TextureSize returns the size of texture id and whether it exists.
func (a *Adapter) TextureSize(id gpucore.TextureID) (width, height int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tex, ok := a.textures[id]
	if !ok {
		return 0, 0, false
	}
	return tex.width, tex.height, true
}

// Dispatches returns every dispatch recorded so far.
func (a *Adapter) Dispatches() []Dispatch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Dispatch(nil), a.dispatches...)
}

// Submits returns the number of Submit calls.
func (a *Adapter) Submits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits
}

// BuffersCreated returns the number of successful CreateBuffer calls.
func (a *Adapter) BuffersCreated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffersCreated
}

// TexturesCreated returns the number of successful CreateTexture calls.
func (a *Adapter) TexturesCreated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.texturesMade
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (a *Adapter) LiveBuffers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// LiveTextures returns the number of textures not yet destroyed.
func (a *Adapter) LiveTextures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.textures)
}

// LiveObjects returns the number of live pipeline objects: shader modules,
// layouts, pipelines and bind groups.
func (a *Adapter) LiveObjects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.modules) + len(a.bgLayouts) + len(a.plLayouts) + len(a.pipelines) + len(a.bindGroups)
}

type pass struct {
	adapter  *Adapter
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
}

func (p *pass) SetPipeline(pipeline gpucore.ComputePipelineID) { p.pipeline = pipeline }

func (p *pass) SetBindGroup(index uint32, group gpucore.BindGroupID) { p.group = group }

func (p *pass) Dispatch(x, y, z uint32) {
	a := p.adapter
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispatches = append(a.dispatches, Dispatch{
		Pipeline: p.pipeline,
		Entries:  append([]gpucore.BindGroupEntry(nil), a.bindGroups[p.group]...),
		X:        x,
		Y:        y,
		Z:        z,
	})
}

func (p *pass) End() {}
