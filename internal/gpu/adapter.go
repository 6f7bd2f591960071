package gpu

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// copyPitch is the row alignment required for texture to buffer copies.
const copyPitch = 256

var (
	errNotFound  = errors.New("gpu: resource not found")
	errNoEncoder = errors.New("gpu: no commands recorded")
)

// halTexture is a texture together with the default view used for binding.
type halTexture struct {
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
	format gpucore.TextureFormat
}

// HALAdapter implements gpucore.GPUAdapter using gogpu/wgpu/hal directly.
//
// Thread Safety: HALAdapter is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type HALAdapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	limits gputypes.Limits

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers          map[gpucore.BufferID]hal.Buffer
	bufferSizes      map[gpucore.BufferID]uint64
	textures         map[gpucore.TextureID]*halTexture
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	// Command encoder for the pending submission
	encoder hal.CommandEncoder

	// Submitted work not yet known to be complete
	inflight []submission
}

// submission is a command buffer the GPU may still be executing.
type submission struct {
	index     uint64
	encoder   hal.CommandEncoder
	cmdBuffer hal.CommandBuffer
}

// NewHALAdapter creates a new HALAdapter wrapping the given device and queue.
// If limits is nil, default limits are used.
func NewHALAdapter(device hal.Device, queue hal.Queue, limits *gputypes.Limits) *HALAdapter {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}

	a := &HALAdapter{
		device:           device,
		queue:            queue,
		limits:           lim,
		buffers:          make(map[gpucore.BufferID]hal.Buffer),
		bufferSizes:      make(map[gpucore.BufferID]uint64),
		textures:         make(map[gpucore.TextureID]*halTexture),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

// newID generates a unique resource ID.
func (a *HALAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// === Capabilities ===

// SupportsCompute returns whether compute shaders are supported.
func (a *HALAdapter) SupportsCompute() bool {
	return a.limits.MaxComputeWorkgroupSizeX > 0
}

// MaxWorkgroupSize returns the maximum workgroup size in each dimension.
func (a *HALAdapter) MaxWorkgroupSize() [3]uint32 {
	return [3]uint32{
		a.limits.MaxComputeWorkgroupSizeX,
		a.limits.MaxComputeWorkgroupSizeY,
		a.limits.MaxComputeWorkgroupSizeZ,
	}
}

// MaxBufferSize returns the maximum buffer size in bytes.
func (a *HALAdapter) MaxBufferSize() uint64 {
	return a.limits.MaxBufferSize
}

// MaxTextureDimension returns the maximum 2D texture edge.
func (a *HALAdapter) MaxTextureDimension() uint32 {
	return a.limits.MaxTextureDimension2D
}

// === Shader Compilation ===

// CreateShaderModule creates a shader module from SPIR-V bytecode.
func (a *HALAdapter) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("empty SPIR-V bytecode")
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("failed to create shader module %q: %w", label, err)
	}

	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *HALAdapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	delete(a.shaderModules, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer.
func (a *HALAdapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("buffer size must be positive, got %d", size)
	}
	if uint64(size) > a.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("buffer size %d exceeds limit %d", size, a.limits.MaxBufferSize)
	}

	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("failed to create buffer: %w", err)
	}

	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = buffer
	a.bufferSizes[id] = uint64(size)
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (a *HALAdapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	buffer, ok := a.buffers[id]
	delete(a.buffers, id)
	delete(a.bufferSizes, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(buffer)
	}
}

// WriteBuffer writes data to a buffer.
func (a *HALAdapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.RLock()
	buffer, ok := a.buffers[id]
	size := a.bufferSizes[id]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("buffer %d: %w", id, errNotFound)
	}
	if offset+uint64(len(data)) > size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %d (%d bytes)", len(data), offset, id, size)
	}
	if len(data) == 0 {
		return nil
	}
	if err := a.queue.WriteBuffer(buffer, offset, data); err != nil {
		return fmt.Errorf("failed to write buffer %d: %w", id, err)
	}
	return nil
}

// ReadBuffer reads data from a buffer through a mappable staging copy.
// This operation requires GPU-CPU synchronization.
func (a *HALAdapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.RLock()
	buffer, ok := a.buffers[id]
	bufSize := a.bufferSizes[id]
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("buffer %d: %w", id, errNotFound)
	}
	if size == 0 || offset+size > bufSize {
		return nil, fmt.Errorf("read of %d bytes at %d out of range for buffer %d (%d bytes)", size, offset, id, bufSize)
	}

	return a.readStaging(size, func(encoder hal.CommandEncoder, staging hal.Buffer) {
		encoder.CopyBufferToBuffer(buffer, staging, []hal.BufferCopy{
			{SrcOffset: offset, DstOffset: 0, Size: size},
		})
	})
}

// readStaging records record into a one-off encoder that copies into a
// fresh MapRead staging buffer of size bytes, waits for the GPU and returns
// a copy of the staging contents.
func (a *HALAdapter) readStaging(size uint64, record func(hal.CommandEncoder, hal.Buffer)) ([]byte, error) {
	// Flush pending work so the copy observes it.
	if err := a.Submit(); err != nil && !errors.Is(err, errNoEncoder) {
		return nil, err
	}

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging-readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback-encoder"})
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	defer encoder.Destroy()
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("failed to begin encoding: %w", err)
	}
	record(encoder, staging)

	cmdBuffer, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("failed to end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuffer)

	if _, err := a.queue.Submit([]hal.CommandBuffer{cmdBuffer}); err != nil {
		return nil, fmt.Errorf("failed to submit readback: %w", err)
	}
	if err := a.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("failed to wait for readback: %w", err)
	}
	a.reclaim(math.MaxUint64)

	mapping, err := a.device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := a.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("failed to unmap staging buffer: %w", err)
	}
	return out, nil
}

// === Texture Management ===

// CreateTexture creates a 2D texture and its default view.
func (a *HALAdapter) CreateTexture(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, fmt.Errorf("texture dimensions must be positive, got %dx%d", width, height)
	}
	if maxDim := int(a.limits.MaxTextureDimension2D); width > maxDim || height > maxDim {
		return gpucore.InvalidID, fmt.Errorf("texture %dx%d exceeds limit %d", width, height, maxDim)
	}
	halFormat, err := convertTextureFormat(format)
	if err != nil {
		return gpucore.InvalidID, err
	}

	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        halFormat,
		Usage: gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("failed to create texture: %w", err)
	}

	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Format:          halFormat,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("failed to create texture view: %w", err)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &halTexture{
		tex:    tex,
		view:   view,
		width:  uint32(width),
		height: uint32(height),
		format: format,
	}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a GPU texture.
func (a *HALAdapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	t, ok := a.textures[id]
	delete(a.textures, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.tex)
	}
}

// WriteTexture uploads tightly packed texels covering the whole texture.
func (a *HALAdapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	a.mu.RLock()
	t, ok := a.textures[id]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("texture %d: %w", id, errNotFound)
	}
	rowBytes := t.width * uint32(t.format.BytesPerPixel())
	if want := int(rowBytes * t.height); len(data) != want {
		return fmt.Errorf("texture %d: got %d bytes, want %d", id, len(data), want)
	}

	err := a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: rowBytes, RowsPerImage: t.height},
		&hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("failed to write texture %d: %w", id, err)
	}
	return nil
}

// ReadTexture reads back the whole texture as tightly packed texels.
func (a *HALAdapter) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	a.mu.RLock()
	t, ok := a.textures[id]
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("texture %d: %w", id, errNotFound)
	}

	rowBytes := t.width * uint32(t.format.BytesPerPixel())
	pitch := (rowBytes + copyPitch - 1) / copyPitch * copyPitch

	staged, err := a.readStaging(uint64(pitch)*uint64(t.height), func(encoder hal.CommandEncoder, staging hal.Buffer) {
		encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageStorageBinding,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: t.height},
			TextureBase:  hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
			Size:         hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
		}})
		encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.tex,
			Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageStorageBinding,
			},
		}})
	})
	if err != nil {
		return nil, fmt.Errorf("texture %d: %w", id, err)
	}

	if pitch == rowBytes {
		return staged, nil
	}
	out := make([]byte, 0, int(rowBytes*t.height))
	for y := uint32(0); y < t.height; y++ {
		start := y * pitch
		out = append(out, staged[start:start+rowBytes]...)
	}
	return out, nil
}

// === Pipeline Management ===

// CreateBindGroupLayout creates a bind group layout.
func (a *HALAdapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("nil bind group layout descriptor")
	}

	halEntries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, entry := range desc.Entries {
		converted, err := convertBindGroupLayoutEntry(entry)
		if err != nil {
			return gpucore.InvalidID, err
		}
		halEntries[i] = converted
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("failed to create bind group layout: %w", err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *HALAdapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (a *HALAdapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		layout, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("bind group layout %d: %w", id, errNotFound)
		}
		halLayouts[i] = layout
	}
	a.mu.RUnlock()

	pipelineLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("failed to create pipeline layout: %w", err)
	}

	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = pipelineLayout
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *HALAdapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	layout, ok := a.pipelineLayouts[id]
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *HALAdapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("nil compute pipeline descriptor")
	}

	a.mu.RLock()
	pipelineLayout, layoutOK := a.pipelineLayouts[desc.Layout]
	shaderModule, moduleOK := a.shaderModules[desc.ShaderModule]
	a.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("pipeline layout %d: %w", desc.Layout, errNotFound)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("shader module %d: %w", desc.ShaderModule, errNotFound)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     shaderModule,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("failed to create compute pipeline %q: %w", desc.Label, err)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *HALAdapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	pipeline, ok := a.computePipelines[id]
	delete(a.computePipelines, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup creates a bind group.
func (a *HALAdapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	halLayout, ok := a.bindGroupLayouts[layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("bind group layout %d: %w", layout, errNotFound)
	}

	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, entry := range entries {
		halEntry, err := a.convertBindGroupEntry(entry)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("bind group entry %d: %w", entry.Binding, err)
		}
		halEntries[i] = halEntry
	}
	a.mu.RUnlock()

	bindGroup, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  halLayout,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("failed to create bind group: %w", err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = bindGroup
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *HALAdapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	group, ok := a.bindGroups[id]
	delete(a.bindGroups, id)
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroup(group)
	}
}

// === Command Recording and Execution ===

// BeginComputePass begins a compute pass on the pending encoder, creating
// it if needed. On failure the returned encoder records nothing and the
// following Submit reports the error.
func (a *HALAdapter) BeginComputePass() gpucore.ComputePassEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.encoder == nil {
		encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
			Label: "compute-encoder",
		})
		if err != nil {
			slogger().Warn("gpu: create command encoder failed", "error", err)
			return &halComputePassEncoder{adapter: a}
		}
		if err := encoder.BeginEncoding("compute"); err != nil {
			slogger().Warn("gpu: begin encoding failed", "error", err)
			return &halComputePassEncoder{adapter: a}
		}
		a.encoder = encoder
	}

	return &halComputePassEncoder{
		adapter: a,
		pass:    a.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "compute"}),
	}
}

// Submit submits recorded commands to the GPU. The command buffer and
// its encoder are retired once the queue reports the submission complete.
func (a *HALAdapter) Submit() error {
	a.mu.Lock()
	encoder := a.encoder
	a.encoder = nil
	a.mu.Unlock()

	a.reclaim(a.queue.PollCompleted())

	if encoder == nil {
		return errNoEncoder
	}

	cmdBuffer, err := encoder.EndEncoding()
	if err != nil {
		encoder.Destroy()
		return fmt.Errorf("failed to end encoding: %w", err)
	}

	index, err := a.queue.Submit([]hal.CommandBuffer{cmdBuffer})
	if err != nil {
		a.device.FreeCommandBuffer(cmdBuffer)
		encoder.Destroy()
		return fmt.Errorf("failed to submit commands: %w", err)
	}

	a.mu.Lock()
	a.inflight = append(a.inflight, submission{index: index, encoder: encoder, cmdBuffer: cmdBuffer})
	a.mu.Unlock()
	return nil
}

// reclaim frees the command buffers of submissions up to completed.
func (a *HALAdapter) reclaim(completed uint64) {
	a.mu.Lock()
	var done []submission
	keep := a.inflight[:0]
	for _, s := range a.inflight {
		if s.index <= completed {
			done = append(done, s)
		} else {
			keep = append(keep, s)
		}
	}
	a.inflight = keep
	a.mu.Unlock()

	for _, s := range done {
		a.device.FreeCommandBuffer(s.cmdBuffer)
		s.encoder.Destroy()
	}
}

// WaitIdle submits pending work and waits for all GPU operations to complete.
func (a *HALAdapter) WaitIdle() error {
	if err := a.Submit(); err != nil && !errors.Is(err, errNoEncoder) {
		return err
	}
	if err := a.device.WaitIdle(); err != nil {
		return fmt.Errorf("failed to wait for device: %w", err)
	}
	a.reclaim(math.MaxUint64)
	return nil
}

// release destroys every resource still tracked by the adapter.
func (a *HALAdapter) release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.encoder != nil {
		a.encoder.DiscardEncoding()
		a.encoder.Destroy()
		a.encoder = nil
	}
	for _, s := range a.inflight {
		a.device.FreeCommandBuffer(s.cmdBuffer)
		s.encoder.Destroy()
	}
	a.inflight = nil
	for id, g := range a.bindGroups {
		a.device.DestroyBindGroup(g)
		delete(a.bindGroups, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, l := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(l)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.bindGroupLayouts, id)
	}
	for id, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
		delete(a.shaderModules, id)
	}
	for id, t := range a.textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.tex)
		delete(a.textures, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b)
		delete(a.buffers, id)
		delete(a.bufferSizes, id)
	}
}

// === Type Conversion Helpers ===

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}

	return result
}

// convertTextureFormat converts gpucore.TextureFormat to gputypes.TextureFormat.
func convertTextureFormat(format gpucore.TextureFormat) (gputypes.TextureFormat, error) {
	switch format {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("unsupported texture format %v", format)
	}
}

// convertBindGroupLayoutEntry converts gpucore.BindGroupLayoutEntry to gputypes.BindGroupLayoutEntry.
func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, error) {
	result := gputypes.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}

	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeReadOnlyStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeSampledTexture:
		result.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeWriteOnlyStorageTexture, gpucore.BindingTypeReadWriteStorageTexture:
		format, err := convertTextureFormat(entry.Format)
		if err != nil {
			return result, fmt.Errorf("binding %d: %w", entry.Binding, err)
		}
		access := gputypes.StorageTextureAccessWriteOnly
		if entry.Type == gpucore.BindingTypeReadWriteStorageTexture {
			access = gputypes.StorageTextureAccessReadWrite
		}
		result.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        access,
			Format:        format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return result, fmt.Errorf("binding %d: unknown binding type %d", entry.Binding, entry.Type)
	}

	return result, nil
}

// convertBindGroupEntry converts gpucore.BindGroupEntry to gputypes.BindGroupEntry.
// Must be called with mu.RLock held.
func (a *HALAdapter) convertBindGroupEntry(entry gpucore.BindGroupEntry) (gputypes.BindGroupEntry, error) {
	result := gputypes.BindGroupEntry{Binding: entry.Binding}

	switch {
	case entry.Buffer != gpucore.InvalidID:
		buffer, ok := a.buffers[entry.Buffer]
		if !ok {
			return result, fmt.Errorf("buffer %d: %w", entry.Buffer, errNotFound)
		}
		result.Resource = gputypes.BufferBinding{
			Buffer: buffer.NativeHandle(),
			Offset: entry.Offset,
			Size:   entry.Size,
		}
	case entry.Texture != gpucore.InvalidID:
		t, ok := a.textures[entry.Texture]
		if !ok {
			return result, fmt.Errorf("texture %d: %w", entry.Texture, errNotFound)
		}
		result.Resource = gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}
	default:
		return result, fmt.Errorf("no resource")
	}

	return result, nil
}

// === Compute Pass Encoder ===

// halComputePassEncoder implements gpucore.ComputePassEncoder.
// A nil pass records nothing.
type halComputePassEncoder struct {
	adapter *HALAdapter
	pass    hal.ComputePassEncoder
}

// SetPipeline sets the active compute pipeline.
func (e *halComputePassEncoder) SetPipeline(id gpucore.ComputePipelineID) {
	if e.pass == nil {
		return
	}
	e.adapter.mu.RLock()
	pipeline, ok := e.adapter.computePipelines[id]
	e.adapter.mu.RUnlock()
	if ok {
		e.pass.SetPipeline(pipeline)
	}
}

// SetBindGroup sets a bind group at the given index.
func (e *halComputePassEncoder) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	if e.pass == nil {
		return
	}
	e.adapter.mu.RLock()
	group, ok := e.adapter.bindGroups[id]
	e.adapter.mu.RUnlock()
	if ok {
		e.pass.SetBindGroup(index, group, nil)
	}
}

// Dispatch dispatches compute workgroups.
func (e *halComputePassEncoder) Dispatch(x, y, z uint32) {
	if e.pass != nil {
		e.pass.Dispatch(x, y, z)
	}
}

// End finishes the compute pass.
func (e *halComputePassEncoder) End() {
	if e.pass != nil {
		e.pass.End()
		e.pass = nil
	}
}
