// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Kernel parameter names. These are the names a path-trace kernel exposes
// to the renderer.
const (
	ParamResult                  = "Result"
	ParamSkybox                  = "_SkyboxTexture"
	ParamCameraToWorld           = "_CameraToWorld"
	ParamCameraInverseProjection = "_CameraInverseProjection"
	ParamPixelOffset             = "_PixelOffset"
	ParamDirectionalLight        = "_DirectionalLight"
	ParamSeed                    = "_Seed"
	ParamSpheres                 = "_Spheres"
	ParamMeshObjects             = "_MeshObjects"
	ParamVertices                = "_Vertices"
	ParamIndices                 = "_Indices"
)

// Kernel errors.
var (
	// ErrUnknownParam is returned when a parameter name is not part of the
	// kernel interface, or is set with the wrong kind of value.
	ErrUnknownParam = errors.New("gpucore: unknown kernel parameter")

	// ErrUnboundTexture is returned by Dispatch when Result or
	// _SkyboxTexture has not been bound.
	ErrUnboundTexture = errors.New("gpucore: required texture not bound")
)

// Kernel is the compute kernel boundary. Resources and values are bound by
// name, then Dispatch runs the kernel over a grid of workgroups.
//
// Resource bindings (textures and buffers) are consumed by Dispatch: each
// frame binds them again. A buffer that is never set reads as empty.
type Kernel interface {
	SetTexture(name string, tex TextureID) error
	SetMatrix(name string, m [16]float32) error
	SetVector(name string, v [4]float32) error
	SetFloat(name string, f float32) error
	SetBuffer(name string, buf *Buffer) error
	Dispatch(x, y, z uint32) error
}

// Binding slots of group 0. Must match pathtrace.wgsl.
const (
	bindingResult      = 0
	bindingSkybox      = 1
	bindingParams      = 2
	bindingSpheres     = 3
	bindingMeshObjects = 4
	bindingVertices    = 5
	bindingIndices     = 6
)

// paramsSize is the size of the Params uniform struct in pathtrace.wgsl:
//
//	camera_to_world           mat4x4<f32>  offset   0
//	camera_inverse_projection mat4x4<f32>  offset  64
//	directional_light         vec4<f32>    offset 128
//	pixel_offset              vec2<f32>    offset 144
//	seed                      f32          offset 152
//	sphere_count              u32          offset 156
//	mesh_object_count         u32          offset 160
//	(padding to a 16-byte multiple)
const paramsSize = 176

const (
	offsetSphereCount     = 156
	offsetMeshObjectCount = 160
)

// uniformField locates a named value inside the Params struct.
type uniformField struct {
	offset int
	floats int
}

var uniformFields = map[string]uniformField{
	ParamCameraToWorld:           {0, 16},
	ParamCameraInverseProjection: {64, 16},
	ParamDirectionalLight:        {128, 4},
	ParamPixelOffset:             {144, 2},
	ParamSeed:                    {152, 1},
}

var bufferBindings = map[string]uint32{
	ParamSpheres:     bindingSpheres,
	ParamMeshObjects: bindingMeshObjects,
	ParamVertices:    bindingVertices,
	ParamIndices:     bindingIndices,
}

// PathTraceLayout returns the bind group layout every path-trace kernel
// must declare.
func PathTraceLayout() []BindGroupLayoutEntry {
	return []BindGroupLayoutEntry{
		{Binding: bindingResult, Type: BindingTypeWriteOnlyStorageTexture, Format: TextureFormatRGBA32Float},
		{Binding: bindingSkybox, Type: BindingTypeSampledTexture},
		{Binding: bindingParams, Type: BindingTypeUniformBuffer, MinBindingSize: paramsSize},
		{Binding: bindingSpheres, Type: BindingTypeReadOnlyStorageBuffer},
		{Binding: bindingMeshObjects, Type: BindingTypeReadOnlyStorageBuffer},
		{Binding: bindingVertices, Type: BindingTypeReadOnlyStorageBuffer},
		{Binding: bindingIndices, Type: BindingTypeReadOnlyStorageBuffer},
	}
}

// placeholderSize backs storage bindings whose buffer is absent. WebGPU
// requires every binding of a group to be populated.
const placeholderSize = 16

// ComputeKernel is a Kernel backed by a compute pipeline on a GPUAdapter.
//
// Named values are packed into one uniform buffer; named textures and
// buffers map to fixed binding slots (see PathTraceLayout).
type ComputeKernel struct {
	mu sync.Mutex

	pipe        *computePipeline
	placeholder BufferID
	closed      bool

	params   [paramsSize]byte
	textures map[string]TextureID
	buffers  map[string]*Buffer
}

var _ Kernel = (*ComputeKernel)(nil)

// NewComputeKernel creates a kernel from SPIR-V that implements the
// path-trace binding layout with the given entry point.
func NewComputeKernel(adapter GPUAdapter, spirv []uint32, entryPoint string) (*ComputeKernel, error) {
	pipe, err := newComputePipeline(adapter, "pathtrace", spirv, entryPoint, PathTraceLayout(), paramsSize)
	if err != nil {
		return nil, err
	}
	placeholder, err := adapter.CreateBuffer(placeholderSize, storageUsage)
	if err != nil {
		pipe.destroy()
		return nil, fmt.Errorf("gpucore: pathtrace: create placeholder buffer: %w", err)
	}
	return &ComputeKernel{
		pipe:        pipe,
		placeholder: placeholder,
		textures:    make(map[string]TextureID),
		buffers:     make(map[string]*Buffer),
	}, nil
}

// SetTexture binds Result or _SkyboxTexture.
func (k *ComputeKernel) SetTexture(name string, tex TextureID) error {
	if name != ParamResult && name != ParamSkybox {
		return fmt.Errorf("%w: texture %q", ErrUnknownParam, name)
	}
	k.mu.Lock()
	k.textures[name] = tex
	k.mu.Unlock()
	return nil
}

// SetMatrix sets a 4x4 column-major matrix value.
func (k *ComputeKernel) SetMatrix(name string, m [16]float32) error {
	return k.setFloats(name, 16, m[:])
}

// SetVector sets a vector value. Two-component parameters use x and y.
func (k *ComputeKernel) SetVector(name string, v [4]float32) error {
	f, ok := uniformFields[name]
	if !ok || (f.floats != 4 && f.floats != 2) {
		return fmt.Errorf("%w: vector %q", ErrUnknownParam, name)
	}
	return k.setFloats(name, f.floats, v[:f.floats])
}

// SetFloat sets a scalar value.
func (k *ComputeKernel) SetFloat(name string, v float32) error {
	return k.setFloats(name, 1, []float32{v})
}

func (k *ComputeKernel) setFloats(name string, n int, vals []float32) error {
	f, ok := uniformFields[name]
	if !ok || f.floats != n {
		return fmt.Errorf("%w: %q as %d floats", ErrUnknownParam, name, n)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, v := range vals {
		binary.LittleEndian.PutUint32(k.params[f.offset+i*4:], math.Float32bits(v))
	}
	return nil
}

// SetBuffer binds one of the four geometry buffers. Passing nil leaves the
// slot unbound.
func (k *ComputeKernel) SetBuffer(name string, buf *Buffer) error {
	if _, ok := bufferBindings[name]; !ok {
		return fmt.Errorf("%w: buffer %q", ErrUnknownParam, name)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if buf == nil {
		delete(k.buffers, name)
		return nil
	}
	k.buffers[name] = buf
	return nil
}

// Dispatch runs the kernel over x*y*z workgroups and clears the resource
// bindings for the next frame.
func (k *ComputeKernel) Dispatch(x, y, z uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return ErrClosed
	}
	result, ok := k.textures[ParamResult]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnboundTexture, ParamResult)
	}
	skybox, ok := k.textures[ParamSkybox]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnboundTexture, ParamSkybox)
	}

	binary.LittleEndian.PutUint32(k.params[offsetSphereCount:], uint32(k.buffers[ParamSpheres].Len()))
	binary.LittleEndian.PutUint32(k.params[offsetMeshObjectCount:], uint32(k.buffers[ParamMeshObjects].Len()))

	entries := []BindGroupEntry{
		{Binding: bindingResult, Texture: result},
		{Binding: bindingSkybox, Texture: skybox},
		{Binding: bindingParams, Buffer: k.pipe.uniforms, Size: paramsSize},
		k.bufferEntry(ParamSpheres),
		k.bufferEntry(ParamMeshObjects),
		k.bufferEntry(ParamVertices),
		k.bufferEntry(ParamIndices),
	}

	if z == 0 {
		z = 1
	}
	var err error
	for i := uint32(0); i < z && err == nil; i++ {
		err = k.pipe.dispatch(k.params[:], entries, x, y)
	}

	clear(k.textures)
	clear(k.buffers)
	return err
}

// bufferEntry binds the named buffer, or the placeholder when it is absent.
func (k *ComputeKernel) bufferEntry(name string) BindGroupEntry {
	slot := bufferBindings[name]
	if buf := k.buffers[name]; buf != nil && buf.ID != InvalidID {
		return BindGroupEntry{Binding: slot, Buffer: buf.ID, Size: uint64(buf.Size())}
	}
	return BindGroupEntry{Binding: slot, Buffer: k.placeholder, Size: placeholderSize}
}

// Close releases all GPU objects owned by the kernel.
func (k *ComputeKernel) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	k.closed = true
	k.pipe.destroy()
	if k.placeholder != InvalidID {
		k.pipe.adapter.DestroyBuffer(k.placeholder)
		k.placeholder = InvalidID
	}
}
