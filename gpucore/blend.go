// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"encoding/binary"
	"math"
	"sync"
)

// blendUniformSize is the size of the BlendParams struct in accumulate.wgsl:
// weight f32, sample u32, two words of padding.
const blendUniformSize = 16

const (
	blendBindingSrc    = 0
	blendBindingDst    = 1
	blendBindingParams = 2
)

// BlendWeight returns the weight of sample n in the running average of
// samples 0..n. Sample 0 replaces the accumulation; sample n contributes
// 1/(n+1), so every sample ends up weighted equally.
func BlendWeight(sample uint32) float32 {
	return 1 / (float32(sample) + 1)
}

// BlendLayout returns the bind group layout of the accumulate kernel.
func BlendLayout() []BindGroupLayoutEntry {
	return []BindGroupLayoutEntry{
		{Binding: blendBindingSrc, Type: BindingTypeSampledTexture},
		{Binding: blendBindingDst, Type: BindingTypeReadWriteStorageTexture, Format: TextureFormatRGBA32Float},
		{Binding: blendBindingParams, Type: BindingTypeUniformBuffer, MinBindingSize: blendUniformSize},
	}
}

// BlendKernel blends a freshly traced sample into the convergence target:
//
//	dst = mix(dst, src, 1/(sample+1))
type BlendKernel struct {
	mu     sync.Mutex
	pipe   *computePipeline
	closed bool
}

// NewBlendKernel creates the accumulate kernel from SPIR-V.
func NewBlendKernel(adapter GPUAdapter, spirv []uint32, entryPoint string) (*BlendKernel, error) {
	pipe, err := newComputePipeline(adapter, "accumulate", spirv, entryPoint, BlendLayout(), blendUniformSize)
	if err != nil {
		return nil, err
	}
	return &BlendKernel{pipe: pipe}, nil
}

// Blend accumulates src into dst. Both textures must be width x height
// RGBA32Float.
func (b *BlendKernel) Blend(src, dst TextureID, width, height int, sample uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	var params [blendUniformSize]byte
	binary.LittleEndian.PutUint32(params[0:], math.Float32bits(BlendWeight(sample)))
	binary.LittleEndian.PutUint32(params[4:], sample)

	x, y := WorkgroupCount(width, height)
	return b.pipe.dispatch(params[:], []BindGroupEntry{
		{Binding: blendBindingSrc, Texture: src},
		{Binding: blendBindingDst, Texture: dst},
		{Binding: blendBindingParams, Buffer: b.pipe.uniforms, Size: blendUniformSize},
	}, x, y)
}

// Close releases the kernel's GPU objects.
func (b *BlendKernel) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.pipe.destroy()
}
