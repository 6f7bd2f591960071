package gpucore

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when a kernel is used after Close.
var ErrClosed = errors.New("gpucore: kernel is closed")

// computePipeline owns the GPU objects behind one compute kernel: the
// shader module, a single bind group layout, the pipeline and a uniform
// buffer. It is shared by ComputeKernel and BlendKernel.
type computePipeline struct {
	adapter GPUAdapter
	label   string

	module   ShaderModuleID
	bgLayout BindGroupLayoutID
	plLayout PipelineLayoutID
	pipeline ComputePipelineID
	uniforms BufferID

	// bindGroup is the group used by the last dispatch. It is destroyed on
	// the next dispatch, once the previous frame has been presented.
	bindGroup BindGroupID
}

// newComputePipeline compiles a pipeline with one bind group (group 0)
// described by entries, plus a uniform buffer of uniformSize bytes when
// uniformSize > 0.
func newComputePipeline(
	adapter GPUAdapter,
	label string,
	spirv []uint32,
	entryPoint string,
	entries []BindGroupLayoutEntry,
	uniformSize int,
) (*computePipeline, error) {
	if adapter == nil {
		return nil, fmt.Errorf("gpucore: %s: adapter is required", label)
	}
	if !adapter.SupportsCompute() {
		return nil, fmt.Errorf("gpucore: %s: adapter does not support compute", label)
	}

	p := &computePipeline{adapter: adapter, label: label}
	var err error

	p.module, err = adapter.CreateShaderModule(spirv, label)
	if err != nil {
		return nil, fmt.Errorf("gpucore: %s: create shader module: %w", label, err)
	}

	p.bgLayout, err = adapter.CreateBindGroupLayout(&BindGroupLayoutDesc{
		Label:   label + "_bgl",
		Entries: entries,
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("gpucore: %s: create bind group layout: %w", label, err)
	}

	p.plLayout, err = adapter.CreatePipelineLayout([]BindGroupLayoutID{p.bgLayout})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("gpucore: %s: create pipeline layout: %w", label, err)
	}

	p.pipeline, err = adapter.CreateComputePipeline(&ComputePipelineDesc{
		Label:        label,
		Layout:       p.plLayout,
		ShaderModule: p.module,
		EntryPoint:   entryPoint,
	})
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("gpucore: %s: create compute pipeline: %w", label, err)
	}

	if uniformSize > 0 {
		p.uniforms, err = adapter.CreateBuffer(uniformSize, BufferUsageUniform|BufferUsageCopyDst)
		if err != nil {
			p.destroy()
			return nil, fmt.Errorf("gpucore: %s: create uniform buffer: %w", label, err)
		}
	}

	return p, nil
}

// destroy releases every object that was created, in reverse order.
// It is safe to call on a partially initialized pipeline.
func (p *computePipeline) destroy() {
	a := p.adapter
	if p.bindGroup != InvalidID {
		a.DestroyBindGroup(p.bindGroup)
		p.bindGroup = InvalidID
	}
	if p.uniforms != InvalidID {
		a.DestroyBuffer(p.uniforms)
		p.uniforms = InvalidID
	}
	if p.pipeline != InvalidID {
		a.DestroyComputePipeline(p.pipeline)
		p.pipeline = InvalidID
	}
	if p.plLayout != InvalidID {
		a.DestroyPipelineLayout(p.plLayout)
		p.plLayout = InvalidID
	}
	if p.bgLayout != InvalidID {
		a.DestroyBindGroupLayout(p.bgLayout)
		p.bgLayout = InvalidID
	}
	if p.module != InvalidID {
		a.DestroyShaderModule(p.module)
		p.module = InvalidID
	}
}

// dispatch uploads uniforms, binds entries as group 0, records one compute
// pass of x*y*1 workgroups and submits it.
func (p *computePipeline) dispatch(uniforms []byte, entries []BindGroupEntry, x, y uint32) error {
	a := p.adapter

	if p.uniforms != InvalidID && len(uniforms) > 0 {
		if err := a.WriteBuffer(p.uniforms, 0, uniforms); err != nil {
			return fmt.Errorf("gpucore: %s: write uniforms: %w", p.label, err)
		}
	}

	if p.bindGroup != InvalidID {
		a.DestroyBindGroup(p.bindGroup)
		p.bindGroup = InvalidID
	}
	bg, err := a.CreateBindGroup(p.bgLayout, entries)
	if err != nil {
		return fmt.Errorf("gpucore: %s: create bind group: %w", p.label, err)
	}
	p.bindGroup = bg

	pass := a.BeginComputePass()
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg)
	pass.Dispatch(x, y, 1)
	pass.End()

	if err := a.Submit(); err != nil {
		return fmt.Errorf("gpucore: %s: submit: %w", p.label, err)
	}
	return nil
}
