// Package gpu implements gpucore.GPUAdapter on top of gogpu/wgpu/hal and
// ships the default WGSL kernels.
//
// A Device is either standalone or borrowed from a host application
// through a gpucontext.DeviceProvider. Open picks the first registered hal
// backend in the order Vulkan, Metal, DX12, GL; this package registers
// Vulkan. Kernels are written in WGSL and compiled to SPIR-V with naga,
// once per distinct source.
package gpu
