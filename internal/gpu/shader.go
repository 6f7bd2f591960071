package gpu

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/gogpu/naga"

	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/pathtracer/internal/cache"
)

// Shader sources embedded at build time.

//go:embed shaders/pathtrace.wgsl
var pathTraceShaderWGSL string

//go:embed shaders/accumulate.wgsl
var accumulateShaderWGSL string

// Entry points of the embedded shaders.
const (
	PathTraceEntryPoint  = "main"
	AccumulateEntryPoint = "main"
)

// PathTraceSource returns the WGSL source of the default path-trace kernel.
func PathTraceSource() string {
	return pathTraceShaderWGSL
}

// spirvCache memoizes compiled kernels by source text.
var spirvCache = cache.New[string, []uint32](16)

// CompileWGSL compiles WGSL source to SPIR-V words. Results are cached by
// source; the returned slice must not be modified.
func CompileWGSL(source string) ([]uint32, error) {
	return spirvCache.GetOrCreate(source, func() ([]uint32, error) {
		return compileWGSL(source)
	})
}

func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("failed to compile shader: SPIR-V length %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}

// NewPathTraceKernel compiles a path-trace kernel. An empty source selects
// the embedded default kernel and its entry point.
func NewPathTraceKernel(adapter gpucore.GPUAdapter, source, entryPoint string) (*gpucore.ComputeKernel, error) {
	if source == "" {
		source, entryPoint = pathTraceShaderWGSL, PathTraceEntryPoint
	}
	spirv, err := CompileWGSL(source)
	if err != nil {
		return nil, fmt.Errorf("gpu: path-trace kernel: %w", err)
	}
	k, err := gpucore.NewComputeKernel(adapter, spirv, entryPoint)
	if err != nil {
		return nil, err
	}
	slogger().Debug("gpu: path-trace kernel ready", "entry", entryPoint, "spirv_words", len(spirv))
	return k, nil
}

// LoadPathTraceKernel reads WGSL from path and compiles it.
func LoadPathTraceKernel(adapter gpucore.GPUAdapter, path, entryPoint string) (*gpucore.ComputeKernel, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gpu: read kernel: %w", err)
	}
	if entryPoint == "" {
		entryPoint = PathTraceEntryPoint
	}
	return NewPathTraceKernel(adapter, string(src), entryPoint)
}

// NewBlendKernel compiles the embedded accumulate kernel.
func NewBlendKernel(adapter gpucore.GPUAdapter) (*gpucore.BlendKernel, error) {
	spirv, err := CompileWGSL(accumulateShaderWGSL)
	if err != nil {
		return nil, fmt.Errorf("gpu: accumulate kernel: %w", err)
	}
	return gpucore.NewBlendKernel(adapter, spirv, AccumulateEntryPoint)
}
