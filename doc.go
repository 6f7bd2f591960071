// Package pathtracer drives a GPU progressive path tracer.
//
// # Overview
//
// The renderer traces one jittered sample per pixel each frame and blends
// it into a convergence texture, so the image refines for as long as the
// view stays still. Any change to the camera, the viewport or the scene
// geometry restarts the accumulation.
//
// # Quick Start
//
//	import "github.com/gogpu/pathtracer"
//
//	cfg := config.Default()
//	t, err := pathtracer.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	if err := t.Render(ctx, cfg.Render.Samples, nil); err != nil {
//	    log.Fatal(err)
//	}
//	img, err := t.Snapshot()
//
// # Architecture
//
// The module is organized into:
//   - scene: sphere generation, meshes, the geometry registry and builder
//   - gpucore: backend-independent buffers and compute kernels
//   - render: the accumulation renderer, camera and presenters
//   - envmap: skybox loading and procedural skies
//   - config: TOML and YAML configuration with hot reload
//   - internal/gpu: the gogpu/wgpu HAL adapter and built-in WGSL kernels
//
// Tracer in this package wires them together.
//
// # Coordinate System
//
// Right-handed, Y up. Matrices are column-major float32 as in WGSL.
package pathtracer

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
