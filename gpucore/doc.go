// Package gpucore provides the backend-neutral GPU layer of the path tracer.
//
// This package defines the [GPUAdapter] interface, which abstracts over GPU
// backend implementations, and builds the reusable pieces of the
// accumulation pipeline on top of it:
//   - [Reconcile], the buffer cache policy that keeps a fixed-stride GPU
//     buffer in sync with a CPU-side slice of records
//   - [ComputeKernel], a compute pipeline whose inputs are bound by name
//     (Result, _SkyboxTexture, _CameraToWorld, ...) and packed into a bind
//     group on every dispatch
//   - [BlendKernel], the running-average blend of a fresh sample into the
//     convergence target
//
// # Architecture
//
//	                +------------------+
//	                |  render.Renderer |
//	                +--------+---------+
//	                         |
//	        +----------------+-----------------+
//	        |                |                 |
//	+-------v-----+  +-------v-------+  +------v------+
//	|  Reconcile  |  | ComputeKernel |  | BlendKernel |
//	+-------+-----+  +-------+-------+  +------+------+
//	        |                |                 |
//	        +----------------+-----------------+
//	                         |
//	                +--------v--------+
//	                |   GPUAdapter    |
//	                +--------+--------+
//	                         |
//	                +--------v--------+
//	                |  internal/gpu   |
//	                |  (hal.Device)   |
//	                +-----------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// The [GPUAdapter] interface provides creation and destruction methods for
// each resource type. Adapters are responsible for tracking the mapping
// between IDs and actual GPU resources.
//
// # Workgroup Tile
//
// Every compute shader in this module runs with an 8x8 workgroup. The
// dispatch grid is derived from [TileSize] via [WorkgroupCount]; WGSL
// sources declare @workgroup_size(8, 8, 1) to match.
package gpucore
