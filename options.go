package pathtracer

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/pathtracer/render"
	"github.com/gogpu/pathtracer/scene"
)

// Option configures a Tracer during creation.
//
// Example:
//
//	// Standalone Vulkan device
//	t, err := pathtracer.New(cfg)
//
//	// Share the device of a gogpu window
//	t, err := pathtracer.New(cfg, pathtracer.WithDeviceProvider(app))
type Option func(*options)

// options holds optional configuration for Tracer creation.
type options struct {
	backend   gputypes.Backend
	pinned    bool
	provider  gpucontext.DeviceProvider
	adapter   gpucore.GPUAdapter
	kernel    gpucore.Kernel
	blender   render.Blender
	presenter render.Presenter
	registry  *scene.Registry
}

// defaultOptions returns the default tracer options: a standalone device
// on the best registered backend.
func defaultOptions() options {
	return options{}
}

// WithBackend selects the hal backend of a standalone device. The backend
// package must be imported for its registration side effect.
func WithBackend(b gputypes.Backend) Option {
	return func(o *options) {
		o.backend = b
		o.pinned = true
	}
}

// WithDeviceProvider renders on the device of a host application instead
// of opening one. The provider must expose HalDevice() and HalQueue().
// The tracer does not destroy a provided device.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithAdapter renders through an existing gpucore adapter. It takes
// precedence over WithDeviceProvider and WithBackend.
func WithAdapter(a gpucore.GPUAdapter) Option {
	return func(o *options) {
		o.adapter = a
	}
}

// WithKernel replaces the path-trace kernel. The caller keeps ownership.
func WithKernel(k gpucore.Kernel) Option {
	return func(o *options) {
		o.kernel = k
	}
}

// WithBlender replaces the accumulate kernel. The caller keeps ownership.
func WithBlender(b render.Blender) Option {
	return func(o *options) {
		o.blender = b
	}
}

// WithPresenter sets where converged frames go. Without it frames stay on
// the GPU until Snapshot reads them back.
func WithPresenter(p render.Presenter) Option {
	return func(o *options) {
		o.presenter = p
	}
}

// WithRegistry draws the meshes of a shared registry. Meshes listed in the
// configuration are added to it.
func WithRegistry(r *scene.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}
