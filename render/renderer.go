// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/pathtracer/scene"
)

// Frame preconditions. Frame returns these without rendering anything.
var (
	ErrNoKernel = errors.New("render: no kernel")
	ErrNoSkybox = errors.New("render: no skybox texture")
	ErrNoLight  = errors.New("render: no directional light")
	ErrNoCamera = errors.New("render: no camera")

	// ErrInvalidViewport is returned for empty or oversized viewports.
	ErrInvalidViewport = errors.New("render: invalid viewport")

	// ErrClosed is returned by Frame after Close.
	ErrClosed = errors.New("render: renderer is closed")
)

// Blender accumulates a fresh sample into the convergence target with
// weight 1/(sample+1). gpucore.BlendKernel implements it.
type Blender interface {
	Blend(src, dst gpucore.TextureID, width, height int, sample uint32) error
}

// Presenter delivers the convergence target to its final destination: a
// window surface, a readback into an image, and so on. Present must not
// return before the GPU has finished with the texture.
type Presenter interface {
	Present(tex gpucore.TextureID, width, height int) error
}

// FrameInput is the per-frame input of Renderer.Frame.
type FrameInput struct {
	// Width and Height are the viewport size in pixels.
	Width, Height int

	Camera *Camera
	Light  *DirectionalLight
}

// Config configures a Renderer. Only Adapter is required up front; the
// other collaborators may be supplied later with the setters but must be
// present when Frame is called.
type Config struct {
	Adapter gpucore.GPUAdapter

	Kernel    gpucore.Kernel
	Blender   Blender
	Presenter Presenter

	// Registry is the mesh registry to draw. It may be shared with other
	// renderers. Nil draws spheres only.
	Registry *scene.Registry

	// Skybox is an RGBA32Float texture bound as _SkyboxTexture.
	Skybox gpucore.TextureID

	// Seed seeds the per-frame jitter and kernel seed stream.
	Seed int64
}

// Renderer runs the progressive accumulation loop.
//
// Each Frame binds the camera, light, skybox and geometry buffers to the
// kernel, traces one sample per pixel into the target texture and blends it
// into the convergence texture. The sample counter restarts at zero when
// the camera changes, the viewport is resized, the mesh registry is
// rebuilt, the targets are first allocated or a new sphere set is
// installed.
//
// The renderer owns its four geometry buffers and two targets and releases
// them in Close. It is not meant to be driven from several goroutines at
// once; a mutex only keeps misuse from corrupting state.
type Renderer struct {
	mu sync.Mutex

	adapter   gpucore.GPUAdapter
	kernel    gpucore.Kernel
	blender   Blender
	presenter Presenter
	registry  *scene.Registry
	skybox    gpucore.TextureID
	rng       *rand.Rand

	builder     scene.Builder
	spheres     *gpucore.Buffer
	meshObjects *gpucore.Buffer
	vertices    *gpucore.Buffer
	indices     *gpucore.Buffer

	targets targets
	sample  uint32
	frames  uint64
	closed  bool
}

// New creates a renderer.
func New(cfg Config) (*Renderer, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("render: adapter is required")
	}
	return &Renderer{
		adapter:   cfg.Adapter,
		kernel:    cfg.Kernel,
		blender:   cfg.Blender,
		presenter: cfg.Presenter,
		registry:  cfg.Registry,
		skybox:    cfg.Skybox,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// SetKernel replaces the path-trace kernel.
func (r *Renderer) SetKernel(k gpucore.Kernel) {
	r.mu.Lock()
	r.kernel = k
	r.mu.Unlock()
}

// SetBlender replaces the accumulate kernel.
func (r *Renderer) SetBlender(b Blender) {
	r.mu.Lock()
	r.blender = b
	r.mu.Unlock()
}

// SetPresenter replaces the presenter. Nil skips presentation.
func (r *Renderer) SetPresenter(p Presenter) {
	r.mu.Lock()
	r.presenter = p
	r.mu.Unlock()
}

// SetSkybox replaces the environment texture and restarts accumulation.
func (r *Renderer) SetSkybox(tex gpucore.TextureID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skybox != tex {
		r.skybox = tex
		r.sample = 0
	}
}

// SetSpheres uploads a new sphere set and restarts accumulation. An empty
// set releases the sphere buffer.
func (r *Renderer) SetSpheres(spheres []scene.Sphere) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	var err error
	r.spheres, err = gpucore.Reconcile(r.adapter, r.spheres, spheres, scene.SphereStride)
	r.sample = 0
	if err != nil {
		return fmt.Errorf("render: upload spheres: %w", err)
	}
	slogger().Debug("render: spheres uploaded", "count", len(spheres), "bytes", r.spheres.Size())
	return nil
}

// Sample returns the number of samples accumulated since the last reset.
func (r *Renderer) Sample() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sample
}

// Converged returns the convergence texture and its size. The texture is
// InvalidID before the first frame.
func (r *Renderer) Converged() (tex gpucore.TextureID, width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targets.converged, r.targets.width, r.targets.height
}

// Frame renders and presents one progressive sample.
func (r *Renderer) Frame(in FrameInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFrame(in); err != nil {
		return err
	}

	if in.Camera.takeChanged() {
		r.reset("camera")
	}

	if err := r.rebuildGeometry(); err != nil {
		return err
	}

	if !r.targets.fits(in.Width, in.Height) {
		if err := r.targets.allocate(r.adapter, in.Width, in.Height); err != nil {
			return err
		}
		r.reset("viewport")
		slogger().Debug("render: targets allocated", "width", in.Width, "height", in.Height)
	}

	if err := r.bind(in); err != nil {
		return err
	}

	x, y := gpucore.WorkgroupCount(in.Width, in.Height)
	if err := r.kernel.Dispatch(x, y, 1); err != nil {
		return fmt.Errorf("render: dispatch %dx%d: %w", x, y, err)
	}

	if err := r.blender.Blend(r.targets.target, r.targets.converged, in.Width, in.Height, r.sample); err != nil {
		return fmt.Errorf("render: blend sample %d: %w", r.sample, err)
	}

	if r.presenter != nil {
		if err := r.presenter.Present(r.targets.converged, in.Width, in.Height); err != nil {
			return fmt.Errorf("render: present: %w", err)
		}
	}

	r.sample++
	r.frames++
	return nil
}

// checkFrame validates the collaborators and inputs of a frame.
func (r *Renderer) checkFrame(in FrameInput) error {
	switch {
	case r.closed:
		return ErrClosed
	case r.kernel == nil:
		return ErrNoKernel
	case r.blender == nil:
		return fmt.Errorf("%w: no accumulate kernel", ErrNoKernel)
	case r.skybox == gpucore.InvalidID:
		return ErrNoSkybox
	case in.Light == nil:
		return ErrNoLight
	case in.Camera == nil:
		return ErrNoCamera
	}
	maxDim := int(r.adapter.MaxTextureDimension())
	if in.Width <= 0 || in.Height <= 0 || (maxDim > 0 && (in.Width > maxDim || in.Height > maxDim)) {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, in.Width, in.Height)
	}
	return nil
}

// rebuildGeometry flattens the registry and re-uploads the three mesh
// buffers when the registry changed since this renderer last built it.
func (r *Renderer) rebuildGeometry() error {
	if r.registry == nil || !r.builder.Rebuild(r.registry) {
		return nil
	}
	r.reset("geometry")

	b := &r.builder
	var err error
	if r.meshObjects, err = gpucore.Reconcile(r.adapter, r.meshObjects, b.Objects, scene.MeshObjectStride); err == nil {
		if r.vertices, err = gpucore.Reconcile(r.adapter, r.vertices, b.Vertices, scene.VertexStride); err == nil {
			r.indices, err = gpucore.Reconcile(r.adapter, r.indices, b.Indices, scene.IndexStride)
		}
	}
	if err != nil {
		// Retry the upload next frame.
		r.builder.Invalidate()
		return fmt.Errorf("render: upload geometry: %w", err)
	}

	slogger().Debug("render: geometry rebuilt",
		"objects", len(b.Objects),
		"vertices", len(b.Vertices),
		"indices", len(b.Indices))
	return nil
}

// bind sets every kernel parameter for this frame. Nothing is cached
// between frames.
func (r *Renderer) bind(in FrameInput) error {
	k := r.kernel
	pixelOffset := [4]float32{r.rng.Float32(), r.rng.Float32()}

	steps := []error{
		k.SetTexture(gpucore.ParamResult, r.targets.target),
		k.SetTexture(gpucore.ParamSkybox, r.skybox),
		k.SetMatrix(gpucore.ParamCameraToWorld, in.Camera.CameraToWorld()),
		k.SetMatrix(gpucore.ParamCameraInverseProjection, in.Camera.InverseProjection()),
		k.SetVector(gpucore.ParamPixelOffset, pixelOffset),
		k.SetVector(gpucore.ParamDirectionalLight, in.Light.Vector()),
		k.SetFloat(gpucore.ParamSeed, r.rng.Float32()),
	}
	buffers := []struct {
		name string
		buf  *gpucore.Buffer
	}{
		{gpucore.ParamSpheres, r.spheres},
		{gpucore.ParamMeshObjects, r.meshObjects},
		{gpucore.ParamVertices, r.vertices},
		{gpucore.ParamIndices, r.indices},
	}
	for _, b := range buffers {
		if b.buf != nil {
			steps = append(steps, k.SetBuffer(b.name, b.buf))
		}
	}

	if err := errors.Join(steps...); err != nil {
		return fmt.Errorf("render: bind parameters: %w", err)
	}
	return nil
}

// Reset restarts accumulation, e.g. after a change the renderer cannot
// observe such as a new light direction.
func (r *Renderer) Reset() {
	r.mu.Lock()
	r.reset("external")
	r.mu.Unlock()
}

func (r *Renderer) reset(reason string) {
	if r.sample != 0 {
		slogger().Debug("render: accumulation reset", "reason", reason, "samples", r.sample)
	}
	r.sample = 0
}

// Close releases the targets and geometry buffers. The kernel, blender
// and skybox belong to the caller.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	r.targets.release(r.adapter)
	r.spheres = gpucore.Release(r.adapter, r.spheres)
	r.meshObjects = gpucore.Release(r.adapter, r.meshObjects)
	r.vertices = gpucore.Release(r.adapter, r.vertices)
	r.indices = gpucore.Release(r.adapter, r.indices)
	slogger().Debug("render: closed", "frames", r.frames)
}
