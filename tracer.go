// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pathtracer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/gogpu/pathtracer/config"
	"github.com/gogpu/pathtracer/envmap"
	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/pathtracer/internal/gpu"
	"github.com/gogpu/pathtracer/render"
	"github.com/gogpu/pathtracer/scene"
	"github.com/gogpu/pathtracer/vecmath"
)

// Size of the procedural sky used when no skybox file is configured.
const (
	skyWidth  = 256
	skyHeight = 128
)

var (
	// ErrNoFrame is returned by Snapshot before the first frame.
	ErrNoFrame = errors.New("pathtracer: no frame rendered yet")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pathtracer: tracer is closed")
)

var worldUp = vecmath.V3(0, 1, 0)

// Tracer owns a complete path-tracing setup built from a config.Config:
// the GPU device, the kernels, the skybox, the generated spheres, the
// configured meshes and the accumulation renderer.
//
// Tracer is safe for concurrent use; Apply may be called from a config
// watcher while another goroutine renders.
type Tracer struct {
	mu sync.Mutex

	cfg      *config.Config
	device   *gpu.Device
	adapter  gpucore.GPUAdapter
	renderer *render.Renderer
	registry *scene.Registry
	closers  []func()

	meshes  []*scene.Object
	spheres []scene.Sphere
	skybox  gpucore.TextureID
	camera  *render.Camera
	light   render.DirectionalLight
	closed  bool
}

// New builds a tracer from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config, opts ...Option) (*Tracer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tracer{cfg: cfg, registry: o.registry}
	if t.registry == nil {
		t.registry = scene.NewRegistry()
	}
	if err := t.open(o); err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			t.Close()
		}
	}()

	kernel, blender, err := t.kernels(o)
	if err != nil {
		return nil, err
	}
	t.renderer, err = render.New(render.Config{
		Adapter:   t.adapter,
		Kernel:    kernel,
		Blender:   blender,
		Presenter: o.presenter,
		Registry:  t.registry,
		Seed:      cfg.Scene.Seed,
	})
	if err != nil {
		return nil, err
	}

	if err := t.loadSkybox(cfg.Render); err != nil {
		return nil, err
	}
	if err := t.loadMeshes(cfg.Meshes); err != nil {
		return nil, err
	}
	if err := t.generate(cfg); err != nil {
		return nil, err
	}
	if err := t.setView(cfg); err != nil {
		return nil, err
	}
	ok = true
	return t, nil
}

func (t *Tracer) open(o options) error {
	var err error
	switch {
	case o.adapter != nil:
		t.adapter = o.adapter
		return nil
	case o.provider != nil:
		t.device, err = gpu.OpenProvider(o.provider)
	case o.pinned:
		t.device, err = gpu.OpenBackend(o.backend)
	default:
		t.device, err = gpu.Open()
	}
	if err != nil {
		return err
	}
	t.adapter = t.device.Adapter()
	if !t.adapter.SupportsCompute() {
		t.device.Close()
		return fmt.Errorf("pathtracer: %s does not support compute shaders", t.device.Name())
	}
	return nil
}

// kernels returns the configured kernels, compiling the built-in ones
// where no kernel was injected.
func (t *Tracer) kernels(o options) (gpucore.Kernel, render.Blender, error) {
	kernel, blender := o.kernel, o.blender
	if kernel == nil {
		var k *gpucore.ComputeKernel
		var err error
		if rc := t.cfg.Render; rc.Kernel != "" {
			k, err = gpu.LoadPathTraceKernel(t.adapter, rc.Kernel, rc.EntryPoint)
		} else {
			k, err = gpu.NewPathTraceKernel(t.adapter, "", "")
		}
		if err != nil {
			return nil, nil, err
		}
		t.closers = append(t.closers, k.Close)
		kernel = k
	}
	if blender == nil {
		b, err := gpu.NewBlendKernel(t.adapter)
		if err != nil {
			return nil, nil, err
		}
		t.closers = append(t.closers, b.Close)
		blender = b
	}
	return kernel, blender, nil
}

// loadSkybox uploads the configured skybox and installs it, releasing the
// previous one.
func (t *Tracer) loadSkybox(rc config.Render) error {
	maxDim := rc.SkyboxMaxDim
	if limit := int(t.adapter.MaxTextureDimension()); limit > 0 && (maxDim == 0 || maxDim > limit) {
		maxDim = limit
	}

	m := envmap.Gradient(skyWidth, skyHeight)
	if rc.Skybox != "" {
		var err error
		if m, err = envmap.Load(rc.Skybox, maxDim); err != nil {
			return err
		}
	}
	tex, err := envmap.Upload(t.adapter, m)
	if err != nil {
		return err
	}

	old := t.skybox
	t.skybox = tex
	t.renderer.SetSkybox(tex)
	if old != gpucore.InvalidID {
		if err := t.adapter.WaitIdle(); err != nil {
			Logger().Warn("pathtracer: wait before skybox release", "error", err)
		}
		t.adapter.DestroyTexture(old)
	}
	Logger().Debug("pathtracer: skybox loaded", "path", rc.Skybox, "width", m.Width, "height", m.Height)
	return nil
}

// loadMeshes replaces the configured meshes in the registry. Meshes added
// to a shared registry by others are left alone.
func (t *Tracer) loadMeshes(meshes []config.Mesh) error {
	objs := make([]*scene.Object, 0, len(meshes))
	for _, m := range meshes {
		mesh, err := scene.LoadOBJFile(m.Path)
		if err != nil {
			return err
		}
		objs = append(objs, scene.NewObject(mesh, m.Transform()))
	}
	for _, o := range t.meshes {
		t.registry.Unregister(o)
	}
	for _, o := range objs {
		t.registry.Register(o)
	}
	t.meshes = objs
	return nil
}

// generate places the spheres described by cfg.Scene and activates them.
func (t *Tracer) generate(cfg *config.Config) error {
	gen, err := cfg.GenerateConfig()
	if err != nil {
		return err
	}
	spheres := scene.Generate(gen)
	if err := t.renderer.SetSpheres(spheres); err != nil {
		return err
	}
	t.spheres = spheres
	Logger().Info("pathtracer: scene generated",
		"seed", gen.Seed,
		"policy", gen.Policy.String(),
		"requested", gen.Count,
		"placed", len(spheres))
	return nil
}

// setView updates the camera and light. A camera that ends up unchanged
// keeps accumulating.
func (t *Tracer) setView(cfg *config.Config) error {
	c := cfg.Camera
	aspect := float32(cfg.Render.Width) / float32(cfg.Render.Height)
	projection := vecmath.Perspective(c.FovYRadians(), aspect, c.Near, c.Far)
	if t.camera == nil {
		t.camera = render.NewCamera()
	}
	t.camera.SetLookAt(config.Vec3(c.Eye), config.Vec3(c.Target), worldUp)
	if err := t.camera.SetProjection(projection); err != nil {
		return err
	}

	light := render.DirectionalLight{
		Direction: config.Vec3(cfg.Light.Direction),
		Intensity: cfg.Light.Intensity,
	}
	if light != t.light {
		t.light = light
		t.renderer.Reset()
	}
	return nil
}

// Apply reconfigures a running tracer. Only what changed is rebuilt: a new
// scene section regenerates the spheres, new meshes or a new skybox are
// reloaded, and the view is updated. The kernel is fixed at creation.
func (t *Tracer) Apply(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	// Sections that fail keep their old values, so applying the same
	// configuration again retries them.
	old := t.cfg
	next := *cfg
	var errs []error
	if cfg.Scene != old.Scene {
		if err := t.generate(cfg); err != nil {
			next.Scene = old.Scene
			errs = append(errs, err)
		}
	}
	if cfg.Render.Skybox != old.Render.Skybox || cfg.Render.SkyboxMaxDim != old.Render.SkyboxMaxDim {
		if err := t.loadSkybox(cfg.Render); err != nil {
			next.Render.Skybox, next.Render.SkyboxMaxDim = old.Render.Skybox, old.Render.SkyboxMaxDim
			errs = append(errs, err)
		}
	}
	if !slices.Equal(cfg.Meshes, old.Meshes) {
		if err := t.loadMeshes(cfg.Meshes); err != nil {
			next.Meshes = old.Meshes
			errs = append(errs, err)
		}
	}
	if cfg.Render.Kernel != old.Render.Kernel || cfg.Render.EntryPoint != old.Render.EntryPoint {
		Logger().Warn("pathtracer: kernel changes need a restart", "kernel", cfg.Render.Kernel)
	}
	if err := t.setView(cfg); err != nil {
		next.Camera, next.Light = old.Camera, old.Light
		errs = append(errs, err)
	}
	t.cfg = &next
	return errors.Join(errs...)
}

// Frame renders one progressive sample at the configured resolution.
func (t *Tracer) Frame() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return t.renderer.Frame(render.FrameInput{
		Width:  t.cfg.Render.Width,
		Height: t.cfg.Render.Height,
		Camera: t.camera,
		Light:  &t.light,
	})
}

// Render runs frames until samples have been accumulated since the last
// reset or ctx is done. progress, if not nil, is called after each frame
// with the current sample count. A reset during Render, e.g. from Apply,
// extends the run.
func (t *Tracer) Render(ctx context.Context, samples int, progress func(sample uint32)) error {
	for {
		s := t.Sample()
		if int(s) >= samples {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Frame(); err != nil {
			return err
		}
		if progress != nil {
			progress(t.Sample())
		}
	}
}

// Sample returns the number of samples accumulated since the last reset.
func (t *Tracer) Sample() uint32 {
	return t.renderer.Sample()
}

// Snapshot reads the converged image back from the GPU.
func (t *Tracer) Snapshot() (*image.RGBA, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	tex, w, h := t.renderer.Converged()
	if tex == gpucore.InvalidID {
		return nil, ErrNoFrame
	}
	return render.ReadImage(t.adapter, tex, w, h)
}

// Spheres returns the active sphere set. It must not be modified.
func (t *Tracer) Spheres() []scene.Sphere {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spheres
}

// Camera returns the tracer's camera. Moving it restarts accumulation.
func (t *Tracer) Camera() *render.Camera { return t.camera }

// Registry returns the mesh registry drawn by the tracer.
func (t *Tracer) Registry() *scene.Registry { return t.registry }

// Adapter returns the GPU adapter the tracer renders with.
func (t *Tracer) Adapter() gpucore.GPUAdapter { return t.adapter }

// Close releases everything the tracer created. Injected kernels,
// presenters, registries and adapters are left to the caller, except that
// configured meshes are unregistered.
func (t *Tracer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true

	for _, o := range t.meshes {
		t.registry.Unregister(o)
	}
	t.meshes = nil
	if t.renderer != nil {
		t.renderer.Close()
	}
	if t.skybox != gpucore.InvalidID {
		t.adapter.DestroyTexture(t.skybox)
		t.skybox = gpucore.InvalidID
	}
	for i := len(t.closers) - 1; i >= 0; i-- {
		t.closers[i]()
	}
	t.closers = nil
	if t.device != nil {
		t.device.Close()
	}
}
