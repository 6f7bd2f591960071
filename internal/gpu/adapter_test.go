package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtracer/gpucore"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newNoopAdapter(t *testing.T) *HALAdapter {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	a := NewHALAdapter(device, queue, nil)
	t.Cleanup(func() {
		a.release()
		cleanup()
	})
	return a
}

// fakeSPIRV is accepted by the noop backend, which does not parse modules.
var fakeSPIRV = []uint32{0x07230203, 0x00010000, 0, 1, 0}

func TestHALAdapter_Capabilities(t *testing.T) {
	a := newNoopAdapter(t)
	lim := gputypes.DefaultLimits()

	if !a.SupportsCompute() {
		t.Error("SupportsCompute() = false, want true")
	}
	if got := a.MaxTextureDimension(); got != lim.MaxTextureDimension2D {
		t.Errorf("MaxTextureDimension() = %d, want %d", got, lim.MaxTextureDimension2D)
	}
	if got := a.MaxBufferSize(); got != lim.MaxBufferSize {
		t.Errorf("MaxBufferSize() = %d, want %d", got, lim.MaxBufferSize)
	}
	if got := a.MaxWorkgroupSize(); got[0] != lim.MaxComputeWorkgroupSizeX {
		t.Errorf("MaxWorkgroupSize()[0] = %d, want %d", got[0], lim.MaxComputeWorkgroupSizeX)
	}
}

func TestHALAdapter_Buffers(t *testing.T) {
	a := newNoopAdapter(t)

	if _, err := a.CreateBuffer(0, gpucore.BufferUsageStorage); err == nil {
		t.Error("CreateBuffer(0) expected error")
	}

	id, err := a.CreateBuffer(64, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if id == gpucore.InvalidID {
		t.Fatal("CreateBuffer() returned InvalidID")
	}

	if err := a.WriteBuffer(id, 0, make([]byte, 64)); err != nil {
		t.Errorf("WriteBuffer() error = %v", err)
	}
	if err := a.WriteBuffer(id, 32, make([]byte, 64)); err == nil {
		t.Error("WriteBuffer() past the end expected error")
	}
	if err := a.WriteBuffer(id+100, 0, []byte{1}); !errors.Is(err, errNotFound) {
		t.Errorf("WriteBuffer() unknown id error = %v, want errNotFound", err)
	}

	data, err := a.ReadBuffer(id, 16, 32)
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	if len(data) != 32 {
		t.Errorf("ReadBuffer() returned %d bytes, want 32", len(data))
	}
	if _, err := a.ReadBuffer(id, 48, 32); err == nil {
		t.Error("ReadBuffer() out of range expected error")
	}

	a.DestroyBuffer(id)
	if len(a.buffers) != 0 || len(a.bufferSizes) != 0 {
		t.Errorf("DestroyBuffer() left %d buffers tracked", len(a.buffers))
	}
	a.DestroyBuffer(id) // second destroy is a no-op
}

func TestHALAdapter_Textures(t *testing.T) {
	a := newNoopAdapter(t)

	tests := []struct {
		name   string
		w, h   int
		format gpucore.TextureFormat
		ok     bool
	}{
		{"rgba32f", 3, 2, gpucore.TextureFormatRGBA32Float, true},
		{"rgba8", 64, 64, gpucore.TextureFormatRGBA8Unorm, true},
		{"zero width", 0, 2, gpucore.TextureFormatRGBA32Float, false},
		{"too large", int(a.MaxTextureDimension()) + 1, 1, gpucore.TextureFormatRGBA32Float, false},
		{"unknown format", 1, 1, gpucore.TextureFormat(99), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.CreateTexture(tt.w, tt.h, tt.format)
			if (err == nil) != tt.ok {
				t.Fatalf("CreateTexture() error = %v, want ok=%v", err, tt.ok)
			}
			if !tt.ok {
				return
			}
			defer a.DestroyTexture(id)

			size := tt.w * tt.h * tt.format.BytesPerPixel()
			if err := a.WriteTexture(id, make([]byte, size)); err != nil {
				t.Errorf("WriteTexture() error = %v", err)
			}
			if err := a.WriteTexture(id, make([]byte, size-1)); err == nil {
				t.Error("WriteTexture() with short data expected error")
			}

			data, err := a.ReadTexture(id)
			if err != nil {
				t.Fatalf("ReadTexture() error = %v", err)
			}
			if len(data) != size {
				t.Errorf("ReadTexture() returned %d bytes, want %d", len(data), size)
			}
		})
	}

	if len(a.textures) != 0 {
		t.Errorf("%d textures still tracked", len(a.textures))
	}
}

func TestConvertBindGroupLayoutEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry gpucore.BindGroupLayoutEntry
		check func(gputypes.BindGroupLayoutEntry) bool
	}{
		{
			"uniform",
			gpucore.BindGroupLayoutEntry{Binding: 2, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: 176},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeUniform && e.Buffer.MinBindingSize == 176
			},
		},
		{
			"read-only storage",
			gpucore.BindGroupLayoutEntry{Binding: 3, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeReadOnlyStorage
			},
		},
		{
			"sampled texture",
			gpucore.BindGroupLayoutEntry{Binding: 1, Type: gpucore.BindingTypeSampledTexture},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Texture != nil && e.Texture.SampleType == gputypes.TextureSampleTypeUnfilterableFloat
			},
		},
		{
			"write-only storage texture",
			gpucore.BindGroupLayoutEntry{Binding: 0, Type: gpucore.BindingTypeWriteOnlyStorageTexture, Format: gpucore.TextureFormatRGBA32Float},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.StorageTexture != nil &&
					e.StorageTexture.Access == gputypes.StorageTextureAccessWriteOnly &&
					e.StorageTexture.Format == gputypes.TextureFormatRGBA32Float
			},
		},
		{
			"read-write storage texture",
			gpucore.BindGroupLayoutEntry{Binding: 1, Type: gpucore.BindingTypeReadWriteStorageTexture, Format: gpucore.TextureFormatRGBA32Float},
			func(e gputypes.BindGroupLayoutEntry) bool {
				return e.StorageTexture != nil && e.StorageTexture.Access == gputypes.StorageTextureAccessReadWrite
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertBindGroupLayoutEntry(tt.entry)
			if err != nil {
				t.Fatalf("convertBindGroupLayoutEntry() error = %v", err)
			}
			if got.Binding != tt.entry.Binding || got.Visibility != gputypes.ShaderStageCompute {
				t.Errorf("binding/visibility = %d/%v", got.Binding, got.Visibility)
			}
			if !tt.check(got) {
				t.Errorf("convertBindGroupLayoutEntry() = %+v", got)
			}
		})
	}

	if _, err := convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{Type: 0}); err == nil {
		t.Error("unknown binding type expected error")
	}
	if _, err := convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{Type: gpucore.BindingTypeWriteOnlyStorageTexture}); err == nil {
		t.Error("storage texture without format expected error")
	}
}

func TestHALAdapter_Submit(t *testing.T) {
	a := newNoopAdapter(t)

	if err := a.Submit(); !errors.Is(err, errNoEncoder) {
		t.Errorf("Submit() with nothing recorded = %v, want errNoEncoder", err)
	}
	if err := a.WaitIdle(); err != nil {
		t.Errorf("WaitIdle() error = %v", err)
	}

	pass := a.BeginComputePass()
	pass.Dispatch(1, 1, 1)
	pass.End()
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := a.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if len(a.inflight) != 0 {
		t.Errorf("WaitIdle() left %d submissions in flight", len(a.inflight))
	}
}

func TestHALAdapter_KernelDispatch(t *testing.T) {
	a := newNoopAdapter(t)

	k, err := gpucore.NewComputeKernel(a, fakeSPIRV, PathTraceEntryPoint)
	if err != nil {
		t.Fatalf("NewComputeKernel() error = %v", err)
	}
	blend, err := gpucore.NewBlendKernel(a, fakeSPIRV, AccumulateEntryPoint)
	if err != nil {
		t.Fatalf("NewBlendKernel() error = %v", err)
	}

	target, _ := a.CreateTexture(16, 16, gpucore.TextureFormatRGBA32Float)
	converged, _ := a.CreateTexture(16, 16, gpucore.TextureFormatRGBA32Float)
	skybox, _ := a.CreateTexture(4, 2, gpucore.TextureFormatRGBA32Float)

	for frame := uint32(0); frame < 3; frame++ {
		if err := k.SetTexture(gpucore.ParamResult, target); err != nil {
			t.Fatal(err)
		}
		if err := k.SetTexture(gpucore.ParamSkybox, skybox); err != nil {
			t.Fatal(err)
		}
		x, y := gpucore.WorkgroupCount(16, 16)
		if err := k.Dispatch(x, y, 1); err != nil {
			t.Fatalf("frame %d: Dispatch() error = %v", frame, err)
		}
		if err := blend.Blend(target, converged, 16, 16, frame); err != nil {
			t.Fatalf("frame %d: Blend() error = %v", frame, err)
		}
	}

	// One bind group per kernel survives between dispatches.
	if got := len(a.bindGroups); got != 2 {
		t.Errorf("live bind groups = %d, want 2", got)
	}

	k.Close()
	blend.Close()
	a.DestroyTexture(target)
	a.DestroyTexture(converged)
	a.DestroyTexture(skybox)

	if n := len(a.buffers) + len(a.textures) + len(a.bindGroups) + len(a.computePipelines) +
		len(a.pipelineLayouts) + len(a.bindGroupLayouts) + len(a.shaderModules); n != 0 {
		t.Errorf("%d objects leaked after Close", n)
	}
}

func TestHALAdapter_Release(t *testing.T) {
	a := newNoopAdapter(t)

	if _, err := a.CreateBuffer(16, gpucore.BufferUsageUniform); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateTexture(2, 2, gpucore.TextureFormatRGBA8Unorm); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateShaderModule(fakeSPIRV, "test"); err != nil {
		t.Fatal(err)
	}
	a.BeginComputePass().End()

	a.release()
	if len(a.buffers) != 0 || len(a.textures) != 0 || len(a.shaderModules) != 0 || a.encoder != nil {
		t.Error("release() left resources tracked")
	}
}
