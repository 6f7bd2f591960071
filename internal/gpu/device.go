package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan backend for standalone devices.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// ErrNoAdapter is returned when a backend exposes no usable adapter.
var ErrNoAdapter = errors.New("gpu: no GPU adapters found")

// Device is an opened GPU device and the HALAdapter driving it.
//
// A standalone device owns its instance and hal device and destroys them
// in Close. A device borrowed from a DeviceProvider only releases the
// resources the adapter created.
type Device struct {
	adapter  *HALAdapter
	instance hal.Instance
	device   hal.Device
	external bool
	name     string
}

// OpenBackend creates a standalone device on a registered hal backend,
// preferring a discrete or integrated GPU.
func OpenBackend(variant gputypes.Backend) (*Device, error) {
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("gpu: %v backend not available", variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}

	slogger().Info("gpu: device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType.String(),
		"backend", variant.String())

	return &Device{
		adapter:  NewHALAdapter(openDev.Device, openDev.Queue, &limits),
		instance: instance,
		device:   openDev.Device,
		name:     selected.Info.Name,
	}, nil
}

// OpenProvider borrows the device of a host application. The provider
// must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func OpenProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	info := provider.AdapterInfo()
	slogger().Info("gpu: using shared device", "adapter", info.Name, "type", info.Type.String())

	return &Device{
		adapter:  NewHALAdapter(device, queue, nil),
		device:   device,
		external: true,
		name:     info.Name,
	}, nil
}

// Adapter returns the gpucore adapter of the device.
func (d *Device) Adapter() *HALAdapter {
	return d.adapter
}

// Name returns the adapter name reported by the driver.
func (d *Device) Name() string {
	return d.name
}

// Close waits for the GPU, releases all adapter resources and, for a
// standalone device, destroys the device and instance.
func (d *Device) Close() {
	if d.adapter == nil {
		return
	}
	if err := d.adapter.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle on close", "error", err)
	}
	d.adapter.release()
	d.adapter = nil

	if d.external {
		return
	}
	d.device.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
}
