package native

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshview/gpucore"
)

// halProvider is implemented by hosts (such as a gogpu window) that share
// their HAL device.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider wraps the device of a host application. The device stays
// owned by the host: Destroy releases meshview's resources but not the
// device itself.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrNoHALAccess
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, ErrNoHALAccess
	}
	info := gpucore.AdapterInfo{
		Name:         "host device",
		Type:         gpucore.AdapterUnknown,
		FeatureLevel: gpucore.FeatureLevel11_0,
	}
	if provider.SurfaceFormat() == gputypes.TextureFormatUndefined {
		info.Name = "host device (headless)"
	}
	return newDevice(device, queue, info, true), nil
}
