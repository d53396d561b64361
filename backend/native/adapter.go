// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package native

import (
	"hash/fnv"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/logging"
)

// Instance is a gpucore.Instance over a gogpu/wgpu HAL instance.
type Instance struct {
	hal hal.Instance
}

var _ gpucore.Instance = (*Instance)(nil)

// New opens the Vulkan HAL backend.
func New(debug bool) (*Instance, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, ErrNoHALBackend
	}
	inst, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "native: create instance"), ErrNoHALBackend)
	}
	logging.L().Debug("native: instance created", "backend", "vulkan", "debug", debug)
	return &Instance{hal: inst}, nil
}

// Wrap adopts an existing HAL instance. The Instance takes ownership and
// destroys it in Destroy.
func Wrap(inst hal.Instance) *Instance {
	return &Instance{hal: inst}
}

// Adapters enumerates the HAL adapters.
func (in *Instance) Adapters() ([]gpucore.Adapter, error) {
	exposed := in.hal.EnumerateAdapters(nil)
	out := make([]gpucore.Adapter, 0, len(exposed))
	for i := range exposed {
		out = append(out, &adapter{exposed: exposed[i], info: adapterInfo(i, exposed[i])})
	}
	return out, nil
}

// Destroy releases the HAL instance.
func (in *Instance) Destroy() {
	if in.hal != nil {
		in.hal.Destroy()
		in.hal = nil
	}
}

type adapter struct {
	exposed hal.ExposedAdapter
	info    gpucore.AdapterInfo
}

func (a *adapter) Info() gpucore.AdapterInfo { return a.info }

func (a *adapter) Open(level gpucore.FeatureLevel) (gpucore.Device, error) {
	if a.info.FeatureLevel < level {
		return nil, errors.Newf("native: adapter %q supports feature level %#x, need %#x",
			a.info.Name, uint16(a.info.FeatureLevel), uint16(level))
	}
	openDev, err := a.exposed.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, gpucore.Wrap(err, "open device")
	}
	logging.L().Info("native: device opened", "adapter", a.info.Name, "type", a.info.Type)
	return newDevice(openDev.Device, openDev.Queue, a.info, false), nil
}

// adapterInfo maps HAL adapter info. HAL adapters expose no LUID, so one
// is derived from the enumeration slot and name; it is stable for as long
// as the system reports the same adapters in the same order.
func adapterInfo(index int, e hal.ExposedAdapter) gpucore.AdapterInfo {
	info := gpucore.AdapterInfo{
		Name:         e.Info.Name,
		Type:         gpucore.AdapterSoftware,
		FeatureLevel: gpucore.FeatureLevel11_0,
	}
	switch e.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		info.Type = gpucore.AdapterDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		info.Type = gpucore.AdapterIntegrated
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.Itoa(index)))
	_, _ = h.Write([]byte(e.Info.Name))
	info.LUID = h.Sum64()
	return info
}
