// Package device owns the graphics device: adapter selection, the logical
// device and its queue, and the frame fence.
package device

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/logging"
)

// MinFeatureLevel is the lowest feature level a device is created at.
const MinFeatureLevel = gpucore.FeatureLevel11_0

// benignMessages are debug-layer messages suppressed on debug devices.
var benignMessages = []gpucore.MessageID{
	gpucore.MessageMapInvalidNullRange,
	gpucore.MessageUnmapInvalidNullRange,
}

func slogger() *slog.Logger { return logging.L() }

// Options configures Create.
type Options struct {
	// Debug allows software adapters as a fallback and installs the debug
	// message filter.
	Debug bool
}

// Context is one generation of the device. On device loss it is destroyed
// and a new one created; Generation tells them apart in logs.
type Context struct {
	instance   gpucore.Instance
	info       gpucore.AdapterInfo
	dev        gpucore.Device
	fence      gpucore.FenceID
	signaled   uint64 // highest value enqueued on fence
	generation uuid.UUID
	debug      bool
}

// Create selects an adapter and opens a device on it.
//
// Hardware adapters are tried in enumeration order; the first one that
// opens at MinFeatureLevel wins. Software adapters are tried only when
// opts.Debug is set. Failures are marked gpucore.ErrFatal.
func Create(instance gpucore.Instance, opts Options) (*Context, error) {
	adapters, err := instance.Adapters()
	if err != nil {
		return nil, gpucore.Fatal(errors.Wrap(err, "device: enumerate adapters"))
	}

	dev, err := open(adapters, false)
	if dev == nil && opts.Debug {
		slogger().Warn("device: no hardware adapter, falling back to software")
		dev, err = open(adapters, true)
	}
	if dev == nil {
		if err == nil {
			err = gpucore.ErrNoAdapter
		} else {
			err = errors.Mark(err, gpucore.ErrNoAdapter)
		}
		return nil, gpucore.Fatal(errors.WithDetailf(err, "%d adapters enumerated", len(adapters)))
	}

	c := &Context{
		instance:   instance,
		info:       dev.Info(),
		dev:        dev,
		generation: uuid.New(),
		debug:      opts.Debug,
	}
	if opts.Debug {
		filter, ok := dev.(gpucore.MessageFilter)
		if !ok {
			dev.Destroy()
			return nil, gpucore.Fatal(errors.Newf("device: debug layer unavailable on %q", c.info.Name))
		}
		if err := filter.DenyMessages(benignMessages...); err != nil {
			dev.Destroy()
			return nil, gpucore.Fatal(errors.Wrap(err, "device: install message filter"))
		}
	}
	c.fence, err = dev.CreateFence(0)
	if err != nil {
		dev.Destroy()
		return nil, gpucore.Fatal(errors.Wrap(err, "device: create fence"))
	}

	slogger().Info("device: created",
		"generation", c.generation,
		"adapter", c.info.Name,
		"type", c.info.Type,
		"feature_level", c.info.FeatureLevel)
	return c, nil
}

// open returns the first adapter of the requested class that opens at
// MinFeatureLevel, and the last open error.
func open(adapters []gpucore.Adapter, software bool) (gpucore.Device, error) {
	var lastErr error
	for _, a := range adapters {
		info := a.Info()
		if (info.Type == gpucore.AdapterSoftware) != software {
			continue
		}
		if info.FeatureLevel < MinFeatureLevel {
			slogger().Debug("device: adapter below feature level", "adapter", info.Name)
			continue
		}
		dev, err := a.Open(MinFeatureLevel)
		if err != nil {
			lastErr = err
			slogger().Debug("device: adapter failed to open", "adapter", info.Name, "error", err)
			continue
		}
		return dev, nil
	}
	return nil, lastErr
}

// Device returns the logical device.
func (c *Context) Device() gpucore.Device { return c.dev }

// Queue returns the direct command queue.
func (c *Context) Queue() gpucore.Queue { return c.dev.Queue() }

// Fence returns the frame fence.
func (c *Context) Fence() gpucore.FenceID { return c.fence }

// Adapter returns the selected adapter.
func (c *Context) Adapter() gpucore.AdapterInfo { return c.info }

// Generation identifies this device instance.
func (c *Context) Generation() uuid.UUID { return c.generation }

// Debug reports whether the context was created in debug mode.
func (c *Context) Debug() bool { return c.debug }

// Completed returns the fence's completed value.
func (c *Context) Completed() (uint64, error) {
	return c.dev.CompletedValue(c.fence)
}

// NextValue returns the smallest fence value not yet signaled.
func (c *Context) NextValue() uint64 { return c.signaled + 1 }

// Signal enqueues a fence signal after all submitted work. Values must
// increase: timeline fences reject a value that was already signaled.
func (c *Context) Signal(value uint64) error {
	if value <= c.signaled {
		return errors.Wrapf(gpucore.ErrInvalidState, "device: fence value %d already signaled (last %d)", value, c.signaled)
	}
	if err := c.Queue().Signal(c.fence, value); err != nil {
		return err
	}
	c.signaled = value
	return nil
}

// WaitFence blocks until the fence reaches value. A wait that outlasts
// timeout is reported as device lost.
func (c *Context) WaitFence(value uint64, timeout time.Duration) error {
	ok, err := c.dev.Wait(c.fence, value, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return gpucore.DeviceLost(errors.Newf("device: fence wait for %d timed out after %s", value, timeout))
	}
	return nil
}

// Validate reports device loss: a removed device, or a default adapter
// that is no longer the one the device was created on (a driver update or
// an adapter hot swap).
func (c *Context) Validate() error {
	if reason := c.dev.RemovedReason(); reason != nil {
		return gpucore.DeviceLost(reason)
	}
	adapters, err := c.instance.Adapters()
	if err != nil {
		return gpucore.DeviceLost(errors.Wrap(err, "device: enumerate adapters"))
	}
	if len(adapters) == 0 || adapters[0].Info().LUID != c.info.LUID {
		return gpucore.DeviceLost(errors.Newf("device: default adapter changed since %q was selected", c.info.Name))
	}
	return nil
}

// Destroy releases the fence, then the device.
func (c *Context) Destroy() {
	if c.dev == nil {
		return
	}
	c.dev.DestroyFence(c.fence)
	c.dev.Destroy()
	c.dev = nil
	slogger().Info("device: destroyed", "generation", c.generation)
}
