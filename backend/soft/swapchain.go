package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

// swapchain is an offscreen image ring. Present rotates the current index.
type swapchain struct {
	dev           *Device
	format        gpucore.TextureFormat
	width, height int
	images        []gpucore.TextureID
	current       int
	presented     uint64
}

var _ gpucore.Swapchain = (*swapchain)(nil)

// CreateSwapchain creates desc.BufferCount images in StatePresent.
func (d *Device) CreateSwapchain(desc *gpucore.SwapchainDesc) (gpucore.Swapchain, error) {
	if desc == nil || desc.BufferCount < 2 {
		return nil, errors.New("soft: swapchain needs at least 2 buffers")
	}
	if desc.Width < 1 || desc.Height < 1 {
		return nil, errors.Newf("soft: invalid swapchain size %dx%d", desc.Width, desc.Height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return nil, d.removed
	}
	sc := &swapchain{dev: d, format: desc.Format, width: desc.Width, height: desc.Height}
	sc.createImagesLocked(desc.BufferCount)
	d.inst.count(kindSwapchain, 1)
	d.inst.record(Event{Kind: EventCreateSwapchain, Width: desc.Width, Height: desc.Height})
	return sc, nil
}

func (s *swapchain) createImagesLocked(n int) {
	s.images = make([]gpucore.TextureID, n)
	for i := range s.images {
		s.images[i] = s.dev.createTextureLocked(s.width, s.height, s.format, gpucore.StatePresent)
	}
	s.current = 0
}

func (s *swapchain) CurrentIndex() int {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.current
}

func (s *swapchain) BufferCount() int { return len(s.images) }

func (s *swapchain) Image(i int) gpucore.TextureID {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.images[i]
}

func (s *swapchain) Format() gpucore.TextureFormat { return s.format }

func (s *swapchain) Size() (int, int) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.width, s.height
}

// Present fails with an injected fault if one is pending, removing the
// device. The current image must be back in StatePresent.
func (s *swapchain) Present(_ int) error {
	d := s.dev
	if fault := d.inst.takePresentFault(); fault != nil {
		d.Remove(fault)
		return d.RemovedReason()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return d.removed
	}
	t := d.textures[s.images[s.current]]
	if t == nil || t.state != gpucore.StatePresent {
		return errors.Wrapf(gpucore.ErrInvalidState, "soft: present of image %d not in Present state", s.current)
	}
	d.inst.record(Event{Kind: EventPresent, Value: uint64(s.current), Completed: d.completedLocked()})
	s.presented++
	s.current = (s.current + 1) % len(s.images)
	return nil
}

// Resize fails with ErrInvalidState while queued GPU work remains.
func (s *swapchain) Resize(width, height int) error {
	if width < 1 || height < 1 {
		return errors.Newf("soft: invalid swapchain size %dx%d", width, height)
	}
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return d.removed
	}
	if len(d.timeline) > 0 {
		return errors.Wrapf(gpucore.ErrInvalidState, "soft: resize with %d operations in flight", len(d.timeline))
	}
	for _, id := range s.images {
		d.destroyTextureLocked(id)
	}
	s.width, s.height = width, height
	s.createImagesLocked(len(s.images))
	d.inst.record(Event{Kind: EventResize, Width: width, Height: height})
	return nil
}

func (s *swapchain) Destroy() {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range s.images {
		d.destroyTextureLocked(id)
	}
	s.images = nil
	d.inst.count(kindSwapchain, -1)
}
