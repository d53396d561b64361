package native

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/logging"
)

// swapchain is a ring of offscreen render targets. Frames are read back
// with CopyTextureToBuffer; window presentation belongs to the host that
// owns the surface (see FromProvider).
type swapchain struct {
	dev    *Device
	format gpucore.TextureFormat

	mu            sync.Mutex
	width, height int
	images        []gpucore.TextureID
	current       int
}

var _ gpucore.Swapchain = (*swapchain)(nil)

// CreateSwapchain creates desc.BufferCount images in StatePresent.
func (d *Device) CreateSwapchain(desc *gpucore.SwapchainDesc) (gpucore.Swapchain, error) {
	if desc == nil || desc.BufferCount < 2 {
		return nil, errors.New("native: swapchain needs at least 2 buffers")
	}
	if desc.Width < 1 || desc.Height < 1 {
		return nil, errors.Newf("native: invalid swapchain size %dx%d", desc.Width, desc.Height)
	}
	if err := d.RemovedReason(); err != nil {
		return nil, err
	}
	if desc.Handle != 0 {
		logging.L().Debug("native: window handle ignored, rendering offscreen", "handle", desc.Handle)
	}
	s := &swapchain{dev: d, format: desc.Format, width: desc.Width, height: desc.Height}
	if err := s.createImages(desc.BufferCount); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *swapchain) createImages(n int) error {
	images := make([]gpucore.TextureID, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.dev.createTexture(fmt.Sprintf("swap_image_%d", i), s.width, s.height, s.format,
			gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc, gpucore.StatePresent)
		if err != nil {
			for _, created := range images {
				s.dev.DestroyTexture(created)
			}
			return err
		}
		images = append(images, id)
	}
	s.images = images
	s.current = 0
	return nil
}

func (s *swapchain) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *swapchain) BufferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

func (s *swapchain) Image(i int) gpucore.TextureID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[i]
}

func (s *swapchain) Format() gpucore.TextureFormat { return s.format }

func (s *swapchain) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Present advances to the next image. The current image must be back in
// StatePresent.
func (s *swapchain) Present(_ int) error {
	if err := s.dev.RemovedReason(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev.mu.Lock()
	t := s.dev.textures[s.images[s.current]]
	s.dev.mu.Unlock()
	if t == nil || t.state != gpucore.StatePresent {
		return invalidState("present of image %d not in Present state", s.current)
	}
	s.current = (s.current + 1) % len(s.images)
	return nil
}

// Resize recreates the images. The caller drains the queue first.
func (s *swapchain) Resize(width, height int) error {
	if width < 1 || height < 1 {
		return errors.Newf("native: invalid swapchain size %dx%d", width, height)
	}
	if err := s.dev.RemovedReason(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.images)
	for _, id := range s.images {
		s.dev.DestroyTexture(id)
	}
	s.images = nil
	s.width, s.height = width, height
	return s.createImages(n)
}

func (s *swapchain) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.images {
		s.dev.DestroyTexture(id)
	}
	s.images = nil
}
