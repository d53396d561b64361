package native

import (
	"github.com/gogpu/meshview/backend"
	"github.com/gogpu/meshview/gpucore"

	// Vulkan HAL implementation.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// init registers the native backend on package import.
func init() {
	backend.Register(backend.BackendNative, func(debug bool) (gpucore.Instance, error) {
		inst, err := New(debug)
		if err != nil {
			return nil, err
		}
		return inst, nil
	})
}
