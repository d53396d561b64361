package backend

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

// Backend name constants.
const (
	// BackendAuto selects the first available backend in priority order.
	BackendAuto = "auto"
	// BackendNative is the gogpu/wgpu HAL backend (Vulkan, Metal, DX12, GLES).
	BackendNative = "native"
	// BackendSoft is the in-process software device.
	BackendSoft = "soft"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory creates a gpucore instance. debug requests validation layers
// where the backend has them.
type Factory func(debug bool) (gpucore.Instance, error)
