package native

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

// Package errors for the native backend.
var (
	// ErrNoHALBackend is returned when the Vulkan HAL backend is not
	// compiled in or has no loader.
	ErrNoHALBackend = errors.New("native: vulkan backend not available")

	// ErrNilProvider is returned when FromProvider is given nil.
	ErrNilProvider = errors.New("native: nil device provider")

	// ErrNoHALAccess is returned when a provider does not expose its
	// hal.Device and hal.Queue.
	ErrNoHALAccess = errors.New("native: provider does not expose HAL types")

	// ErrShaderBlob is returned for shader blobs that are neither SPIR-V
	// nor WGSL text.
	ErrShaderBlob = errors.New("native: unrecognized shader blob")
)

func unknown(kind string, id uint64) error {
	return errors.Wrapf(gpucore.ErrUnknownResource, "native: %s %d", kind, id)
}

func invalidState(format string, args ...any) error {
	return errors.Mark(errors.Newf("native: "+format, args...), gpucore.ErrInvalidState)
}
