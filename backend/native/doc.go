// Package native implements gpucore on gogpu/wgpu's hardware abstraction
// layer (Vulkan via Pure Go bindings).
//
// Import it for its side effect to make the backend available:
//
//	import _ "github.com/gogpu/meshview/backend/native"
//
// The HAL follows WebGPU conventions, so a few gpucore concepts are
// emulated:
//
//   - Upload and readback heaps are CPU shadow slices. Upload shadows are
//     written with Queue.WriteBuffer before every submission; readback
//     shadows are filled by Map with Queue.ReadBuffer.
//   - Command lists record against resolved HAL handles and are encoded at
//     Close. Clears become the load operations of the next render pass.
//   - Fence completion is probed with zero-timeout waits on the values
//     that were signaled.
//   - The swapchain renders offscreen; a host presents through its own
//     surface when the device comes from [FromProvider].
//
// Any HAL submission or wait error removes the device; later calls return
// the same error, marked [gpucore.ErrDeviceLost].
package native
