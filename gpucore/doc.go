// Package gpucore provides the low-level device abstraction the meshview
// renderer is written against.
//
// This package defines the [Device] interface, which abstracts over different
// GPU backend implementations, allowing the same frame-pacing and upload code
// to run on:
//   - gogpu/wgpu HAL (Vulkan, Metal, DX12, GLES via backend/native)
//   - an in-process software device (backend/soft)
//
// # Architecture
//
//	               +-----------------+
//	               |     meshview    |
//	               | (device, frame, |
//	               |  upload, record)|
//	               +--------+--------+
//	                        |
//	                  gpucore.Device
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/native |          |  backend/soft   |
//	|  (hal.Device)   |          |  (in-process)   |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	|   (Pure Go)     |
//	+-----------------+
//
// # Synchronization Model
//
// A device has one in-order [Queue] and timeline fences ([FenceID]). Work is
// recorded into a [CommandList] backed by an allocator ([AllocatorID]),
// submitted, and followed by a fence signal. A fence value, once completed,
// guarantees every earlier submission has finished. Allocators and
// host-visible buffers may only be recycled after that point.
//
// # Resource States
//
// Buffers and textures carry an explicit [ResourceState]. Every change of
// usage is declared with a [Barrier]; backends that track state reject
// transitions whose Before state does not match.
//
// # Errors
//
// Errors are classified with marks: [ErrDeviceLost] for removed/reset
// devices and fence timeouts, [ErrFatal] for initialization failures.
// Everything else is a [DeviceError] naming the failed call.
package gpucore
