package gpucore

import "time"

// Instance enumerates the adapters of one backend.
type Instance interface {
	// Adapters returns the adapters in the order the system reports them.
	// Software adapters are included; selection policy is up to the caller.
	Adapters() ([]Adapter, error)

	// Destroy releases the instance. Devices opened from it must be
	// destroyed first.
	Destroy()
}

// Adapter is a physical GPU (or a software rasterizer).
type Adapter interface {
	Info() AdapterInfo

	// Open creates a logical device with a single direct queue.
	Open(level FeatureLevel) (Device, error)
}

// Device abstracts over different GPU backend implementations.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while the GPU still references it is undefined
//     behavior; callers tie destruction to fence completion
//   - IDs become invalid after destruction and must not be reused
//
// Any method may report a removed device by returning an error marked
// with [ErrDeviceLost].
type Device interface {
	// Info returns the adapter this device was opened on.
	Info() AdapterInfo

	// Queue returns the single direct command queue.
	Queue() Queue

	// === Synchronization ===

	// CreateFence creates a timeline fence whose completed value starts at initial.
	CreateFence(initial uint64) (FenceID, error)

	// DestroyFence releases a fence.
	DestroyFence(id FenceID)

	// CompletedValue returns the highest value the GPU has signaled.
	CompletedValue(id FenceID) (uint64, error)

	// Wait blocks until the fence reaches value or timeout elapses.
	// It reports false on timeout.
	Wait(id FenceID, value uint64, timeout time.Duration) (bool, error)

	// === Buffers ===

	// CreateBuffer allocates a buffer on the requested heap.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// Map returns CPU-visible memory for an upload or readback buffer.
	// The mapping stays valid until DestroyBuffer. Readback contents are
	// refreshed on every call.
	Map(id BufferID) ([]byte, error)

	// === Textures ===

	// CreateDepthTarget creates a depth buffer in StateDepthWrite.
	CreateDepthTarget(width, height int, format TextureFormat) (TextureID, error)

	// DestroyTexture releases a texture created by CreateDepthTarget.
	DestroyTexture(id TextureID)

	// CreateSwapchain creates the presentable image ring.
	CreateSwapchain(desc *SwapchainDesc) (Swapchain, error)

	// === Pipeline ===

	// CreatePipeline creates a pipeline state object and its binding layout.
	CreatePipeline(desc *PipelineDesc) (PipelineID, error)

	// DestroyPipeline releases a pipeline and its binding layout.
	DestroyPipeline(id PipelineID)

	// CreateBindGroup binds size bytes of constants at binding 0 of the
	// pipeline's layout.
	CreateBindGroup(pipeline PipelineID, constants BufferID, size uint64) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command recording ===

	// CreateCommandAllocator creates recyclable command storage.
	CreateCommandAllocator(label string) (AllocatorID, error)

	// ResetCommandAllocator recycles the storage of every list recorded
	// from the allocator. The caller guarantees the GPU is done with it.
	ResetCommandAllocator(id AllocatorID) error

	// DestroyCommandAllocator releases an allocator.
	DestroyCommandAllocator(id AllocatorID)

	// CreateCommandList creates a list in the recording state, bound to
	// alloc and pipeline.
	CreateCommandList(alloc AllocatorID, pipeline PipelineID, label string) (CommandList, error)

	// RemovedReason reports why the device was removed, or nil.
	RemovedReason() error

	// Destroy releases the device. All resources must be destroyed first.
	Destroy()
}

// Queue is an in-order submission stream.
type Queue interface {
	// Submit executes a closed command list.
	Submit(list CommandList) error

	// Signal enqueues a fence signal after all previously submitted work.
	Signal(fence FenceID, value uint64) error
}

// Swapchain is the presentable image ring owned by the output surface.
type Swapchain interface {
	// CurrentIndex returns the index of the image to render next.
	CurrentIndex() int

	// BufferCount returns the number of images in the ring.
	BufferCount() int

	// Image returns the texture of image i. Images rest in StatePresent.
	Image(i int) TextureID

	// Format returns the image format.
	Format() TextureFormat

	// Size returns the image dimensions.
	Size() (width, height int)

	// Present queues the current image for display and advances
	// CurrentIndex. syncInterval 1 blocks until vertical sync.
	Present(syncInterval int) error

	// Resize recreates the images. No GPU work may reference them.
	Resize(width, height int) error

	// Destroy releases the images.
	Destroy()
}

// CommandList records GPU commands. Recording methods do not return errors;
// the first recording error is reported by Close, like a native list.
type CommandList interface {
	// Reset reopens a closed list, recording into alloc with pipeline bound.
	Reset(alloc AllocatorID, pipeline PipelineID) error

	// Barrier records resource state transitions.
	Barrier(barriers ...Barrier)

	// CopyBuffer copies size bytes from src to dst.
	CopyBuffer(dst, src BufferID, size uint64)

	// CopyTextureToBuffer copies a whole texture into a readback buffer.
	// Rows are laid out RowPitch bytes apart.
	CopyTextureToBuffer(dst BufferID, src TextureID)

	// SetRenderTargets binds the color and depth attachments.
	SetRenderTargets(color, depth TextureID)

	SetViewport(v Viewport)
	SetScissor(r Rect)

	// ClearRenderTarget clears a bound color target.
	ClearRenderTarget(tex TextureID, c Color)

	// ClearDepth clears a bound depth target.
	ClearDepth(tex TextureID, depth float32)

	// SetBindGroup binds the resource table of the current pipeline.
	SetBindGroup(id BindGroupID)

	// SetVertexBuffer binds a vertex buffer view.
	SetVertexBuffer(buf BufferID, size uint64, stride uint32)

	// SetIndexBuffer binds a uint32 index buffer view.
	SetIndexBuffer(buf BufferID, size uint64)

	// DrawIndexed draws indexCount indices as a triangle list.
	DrawIndexed(indexCount uint32)

	// Close ends recording. A closed list may be submitted.
	Close() error

	// Destroy releases the list.
	Destroy()
}

// MessageFilter is implemented by devices that expose a debug message queue.
type MessageFilter interface {
	DenyMessages(ids ...MessageID) error
}
