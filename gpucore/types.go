package gpucore

import "fmt"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture (swap image or depth target).
type TextureID uint64

// PipelineID is an opaque handle to an immutable pipeline state object
// together with its binding layout.
type PipelineID uint64

// BindGroupID is an opaque handle to a bound resource table
// (descriptor heap plus constant buffer view).
type BindGroupID uint64

// AllocatorID is an opaque handle to recyclable command buffer storage.
type AllocatorID uint64

// FenceID is an opaque handle to a timeline fence.
type FenceID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Heap selects the memory a buffer lives in.
type Heap uint8

const (
	// HeapDefault is device-local memory. The CPU cannot map it.
	HeapDefault Heap = iota

	// HeapUpload is host-visible, CPU-writable memory read by the GPU.
	HeapUpload

	// HeapReadback is host-visible memory the GPU writes and the CPU reads.
	HeapReadback
)

// String returns the heap name.
func (h Heap) String() string {
	switch h {
	case HeapDefault:
		return "Default"
	case HeapUpload:
		return "Upload"
	case HeapReadback:
		return "Readback"
	default:
		return fmt.Sprintf("Heap(%d)", h)
	}
}

// ResourceState is the usage state a resource is in on the GPU timeline.
// Transitions between states are declared explicitly with [Barrier].
type ResourceState uint16

// Resource states.
const (
	StateCommon ResourceState = iota
	StateCopyDest
	StateCopySource
	StateVertexAndConstant
	StateIndex
	StateGenericRead
	StateRenderTarget
	StatePresent
	StateDepthWrite
)

var stateNames = [...]string{
	StateCommon:            "Common",
	StateCopyDest:          "CopyDest",
	StateCopySource:        "CopySource",
	StateVertexAndConstant: "VertexAndConstant",
	StateIndex:             "Index",
	StateGenericRead:       "GenericRead",
	StateRenderTarget:      "RenderTarget",
	StatePresent:           "Present",
	StateDepthWrite:        "DepthWrite",
}

// String returns the state name.
func (s ResourceState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ResourceState(%d)", s)
}

// TextureFormat specifies the pixel format of a texture.
type TextureFormat uint8

// Texture formats used by the renderer.
const (
	FormatUnknown TextureFormat = iota
	FormatBGRA8Unorm
	FormatRGBA8Unorm
	FormatDepth32Float
)

// BytesPerPixel returns the number of bytes per pixel.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case FormatBGRA8Unorm, FormatRGBA8Unorm, FormatDepth32Float:
		return 4
	default:
		return 0
	}
}

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case FormatBGRA8Unorm:
		return "BGRA8Unorm"
	case FormatRGBA8Unorm:
		return "RGBA8Unorm"
	case FormatDepth32Float:
		return "Depth32Float"
	default:
		return "Unknown"
	}
}

// RowPitchAlignment is the required alignment of texture copy rows.
const RowPitchAlignment = 256

// RowPitch returns the byte distance between rows of a texture copy.
func RowPitch(width int, format TextureFormat) int {
	return (width*format.BytesPerPixel() + RowPitchAlignment - 1) &^ (RowPitchAlignment - 1)
}

// VertexFormat is the type of a single vertex attribute.
type VertexFormat uint8

// Vertex attribute formats.
const (
	VertexFloat32x3 VertexFormat = iota + 1
	VertexFloat32x4
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFloat32x3:
		return 12
	case VertexFloat32x4:
		return 16
	default:
		return 0
	}
}

// VertexAttribute declares one element of the input layout.
type VertexAttribute struct {
	Semantic string
	Format   VertexFormat
	Offset   uint32
	Location uint32
}

// PipelineDesc describes an immutable pipeline state object.
type PipelineDesc struct {
	Label string

	// VertexShader and PixelShader are opaque precompiled blobs.
	// Their input signature must match Attributes; this is not checked.
	VertexShader []byte
	PixelShader  []byte

	// VertexEntry and PixelEntry name the entry points inside the blobs.
	VertexEntry string
	PixelEntry  string

	Attributes []VertexAttribute
	Stride     uint32

	ColorFormat TextureFormat
	DepthFormat TextureFormat

	// ConstantsSize is the size of the single constant buffer bound to the
	// vertex stage at binding 0.
	ConstantsSize uint64
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label        string
	Size         uint64
	Heap         Heap
	InitialState ResourceState
}

// SwapchainDesc describes the presentable image ring.
type SwapchainDesc struct {
	Width, Height int
	Format        TextureFormat
	BufferCount   int
	// Handle is the native window or surface handle; zero for offscreen.
	Handle uintptr
}

// Viewport is the rasterizer viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is an integer scissor rectangle.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// Color is an RGBA clear color.
type Color struct {
	R, G, B, A float32
}

// Barrier declares a resource state transition. Exactly one of Buffer or
// Texture is set.
type Barrier struct {
	Buffer  BufferID
	Texture TextureID
	Before  ResourceState
	After   ResourceState
}

// BufferTransition returns a barrier moving buf from before to after.
func BufferTransition(buf BufferID, before, after ResourceState) Barrier {
	return Barrier{Buffer: buf, Before: before, After: after}
}

// TextureTransition returns a barrier moving tex from before to after.
func TextureTransition(tex TextureID, before, after ResourceState) Barrier {
	return Barrier{Texture: tex, Before: before, After: after}
}

// FeatureLevel is the capability tier an adapter supports.
type FeatureLevel uint16

// Feature levels.
const (
	FeatureLevel10_0 FeatureLevel = 0xa000
	FeatureLevel11_0 FeatureLevel = 0xb000
	FeatureLevel12_0 FeatureLevel = 0xc000
)

// AdapterType classifies an adapter.
type AdapterType uint8

// Adapter types.
const (
	AdapterUnknown AdapterType = iota
	AdapterDiscrete
	AdapterIntegrated
	AdapterSoftware
)

// String returns the adapter type name.
func (t AdapterType) String() string {
	switch t {
	case AdapterDiscrete:
		return "Discrete"
	case AdapterIntegrated:
		return "Integrated"
	case AdapterSoftware:
		return "Software"
	default:
		return "Unknown"
	}
}

// AdapterInfo describes a physical adapter.
type AdapterInfo struct {
	Name         string
	Type         AdapterType
	LUID         uint64
	FeatureLevel FeatureLevel
}

// MessageID identifies a debug-layer diagnostic message.
type MessageID uint32

// Known-benign diagnostics suppressed in debug mode.
const (
	MessageMapInvalidNullRange   MessageID = 1
	MessageUnmapInvalidNullRange MessageID = 2
)
