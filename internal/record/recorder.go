// Package record builds and submits the per-frame command list.
//
// Each frame follows the same fixed sequence: reset the slot's allocator
// and the list, move the swap image to render-target, set viewport and
// scissor, clear color and depth, bind the pipeline resources and the
// geometry, draw, move the image back to present, close, submit, present
// and advance the frame ring.
package record

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/device"
	"github.com/gogpu/meshview/internal/frame"
	"github.com/gogpu/meshview/internal/logging"
	"github.com/gogpu/meshview/internal/upload"
	"github.com/gogpu/meshview/mesh"
	"github.com/gogpu/meshview/shader"
)

// CornflowerBlue is the default clear color.
var CornflowerBlue = gpucore.Color{R: 0.392156899, G: 0.584313750, B: 0.929411829, A: 1}

func slogger() *slog.Logger { return logging.L() }

// InputLayout is the vertex layout of mesh.Vertex consumed by the shaders.
var InputLayout = []gpucore.VertexAttribute{
	{Semantic: "POSITION", Format: gpucore.VertexFloat32x3, Offset: mesh.PositionOffset, Location: 0},
	{Semantic: "COLOR", Format: gpucore.VertexFloat32x4, Offset: mesh.ColorOffset, Location: 1},
}

// Geometry is the uploaded mesh the recorder draws.
type Geometry struct {
	Vertex     gpucore.BufferID
	VertexSize uint64
	Index      gpucore.BufferID
	IndexSize  uint64
	IndexCount uint32
}

// Options configures a Recorder.
type Options struct {
	Shaders shader.Blobs
	// ConstantsSize is the unaligned size of the per-frame constants.
	ConstantsSize uint64
	ClearColor    gpucore.Color
	// SyncInterval is passed to Present; 1 waits for vertical sync.
	SyncInterval int
	// ReadbackTimeout bounds the wait of Capture.
	ReadbackTimeout time.Duration
}

// Recorder owns the pipeline, one constant buffer and bind group per
// frame slot, and the command list reused every frame. It borrows the
// device context, the ring and the geometry.
type Recorder struct {
	ctx  *device.Context
	ring *frame.Ring
	geo  Geometry
	opts Options

	pipeline gpucore.PipelineID
	// Indexed by ring slot. A slot's constants are written only after
	// the ring has waited for that slot's previous frame.
	constants  []*upload.ConstantBuffer
	bindGroups []gpucore.BindGroupID
	list       gpucore.CommandList

	frames uint64
}

// New creates the pipeline state and the frame command list.
func New(ctx *device.Context, ring *frame.Ring, geo Geometry, opts Options) (*Recorder, error) {
	if geo.IndexCount == 0 || uint64(geo.IndexCount)*4 > geo.IndexSize {
		return nil, errors.Newf("record: %d indices do not fit an index buffer of %d bytes", geo.IndexCount, geo.IndexSize)
	}
	if opts.ClearColor == (gpucore.Color{}) {
		opts.ClearColor = CornflowerBlue
	}
	if opts.ReadbackTimeout <= 0 {
		opts.ReadbackTimeout = frame.DefaultFenceTimeout
	}
	dev := ctx.Device()
	r := &Recorder{ctx: ctx, ring: ring, geo: geo, opts: opts}

	var err error
	r.pipeline, err = dev.CreatePipeline(&gpucore.PipelineDesc{
		Label:         "mesh",
		VertexShader:  opts.Shaders.Vertex,
		PixelShader:   opts.Shaders.Pixel,
		VertexEntry:   opts.Shaders.VertexEntry,
		PixelEntry:    opts.Shaders.PixelEntry,
		Attributes:    InputLayout,
		Stride:        mesh.Stride,
		ColorFormat:   ring.Swapchain().Format(),
		DepthFormat:   ring.DepthFormat(),
		ConstantsSize: opts.ConstantsSize,
	})
	if err != nil {
		return nil, gpucore.Wrap(err, "CreatePipeline")
	}
	for i := 0; i < ring.BufferCount(); i++ {
		cb, err := upload.NewConstantBuffer(dev, opts.ConstantsSize, fmt.Sprintf("constants_%d", i))
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.constants = append(r.constants, cb)
		bg, err := dev.CreateBindGroup(r.pipeline, cb.ID(), cb.Size())
		if err != nil {
			r.Destroy()
			return nil, gpucore.Wrap(err, "CreateBindGroup")
		}
		r.bindGroups = append(r.bindGroups, bg)
	}
	r.list, err = dev.CreateCommandList(ring.Allocator(ring.Slot()), r.pipeline, "frame")
	if err != nil {
		r.Destroy()
		return nil, gpucore.Wrap(err, "CreateCommandList")
	}
	// Lists are created recording; the first frame expects a closed one.
	if err := r.list.Close(); err != nil {
		r.Destroy()
		return nil, gpucore.Wrap(err, "Close")
	}
	return r, nil
}

// Frames returns the number of frames submitted.
func (r *Recorder) Frames() uint64 { return r.frames }

// Frame writes constants and records, submits and presents one frame.
func (r *Recorder) Frame(constants []float32) error {
	return r.frame(constants, nil)
}

// Image is a captured frame. Rows are Pitch bytes apart.
type Image struct {
	Width, Height int
	Pitch         int
	Format        gpucore.TextureFormat
	Pix           []byte
}

// Capture renders one frame like Frame and copies its swap image into
// host memory. It drains the ring to wait for the copy.
//
// The readback buffer is released through the ring once the frame that
// copies into it completes, so a failed capture never frees memory the
// GPU may still write.
func (r *Recorder) Capture(constants []float32) (*Image, error) {
	sc := r.ring.Swapchain()
	w, h := sc.Size()
	pitch := gpucore.RowPitch(w, sc.Format())
	size := uint64(pitch * h)
	dev := r.ctx.Device()
	buf, err := dev.CreateBuffer(&gpucore.BufferDesc{Label: "capture", Size: size, Heap: gpucore.HeapReadback})
	if err != nil {
		return nil, gpucore.Wrap(err, "CreateBuffer")
	}

	var (
		pix    []byte
		mapErr error
		queued bool
	)
	err = r.frame(constants, func(list gpucore.CommandList, img gpucore.TextureID) {
		list.Barrier(gpucore.TextureTransition(img, gpucore.StateRenderTarget, gpucore.StateCopySource))
		list.CopyTextureToBuffer(buf, img)
		list.Barrier(gpucore.TextureTransition(img, gpucore.StateCopySource, gpucore.StateRenderTarget))
		queued = true
		r.ring.Defer(func() {
			defer dev.DestroyBuffer(buf)
			mem, err := dev.Map(buf)
			if err != nil {
				mapErr = gpucore.Wrap(err, "Map")
				return
			}
			pix = append([]byte(nil), mem[:size]...)
		})
	})
	if !queued {
		dev.DestroyBuffer(buf)
	}
	if err != nil {
		return nil, err
	}
	if err := r.ring.Drain(); err != nil {
		return nil, err
	}
	if mapErr != nil {
		return nil, mapErr
	}
	return &Image{
		Width:  w,
		Height: h,
		Pitch:  pitch,
		Format: sc.Format(),
		Pix:    pix,
	}, nil
}

func (r *Recorder) frame(constants []float32, extra func(gpucore.CommandList, gpucore.TextureID)) error {
	dev := r.ctx.Device()
	slot, alloc, err := r.ring.Acquire()
	if err != nil {
		return err
	}
	submitted := false
	defer func() {
		if !submitted {
			r.ring.Cancel()
		}
	}()

	if err := r.constants[slot].Write(constants); err != nil {
		return err
	}
	if err := dev.ResetCommandAllocator(alloc); err != nil {
		return gpucore.Wrap(err, "ResetCommandAllocator")
	}
	list := r.list
	if err := list.Reset(alloc, r.pipeline); err != nil {
		return gpucore.Wrap(err, "ResetCommandList")
	}

	sc := r.ring.Swapchain()
	img := sc.Image(slot)
	depth := r.ring.DepthTarget()
	w, h := sc.Size()

	list.Barrier(gpucore.TextureTransition(img, gpucore.StatePresent, gpucore.StateRenderTarget))
	list.SetViewport(gpucore.Viewport{Width: float32(w), Height: float32(h), MinDepth: 0, MaxDepth: 1})
	list.SetScissor(gpucore.Rect{Right: int32(w), Bottom: int32(h)})
	list.SetRenderTargets(img, depth)
	list.ClearRenderTarget(img, r.opts.ClearColor)
	list.ClearDepth(depth, 1)
	list.SetBindGroup(r.bindGroups[slot])
	list.SetVertexBuffer(r.geo.Vertex, r.geo.VertexSize, mesh.Stride)
	list.SetIndexBuffer(r.geo.Index, r.geo.IndexSize)
	list.DrawIndexed(r.geo.IndexCount)
	if extra != nil {
		extra(list, img)
	}
	list.Barrier(gpucore.TextureTransition(img, gpucore.StateRenderTarget, gpucore.StatePresent))
	if err := list.Close(); err != nil {
		return gpucore.Wrap(err, "Close")
	}

	if err := r.ctx.Queue().Submit(list); err != nil {
		return gpucore.Wrap(err, "ExecuteCommandLists")
	}
	submitted = true
	presentErr := sc.Present(r.opts.SyncInterval)
	if presentErr != nil && gpucore.IsDeviceLost(presentErr) {
		return gpucore.Wrap(presentErr, "Present")
	}
	if err := r.ring.SubmitAndAdvance(); err != nil {
		return err
	}
	r.frames++
	if presentErr != nil {
		return gpucore.Wrap(presentErr, "Present")
	}
	slogger().Debug("record: frame", "slot", slot, "indices", r.geo.IndexCount, "width", w, "height", h)
	return nil
}

// Destroy releases the list, bind groups, constant buffers and pipeline.
// The GPU must no longer reference them.
func (r *Recorder) Destroy() {
	dev := r.ctx.Device()
	if r.list != nil {
		r.list.Destroy()
		r.list = nil
	}
	for _, bg := range r.bindGroups {
		dev.DestroyBindGroup(bg)
	}
	r.bindGroups = nil
	for _, cb := range r.constants {
		cb.Destroy()
	}
	r.constants = nil
	if r.pipeline != gpucore.InvalidID {
		dev.DestroyPipeline(r.pipeline)
		r.pipeline = gpucore.InvalidID
	}
}
