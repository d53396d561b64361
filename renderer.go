package meshview

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gogpu/meshview/backend"
	"github.com/gogpu/meshview/camera"
	"github.com/gogpu/meshview/config"
	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/device"
	"github.com/gogpu/meshview/internal/frame"
	"github.com/gogpu/meshview/internal/record"
	"github.com/gogpu/meshview/internal/upload"
	"github.com/gogpu/meshview/mesh"
	"github.com/gogpu/meshview/shader"
	"github.com/gogpu/meshview/timer"
)

// ErrClosed is returned by methods of a closed Renderer.
var ErrClosed = errors.New("meshview: renderer closed")

// Renderer draws a mesh every tick from an orbiting camera.
//
// It owns the device context, the frame ring, the uploaded geometry and
// the frame recorder, and rebuilds all of them when the device is lost.
// A Renderer is not safe for concurrent use; drive it from one goroutine.
type Renderer struct {
	opts         options
	handle       uintptr
	inst         gpucore.Instance
	ownsInstance bool

	mesh   *mesh.Mesh
	blobs  shader.Blobs
	timer  *timer.StepTimer
	camera *camera.Orbit
	// pose is the camera as of the last update; frames render from it.
	pose camera.Orbit

	// Output size as reported by the host, before rotation.
	width, height int
	rotation      Rotation
	active        bool

	ctx      *device.Context
	ring     *frame.Ring
	geometry []gpucore.BufferID
	rec      *record.Recorder

	frames     uint64 // frames of earlier device generations
	recoveries int
	closed     bool
}

// New creates a renderer presenting to surface. A nil surface renders
// offscreen at the configured size (800x600 by default).
//
// Initialization failures are marked gpucore.ErrFatal when they come from
// the device; mesh and shader loading errors are returned as is.
func New(surface Surface, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.frameCount < config.MinFrameCount || o.frameCount > config.MaxFrameCount {
		return nil, errors.Newf("meshview: frame count %d outside %d..%d",
			o.frameCount, config.MinFrameCount, config.MaxFrameCount)
	}
	if surface == nil {
		surface = Headless{Width: o.width, Height: o.height}
	}

	r := &Renderer{
		opts:     o,
		handle:   surface.Handle(),
		camera:   camera.NewOrbit(),
		rotation: surface.Rotation(),
		active:   true,
	}
	r.width, r.height = surface.Size()

	var err error
	switch {
	case o.mesh != nil:
		r.mesh = o.mesh
	case o.meshPath != "":
		if r.mesh, err = mesh.Load(o.meshPath); err != nil {
			return nil, err
		}
	default:
		r.mesh = mesh.Embedded()
	}
	if err := r.mesh.Validate(); err != nil {
		return nil, err
	}
	switch {
	case o.shaders != nil:
		r.blobs = *o.shaders
	case o.shaderDir != "":
		if r.blobs, err = shader.LoadBlobs(o.shaderDir); err != nil {
			return nil, err
		}
	default:
		r.blobs = shader.Default()
	}

	r.timer = timer.New(o.clock)
	r.timer.SetFixedTimeStep(o.fixedStep)
	r.timer.SetTargetElapsed(o.target)

	if o.instance != nil {
		r.inst = o.instance
	} else {
		if r.inst, err = backend.Open(o.backend, o.debug); err != nil {
			return nil, gpucore.Fatal(err)
		}
		r.ownsInstance = true
	}

	if err := r.createResources(); err != nil {
		r.releaseResources()
		if r.ownsInstance {
			r.inst.Destroy()
		}
		return nil, err
	}
	return r, nil
}

// createResources creates the device, uploads the mesh, then creates the
// window size dependent ring and the recorder.
func (r *Renderer) createResources() error {
	var err error
	if r.ctx, err = device.Create(r.inst, device.Options{Debug: r.opts.debug}); err != nil {
		return err
	}
	r.geometry, err = upload.Upload(r.ctx, r.opts.fenceTimeout,
		upload.Item{Label: "vertices", Data: r.mesh.VertexBytes(), State: gpucore.StateVertexAndConstant},
		upload.Item{Label: "indices", Data: r.mesh.IndexBytes(), State: gpucore.StateIndex},
	)
	if err != nil {
		return err
	}

	w, h := backBufferSize(r.width, r.height, r.rotation)
	if r.ring, err = frame.New(r.ctx, frame.Options{
		BufferCount:  r.opts.frameCount,
		Width:        w,
		Height:       h,
		Handle:       r.handle,
		FenceTimeout: r.opts.fenceTimeout,
	}); err != nil {
		return err
	}
	r.rec, err = record.New(r.ctx, r.ring, record.Geometry{
		Vertex:     r.geometry[0],
		VertexSize: uint64(r.mesh.VertexSize()),
		Index:      r.geometry[1],
		IndexSize:  uint64(r.mesh.IndexSize()),
		IndexCount: r.mesh.IndexCount(),
	}, record.Options{
		Shaders:         r.blobs,
		ConstantsSize:   camera.ConstantsSize,
		SyncInterval:    r.opts.syncInterval(),
		ReadbackTimeout: r.opts.fenceTimeout,
	})
	return err
}

// releaseResources drains and releases everything createResources made.
// On a lost device the drain fails and everything is released anyway.
func (r *Renderer) releaseResources() {
	if r.ring != nil {
		_ = r.ring.Destroy()
		r.ring = nil
	}
	if r.rec != nil {
		r.frames += r.rec.Frames()
		r.rec.Destroy()
		r.rec = nil
	}
	if r.ctx != nil {
		for _, id := range r.geometry {
			r.ctx.Device().DestroyBuffer(id)
		}
		r.geometry = nil
		r.ctx.Destroy()
		r.ctx = nil
	}
}

// Tick advances the timer, updates the camera once per timer step and
// renders one frame. No frame is drawn before the first update.
//
// A lost device is rebuilt and Tick returns nil; any other failure is
// returned.
func (r *Renderer) Tick() error {
	if r.closed {
		return ErrClosed
	}
	r.timer.Tick(r.update)
	if r.timer.FrameCount() == 0 {
		return nil
	}
	return r.render()
}

// update poses the camera for the coming frames and moves it one step.
func (r *Renderer) update() {
	r.pose = *r.camera
	r.camera.Advance()
}

func (r *Renderer) render() error {
	if r.rec == nil {
		// An earlier recovery failed half way.
		return r.OnDeviceLost()
	}
	err := r.rec.Frame(r.pose.Constants(r.aspect()).Floats())
	if err != nil && gpucore.IsDeviceLost(err) {
		Logger().Warn("meshview: device lost", "generation", r.ctx.Generation(), "error", err)
		return r.OnDeviceLost()
	}
	return err
}

// aspect is the width over height of the back buffer.
func (r *Renderer) aspect() float32 {
	w, h := backBufferSize(r.width, r.height, r.rotation)
	return float32(w) / float32(h)
}

// OnDeviceLost releases every device dependent resource and creates them
// again on a newly selected adapter.
func (r *Renderer) OnDeviceLost() error {
	if r.closed {
		return ErrClosed
	}
	old := uuid.Nil
	if r.ctx != nil {
		old = r.ctx.Generation()
	}
	r.releaseResources()
	if err := r.createResources(); err != nil {
		r.releaseResources()
		return errors.Wrap(err, "meshview: recreate device")
	}
	r.recoveries++
	Logger().Warn("meshview: device recreated",
		"previous", old,
		"generation", r.ctx.Generation(),
		"adapter", r.ctx.Adapter().Name)
	return nil
}

// OnWindowSizeChanged resizes the swap images and the depth target. The
// size is clamped to 1x1; Rotate90 and Rotate270 swap the back buffer
// dimensions. The GPU is drained before anything is recreated.
func (r *Renderer) OnWindowSizeChanged(width, height int, rot Rotation) error {
	if r.closed {
		return ErrClosed
	}
	width, height = max(width, 1), max(height, 1)
	if width == r.width && height == r.height && rot == r.rotation {
		return nil
	}
	r.width, r.height, r.rotation = width, height, rot
	if r.ring == nil {
		return nil
	}
	w, h := backBufferSize(width, height, rot)
	err := r.ring.Drain()
	if err == nil {
		err = r.ring.Resize(w, h)
	}
	if err != nil && gpucore.IsDeviceLost(err) {
		Logger().Warn("meshview: device lost during resize", "error", err)
		return r.OnDeviceLost()
	}
	return err
}

// OnActivated is called when the window becomes the foreground window.
func (r *Renderer) OnActivated() { r.active = true }

// OnDeactivated is called when the window goes to the background.
func (r *Renderer) OnDeactivated() { r.active = false }

// Active reports whether the window is in the foreground.
func (r *Renderer) Active() bool { return r.active }

// OnSuspending waits for the GPU to finish all submitted frames.
func (r *Renderer) OnSuspending() error {
	if r.closed || r.ring == nil {
		return nil
	}
	err := r.ring.Drain()
	if err != nil && gpucore.IsDeviceLost(err) {
		return r.OnDeviceLost()
	}
	return err
}

// OnResuming discards the time spent suspended and checks that the device
// survived the suspension.
func (r *Renderer) OnResuming() error {
	if r.closed {
		return ErrClosed
	}
	r.timer.ResetElapsedTime()
	if r.ctx == nil {
		return r.OnDeviceLost()
	}
	if err := r.ctx.Validate(); err != nil {
		Logger().Warn("meshview: device invalid after resume", "error", err)
		return r.OnDeviceLost()
	}
	return nil
}

// Image is a captured frame in the swap image format. Rows are Pitch
// bytes apart.
type Image = record.Image

// Capture renders the current camera position once more and returns the
// frame's pixels. Like Tick, it draws nothing before the first update.
func (r *Renderer) Capture() (*Image, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.timer.FrameCount() == 0 {
		return nil, errors.Wrap(gpucore.ErrInvalidState, "meshview: capture before first update")
	}
	if r.rec == nil {
		return nil, errors.Wrap(gpucore.ErrInvalidState, "meshview: no device")
	}
	return r.rec.Capture(r.pose.Constants(r.aspect()).Floats())
}

// Stats summarizes the renderer's progress.
type Stats struct {
	// Frames is the number of frames submitted, over all device
	// generations.
	Frames uint64
	// Updates is the number of timer steps.
	Updates    uint64
	Recoveries int
	FPS        uint32
	Total      time.Duration
}

// Stats returns the current statistics.
func (r *Renderer) Stats() Stats {
	s := Stats{
		Frames:     r.frames,
		Updates:    r.timer.FrameCount(),
		Recoveries: r.recoveries,
		FPS:        r.timer.FramesPerSecond(),
		Total:      r.timer.Total(),
	}
	if r.rec != nil {
		s.Frames += r.rec.Frames()
	}
	return s
}

// Size returns the back buffer size.
func (r *Renderer) Size() (width, height int) {
	return backBufferSize(r.width, r.height, r.rotation)
}

// Camera returns the orbiting camera. Changes apply from the next update.
func (r *Renderer) Camera() *camera.Orbit { return r.camera }

// Generation returns the ID of the current device generation, or uuid.Nil
// while no device exists.
func (r *Renderer) Generation() uuid.UUID {
	if r.ctx == nil {
		return uuid.Nil
	}
	return r.ctx.Generation()
}

// Adapter describes the adapter the current device runs on.
func (r *Renderer) Adapter() gpucore.AdapterInfo {
	if r.ctx == nil {
		return gpucore.AdapterInfo{}
	}
	return r.ctx.Adapter()
}

// Close drains the GPU and releases every resource. The instance is
// destroyed only if the renderer opened it.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.ring != nil {
		if err = r.ring.Drain(); err != nil && gpucore.IsDeviceLost(err) {
			err = nil
		}
	}
	r.releaseResources()
	if r.ownsInstance {
		r.inst.Destroy()
	}
	return err
}
