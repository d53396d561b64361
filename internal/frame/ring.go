// Package frame implements the frame ring: N presentable images, one
// command allocator per image and a fence checkpoint per slot, so that the
// CPU records frame i+1 while the GPU renders frame i and never runs more
// than N frames ahead.
package frame

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/device"
	"github.com/gogpu/meshview/internal/logging"
)

// DefaultFenceTimeout bounds every fence wait of the ring.
const DefaultFenceTimeout = 5 * time.Second

// SlotState is the lifecycle state of a frame slot.
type SlotState uint8

const (
	// SlotIdle slots may be acquired; their allocator is reusable.
	SlotIdle SlotState = iota
	// SlotRecording slots have been acquired and not yet submitted.
	SlotRecording
	// SlotSubmitted slots have GPU work outstanding until their checkpoint
	// completes.
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotRecording:
		return "Recording"
	case SlotSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

func slogger() *slog.Logger { return logging.L() }

// Options configures a Ring.
type Options struct {
	BufferCount  int
	Width        int
	Height       int
	Format       gpucore.TextureFormat
	DepthFormat  gpucore.TextureFormat
	Handle       uintptr
	FenceTimeout time.Duration
}

type deferred struct {
	value uint64
	fn    func()
}

// Ring owns the swapchain, the depth target and the per-slot allocators.
// It borrows the device context. A Ring is not safe for concurrent use.
type Ring struct {
	ctx     *device.Context
	timeout time.Duration

	swapchain   gpucore.Swapchain
	depth       gpucore.TextureID
	depthFormat gpucore.TextureFormat

	allocators  []gpucore.AllocatorID
	checkpoints []uint64
	submitted   []uint64 // value signaled at each slot's last submission
	states      []SlotState
	slot        int

	armed   []func()   // deferred while the current slot records
	pending []deferred // ascending by value
}

// New creates the swapchain, depth target and allocators.
func New(ctx *device.Context, opts Options) (*Ring, error) {
	if opts.BufferCount < 2 {
		return nil, errors.Newf("frame: need at least 2 buffers, got %d", opts.BufferCount)
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = DefaultFenceTimeout
	}
	if opts.Format == gpucore.FormatUnknown {
		opts.Format = gpucore.FormatBGRA8Unorm
	}
	if opts.DepthFormat == gpucore.FormatUnknown {
		opts.DepthFormat = gpucore.FormatDepth32Float
	}
	dev := ctx.Device()

	sc, err := dev.CreateSwapchain(&gpucore.SwapchainDesc{
		Width:       opts.Width,
		Height:      opts.Height,
		Format:      opts.Format,
		BufferCount: opts.BufferCount,
		Handle:      opts.Handle,
	})
	if err != nil {
		return nil, errors.Wrap(err, "frame: create swapchain")
	}
	r := &Ring{
		ctx:         ctx,
		timeout:     opts.FenceTimeout,
		swapchain:   sc,
		depthFormat: opts.DepthFormat,
		checkpoints: make([]uint64, opts.BufferCount),
		submitted:   make([]uint64, opts.BufferCount),
		states:      make([]SlotState, opts.BufferCount),
	}
	if r.depth, err = dev.CreateDepthTarget(opts.Width, opts.Height, opts.DepthFormat); err != nil {
		r.destroyResources()
		return nil, errors.Wrap(err, "frame: create depth target")
	}
	for i := 0; i < opts.BufferCount; i++ {
		a, err := dev.CreateCommandAllocator(fmt.Sprintf("frame_%d", i))
		if err != nil {
			r.destroyResources()
			return nil, errors.Wrap(err, "frame: create allocator")
		}
		r.allocators = append(r.allocators, a)
	}
	r.rebase()
	slogger().Debug("frame: ring created", "buffers", opts.BufferCount, "width", opts.Width, "height", opts.Height)
	return r, nil
}

// rebase points every checkpoint at the current fence position and bumps
// the current slot's, as at fence creation.
func (r *Ring) rebase() {
	base := r.ctx.NextValue() - 1
	for i := range r.checkpoints {
		r.checkpoints[i] = base
		r.submitted[i] = base
	}
	r.slot = r.swapchain.CurrentIndex()
	r.checkpoints[r.slot]++
}

// Swapchain returns the presentable images.
func (r *Ring) Swapchain() gpucore.Swapchain { return r.swapchain }

// DepthTarget returns the depth buffer shared by all slots.
func (r *Ring) DepthTarget() gpucore.TextureID { return r.depth }

// DepthFormat returns the depth target format.
func (r *Ring) DepthFormat() gpucore.TextureFormat { return r.depthFormat }

// BufferCount returns N.
func (r *Ring) BufferCount() int { return len(r.allocators) }

// Slot returns the current slot index.
func (r *Ring) Slot() int { return r.slot }

// Checkpoint returns the fence checkpoint of slot i.
func (r *Ring) Checkpoint(i int) uint64 { return r.checkpoints[i] }

// Allocator returns the allocator of slot i.
func (r *Ring) Allocator(i int) gpucore.AllocatorID { return r.allocators[i] }

// State returns the state of slot i. Submitted slots whose work has
// completed report Idle.
func (r *Ring) State(i int) SlotState {
	if r.states[i] == SlotSubmitted {
		if done, err := r.ctx.Completed(); err == nil && done >= r.submitted[i] {
			r.states[i] = SlotIdle
		}
	}
	return r.states[i]
}

// InFlight counts slots that are recording or have outstanding GPU work.
func (r *Ring) InFlight() int {
	n := 0
	for i := range r.states {
		if r.State(i) != SlotIdle {
			n++
		}
	}
	return n
}

// wait blocks until the fence reaches value, bounded by the ring timeout.
func (r *Ring) wait(value uint64) error {
	done, err := r.ctx.Completed()
	if err != nil {
		return err
	}
	if done >= value {
		return nil
	}
	slogger().Debug("frame: waiting for slot", "value", value, "completed", done)
	return r.ctx.WaitFence(value, r.timeout)
}

// Acquire waits for the current slot's previous work, releases deferred
// work that has completed and marks the slot Recording. It returns the
// slot index and its allocator; the caller resets the allocator.
func (r *Ring) Acquire() (int, gpucore.AllocatorID, error) {
	if r.states[r.slot] == SlotRecording {
		return 0, gpucore.InvalidID, errors.Wrapf(gpucore.ErrInvalidState, "frame: slot %d already recording", r.slot)
	}
	if err := r.wait(r.submitted[r.slot]); err != nil {
		return 0, gpucore.InvalidID, err
	}
	r.reclaim()
	r.states[r.slot] = SlotRecording
	return r.slot, r.allocators[r.slot], nil
}

// Cancel returns an acquired slot to Idle. Use it when recording fails
// before anything was submitted from the slot. Work deferred during the
// recording is released after the frames already submitted.
func (r *Ring) Cancel() {
	if r.states[r.slot] == SlotRecording {
		r.states[r.slot] = SlotIdle
		r.schedule(r.lastSubmitted())
	}
}

// SubmitAndAdvance signals the current slot's checkpoint after the work
// the caller submitted, moves to the slot of the next presentable image
// and waits until that slot's previous work has completed.
func (r *Ring) SubmitAndAdvance() error {
	if r.states[r.slot] != SlotRecording {
		return errors.Wrapf(gpucore.ErrInvalidState, "frame: advance from slot %d in %s", r.slot, r.states[r.slot])
	}
	cur := r.checkpoints[r.slot]
	if next := r.ctx.NextValue(); next > cur {
		// Another client signaled the fence since the slot was armed.
		cur = next
	}
	if err := r.ctx.Signal(cur); err != nil {
		return err
	}
	r.submitted[r.slot] = cur
	r.states[r.slot] = SlotSubmitted
	r.schedule(cur)

	r.slot = r.swapchain.CurrentIndex()
	if err := r.wait(r.submitted[r.slot]); err != nil {
		return err
	}
	r.checkpoints[r.slot] = cur + 1
	r.reclaim()
	return nil
}

// Drain signals the fence, waits for everything submitted so far and
// releases all deferred work. Used before resize and shutdown.
func (r *Ring) Drain() error {
	v := r.checkpoints[r.slot]
	if next := r.ctx.NextValue(); next > v {
		v = next
	}
	if err := r.ctx.Signal(v); err != nil {
		return err
	}
	if err := r.ctx.WaitFence(v, r.timeout); err != nil {
		return err
	}
	r.checkpoints[r.slot] = v + 1
	for i := range r.states {
		if r.states[i] == SlotSubmitted {
			r.states[i] = SlotIdle
		}
	}
	r.reclaim()
	return nil
}

// Defer runs fn once the GPU has finished the work of the current slot.
//
// While the slot is recording, fn is bound to the fence value the slot
// signals in SubmitAndAdvance, whatever other fence clients signal in
// between. Outside a recording it waits for every frame submitted so far.
func (r *Ring) Defer(fn func()) {
	if r.states[r.slot] == SlotRecording {
		r.armed = append(r.armed, fn)
		return
	}
	r.insert(deferred{value: r.lastSubmitted(), fn: fn})
}

// Pending returns the number of deferred functions not yet run.
func (r *Ring) Pending() int { return len(r.armed) + len(r.pending) }

// schedule binds the functions deferred during the current recording to
// value.
func (r *Ring) schedule(value uint64) {
	for _, fn := range r.armed {
		r.insert(deferred{value: value, fn: fn})
	}
	r.armed = r.armed[:0]
}

func (r *Ring) insert(d deferred) {
	i := len(r.pending)
	for i > 0 && r.pending[i-1].value > d.value {
		i--
	}
	r.pending = append(r.pending, deferred{})
	copy(r.pending[i+1:], r.pending[i:])
	r.pending[i] = d
}

func (r *Ring) lastSubmitted() uint64 {
	var v uint64
	for _, s := range r.submitted {
		v = max(v, s)
	}
	return v
}

func (r *Ring) reclaim() {
	if len(r.pending) == 0 {
		return
	}
	done, err := r.ctx.Completed()
	if err != nil {
		return
	}
	n := 0
	for n < len(r.pending) && r.pending[n].value <= done {
		r.pending[n].fn()
		n++
	}
	r.pending = r.pending[n:]
}

// Resize recreates the swapchain images and depth target. The ring must
// be drained.
func (r *Ring) Resize(width, height int) error {
	if n := r.InFlight(); n > 0 {
		return errors.Wrapf(gpucore.ErrInvalidState, "frame: resize with %d slots in flight", n)
	}
	dev := r.ctx.Device()
	if err := r.swapchain.Resize(width, height); err != nil {
		return err
	}
	dev.DestroyTexture(r.depth)
	r.depth = gpucore.InvalidID
	depth, err := dev.CreateDepthTarget(width, height, r.depthFormat)
	if err != nil {
		return errors.Wrap(err, "frame: create depth target")
	}
	r.depth = depth
	r.rebase()
	slogger().Info("frame: resized", "width", width, "height", height)
	return nil
}

// Destroy drains the GPU, then releases the allocators, depth target and
// swapchain. Deferred functions run even if the drain fails, since a lost
// device no longer references anything.
func (r *Ring) Destroy() error {
	var err error
	if r.swapchain != nil {
		err = r.Drain()
		if err != nil {
			slogger().Warn("frame: drain on destroy failed", "error", err)
		}
	}
	for _, d := range r.pending {
		d.fn()
	}
	for _, fn := range r.armed {
		fn()
	}
	r.pending, r.armed = nil, nil
	r.destroyResources()
	return err
}

func (r *Ring) destroyResources() {
	dev := r.ctx.Device()
	for _, a := range r.allocators {
		dev.DestroyCommandAllocator(a)
	}
	r.allocators = nil
	if r.depth != gpucore.InvalidID {
		dev.DestroyTexture(r.depth)
		r.depth = gpucore.InvalidID
	}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
}
