// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

type buffer struct {
	desc  gpucore.BufferDesc
	data  []byte
	state gpucore.ResourceState
}

type texture struct {
	width, height int
	format        gpucore.TextureFormat
	data          []byte
	state         gpucore.ResourceState
}

type fence struct {
	completed uint64
}

type allocator struct {
	label   string
	open    int // lists currently recording into it
	pending int // submitted lists not yet executed
	busy    bool
}

type bindGroup struct {
	pipeline gpucore.PipelineID
	buffer   gpucore.BufferID
	size     uint64
}

// command runs on the simulated GPU timeline with the device lock held.
type command func(d *Device) error

type queuedOp struct {
	cmds  []command
	alloc gpucore.AllocatorID

	signal bool
	fence  gpucore.FenceID
	value  uint64
}

// Device is a software gpucore.Device.
//
// Submitted work is queued and executed in order when a fence wait needs
// it (or immediately with WithEagerGPU). Resource states are tracked at
// record time and mismatched barriers fail the recording list.
type Device struct {
	inst *Instance
	info gpucore.AdapterInfo

	mu     sync.Mutex
	nextID uint64

	buffers    map[gpucore.BufferID]*buffer
	textures   map[gpucore.TextureID]*texture
	fences     map[gpucore.FenceID]*fence
	allocators map[gpucore.AllocatorID]*allocator
	pipelines  map[gpucore.PipelineID]*gpucore.PipelineDesc
	bindGroups map[gpucore.BindGroupID]*bindGroup

	timeline  []queuedOp
	lastFence gpucore.FenceID

	removed error
	denied  []gpucore.MessageID
}

var (
	_ gpucore.Device        = (*Device)(nil)
	_ gpucore.Queue         = (*Device)(nil)
	_ gpucore.MessageFilter = (*Device)(nil)
)

func newDevice(inst *Instance, info gpucore.AdapterInfo) *Device {
	d := &Device{
		inst:       inst,
		info:       info,
		nextID:     1,
		buffers:    make(map[gpucore.BufferID]*buffer),
		textures:   make(map[gpucore.TextureID]*texture),
		fences:     make(map[gpucore.FenceID]*fence),
		allocators: make(map[gpucore.AllocatorID]*allocator),
		pipelines:  make(map[gpucore.PipelineID]*gpucore.PipelineDesc),
		bindGroups: make(map[gpucore.BindGroupID]*bindGroup),
	}
	inst.count(kindDevice, 1)
	return d
}

// newID generates a unique resource ID. Must be called with d.mu held.
func (d *Device) newID() uint64 {
	id := d.nextID
	d.nextID++
	return id
}

// Info returns the adapter this device was opened on.
func (d *Device) Info() gpucore.AdapterInfo { return d.info }

// Queue returns the device itself; the software device has one queue.
func (d *Device) Queue() gpucore.Queue { return d }

// Remove marks the device removed, as a driver reset would.
func (d *Device) Remove(reason error) {
	d.mu.Lock()
	d.removeLocked(reason)
	d.mu.Unlock()
}

func (d *Device) removeLocked(reason error) {
	if d.removed != nil {
		return
	}
	if reason == nil {
		reason = errors.New("soft: device removed")
	}
	d.removed = gpucore.DeviceLost(reason)
	d.timeline = nil
	for _, a := range d.allocators {
		a.pending = 0
		d.updateBusy(a)
	}
	d.inst.record(Event{Kind: EventDeviceRemoved})
}

// RemovedReason reports why the device was removed, or nil.
func (d *Device) RemovedReason() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// DenyMessages records the debug messages to suppress.
func (d *Device) DenyMessages(ids ...gpucore.MessageID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denied = append(d.denied, ids...)
	return nil
}

// DeniedMessages returns the suppressed debug message IDs.
func (d *Device) DeniedMessages() []gpucore.MessageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpucore.MessageID(nil), d.denied...)
}

// Destroy releases the device.
func (d *Device) Destroy() {
	d.mu.Lock()
	d.timeline = nil
	d.mu.Unlock()
	d.inst.count(kindDevice, -1)
}

// === Synchronization ===

// CreateFence creates a timeline fence.
func (d *Device) CreateFence(initial uint64) (gpucore.FenceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return gpucore.InvalidID, d.removed
	}
	id := gpucore.FenceID(d.newID())
	d.fences[id] = &fence{completed: initial}
	d.inst.count(kindFence, 1)
	return id, nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences[id]; ok {
		delete(d.fences, id)
		d.inst.count(kindFence, -1)
	}
}

// CompletedValue returns the fence's completed value without advancing the
// simulated GPU.
func (d *Device) CompletedValue(id gpucore.FenceID) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[id]
	if !ok {
		return 0, errors.Wrapf(gpucore.ErrUnknownResource, "fence %d", id)
	}
	if d.removed != nil {
		// A removed device reports an all-ones completed value.
		return math.MaxUint64, d.removed
	}
	return f.completed, nil
}

// Wait runs the simulated GPU until the fence reaches value. It reports
// false when the GPU is stalled or no queued signal can reach value; the
// timeout is not slept.
func (d *Device) Wait(id gpucore.FenceID, value uint64, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[id]
	if !ok {
		return false, errors.Wrapf(gpucore.ErrUnknownResource, "fence %d", id)
	}
	d.inst.record(Event{Kind: EventWait, Value: value, Completed: f.completed})
	if d.removed != nil {
		return false, d.removed
	}
	if f.completed >= value {
		return true, nil
	}
	if d.inst.isStalled() {
		return false, nil
	}
	for f.completed < value && len(d.timeline) > 0 {
		d.executeNext()
		if d.removed != nil {
			return false, d.removed
		}
	}
	return f.completed >= value, nil
}

// Submit queues a closed command list.
func (d *Device) Submit(cl gpucore.CommandList) error {
	l, ok := cl.(*commandList)
	if !ok || l.dev != d {
		return errors.Wrap(gpucore.ErrInvalidState, "soft: foreign command list")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return d.removed
	}
	if !l.closed || l.err != nil {
		return errors.Wrapf(gpucore.ErrInvalidState, "soft: submit of list %q that is open or failed", l.label)
	}
	a, ok := d.allocators[l.alloc]
	if !ok {
		return errors.Wrapf(gpucore.ErrUnknownResource, "allocator %d", l.alloc)
	}
	a.pending++
	d.updateBusy(a)
	d.timeline = append(d.timeline, queuedOp{cmds: l.cmds, alloc: l.alloc})
	d.inst.record(Event{Kind: EventSubmit, Value: uint64(l.alloc)})
	if d.inst.eager {
		d.drainLocked()
	}
	return nil
}

// Signal queues a fence signal.
func (d *Device) Signal(id gpucore.FenceID, value uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return d.removed
	}
	f, ok := d.fences[id]
	if !ok {
		return errors.Wrapf(gpucore.ErrUnknownResource, "fence %d", id)
	}
	d.lastFence = id
	d.timeline = append(d.timeline, queuedOp{signal: true, fence: id, value: value})
	d.inst.record(Event{Kind: EventSignal, Value: value, Completed: f.completed})
	if d.inst.eager {
		d.drainLocked()
	}
	return nil
}

// Idle reports whether the simulated GPU has no queued work.
func (d *Device) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timeline) == 0
}

func (d *Device) drainLocked() {
	for len(d.timeline) > 0 && d.removed == nil {
		d.executeNext()
	}
}

func (d *Device) executeNext() {
	op := d.timeline[0]
	d.timeline = d.timeline[1:]
	if op.signal {
		if f, ok := d.fences[op.fence]; ok {
			f.completed = op.value
			d.inst.record(Event{Kind: EventComplete, Value: op.value, Completed: op.value})
		}
		return
	}
	for _, cmd := range op.cmds {
		if err := cmd(d); err != nil {
			d.removeLocked(errors.Wrap(err, "soft: GPU page fault"))
			return
		}
	}
	if a, ok := d.allocators[op.alloc]; ok {
		a.pending--
		d.updateBusy(a)
	}
}

func (d *Device) updateBusy(a *allocator) {
	busy := a.open > 0 || a.pending > 0
	if busy == a.busy {
		return
	}
	a.busy = busy
	if busy {
		d.inst.busy(1)
	} else {
		d.inst.busy(-1)
	}
}

func (d *Device) completedLocked() uint64 {
	if f, ok := d.fences[d.lastFence]; ok {
		return f.completed
	}
	return 0
}

// === Buffers ===

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, errors.New("soft: buffer size must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return gpucore.InvalidID, d.removed
	}
	state := desc.InitialState
	switch desc.Heap {
	case gpucore.HeapUpload:
		state = gpucore.StateGenericRead
	case gpucore.HeapReadback:
		state = gpucore.StateCopyDest
	}
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size), state: state}
	d.inst.count(kindBuffer, 1)
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[id]; ok {
		delete(d.buffers, id)
		d.inst.count(kindBuffer, -1)
	}
}

// Map returns the memory of an upload or readback buffer.
func (d *Device) Map(id gpucore.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, errors.Wrapf(gpucore.ErrUnknownResource, "buffer %d", id)
	}
	if b.desc.Heap == gpucore.HeapDefault {
		return nil, errors.Wrapf(gpucore.ErrInvalidState, "soft: map of device-local buffer %q", b.desc.Label)
	}
	return b.data, nil
}

// BufferState returns the recorded state of a buffer.
func (d *Device) BufferState(id gpucore.BufferID) (gpucore.ResourceState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return 0, false
	}
	return b.state, true
}

// === Textures ===

// CreateDepthTarget creates a depth buffer.
func (d *Device) CreateDepthTarget(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return gpucore.InvalidID, d.removed
	}
	id := d.createTextureLocked(width, height, format, gpucore.StateDepthWrite)
	d.inst.record(Event{Kind: EventCreateDepth, Width: width, Height: height})
	return id, nil
}

func (d *Device) createTextureLocked(width, height int, format gpucore.TextureFormat, state gpucore.ResourceState) gpucore.TextureID {
	id := gpucore.TextureID(d.newID())
	d.textures[id] = &texture{
		width:  width,
		height: height,
		format: format,
		data:   make([]byte, width*height*format.BytesPerPixel()),
		state:  state,
	}
	d.inst.count(kindTexture, 1)
	return id
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyTextureLocked(id)
}

func (d *Device) destroyTextureLocked(id gpucore.TextureID) {
	if _, ok := d.textures[id]; ok {
		delete(d.textures, id)
		d.inst.count(kindTexture, -1)
	}
}

// TextureState returns the recorded state of a texture.
func (d *Device) TextureState(id gpucore.TextureID) (gpucore.ResourceState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return 0, false
	}
	return t.state, true
}

// TexturePixel returns the 4 bytes of pixel (x, y) as stored.
func (d *Device) TexturePixel(id gpucore.TextureID, x, y int) ([4]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var px [4]byte
	t, ok := d.textures[id]
	if !ok || x < 0 || y < 0 || x >= t.width || y >= t.height {
		return px, false
	}
	off := (y*t.width + x) * 4
	copy(px[:], t.data[off:off+4])
	return px, true
}

// === Pipeline ===

// CreatePipeline validates and stores a pipeline description.
func (d *Device) CreatePipeline(desc *gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, errors.New("soft: nil pipeline descriptor")
	}
	if len(desc.VertexShader) == 0 || len(desc.PixelShader) == 0 {
		return gpucore.InvalidID, errors.New("soft: pipeline needs vertex and pixel shader blobs")
	}
	var end uint32
	for _, a := range desc.Attributes {
		if e := a.Offset + a.Format.Size(); e > end {
			end = e
		}
	}
	if end > desc.Stride {
		return gpucore.InvalidID, errors.Newf("soft: input layout spans %d bytes, stride is %d", end, desc.Stride)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return gpucore.InvalidID, d.removed
	}
	id := gpucore.PipelineID(d.newID())
	cp := *desc
	d.pipelines[id] = &cp
	d.inst.count(kindPipeline, 1)
	return id, nil
}

// DestroyPipeline releases a pipeline.
func (d *Device) DestroyPipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelines[id]; ok {
		delete(d.pipelines, id)
		d.inst.count(kindPipeline, -1)
	}
}

// CreateBindGroup binds a constant buffer to a pipeline's layout.
func (d *Device) CreateBindGroup(p gpucore.PipelineID, constants gpucore.BufferID, size uint64) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return gpucore.InvalidID, d.removed
	}
	if _, ok := d.pipelines[p]; !ok {
		return gpucore.InvalidID, errors.Wrapf(gpucore.ErrUnknownResource, "pipeline %d", p)
	}
	b, ok := d.buffers[constants]
	if !ok {
		return gpucore.InvalidID, errors.Wrapf(gpucore.ErrUnknownResource, "buffer %d", constants)
	}
	if size > b.desc.Size {
		return gpucore.InvalidID, errors.Newf("soft: constant view of %d bytes exceeds buffer of %d", size, b.desc.Size)
	}
	id := gpucore.BindGroupID(d.newID())
	d.bindGroups[id] = &bindGroup{pipeline: p, buffer: constants, size: size}
	d.inst.count(kindBindGroup, 1)
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bindGroups[id]; ok {
		delete(d.bindGroups, id)
		d.inst.count(kindBindGroup, -1)
	}
}

// === Command recording ===

// CreateCommandAllocator creates an allocator.
func (d *Device) CreateCommandAllocator(label string) (gpucore.AllocatorID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed != nil {
		return gpucore.InvalidID, d.removed
	}
	id := gpucore.AllocatorID(d.newID())
	d.allocators[id] = &allocator{label: label}
	d.inst.count(kindAllocator, 1)
	return id, nil
}

// ResetCommandAllocator fails with ErrInvalidState if a list is still
// recording into the allocator or submitted work from it has not executed.
func (d *Device) ResetCommandAllocator(id gpucore.AllocatorID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.allocators[id]
	if !ok {
		return errors.Wrapf(gpucore.ErrUnknownResource, "allocator %d", id)
	}
	d.inst.record(Event{Kind: EventResetAllocator, Value: uint64(id), Completed: d.completedLocked()})
	if a.open > 0 {
		return errors.Wrapf(gpucore.ErrInvalidState, "soft: reset of allocator %q while a list records into it", a.label)
	}
	if a.pending > 0 {
		return errors.Wrapf(gpucore.ErrInvalidState, "soft: reset of allocator %q with %d submissions in flight", a.label, a.pending)
	}
	return nil
}

// DestroyCommandAllocator releases an allocator.
func (d *Device) DestroyCommandAllocator(id gpucore.AllocatorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.allocators[id]
	if !ok {
		return
	}
	if a.busy {
		d.inst.busy(-1)
	}
	delete(d.allocators, id)
	d.inst.count(kindAllocator, -1)
}

// CreateCommandList creates a list recording into alloc.
func (d *Device) CreateCommandList(alloc gpucore.AllocatorID, p gpucore.PipelineID, label string) (gpucore.CommandList, error) {
	l := &commandList{dev: d, label: label, closed: true}
	d.mu.Lock()
	if d.removed != nil {
		d.mu.Unlock()
		return nil, d.removed
	}
	d.inst.count(kindList, 1)
	d.mu.Unlock()
	if err := l.Reset(alloc, p); err != nil {
		l.Destroy()
		return nil, err
	}
	return l, nil
}

func float32Bits(v float32) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return b
}

func channel(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}
