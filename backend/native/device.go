// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package native

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/logging"
)

type buffer struct {
	hal   hal.Buffer
	desc  gpucore.BufferDesc
	state gpucore.ResourceState

	// shadow is the CPU side of an upload or readback buffer. Upload
	// shadows are written to the GPU before every submission; readback
	// shadows are refreshed by Map.
	shadow []byte
	mapped bool
}

type texture struct {
	hal           hal.Texture
	view          hal.TextureView
	width, height int
	format        gpucore.TextureFormat
	state         gpucore.ResourceState
}

type fence struct {
	hal       hal.Fence
	completed uint64
	pending   []uint64 // signaled values not yet observed complete, ascending
}

type allocator struct {
	label string
	cmds  []hal.CommandBuffer
}

type pipeline struct {
	desc       gpucore.PipelineDesc
	bindLayout hal.BindGroupLayout
	layout     hal.PipelineLayout
	vs, ps     hal.ShaderModule
	pipe       hal.RenderPipeline
}

type bindGroup struct {
	pipeline gpucore.PipelineID
	hal      hal.BindGroup
}

// Device implements gpucore.Device on a hal.Device and its queue.
//
// Thread Safety: Device is safe for concurrent use. Resource maps are
// protected by a mutex; HAL calls that may block (fence waits) run without
// holding it.
type Device struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue
	info   gpucore.AdapterInfo

	// external devices belong to a host (see FromProvider) and are not
	// destroyed with this Device.
	external bool

	nextID uint64

	buffers    map[gpucore.BufferID]*buffer
	textures   map[gpucore.TextureID]*texture
	fences     map[gpucore.FenceID]*fence
	allocators map[gpucore.AllocatorID]*allocator
	pipelines  map[gpucore.PipelineID]*pipeline
	bindGroups map[gpucore.BindGroupID]*bindGroup

	// submitFence orders command buffer submissions; HAL submits always
	// carry a fence.
	submitFence hal.Fence
	submitValue uint64

	removed error
	denied  []gpucore.MessageID
}

var (
	_ gpucore.Device        = (*Device)(nil)
	_ gpucore.Queue         = (*Device)(nil)
	_ gpucore.MessageFilter = (*Device)(nil)
)

func newDevice(device hal.Device, queue hal.Queue, info gpucore.AdapterInfo, external bool) *Device {
	return &Device{
		device:     device,
		queue:      queue,
		info:       info,
		external:   external,
		nextID:     1,
		buffers:    make(map[gpucore.BufferID]*buffer),
		textures:   make(map[gpucore.TextureID]*texture),
		fences:     make(map[gpucore.FenceID]*fence),
		allocators: make(map[gpucore.AllocatorID]*allocator),
		pipelines:  make(map[gpucore.PipelineID]*pipeline),
		bindGroups: make(map[gpucore.BindGroupID]*bindGroup),
	}
}

// newID generates a unique resource ID. Must be called with d.mu held.
func (d *Device) newID() uint64 {
	id := d.nextID
	d.nextID++
	return id
}

// Info returns the adapter this device was opened on.
func (d *Device) Info() gpucore.AdapterInfo { return d.info }

// Queue returns the device itself; HAL devices expose one queue.
func (d *Device) Queue() gpucore.Queue { return d }

// RemovedReason reports why the device was removed, or nil.
func (d *Device) RemovedReason() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// lost records err as the removal reason and returns it marked device-lost.
func (d *Device) lost(err error, op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lostLocked(err, op)
}

func (d *Device) lostLocked(err error, op string) error {
	if d.removed == nil {
		d.removed = gpucore.DeviceLost(gpucore.Wrap(err, op))
		logging.L().Warn("native: device lost", "op", op, "error", err)
	}
	return d.removed
}

// DenyMessages records message IDs to suppress. HAL validation output is
// routed through the logger, which drops denied IDs.
func (d *Device) DenyMessages(ids ...gpucore.MessageID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denied = append(d.denied, ids...)
	return nil
}

// === Synchronization ===

// CreateFence creates a timeline fence.
func (d *Device) CreateFence(initial uint64) (gpucore.FenceID, error) {
	f, err := d.device.CreateFence()
	if err != nil {
		return gpucore.InvalidID, gpucore.Wrap(err, "create fence")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.FenceID(d.newID())
	d.fences[id] = &fence{hal: f, completed: initial}
	return id, nil
}

// DestroyFence releases a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	d.mu.Lock()
	f, ok := d.fences[id]
	delete(d.fences, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyFence(f.hal)
	}
}

// CompletedValue probes the signaled values in order and returns the
// highest one the GPU has reached.
func (d *Device) CompletedValue(id gpucore.FenceID) (uint64, error) {
	d.mu.Lock()
	f, ok := d.fences[id]
	removed := d.removed
	d.mu.Unlock()
	if !ok {
		return 0, unknown("fence", uint64(id))
	}
	if removed != nil {
		return ^uint64(0), removed
	}
	for {
		d.mu.Lock()
		if len(f.pending) == 0 {
			v := f.completed
			d.mu.Unlock()
			return v, nil
		}
		next := f.pending[0]
		d.mu.Unlock()

		done, err := d.device.Wait(f.hal, next, 0)
		if err != nil {
			return ^uint64(0), d.lost(err, "fence status")
		}
		if !done {
			d.mu.Lock()
			v := f.completed
			d.mu.Unlock()
			return v, nil
		}
		d.mu.Lock()
		f.observe(next)
		d.mu.Unlock()
	}
}

// observe marks every pending value up to v complete.
func (f *fence) observe(v uint64) {
	if v > f.completed {
		f.completed = v
	}
	i := sort.Search(len(f.pending), func(i int) bool { return f.pending[i] > v })
	f.pending = f.pending[i:]
}

// Wait blocks until the fence reaches value or timeout elapses.
func (d *Device) Wait(id gpucore.FenceID, value uint64, timeout time.Duration) (bool, error) {
	d.mu.Lock()
	f, ok := d.fences[id]
	removed := d.removed
	var done bool
	if ok {
		done = f.completed >= value
	}
	d.mu.Unlock()
	if !ok {
		return false, unknown("fence", uint64(id))
	}
	if removed != nil {
		return false, removed
	}
	if done {
		return true, nil
	}
	reached, err := d.device.Wait(f.hal, value, timeout)
	if err != nil {
		return false, d.lost(err, "wait fence")
	}
	if reached {
		d.mu.Lock()
		f.observe(value)
		d.mu.Unlock()
	}
	return reached, nil
}

// Submit flushes upload shadows and submits the list's command buffer.
func (d *Device) Submit(list gpucore.CommandList) error {
	l, ok := list.(*commandList)
	if !ok || l.dev != d {
		return invalidState("submit of a foreign command list")
	}
	d.mu.Lock()
	if d.removed != nil {
		err := d.removed
		d.mu.Unlock()
		return err
	}
	if l.cmd == nil || l.err != nil {
		d.mu.Unlock()
		return invalidState("submit of list %q that is not closed", l.label)
	}
	cmd := l.cmd
	l.cmd = nil
	if a, ok := d.allocators[l.alloc]; ok {
		a.cmds = append(a.cmds, cmd)
	}
	for _, b := range d.buffers {
		if b.desc.Heap == gpucore.HeapUpload && b.mapped {
			d.queue.WriteBuffer(b.hal, 0, b.shadow)
		}
	}
	if d.submitFence == nil {
		f, err := d.device.CreateFence()
		if err != nil {
			d.mu.Unlock()
			return gpucore.Wrap(err, "create submit fence")
		}
		d.submitFence = f
	}
	d.submitValue++
	sf, sv := d.submitFence, d.submitValue
	d.mu.Unlock()

	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, sf, sv); err != nil {
		return d.lost(err, "submit")
	}
	return nil
}

// Signal enqueues a fence signal after all submitted work.
func (d *Device) Signal(id gpucore.FenceID, value uint64) error {
	d.mu.Lock()
	f, ok := d.fences[id]
	removed := d.removed
	if ok && removed == nil {
		f.pending = append(f.pending, value)
	}
	d.mu.Unlock()
	if !ok {
		return unknown("fence", uint64(id))
	}
	if removed != nil {
		return removed
	}
	if err := d.queue.Submit(nil, f.hal, value); err != nil {
		return d.lost(err, "signal")
	}
	return nil
}

// === Buffers ===

// CreateBuffer allocates a HAL buffer. Upload and readback buffers get a
// CPU shadow that Map returns.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, errors.New("native: buffer size must be positive")
	}
	hb, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: bufferUsage(desc.Heap),
	})
	if err != nil {
		return gpucore.InvalidID, gpucore.Wrap(err, "create buffer "+desc.Label)
	}
	b := &buffer{hal: hb, desc: *desc, state: desc.InitialState}
	switch desc.Heap {
	case gpucore.HeapUpload:
		b.state = gpucore.StateGenericRead
		b.shadow = make([]byte, desc.Size)
	case gpucore.HeapReadback:
		b.state = gpucore.StateCopyDest
		b.shadow = make([]byte, desc.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = b
	return id, nil
}

func bufferUsage(h gpucore.Heap) gputypes.BufferUsage {
	switch h {
	case gpucore.HeapUpload:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst | gputypes.BufferUsageUniform
	case gpucore.HeapReadback:
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	default:
		return gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc |
			gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageUniform
	}
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBuffer(b.hal)
	}
}

// Map returns the CPU shadow of an upload or readback buffer.
func (d *Device) Map(id gpucore.BufferID) ([]byte, error) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	if ok {
		b.mapped = true
	}
	d.mu.Unlock()
	if !ok {
		return nil, unknown("buffer", uint64(id))
	}
	switch b.desc.Heap {
	case gpucore.HeapUpload:
		return b.shadow, nil
	case gpucore.HeapReadback:
		if err := d.queue.ReadBuffer(b.hal, 0, b.shadow); err != nil {
			return nil, gpucore.Wrap(err, "read buffer "+b.desc.Label)
		}
		return b.shadow, nil
	default:
		return nil, invalidState("map of device-local buffer %q", b.desc.Label)
	}
}

// === Textures ===

func textureFormat(f gpucore.TextureFormat) gputypes.TextureFormat {
	switch f {
	case gpucore.FormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	case gpucore.FormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case gpucore.FormatDepth32Float:
		return gputypes.TextureFormatDepth32Float
	default:
		return gputypes.TextureFormatUndefined
	}
}

// createTexture creates a texture and its default view.
func (d *Device) createTexture(label string, width, height int, format gpucore.TextureFormat,
	usage gputypes.TextureUsage, state gpucore.ResourceState) (gpucore.TextureID, error) {
	if width <= 0 || height <= 0 {
		return gpucore.InvalidID, errors.Newf("native: texture %q has invalid size %dx%d", label, width, height)
	}
	ht, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        textureFormat(format),
		Usage:         usage,
	})
	if err != nil {
		return gpucore.InvalidID, gpucore.Wrap(err, "create texture "+label)
	}
	view, err := d.device.CreateTextureView(ht, &hal.TextureViewDescriptor{Label: label + "_view"})
	if err != nil {
		d.device.DestroyTexture(ht)
		return gpucore.InvalidID, gpucore.Wrap(err, "create texture view "+label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.TextureID(d.newID())
	d.textures[id] = &texture{hal: ht, view: view, width: width, height: height, format: format, state: state}
	return id, nil
}

// CreateDepthTarget creates a depth buffer in StateDepthWrite.
func (d *Device) CreateDepthTarget(width, height int, format gpucore.TextureFormat) (gpucore.TextureID, error) {
	return d.createTexture("depth", width, height, format,
		gputypes.TextureUsageRenderAttachment, gpucore.StateDepthWrite)
}

// DestroyTexture releases a texture and its view.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.hal)
	}
}

// === Pipeline ===

// CreatePipeline compiles both shader blobs, builds the single-uniform
// binding layout and the render pipeline.
func (d *Device) CreatePipeline(desc *gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, errors.New("native: nil pipeline descriptor")
	}
	p := &pipeline{desc: *desc}
	fail := func(err error, op string) (gpucore.PipelineID, error) {
		d.destroyPipeline(p)
		return gpucore.InvalidID, gpucore.Wrap(err, op)
	}

	var err error
	if p.vs, err = d.shaderModule(desc.Label+"_vs", desc.VertexShader); err != nil {
		return fail(err, "create vertex shader")
	}
	if p.ps, err = d.shaderModule(desc.Label+"_ps", desc.PixelShader); err != nil {
		return fail(err, "create pixel shader")
	}
	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: desc.Label + "_constants_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fail(err, "create bind group layout")
	}
	p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fail(err, "create pipeline layout")
	}

	attrs := make([]gputypes.VertexAttribute, 0, len(desc.Attributes))
	for _, a := range desc.Attributes {
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         vertexFormat(a.Format),
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}
	rpd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.vs,
			EntryPoint: desc.VertexEntry,
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: uint64(desc.Stride),
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes:  attrs,
			}},
		},
		Fragment: &hal.FragmentState{
			Module:     p.ps,
			EntryPoint: desc.PixelEntry,
			Targets: []gputypes.ColorTargetState{{
				Format:    textureFormat(desc.ColorFormat),
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
	if desc.DepthFormat != gpucore.FormatUnknown {
		rpd.DepthStencil = &hal.DepthStencilState{
			Format:            textureFormat(desc.DepthFormat),
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
		}
	}
	if p.pipe, err = d.device.CreateRenderPipeline(rpd); err != nil {
		return fail(err, "create render pipeline")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.PipelineID(d.newID())
	d.pipelines[id] = p
	return id, nil
}

func vertexFormat(f gpucore.VertexFormat) gputypes.VertexFormat {
	if f == gpucore.VertexFloat32x4 {
		return gputypes.VertexFormatFloat32x4
	}
	return gputypes.VertexFormatFloat32x3
}

func (d *Device) shaderModule(label string, blob []byte) (hal.ShaderModule, error) {
	src, err := shaderSource(blob)
	if err != nil {
		return nil, err
	}
	return d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
}

func (d *Device) destroyPipeline(p *pipeline) {
	if p.pipe != nil {
		d.device.DestroyRenderPipeline(p.pipe)
	}
	if p.layout != nil {
		d.device.DestroyPipelineLayout(p.layout)
	}
	if p.bindLayout != nil {
		d.device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.ps != nil {
		d.device.DestroyShaderModule(p.ps)
	}
	if p.vs != nil {
		d.device.DestroyShaderModule(p.vs)
	}
}

// DestroyPipeline releases a pipeline and its layouts.
func (d *Device) DestroyPipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	delete(d.pipelines, id)
	d.mu.Unlock()
	if ok {
		d.destroyPipeline(p)
	}
}

// CreateBindGroup binds the constant buffer at binding 0.
func (d *Device) CreateBindGroup(pid gpucore.PipelineID, constants gpucore.BufferID, size uint64) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	p, ok := d.pipelines[pid]
	b, bok := d.buffers[constants]
	d.mu.Unlock()
	if !ok {
		return gpucore.InvalidID, unknown("pipeline", uint64(pid))
	}
	if !bok {
		return gpucore.InvalidID, unknown("buffer", uint64(constants))
	}
	if size > b.desc.Size {
		return gpucore.InvalidID, invalidState("bind group of %d bytes over %d-byte buffer", size, b.desc.Size)
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  p.desc.Label + "_constants",
		Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: b.hal.NativeHandle(), Offset: 0, Size: size,
			}},
		},
	})
	if err != nil {
		return gpucore.InvalidID, gpucore.Wrap(err, "create bind group")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BindGroupID(d.newID())
	d.bindGroups[id] = &bindGroup{pipeline: pid, hal: bg}
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	bg, ok := d.bindGroups[id]
	delete(d.bindGroups, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBindGroup(bg.hal)
	}
}

// === Command allocators ===

// CreateCommandAllocator creates an allocator. HAL encoders own their
// storage, so an allocator only tracks the command buffers recorded from
// it until they may be freed.
func (d *Device) CreateCommandAllocator(label string) (gpucore.AllocatorID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.AllocatorID(d.newID())
	d.allocators[id] = &allocator{label: label}
	return id, nil
}

// ResetCommandAllocator frees the command buffers recorded from id.
func (d *Device) ResetCommandAllocator(id gpucore.AllocatorID) error {
	d.mu.Lock()
	a, ok := d.allocators[id]
	var cmds []hal.CommandBuffer
	if ok {
		cmds, a.cmds = a.cmds, nil
	}
	d.mu.Unlock()
	if !ok {
		return unknown("allocator", uint64(id))
	}
	for _, c := range cmds {
		d.device.FreeCommandBuffer(c)
	}
	return nil
}

// DestroyCommandAllocator frees the allocator's command buffers.
func (d *Device) DestroyCommandAllocator(id gpucore.AllocatorID) {
	_ = d.ResetCommandAllocator(id)
	d.mu.Lock()
	delete(d.allocators, id)
	d.mu.Unlock()
}

// CreateCommandList creates a list in the recording state.
func (d *Device) CreateCommandList(alloc gpucore.AllocatorID, p gpucore.PipelineID, label string) (gpucore.CommandList, error) {
	l := &commandList{dev: d, label: label, closed: true}
	if err := l.Reset(alloc, p); err != nil {
		return nil, err
	}
	return l, nil
}

// Destroy releases the device. Resources still registered are destroyed
// first and reported.
func (d *Device) Destroy() {
	d.mu.Lock()
	leaked := len(d.buffers) + len(d.textures) + len(d.fences) + len(d.pipelines) + len(d.bindGroups)
	bufs, texs, fences := d.buffers, d.textures, d.fences
	pipes, groups, allocs := d.pipelines, d.bindGroups, d.allocators
	d.buffers = map[gpucore.BufferID]*buffer{}
	d.textures = map[gpucore.TextureID]*texture{}
	d.fences = map[gpucore.FenceID]*fence{}
	d.pipelines = map[gpucore.PipelineID]*pipeline{}
	d.bindGroups = map[gpucore.BindGroupID]*bindGroup{}
	d.allocators = map[gpucore.AllocatorID]*allocator{}
	sf := d.submitFence
	d.submitFence = nil
	d.mu.Unlock()

	if leaked > 0 {
		logging.L().Warn("native: destroying device with live resources", "count", leaked)
	}
	for _, bg := range groups {
		d.device.DestroyBindGroup(bg.hal)
	}
	for _, p := range pipes {
		d.destroyPipeline(p)
	}
	for _, a := range allocs {
		for _, c := range a.cmds {
			d.device.FreeCommandBuffer(c)
		}
	}
	for _, b := range bufs {
		d.device.DestroyBuffer(b.hal)
	}
	for _, t := range texs {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.hal)
	}
	for _, f := range fences {
		d.device.DestroyFence(f.hal)
	}
	if sf != nil {
		d.device.DestroyFence(sf)
	}
	if !d.external {
		d.device.Destroy()
	}
}
