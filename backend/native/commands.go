// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshview/gpucore"
)

// replayOp re-issues one recorded command into a HAL encoder.
type replayOp func(r *replay)

// commandList records commands against resolved HAL handles and replays
// them into a single hal.CommandEncoder at Close. Render state is grouped
// into render passes there: clears become load operations of the next
// pass, and copies or barriers end the open pass.
type commandList struct {
	dev   *Device
	label string

	alloc    gpucore.AllocatorID
	pipeline *pipeline
	closed   bool
	err      error
	ops      []replayOp

	// cmd is the encoded buffer between Close and Submit.
	cmd hal.CommandBuffer
}

var _ gpucore.CommandList = (*commandList)(nil)

func (l *commandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

// recording locks the device and reports whether commands may be recorded.
// The caller must unlock d.mu when it returns true.
func (l *commandList) recording() bool {
	l.dev.mu.Lock()
	if l.closed {
		l.fail(invalidState("record into closed list %q", l.label))
		l.dev.mu.Unlock()
		return false
	}
	if l.err != nil {
		l.dev.mu.Unlock()
		return false
	}
	return true
}

func (l *commandList) Reset(alloc gpucore.AllocatorID, pid gpucore.PipelineID) error {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !l.closed {
		return invalidState("reset of open list %q", l.label)
	}
	if _, ok := d.allocators[alloc]; !ok {
		return unknown("allocator", uint64(alloc))
	}
	var p *pipeline
	if pid != gpucore.InvalidID {
		var ok bool
		if p, ok = d.pipelines[pid]; !ok {
			return unknown("pipeline", uint64(pid))
		}
	}
	if l.cmd != nil {
		// Closed but never submitted.
		d.device.FreeCommandBuffer(l.cmd)
	}
	*l = commandList{dev: d, label: l.label, alloc: alloc, pipeline: p}
	return nil
}

// Close encodes the recorded commands.
func (l *commandList) Close() error {
	d := l.dev
	d.mu.Lock()
	if l.closed {
		d.mu.Unlock()
		return invalidState("close of closed list %q", l.label)
	}
	l.closed = true
	if l.err != nil {
		d.mu.Unlock()
		return l.err
	}
	ops := l.ops
	l.ops = nil
	d.mu.Unlock()

	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: l.label})
	if err != nil {
		l.err = gpucore.Wrap(err, "create command encoder")
		return l.err
	}
	if err := enc.BeginEncoding(l.label); err != nil {
		l.err = gpucore.Wrap(err, "begin encoding")
		return l.err
	}
	r := &replay{enc: enc, label: l.label}
	if l.pipeline != nil {
		r.pipe = l.pipeline.pipe
	}
	for _, op := range ops {
		op(r)
	}
	r.flushClears()
	r.endPass()
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		l.err = gpucore.Wrap(err, "end encoding")
		return l.err
	}
	l.cmd = cmd
	return nil
}

func (l *commandList) Destroy() {
	d := l.dev
	d.mu.Lock()
	cmd := l.cmd
	l.cmd = nil
	l.closed = true
	d.mu.Unlock()
	if cmd != nil {
		d.device.FreeCommandBuffer(cmd)
	}
}

// Barrier validates and applies state transitions. Texture transitions
// are encoded as HAL texture barriers; buffer usage is tracked by the HAL
// queue, so buffer transitions only update the recorded state.
func (l *commandList) Barrier(barriers ...gpucore.Barrier) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	var texBarriers []hal.TextureBarrier
	for _, b := range barriers {
		switch {
		case b.Buffer != gpucore.InvalidID:
			buf, ok := l.dev.buffers[b.Buffer]
			if !ok {
				l.fail(unknown("buffer", uint64(b.Buffer)))
				return
			}
			if buf.state != b.Before {
				l.fail(invalidState("barrier %s->%s on buffer in %s", b.Before, b.After, buf.state))
				return
			}
			buf.state = b.After
		case b.Texture != gpucore.InvalidID:
			tex, ok := l.dev.textures[b.Texture]
			if !ok {
				l.fail(unknown("texture", uint64(b.Texture)))
				return
			}
			if tex.state != b.Before {
				l.fail(invalidState("barrier %s->%s on texture in %s", b.Before, b.After, tex.state))
				return
			}
			tex.state = b.After
			oldU, newU := textureUsage(b.Before), textureUsage(b.After)
			if oldU != newU {
				texBarriers = append(texBarriers, hal.TextureBarrier{
					Texture: tex.hal,
					Usage:   hal.TextureUsageTransition{OldUsage: oldU, NewUsage: newU},
				})
			}
		default:
			l.fail(invalidState("barrier without resource"))
			return
		}
	}
	if len(texBarriers) == 0 {
		return
	}
	l.ops = append(l.ops, func(r *replay) {
		r.flushClears()
		r.endPass()
		r.enc.TransitionTextures(texBarriers)
	})
}

// textureUsage maps a resource state onto the HAL usage the texture is
// in while resting there.
func textureUsage(s gpucore.ResourceState) gputypes.TextureUsage {
	switch s {
	case gpucore.StateRenderTarget, gpucore.StateDepthWrite:
		return gputypes.TextureUsageRenderAttachment
	case gpucore.StateCopyDest:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageCopySrc
	}
}

func (l *commandList) CopyBuffer(dst, src gpucore.BufferID, size uint64) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	db, ok := l.dev.buffers[dst]
	if !ok {
		l.fail(unknown("buffer", uint64(dst)))
		return
	}
	sb, ok := l.dev.buffers[src]
	if !ok {
		l.fail(unknown("buffer", uint64(src)))
		return
	}
	if db.state != gpucore.StateCopyDest {
		l.fail(invalidState("copy into buffer %q in %s", db.desc.Label, db.state))
		return
	}
	if size > db.desc.Size || size > sb.desc.Size {
		l.fail(invalidState("copy of %d bytes exceeds buffer size", size))
		return
	}
	dh, sh := db.hal, sb.hal
	l.ops = append(l.ops, func(r *replay) {
		r.flushClears()
		r.endPass()
		r.enc.CopyBufferToBuffer(sh, dh, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: size}})
	})
}

func (l *commandList) CopyTextureToBuffer(dst gpucore.BufferID, src gpucore.TextureID) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	db, ok := l.dev.buffers[dst]
	if !ok {
		l.fail(unknown("buffer", uint64(dst)))
		return
	}
	tex, ok := l.dev.textures[src]
	if !ok {
		l.fail(unknown("texture", uint64(src)))
		return
	}
	if tex.state != gpucore.StateCopySource {
		l.fail(invalidState("copy from texture in %s", tex.state))
		return
	}
	pitch := gpucore.RowPitch(tex.width, tex.format)
	if uint64(pitch*tex.height) > db.desc.Size {
		l.fail(invalidState("readback buffer %q too small for %dx%d", db.desc.Label, tex.width, tex.height))
		return
	}
	th, bh := tex.hal, db.hal
	w, h := uint32(tex.width), uint32(tex.height)
	l.ops = append(l.ops, func(r *replay) {
		r.flushClears()
		r.endPass()
		r.enc.CopyTextureToBuffer(th, bh, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(pitch), RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: th, MipLevel: 0},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
	})
}

func (l *commandList) SetRenderTargets(color, depth gpucore.TextureID) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	ct, ok := l.dev.textures[color]
	if !ok {
		l.fail(unknown("texture", uint64(color)))
		return
	}
	if ct.state != gpucore.StateRenderTarget {
		l.fail(invalidState("color target in %s", ct.state))
		return
	}
	var dv hal.TextureView
	if depth != gpucore.InvalidID {
		dt, ok := l.dev.textures[depth]
		if !ok {
			l.fail(unknown("texture", uint64(depth)))
			return
		}
		dv = dt.view
	}
	cv := ct.view
	l.ops = append(l.ops, func(r *replay) {
		r.flushClears()
		r.endPass()
		r.color, r.depth = cv, dv
	})
}

func (l *commandList) SetViewport(v gpucore.Viewport) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	if v.Width <= 0 || v.Height <= 0 {
		l.fail(invalidState("empty viewport %vx%v", v.Width, v.Height))
		return
	}
	l.ops = append(l.ops, func(r *replay) {
		r.viewport = &v
		if r.pass != nil {
			r.pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
		}
	})
}

func (l *commandList) SetScissor(rc gpucore.Rect) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	if rc.Right < rc.Left || rc.Bottom < rc.Top {
		l.fail(invalidState("inverted scissor rectangle"))
		return
	}
	l.ops = append(l.ops, func(r *replay) {
		r.scissor = &rc
		if r.pass != nil {
			r.applyScissor()
		}
	})
}

func (l *commandList) ClearRenderTarget(tex gpucore.TextureID, c gpucore.Color) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	t, ok := l.dev.textures[tex]
	if !ok {
		l.fail(unknown("texture", uint64(tex)))
		return
	}
	if t.state != gpucore.StateRenderTarget {
		l.fail(invalidState("clear of color target in %s", t.state))
		return
	}
	cv := gputypes.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)}
	l.ops = append(l.ops, func(r *replay) {
		r.endPass()
		r.clearColor = &cv
	})
}

func (l *commandList) ClearDepth(tex gpucore.TextureID, depth float32) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	t, ok := l.dev.textures[tex]
	if !ok {
		l.fail(unknown("texture", uint64(tex)))
		return
	}
	if t.state != gpucore.StateDepthWrite {
		l.fail(invalidState("clear of depth target in %s", t.state))
		return
	}
	l.ops = append(l.ops, func(r *replay) {
		r.endPass()
		r.clearDepth = &depth
	})
}

func (l *commandList) SetBindGroup(id gpucore.BindGroupID) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	bg, ok := l.dev.bindGroups[id]
	if !ok {
		l.fail(unknown("bind group", uint64(id)))
		return
	}
	if p := l.dev.pipelines[bg.pipeline]; p != l.pipeline {
		l.fail(invalidState("bind group %d belongs to another pipeline", id))
		return
	}
	h := bg.hal
	l.ops = append(l.ops, func(r *replay) {
		r.bindGroup = h
		if r.pass != nil {
			r.pass.SetBindGroup(0, h, nil)
		}
	})
}

func (l *commandList) SetVertexBuffer(buf gpucore.BufferID, size uint64, stride uint32) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	b, ok := l.dev.buffers[buf]
	if !ok {
		l.fail(unknown("buffer", uint64(buf)))
		return
	}
	if b.state != gpucore.StateVertexAndConstant {
		l.fail(invalidState("vertex buffer %q in %s", b.desc.Label, b.state))
		return
	}
	if stride == 0 || size > b.desc.Size {
		l.fail(invalidState("vertex buffer view %d/%d over %d bytes", size, stride, b.desc.Size))
		return
	}
	h := b.hal
	l.ops = append(l.ops, func(r *replay) {
		r.vertexBuf = h
		if r.pass != nil {
			r.pass.SetVertexBuffer(0, h, 0)
		}
	})
}

func (l *commandList) SetIndexBuffer(buf gpucore.BufferID, size uint64) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	b, ok := l.dev.buffers[buf]
	if !ok {
		l.fail(unknown("buffer", uint64(buf)))
		return
	}
	if b.state != gpucore.StateIndex {
		l.fail(invalidState("index buffer %q in %s", b.desc.Label, b.state))
		return
	}
	if size > b.desc.Size {
		l.fail(invalidState("index buffer view of %d bytes over %d", size, b.desc.Size))
		return
	}
	h := b.hal
	l.ops = append(l.ops, func(r *replay) {
		r.indexBuf = h
		if r.pass != nil {
			r.pass.SetIndexBuffer(h, gputypes.IndexFormatUint32, 0)
		}
	})
}

func (l *commandList) DrawIndexed(indexCount uint32) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	if l.pipeline == nil {
		l.fail(invalidState("draw without pipeline"))
		return
	}
	l.ops = append(l.ops, func(r *replay) {
		if r.color == nil || r.vertexBuf == nil || r.indexBuf == nil || r.bindGroup == nil {
			return
		}
		r.beginPass()
		r.pass.DrawIndexed(indexCount, 1, 0, 0, 0)
	})
}

// replay is the encoder-side state while Close re-issues recorded ops.
type replay struct {
	enc   hal.CommandEncoder
	label string
	pipe  hal.RenderPipeline
	pass  hal.RenderPassEncoder

	color, depth hal.TextureView
	clearColor   *gputypes.Color
	clearDepth   *float32

	viewport  *gpucore.Viewport
	scissor   *gpucore.Rect
	bindGroup hal.BindGroup
	vertexBuf hal.Buffer
	indexBuf  hal.Buffer
}

// beginPass opens a render pass on the bound targets if none is open,
// consuming pending clears as load operations.
func (r *replay) beginPass() {
	if r.pass != nil {
		return
	}
	ca := hal.RenderPassColorAttachment{
		View:    r.color,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if r.clearColor != nil {
		ca.LoadOp = gputypes.LoadOpClear
		ca.ClearValue = *r.clearColor
	}
	desc := &hal.RenderPassDescriptor{
		Label:            r.label,
		ColorAttachments: []hal.RenderPassColorAttachment{ca},
	}
	if r.depth != nil {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:         r.depth,
			DepthLoadOp:  gputypes.LoadOpLoad,
			DepthStoreOp: gputypes.StoreOpStore,
		}
		if r.clearDepth != nil {
			ds.DepthLoadOp = gputypes.LoadOpClear
			ds.DepthClearValue = *r.clearDepth
		}
		desc.DepthStencilAttachment = ds
	}
	r.clearColor, r.clearDepth = nil, nil

	r.pass = r.enc.BeginRenderPass(desc)
	if r.pipe != nil {
		r.pass.SetPipeline(r.pipe)
	}
	if v := r.viewport; v != nil {
		r.pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
	}
	if r.scissor != nil {
		r.applyScissor()
	}
	if r.bindGroup != nil {
		r.pass.SetBindGroup(0, r.bindGroup, nil)
	}
	if r.vertexBuf != nil {
		r.pass.SetVertexBuffer(0, r.vertexBuf, 0)
	}
	if r.indexBuf != nil {
		r.pass.SetIndexBuffer(r.indexBuf, gputypes.IndexFormatUint32, 0)
	}
}

func (r *replay) applyScissor() {
	s := r.scissor
	r.pass.SetScissorRect(uint32(s.Left), uint32(s.Top), uint32(s.Right-s.Left), uint32(s.Bottom-s.Top))
}

// flushClears emits an empty pass for clears that no draw consumed.
func (r *replay) flushClears() {
	if r.pass != nil || (r.clearColor == nil && r.clearDepth == nil) || r.color == nil {
		return
	}
	r.beginPass()
	r.endPass()
}

func (r *replay) endPass() {
	if r.pass != nil {
		r.pass.End()
		r.pass = nil
	}
}
