package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

// commandList records closures executed on the simulated GPU timeline.
// Validation that needs resource state happens at record time; the first
// failure is kept and returned by Close.
type commandList struct {
	dev   *Device
	label string

	alloc    gpucore.AllocatorID
	pipeline gpucore.PipelineID
	closed   bool
	err      error
	cmds     []command

	color, depth gpucore.TextureID
	viewport     gpucore.Viewport
	bindGroup    gpucore.BindGroupID
	vertexBuf    gpucore.BufferID
	indexBuf     gpucore.BufferID
	indexSize    uint64
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
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: record into closed list %q", l.label))
		l.dev.mu.Unlock()
		return false
	}
	if l.err != nil {
		l.dev.mu.Unlock()
		return false
	}
	return true
}

func (l *commandList) Reset(alloc gpucore.AllocatorID, p gpucore.PipelineID) error {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !l.closed {
		return errors.Wrapf(gpucore.ErrInvalidState, "soft: reset of open list %q", l.label)
	}
	a, ok := d.allocators[alloc]
	if !ok {
		return errors.Wrapf(gpucore.ErrUnknownResource, "allocator %d", alloc)
	}
	if p != gpucore.InvalidID {
		if _, ok := d.pipelines[p]; !ok {
			return errors.Wrapf(gpucore.ErrUnknownResource, "pipeline %d", p)
		}
	}
	a.open++
	d.updateBusy(a)
	*l = commandList{dev: d, label: l.label, alloc: alloc, pipeline: p}
	return nil
}

func (l *commandList) Close() error {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if l.closed {
		return errors.Wrapf(gpucore.ErrInvalidState, "soft: close of closed list %q", l.label)
	}
	l.closed = true
	if a, ok := d.allocators[l.alloc]; ok {
		a.open--
		d.updateBusy(a)
	}
	return l.err
}

func (l *commandList) Destroy() {
	d := l.dev
	d.mu.Lock()
	if !l.closed {
		l.closed = true
		if a, ok := d.allocators[l.alloc]; ok {
			a.open--
			d.updateBusy(a)
		}
	}
	d.mu.Unlock()
	d.inst.count(kindList, -1)
}

func (l *commandList) Barrier(barriers ...gpucore.Barrier) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	for _, b := range barriers {
		var cur *gpucore.ResourceState
		switch {
		case b.Buffer != gpucore.InvalidID:
			buf, ok := l.dev.buffers[b.Buffer]
			if !ok {
				l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "barrier on buffer %d", b.Buffer))
				return
			}
			cur = &buf.state
		case b.Texture != gpucore.InvalidID:
			tex, ok := l.dev.textures[b.Texture]
			if !ok {
				l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "barrier on texture %d", b.Texture))
				return
			}
			cur = &tex.state
		default:
			l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: barrier without resource"))
			return
		}
		if *cur != b.Before {
			l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: barrier %s->%s on resource in %s", b.Before, b.After, *cur))
			return
		}
		*cur = b.After
	}
}

func (l *commandList) CopyBuffer(dst, src gpucore.BufferID, size uint64) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	s, ok1 := l.dev.buffers[src]
	t, ok2 := l.dev.buffers[dst]
	if !ok1 || !ok2 {
		l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "copy %d -> %d", src, dst))
		return
	}
	if t.state != gpucore.StateCopyDest {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: copy into buffer %q in %s", t.desc.Label, t.state))
		return
	}
	if s.state != gpucore.StateCopySource && s.desc.Heap != gpucore.HeapUpload {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: copy from buffer %q in %s", s.desc.Label, s.state))
		return
	}
	if size > s.desc.Size || size > t.desc.Size {
		l.fail(errors.Newf("soft: copy of %d bytes out of bounds", size))
		return
	}
	l.cmds = append(l.cmds, func(d *Device) error {
		s, ok1 := d.buffers[src]
		t, ok2 := d.buffers[dst]
		if !ok1 || !ok2 {
			return errors.Newf("copy %d -> %d references a destroyed buffer", src, dst)
		}
		copy(t.data[:size], s.data[:size])
		return nil
	})
}

func (l *commandList) CopyTextureToBuffer(dst gpucore.BufferID, src gpucore.TextureID) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	s, ok1 := l.dev.textures[src]
	t, ok2 := l.dev.buffers[dst]
	if !ok1 || !ok2 {
		l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "copy texture %d -> buffer %d", src, dst))
		return
	}
	if s.state != gpucore.StateCopySource {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: copy from texture in %s", s.state))
		return
	}
	if t.state != gpucore.StateCopyDest {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: copy into buffer %q in %s", t.desc.Label, t.state))
		return
	}
	pitch := gpucore.RowPitch(s.width, s.format)
	if uint64(pitch*s.height) > t.desc.Size {
		l.fail(errors.Newf("soft: readback buffer of %d bytes too small for %dx%d", t.desc.Size, s.width, s.height))
		return
	}
	l.cmds = append(l.cmds, func(d *Device) error {
		s, ok1 := d.textures[src]
		t, ok2 := d.buffers[dst]
		if !ok1 || !ok2 {
			return errors.New("texture copy references a destroyed resource")
		}
		row := s.width * s.format.BytesPerPixel()
		for y := 0; y < s.height; y++ {
			copy(t.data[y*pitch:y*pitch+row], s.data[y*row:(y+1)*row])
		}
		return nil
	})
}

func (l *commandList) SetRenderTargets(color, depth gpucore.TextureID) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	c, ok := l.dev.textures[color]
	if !ok {
		l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "render target %d", color))
		return
	}
	if c.state != gpucore.StateRenderTarget {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: render target bound in %s", c.state))
		return
	}
	if depth != gpucore.InvalidID {
		if _, ok := l.dev.textures[depth]; !ok {
			l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "depth target %d", depth))
			return
		}
	}
	l.color, l.depth = color, depth
}

func (l *commandList) SetViewport(v gpucore.Viewport) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	if v.Width <= 0 || v.Height <= 0 {
		l.fail(errors.Newf("soft: empty viewport %vx%v", v.Width, v.Height))
		return
	}
	l.viewport = v
}

func (l *commandList) SetScissor(r gpucore.Rect) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	if r.Right < r.Left || r.Bottom < r.Top {
		l.fail(errors.Newf("soft: inverted scissor %+v", r))
	}
}

func (l *commandList) ClearRenderTarget(tex gpucore.TextureID, c gpucore.Color) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	if tex != l.color {
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: clear of unbound render target"))
		return
	}
	px := [4]byte{channel(c.B), channel(c.G), channel(c.R), channel(c.A)}
	if t := l.dev.textures[tex]; t.format == gpucore.FormatRGBA8Unorm {
		px = [4]byte{channel(c.R), channel(c.G), channel(c.B), channel(c.A)}
	}
	l.cmds = append(l.cmds, func(d *Device) error {
		t, ok := d.textures[tex]
		if !ok {
			return errors.New("clear references a destroyed texture")
		}
		fill(t.data, px)
		return nil
	})
}

func (l *commandList) ClearDepth(tex gpucore.TextureID, depth float32) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	if tex != l.depth {
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: clear of unbound depth target"))
		return
	}
	px := float32Bits(depth)
	l.cmds = append(l.cmds, func(d *Device) error {
		t, ok := d.textures[tex]
		if !ok {
			return errors.New("depth clear references a destroyed texture")
		}
		fill(t.data, px)
		return nil
	})
}

func (l *commandList) SetBindGroup(id gpucore.BindGroupID) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	bg, ok := l.dev.bindGroups[id]
	if !ok {
		l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "bind group %d", id))
		return
	}
	if bg.pipeline != l.pipeline {
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: bind group layout does not match the bound pipeline"))
		return
	}
	l.bindGroup = id
}

func (l *commandList) SetVertexBuffer(buf gpucore.BufferID, size uint64, stride uint32) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	b, ok := l.dev.buffers[buf]
	if !ok {
		l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "vertex buffer %d", buf))
		return
	}
	if b.state != gpucore.StateVertexAndConstant {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: vertex buffer %q bound in %s", b.desc.Label, b.state))
		return
	}
	if size > b.desc.Size || stride == 0 {
		l.fail(errors.Newf("soft: vertex view size=%d stride=%d invalid for buffer of %d", size, stride, b.desc.Size))
		return
	}
	l.vertexBuf = buf
}

func (l *commandList) SetIndexBuffer(buf gpucore.BufferID, size uint64) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	b, ok := l.dev.buffers[buf]
	if !ok {
		l.fail(errors.Wrapf(gpucore.ErrUnknownResource, "index buffer %d", buf))
		return
	}
	if b.state != gpucore.StateIndex {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "soft: index buffer %q bound in %s", b.desc.Label, b.state))
		return
	}
	if size > b.desc.Size {
		l.fail(errors.Newf("soft: index view of %d bytes exceeds buffer of %d", size, b.desc.Size))
		return
	}
	l.indexBuf, l.indexSize = buf, size
}

func (l *commandList) DrawIndexed(indexCount uint32) {
	if !l.recording() {
		return
	}
	defer l.dev.mu.Unlock()
	switch {
	case l.pipeline == gpucore.InvalidID:
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: draw without pipeline"))
	case l.color == gpucore.InvalidID:
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: draw without render target"))
	case l.viewport.Width == 0:
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: draw without viewport"))
	case l.bindGroup == gpucore.InvalidID:
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: draw without bind group"))
	case l.vertexBuf == gpucore.InvalidID || l.indexBuf == gpucore.InvalidID:
		l.fail(errors.Wrap(gpucore.ErrInvalidState, "soft: draw without vertex/index buffers"))
	case uint64(indexCount)*4 > l.indexSize:
		l.fail(errors.Newf("soft: draw of %d indices exceeds index view of %d bytes", indexCount, l.indexSize))
	}
	if l.err != nil {
		return
	}
	bgID, vp := l.bindGroup, l.viewport
	l.cmds = append(l.cmds, func(d *Device) error {
		bg, ok := d.bindGroups[bgID]
		if !ok {
			return errors.New("draw references a destroyed bind group")
		}
		cb, ok := d.buffers[bg.buffer]
		if !ok {
			return errors.New("draw references a destroyed constant buffer")
		}
		snapshot := append([]byte(nil), cb.data[:bg.size]...)
		d.inst.mu.Lock()
		d.inst.draws = append(d.inst.draws, Draw{
			IndexCount: indexCount,
			Viewport:   [2]float32{vp.Width, vp.Height},
			Constants:  snapshot,
		})
		d.inst.mu.Unlock()
		d.inst.record(Event{Kind: EventDraw, Value: uint64(indexCount), Width: int(vp.Width), Height: int(vp.Height)})
		return nil
	})
}

func fill(data []byte, px [4]byte) {
	for i := 0; i+4 <= len(data); i += 4 {
		copy(data[i:i+4], px[:])
	}
}
