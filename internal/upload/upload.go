// Package upload moves static data into device-local buffers through
// host-visible staging buffers, and provides the per-frame constant buffer.
//
// Staging memory is owned by a [Batch] until it is submitted and by the
// returned [Token] afterwards; it is released only once the fence confirms
// the copy finished.
package upload

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/device"
	"github.com/gogpu/meshview/internal/logging"
)

// MinAllocation is the smallest buffer allocated for an upload. Empty
// sources are padded to it.
const MinAllocation = 4

// ConstantAlignment is the required size granularity of constant buffers.
const ConstantAlignment = 256

// AlignedSize rounds s up to a multiple of ConstantAlignment.
func AlignedSize(s uint64) uint64 {
	return (s + ConstantAlignment - 1) &^ (ConstantAlignment - 1)
}

func slogger() *slog.Logger { return logging.L() }

// ErrBatchClosed is returned when a batch is used after Submit or Abort.
var ErrBatchClosed = errors.New("upload: batch already submitted")

// Item is one source for Upload.
type Item struct {
	Label string
	Data  []byte
	// State is the consumer state the destination ends in, such as
	// gpucore.StateVertexAndConstant or gpucore.StateIndex.
	State gpucore.ResourceState
}

// Batch records copies of several sources into one submission.
type Batch struct {
	ctx   *device.Context
	alloc gpucore.AllocatorID
	list  gpucore.CommandList

	staging []gpucore.BufferID
	dests   []gpucore.BufferID
	bytes   uint64
	closed  bool
}

// NewBatch starts a batch with its own allocator and command list.
func NewBatch(ctx *device.Context) (*Batch, error) {
	dev := ctx.Device()
	alloc, err := dev.CreateCommandAllocator("upload")
	if err != nil {
		return nil, errors.Wrap(err, "upload: create allocator")
	}
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, "upload")
	if err != nil {
		dev.DestroyCommandAllocator(alloc)
		return nil, errors.Wrap(err, "upload: create command list")
	}
	return &Batch{ctx: ctx, alloc: alloc, list: list}, nil
}

// Add records the transfer of data into a new device-local buffer that
// ends in state. The returned buffer is owned by the caller; it may be
// referenced by commands recorded after the batch is submitted.
func (b *Batch) Add(data []byte, state gpucore.ResourceState, label string) (gpucore.BufferID, error) {
	if b.closed {
		return gpucore.InvalidID, ErrBatchClosed
	}
	size := uint64(len(data))
	if size < MinAllocation {
		size = MinAllocation
	}
	dev := b.ctx.Device()

	dst, err := dev.CreateBuffer(&gpucore.BufferDesc{
		Label:        label,
		Size:         size,
		Heap:         gpucore.HeapDefault,
		InitialState: gpucore.StateCommon,
	})
	if err != nil {
		return gpucore.InvalidID, errors.Wrapf(err, "upload: create %s buffer", label)
	}
	staging, err := dev.CreateBuffer(&gpucore.BufferDesc{
		Label: label + "_staging",
		Size:  size,
		Heap:  gpucore.HeapUpload,
	})
	if err != nil {
		dev.DestroyBuffer(dst)
		return gpucore.InvalidID, errors.Wrapf(err, "upload: create %s staging buffer", label)
	}
	mem, err := dev.Map(staging)
	if err != nil {
		dev.DestroyBuffer(staging)
		dev.DestroyBuffer(dst)
		return gpucore.InvalidID, errors.Wrapf(err, "upload: map %s staging buffer", label)
	}
	copy(mem, data)
	clear(mem[len(data):])

	b.list.Barrier(gpucore.BufferTransition(dst, gpucore.StateCommon, gpucore.StateCopyDest))
	b.list.CopyBuffer(dst, staging, size)
	b.list.Barrier(gpucore.BufferTransition(dst, gpucore.StateCopyDest, state))

	b.staging = append(b.staging, staging)
	b.dests = append(b.dests, dst)
	b.bytes += size
	slogger().Debug("upload: queued", "label", label, "bytes", size, "state", state)
	return dst, nil
}

// Submit closes and submits the batch and signals the device fence. The
// batch cannot be used afterwards.
func (b *Batch) Submit() (*Token, error) {
	if b.closed {
		return nil, ErrBatchClosed
	}
	b.closed = true
	if err := b.list.Close(); err != nil {
		b.release(true)
		return nil, errors.Wrap(err, "upload: close command list")
	}
	if err := b.ctx.Queue().Submit(b.list); err != nil {
		b.release(true)
		return nil, err
	}
	value := b.ctx.NextValue()
	if err := b.ctx.Signal(value); err != nil {
		// The copies may already be queued; only a lost device is known
		// to execute nothing.
		if gpucore.IsDeviceLost(err) {
			b.release(true)
		}
		return nil, err
	}
	slogger().Debug("upload: submitted", "buffers", len(b.dests), "bytes", b.bytes, "fence", value)
	t := &Token{
		ctx:     b.ctx,
		value:   value,
		alloc:   b.alloc,
		list:    b.list,
		staging: b.staging,
	}
	b.staging, b.list = nil, nil
	return t, nil
}

// Abort discards an unsubmitted batch, including the destination buffers.
func (b *Batch) Abort() {
	if b.closed {
		return
	}
	b.closed = true
	b.release(true)
}

func (b *Batch) release(dests bool) {
	dev := b.ctx.Device()
	for _, id := range b.staging {
		dev.DestroyBuffer(id)
	}
	if dests {
		for _, id := range b.dests {
			dev.DestroyBuffer(id)
		}
	}
	b.list.Destroy()
	dev.DestroyCommandAllocator(b.alloc)
	b.staging, b.dests = nil, nil
}

// Token owns the staging memory of a submitted batch.
type Token struct {
	ctx      *device.Context
	value    uint64
	alloc    gpucore.AllocatorID
	list     gpucore.CommandList
	staging  []gpucore.BufferID
	released bool
}

// Value returns the fence value that marks the transfer complete.
func (t *Token) Value() uint64 { return t.value }

// Released reports whether the staging memory has been released.
func (t *Token) Released() bool { return t.released }

// Wait blocks until the transfer completes, then releases the staging
// buffers and the allocator. A device-lost error also releases them,
// since a removed device executes nothing.
func (t *Token) Wait(timeout time.Duration) error {
	if t.released {
		return nil
	}
	err := t.ctx.WaitFence(t.value, timeout)
	if err != nil && !gpucore.IsDeviceLost(err) {
		return err
	}
	t.release()
	return err
}

// Poll releases the staging memory if the transfer has completed. It
// never blocks.
func (t *Token) Poll() (bool, error) {
	if t.released {
		return true, nil
	}
	done, err := t.ctx.Completed()
	if err != nil {
		if gpucore.IsDeviceLost(err) {
			t.release()
		}
		return false, err
	}
	if done < t.value {
		return false, nil
	}
	t.release()
	return true, nil
}

func (t *Token) release() {
	dev := t.ctx.Device()
	for _, id := range t.staging {
		dev.DestroyBuffer(id)
	}
	t.list.Destroy()
	dev.DestroyCommandAllocator(t.alloc)
	t.staging = nil
	t.released = true
}

// Upload transfers items in one batch and waits for completion. On error
// no buffers are left allocated.
func Upload(ctx *device.Context, timeout time.Duration, items ...Item) ([]gpucore.BufferID, error) {
	b, err := NewBatch(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]gpucore.BufferID, 0, len(items))
	for _, it := range items {
		id, err := b.Add(it.Data, it.State, it.Label)
		if err != nil {
			b.Abort()
			return nil, err
		}
		ids = append(ids, id)
	}
	tok, err := b.Submit()
	if err != nil {
		destroyAll(ctx, ids)
		return nil, err
	}
	if err := tok.Wait(timeout); err != nil {
		destroyAll(ctx, ids)
		return nil, err
	}
	return ids, nil
}

func destroyAll(ctx *device.Context, ids []gpucore.BufferID) {
	for _, id := range ids {
		ctx.Device().DestroyBuffer(id)
	}
}
