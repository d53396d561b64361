package upload

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/device"
)

// ReadBuffer copies size bytes of a device-local buffer resting in state
// back to the CPU. It blocks until the copy completes and restores state.
func ReadBuffer(ctx *device.Context, buf gpucore.BufferID, state gpucore.ResourceState, size uint64, timeout time.Duration) ([]byte, error) {
	return readback(ctx, size, timeout, "readback", func(list gpucore.CommandList, dst gpucore.BufferID) {
		list.Barrier(gpucore.BufferTransition(buf, state, gpucore.StateCopySource))
		list.CopyBuffer(dst, buf, size)
		list.Barrier(gpucore.BufferTransition(buf, gpucore.StateCopySource, state))
	})
}

// ReadTexture copies a texture resting in state back to the CPU. Rows are
// gpucore.RowPitch bytes apart.
func ReadTexture(ctx *device.Context, tex gpucore.TextureID, state gpucore.ResourceState, width, height int, format gpucore.TextureFormat, timeout time.Duration) ([]byte, error) {
	size := uint64(gpucore.RowPitch(width, format) * height)
	return readback(ctx, size, timeout, "capture", func(list gpucore.CommandList, dst gpucore.BufferID) {
		list.Barrier(gpucore.TextureTransition(tex, state, gpucore.StateCopySource))
		list.CopyTextureToBuffer(dst, tex)
		list.Barrier(gpucore.TextureTransition(tex, gpucore.StateCopySource, state))
	})
}

func readback(ctx *device.Context, size uint64, timeout time.Duration, label string, record func(gpucore.CommandList, gpucore.BufferID)) ([]byte, error) {
	dev := ctx.Device()
	dst, err := dev.CreateBuffer(&gpucore.BufferDesc{
		Label: label,
		Size:  size,
		Heap:  gpucore.HeapReadback,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upload: create %s buffer", label)
	}
	defer dev.DestroyBuffer(dst)

	alloc, err := dev.CreateCommandAllocator(label)
	if err != nil {
		return nil, errors.Wrap(err, "upload: create allocator")
	}
	defer dev.DestroyCommandAllocator(alloc)
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, label)
	if err != nil {
		return nil, errors.Wrap(err, "upload: create command list")
	}
	defer list.Destroy()

	record(list, dst)
	if err := list.Close(); err != nil {
		return nil, errors.Wrapf(err, "upload: record %s", label)
	}
	if err := ctx.Queue().Submit(list); err != nil {
		return nil, err
	}
	value := ctx.NextValue()
	if err := ctx.Signal(value); err != nil {
		return nil, err
	}
	if err := ctx.WaitFence(value, timeout); err != nil {
		return nil, err
	}
	mem, err := dev.Map(dst)
	if err != nil {
		return nil, errors.Wrapf(err, "upload: map %s buffer", label)
	}
	return append([]byte(nil), mem[:size]...), nil
}
