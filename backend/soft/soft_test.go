package soft

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/meshview/gpucore"
)

func openDevice(t *testing.T, opts ...Option) (*Instance, *Device) {
	t.Helper()
	inst := New(opts...)
	adapters, err := inst.Adapters()
	require.NoError(t, err)
	require.NotEmpty(t, adapters)
	dev, err := adapters[0].Open(gpucore.FeatureLevel11_0)
	require.NoError(t, err)
	t.Cleanup(dev.Destroy)
	return inst, dev.(*Device)
}

func TestDefaultAdapters(t *testing.T) {
	inst := New()
	adapters, err := inst.Adapters()
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, gpucore.AdapterDiscrete, adapters[0].Info().Type)
	assert.Equal(t, gpucore.AdapterSoftware, adapters[1].Info().Type)
}

func TestOpenRejectsFeatureLevel(t *testing.T) {
	inst := New(WithAdapters(gpucore.AdapterInfo{Name: "old", FeatureLevel: gpucore.FeatureLevel10_0}))
	adapters, err := inst.Adapters()
	require.NoError(t, err)
	_, err = adapters[0].Open(gpucore.FeatureLevel11_0)
	assert.Error(t, err)
}

func TestMapHeapRules(t *testing.T) {
	_, dev := openDevice(t)

	local, err := dev.CreateBuffer(&gpucore.BufferDesc{Label: "local", Size: 16, Heap: gpucore.HeapDefault})
	require.NoError(t, err)
	_, err = dev.Map(local)
	assert.True(t, errors.Is(err, gpucore.ErrInvalidState))

	up, err := dev.CreateBuffer(&gpucore.BufferDesc{Label: "upload", Size: 16, Heap: gpucore.HeapUpload})
	require.NoError(t, err)
	mem, err := dev.Map(up)
	require.NoError(t, err)
	assert.Len(t, mem, 16)

	state, ok := dev.BufferState(up)
	require.True(t, ok)
	assert.Equal(t, gpucore.StateGenericRead, state)
}

// copyOnce records a copy of size bytes from an upload buffer holding data
// into a device-local buffer and back into a readback buffer.
func copyOnce(t *testing.T, dev *Device, data []byte) (gpucore.BufferID, gpucore.FenceID, gpucore.CommandList, gpucore.AllocatorID) {
	t.Helper()
	size := uint64(len(data))
	up, err := dev.CreateBuffer(&gpucore.BufferDesc{Size: size, Heap: gpucore.HeapUpload})
	require.NoError(t, err)
	mem, err := dev.Map(up)
	require.NoError(t, err)
	copy(mem, data)

	local, err := dev.CreateBuffer(&gpucore.BufferDesc{Size: size, Heap: gpucore.HeapDefault, InitialState: gpucore.StateCommon})
	require.NoError(t, err)
	rb, err := dev.CreateBuffer(&gpucore.BufferDesc{Size: size, Heap: gpucore.HeapReadback})
	require.NoError(t, err)

	alloc, err := dev.CreateCommandAllocator("copy")
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, "copy")
	require.NoError(t, err)
	list.Barrier(gpucore.BufferTransition(local, gpucore.StateCommon, gpucore.StateCopyDest))
	list.CopyBuffer(local, up, size)
	list.Barrier(gpucore.BufferTransition(local, gpucore.StateCopyDest, gpucore.StateCopySource))
	list.CopyBuffer(rb, local, size)
	require.NoError(t, list.Close())

	fence, err := dev.CreateFence(0)
	require.NoError(t, err)
	require.NoError(t, dev.Queue().Submit(list))
	require.NoError(t, dev.Queue().Signal(fence, 1))
	return rb, fence, list, alloc
}

func TestLazyTimelineExecutesOnWait(t *testing.T) {
	_, dev := openDevice(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	rb, fence, _, alloc := copyOnce(t, dev, data)

	done, err := dev.CompletedValue(fence)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), done, "work must not run before a wait")
	assert.True(t, errors.Is(dev.ResetCommandAllocator(alloc), gpucore.ErrInvalidState))

	ok, err := dev.Wait(fence, 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := dev.Map(rb)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoError(t, dev.ResetCommandAllocator(alloc))
}

func TestEagerTimeline(t *testing.T) {
	_, dev := openDevice(t, WithEagerGPU())
	_, fence, _, _ := copyOnce(t, dev, []byte{9, 9, 9, 9})
	done, err := dev.CompletedValue(fence)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), done)
	assert.True(t, dev.Idle())
}

func TestWaitForUnsignaledValueTimesOut(t *testing.T) {
	_, dev := openDevice(t)
	fence, err := dev.CreateFence(0)
	require.NoError(t, err)
	ok, err := dev.Wait(fence, 5, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStalledWait(t *testing.T) {
	inst, dev := openDevice(t)
	fence, err := dev.CreateFence(0)
	require.NoError(t, err)
	require.NoError(t, dev.Signal(fence, 1))

	inst.StallFences(true)
	ok, err := dev.Wait(fence, 1, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	inst.StallFences(false)
	ok, err = dev.Wait(fence, 1, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBarrierMismatchFailsClose(t *testing.T) {
	_, dev := openDevice(t)
	buf, err := dev.CreateBuffer(&gpucore.BufferDesc{Size: 4, InitialState: gpucore.StateCommon})
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator("a")
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, "l")
	require.NoError(t, err)

	list.Barrier(gpucore.BufferTransition(buf, gpucore.StateCopyDest, gpucore.StateIndex))
	err = list.Close()
	assert.True(t, errors.Is(err, gpucore.ErrInvalidState))
	assert.True(t, errors.Is(dev.Submit(list), gpucore.ErrInvalidState))
}

func TestRecordIntoClosedList(t *testing.T) {
	_, dev := openDevice(t)
	alloc, err := dev.CreateCommandAllocator("a")
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, "l")
	require.NoError(t, err)
	require.NoError(t, list.Close())

	list.SetViewport(gpucore.Viewport{Width: 1, Height: 1})
	require.NoError(t, list.Reset(alloc, gpucore.InvalidID))
	assert.NoError(t, list.Close(), "reset clears the recorded error")
	assert.Error(t, list.Close(), "double close")
}

func TestSwapchainPresentRotates(t *testing.T) {
	inst, dev := openDevice(t)
	sc, err := dev.CreateSwapchain(&gpucore.SwapchainDesc{Width: 8, Height: 4, Format: gpucore.FormatBGRA8Unorm, BufferCount: 3})
	require.NoError(t, err)
	defer sc.Destroy()

	for i := 0; i < 4; i++ {
		assert.Equal(t, i%3, sc.CurrentIndex())
		require.NoError(t, sc.Present(1))
	}
	assert.Equal(t, 3, inst.Live().Textures)
}

func TestSwapchainPresentRequiresPresentState(t *testing.T) {
	_, dev := openDevice(t)
	sc, err := dev.CreateSwapchain(&gpucore.SwapchainDesc{Width: 2, Height: 2, Format: gpucore.FormatBGRA8Unorm, BufferCount: 2})
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator("a")
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, "l")
	require.NoError(t, err)
	list.Barrier(gpucore.TextureTransition(sc.Image(0), gpucore.StatePresent, gpucore.StateRenderTarget))
	require.NoError(t, list.Close())

	assert.True(t, errors.Is(sc.Present(1), gpucore.ErrInvalidState))
}

func TestSwapchainResizeRequiresIdle(t *testing.T) {
	inst, dev := openDevice(t)
	sc, err := dev.CreateSwapchain(&gpucore.SwapchainDesc{Width: 2, Height: 2, Format: gpucore.FormatBGRA8Unorm, BufferCount: 2})
	require.NoError(t, err)
	fence, err := dev.CreateFence(0)
	require.NoError(t, err)
	require.NoError(t, dev.Signal(fence, 1))

	assert.True(t, errors.Is(sc.Resize(4, 4), gpucore.ErrInvalidState))

	ok, err := dev.Wait(fence, 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, sc.Resize(4, 4))

	w, h := sc.Size()
	assert.Equal(t, [2]int{4, 4}, [2]int{w, h})
	assert.Equal(t, 0, sc.CurrentIndex())
	assert.Equal(t, 2, inst.Live().Textures)
}

func TestPresentFaultRemovesDevice(t *testing.T) {
	inst, dev := openDevice(t)
	sc, err := dev.CreateSwapchain(&gpucore.SwapchainDesc{Width: 2, Height: 2, Format: gpucore.FormatBGRA8Unorm, BufferCount: 2})
	require.NoError(t, err)

	inst.InjectPresentFault(errors.New("hung"))
	err = sc.Present(1)
	require.Error(t, err)
	assert.True(t, gpucore.IsDeviceLost(err))
	assert.True(t, gpucore.IsDeviceLost(dev.RemovedReason()))

	_, err = dev.CreateCommandAllocator("after")
	assert.True(t, gpucore.IsDeviceLost(err))

	// The fault is consumed; teardown still works.
	sc.Destroy()
	assert.Equal(t, 0, inst.Live().Textures)
}

func TestClearAndReadback(t *testing.T) {
	_, dev := openDevice(t)
	sc, err := dev.CreateSwapchain(&gpucore.SwapchainDesc{Width: 3, Height: 2, Format: gpucore.FormatBGRA8Unorm, BufferCount: 2})
	require.NoError(t, err)
	img := sc.Image(0)
	rb, err := dev.CreateBuffer(&gpucore.BufferDesc{Size: uint64(gpucore.RowPitch(3, gpucore.FormatBGRA8Unorm) * 2), Heap: gpucore.HeapReadback})
	require.NoError(t, err)

	alloc, err := dev.CreateCommandAllocator("a")
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, "l")
	require.NoError(t, err)
	list.Barrier(gpucore.TextureTransition(img, gpucore.StatePresent, gpucore.StateRenderTarget))
	list.SetRenderTargets(img, gpucore.InvalidID)
	list.ClearRenderTarget(img, gpucore.Color{R: 1, G: 0.5, B: 0, A: 1})
	list.Barrier(gpucore.TextureTransition(img, gpucore.StateRenderTarget, gpucore.StateCopySource))
	list.CopyTextureToBuffer(rb, img)
	list.Barrier(gpucore.TextureTransition(img, gpucore.StateCopySource, gpucore.StatePresent))
	require.NoError(t, list.Close())

	fence, err := dev.CreateFence(0)
	require.NoError(t, err)
	require.NoError(t, dev.Submit(list))
	require.NoError(t, dev.Signal(fence, 1))
	ok, err := dev.Wait(fence, 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	px, ok := dev.TexturePixel(img, 2, 1)
	require.True(t, ok)
	assert.Equal(t, [4]byte{0, 128, 255, 255}, px)

	mem, err := dev.Map(rb)
	require.NoError(t, err)
	pitch := gpucore.RowPitch(3, gpucore.FormatBGRA8Unorm)
	assert.Equal(t, []byte{0, 128, 255, 255}, mem[pitch:pitch+4])
}

func TestLiveCounts(t *testing.T) {
	inst := New()
	adapters, err := inst.Adapters()
	require.NoError(t, err)
	gd, err := adapters[0].Open(gpucore.FeatureLevel11_0)
	require.NoError(t, err)
	dev := gd.(*Device)

	buf, err := dev.CreateBuffer(&gpucore.BufferDesc{Size: 4})
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator("a")
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc, gpucore.InvalidID, "l")
	require.NoError(t, err)

	live := inst.Live()
	assert.Equal(t, 1, live.Devices)
	assert.Equal(t, 1, live.Buffers)
	assert.Equal(t, 1, live.Allocators)
	assert.Equal(t, 1, live.Lists)
	assert.Equal(t, 1, inst.MaxInFlight())

	list.Destroy()
	dev.DestroyCommandAllocator(alloc)
	dev.DestroyBuffer(buf)
	dev.Destroy()
	assert.Equal(t, 0, inst.Live().Total(), inst.Live().String())
}

func TestDenyMessages(t *testing.T) {
	_, dev := openDevice(t)
	require.NoError(t, dev.DenyMessages(gpucore.MessageMapInvalidNullRange, gpucore.MessageUnmapInvalidNullRange))
	assert.Equal(t, []gpucore.MessageID{gpucore.MessageMapInvalidNullRange, gpucore.MessageUnmapInvalidNullRange}, dev.DeniedMessages())
}
