package record

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/meshview/backend/soft"
	"github.com/gogpu/meshview/camera"
	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/device"
	"github.com/gogpu/meshview/internal/frame"
	"github.com/gogpu/meshview/internal/upload"
	"github.com/gogpu/meshview/mesh"
	"github.com/gogpu/meshview/shader"
)

type fixture struct {
	inst *soft.Instance
	ctx  *device.Context
	ring *frame.Ring
	rec  *Recorder
}

func newFixture(t *testing.T, buffers int) *fixture {
	t.Helper()
	f := &fixture{inst: soft.New()}
	var err error
	f.ctx, err = device.Create(f.inst, device.Options{})
	require.NoError(t, err)
	f.ring, err = frame.New(f.ctx, frame.Options{BufferCount: buffers, Width: 64, Height: 48})
	require.NoError(t, err)

	m := mesh.Embedded()
	ids, err := upload.Upload(f.ctx, time.Second,
		upload.Item{Label: "vertices", Data: m.VertexBytes(), State: gpucore.StateVertexAndConstant},
		upload.Item{Label: "indices", Data: m.IndexBytes(), State: gpucore.StateIndex},
	)
	require.NoError(t, err)

	f.rec, err = New(f.ctx, f.ring, Geometry{
		Vertex:     ids[0],
		VertexSize: uint64(m.VertexSize()),
		Index:      ids[1],
		IndexSize:  uint64(m.IndexSize()),
		IndexCount: m.IndexCount(),
	}, Options{Shaders: shader.Default(), ConstantsSize: camera.ConstantsSize, SyncInterval: 1})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = f.ring.Destroy()
		f.rec.Destroy()
		for _, id := range ids {
			f.ctx.Device().DestroyBuffer(id)
		}
		f.ctx.Destroy()
		assert.Zero(t, f.inst.Live().Total(), "leaked: %v", f.inst.Live())
	})
	return f
}

func floatsOf(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func TestFrameDrawsMeshIndexCount(t *testing.T) {
	f := newFixture(t, 2)
	orbit := camera.NewOrbit()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.rec.Frame(orbit.Constants(64.0/48.0).Floats()))
		orbit.Advance()
	}
	require.NoError(t, f.ring.Drain())

	draws := f.inst.Draws()
	require.Len(t, draws, 5)
	for _, d := range draws {
		assert.Equal(t, uint32(60), d.IndexCount)
		assert.Equal(t, [2]float32{64, 48}, d.Viewport)
	}
	assert.Equal(t, uint64(5), f.rec.Frames())
	assert.LessOrEqual(t, f.inst.MaxInFlight(), 2)
}

func TestFrameCommandOrder(t *testing.T) {
	f := newFixture(t, 2)
	f.inst.ResetEvents()
	require.NoError(t, f.rec.Frame(make([]float32, camera.ConstantsFloats)))

	var kinds []soft.EventKind
	for _, e := range f.inst.Events() {
		kinds = append(kinds, e.Kind)
	}
	reset := indexOf(kinds, soft.EventResetAllocator)
	submit := indexOf(kinds, soft.EventSubmit)
	present := indexOf(kinds, soft.EventPresent)
	signal := indexOf(kinds, soft.EventSignal)
	require.True(t, reset >= 0 && submit >= 0 && present >= 0 && signal >= 0, "%v", kinds)
	assert.Less(t, reset, submit)
	assert.Less(t, submit, present)
	assert.Less(t, present, signal)
}

func indexOf(kinds []soft.EventKind, k soft.EventKind) int {
	for i, v := range kinds {
		if v == k {
			return i
		}
	}
	return -1
}

func TestConstantsReachTheDraw(t *testing.T) {
	for _, n := range []int{2, 3} {
		f := newFixture(t, n)
		orbit := camera.NewOrbit()
		var sent [][]float32
		for i := 0; i < 2*n+1; i++ {
			c := orbit.Constants(64.0 / 48.0).Floats()
			sent = append(sent, c)
			require.NoError(t, f.rec.Frame(c))
			orbit.Advance()
		}
		require.NoError(t, f.ring.Drain())

		draws := f.inst.Draws()
		require.Len(t, draws, len(sent))
		for i, d := range draws {
			got := floatsOf(d.Constants)
			assert.Equal(t, sent[i], got[:camera.ConstantsFloats], "n=%d draw %d", n, i)
		}
	}
}

func TestConstantsPerFrameWhileInFlight(t *testing.T) {
	f := newFixture(t, 2)
	marker := func(v float32) []float32 {
		c := make([]float32, camera.ConstantsFloats)
		c[0] = v
		return c
	}
	for _, v := range []float32{1, 2, 3} {
		require.NoError(t, f.rec.Frame(marker(v)))
	}
	require.NoError(t, f.ring.Drain())

	draws := f.inst.Draws()
	require.Len(t, draws, 3)
	for i, d := range draws {
		assert.Equal(t, float32(i+1), floatsOf(d.Constants)[0], "draw %d", i)
	}
}

func TestCaptureReturnsClearColor(t *testing.T) {
	f := newFixture(t, 2)
	img, err := f.rec.Capture(make([]float32, camera.ConstantsFloats))
	require.NoError(t, err)

	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 48, img.Height)
	assert.Equal(t, gpucore.FormatBGRA8Unorm, img.Format)
	require.Len(t, img.Pix, img.Pitch*img.Height)
	// BGRA cornflower blue.
	assert.Equal(t, []byte{237, 149, 100, 255}, img.Pix[0:4])
	last := (img.Height-1)*img.Pitch + (img.Width-1)*4
	assert.Equal(t, []byte{237, 149, 100, 255}, img.Pix[last:last+4])

	// The ring keeps working after a capture.
	require.NoError(t, f.rec.Frame(make([]float32, camera.ConstantsFloats)))
}

func TestCaptureFailureReleasesReadback(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.rec.Frame(nil))
	f.inst.InjectPresentFault(errors.New("TDR"))

	_, err := f.rec.Capture(nil)
	require.Error(t, err)
	assert.True(t, gpucore.IsDeviceLost(err))
	// The fixture cleanup checks that the readback buffer was released.
}

func TestCaptureDoesNotLeakAcrossFrames(t *testing.T) {
	f := newFixture(t, 2)
	before := f.inst.Live()
	for i := 0; i < 3; i++ {
		_, err := f.rec.Capture(nil)
		require.NoError(t, err)
		require.NoError(t, f.rec.Frame(nil))
	}
	require.NoError(t, f.ring.Drain())
	assert.Equal(t, before, f.inst.Live())
	assert.Zero(t, f.ring.Pending())
}

func TestFrameRejectsOversizedConstants(t *testing.T) {
	f := newFixture(t, 2)
	err := f.rec.Frame(make([]float32, 65))
	require.Error(t, err)
	// The slot was released, so the next frame proceeds.
	require.NoError(t, f.rec.Frame(nil))
}

func TestFramePresentFaultIsDeviceLost(t *testing.T) {
	f := newFixture(t, 2)
	f.inst.InjectPresentFault(errors.New("TDR"))
	err := f.rec.Frame(nil)
	require.Error(t, err)
	assert.True(t, gpucore.IsDeviceLost(err))

	var de *gpucore.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Present", de.Op)
}

func TestNewRejectsBadGeometry(t *testing.T) {
	inst := soft.New()
	ctx, err := device.Create(inst, device.Options{})
	require.NoError(t, err)
	defer ctx.Destroy()
	ring, err := frame.New(ctx, frame.Options{BufferCount: 2, Width: 8, Height: 8})
	require.NoError(t, err)
	defer func() { _ = ring.Destroy() }()

	_, err = New(ctx, ring, Geometry{IndexCount: 60, IndexSize: 120}, Options{Shaders: shader.Default(), ConstantsSize: 128})
	assert.Error(t, err)
}
