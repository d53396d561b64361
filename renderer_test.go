package meshview

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/meshview/backend"
	"github.com/gogpu/meshview/backend/soft"
	"github.com/gogpu/meshview/camera"
	"github.com/gogpu/meshview/config"
	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/mesh"
	"github.com/gogpu/meshview/timer"
)

type harness struct {
	inst  *soft.Instance
	clock *timer.Manual
	r     *Renderer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{inst: soft.New(), clock: &timer.Manual{}}
	all := append([]Option{
		WithInstance(h.inst),
		WithClock(h.clock),
		WithFixedStep(timer.DefaultTarget),
	}, opts...)
	r, err := New(Headless{Width: 64, Height: 48}, all...)
	require.NoError(t, err)
	h.r = r
	t.Cleanup(func() {
		require.NoError(t, r.Close())
		assert.Zero(t, h.inst.Live().Total(), "leaked: %v", h.inst.Live())
	})
	return h
}

func newTestRenderer(t *testing.T) *Renderer {
	return newHarness(t).r
}

// tick advances the clock by one fixed step and ticks n times.
func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		h.clock.Advance(timer.DefaultTarget)
		require.NoError(t, h.r.Tick())
	}
}

func floatsOf(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func TestTickSkipsDrawBeforeFirstUpdate(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.Tick())
	assert.Zero(t, h.r.Stats().Frames)

	h.tick(t, 1)
	assert.Equal(t, uint64(1), h.r.Stats().Frames)
	assert.Equal(t, uint64(1), h.r.Stats().Updates)
}

func TestTickDrawsEmbeddedMesh(t *testing.T) {
	h := newHarness(t)
	h.tick(t, 4)
	require.NoError(t, h.r.OnSuspending())

	draws := h.inst.Draws()
	require.Len(t, draws, 4)
	for _, d := range draws {
		assert.Equal(t, uint32(60), d.IndexCount)
		assert.Equal(t, [2]float32{64, 48}, d.Viewport)
	}
	assert.LessOrEqual(t, h.inst.MaxInFlight(), 2)
}

func TestTickIsDeterministic(t *testing.T) {
	run := func() [][]byte {
		h := newHarness(t)
		h.tick(t, 10)
		require.NoError(t, h.r.OnSuspending())
		var out [][]byte
		for _, d := range h.inst.Draws() {
			out = append(out, d.Constants[:camera.ConstantsSize])
		}
		return out
	}
	a, b := run(), run()
	require.Len(t, a, 10)
	assert.Equal(t, a, b)

	orbit := camera.NewOrbit()
	for i, got := range a {
		want := orbit.Constants(64.0 / 48.0).Floats()
		assert.Equal(t, want, floatsOf(got), "tick %d", i)
		orbit.Advance()
	}
}

func TestDeviceLostRecovers(t *testing.T) {
	h := newHarness(t)
	h.tick(t, 3)
	before := h.inst.Live()
	gen := h.r.Generation()

	h.inst.InjectPresentFault(errors.New("TDR"))
	h.tick(t, 1)

	assert.NotEqual(t, gen, h.r.Generation())
	assert.Equal(t, 1, h.r.Stats().Recoveries)
	assert.Equal(t, before, h.inst.Live(), "no staging buffers or allocators leaked")

	h.tick(t, 2)
	assert.Equal(t, uint64(5), h.r.Stats().Frames)
	assert.Equal(t, before, h.inst.Live())
}

func TestDeviceLostRecoveryRetriedOnNextTick(t *testing.T) {
	h := newHarness(t)
	h.tick(t, 1)

	// The second frame waits on the first slot and times out; so does the
	// geometry upload of the recovery.
	h.inst.StallFences(true)
	h.clock.Advance(timer.DefaultTarget)
	err := h.r.Tick()
	require.Error(t, err)
	assert.True(t, gpucore.IsDeviceLost(err), "got %v", err)

	h.inst.StallFences(false)
	h.tick(t, 2)
	assert.Equal(t, 1, h.r.Stats().Recoveries)
	assert.NotEqual(t, uuid.Nil, h.r.Generation())
}

func TestResizeDrainsBeforeRecreating(t *testing.T) {
	h := newHarness(t)
	h.tick(t, 2)
	h.inst.ResetEvents()

	require.NoError(t, h.r.OnWindowSizeChanged(100, 50, Rotate0))

	wait, resize, depth := -1, -1, -1
	for i, e := range h.inst.Events() {
		switch {
		case e.Kind == soft.EventWait && wait < 0:
			wait = i
		case e.Kind == soft.EventResize:
			resize = i
			assert.Equal(t, 100, e.Width)
			assert.Equal(t, 50, e.Height)
		case e.Kind == soft.EventCreateDepth:
			depth = i
		}
	}
	require.GreaterOrEqual(t, wait, 0, "no drain observed")
	assert.Less(t, wait, resize)
	assert.Less(t, wait, depth)

	h.tick(t, 1)
	require.NoError(t, h.r.OnSuspending())
	draws := h.inst.Draws()
	assert.Equal(t, [2]float32{100, 50}, draws[len(draws)-1].Viewport)
}

func TestResizeRotationSwapsBackBuffer(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.OnWindowSizeChanged(100, 50, Rotate90))
	w, ht := h.r.Size()
	assert.Equal(t, 50, w)
	assert.Equal(t, 100, ht)

	h.tick(t, 1)
	require.NoError(t, h.r.OnSuspending())
	draws := h.inst.Draws()
	assert.Equal(t, [2]float32{50, 100}, draws[len(draws)-1].Viewport)
}

func TestResizeClampsToOnePixel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.r.OnWindowSizeChanged(0, -5, Rotate0))
	w, ht := h.r.Size()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, ht)
	h.tick(t, 1)
}

func TestSuspendDrainsAndResumeRevalidates(t *testing.T) {
	h := newHarness(t)
	h.tick(t, 2)
	require.NoError(t, h.r.OnSuspending())
	assert.Zero(t, h.r.ring.InFlight())

	gen := h.r.Generation()
	require.NoError(t, h.r.OnResuming())
	assert.Equal(t, gen, h.r.Generation())

	// A driver update replaces the adapter while suspended.
	replacement := soft.HardwareAdapter
	replacement.LUID = 0x3001
	h.inst.SetAdapters(replacement, soft.SoftwareAdapter)
	require.NoError(t, h.r.OnResuming())
	assert.NotEqual(t, gen, h.r.Generation())
	assert.Equal(t, uint64(0x3001), uint64(h.r.Adapter().LUID))
	h.tick(t, 1)
}

func TestActivation(t *testing.T) {
	h := newHarness(t)
	assert.True(t, h.r.Active())
	h.r.OnDeactivated()
	assert.False(t, h.r.Active())
	h.r.OnActivated()
	assert.True(t, h.r.Active())
}

func TestCapture(t *testing.T) {
	h := newHarness(t)
	h.tick(t, 1)
	img, err := h.r.Capture()
	require.NoError(t, err)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 48, img.Height)
	assert.Equal(t, []byte{237, 149, 100, 255}, img.Pix[:4])
	h.tick(t, 1)
}

func TestCaptureBeforeFirstUpdate(t *testing.T) {
	h := newHarness(t)
	_, err := h.r.Capture()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpucore.ErrInvalidState))
	assert.Empty(t, h.inst.Draws())

	// A tick without elapsed time does not update either.
	require.NoError(t, h.r.Tick())
	_, err = h.r.Capture()
	assert.True(t, errors.Is(err, gpucore.ErrInvalidState))

	h.tick(t, 1)
	_, err = h.r.Capture()
	require.NoError(t, err)
}

func TestFirstFrameUsesStartingPose(t *testing.T) {
	h := newHarness(t)
	h.tick(t, 1)
	require.NoError(t, h.r.OnSuspending())

	draws := h.inst.Draws()
	require.Len(t, draws, 1)
	want := camera.NewOrbit().Constants(64.0 / 48.0).Floats()
	assert.Equal(t, want, floatsOf(draws[0].Constants[:camera.ConstantsSize]))
	assert.InDelta(t, camera.DefaultStep, h.r.Camera().Angle, 1e-6)
}

func TestClosedRenderer(t *testing.T) {
	inst := soft.New()
	r, err := New(nil, WithInstance(inst))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.True(t, errors.Is(r.Tick(), ErrClosed))
	assert.True(t, errors.Is(r.OnWindowSizeChanged(10, 10, Rotate0), ErrClosed))
	_, err = r.Capture()
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Zero(t, inst.Live().Total())
}

func TestNewDefaults(t *testing.T) {
	r, err := New(nil, WithBackend(backend.BackendSoft))
	require.NoError(t, err)
	defer r.Close()

	w, h := r.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
	assert.Equal(t, soft.HardwareAdapter.Name, r.Adapter().Name)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(nil, WithInstance(soft.New()), WithFrameCount(1))
	assert.Error(t, err)

	bad := config.Default()
	bad.FrameCount = 99
	_, err = New(nil, WithInstance(soft.New()), WithConfig(bad))
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))

	_, err = New(nil, WithInstance(soft.New()), WithMesh(&mesh.Mesh{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, mesh.ErrMeshLoad))
}

func TestNewNoAdapterIsFatal(t *testing.T) {
	inst := soft.New(soft.WithAdapters())
	_, err := New(nil, WithInstance(inst))
	require.Error(t, err)
	assert.True(t, gpucore.IsFatal(err))
	assert.Zero(t, inst.Live().Total())
}

func TestWithConfigLoadsMeshFile(t *testing.T) {
	m := &mesh.Mesh{
		Vertices: []mesh.Vertex{
			{Color: mesh.DefaultColor},
			{Color: mesh.DefaultColor},
			{Color: mesh.DefaultColor},
		},
		Indices: []uint32{0, 1, 2},
	}
	m.Vertices[1].Pos.X = 1
	m.Vertices[2].Pos.Y = 1
	path := filepath.Join(t.TempDir(), "tri.msh")
	require.NoError(t, mesh.Save(path, m))

	cfg := config.Default()
	cfg.Width, cfg.Height = 32, 32
	cfg.FrameCount = 3
	cfg.Mesh = path
	cfg.FixedStep = true

	h := newHarness(t, WithConfig(cfg))
	w, ht := h.r.Size()
	assert.Equal(t, 64, w, "surface size wins over the configured size")
	assert.Equal(t, 48, ht)

	h.tick(t, 4)
	require.NoError(t, h.r.OnSuspending())
	draws := h.inst.Draws()
	require.Len(t, draws, 4)
	assert.Equal(t, uint32(3), draws[0].IndexCount)
	assert.LessOrEqual(t, h.inst.MaxInFlight(), 3)
}
