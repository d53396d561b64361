package meshview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gogpu/meshview/backend"
	"github.com/gogpu/meshview/config"
	"github.com/gogpu/meshview/mesh"
	"github.com/gogpu/meshview/shader"
	"github.com/gogpu/meshview/timer"
)

func apply(opts ...Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func TestDefaultOptions(t *testing.T) {
	o := apply()
	assert.Equal(t, backend.BackendAuto, o.backend)
	assert.Equal(t, 2, o.frameCount)
	assert.Equal(t, 5*time.Second, o.fenceTimeout)
	assert.Equal(t, 1, o.syncInterval())
	assert.False(t, o.fixedStep)
	assert.Equal(t, 800, o.width)
	assert.Equal(t, 600, o.height)
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = backend.BackendSoft
	cfg.FrameCount = 3
	cfg.FenceTimeout = config.Duration(time.Second)
	cfg.VSync = false
	cfg.Mesh = "cube.obj"
	cfg.Shaders = "spv"
	cfg.FixedStep = true
	cfg.TargetFPS = 30

	o := apply(WithConfig(cfg))
	assert.NoError(t, o.err)
	assert.Equal(t, backend.BackendSoft, o.backend)
	assert.Equal(t, 3, o.frameCount)
	assert.Equal(t, time.Second, o.fenceTimeout)
	assert.Equal(t, 0, o.syncInterval())
	assert.Equal(t, "cube.obj", o.meshPath)
	assert.Equal(t, "spv", o.shaderDir)
	assert.True(t, o.fixedStep)
	assert.Equal(t, time.Second/30, o.target)
}

func TestLaterOptionsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Mesh = "cube.obj"
	cfg.Shaders = "spv"

	m := mesh.Embedded()
	o := apply(WithConfig(cfg), WithMesh(m), WithShaders(shader.Default()), WithFrameCount(4))
	assert.Same(t, m, o.mesh)
	assert.Empty(t, o.meshPath)
	assert.NotNil(t, o.shaders)
	assert.Empty(t, o.shaderDir)
	assert.Equal(t, 4, o.frameCount)
}

func TestWithConfigInvalid(t *testing.T) {
	cfg := config.Default()
	cfg.Width = 0
	o := apply(WithConfig(cfg))
	assert.Error(t, o.err)
}

func TestWithFixedStep(t *testing.T) {
	o := apply(WithFixedStep(0))
	assert.True(t, o.fixedStep)
	assert.Equal(t, timer.DefaultTarget, o.target)

	o = apply(WithFixedStep(10 * time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, o.target)
}

func TestBackBufferSize(t *testing.T) {
	tests := []struct {
		w, h  int
		rot   Rotation
		wantW int
		wantH int
	}{
		{800, 600, Rotate0, 800, 600},
		{800, 600, Rotate180, 800, 600},
		{800, 600, Rotate90, 600, 800},
		{800, 600, Rotate270, 600, 800},
		{0, 0, Rotate0, 1, 1},
		{-3, 10, Rotate90, 10, 1},
	}
	for _, tt := range tests {
		w, h := backBufferSize(tt.w, tt.h, tt.rot)
		assert.Equal(t, tt.wantW, w, "%dx%d %v", tt.w, tt.h, tt.rot)
		assert.Equal(t, tt.wantH, h, "%dx%d %v", tt.w, tt.h, tt.rot)
	}
}
