package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/meshview/backend"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 800, c.Width)
	assert.Equal(t, 600, c.Height)
	assert.Equal(t, 2, c.FrameCount)
	assert.Equal(t, 5*time.Second, c.Timeout())
	assert.True(t, c.VSync)
	assert.Equal(t, backend.BackendAuto, c.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"huge height", func(c *Config) { c.Height = MaxDimension + 1 }},
		{"one frame", func(c *Config) { c.FrameCount = 1 }},
		{"many frames", func(c *Config) { c.FrameCount = MaxFrameCount + 1 }},
		{"no timeout", func(c *Config) { c.FenceTimeout = 0 }},
		{"backend", func(c *Config) { c.Backend = "metal" }},
		{"fixed step fps", func(c *Config) { c.FixedStep, c.TargetFPS = true, 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestReadTOML(t *testing.T) {
	src := `
width = 1280
height = 720
frame_count = 3
fence_timeout = "250ms"
backend = "soft"
fixed_step = true
`
	c, err := Read(strings.NewReader(src), TOML)
	require.NoError(t, err)
	assert.Equal(t, 1280, c.Width)
	assert.Equal(t, 3, c.FrameCount)
	assert.Equal(t, 250*time.Millisecond, c.Timeout())
	assert.Equal(t, backend.BackendSoft, c.Backend)
	assert.True(t, c.FixedStep)
	// Unset fields keep their defaults.
	assert.True(t, c.VSync)
	assert.Equal(t, 60, c.TargetFPS)
}

func TestReadYAML(t *testing.T) {
	src := "width: 640\nheight: 480\nvsync: false\nfence_timeout: 2s\n"
	c, err := Read(strings.NewReader(src), YAML)
	require.NoError(t, err)
	assert.Equal(t, 640, c.Width)
	assert.False(t, c.VSync)
	assert.Equal(t, 2*time.Second, c.Timeout())
}

func TestReadEmptyYAMLIsDefault(t *testing.T) {
	c, err := Read(strings.NewReader(""), YAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestReadRejects(t *testing.T) {
	_, err := Read(strings.NewReader(`colour = "red"`), TOML)
	assert.Error(t, err)

	_, err = Read(strings.NewReader("colour: red\n"), YAML)
	assert.Error(t, err)

	_, err = Read(strings.NewReader(`fence_timeout = "soon"`), TOML)
	assert.Error(t, err)

	_, err = Read(strings.NewReader(`frame_count = 1`), TOML)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshview.yml")
	require.NoError(t, os.WriteFile(path, []byte("mesh: star.msh\nshaders: /abs/blobs\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "star.msh"), c.Mesh)
	assert.Equal(t, "/abs/blobs", c.Shaders)

	_, err = Load(filepath.Join(dir, "meshview.ini"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
