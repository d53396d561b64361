package device

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/meshview/backend/soft"
	"github.com/gogpu/meshview/gpucore"
)

func TestCreatePrefersHardware(t *testing.T) {
	inst := soft.New()
	c, err := Create(inst, Options{})
	require.NoError(t, err)
	defer c.Destroy()

	assert.Equal(t, soft.HardwareAdapter.LUID, c.Adapter().LUID)
	assert.NotEqual(t, [16]byte{}, [16]byte(c.Generation()))
	assert.Equal(t, 1, inst.Live().Devices)
	assert.Equal(t, 1, inst.Live().Fences)
}

func TestCreateSkipsLowFeatureLevel(t *testing.T) {
	old := soft.HardwareAdapter
	old.Name, old.LUID, old.FeatureLevel = "old gpu", 0x3001, gpucore.FeatureLevel10_0
	inst := soft.New(soft.WithAdapters(old, soft.HardwareAdapter))

	c, err := Create(inst, Options{})
	require.NoError(t, err)
	defer c.Destroy()
	assert.Equal(t, soft.HardwareAdapter.LUID, c.Adapter().LUID)
}

func TestCreateSoftwareOnlyInDebug(t *testing.T) {
	inst := soft.New(soft.WithAdapters(soft.SoftwareAdapter))

	_, err := Create(inst, Options{})
	require.Error(t, err)
	assert.True(t, gpucore.IsFatal(err))
	assert.True(t, errors.Is(err, gpucore.ErrNoAdapter))
	assert.Equal(t, 0, inst.Live().Devices)

	c, err := Create(inst, Options{Debug: true})
	require.NoError(t, err)
	defer c.Destroy()
	assert.Equal(t, gpucore.AdapterSoftware, c.Adapter().Type)
	assert.True(t, c.Debug())
}

func TestDebugInstallsMessageFilter(t *testing.T) {
	c, err := Create(soft.New(), Options{Debug: true})
	require.NoError(t, err)
	defer c.Destroy()

	dev := c.Device().(*soft.Device)
	assert.Equal(t, []gpucore.MessageID{
		gpucore.MessageMapInvalidNullRange,
		gpucore.MessageUnmapInvalidNullRange,
	}, dev.DeniedMessages())
}

func TestGenerationsDiffer(t *testing.T) {
	inst := soft.New()
	a, err := Create(inst, Options{})
	require.NoError(t, err)
	a.Destroy()
	b, err := Create(inst, Options{})
	require.NoError(t, err)
	defer b.Destroy()
	assert.NotEqual(t, a.Generation(), b.Generation())
}

func TestWaitFenceTimeoutIsDeviceLost(t *testing.T) {
	inst := soft.New()
	c, err := Create(inst, Options{})
	require.NoError(t, err)
	defer c.Destroy()

	assert.Equal(t, uint64(1), c.NextValue())
	require.NoError(t, c.Signal(1))
	assert.Equal(t, uint64(2), c.NextValue())
	assert.True(t, errors.Is(c.Signal(1), gpucore.ErrInvalidState))
	inst.StallFences(true)
	err = c.WaitFence(1, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, gpucore.IsDeviceLost(err))

	inst.StallFences(false)
	require.NoError(t, c.WaitFence(1, time.Second))
	done, err := c.Completed()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), done)
}

func TestValidate(t *testing.T) {
	inst := soft.New()
	c, err := Create(inst, Options{})
	require.NoError(t, err)
	defer c.Destroy()
	require.NoError(t, c.Validate())

	inst.SetAdapters(soft.SoftwareAdapter, soft.HardwareAdapter)
	err = c.Validate()
	assert.True(t, gpucore.IsDeviceLost(err))

	inst.SetAdapters(soft.HardwareAdapter)
	require.NoError(t, c.Validate())
	c.Device().(*soft.Device).Remove(errors.New("TDR"))
	err = c.Validate()
	assert.True(t, gpucore.IsDeviceLost(err))
	assert.Contains(t, err.Error(), "TDR")
}

func TestDestroyReleasesEverything(t *testing.T) {
	inst := soft.New()
	c, err := Create(inst, Options{})
	require.NoError(t, err)
	c.Destroy()
	c.Destroy()
	assert.Zero(t, inst.Live().Total())
}
