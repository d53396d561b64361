package backend

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/meshview/gpucore"
)

type fakeInstance struct{ name string }

func (f *fakeInstance) Adapters() ([]gpucore.Adapter, error) { return nil, nil }
func (f *fakeInstance) Destroy()                             {}

func withRegistry(t *testing.T, entries map[string]Factory) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = entries
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func factoryFor(name string) Factory {
	return func(bool) (gpucore.Instance, error) { return &fakeInstance{name: name}, nil }
}

func failing(msg string) Factory {
	return func(bool) (gpucore.Instance, error) { return nil, errors.New(msg) }
}

func TestRegistryRegisterAndOpen(t *testing.T) {
	withRegistry(t, map[string]Factory{})
	Register(BackendSoft, factoryFor(BackendSoft))

	assert.True(t, IsRegistered(BackendSoft))
	inst, err := Open(BackendSoft, false)
	require.NoError(t, err)
	assert.Equal(t, BackendSoft, inst.(*fakeInstance).name)
}

func TestRegistryOpenUnregistered(t *testing.T) {
	withRegistry(t, map[string]Factory{})

	_, err := Open("nonexistent", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendNotAvailable))
}

func TestRegistryAvailableSorted(t *testing.T) {
	withRegistry(t, map[string]Factory{
		BackendSoft:   factoryFor(BackendSoft),
		BackendNative: factoryFor(BackendNative),
	})
	assert.Equal(t, []string{BackendNative, BackendSoft}, Available())
}

func TestRegistryAutoPrefersNative(t *testing.T) {
	withRegistry(t, map[string]Factory{
		BackendSoft:   factoryFor(BackendSoft),
		BackendNative: factoryFor(BackendNative),
	})
	inst, err := Open(BackendAuto, false)
	require.NoError(t, err)
	assert.Equal(t, BackendNative, inst.(*fakeInstance).name)
}

func TestRegistryAutoFallsBack(t *testing.T) {
	withRegistry(t, map[string]Factory{
		BackendSoft:   factoryFor(BackendSoft),
		BackendNative: failing("no vulkan loader"),
	})
	inst, err := Open("", false)
	require.NoError(t, err)
	assert.Equal(t, BackendSoft, inst.(*fakeInstance).name)
}

func TestRegistryAutoNoneAvailable(t *testing.T) {
	withRegistry(t, map[string]Factory{
		BackendNative: failing("no vulkan loader"),
	})
	_, err := Open(BackendAuto, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendNotAvailable))
	assert.Contains(t, err.Error(), "no vulkan loader")
}

func TestRegistryUnregister(t *testing.T) {
	withRegistry(t, map[string]Factory{})
	Register("test-backend", factoryFor("test-backend"))
	require.True(t, IsRegistered("test-backend"))

	Unregister("test-backend")
	assert.False(t, IsRegistered("test-backend"))
}
