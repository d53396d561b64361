package backend

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/meshview/gpucore"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// A real GPU is preferred; the software device is the fallback.
	backendPriority = []string{BackendNative, BackendSoft}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open creates an instance of the named backend. BackendAuto (or "")
// tries backends in priority order and returns the first that opens.
func Open(name string, debug bool) (gpucore.Instance, error) {
	if name == "" || name == BackendAuto {
		return openDefault(debug)
	}

	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrBackendNotAvailable, "backend %q", name)
	}
	inst, err := factory(debug)
	if err != nil {
		return nil, errors.Wrapf(err, "backend %q", name)
	}
	return inst, nil
}

func openDefault(debug bool) (gpucore.Instance, error) {
	registryMu.RLock()
	order := make([]Factory, 0, len(backends))
	for _, name := range backendPriority {
		if f, ok := backends[name]; ok {
			order = append(order, f)
		}
	}
	registryMu.RUnlock()

	var errs error
	for _, f := range order {
		inst, err := f(debug)
		if err == nil {
			return inst, nil
		}
		errs = errors.CombineErrors(errs, err)
	}
	if errs == nil {
		return nil, ErrBackendNotAvailable
	}
	return nil, errors.Mark(errs, ErrBackendNotAvailable)
}
