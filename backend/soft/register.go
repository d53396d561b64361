package soft

import (
	"github.com/gogpu/meshview/backend"
	"github.com/gogpu/meshview/gpucore"
)

// init registers the software backend on package import.
func init() {
	backend.Register(backend.BackendSoft, func(bool) (gpucore.Instance, error) {
		return New(), nil
	})
}
