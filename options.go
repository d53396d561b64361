package meshview

import (
	"time"

	"github.com/gogpu/meshview/backend"
	"github.com/gogpu/meshview/config"
	"github.com/gogpu/meshview/gpucore"
	"github.com/gogpu/meshview/internal/frame"
	"github.com/gogpu/meshview/mesh"
	"github.com/gogpu/meshview/shader"
	"github.com/gogpu/meshview/timer"
)

// Option configures a Renderer during creation.
// Use functional options to customize Renderer behavior.
//
// Example:
//
//	// Default: auto backend, double buffering, embedded mesh
//	r, err := meshview.New(surface)
//
//	// Triple buffering on the software device
//	r, err := meshview.New(surface,
//	    meshview.WithBackend("soft"),
//	    meshview.WithFrameCount(3))
type Option func(*options)

// options holds optional configuration for Renderer creation.
type options struct {
	backend  string
	instance gpucore.Instance

	frameCount   int
	fenceTimeout time.Duration
	vsync        bool
	debug        bool

	mesh      *mesh.Mesh
	meshPath  string
	shaders   *shader.Blobs
	shaderDir string

	clock     timer.Clock
	fixedStep bool
	target    time.Duration

	// size is used when the surface reports no size.
	width, height int

	err error
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	return options{
		backend:      backend.BackendAuto,
		frameCount:   config.MinFrameCount,
		fenceTimeout: frame.DefaultFenceTimeout,
		vsync:        true,
		target:       timer.DefaultTarget,
		width:        800,
		height:       600,
	}
}

// WithBackend selects a registered backend by name ("auto", "native",
// "soft"). The backend package must be imported for it to register.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithInstance renders on an already opened instance instead of opening
// one through the backend registry. The caller keeps ownership of inst.
//
// Example:
//
//	inst := soft.New()
//	r, err := meshview.New(surface, meshview.WithInstance(inst))
func WithInstance(inst gpucore.Instance) Option {
	return func(o *options) {
		o.instance = inst
	}
}

// WithFrameCount sets the number of swap images and frames in flight.
func WithFrameCount(n int) Option {
	return func(o *options) {
		o.frameCount = n
	}
}

// WithFenceTimeout bounds every fence wait. A wait that expires is
// handled like a lost device.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fenceTimeout = d
	}
}

// WithVSync selects whether Present waits for vertical sync.
func WithVSync(on bool) Option {
	return func(o *options) {
		o.vsync = on
	}
}

// WithDebug enables the device debug layer and allows falling back to a
// software adapter.
func WithDebug(on bool) Option {
	return func(o *options) {
		o.debug = on
	}
}

// WithMesh draws m instead of the embedded mesh.
func WithMesh(m *mesh.Mesh) Option {
	return func(o *options) {
		o.mesh = m
		o.meshPath = ""
	}
}

// WithShaders uses b instead of the embedded shader program.
func WithShaders(b shader.Blobs) Option {
	return func(o *options) {
		o.shaders = &b
		o.shaderDir = ""
	}
}

// WithClock sets the clock driving the step timer. Tests and offline
// rendering use a *timer.Manual.
func WithClock(c timer.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithFixedStep runs camera updates at a fixed rate of one per target
// instead of once per tick.
func WithFixedStep(target time.Duration) Option {
	return func(o *options) {
		o.fixedStep = true
		if target > 0 {
			o.target = target
		}
	}
}

// WithConfig applies a loaded configuration. Options given after it
// override its fields. An invalid configuration makes New fail.
//
// Example:
//
//	cfg, err := config.Load("meshview.toml")
//	...
//	r, err := meshview.New(surface, meshview.WithConfig(cfg))
func WithConfig(c config.Config) Option {
	return func(o *options) {
		if err := c.Validate(); err != nil {
			o.err = err
			return
		}
		o.backend = c.Backend
		o.frameCount = c.FrameCount
		o.fenceTimeout = c.Timeout()
		o.vsync = c.VSync
		o.debug = c.Debug
		o.width, o.height = c.Width, c.Height
		if c.Mesh != "" {
			o.mesh, o.meshPath = nil, c.Mesh
		}
		if c.Shaders != "" {
			o.shaders, o.shaderDir = nil, c.Shaders
		}
		o.fixedStep = c.FixedStep
		if c.TargetFPS > 0 {
			o.target = time.Second / time.Duration(c.TargetFPS)
		}
	}
}

// syncInterval is the Present sync interval for the vsync setting.
func (o *options) syncInterval() int {
	if o.vsync {
		return 1
	}
	return 0
}
