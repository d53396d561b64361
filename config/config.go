// Package config loads renderer settings from TOML or YAML files.
package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/meshview/backend"
)

// Limits checked by Validate.
const (
	MinFrameCount = 2
	MaxFrameCount = 8
	MaxDimension  = 16384
)

// ErrInvalid marks validation failures.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

// UnmarshalText parses a time.ParseDuration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the complete renderer configuration.
type Config struct {
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`

	// FrameCount is the number of swap images and frames in flight.
	FrameCount   int      `toml:"frame_count" yaml:"frame_count"`
	FenceTimeout Duration `toml:"fence_timeout" yaml:"fence_timeout"`
	VSync        bool     `toml:"vsync" yaml:"vsync"`

	Backend string `toml:"backend" yaml:"backend"`
	Debug   bool   `toml:"debug" yaml:"debug"`

	// Mesh is a mesh file; empty selects the embedded mesh.
	Mesh string `toml:"mesh" yaml:"mesh"`
	// Shaders is a directory of precompiled blobs; empty selects the
	// embedded program.
	Shaders string `toml:"shaders" yaml:"shaders"`

	// FixedStep runs updates at TargetFPS instead of once per tick.
	FixedStep bool `toml:"fixed_step" yaml:"fixed_step"`
	TargetFPS int  `toml:"target_fps" yaml:"target_fps"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Width:        800,
		Height:       600,
		FrameCount:   2,
		FenceTimeout: Duration(5 * time.Second),
		VSync:        true,
		Backend:      backend.BackendAuto,
		TargetFPS:    60,
	}
}

// Timeout returns FenceTimeout as a time.Duration.
func (c Config) Timeout() time.Duration { return time.Duration(c.FenceTimeout) }

// Validate checks every field is in range.
func (c Config) Validate() error {
	var errs []string
	if c.Width < 1 || c.Width > MaxDimension || c.Height < 1 || c.Height > MaxDimension {
		errs = append(errs, "size outside 1..16384")
	}
	if c.FrameCount < MinFrameCount || c.FrameCount > MaxFrameCount {
		errs = append(errs, "frame_count outside range")
	}
	if c.FenceTimeout <= 0 {
		errs = append(errs, "fence_timeout must be positive")
	}
	switch c.Backend {
	case backend.BackendAuto, backend.BackendNative, backend.BackendSoft:
	default:
		errs = append(errs, "unknown backend")
	}
	if c.FixedStep && (c.TargetFPS < 1 || c.TargetFPS > 1000) {
		errs = append(errs, "target_fps outside 1..1000")
	}
	if len(errs) == 0 {
		return nil
	}
	err := errors.Newf("config: %s", strings.Join(errs, "; "))
	err = errors.WithDetailf(err, "width=%d height=%d frame_count=%d fence_timeout=%s backend=%q target_fps=%d",
		c.Width, c.Height, c.FrameCount, time.Duration(c.FenceTimeout), c.Backend, c.TargetFPS)
	return errors.Mark(err, ErrInvalid)
}

// Decoder decodes one document into v.
type Decoder interface {
	Decode(v any) error
}

// DecoderFunc creates a Decoder reading r.
type DecoderFunc func(r io.Reader) Decoder

// NewDecoderFunc adapts a typed decoder constructor.
func NewDecoderFunc[T Decoder](f func(r io.Reader) T) DecoderFunc {
	return func(r io.Reader) Decoder { return f(r) }
}

// Decoders for the supported formats.
var (
	TOML = NewDecoderFunc(func(r io.Reader) *toml.Decoder {
		return toml.NewDecoder(r).DisallowUnknownFields()
	})
	YAML = NewDecoderFunc(func(r io.Reader) *yaml.Decoder {
		d := yaml.NewDecoder(r)
		d.KnownFields(true)
		return d
	})
)

// Read decodes a configuration over the defaults and validates it.
func Read(r io.Reader, f DecoderFunc) (Config, error) {
	c := Default()
	if err := f(r).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "config: decode")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads a .toml, .yaml or .yml file.
func Load(path string) (Config, error) {
	var f DecoderFunc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		f = TOML
	case ".yaml", ".yml":
		f = YAML
	default:
		return Config{}, errors.Newf("config: unsupported file type %q", filepath.Ext(path))
	}
	fp, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: open")
	}
	defer fp.Close()
	c, err := Read(bufio.NewReader(fp), f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: %s", path)
	}
	if c.Mesh != "" && !filepath.IsAbs(c.Mesh) {
		c.Mesh = filepath.Join(filepath.Dir(path), c.Mesh)
	}
	if c.Shaders != "" && !filepath.IsAbs(c.Shaders) {
		c.Shaders = filepath.Join(filepath.Dir(path), c.Shaders)
	}
	return c, nil
}
