// Package shader provides the vertex and pixel programs of the renderer.
//
// Programs are opaque blobs: either SPIR-V modules precompiled by meshc or
// WGSL text. The renderer does not inspect them; the vertex input
// signature must match the mesh input layout (POSITION at location 0,
// COLOR at location 1).
package shader

import (
	_ "embed"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

// Default entry point names.
const (
	VertexEntry = "vs_main"
	PixelEntry  = "fs_main"
)

// Default blob file names inside a shader directory.
const (
	VertexFile = "vertex.spv"
	PixelFile  = "pixel.spv"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

//go:embed shaders/mesh.wgsl
var defaultSource string

// ErrNotSPIRV is returned by Words for input that is not a SPIR-V module.
var ErrNotSPIRV = errors.New("shader: not a SPIR-V module")

// Blobs is a vertex and pixel program pair.
type Blobs struct {
	Vertex      []byte
	Pixel       []byte
	VertexEntry string
	PixelEntry  string
}

// Source returns the embedded default WGSL program.
func Source() string { return defaultSource }

// Default returns the embedded program as WGSL text for both stages.
func Default() Blobs {
	return Blobs{
		Vertex:      []byte(defaultSource),
		Pixel:       []byte(defaultSource),
		VertexEntry: VertexEntry,
		PixelEntry:  PixelEntry,
	}
}

// LoadBlobs reads VertexFile and PixelFile from dir. The contents are not
// validated.
func LoadBlobs(dir string) (Blobs, error) {
	vs, err := os.ReadFile(filepath.Join(dir, VertexFile))
	if err != nil {
		return Blobs{}, errors.Wrap(err, "shader: load vertex blob")
	}
	ps, err := os.ReadFile(filepath.Join(dir, PixelFile))
	if err != nil {
		return Blobs{}, errors.Wrap(err, "shader: load pixel blob")
	}
	return Blobs{Vertex: vs, Pixel: ps, VertexEntry: VertexEntry, PixelEntry: PixelEntry}, nil
}

// Compile compiles WGSL source to a SPIR-V module.
func Compile(source string) ([]byte, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, errors.Wrap(err, "shader: compile")
	}
	return spirv, nil
}

// IsSPIRV reports whether blob starts with the little-endian SPIR-V magic.
func IsSPIRV(blob []byte) bool {
	return len(blob) >= 4 && binary.LittleEndian.Uint32(blob) == SPIRVMagic
}

// Words converts a SPIR-V module to its little-endian 32-bit words.
func Words(spirv []byte) ([]uint32, error) {
	if !IsSPIRV(spirv) || len(spirv)%4 != 0 {
		return nil, ErrNotSPIRV
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}
