// Package mesh provides the vertex and index data the renderer uploads.
//
// A [Mesh] is an indexed triangle list. Meshes come from the built-in
// [Embedded] star, the legacy text format ([ParseText]), the validated
// MSH1 binary format ([ReadBinary]) or Wavefront OBJ ([DecodeOBJ]).
// Every loading failure wraps [ErrMeshLoad].
package mesh

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/math32"
)

// ErrMeshLoad marks every mesh loading failure.
var ErrMeshLoad = errors.New("mesh: load failed")

// Stride is the size of an encoded Vertex in bytes.
const Stride = 40

// Attribute offsets within a vertex.
const (
	PositionOffset = 0
	ColorOffset    = 12
	NormalOffset   = 28
)

// Limits enforced by the decoders.
const (
	MaxVertices = 1 << 24
	MaxIndices  = 1 << 26
)

// Vertex is one mesh vertex.
type Vertex struct {
	Pos    math32.Vector3
	Color  math32.Color4
	Normal math32.Vector3
}

// DefaultColor is assigned to vertices of formats that carry no color.
var DefaultColor = math32.Color4{R: 1, G: 1, B: 1, A: 1}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexSize returns the vertex data size in bytes.
func (m *Mesh) VertexSize() int { return len(m.Vertices) * Stride }

// IndexSize returns the index data size in bytes.
func (m *Mesh) IndexSize() int { return len(m.Indices) * 4 }

// IndexCount returns the number of indices to draw.
func (m *Mesh) IndexCount() uint32 { return uint32(len(m.Indices)) }

// VertexBytes encodes the vertices little-endian, Stride bytes apart.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, m.VertexSize())
	for i, v := range m.Vertices {
		b := out[i*Stride:]
		putFloats(b[PositionOffset:], v.Pos.X, v.Pos.Y, v.Pos.Z)
		putFloats(b[ColorOffset:], v.Color.R, v.Color.G, v.Color.B, v.Color.A)
		putFloats(b[NormalOffset:], v.Normal.X, v.Normal.Y, v.Normal.Z)
	}
	return out
}

// IndexBytes encodes the indices as little-endian uint32.
func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, m.IndexSize())
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

// Validate checks the mesh is a drawable triangle list.
func (m *Mesh) Validate() error {
	switch {
	case len(m.Vertices) == 0:
		return errors.Mark(errors.New("mesh: no vertices"), ErrMeshLoad)
	case len(m.Vertices) > MaxVertices:
		return errors.Mark(errors.Newf("mesh: %d vertices exceed limit %d", len(m.Vertices), MaxVertices), ErrMeshLoad)
	case len(m.Indices) == 0 || len(m.Indices)%3 != 0:
		return errors.Mark(errors.Newf("mesh: index count %d is not a positive multiple of 3", len(m.Indices)), ErrMeshLoad)
	case len(m.Indices) > MaxIndices:
		return errors.Mark(errors.Newf("mesh: %d indices exceed limit %d", len(m.Indices), MaxIndices), ErrMeshLoad)
	}
	n := uint32(len(m.Vertices))
	for i, idx := range m.Indices {
		if idx >= n {
			return errors.Mark(errors.Newf("mesh: index %d at %d out of range for %d vertices", idx, i, n), ErrMeshLoad)
		}
	}
	return nil
}

func putFloats(b []byte, vs ...float32) {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
}

func loadErr(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrMeshLoad)
}
