package mesh

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/math32"
)

// MSH1 layout, little-endian:
//
//	offset size
//	0      4    magic "MSH1"
//	4      2    version (1)
//	6      2    flags (bit 0: normals present)
//	8      4    vertex count
//	12     4    index count
//	16     4    CRC-32 (IEEE) of the payload
//	20     ...  payload: per vertex position[3] color[4] [normal[3]] as
//	            float32, then the indices as uint32
const (
	binaryMagic   = "MSH1"
	binaryVersion = 1
	headerSize    = 20

	flagNormals = 1 << 0
)

type header struct {
	Magic    [4]byte
	Version  uint16
	Flags    uint16
	Vertices uint32
	Indices  uint32
	CRC      uint32
}

func vertexFloats(flags uint16) int {
	if flags&flagNormals != 0 {
		return 10
	}
	return 7
}

// WriteBinary encodes m in the MSH1 format. Normals are written when any
// vertex has a non-zero normal.
func WriteBinary(w io.Writer, m *Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	var flags uint16
	for _, v := range m.Vertices {
		if v.Normal != (math32.Vector3{}) {
			flags |= flagNormals
			break
		}
	}
	per := vertexFloats(flags)
	payload := make([]byte, len(m.Vertices)*per*4+len(m.Indices)*4)
	off := 0
	for _, v := range m.Vertices {
		putFloats(payload[off:], v.Pos.X, v.Pos.Y, v.Pos.Z, v.Color.R, v.Color.G, v.Color.B, v.Color.A)
		off += 28
		if flags&flagNormals != 0 {
			putFloats(payload[off:], v.Normal.X, v.Normal.Y, v.Normal.Z)
			off += 12
		}
	}
	for _, idx := range m.Indices {
		binary.LittleEndian.PutUint32(payload[off:], idx)
		off += 4
	}

	h := header{
		Version:  binaryVersion,
		Flags:    flags,
		Vertices: uint32(len(m.Vertices)),
		Indices:  uint32(len(m.Indices)),
		CRC:      crc32.ChecksumIEEE(payload),
	}
	copy(h.Magic[:], binaryMagic)
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(err, "mesh: write header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "mesh: write payload")
	}
	return nil
}

// ReadBinary decodes an MSH1 mesh. The counts are checked against the
// limits and the payload length before anything is allocated.
func ReadBinary(r io.Reader) (*Mesh, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, loadErr(err, "mesh: read header")
	}
	if string(h.Magic[:]) != binaryMagic {
		return nil, errors.Mark(errors.Newf("mesh: bad magic %q", h.Magic[:]), ErrMeshLoad)
	}
	if h.Version != binaryVersion {
		return nil, errors.Mark(errors.Newf("mesh: unsupported version %d", h.Version), ErrMeshLoad)
	}
	if h.Flags&^flagNormals != 0 {
		return nil, errors.Mark(errors.Newf("mesh: unknown flags %#x", h.Flags), ErrMeshLoad)
	}
	if h.Vertices == 0 || h.Vertices > MaxVertices || h.Indices == 0 || h.Indices > MaxIndices {
		return nil, errors.Mark(errors.Newf("mesh: counts %d vertices, %d indices outside limits", h.Vertices, h.Indices), ErrMeshLoad)
	}

	per := vertexFloats(h.Flags)
	size := int64(h.Vertices)*int64(per)*4 + int64(h.Indices)*4
	payload, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return nil, loadErr(err, "mesh: read payload")
	}
	if int64(len(payload)) != size {
		return nil, errors.Mark(errors.Newf("mesh: payload is %d bytes, header implies %d", len(payload), size), ErrMeshLoad)
	}
	if sum := crc32.ChecksumIEEE(payload); sum != h.CRC {
		return nil, errors.Mark(errors.Newf("mesh: checksum %08x, header says %08x", sum, h.CRC), ErrMeshLoad)
	}

	rd := bytes.NewReader(payload)
	f := func() float32 {
		var b [4]byte
		_, _ = rd.Read(b[:])
		return math.Float32frombits(binary.LittleEndian.Uint32(b[:]))
	}
	m := &Mesh{Vertices: make([]Vertex, h.Vertices), Indices: make([]uint32, h.Indices)}
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Pos = math32.Vector3{X: f(), Y: f(), Z: f()}
		v.Color = math32.Color4{R: f(), G: f(), B: f(), A: f()}
		if h.Flags&flagNormals != 0 {
			v.Normal = math32.Vector3{X: f(), Y: f(), Z: f()}
		}
	}
	if err := binary.Read(rd, binary.LittleEndian, m.Indices); err != nil {
		return nil, loadErr(err, "mesh: read indices")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
