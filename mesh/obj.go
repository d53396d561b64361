package mesh

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/math32"
)

// DecodeOBJ reads the geometry of a Wavefront OBJ file. Faces with more
// than three vertices are triangulated as fans. Materials, texture
// coordinates, groups and smoothing are ignored; every vertex gets
// DefaultColor. Each distinct position/normal pair becomes one vertex.
func DecodeOBJ(r io.Reader) (*Mesh, error) {
	d := &objDecoder{
		positions: math32.NewArrayF32(0, 0),
		normals:   math32.NewArrayF32(0, 0),
		indices:   math32.NewArrayU32(0, 0),
		seen:      make(map[[2]int]uint32),
	}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, loadErr(err, "mesh: read obj")
		}
		d.line++
		if perr := d.parseLine(strings.TrimSpace(line)); perr != nil {
			return nil, errors.Mark(errors.Wrapf(perr, "mesh: obj line %d", d.line), ErrMeshLoad)
		}
		if err == io.EOF {
			break
		}
	}
	m := &Mesh{Vertices: d.vertices, Indices: d.indices}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

type objDecoder struct {
	positions math32.ArrayF32
	normals   math32.ArrayF32
	indices   math32.ArrayU32
	vertices  []Vertex
	// seen maps a position/normal index pair to its vertex.
	seen map[[2]int]uint32
	line int
}

func (d *objDecoder) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	switch fields[0] {
	case "v":
		return parseFloats(&d.positions, fields[1:])
	case "vn":
		return parseFloats(&d.normals, fields[1:])
	case "f":
		return d.parseFace(fields[1:])
	}
	return nil
}

func parseFloats(dst *math32.ArrayF32, fields []string) error {
	if len(fields) < 3 {
		return errors.Newf("expected 3 coordinates, got %d", len(fields))
	}
	for _, f := range fields[:3] {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return err
		}
		dst.Append(float32(v))
	}
	return nil
}

// parseFace parses f v1[/vt1][/vn1] v2... and appends a triangle fan.
func (d *objDecoder) parseFace(fields []string) error {
	if len(fields) < 3 {
		return errors.Newf("face with %d vertices", len(fields))
	}
	idx := make([]uint32, len(fields))
	for i, f := range fields {
		parts := strings.Split(f, "/")
		p, err := resolve(parts[0], len(d.positions)/3)
		if err != nil {
			return errors.Wrap(err, "position")
		}
		n := -1
		if len(parts) >= 3 && parts[2] != "" {
			if n, err = resolve(parts[2], len(d.normals)/3); err != nil {
				return errors.Wrap(err, "normal")
			}
		}
		idx[i] = d.vertex(p, n)
	}
	for i := 1; i+1 < len(idx); i++ {
		d.indices.Append(idx[0], idx[i], idx[i+1])
	}
	return nil
}

// resolve converts a 1-based or negative relative OBJ index to 0-based.
func resolve(s string, count int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case v > 0:
		v--
	case v < 0:
		v += count
	default:
		return 0, errors.New("index 0")
	}
	if v < 0 || v >= count {
		return 0, errors.Newf("index %s out of range for %d entries", s, count)
	}
	return v, nil
}

func (d *objDecoder) vertex(p, n int) uint32 {
	key := [2]int{p, n}
	if i, ok := d.seen[key]; ok {
		return i
	}
	v := Vertex{
		Pos:   math32.Vector3{X: d.positions[p*3], Y: d.positions[p*3+1], Z: d.positions[p*3+2]},
		Color: DefaultColor,
	}
	if n >= 0 {
		v.Normal = math32.Vector3{X: d.normals[n*3], Y: d.normals[n*3+1], Z: d.normals[n*3+2]}
	}
	i := uint32(len(d.vertices))
	d.vertices = append(d.vertices, v)
	d.seen[key] = i
	return i
}
