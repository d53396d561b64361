package mesh

import (
	"bufio"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/math32"
)

// ParseText reads the legacy whitespace-separated format:
//
//	<vertex count>
//	x y z          (vertex count times)
//	[x y z]        (vertex count times, optional normals)
//	<index count>
//	i              (index count times)
//
// Parsing is strict: malformed numbers, counts beyond the limits, indices
// out of range and trailing data are errors.
func ParseText(r io.Reader) (*Mesh, error) {
	toks, err := tokens(r)
	if err != nil {
		return nil, loadErr(err, "mesh: read text")
	}
	p := &textParser{toks: toks}

	nv, err := p.count("vertex count", MaxVertices)
	if err != nil {
		return nil, err
	}
	m := &Mesh{Vertices: make([]Vertex, nv)}
	for i := range m.Vertices {
		pos, err := p.vec3("position")
		if err != nil {
			return nil, err
		}
		m.Vertices[i] = Vertex{Pos: pos, Color: DefaultColor}
	}

	if !p.indicesFollow() {
		for i := range m.Vertices {
			n, err := p.vec3("normal")
			if err != nil {
				return nil, err
			}
			m.Vertices[i].Normal = n
		}
	}

	ni, err := p.count("index count", MaxIndices)
	if err != nil {
		return nil, err
	}
	m.Indices = make([]uint32, ni)
	for i := range m.Indices {
		tok, err := p.next("index")
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			return nil, p.fail(err, "index %d", i)
		}
		m.Indices[i] = uint32(v)
	}
	if p.pos != len(p.toks) {
		return nil, errors.Mark(errors.Newf("mesh: %d trailing tokens after indices", len(p.toks)-p.pos), ErrMeshLoad)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func tokens(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var out []string
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

type textParser struct {
	toks []string
	pos  int
}

func (p *textParser) fail(err error, format string, args ...any) error {
	return loadErr(err, "mesh: token %d: "+format, append([]any{p.pos}, args...)...)
}

func (p *textParser) next(what string) (string, error) {
	if p.pos >= len(p.toks) {
		return "", errors.Mark(errors.Newf("mesh: unexpected end of input reading %s", what), ErrMeshLoad)
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *textParser) count(what string, limit int) (int, error) {
	tok, err := p.next(what)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, p.fail(err, "%s", what)
	}
	if n == 0 || n > uint64(limit) {
		return 0, errors.Mark(errors.Newf("mesh: %s %d outside 1..%d", what, n, limit), ErrMeshLoad)
	}
	return int(n), nil
}

func (p *textParser) vec3(what string) (math32.Vector3, error) {
	var f [3]float32
	for i := range f {
		tok, err := p.next(what)
		if err != nil {
			return math32.Vector3{}, err
		}
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return math32.Vector3{}, p.fail(err, "%s", what)
		}
		f[i] = float32(v)
	}
	return math32.Vector3{X: f[0], Y: f[1], Z: f[2]}, nil
}

// indicesFollow reports whether the remaining tokens are exactly an index
// count followed by that many indices, i.e. the file carries no normals.
func (p *textParser) indicesFollow() bool {
	if p.pos >= len(p.toks) {
		return true
	}
	n, err := strconv.ParseUint(p.toks[p.pos], 10, 32)
	return err == nil && uint64(len(p.toks)-p.pos-1) == n
}
