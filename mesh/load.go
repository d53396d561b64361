package mesh

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Load reads a mesh file, choosing the decoder by extension: .msh for
// MSH1, .obj for Wavefront OBJ and .txt for the legacy text format.
func Load(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadErr(err, "mesh: open %s", path)
	}
	defer f.Close()

	var m *Mesh
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".msh":
		m, err = ReadBinary(f)
	case ".obj":
		m, err = DecodeOBJ(f)
	case ".txt":
		m, err = ParseText(f)
	default:
		return nil, errors.Mark(errors.Newf("mesh: unknown extension %q", ext), ErrMeshLoad)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "mesh: %s", path)
	}
	return m, nil
}

// Save writes m to path in the MSH1 format.
func Save(path string, m *Mesh) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "mesh: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "mesh: close %s", path)
		}
	}()
	return WriteBinary(f, m)
}
