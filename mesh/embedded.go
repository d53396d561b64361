package mesh

import "github.com/g3n/engine/math32"

var (
	red   = math32.Color4{R: 1, G: 0, B: 0, A: 1}
	blue  = math32.Color4{R: 0, G: 0, B: 1, A: 1}
	green = math32.Color4{R: 0, G: 0.5019608, B: 0, A: 1}
)

// Embedded returns the built-in mesh: a flat five-pointed star with a
// red front and back apex. It has 12 vertices and 60 indices.
func Embedded() *Mesh {
	v := func(x, y, z float32, c math32.Color4) Vertex {
		return Vertex{Pos: math32.Vector3{X: x, Y: y, Z: z}, Color: c}
	}
	return &Mesh{
		Vertices: []Vertex{
			v(0, 0, -0.15, red),
			v(0, 0, 0.15, red),

			v(0, 0.5, 0, blue),
			v(0.48, 0.15, 0, blue),
			v(-0.48, 0.15, 0, blue),
			v(0.29, -0.4, 0, blue),
			v(-0.29, -0.4, 0, blue),

			v(0.11, 0.15, 0, green),
			v(-0.11, 0.15, 0, green),
			v(0.18, -0.06, 0, green),
			v(-0.18, -0.06, 0, green),
			v(0, -0.19, 0, green),
		},
		Indices: []uint32{
			2, 1, 7,
			7, 1, 3,
			3, 1, 9,
			9, 1, 5,
			5, 1, 11,
			11, 1, 6,
			6, 1, 10,
			10, 1, 4,
			4, 1, 8,
			8, 1, 2,
			2, 7, 0,
			7, 3, 0,
			3, 9, 0,
			9, 5, 0,
			5, 11, 0,
			11, 6, 0,
			6, 10, 0,
			10, 4, 0,
			4, 8, 0,
			8, 2, 0,
		},
	}
}
