package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// LookAtLH creates a left-handed view matrix looking from eye toward at.
// Like every matrix in this package it is column-major and transforms
// column vectors: clip = M * v.
//
// The resulting basis is:
//
//	z = normalize(at - eye)
//	x = normalize(up × z)
//	y = z × x
func LookAtLH(eye, at, up mgl32.Vec3) mgl32.Mat4 {
	z := at.Sub(eye).Normalize()
	x := up.Cross(z).Normalize()
	y := z.Cross(x)
	return mgl32.Mat4{
		x[0], y[0], z[0], 0,
		x[1], y[1], z[1], 0,
		x[2], y[2], z[2], 0,
		-x.Dot(eye), -y.Dot(eye), -z.Dot(eye), 1,
	}
}

// PerspectiveFovLH creates a left-handed perspective projection mapping
// view depth [near, far] to clip depth [0, 1].
func PerspectiveFovLH(fovY, aspect, near, far float32) mgl32.Mat4 {
	h := 1 / math32.Tan(fovY/2)
	w := h / aspect
	r := far / (far - near)
	return mgl32.Mat4{
		w, 0, 0, 0,
		0, h, 0, 0,
		0, 0, r, 1,
		0, 0, -r * near, 0,
	}
}

// NormalMatrix returns the inverse transpose of the upper 3x3 of m,
// embedded in a 4x4 matrix.
func NormalMatrix(m mgl32.Mat4) mgl32.Mat4 {
	n := m.Mat3().Inv().Transpose()
	return n.Mat4()
}
