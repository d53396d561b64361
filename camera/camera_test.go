package camera

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-5

func TestOrbitStartsBehindOrigin(t *testing.T) {
	o := NewOrbit()
	eye := o.Eye()
	assert.InDelta(t, 0, eye.X(), eps)
	assert.InDelta(t, 1.5, eye.Y(), eps)
	assert.InDelta(t, -3, eye.Z(), eps)
}

func TestOrbitAdvance(t *testing.T) {
	o := NewOrbit()
	for i := 0; i < 10; i++ {
		o.Advance()
	}
	assert.InDelta(t, 0.35, o.Angle, eps)

	eye := o.Eye()
	// The eye stays on the circle at constant height.
	assert.InDelta(t, 3, math32.Hypot(eye.X(), eye.Z()), eps)
	assert.InDelta(t, 1.5, eye.Y(), eps)

	o.Reset()
	assert.Zero(t, o.Angle)
}

func TestLookAtLHMapsTargetOntoPositiveZ(t *testing.T) {
	eye := mgl32.Vec3{0, 1.5, -3}
	v := LookAtLH(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})

	p := v.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, p.X(), eps)
	assert.InDelta(t, 0, p.Y(), eps)
	assert.InDelta(t, eye.Len(), p.Z(), eps)

	// +X stays to the right when looking along +Z.
	r := LookAtLH(mgl32.Vec3{0, 0, -1}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}).Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, r.X(), eps)
}

func TestPerspectiveFovLHDepthRange(t *testing.T) {
	p := PerspectiveFovLH(DefaultFovY, 4.0/3.0, DefaultNear, DefaultFar)

	near := p.Mul4x1(mgl32.Vec4{0, 0, DefaultNear, 1})
	assert.InDelta(t, 0, near.Z()/near.W(), eps)
	far := p.Mul4x1(mgl32.Vec4{0, 0, DefaultFar, 1})
	assert.InDelta(t, 1, far.Z()/far.W(), eps)

	// Aspect scales x only.
	assert.InDelta(t, p[5]*3/4, p[0], eps)
}

func TestConstantsLayout(t *testing.T) {
	c := NewOrbit().Constants(800.0 / 600.0)
	f := c.Floats()
	require.Len(t, f, ConstantsFloats)
	assert.Equal(t, 128, ConstantsSize)

	ident := mgl32.Ident4()
	assert.Equal(t, ident[:], f[16:])
	assert.Equal(t, c.Transform[:], f[:16])
}

func TestConstantsDeterministic(t *testing.T) {
	run := func() [][]float32 {
		o := NewOrbit()
		var seq [][]float32
		for i := 0; i < 10; i++ {
			o.Advance()
			seq = append(seq, o.Constants(800.0/600.0).Floats())
		}
		return seq
	}
	a, b := run(), run()
	for i := range a {
		for j := range a[i] {
			require.Equal(t, math32.Float32bits(a[i][j]), math32.Float32bits(b[i][j]), "tick %d element %d", i, j)
		}
	}
	assert.NotEqual(t, a[0], a[9])
}

func TestProjectionRejectsBadAspect(t *testing.T) {
	o := NewOrbit()
	assert.Equal(t, o.Projection(1), o.Projection(0))
	assert.Equal(t, o.Projection(1), o.Projection(-2))
}
