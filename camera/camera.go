// Package camera drives the view and projection of the renderer.
//
// [Orbit] circles the origin at a fixed height, advancing a constant angle
// per update. All state lives in the struct; two orbits with the same
// fields produce the same transforms bit for bit.
package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Default orbit parameters.
const (
	DefaultRadius = 3.0
	DefaultStep   = 0.035
	DefaultFovY   = 0.25 * math32.Pi
	DefaultNear   = 0.5
	DefaultFar    = 1000.0
)

// ConstantsFloats is the number of float32 values in [Constants].
const ConstantsFloats = 32

// ConstantsSize is the encoded size of [Constants] in bytes.
const ConstantsSize = ConstantsFloats * 4

// Orbit is a camera moving on a horizontal circle around Target.
type Orbit struct {
	Radius float32
	// Theta is the azimuth at Angle 0 and Phi the polar angle of the circle.
	Theta, Phi float32
	// Angle accumulates Step on every Advance.
	Angle float32
	Step  float32
	// Height is the eye's height above Target.
	Height float32

	Target mgl32.Vec3
	Up     mgl32.Vec3

	FovY, Near, Far float32

	World mgl32.Mat4
}

// NewOrbit returns the default orbit: radius 3 at half the radius of
// height, starting behind the origin, looking at it.
func NewOrbit() *Orbit {
	return &Orbit{
		Radius: DefaultRadius,
		Theta:  1.5 * math32.Pi,
		Phi:    0.5 * math32.Pi,
		Step:   DefaultStep,
		Height: DefaultRadius / 2,
		Up:     mgl32.Vec3{0, 1, 0},
		FovY:   DefaultFovY,
		Near:   DefaultNear,
		Far:    DefaultFar,
		World:  mgl32.Ident4(),
	}
}

// Advance moves the camera one step along the circle.
func (o *Orbit) Advance() {
	o.Angle += o.Step
}

// Reset returns the camera to the start of the circle.
func (o *Orbit) Reset() {
	o.Angle = 0
}

// Eye returns the camera position.
func (o *Orbit) Eye() mgl32.Vec3 {
	a := o.Theta + o.Angle
	s := math32.Sin(o.Phi)
	return mgl32.Vec3{
		o.Target[0] + o.Radius*math32.Cos(a)*s,
		o.Target[1] + o.Height,
		o.Target[2] + o.Radius*math32.Sin(a)*s,
	}
}

// View returns the view matrix.
func (o *Orbit) View() mgl32.Mat4 {
	return LookAtLH(o.Eye(), o.Target, o.Up)
}

// Projection returns the projection matrix for an output of the given
// aspect ratio (width / height).
func (o *Orbit) Projection(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return PerspectiveFovLH(o.FovY, aspect, o.Near, o.Far)
}

// Constants returns the per-frame shader constants.
func (o *Orbit) Constants(aspect float32) Constants {
	return Constants{
		Transform:       o.Projection(aspect).Mul4(o.View()).Mul4(o.World),
		NormalTransform: NormalMatrix(o.World),
	}
}

// Constants is the constant buffer layout shared with the vertex shader:
// two column-major 4x4 matrices.
type Constants struct {
	Transform       mgl32.Mat4
	NormalTransform mgl32.Mat4
}

// Floats returns the constants in buffer order.
func (c Constants) Floats() []float32 {
	out := make([]float32, 0, ConstantsFloats)
	out = append(out, c.Transform[:]...)
	return append(out, c.NormalTransform[:]...)
}
