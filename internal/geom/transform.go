package geom

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is an affine 3D transformation stored as the top three rows
// of a 4x4 matrix. The zero value is the identity: the diagonal is kept
// with one subtracted so that Transform{} means "no change".
type Transform struct {
	d00, x01, x02, x03 float64
	x10, d11, x12, x13 float64
	x20, x21, d22, x23 float64
}

// ErrSingular is returned when inverting a transform without an inverse.
var ErrSingular = errors.New("geom: singular transform")

// Identity returns the identity transform.
func Identity() Transform { return Transform{} }

// Translation returns a transform moving points by v.
func Translation(v r3.Vec) Transform {
	return Transform{x03: v.X, x13: v.Y, x23: v.Z}
}

// Scaling returns a transform scaling about the origin.
func Scaling(f r3.Vec) Transform {
	return Transform{d00: f.X - 1, d11: f.Y - 1, d22: f.Z - 1}
}

// Placement returns the transform mapping the local frame given by an
// origin, a Z axis and a reference X direction into the parent frame.
// The X direction is orthogonalised against Z; a zero or parallel
// reference falls back to whichever global axis is least aligned with Z.
func Placement(origin, zdir, xref r3.Vec) Transform {
	z := r3.Unit(zdir)
	x := r3.Sub(xref, r3.Scale(r3.Dot(xref, z), z))
	if r3.Norm(x) < 1e-12 {
		ax, _ := DominantAxis(z, 0)
		x = ((ax + 1) % 3).Unit()
		x = r3.Sub(x, r3.Scale(r3.Dot(x, z), z))
	}
	x = r3.Unit(x)
	y := r3.Cross(z, x)
	return FromColumns(x, y, z, origin)
}

// FromColumns builds a transform from the images of the unit axes and
// the translation part.
func FromColumns(x, y, z, t r3.Vec) Transform {
	return Transform{
		d00: x.X - 1, x01: y.X, x02: z.X, x03: t.X,
		x10: x.Y, d11: y.Y - 1, x12: z.Y, x13: t.Y,
		x20: x.Z, x21: y.Z, d22: z.Z - 1, x23: t.Z,
	}
}

// Apply transforms the point v.
func (t Transform) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: (t.d00+1)*v.X + t.x01*v.Y + t.x02*v.Z + t.x03,
		Y: t.x10*v.X + (t.d11+1)*v.Y + t.x12*v.Z + t.x13,
		Z: t.x20*v.X + t.x21*v.Y + (t.d22+1)*v.Z + t.x23,
	}
}

// ApplyVector transforms the direction v, ignoring translation.
func (t Transform) ApplyVector(v r3.Vec) r3.Vec {
	return r3.Sub(t.Apply(v), t.Apply(r3.Vec{}))
}

// ApplyBox returns the bounding box of the transformed corners of b.
func (t Transform) ApplyBox(b Box) Box {
	if b.IsEmpty() {
		return b
	}
	out := EmptyBox()
	for _, c := range b.Corners() {
		out = out.Include(t.Apply(c))
	}
	return out
}

// TranslationPart returns the translation component.
func (t Transform) TranslationPart() r3.Vec {
	return r3.Vec{X: t.x03, Y: t.x13, Z: t.x23}
}

// IsIdentity reports whether t leaves every point unchanged.
func (t Transform) IsIdentity() bool { return t == Transform{} }

// IsTranslation reports whether t has no linear part.
func (t Transform) IsTranslation() bool {
	return t.linear() == [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// IsUniform reports whether the linear part is a rotation combined with
// a uniform scale, which keeps shapes similar to themselves.
func (t Transform) IsUniform(tol float64) bool {
	l := t.linear()
	cx := r3.Vec{X: l[0], Y: l[3], Z: l[6]}
	cy := r3.Vec{X: l[1], Y: l[4], Z: l[7]}
	cz := r3.Vec{X: l[2], Y: l[5], Z: l[8]}
	s := r3.Norm(cx)
	if s == 0 {
		return false
	}
	return math.Abs(r3.Norm(cy)-s) <= tol*s && math.Abs(r3.Norm(cz)-s) <= tol*s &&
		math.Abs(r3.Dot(cx, cy)) <= tol*s*s && math.Abs(r3.Dot(cx, cz)) <= tol*s*s &&
		math.Abs(r3.Dot(cy, cz)) <= tol*s*s
}

func (t Transform) linear() [9]float64 {
	return [9]float64{
		t.d00 + 1, t.x01, t.x02,
		t.x10, t.d11 + 1, t.x12,
		t.x20, t.x21, t.d22 + 1,
	}
}

// Mul returns the composition that applies b first and then t.
func (t Transform) Mul(b Transform) Transform {
	if t.IsIdentity() {
		return b
	}
	if b.IsIdentity() {
		return t
	}
	var m mat.Dense
	m.Mul(t.dense(), b.dense())
	return fromDense(&m)
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() (Transform, error) {
	if t.IsIdentity() {
		return t, nil
	}
	var inv mat.Dense
	if err := inv.Inverse(t.dense()); err != nil {
		return Transform{}, ErrSingular
	}
	return fromDense(&inv), nil
}

func (t Transform) dense() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		t.d00 + 1, t.x01, t.x02, t.x03,
		t.x10, t.d11 + 1, t.x12, t.x13,
		t.x20, t.x21, t.d22 + 1, t.x23,
		0, 0, 0, 1,
	})
}

func fromDense(m *mat.Dense) Transform {
	return Transform{
		d00: m.At(0, 0) - 1, x01: m.At(0, 1), x02: m.At(0, 2), x03: m.At(0, 3),
		x10: m.At(1, 0), d11: m.At(1, 1) - 1, x12: m.At(1, 2), x13: m.At(1, 3),
		x20: m.At(2, 0), x21: m.At(2, 1), d22: m.At(2, 2) - 1, x23: m.At(2, 3),
	}
}
