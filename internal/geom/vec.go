// Package geom holds the small amount of vector, box and transform math
// the conversion pipeline needs on top of gonum's r3 package.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Axis indexes a Cartesian coordinate.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	}
	return "?"
}

// Unit returns the positive unit vector along the axis.
func (a Axis) Unit() r3.Vec {
	var v r3.Vec
	return Set(v, a, 1)
}

// Get returns the coordinate of v along axis a.
func Get(v r3.Vec, a Axis) float64 {
	switch a {
	case X:
		return v.X
	case Y:
		return v.Y
	default:
		return v.Z
	}
}

// Set returns v with the coordinate along axis a replaced by f.
func Set(v r3.Vec, a Axis, f float64) r3.Vec {
	switch a {
	case X:
		v.X = f
	case Y:
		v.Y = f
	default:
		v.Z = f
	}
	return v
}

// DominantAxis returns the axis along which v has its largest magnitude
// and whether v is parallel to that axis within tol.
func DominantAxis(v r3.Vec, tol float64) (Axis, bool) {
	n := r3.Norm(v)
	if n == 0 {
		return X, false
	}
	u := r3.Scale(1/n, v)
	best, bestAbs := X, math.Abs(u.X)
	if a := math.Abs(u.Y); a > bestAbs {
		best, bestAbs = Y, a
	}
	if a := math.Abs(u.Z); a > bestAbs {
		best, bestAbs = Z, a
	}
	return best, math.Abs(bestAbs-1) <= tol
}

// MinElem returns the element-wise minimum of a and b.
func MinElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

// MaxElem returns the element-wise maximum of a and b.
func MaxElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}

// EqualWithin reports whether a and b differ by at most tol in every
// coordinate.
func EqualWithin(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

// Parallel reports whether a and b point along the same line, in either
// direction, within an angular tolerance expressed as a sine.
func Parallel(a, b r3.Vec, tol float64) bool {
	na, nb := r3.Norm(a), r3.Norm(b)
	if na == 0 || nb == 0 {
		return false
	}
	return r3.Norm(r3.Cross(a, b))/(na*nb) <= tol
}

// Perpendicular reports whether a and b are orthogonal within tol, with
// tol expressed as a cosine.
func Perpendicular(a, b r3.Vec, tol float64) bool {
	na, nb := r3.Norm(a), r3.Norm(b)
	if na == 0 || nb == 0 {
		return false
	}
	return math.Abs(r3.Dot(a, b))/(na*nb) <= tol
}

// SegmentDistance returns the distance from p to the segment [a, b].
func SegmentDistance(p, a, b r3.Vec) float64 {
	ab := r3.Sub(b, a)
	l2 := r3.Dot(ab, ab)
	if l2 == 0 {
		return r3.Norm(r3.Sub(p, a))
	}
	t := r3.Dot(r3.Sub(p, a), ab) / l2
	t = math.Max(0, math.Min(1, t))
	return r3.Norm(r3.Sub(p, r3.Add(a, r3.Scale(t, ab))))
}
