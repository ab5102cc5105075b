package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis-aligned bounding box. A box with Min > Max on any axis
// is empty; EmptyBox returns the canonical empty box.
type Box r3.Box

// NewBox returns the box spanned by two opposite corners in any order.
func NewBox(a, b r3.Vec) Box {
	return Box{Min: MinElem(a, b), Max: MaxElem(a, b)}
}

// EmptyBox returns a box that contains nothing and acts as the identity
// for Union and Include.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// IsEmpty reports whether the box contains no points.
func (a Box) IsEmpty() bool {
	return a.Min.X > a.Max.X || a.Min.Y > a.Max.Y || a.Min.Z > a.Max.Z
}

// Include enlarges the box to contain v.
func (a Box) Include(v r3.Vec) Box {
	return Box{Min: MinElem(a.Min, v), Max: MaxElem(a.Max, v)}
}

// Union returns the smallest box enclosing a and b.
func (a Box) Union(b Box) Box {
	if b.IsEmpty() {
		return a
	}
	if a.IsEmpty() {
		return b
	}
	return Box{Min: MinElem(a.Min, b.Min), Max: MaxElem(a.Max, b.Max)}
}

// Intersect returns the overlap of a and b, which may be empty.
func (a Box) Intersect(b Box) Box {
	return Box{Min: MaxElem(a.Min, b.Min), Max: MinElem(a.Max, b.Max)}
}

// Enlarge grows the box by d on every side.
func (a Box) Enlarge(d float64) Box {
	if a.IsEmpty() {
		return a
	}
	e := r3.Vec{X: d, Y: d, Z: d}
	return Box{Min: r3.Sub(a.Min, e), Max: r3.Add(a.Max, e)}
}

// Overlaps reports whether the closed boxes a and b share a point.
func (a Box) Overlaps(b Box) bool {
	return !a.Intersect(b).IsEmpty()
}

// Contains reports whether v lies in the closed box.
func (a Box) Contains(v r3.Vec) bool {
	return v.X >= a.Min.X && v.X <= a.Max.X &&
		v.Y >= a.Min.Y && v.Y <= a.Max.Y &&
		v.Z >= a.Min.Z && v.Z <= a.Max.Z
}

// ContainsBox reports whether b lies entirely inside a, allowing tol.
func (a Box) ContainsBox(b Box, tol float64) bool {
	return a.Enlarge(tol).Contains(b.Min) && a.Enlarge(tol).Contains(b.Max)
}

// Size returns the extents of the box.
func (a Box) Size() r3.Vec {
	if a.IsEmpty() {
		return r3.Vec{}
	}
	return r3.Sub(a.Max, a.Min)
}

// Center returns the midpoint of the box.
func (a Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(a.Min, a.Max))
}

// Volume returns the enclosed volume.
func (a Box) Volume() float64 {
	s := a.Size()
	return s.X * s.Y * s.Z
}

// Thickness returns the smallest extent of the box.
func (a Box) Thickness() float64 {
	s := a.Size()
	return math.Min(s.X, math.Min(s.Y, s.Z))
}

// Distance returns the Euclidean distance between the closest points of
// a and b, zero when they overlap.
func (a Box) Distance(b Box) float64 {
	gap := func(amin, amax, bmin, bmax float64) float64 {
		switch {
		case bmin > amax:
			return bmin - amax
		case amin > bmax:
			return amin - bmax
		}
		return 0
	}
	dx := gap(a.Min.X, a.Max.X, b.Min.X, b.Max.X)
	dy := gap(a.Min.Y, a.Max.Y, b.Min.Y, b.Max.Y)
	dz := gap(a.Min.Z, a.Max.Z, b.Min.Z, b.Max.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Corners returns the eight corners of the box.
func (a Box) Corners() [8]r3.Vec {
	var c [8]r3.Vec
	for i := range c {
		v := a.Min
		if i&1 != 0 {
			v.X = a.Max.X
		}
		if i&2 != 0 {
			v.Y = a.Max.Y
		}
		if i&4 != 0 {
			v.Z = a.Max.Z
		}
		c[i] = v
	}
	return c
}
