package kernel

import (
	"math"

	"github.com/chazu/mortise/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// SurfaceKind tags the variant held by a Surface.
type SurfaceKind int

const (
	SurfacePlane SurfaceKind = iota
	SurfaceCylinder
	SurfaceOther
)

// Surface is an unbounded carrier surface. Surfaces are shared by
// pointer: faces built on the same *Surface report the same pointer
// from Analysis.Surface, and that identity survives splitting.
//
// A plane is parameterised as origin + u*xdir + v*ydir with normal
// xdir × ydir. A cylinder is parameterised by angle u around the axis
// starting at xdir and height v along the axis; its normal points away
// from the axis.
type Surface struct {
	kind   SurfaceKind
	origin r3.Vec
	axis   r3.Vec // plane normal or cylinder axis, unit length
	xdir   r3.Vec
	radius float64

	basis  *Surface
	offset float64
}

// Plane returns the plane through origin with the given normal. The
// parameter X direction is derived from the normal.
func Plane(origin, normal r3.Vec) *Surface {
	return PlaneFrame(origin, normal, r3.Vec{})
}

// PlaneFrame returns a plane with an explicit parameter X direction.
func PlaneFrame(origin, normal, xdir r3.Vec) *Surface {
	t := geom.Placement(origin, normal, xdir)
	return &Surface{
		kind:   SurfacePlane,
		origin: origin,
		axis:   r3.Unit(normal),
		xdir:   t.ApplyVector(r3.Vec{X: 1}),
	}
}

// Cylinder returns the cylinder of the given radius around the axis
// through origin.
func Cylinder(origin, axis, xdir r3.Vec, radius float64) *Surface {
	t := geom.Placement(origin, axis, xdir)
	return &Surface{
		kind:   SurfaceCylinder,
		origin: origin,
		axis:   r3.Unit(axis),
		xdir:   t.ApplyVector(r3.Vec{X: 1}),
		radius: radius,
	}
}

// Other returns a surface of unsupported geometry. It exists so that
// callers can exercise their rejection paths.
func Other() *Surface {
	return &Surface{kind: SurfaceOther, axis: r3.Vec{Z: 1}, xdir: r3.Vec{X: 1}}
}

func (s *Surface) Kind() SurfaceKind { return s.kind }

// IsPlanar reports whether the surface is a plane, including planes
// obtained by offsetting a plane.
func (s *Surface) IsPlanar() bool { return s.kind == SurfacePlane }

// IsCylindrical reports whether the surface is a circular cylinder.
func (s *Surface) IsCylindrical() bool { return s.kind == SurfaceCylinder }

func (s *Surface) Origin() r3.Vec  { return s.origin }
func (s *Surface) Axis() r3.Vec    { return s.axis }
func (s *Surface) XDir() r3.Vec    { return s.xdir }
func (s *Surface) YDir() r3.Vec    { return r3.Cross(s.axis, s.xdir) }
func (s *Surface) Radius() float64 { return s.radius }

// Basis returns the surface this one was offset from, or nil.
func (s *Surface) Basis() *Surface { return s.basis }

// Offset returns the surface displaced by d along its normal. The result
// keeps the parameterisation of the receiver.
func (s *Surface) Offset(d float64) *Surface {
	o := *s
	o.basis = s
	o.offset = d
	switch s.kind {
	case SurfacePlane:
		o.origin = r3.Add(s.origin, r3.Scale(d, s.axis))
	case SurfaceCylinder:
		o.radius = s.radius + d
	}
	return &o
}

// Eval returns the point at parameters (u, v).
func (s *Surface) Eval(u, v float64) r3.Vec {
	switch s.kind {
	case SurfaceCylinder:
		radial := r3.Add(r3.Scale(math.Cos(u), s.xdir), r3.Scale(math.Sin(u), s.YDir()))
		return r3.Add(s.origin, r3.Add(r3.Scale(s.radius, radial), r3.Scale(v, s.axis)))
	default:
		return r3.Add(s.origin, r3.Add(r3.Scale(u, s.xdir), r3.Scale(v, s.YDir())))
	}
}

// NormalAt returns the unit normal at (u, v).
func (s *Surface) NormalAt(u, v float64) r3.Vec {
	if s.kind == SurfaceCylinder {
		return r3.Add(r3.Scale(math.Cos(u), s.xdir), r3.Scale(math.Sin(u), s.YDir()))
	}
	return s.axis
}

// UV returns the parameters of the projection of p onto the surface.
func (s *Surface) UV(p r3.Vec) (u, v float64) {
	d := r3.Sub(p, s.origin)
	switch s.kind {
	case SurfaceCylinder:
		return math.Atan2(r3.Dot(d, s.YDir()), r3.Dot(d, s.xdir)), r3.Dot(d, s.axis)
	default:
		return r3.Dot(d, s.xdir), r3.Dot(d, s.YDir())
	}
}

// SignedDistance returns the distance of p from a plane, positive on the
// normal side. For other surfaces it is the distance along the radial
// normal.
func (s *Surface) SignedDistance(p r3.Vec) float64 {
	d := r3.Sub(p, s.origin)
	if s.kind == SurfaceCylinder {
		axial := r3.Scale(r3.Dot(d, s.axis), s.axis)
		return r3.Norm(r3.Sub(d, axial)) - s.radius
	}
	return r3.Dot(d, s.axis)
}
