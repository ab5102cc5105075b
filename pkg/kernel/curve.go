package kernel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CurveKind tags the variant held by a Curve.
type CurveKind int

const (
	CurveLine CurveKind = iota
	CurveCircle
	CurveOther
)

// Curve is the bounded carrier of an edge. Lines run from Start to End.
// Circles are centred at Origin in the plane normal to Axis, with Start
// and End on the circle and Sweep the swept angle.
type Curve struct {
	Kind       CurveKind
	Start, End r3.Vec
	Origin     r3.Vec
	Axis       r3.Vec
	Radius     float64
	Sweep      float64

	// Arc is the length of curves of kind CurveOther.
	Arc float64
}

// Line returns the segment from a to b.
func Line(a, b r3.Vec) Curve {
	return Curve{Kind: CurveLine, Start: a, End: b, Origin: a, Axis: r3.Sub(b, a)}
}

// Circle returns a full circle.
func Circle(center, axis, xdir r3.Vec, radius float64) Curve {
	p := r3.Add(center, r3.Scale(radius, r3.Unit(xdir)))
	return Curve{Kind: CurveCircle, Start: p, End: p, Origin: center, Axis: r3.Unit(axis), Radius: radius, Sweep: 2 * math.Pi}
}

// IsLinear reports whether the curve is a straight line.
func (c Curve) IsLinear() bool { return c.Kind == CurveLine }

// IsCircular reports whether the curve is a circle or circular arc.
func (c Curve) IsCircular() bool { return c.Kind == CurveCircle }

// Direction returns the unit direction of a line.
func (c Curve) Direction() r3.Vec {
	if c.Kind != CurveLine || r3.Norm(r3.Sub(c.End, c.Start)) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(r3.Sub(c.End, c.Start))
}

// Length returns the length of the bounded curve.
func (c Curve) Length() float64 {
	switch c.Kind {
	case CurveLine:
		return r3.Norm(r3.Sub(c.End, c.Start))
	case CurveCircle:
		return c.Radius * c.Sweep
	}
	return c.Arc
}

// Midpoint returns the point halfway along a line, or Start otherwise.
func (c Curve) Midpoint() r3.Vec {
	if c.Kind == CurveLine {
		return r3.Scale(0.5, r3.Add(c.Start, c.End))
	}
	return c.Start
}
