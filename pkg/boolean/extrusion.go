package boolean

import (
	"math"
	"sort"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// angularTol bounds the sine or cosine deviation accepted when matching
// face normals against the extrusion axis.
const angularTol = 1e-9

// extrusion is a shape swept along the extrusion axis: a profile of
// faces at the lower level and the interval of levels it spans.
type extrusion struct {
	profile []kernel.Shape
	lo, hi  float64
}

// asExtrusion reports whether every face of s is either a cap, a plane
// normal to the axis on one of exactly two levels, or a side whose
// normal is perpendicular to the axis.
func (e *Engine) asExtrusion(s kernel.Shape) (extrusion, bool) {
	d := r3.Unit(e.cfg.ExtrusionAxis)
	tol := e.cfg.Precision

	type cap struct {
		face  kernel.Shape
		level float64
	}
	var caps []cap
	for _, f := range e.k.Explore(s, kernel.KindFace) {
		srf := e.k.Surface(f)
		switch {
		case srf == nil:
			return extrusion{}, false
		case srf.IsPlanar() && geom.Parallel(srf.Axis(), d, angularTol):
			caps = append(caps, cap{f, r3.Dot(e.k.BoundingBox(f).Center(), d)})
		case srf.IsPlanar() && geom.Perpendicular(srf.Axis(), d, angularTol):
		case srf.IsCylindrical() && geom.Parallel(srf.Axis(), d, angularTol):
		default:
			return extrusion{}, false
		}
	}
	if len(caps) < 2 {
		return extrusion{}, false
	}

	sort.SliceStable(caps, func(i, j int) bool { return caps[i].level < caps[j].level })
	lo, hi := caps[0].level, caps[len(caps)-1].level
	if hi-lo <= tol {
		return extrusion{}, false
	}
	x := extrusion{lo: lo, hi: hi}
	for _, c := range caps {
		switch {
		case math.Abs(c.level-lo) <= tol:
			x.profile = append(x.profile, c.face)
		case math.Abs(c.level-hi) > tol:
			return extrusion{}, false
		}
	}
	return x, true
}

func (e *Engine) profileShape(faces []kernel.Shape) kernel.Shape {
	if len(faces) == 1 {
		return faces[0]
	}
	return e.k.Compound(faces...)
}

// attempt2D cuts the through holes among bs from the profile of a and
// extrudes the outcome. It returns the prism and the operands still to
// be subtracted in 3D; ok is false when nothing was done in 2D.
func (e *Engine) attempt2D(a kernel.Shape, bs []kernel.Shape, fuzz, fuzziness float64) (kernel.Shape, []kernel.Shape, bool) {
	ea, ok := e.asExtrusion(a)
	if !ok {
		return nil, nil, false
	}
	e.log.Noticef("Operand A 1/1 is an extrusion")

	d := r3.Unit(e.cfg.ExtrusionAxis)
	var holes, rest []kernel.Shape
	for i, b := range bs {
		if eb, ok := e.asExtrusion(b); ok {
			e.log.Noticef("Operand B %d/%d is an extrusion", i+1, len(bs))
			if eb.lo < ea.lo+fuzz && eb.hi > ea.hi-fuzz {
				e.log.Noticef("Operand B creates a through hole")
				moved, err := kernel.Call("transform", func() (kernel.Shape, error) {
					return e.k.Transform(e.profileShape(eb.profile), geom.Translation(r3.Scale(ea.lo-eb.lo, d)))
				})
				if err == nil {
					holes = append(holes, moved)
					continue
				}
				e.log.Noticef("%v", err)
			}
		}
		rest = append(rest, b)
	}
	if len(holes) == 0 {
		e.log.Noticef("No second operands can be processed as 2D inner bounds. Retrying in 3D.")
		return nil, nil, false
	}

	flat, err := e.run(e.profileShape(ea.profile), holes, kernel.OpCut, fuzziness)
	if err != nil {
		e.log.Noticef("Failed to perform 2D boolean operation. Retrying in 3D.")
		return nil, nil, false
	}
	prism, err := kernel.Call("prism", func() (kernel.Shape, error) {
		return e.k.Prism(flat.Shape, r3.Scale(ea.hi-ea.lo, d))
	})
	if err != nil {
		e.log.Noticef("Failed to extrude 2D boolean result. Retrying in 3D.")
		return nil, nil, false
	}
	if len(rest) > 0 {
		e.log.Noticef("%d operands remaining to process in 3D", len(rest))
	} else {
		e.log.Noticef("Processed fully in 2D")
	}
	return prism, rest, true
}
