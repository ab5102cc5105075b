package ortho

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// primitives returns the boxes making up s: cells of solids, flat boxes
// of faces, segments of edges and points of vertices.
func (k *Kernel) primitives(s kernel.Shape) []geom.Box {
	var out []geom.Box
	k.walk(s, func(x kernel.Shape) bool {
		switch x := x.(type) {
		case *Solid:
			for _, c := range x.cells {
				out = append(out, c.box())
			}
			return false
		case *Face:
			out = append(out, x.box())
			return false
		case *Edge:
			out = append(out, geom.NewBox(x.a, x.b))
			return false
		case *Vertex:
			out = append(out, geom.Box{Min: x.p, Max: x.p})
			return false
		}
		return true
	})
	return out
}

// BoundingBox implements kernel.Analysis.
func (k *Kernel) BoundingBox(s kernel.Shape) geom.Box {
	b := geom.EmptyBox()
	for _, p := range k.primitives(s) {
		b = b.Union(p)
	}
	return b
}

// Volume implements kernel.Analysis.
func (k *Kernel) Volume(s kernel.Shape) float64 {
	var v float64
	for _, x := range k.solids(s) {
		v += cellsVolume(x.cells)
	}
	return v
}

// Surface implements kernel.Analysis.
func (k *Kernel) Surface(face kernel.Shape) *kernel.Surface {
	if f, ok := face.(*Face); ok {
		return f.srf
	}
	return nil
}

// Curve implements kernel.Analysis.
func (k *Kernel) Curve(edge kernel.Shape) kernel.Curve {
	if e, ok := edge.(*Edge); ok {
		return kernel.Line(e.a, e.b)
	}
	return kernel.Curve{Kind: kernel.CurveOther}
}

// Point implements kernel.Analysis.
func (k *Kernel) Point(vertex kernel.Shape) r3.Vec {
	if v, ok := vertex.(*Vertex); ok {
		return v.p
	}
	return r3.Vec{}
}

// Distance implements kernel.Analysis.
func (k *Kernel) Distance(a, b kernel.Shape) float64 {
	pa, pb := k.primitives(a), k.primitives(b)
	d := math.Inf(1)
	for _, x := range pa {
		for _, y := range pb {
			d = math.Min(d, x.Distance(y))
		}
	}
	return d
}

// EdgesOverlap implements kernel.Analysis: the segments are collinear
// within tol and share a stretch longer than tol.
func (k *Kernel) EdgesOverlap(a, b kernel.Shape, tol float64) bool {
	ea, ok1 := a.(*Edge)
	eb, ok2 := b.(*Edge)
	if !ok1 || !ok2 {
		return false
	}
	da, ok1 := geom.DominantAxis(r3.Sub(ea.b, ea.a), axisTol)
	db, ok2 := geom.DominantAxis(r3.Sub(eb.b, eb.a), axisTol)
	if !ok1 || !ok2 || da != db {
		return false
	}
	for o := geom.X; o <= geom.Z; o++ {
		if o != da && math.Abs(geom.Get(ea.a, o)-geom.Get(eb.a, o)) > tol {
			return false
		}
	}
	lo := math.Max(geom.Get(ea.a, da), geom.Get(eb.a, da))
	hi := math.Min(geom.Get(ea.b, da), geom.Get(eb.b, da))
	return hi-lo > math.Max(tol, 0)
}

// FacesOverlap implements kernel.Analysis.
func (k *Kernel) FacesOverlap(a, b kernel.Shape) bool {
	fa, ok1 := a.(*Face)
	fb, ok2 := b.(*Face)
	if !ok1 || !ok2 || !coplanar(fa, fb, 0) {
		return false
	}
	_, ok := rectOverlap(fa.rect, fb.rect)
	return ok
}

// Check implements kernel.Analysis.
func (k *Kernel) Check(s kernel.Shape) []kernel.Problem {
	var out []kernel.Problem
	k.walk(s, func(x kernel.Shape) bool {
		switch x := x.(type) {
		case *Compound:
			if x.flaw != "" {
				out = append(out, kernel.Problem{On: kernel.KindCompound, Status: x.flaw})
			}
		case *Solid:
			if x.flaw != "" {
				out = append(out, kernel.Problem{On: kernel.KindSolid, Status: x.flaw})
			}
			for i, c := range x.cells {
				if c.box().Thickness() <= 0 {
					out = append(out, kernel.Problem{On: kernel.KindSolid, Status: "BRepCheck_InvalidDegeneratedFlag"})
				}
				for _, d := range x.cells[i+1:] {
					if overlapVolume(c.box(), d.box()) > 0 {
						out = append(out, kernel.Problem{On: kernel.KindShell, Status: "BRepCheck_SelfIntersectingWire"})
					}
				}
			}
			return false
		case *Face:
			if x.area() <= 0 {
				out = append(out, kernel.Problem{On: kernel.KindFace, Status: "BRepCheck_InvalidDegeneratedFlag"})
			}
			return false
		}
		return true
	})
	return out
}

// ClassifyInfinite implements kernel.Analysis.
func (k *Kernel) ClassifyInfinite(solid kernel.Shape, tol float64) (kernel.State, error) {
	s, ok := solid.(*Solid)
	if !ok {
		return kernel.StateUnknown, fmt.Errorf("ortho: classify: %s is not a solid", solid.Kind())
	}
	if s.reversed {
		return kernel.StateIn, nil
	}
	return kernel.StateOut, nil
}

// Heal implements kernel.Repair: degenerate boxes and faces are dropped.
// Results flagged as corrupt stay corrupt.
func (k *Kernel) Heal(s kernel.Shape, maxTol float64) (kernel.Shape, error) {
	switch s := s.(type) {
	case *Solid:
		cells := dropDegenerate(s.cells)
		if len(cells) == len(s.cells) {
			return s, nil
		}
		if len(cells) == 0 {
			return nil, errors.New("ortho: heal: solid has no volume")
		}
		h := newSolid(cells)
		h.reversed, h.flaw = s.reversed, s.flaw
		return h, nil
	case *Shell:
		h := &Shell{}
		for _, f := range s.faces {
			if f.area() > 0 {
				h.faces = append(h.faces, f)
			}
		}
		if len(h.faces) == len(s.faces) {
			return s, nil
		}
		return h, nil
	case *Compound:
		h := &Compound{flaw: s.flaw}
		changed := false
		for _, p := range s.parts {
			q, err := k.Heal(p, maxTol)
			if err != nil {
				changed = true
				continue
			}
			changed = changed || q != p
			h.parts = append(h.parts, q)
		}
		if !changed {
			return s, nil
		}
		return h, nil
	}
	return s, nil
}

// FixFaceOrientation implements kernel.Repair. Faces of a closed shell
// are turned to point away from the volume they bound; an open shell is
// returned unchanged.
func (k *Kernel) FixFaceOrientation(shell kernel.Shape) (kernel.Shape, error) {
	sh, ok := shell.(*Shell)
	if !ok {
		return nil, fmt.Errorf("ortho: fix orientation: %s is not a shell", shell.Kind())
	}
	if !k.IsClosed(sh) {
		return sh, nil
	}
	vx := newVoxels(sh.faces, true)
	outside, _ := vx.flood([][3]int{{0, 0, 0}})
	fixed := &Shell{}
	for _, f := range sh.faces {
		var i [3]int
		u, v := uAxis(f.axis), vAxis(f.axis)
		i[f.axis] = vx.g.index(f.axis, f.level)
		i[u] = vx.g.index(u, f.rect[0][0])
		i[v] = vx.g.index(v, f.rect[1][0])
		sign := 1
		if !outside[vx.g.id(i)] {
			// material above the face
			sign = -1
		}
		if sign == f.sign {
			fixed.faces = append(fixed.faces, f)
			continue
		}
		r := *f
		r.sign = sign
		fixed.faces = append(fixed.faces, &r)
	}
	return fixed, nil
}

// SetTolerance implements kernel.Repair. Geometry is exact, so there is
// nothing to record.
func (k *Kernel) SetTolerance(s kernel.Shape, tol float64) kernel.Shape {
	return s
}
