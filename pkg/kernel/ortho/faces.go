package ortho

import (
	"math"

	"github.com/chazu/mortise/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

type rect = [2][2]float64

func rectArea(r rect) float64 {
	return math.Max(0, r[0][1]-r[0][0]) * math.Max(0, r[1][1]-r[1][0])
}

func rectOverlap(a, b rect) (rect, bool) {
	var r rect
	for d := 0; d < 2; d++ {
		r[d][0] = math.Max(a[d][0], b[d][0])
		r[d][1] = math.Min(a[d][1], b[d][1])
		if r[d][1] <= r[d][0] {
			return r, false
		}
	}
	return r, true
}

// projection returns the rectangle of a box seen along axis a.
func projection(b geom.Box, a geom.Axis) rect {
	u, v := uAxis(a), vAxis(a)
	return rect{
		{geom.Get(b.Min, u), geom.Get(b.Max, u)},
		{geom.Get(b.Min, v), geom.Get(b.Max, v)},
	}
}

// crosses reports whether the plane at level on axis a passes through
// the interior of c.
func crosses(c cuboid, a geom.Axis, level, fuzz float64) bool {
	lo, hi := c.span(a)
	return lo+fuzz < level && level < hi-fuzz
}

// coplanar reports whether two faces lie in the same plane within fuzz.
func coplanar(f, g *Face, fuzz float64) bool {
	return f.axis == g.axis && math.Abs(f.level-g.level) <= fuzz
}

// seed returns a pool holding the vertices and edges of faces, so that
// pieces cut from them connect to their untouched neighbours.
func seed(faces []*Face) *pool {
	p := newPool()
	for _, f := range faces {
		for _, e := range f.edges {
			p.edges[[2]r3.Vec{e.a, e.b}] = e
			for _, v := range e.verts {
				p.verts[v.p] = v
			}
		}
	}
	return p
}

// pieces divides f along the boundaries of the tools overlapping it and
// returns the grid rectangles for which keep holds, given whether a tool
// covers them. The second result reports whether any tool overlapped.
func pieces(f *Face, tools []rect, keep func(covered bool) bool) ([]rect, bool) {
	var hit []rect
	for _, t := range tools {
		if r, ok := rectOverlap(f.rect, t); ok {
			hit = append(hit, r)
		}
	}
	if len(hit) == 0 {
		return nil, false
	}
	us := []float64{f.rect[0][0], f.rect[0][1]}
	vs := []float64{f.rect[1][0], f.rect[1][1]}
	for _, r := range hit {
		us = append(us, r[0][0], r[0][1])
		vs = append(vs, r[1][0], r[1][1])
	}
	us, vs = uniq(us), uniq(vs)

	var out []rect
	for j := 0; j+1 < len(vs); j++ {
		for i := 0; i+1 < len(us); i++ {
			c := rect{{us[i], us[i+1]}, {vs[j], vs[j+1]}}
			cu, cv := (c[0][0]+c[0][1])/2, (c[1][0]+c[1][1])/2
			covered := false
			for _, r := range hit {
				if r[0][0] < cu && cu < r[0][1] && r[1][0] < cv && cv < r[1][1] {
					covered = true
					break
				}
			}
			if keep(covered) {
				out = append(out, c)
			}
		}
	}
	return out, true
}

// cutFace removes the tools from f. An untouched face is returned as is
// so its identity survives the operation.
func cutFace(p *pool, f *Face, tools []rect) []*Face {
	rs, touched := pieces(f, tools, func(covered bool) bool { return !covered })
	if !touched {
		return []*Face{f}
	}
	out := make([]*Face, 0, len(rs))
	for _, r := range rs {
		out = append(out, newFace(p, f.axis, f.level, r, f.sign, f.srf))
	}
	return out
}

// commonFace keeps the parts of f covered by the tools.
func commonFace(p *pool, f *Face, tools []rect) []*Face {
	rs, _ := pieces(f, tools, func(covered bool) bool { return covered })
	if len(rs) == 1 && rs[0] == f.rect {
		return []*Face{f}
	}
	out := make([]*Face, 0, len(rs))
	for _, r := range rs {
		out = append(out, newFace(p, f.axis, f.level, r, f.sign, f.srf))
	}
	return out
}
