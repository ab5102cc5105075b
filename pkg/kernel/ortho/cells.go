package ortho

import (
	"math"
	"sort"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
)

func overlapVolume(a, b geom.Box) float64 {
	i := a.Intersect(b)
	if i.IsEmpty() {
		return 0
	}
	return i.Volume()
}

// subtractOne removes t from c, slicing off at most two slabs per axis.
// New sides lying on t carry t's surfaces.
func subtractOne(c, t cuboid) []cuboid {
	if overlapVolume(c.box(), t.box()) <= 0 {
		return []cuboid{c}
	}
	var out []cuboid
	rest := c
	for a := geom.X; a <= geom.Z; a++ {
		clo, chi := rest.span(a)
		tlo, thi := t.span(a)
		if tlo > clo {
			s := rest
			s.hi = geom.Set(s.hi, a, tlo)
			s.srf[sideIndex(a, true)] = t.srf[sideIndex(a, false)]
			out = append(out, s)
			rest.lo = geom.Set(rest.lo, a, tlo)
			rest.srf[sideIndex(a, false)] = t.srf[sideIndex(a, false)]
		}
		if thi < chi {
			s := rest
			s.lo = geom.Set(s.lo, a, thi)
			s.srf[sideIndex(a, false)] = t.srf[sideIndex(a, true)]
			out = append(out, s)
			rest.hi = geom.Set(rest.hi, a, thi)
			rest.srf[sideIndex(a, true)] = t.srf[sideIndex(a, true)]
		}
	}
	return out
}

// intersectOne returns c ∩ t. Each side is carried by the box that
// bounds it, c winning ties.
func intersectOne(c, t cuboid) (cuboid, bool) {
	if overlapVolume(c.box(), t.box()) <= 0 {
		return cuboid{}, false
	}
	r := c
	for a := geom.X; a <= geom.Z; a++ {
		clo, chi := c.span(a)
		tlo, thi := t.span(a)
		if tlo > clo {
			r.lo = geom.Set(r.lo, a, tlo)
			r.srf[sideIndex(a, false)] = t.srf[sideIndex(a, false)]
		}
		if thi < chi {
			r.hi = geom.Set(r.hi, a, thi)
			r.srf[sideIndex(a, true)] = t.srf[sideIndex(a, true)]
		}
	}
	return r, true
}

func subtract(cells, tools []cuboid) []cuboid {
	for _, t := range tools {
		var next []cuboid
		for _, c := range cells {
			next = append(next, subtractOne(c, t)...)
		}
		cells = next
	}
	return cells
}

func intersect(cells, tools []cuboid) []cuboid {
	var out []cuboid
	for _, c := range cells {
		for _, t := range tools {
			if r, ok := intersectOne(c, t); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

// union returns a ∪ b as disjoint boxes.
func union(a, b []cuboid) []cuboid {
	out := append([]cuboid(nil), a...)
	for _, t := range b {
		out = append(out, subtract([]cuboid{t}, out)...)
	}
	return out
}

// snap moves every coordinate of tools lying within fuzz of a coordinate
// of ref onto it, so nearly coincident faces become coincident.
func snap(tools, ref []cuboid, fuzz float64) []cuboid {
	if fuzz <= 0 {
		return tools
	}
	var coords [3][]float64
	for _, c := range ref {
		for a := geom.X; a <= geom.Z; a++ {
			lo, hi := c.span(a)
			coords[a] = append(coords[a], lo, hi)
		}
	}
	for a := range coords {
		coords[a] = uniq(coords[a])
	}
	nearest := func(a geom.Axis, x float64) float64 {
		cs := coords[a]
		j := sort.SearchFloat64s(cs, x)
		best, bestD := x, fuzz
		for _, k := range []int{j - 1, j} {
			if k >= 0 && k < len(cs) {
				if d := math.Abs(cs[k] - x); d <= bestD {
					best, bestD = cs[k], d
				}
			}
		}
		return best
	}
	out := make([]cuboid, len(tools))
	for i, t := range tools {
		for a := geom.X; a <= geom.Z; a++ {
			lo, hi := t.span(a)
			t.lo = geom.Set(t.lo, a, nearest(a, lo))
			t.hi = geom.Set(t.hi, a, nearest(a, hi))
		}
		out[i] = t
	}
	return out
}

// dropDegenerate removes boxes without volume.
func dropDegenerate(cells []cuboid) []cuboid {
	out := cells[:0:0]
	for _, c := range cells {
		if c.box().Thickness() > 0 {
			out = append(out, c)
		}
	}
	return out
}

// mergeable reports whether a and b together form a box, and along
// which axis they meet.
func mergeable(a, b cuboid) (geom.Axis, bool) {
	for ax := geom.X; ax <= geom.Z; ax++ {
		alo, ahi := a.span(ax)
		blo, bhi := b.span(ax)
		if ahi != blo && bhi != alo {
			continue
		}
		same := true
		for o := geom.X; o <= geom.Z; o++ {
			if o == ax {
				continue
			}
			al, ah := a.span(o)
			bl, bh := b.span(o)
			if al != bl || ah != bh {
				same = false
				break
			}
		}
		if same {
			return ax, true
		}
	}
	return 0, false
}

// merge greedily combines boxes that together form a box. The result
// does not depend on how often merge is applied.
func merge(cells []cuboid) []cuboid {
	out := append([]cuboid(nil), cells...)
	for changed := true; changed; {
		changed = false
	scan:
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); j++ {
				ax, ok := mergeable(out[i], out[j])
				if !ok {
					continue
				}
				a, b := out[i], out[j]
				if geom.Get(b.lo, ax) < geom.Get(a.lo, ax) {
					a, b = b, a
				}
				m := a
				m.hi = geom.Set(m.hi, ax, geom.Get(b.hi, ax))
				m.srf[sideIndex(ax, true)] = b.srf[sideIndex(ax, true)]
				out[i] = m
				out = append(out[:j], out[j+1:]...)
				changed = true
				break scan
			}
		}
	}
	return out
}

// contact reports whether a and b share a patch of a side with positive
// area, returning the axis and level of the shared plane.
func contact(a, b cuboid) (geom.Axis, float64, bool) {
	for ax := geom.X; ax <= geom.Z; ax++ {
		alo, ahi := a.span(ax)
		blo, bhi := b.span(ax)
		var level float64
		switch {
		case ahi == blo:
			level = ahi
		case bhi == alo:
			level = alo
		default:
			continue
		}
		ok := true
		for o := geom.X; o <= geom.Z; o++ {
			if o == ax {
				continue
			}
			al, ah := a.span(o)
			bl, bh := b.span(o)
			if math.Min(ah, bh)-math.Max(al, bl) <= 0 {
				ok = false
				break
			}
		}
		if ok {
			return ax, level, true
		}
	}
	return 0, 0, false
}

// components groups boxes connected through shared sides. When blocked
// is set, contacts for which it returns true do not connect.
func components(cells []cuboid, blocked func(a, b cuboid, ax geom.Axis, level float64) bool) [][]cuboid {
	parent := make([]int, len(cells))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range cells {
		for j := i + 1; j < len(cells); j++ {
			ax, level, ok := contact(cells[i], cells[j])
			if !ok || (blocked != nil && blocked(cells[i], cells[j], ax, level)) {
				continue
			}
			parent[find(i)] = find(j)
		}
	}
	groups := make(map[int]int)
	var out [][]cuboid
	for i, c := range cells {
		r := find(i)
		g, ok := groups[r]
		if !ok {
			g = len(out)
			groups[r] = g
			out = append(out, nil)
		}
		out[g] = append(out[g], c)
	}
	return out
}

// result turns a set of boxes into a solid, a compound of solids for
// disconnected pieces, or an empty compound.
func result(cells []cuboid) kernel.Shape {
	cells = dropDegenerate(cells)
	if len(cells) == 0 {
		return &Compound{}
	}
	comps := components(cells, nil)
	if len(comps) == 1 {
		return newSolid(comps[0])
	}
	c := &Compound{}
	for _, g := range comps {
		c.parts = append(c.parts, newSolid(g))
	}
	return c
}

func cellsVolume(cells []cuboid) float64 {
	var v float64
	for _, c := range cells {
		v += c.volume()
	}
	return v
}
