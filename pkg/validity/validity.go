// Package validity computes the secondary signals the boolean engine uses
// to judge kernel output: feature sizes, manifoldness and operand
// relevance. None of the functions modify their input.
package validity

import (
	"math"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
)

// MinEdgeLength returns the length of the shortest edge of s, or +Inf if
// s has no edges.
func MinEdgeLength(k kernel.Kernel, s kernel.Shape) float64 {
	m := math.Inf(1)
	for _, e := range k.Explore(s, kernel.KindEdge) {
		m = math.Min(m, k.Curve(e).Length())
	}
	return m
}

// MinVertexEdgeDistance returns the smallest distance between a vertex
// and an edge not bounded by it. Distances below lo count as
// coincidence and are ignored; edges farther than hi are not searched.
// The result is at most hi.
func MinVertexEdgeDistance(k kernel.Kernel, s kernel.Shape, lo, hi float64) float64 {
	edges := k.Explore(s, kernel.KindEdge)
	if len(edges) == 0 {
		return hi
	}
	idx := NewIndex(k, edges, 0)
	incident := k.Ancestors(s, kernel.KindVertex, kernel.KindEdge)

	best := hi
	for _, v := range k.Explore(s, kernel.KindVertex) {
		p := k.Point(v)
		own := make(map[kernel.Shape]bool)
		for _, e := range incident[v] {
			own[e] = true
		}
		for _, e := range idx.Near(geom.Box{Min: p, Max: p}.Enlarge(hi)) {
			if own[e] {
				continue
			}
			c := k.Curve(e)
			var d float64
			if c.IsLinear() {
				d = geom.SegmentDistance(p, c.Start, c.End)
			} else {
				d = k.Distance(v, e)
			}
			if d >= lo && d < best {
				best = d
			}
		}
	}
	return best
}

// MinFaceFaceDistance returns the smallest distance between two faces
// of s that share no vertex, searching up to hi. The result is at most
// hi.
func MinFaceFaceDistance(k kernel.Kernel, s kernel.Shape, hi float64) float64 {
	faces := k.Explore(s, kernel.KindFace)
	if len(faces) < 2 {
		return hi
	}
	order := make(map[kernel.Shape]int, len(faces))
	verts := make(map[kernel.Shape]map[kernel.Shape]bool, len(faces))
	for i, f := range faces {
		order[f] = i
		vs := make(map[kernel.Shape]bool)
		for _, v := range k.Explore(f, kernel.KindVertex) {
			vs[v] = true
		}
		verts[f] = vs
	}
	adjacent := func(f, g kernel.Shape) bool {
		for v := range verts[f] {
			if verts[g][v] {
				return true
			}
		}
		return false
	}

	idx := NewIndex(k, faces, hi)
	best := hi
	for _, f := range faces {
		for _, g := range idx.Near(k.BoundingBox(f)) {
			if order[g] <= order[f] || adjacent(f, g) {
				continue
			}
			if d := k.Distance(f, g); d < best {
				best = d
			}
		}
	}
	return best
}

// IsManifold reports whether every edge of s bounds exactly two faces.
// Compounds and solids are manifold when all their parts are; an empty
// compound is manifold.
func IsManifold(k kernel.Kernel, s kernel.Shape) bool {
	switch s.Kind() {
	case kernel.KindCompound, kernel.KindSolid:
		for _, c := range k.Children(s) {
			if !IsManifold(k, c) {
				return false
			}
		}
		return true
	}
	for _, fs := range k.Ancestors(s, kernel.KindEdge, kernel.KindFace) {
		if len(fs) != 2 {
			return false
		}
	}
	return true
}

// FaceCount returns the number of distinct faces of s.
func FaceCount(k kernel.Kernel, s kernel.Shape) int {
	return kernel.Count(k, s, kernel.KindFace)
}

// EliminateDisjoint drops the operands whose bounding boxes, enlarged
// by fuzz, do not meet the enlarged bounding box of a.
func EliminateDisjoint(k kernel.Kernel, a kernel.Shape, bs []kernel.Shape, fuzz float64) ([]kernel.Shape, int) {
	ab := k.BoundingBox(a).Enlarge(fuzz)
	kept := make([]kernel.Shape, 0, len(bs))
	for _, b := range bs {
		if ab.Overlaps(k.BoundingBox(b).Enlarge(fuzz)) {
			kept = append(kept, b)
		}
	}
	return kept, len(bs) - len(kept)
}

// EliminateTouching drops the operands that only touch a: along some
// axis on which both have extent, their bounding boxes share no more
// than fuzz.
func EliminateTouching(k kernel.Kernel, a kernel.Shape, bs []kernel.Shape, fuzz float64) ([]kernel.Shape, int) {
	ab := k.BoundingBox(a)
	kept := make([]kernel.Shape, 0, len(bs))
	for _, b := range bs {
		if !Touching(ab, k.BoundingBox(b), fuzz) {
			kept = append(kept, b)
		}
	}
	return kept, len(bs) - len(kept)
}

// Touching reports whether the boxes a and b meet in a region thinner
// than fuzz along an axis on which both are thicker than fuzz.
func Touching(a, b geom.Box, fuzz float64) bool {
	i := a.Intersect(b)
	sa, sb := a.Size(), b.Size()
	for ax := geom.X; ax <= geom.Z; ax++ {
		if geom.Get(sa, ax) <= fuzz || geom.Get(sb, ax) <= fuzz {
			continue
		}
		if geom.Get(i.Max, ax)-geom.Get(i.Min, ax) <= fuzz {
			return true
		}
	}
	return false
}
