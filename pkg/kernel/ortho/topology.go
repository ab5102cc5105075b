package ortho

import (
	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
)

type solidTopology struct {
	shell *Shell
}

func (s *Solid) topology() *solidTopology {
	s.once.Do(func() { s.topo = buildTopology(s) })
	return s.topo
}

type planeKey struct {
	axis  geom.Axis
	level float64
	sign  int
}

// buildTopology derives the boundary of a solid: one face for every grid
// rectangle separating a filled cell from an empty one.
func buildTopology(s *Solid) *solidTopology {
	var vals [3][]float64
	for _, c := range s.cells {
		for a := geom.X; a <= geom.Z; a++ {
			lo, hi := c.span(a)
			vals[a] = append(vals[a], lo, hi)
		}
	}
	g := newGrid(vals)
	owner := make([]int, g.size())
	for ci, c := range s.cells {
		g.eachIn(c.box(), func(i [3]int) { owner[g.id(i)] = ci + 1 })
	}
	at := func(i [3]int) int {
		if !g.inside(i) {
			return 0
		}
		return owner[g.id(i)]
	}

	planes := make(map[planeKey]*kernel.Surface)
	p := newPool()
	sh := &Shell{}
	for a := geom.X; a <= geom.Z; a++ {
		u, v := uAxis(a), vAxis(a)
		for lv := 0; lv <= g.n[a]; lv++ {
			for iv := 0; iv < g.n[v]; iv++ {
				for iu := 0; iu < g.n[u]; iu++ {
					var i [3]int
					i[a], i[u], i[v] = lv, iu, iv
					below, above := at(step(i, a, -1)), at(i)
					if (below != 0) == (above != 0) {
						continue
					}
					sign := 1
					var srf *kernel.Surface
					if below != 0 {
						srf = s.cells[below-1].srf[sideIndex(a, true)]
					} else {
						sign = -1
						srf = s.cells[above-1].srf[sideIndex(a, false)]
					}
					level := g.c[a][lv]
					if srf == nil {
						key := planeKey{a, level, sign}
						if srf = planes[key]; srf == nil {
							srf = planeFor(a, level, sign)
							planes[key] = srf
						}
					}
					if s.reversed {
						sign = -sign
					}
					sh.faces = append(sh.faces, newFace(p, a, level, g.cellFaceRect(a, i), sign, srf))
				}
			}
		}
	}
	return &solidTopology{shell: sh}
}

// Children implements kernel.Topology.
func (k *Kernel) Children(s kernel.Shape) []kernel.Shape {
	switch s := s.(type) {
	case *Compound:
		return append([]kernel.Shape(nil), s.parts...)
	case *Solid:
		return []kernel.Shape{s.topology().shell}
	case *Shell:
		out := make([]kernel.Shape, len(s.faces))
		for i, f := range s.faces {
			out[i] = f
		}
		return out
	case *Face:
		return []kernel.Shape{s.edges[0], s.edges[1], s.edges[2], s.edges[3]}
	case *Edge:
		return []kernel.Shape{s.verts[0], s.verts[1]}
	}
	return nil
}

// walk visits s and its sub-shapes depth first, skipping the sub-shapes
// of anything for which visit returns false.
func (k *Kernel) walk(s kernel.Shape, visit func(kernel.Shape) bool) {
	if s == nil || !visit(s) {
		return
	}
	for _, c := range k.Children(s) {
		k.walk(c, visit)
	}
}

// Explore implements kernel.Topology.
func (k *Kernel) Explore(s kernel.Shape, kind kernel.Kind) []kernel.Shape {
	return k.ExploreFree(s, kind, -1)
}

// ExploreFree implements kernel.Topology.
func (k *Kernel) ExploreFree(s kernel.Shape, kind, avoid kernel.Kind) []kernel.Shape {
	var out []kernel.Shape
	seen := make(map[kernel.Shape]bool)
	k.walk(s, func(x kernel.Shape) bool {
		if x.Kind() == avoid {
			return false
		}
		if x.Kind() == kind && !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
		return x.Kind() < kind || x.Kind() == kernel.KindCompound
	})
	return out
}

// Ancestors implements kernel.Topology.
func (k *Kernel) Ancestors(s kernel.Shape, kind, anc kernel.Kind) map[kernel.Shape][]kernel.Shape {
	m := make(map[kernel.Shape][]kernel.Shape)
	for _, a := range k.Explore(s, anc) {
		for _, x := range k.Explore(a, kind) {
			m[x] = append(m[x], a)
		}
	}
	return m
}

// IsClosed implements kernel.Topology: every edge of the shell bounds an
// even, non-zero number of its faces.
func (k *Kernel) IsClosed(shell kernel.Shape) bool {
	var faces []*Face
	switch s := shell.(type) {
	case *Shell:
		faces = s.faces
	case *Solid:
		faces = s.topology().shell.faces
	default:
		return false
	}
	if len(faces) == 0 {
		return false
	}
	count := make(map[*Edge]int)
	for _, f := range faces {
		for _, e := range f.edges {
			count[e]++
		}
	}
	for _, n := range count {
		if n%2 != 0 {
			return false
		}
	}
	return true
}

// faces returns the ortho faces of s.
func (k *Kernel) faces(s kernel.Shape) []*Face {
	var out []*Face
	for _, f := range k.Explore(s, kernel.KindFace) {
		out = append(out, f.(*Face))
	}
	return out
}

func (k *Kernel) solids(s kernel.Shape) []*Solid {
	var out []*Solid
	for _, x := range k.Explore(s, kernel.KindSolid) {
		out = append(out, x.(*Solid))
	}
	return out
}
