package ortho

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

const axisTol = 1e-12

// MakeFace implements kernel.Builder for planes whose frame is aligned
// with the coordinate axes.
func (k *Kernel) MakeFace(srf *kernel.Surface, u1, u2, v1, v2 float64) (kernel.Shape, error) {
	if srf == nil || !srf.IsPlanar() {
		return nil, fmt.Errorf("ortho: make face: %w", ErrNotOrthogonal)
	}
	a, ok := geom.DominantAxis(srf.Axis(), axisTol)
	if !ok {
		return nil, fmt.Errorf("ortho: make face: normal %v: %w", srf.Axis(), ErrNotOrthogonal)
	}
	if _, ok := geom.DominantAxis(srf.XDir(), axisTol); !ok {
		return nil, fmt.Errorf("ortho: make face: x direction %v: %w", srf.XDir(), ErrNotOrthogonal)
	}
	if u1 >= u2 || v1 >= v2 {
		return nil, fmt.Errorf("ortho: make face: empty parameter range [%g,%g]x[%g,%g]", u1, u2, v1, v2)
	}
	b := geom.NewBox(srf.Eval(u1, v1), srf.Eval(u2, v2))
	sign := 1
	if geom.Get(srf.Axis(), a) < 0 {
		sign = -1
	}
	level := geom.Get(srf.Origin(), a)
	b.Min = geom.Set(b.Min, a, level)
	b.Max = geom.Set(b.Max, a, level)
	return newFace(nil, a, level, projection(b, a), sign, srf), nil
}

// Prism implements kernel.Builder for sweeps along the face normal.
func (k *Kernel) Prism(s kernel.Shape, v r3.Vec) (kernel.Shape, error) {
	fs := k.faces(s)
	if len(fs) == 0 {
		return nil, errors.New("ortho: prism: no faces")
	}
	var cells []cuboid
	for _, f := range fs {
		a, ok := geom.DominantAxis(v, axisTol)
		if !ok || a != f.axis {
			return nil, fmt.Errorf("ortho: prism: direction %v: %w", v, ErrNotOrthogonal)
		}
		d := geom.Get(v, a)
		b := f.box()
		b.Max = geom.Set(b.Max, a, f.level+d)
		b = geom.NewBox(b.Min, b.Max)
		c := boxCell(b)
		c.srf[sideIndex(a, d < 0)] = f.srf
		cells = append(cells, c)
	}
	return result(cells), nil
}

// HalfSpace implements kernel.Builder.
func (k *Kernel) HalfSpace(face kernel.Shape, ref r3.Vec) (kernel.Shape, error) {
	f, ok := face.(*Face)
	if !ok {
		return nil, fmt.Errorf("ortho: half-space needs a face, got %s", face.Kind())
	}
	r := geom.Get(ref, f.axis)
	if r == f.level {
		return nil, errors.New("ortho: half-space reference lies on the face")
	}
	b := geom.Box{Min: r3.Vec{X: -extent, Y: -extent, Z: -extent}, Max: r3.Vec{X: extent, Y: extent, Z: extent}}
	below := r < f.level
	if below {
		b.Max = geom.Set(b.Max, f.axis, f.level)
	} else {
		b.Min = geom.Set(b.Min, f.axis, f.level)
	}
	c := boxCell(b)
	c.srf[sideIndex(f.axis, below)] = f.srf
	return newSolid([]cuboid{c}), nil
}

// MakeSolid implements kernel.Builder. An open shell bounds the part of
// its own bounding box lying behind its faces, which is how a folded
// layer boundary acts as a splitting tool. When every face of the shell
// faces into that box, the solid is everything outside the region the
// faces enclose, clipped to the half-space extent.
func (k *Kernel) MakeSolid(shell kernel.Shape) (kernel.Shape, error) {
	fs := k.faces(shell)
	if len(fs) == 0 {
		return nil, errors.New("ortho: make solid: empty shell")
	}
	return k.solidFromFaces(fs, k.IsClosed(shell))
}

// SolidFromShell implements kernel.Builder. The shell must be closed;
// its face orientation is kept, so a shell facing inward gives a solid
// that classifies the point at infinity as inside.
func (k *Kernel) SolidFromShell(shell kernel.Shape, tol float64) (kernel.Shape, error) {
	if s, ok := shell.(*Solid); ok {
		return s, nil
	}
	if !k.IsClosed(shell) {
		return nil, errors.New("ortho: solid from shell: shell is not closed")
	}
	return k.solidFromFaces(k.faces(shell), true)
}

// voxels classifies the cells of the grid spanned by a set of faces.
type voxels struct {
	g      grid
	faces  []*Face
	walls  map[wallKey]*Face
	filled []bool
	padded bool
}

type wallKey struct {
	axis geom.Axis
	cell [3]int // the cell above the wall
}

func newVoxels(fs []*Face, pad bool) *voxels {
	var vals [3][]float64
	for _, f := range fs {
		b := f.box()
		for a := geom.X; a <= geom.Z; a++ {
			vals[a] = append(vals[a], geom.Get(b.Min, a), geom.Get(b.Max, a))
		}
	}
	if pad {
		for a := range vals {
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, x := range vals[a] {
				lo, hi = math.Min(lo, x), math.Max(hi, x)
			}
			vals[a] = append(vals[a], lo-1, hi+1)
		}
	}
	vx := &voxels{g: newGrid(vals), faces: fs, walls: make(map[wallKey]*Face), padded: pad}
	for _, f := range fs {
		g := vx.g
		u, v := uAxis(f.axis), vAxis(f.axis)
		lv := g.index(f.axis, f.level)
		for iu := g.index(u, f.rect[0][0]); iu < g.index(u, f.rect[0][1]); iu++ {
			for iv := g.index(v, f.rect[1][0]); iv < g.index(v, f.rect[1][1]); iv++ {
				var i [3]int
				i[f.axis], i[u], i[v] = lv, iu, iv
				vx.walls[wallKey{f.axis, i}] = f
			}
		}
	}
	return vx
}

// flood marks the cells reachable from the seeds without crossing a
// face and returns whether a padding cell was reached.
func (vx *voxels) flood(seeds [][3]int) ([]bool, bool) {
	g := vx.g
	seen := make([]bool, g.size())
	queue := make([][3]int, 0, len(seeds))
	for _, s := range seeds {
		if g.inside(s) && !seen[g.id(s)] {
			seen[g.id(s)] = true
			queue = append(queue, s)
		}
	}
	escaped := false
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if vx.padded && vx.onPad(c) {
			escaped = true
		}
		for a := geom.X; a <= geom.Z; a++ {
			for _, d := range []int{-1, 1} {
				n := step(c, a, d)
				if !g.inside(n) || seen[g.id(n)] {
					continue
				}
				wall := c
				if d > 0 {
					wall = n
				}
				if vx.walls[wallKey{a, wall}] != nil {
					continue
				}
				seen[g.id(n)] = true
				queue = append(queue, n)
			}
		}
	}
	return seen, escaped
}

func (vx *voxels) onPad(i [3]int) bool {
	for a := 0; a < 3; a++ {
		if i[a] == 0 || i[a] == vx.g.n[a]-1 {
			return true
		}
	}
	return false
}

// behind returns the cells on the material side of every face.
func (vx *voxels) behind() [][3]int {
	var seeds [][3]int
	for w, f := range vx.walls {
		c := w.cell
		if f.sign > 0 {
			c = step(c, w.axis, -1)
		}
		seeds = append(seeds, c)
	}
	return seeds
}

// front returns the cells on the outer side of every face.
func (vx *voxels) front() [][3]int {
	var seeds [][3]int
	for w, f := range vx.walls {
		c := w.cell
		if f.sign < 0 {
			c = step(c, w.axis, -1)
		}
		seeds = append(seeds, c)
	}
	return seeds
}

// outsideOf returns the extent box less the cells reachable from the
// outer side of the faces.
func (vx *voxels) outsideOf() []cuboid {
	enclosed, _ := vx.flood(vx.front())
	var hole []cuboid
	vx.g.each(func(i [3]int) {
		if enclosed[vx.g.id(i)] {
			hole = append(hole, vx.cell(i))
		}
	})
	if len(hole) == 0 {
		return nil
	}
	all := boxCell(geom.Box{
		Min: r3.Vec{X: -extent, Y: -extent, Z: -extent},
		Max: r3.Vec{X: extent, Y: extent, Z: extent},
	})
	return subtract([]cuboid{all}, merge(hole))
}

func (k *Kernel) solidFromFaces(fs []*Face, closed bool) (kernel.Shape, error) {
	vx := newVoxels(fs, closed)
	filled, escaped := vx.flood(vx.behind())
	reversed := false
	if escaped {
		// The faces point inward: the material is the bounded region.
		outside := filled
		filled = make([]bool, len(outside))
		vx.g.each(func(i [3]int) {
			filled[vx.g.id(i)] = !outside[vx.g.id(i)] && !vx.onPad(i)
		})
		reversed = true
	}
	var cells []cuboid
	vx.g.each(func(i [3]int) {
		if filled[vx.g.id(i)] && !(vx.padded && vx.onPad(i)) {
			cells = append(cells, vx.cell(i))
		}
	})
	if len(cells) == 0 && !closed {
		cells = vx.outsideOf()
	}
	if len(cells) == 0 {
		return nil, errors.New("ortho: shell bounds no volume")
	}
	s := newSolid(merge(cells))
	s.reversed = reversed
	return s, nil
}

// cell returns the box of grid cell i with the surfaces of the faces
// lying on its sides.
func (vx *voxels) cell(i [3]int) cuboid {
	c := cuboid{}
	b := vx.g.cellBox(i)
	c.lo, c.hi = b.Min, b.Max
	for a := geom.X; a <= geom.Z; a++ {
		if f := vx.walls[wallKey{a, i}]; f != nil {
			c.srf[sideIndex(a, false)] = f.srf
		}
		if f := vx.walls[wallKey{a, step(i, a, 1)}]; f != nil {
			c.srf[sideIndex(a, true)] = f.srf
		}
	}
	return c
}

// Reverse implements kernel.Builder.
func (k *Kernel) Reverse(s kernel.Shape) kernel.Shape {
	switch s := s.(type) {
	case *Solid:
		r := newSolid(s.cells)
		r.reversed, r.flaw = !s.reversed, s.flaw
		return r
	case *Face:
		r := *s
		r.sign = -s.sign
		return &r
	case *Shell:
		r := &Shell{}
		for _, f := range s.faces {
			r.faces = append(r.faces, k.Reverse(f).(*Face))
		}
		return r
	case *Compound:
		r := &Compound{flaw: s.flaw}
		for _, p := range s.parts {
			r.parts = append(r.parts, k.Reverse(p))
		}
		return r
	}
	return s
}

// Transform implements kernel.Builder for transforms that map the
// coordinate axes onto coordinate axes: translations, axis permutations,
// mirrors and non-uniform scaling.
func (k *Kernel) Transform(s kernel.Shape, t geom.Transform) (kernel.Shape, error) {
	if t.IsIdentity() {
		return s, nil
	}
	var perm [3]geom.Axis
	var flip [3]bool
	for a := geom.X; a <= geom.Z; a++ {
		v := t.ApplyVector(a.Unit())
		b, ok := geom.DominantAxis(v, axisTol)
		if !ok {
			return nil, fmt.Errorf("ortho: transform: %w", ErrNotOrthogonal)
		}
		perm[a], flip[a] = b, geom.Get(v, b) < 0
	}
	tr := &transformer{t: t, perm: perm, flip: flip,
		surfaces: make(map[*kernel.Surface]*kernel.Surface),
		edges:    make(map[*Edge]*Edge),
		verts:    make(map[*Vertex]*Vertex)}
	return tr.shape(s), nil
}

type transformer struct {
	t        geom.Transform
	perm     [3]geom.Axis
	flip     [3]bool
	surfaces map[*kernel.Surface]*kernel.Surface
	edges    map[*Edge]*Edge
	verts    map[*Vertex]*Vertex
}

func (tr *transformer) surface(s *kernel.Surface) *kernel.Surface {
	if s == nil {
		return nil
	}
	if r, ok := tr.surfaces[s]; ok {
		return r
	}
	o := tr.t.Apply(s.Origin())
	ax := r3.Unit(tr.t.ApplyVector(s.Axis()))
	xd := tr.t.ApplyVector(s.XDir())
	var r *kernel.Surface
	switch {
	case s.IsPlanar():
		r = kernel.PlaneFrame(o, ax, r3.Unit(xd))
	case s.IsCylindrical():
		r = kernel.Cylinder(o, ax, r3.Unit(xd), s.Radius()*r3.Norm(xd))
	default:
		r = kernel.Other()
	}
	tr.surfaces[s] = r
	return r
}

func (tr *transformer) vertex(v *Vertex) *Vertex {
	if r, ok := tr.verts[v]; ok {
		return r
	}
	r := &Vertex{p: tr.t.Apply(v.p)}
	tr.verts[v] = r
	return r
}

func (tr *transformer) edge(e *Edge) *Edge {
	if r, ok := tr.edges[e]; ok {
		return r
	}
	a, b := tr.vertex(e.verts[0]), tr.vertex(e.verts[1])
	if lessVec(b.p, a.p) {
		a, b = b, a
	}
	r := &Edge{a: a.p, b: b.p, verts: [2]*Vertex{a, b}}
	tr.edges[e] = r
	return r
}

func (tr *transformer) face(f *Face) *Face {
	b := tr.t.ApplyBox(f.box())
	a := tr.perm[f.axis]
	sign := f.sign
	if tr.flip[f.axis] {
		sign = -sign
	}
	r := &Face{axis: a, level: geom.Get(b.Min, a), rect: projection(b, a), sign: sign, srf: tr.surface(f.srf)}
	for i, e := range f.edges {
		r.edges[i] = tr.edge(e)
	}
	return r
}

func (tr *transformer) cells(cs []cuboid) []cuboid {
	out := make([]cuboid, len(cs))
	for i, c := range cs {
		b := tr.t.ApplyBox(c.box())
		n := cuboid{lo: b.Min, hi: b.Max}
		for a := geom.X; a <= geom.Z; a++ {
			for _, hi := range []bool{false, true} {
				n.srf[sideIndex(tr.perm[a], hi != tr.flip[a])] = tr.surface(c.srf[sideIndex(a, hi)])
			}
		}
		out[i] = n
	}
	return out
}

func (tr *transformer) shape(s kernel.Shape) kernel.Shape {
	switch s := s.(type) {
	case *Solid:
		r := newSolid(tr.cells(s.cells))
		r.reversed, r.flaw = s.reversed, s.flaw
		return r
	case *Shell:
		r := &Shell{}
		for _, f := range s.faces {
			r.faces = append(r.faces, tr.face(f))
		}
		return r
	case *Face:
		return tr.face(s)
	case *Edge:
		return tr.edge(s)
	case *Vertex:
		return tr.vertex(s)
	case *Compound:
		r := &Compound{flaw: s.flaw}
		for _, p := range s.parts {
			r.parts = append(r.parts, tr.shape(p))
		}
		return r
	}
	return s
}
