// Package ortho is an exact in-memory kernel for orthogonal polyhedra:
// solids that are unions of axis-aligned boxes, bounded by axis-aligned
// rectangular faces. It implements kernel.Kernel for that restricted
// domain so the conversion pipeline can be run and tested without a
// native CAD kernel. Curved or oblique geometry is rejected with
// ErrNotOrthogonal.
//
// Solids are stored as lists of interior-disjoint boxes. Their boundary
// topology is derived on demand on the grid spanned by the box
// coordinates: every face is a single grid rectangle, and edges and
// vertices are shared by coordinate, so a boundary edge with more than
// two faces is a real non-manifold edge.
package ortho

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface checks.
var (
	_ kernel.Kernel      = (*Kernel)(nil)
	_ kernel.Tessellator = (*Kernel)(nil)
)

// ErrNotOrthogonal is returned for geometry outside the kernel's domain.
var ErrNotOrthogonal = errors.New("ortho: geometry is not axis-aligned")

// extent bounds half-spaces, which the kernel represents as very large
// boxes.
const extent = 1e7

// Fault is a failure the kernel can be told to simulate.
type Fault int

const (
	NoFault Fault = iota
	// FailBuild makes the boolean builder report that it is not done.
	FailBuild
	// NotAllowed fails with kernel.AlertNotAllowed.
	NotAllowed
	// SelfIntersect succeeds but raises kernel.AlertSelfIntersection.
	SelfIntersect
	// Corrupt succeeds with a result that fails the validity analysis.
	Corrupt
	// Imprint succeeds with the arguments untouched and the faces of the
	// tools added next to them.
	Imprint
)

// Kernel is the orthogonal kernel. The zero value is ready to use and
// safe for concurrent use once its hooks are set.
type Kernel struct {
	// BooleanFault, when set, is consulted before every Boolean call.
	BooleanFault func(op kernel.Op, fuzz float64) Fault

	booleans atomic.Int64
}

// New returns a kernel without fault injection.
func New() *Kernel {
	return &Kernel{}
}

// BooleanCalls returns how many times Boolean has been called.
func (k *Kernel) BooleanCalls() int64 {
	return k.booleans.Load()
}

// ---------------------------------------------------------------------------
// Shapes
// ---------------------------------------------------------------------------

// cuboid is one box of a solid. srf holds the carrier surface of each
// side, indexed by sideIndex.
type cuboid struct {
	lo, hi r3.Vec
	srf    [6]*kernel.Surface
}

func sideIndex(a geom.Axis, hi bool) int {
	if hi {
		return 2*int(a) + 1
	}
	return 2 * int(a)
}

func (c cuboid) box() geom.Box { return geom.Box{Min: c.lo, Max: c.hi} }

func (c cuboid) span(a geom.Axis) (float64, float64) {
	return geom.Get(c.lo, a), geom.Get(c.hi, a)
}

func (c cuboid) volume() float64 { return c.box().Volume() }

// Solid is a set of interior-disjoint boxes.
type Solid struct {
	cells    []cuboid
	reversed bool
	flaw     string

	once sync.Once
	topo *solidTopology
}

func (*Solid) Kind() kernel.Kind { return kernel.KindSolid }

func newSolid(cells []cuboid) *Solid {
	return &Solid{cells: cells}
}

// Shell is a set of faces.
type Shell struct {
	faces []*Face
}

func (*Shell) Kind() kernel.Kind { return kernel.KindShell }

// Face is an axis-aligned rectangle at level on axis. rect holds the
// ranges along the two other axes in cyclic order. sign is +1 when the
// face normal points along +axis.
type Face struct {
	axis  geom.Axis
	level float64
	rect  [2][2]float64
	sign  int
	srf   *kernel.Surface
	edges [4]*Edge
}

func (*Face) Kind() kernel.Kind { return kernel.KindFace }

// Edge is a straight segment.
type Edge struct {
	a, b  r3.Vec
	verts [2]*Vertex
}

func (*Edge) Kind() kernel.Kind { return kernel.KindEdge }

// Vertex is a point.
type Vertex struct {
	p r3.Vec
}

func (*Vertex) Kind() kernel.Kind { return kernel.KindVertex }

// Compound is an unordered collection of shapes.
type Compound struct {
	parts []kernel.Shape
	flaw  string
}

func (*Compound) Kind() kernel.Kind { return kernel.KindCompound }

// uAxis and vAxis are the in-plane axes of a face on axis a.
func uAxis(a geom.Axis) geom.Axis { return (a + 1) % 3 }
func vAxis(a geom.Axis) geom.Axis { return (a + 2) % 3 }

func (f *Face) point(u, v float64) r3.Vec {
	var p r3.Vec
	p = geom.Set(p, f.axis, f.level)
	p = geom.Set(p, uAxis(f.axis), u)
	return geom.Set(p, vAxis(f.axis), v)
}

func (f *Face) box() geom.Box {
	return geom.NewBox(f.point(f.rect[0][0], f.rect[1][0]), f.point(f.rect[0][1], f.rect[1][1]))
}

func (f *Face) area() float64 {
	return (f.rect[0][1] - f.rect[0][0]) * (f.rect[1][1] - f.rect[1][0])
}

func (f *Face) normal() r3.Vec {
	return r3.Scale(float64(f.sign), f.axis.Unit())
}

// ---------------------------------------------------------------------------
// Edge and vertex pools
// ---------------------------------------------------------------------------

// pool shares vertices and edges by coordinate.
type pool struct {
	verts map[r3.Vec]*Vertex
	edges map[[2]r3.Vec]*Edge
}

func newPool() *pool {
	return &pool{verts: make(map[r3.Vec]*Vertex), edges: make(map[[2]r3.Vec]*Edge)}
}

func (p *pool) vertex(v r3.Vec) *Vertex {
	if p == nil {
		return &Vertex{p: v}
	}
	if x, ok := p.verts[v]; ok {
		return x
	}
	x := &Vertex{p: v}
	p.verts[v] = x
	return x
}

func lessVec(a, b r3.Vec) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

func (p *pool) edge(a, b r3.Vec) *Edge {
	if lessVec(b, a) {
		a, b = b, a
	}
	if p == nil {
		return &Edge{a: a, b: b, verts: [2]*Vertex{{p: a}, {p: b}}}
	}
	key := [2]r3.Vec{a, b}
	if e, ok := p.edges[key]; ok {
		return e
	}
	e := &Edge{a: a, b: b, verts: [2]*Vertex{p.vertex(a), p.vertex(b)}}
	p.edges[key] = e
	return e
}

// newFace builds a face with edges from p; a nil pool gives the face
// edges of its own.
func newFace(p *pool, a geom.Axis, level float64, rect [2][2]float64, sign int, srf *kernel.Surface) *Face {
	f := &Face{axis: a, level: level, rect: rect, sign: sign, srf: srf}
	c00 := f.point(rect[0][0], rect[1][0])
	c10 := f.point(rect[0][1], rect[1][0])
	c11 := f.point(rect[0][1], rect[1][1])
	c01 := f.point(rect[0][0], rect[1][1])
	f.edges = [4]*Edge{p.edge(c00, c10), p.edge(c10, c11), p.edge(c11, c01), p.edge(c01, c00)}
	return f
}

// planeFor returns a fresh plane carrying the side of a box at level on
// axis a with outward normal sign.
func planeFor(a geom.Axis, level float64, sign int) *kernel.Surface {
	var o r3.Vec
	o = geom.Set(o, a, level)
	return kernel.PlaneFrame(o, r3.Scale(float64(sign), a.Unit()), uAxis(a).Unit())
}

// ---------------------------------------------------------------------------
// Builders outside the kernel interface
// ---------------------------------------------------------------------------

// Box returns the solid box spanned by two corners. Each side gets a
// plane of its own.
func (k *Kernel) Box(a, b r3.Vec) kernel.Shape {
	bb := geom.NewBox(a, b)
	return newSolid([]cuboid{boxCell(bb)})
}

// Boxes returns one solid made of several boxes, which must not overlap.
// Boxes that touch only along an edge give a non-manifold solid.
func (k *Kernel) Boxes(bs ...geom.Box) (kernel.Shape, error) {
	cells := make([]cuboid, 0, len(bs))
	for i, b := range bs {
		if b.Thickness() <= 0 {
			return nil, fmt.Errorf("ortho: box %d is degenerate", i)
		}
		for j := range cells {
			if overlapVolume(cells[j].box(), b) > 0 {
				return nil, fmt.Errorf("ortho: boxes %d and %d overlap", j, i)
			}
		}
		cells = append(cells, boxCell(b))
	}
	if len(cells) == 0 {
		return &Compound{}, nil
	}
	return newSolid(cells), nil
}

func boxCell(b geom.Box) cuboid {
	c := cuboid{lo: b.Min, hi: b.Max}
	for a := geom.X; a <= geom.Z; a++ {
		c.srf[sideIndex(a, false)] = planeFor(a, geom.Get(b.Min, a), -1)
		c.srf[sideIndex(a, true)] = planeFor(a, geom.Get(b.Max, a), 1)
	}
	return c
}

// Rect returns a free face covering the flat box b, which must have zero
// extent on exactly one axis. sign orients the normal along that axis.
func (k *Kernel) Rect(b geom.Box, sign int) (kernel.Shape, error) {
	s := b.Size()
	flat := -1
	for a := geom.X; a <= geom.Z; a++ {
		if geom.Get(s, a) == 0 {
			if flat >= 0 {
				return nil, fmt.Errorf("ortho: rectangle %v is degenerate", b)
			}
			flat = int(a)
		}
	}
	if flat < 0 {
		return nil, fmt.Errorf("ortho: rectangle %v is not flat", b)
	}
	if sign >= 0 {
		sign = 1
	} else {
		sign = -1
	}
	a := geom.Axis(flat)
	level := geom.Get(b.Min, a)
	rect := [2][2]float64{
		{geom.Get(b.Min, uAxis(a)), geom.Get(b.Max, uAxis(a))},
		{geom.Get(b.Min, vAxis(a)), geom.Get(b.Max, vAxis(a))},
	}
	return newFace(nil, a, level, rect, sign, planeFor(a, level, sign)), nil
}

// BoxFaces returns the six outward faces of a box. With shared set the
// faces share their edges, as faces read from one indexed face set do;
// otherwise every face has edges of its own and must be sewn.
func (k *Kernel) BoxFaces(a, b r3.Vec, shared bool) []kernel.Shape {
	bb := geom.NewBox(a, b)
	var p *pool
	if shared {
		p = newPool()
	}
	var faces []kernel.Shape
	for ax := geom.X; ax <= geom.Z; ax++ {
		rect := [2][2]float64{
			{geom.Get(bb.Min, uAxis(ax)), geom.Get(bb.Max, uAxis(ax))},
			{geom.Get(bb.Min, vAxis(ax)), geom.Get(bb.Max, vAxis(ax))},
		}
		lo, hi := geom.Get(bb.Min, ax), geom.Get(bb.Max, ax)
		faces = append(faces,
			newFace(p, ax, lo, rect, -1, planeFor(ax, lo, -1)),
			newFace(p, ax, hi, rect, 1, planeFor(ax, hi, 1)),
		)
	}
	return faces
}

// Compound implements kernel.Builder.
func (k *Kernel) Compound(parts ...kernel.Shape) kernel.Shape {
	c := &Compound{}
	for _, p := range parts {
		if p != nil {
			c.parts = append(c.parts, p)
		}
	}
	return c
}

// Shell implements kernel.Builder. Faces that are not ortho faces are
// ignored.
func (k *Kernel) Shell(faces ...kernel.Shape) kernel.Shape {
	sh := &Shell{}
	for _, f := range faces {
		if f, ok := f.(*Face); ok {
			sh.faces = append(sh.faces, f)
		}
	}
	return sh
}
