// Package layerset slices element bodies into one solid per material
// layer. Layer boundaries are surfaces, or folded groups of surfaces,
// parallel to the element's reference; each slice takes the style of
// the layer it belongs to.
package layerset

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/assembly"
	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/geomerr"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// coincident is the offset below which a layer boundary is taken to be
// the reference surface itself.
const coincident = 1e-7

var (
	// ErrTooFewSurfaces is returned when there are fewer than three
	// surfaces, that is fewer than two layers.
	ErrTooFewSurfaces = errors.New("layerset: at least three surfaces are needed")
	// ErrNothingSliced is returned when no item of a body could be sliced.
	ErrNothingSliced = errors.New("layerset: no item could be sliced")
)

// Surfaces derives the layer boundary surfaces of ls and the style of
// each layer. There is one surface more than there are layers; layer i
// lies between surfaces i and i+1.
func Surfaces(ls *element.LayerSpec) ([]*kernel.Surface, []*element.Style, error) {
	ref, err := reference(ls)
	if err != nil {
		return nil, nil, err
	}

	offset := ls.Offset
	surfaces := []*kernel.Surface{ref.Offset(-offset)}
	styles := make([]*element.Style, 0, len(ls.Layers))
	for _, l := range ls.Layers {
		t := l.Thickness
		if ls.Sense == element.SenseNegative {
			t = -t
		}
		offset += t
		if math.Abs(offset) < coincident {
			surfaces = append(surfaces, ref)
		} else {
			surfaces = append(surfaces, ref.Offset(-offset))
		}
		styles = append(styles, l.Style)
	}

	if ls.Sense == element.SensePositive {
		surfaces = lo.Reverse(surfaces)
		styles = lo.Reverse(styles)
	}
	return surfaces, styles, nil
}

// reference returns the surface the layers are measured from. An axis
// line gives the plane through its start whose normal is the line
// direction crossed with +Z; an axis circle gives the cylinder through
// it.
func reference(ls *element.LayerSpec) (*kernel.Surface, error) {
	if ls.Axis == nil {
		if ls.Reference == nil {
			return nil, errors.New("layerset: no reference surface")
		}
		return ls.Reference, nil
	}
	c := ls.Axis
	switch {
	case c.IsLinear():
		dir := c.Direction()
		if r3.Norm(dir) == 0 {
			return nil, errors.New("layerset: degenerate axis line")
		}
		return kernel.Plane(c.Start, r3.Cross(dir, r3.Vec{Z: 1})), nil
	case c.IsCircular():
		return kernel.Cylinder(c.Origin, c.Axis, r3.Sub(c.Start, c.Origin), c.Radius), nil
	}
	return nil, errors.New("layerset: unsupported axis curve")
}

// Slicer cuts bodies into layers with a kernel.
type Slicer struct {
	k   kernel.Kernel
	cfg config.Settings
	log diag.Logger
	asm *assembly.Assembler

	// Widen enlarges the parameter range of every projected surface.
	Widen float64
}

// New returns a Slicer.
func New(k kernel.Kernel, cfg config.Settings, log diag.Logger) *Slicer {
	return &Slicer{k: k, cfg: cfg, log: log, asm: assembly.New(k, cfg, log)}
}

// Apply slices every item by the layer surfaces. With three surfaces
// each item is split in two by the middle one; items that cannot be
// split are left out. With more, every item is split by all interior
// surfaces at once and any failure fails the whole body.
//
// Slices are returned in layer order per item, in the element frame,
// and take the style of their layer, or the item style if the layer has
// none.
func (s *Slicer) Apply(items []element.Item, surfaces []*kernel.Surface, styles []*element.Style) ([]element.Item, error) {
	if len(surfaces) < 3 {
		return nil, ErrTooFewSurfaces
	}

	var out []element.Item
	for _, it := range items {
		if it.Shape == nil {
			continue
		}
		shape, err := s.inElementFrame(it)
		if err != nil {
			return nil, err
		}

		if len(surfaces) == 3 {
			front, back, err := s.SplitBySurface(shape, surfaces[1])
			if err != nil {
				s.log.Warningf("Unable to split item %s by layer surface: %v", it.ID, err)
				continue
			}
			out = appendSides(out, it, front, back, styles)
			continue
		}

		solid := s.asm.EnsureFitForSubtraction(shape)
		var operands []kernel.Shape
		for _, srf := range surfaces[1 : len(surfaces)-1] {
			face, err := s.face(srf, solid)
			if err != nil {
				return nil, err
			}
			operands = append(operands, face)
		}
		slices, err := s.split(solid, operands)
		if err != nil {
			return nil, err
		}
		if len(slices) != len(styles) {
			return nil, fmt.Errorf("layerset: item %s gave %d slices for %d layers", it.ID, len(slices), len(styles))
		}
		out = appendSlices(out, it, slices, styles)
	}
	if len(out) == 0 && len(items) > 0 {
		return nil, ErrNothingSliced
	}
	return out, nil
}

// ApplyFolded slices the items by groups of surfaces. A group of one
// surface is a single face; the surfaces of a larger group are trimmed
// against each other and sewn into one folded shell. One shell splits
// every item in two, several shells split every item by all of them at
// once.
func (s *Slicer) ApplyFolded(items []element.Item, groups [][]*kernel.Surface, styles []*element.Style) ([]element.Item, error) {
	shapes := make([]kernel.Shape, len(items))
	for i, it := range items {
		if it.Shape == nil {
			continue
		}
		shape, err := s.inElementFrame(it)
		if err != nil {
			return nil, err
		}
		shapes[i] = shape
	}
	present := lo.Compact(shapes)
	if len(present) == 0 {
		return nil, ErrNothingSliced
	}
	all := s.k.Compound(present...)

	var shells []kernel.Shape
	for _, g := range groups {
		sh, err := s.fold(g, all)
		if err != nil {
			return nil, err
		}
		if sh != nil {
			shells = append(shells, sh)
		}
	}

	var out []element.Item
	switch len(shells) {
	case 0:
		return nil, errors.New("layerset: no folded surface could be built")
	case 1:
		for i, it := range items {
			if it.Shape == nil {
				continue
			}
			front, back, err := s.SplitByShell(shapes[i], shells[0])
			if err != nil {
				s.log.Warningf("Unable to split item %s by folded layer: %v", it.ID, err)
				continue
			}
			out = appendSides(out, it, front, back, styles)
		}
	default:
		for i, it := range items {
			if it.Shape == nil {
				continue
			}
			solid := s.asm.EnsureFitForSubtraction(shapes[i])
			slices, err := s.split(solid, shells)
			if err != nil {
				return nil, err
			}
			if len(slices) != len(styles) {
				return nil, fmt.Errorf("layerset: item %s gave %d slices for %d layers", it.ID, len(slices), len(styles))
			}
			out = appendSlices(out, it, slices, styles)
		}
	}
	if len(out) == 0 {
		return nil, ErrNothingSliced
	}
	return out, nil
}

// fold builds the shell of one group. Surfaces that cannot be projected
// onto the input are left out; a group left empty gives no shell.
func (s *Slicer) fold(g []*kernel.Surface, input kernel.Shape) (kernel.Shape, error) {
	if len(g) == 1 {
		face, err := s.face(g[0], input)
		if err != nil {
			s.log.Debugf("Layer surface skipped: %v", err)
			return nil, nil
		}
		return s.k.Shell(face), nil
	}

	type piece struct {
		face kernel.Shape
		back r3.Vec
	}
	var pieces []piece
	for _, srf := range g {
		u1, u2, v1, v2, err := s.project(srf, input)
		if err == nil {
			var face kernel.Shape
			face, err = kernel.Call("make face", func() (kernel.Shape, error) {
				return s.k.MakeFace(srf, u1, u2, v1, v2)
			})
			if err == nil {
				pieces = append(pieces, piece{face: face, back: behind(srf, (u1+u2)/2, (v1+v2)/2)})
				continue
			}
		}
		s.log.Debugf("Layer surface skipped: %v", err)
	}
	if len(pieces) == 0 {
		return nil, nil
	}

	first, err := s.halfSpace(pieces[0].face, pieces[0].back)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(pieces); i++ {
		next, err := s.halfSpace(pieces[i].face, pieces[i].back)
		if err != nil {
			return nil, err
		}
		if f, ok := s.trim(pieces[0].face, next); ok {
			pieces[0].face = f
		}
		if f, ok := s.trim(pieces[i].face, first); ok {
			pieces[i].face = f
		}
	}

	faces := lo.Map(pieces, func(p piece, _ int) kernel.Shape { return p.face })
	sewn, err := kernel.Call("sew", func() (kernel.Shape, error) {
		return s.k.Sew(faces, s.cfg.Precision)
	})
	if err != nil {
		return nil, err
	}
	if sewn.Kind() != kernel.KindShell {
		s.log.Errorf("Expected shell type in layerset processing")
		return nil, fmt.Errorf("layerset: sewing a folded layer gave a %s", sewn.Kind())
	}
	return sewn, nil
}

// trim cuts the part of face lying in the half-space away, provided
// exactly one face remains.
func (s *Slicer) trim(face, halfSpace kernel.Shape) (kernel.Shape, bool) {
	res, err := kernel.Call("cut", func() (kernel.Shape, error) {
		r, _, err := s.k.Boolean(kernel.OpCut, []kernel.Shape{face}, []kernel.Shape{halfSpace}, s.cfg.Precision)
		return r, err
	})
	if err != nil {
		return nil, false
	}
	faces := s.k.Explore(res, kernel.KindFace)
	if len(faces) != 1 {
		return nil, false
	}
	return faces[0], true
}

func (s *Slicer) halfSpace(face kernel.Shape, ref r3.Vec) (kernel.Shape, error) {
	return kernel.Call("half-space", func() (kernel.Shape, error) {
		return s.k.HalfSpace(face, ref)
	})
}

// SplitBySurface splits input by the face of srf covering it. The back
// side is the part on the material side of the surface, opposite its
// normal.
func (s *Slicer) SplitBySurface(input kernel.Shape, srf *kernel.Surface) (front, back kernel.Shape, err error) {
	u1, u2, v1, v2, err := s.project(srf, input)
	if err != nil {
		return nil, nil, err
	}
	face, err := kernel.Call("make face", func() (kernel.Shape, error) {
		return s.k.MakeFace(srf, u1, u2, v1, v2)
	})
	if err != nil {
		return nil, nil, err
	}
	half, err := s.halfSpace(face, behind(srf, (u1+u2)/2, (v1+v2)/2))
	if err != nil {
		return nil, nil, err
	}
	return s.SplitByShell(input, half)
}

// SplitByShell splits input by a shell, which is made into a solid
// first, or by a solid. front is what lies outside the tool, back what
// lies inside. One side may come out empty and is then nil; the volumes
// of the sides must add up to that of the input.
func (s *Slicer) SplitByShell(input, tool kernel.Shape) (front, back kernel.Shape, err error) {
	var solid kernel.Shape
	switch tool.Kind() {
	case kernel.KindShell:
		solid, err = kernel.Call("make solid", func() (kernel.Shape, error) {
			return s.k.MakeSolid(tool)
		})
		if err != nil {
			return nil, nil, err
		}
	case kernel.KindSolid:
		solid = tool
	default:
		return nil, nil, fmt.Errorf("layerset: cannot split by a %s", tool.Kind())
	}
	solid = s.k.SetTolerance(solid, s.cfg.Precision)

	err = kernel.Guard("split", func() error {
		var err error
		front, back, err = s.k.CutCommon(input, solid)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if front, err = s.side(front); err != nil {
		return nil, nil, err
	}
	if back, err = s.side(back); err != nil {
		return nil, nil, err
	}
	switch {
	case front == nil && back == nil:
		return nil, nil, geomerr.Errorf(geomerr.ValidityRejected, "split", "both sides are empty")
	case front == nil || back == nil:
		s.log.Errorf("Null result obtained from layerset slicing")
	}

	whole := s.k.Volume(input)
	parts := s.volume(front) + s.volume(back)
	if math.Abs(whole-parts) > s.cfg.VolumeTolerance*math.Abs(whole) {
		return nil, nil, geomerr.Errorf(geomerr.ValidityRejected, "split",
			"volumes %g and %g of the sides do not add up to %g", s.volume(front), s.volume(back), whole)
	}
	return front, back, nil
}

// side heals one side of a split. An empty side is nil.
func (s *Slicer) side(sh kernel.Shape) (kernel.Shape, error) {
	if sh == nil || kernel.Count(s.k, sh, kernel.KindFace) == 0 {
		return nil, nil
	}
	healed, err := kernel.Call("heal", func() (kernel.Shape, error) {
		return s.k.Heal(sh, s.cfg.Precision)
	})
	if err != nil {
		s.log.Errorf("Failed to heal layer slice: %v", err)
		healed = sh
	}
	if !kernel.IsValid(s.k, healed) {
		return nil, geomerr.Errorf(geomerr.ValidityRejected, "split", "layer slice is not valid")
	}
	return healed, nil
}

func (s *Slicer) volume(sh kernel.Shape) float64 {
	if sh == nil {
		return 0
	}
	return s.k.Volume(sh)
}

// split divides input by all operands at once and returns the slices
// indexed by layer. Operands are numbered from one; a slice bounded by
// operand i alone is the first or last layer, one bounded by operands i
// and i+1 is layer i.
func (s *Slicer) split(input kernel.Shape, operands []kernel.Shape) ([]kernel.Shape, error) {
	if len(operands) < 2 {
		return nil, fmt.Errorf("layerset: split needs at least two operands, got %d", len(operands))
	}
	res, err := kernel.Call("split", func() (kernel.Shape, error) {
		return s.k.Split([]kernel.Shape{input}, operands, s.cfg.Precision)
	})
	if err != nil {
		return nil, err
	}

	index := make(map[*kernel.Surface]int)
	for i, op := range operands {
		for _, f := range s.k.Explore(op, kernel.KindFace) {
			index[s.k.Surface(f)] = i + 1
		}
	}

	subs := s.k.Children(res)
	if len(subs) == 1 && (subs[0].Kind() == kernel.KindCompound || subs[0].Kind() == kernel.KindCompSolid) {
		subs = s.k.Children(subs[0])
	}

	slices := make([]kernel.Shape, len(subs))
	for _, sub := range subs {
		first, last := math.MaxInt, math.MinInt
		for _, f := range s.k.Explore(sub, kernel.KindFace) {
			if i, ok := index[s.k.Surface(f)]; ok {
				first, last = min(first, i), max(last, i)
			}
		}
		idx := -1
		switch {
		case first == math.MaxInt:
		case first == 1 && last == 1:
			idx = 0
		case first+1 == last || first == last:
			idx = first
		}
		if idx < 0 || idx >= len(slices) || slices[idx] != nil {
			s.log.Errorf("Unable to map layer geometry to material index")
			return nil, geomerr.Errorf(geomerr.AmbiguousMapping, "split",
				"slice bounded by operands %d to %d", first, last)
		}
		slices[idx] = sub
	}
	return slices, nil
}

// face builds the face of srf covering shape.
func (s *Slicer) face(srf *kernel.Surface, shape kernel.Shape) (kernel.Shape, error) {
	u1, u2, v1, v2, err := s.project(srf, shape)
	if err != nil {
		return nil, err
	}
	return kernel.Call("make face", func() (kernel.Shape, error) {
		return s.k.MakeFace(srf, u1, u2, v1, v2)
	})
}

// project returns the parameter range of srf covering the vertices of
// shape, widened by s.Widen. On a periodic surface the u bounds are
// swapped when the centre of the shape falls outside them.
func (s *Slicer) project(srf *kernel.Surface, shape kernel.Shape) (u1, u2, v1, v2 float64, err error) {
	if !srf.IsPlanar() && !srf.IsCylindrical() {
		return 0, 0, 0, 0, errors.New("layerset: cannot project onto an unsupported surface")
	}
	verts := s.k.Explore(shape, kernel.KindVertex)
	if len(verts) == 0 {
		return 0, 0, 0, 0, errors.New("layerset: nothing to project")
	}

	u1, v1 = math.Inf(1), math.Inf(1)
	u2, v2 = math.Inf(-1), math.Inf(-1)
	var centre r3.Vec
	for _, vx := range verts {
		p := s.k.Point(vx)
		u, v := srf.UV(p)
		u1, u2 = math.Min(u1, u), math.Max(u2, u)
		v1, v2 = math.Min(v1, v), math.Max(v2, v)
		centre = r3.Add(centre, p)
	}
	edges := s.k.Explore(shape, kernel.KindEdge)
	for _, e := range edges {
		centre = r3.Add(centre, s.k.Curve(e).Midpoint())
	}
	centre = r3.Scale(1/float64(len(verts)+len(edges)), centre)

	if u, _ := srf.UV(centre); u < u1 || u > u2 {
		u1, u2 = u2, u1
	}
	return u1 - s.Widen, u2 + s.Widen, v1 - s.Widen, v2 + s.Widen, nil
}

// inElementFrame returns the shape of it with its placement applied.
func (s *Slicer) inElementFrame(it element.Item) (kernel.Shape, error) {
	if it.Placement.IsIdentity() {
		return it.Shape, nil
	}
	return kernel.Call("transform", func() (kernel.Shape, error) {
		return s.k.Transform(it.Shape, it.Placement)
	})
}

// behind returns a point one unit behind srf at (u, v).
func behind(srf *kernel.Surface, u, v float64) r3.Vec {
	return r3.Sub(srf.Eval(u, v), srf.NormalAt(u, v))
}

func styleAt(styles []*element.Style, i int, it element.Item) *element.Style {
	if i < len(styles) && styles[i] != nil {
		return styles[i]
	}
	return it.Style
}

// slice returns the item for layer i of it.
func slice(it element.Item, i int, shape kernel.Shape, st *element.Style) element.Item {
	out := it.WithShape(shape)
	out.ID = fmt.Sprintf("%s.%d", it.ID, i)
	out.Placement = geom.Identity()
	out.Style = st
	return out
}

func appendSides(out []element.Item, it element.Item, front, back kernel.Shape, styles []*element.Style) []element.Item {
	if back != nil {
		out = append(out, slice(it, 0, back, styleAt(styles, 0, it)))
	}
	if front != nil {
		out = append(out, slice(it, 1, front, styleAt(styles, 1, it)))
	}
	return out
}

func appendSlices(out []element.Item, it element.Item, slices []kernel.Shape, styles []*element.Style) []element.Item {
	for i, sh := range slices {
		if sh == nil {
			continue
		}
		out = append(out, slice(it, i, sh, styleAt(styles, i, it)))
	}
	return out
}
