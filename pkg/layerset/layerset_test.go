package layerset

import (
	"testing"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/geomerr"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/chazu/mortise/pkg/kernel/ortho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func vec(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }

func setup() (*ortho.Kernel, *Slicer, *diag.Recorder) {
	k := ortho.New()
	rec := &diag.Recorder{}
	return k, New(k, config.Default(), diag.For(rec, "W1")), rec
}

// wall returns layer specs along the x axis, the layers stacked in y.
func wall(sense element.Sense, styles []*element.Style, thickness ...float64) *element.LayerSpec {
	axis := kernel.Line(vec(0, 0, 0), vec(1, 0, 0))
	ls := &element.LayerSpec{Axis: &axis, Sense: sense}
	for i, t := range thickness {
		ls.Layers = append(ls.Layers, element.Layer{Thickness: t, Style: styles[i]})
	}
	return ls
}

func styles(ids ...string) []*element.Style {
	out := make([]*element.Style, len(ids))
	for i, id := range ids {
		out[i] = &element.Style{ID: id}
	}
	return out
}

func levels(ss []*kernel.Surface) []float64 {
	out := make([]float64, len(ss))
	for i, s := range ss {
		out[i] = s.Origin().Y
	}
	return out
}

func TestSurfacesPositiveSense(t *testing.T) {
	st := styles("inner", "core", "outer")
	surfaces, got, err := Surfaces(wall(element.SensePositive, st, 0.1, 0.1, 0.1))
	require.NoError(t, err)
	require.Len(t, surfaces, 4)
	assert.InDeltaSlice(t, []float64{0.3, 0.2, 0.1, 0}, levels(surfaces), 1e-12)
	assert.Equal(t, []*element.Style{st[2], st[1], st[0]}, got)
	for _, s := range surfaces {
		assert.InDelta(t, -1.0, s.Axis().Y, 1e-12, "normal is the axis direction crossed with +z")
	}
}

func TestSurfacesNegativeSense(t *testing.T) {
	st := styles("inner", "outer")
	surfaces, got, err := Surfaces(wall(element.SenseNegative, st, 0.1, 0.2))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, -0.1, -0.3}, levels(surfaces), 1e-12)
	assert.Equal(t, st, got)
}

func TestSurfacesReuseReferenceAtZeroOffset(t *testing.T) {
	ls := wall(element.SensePositive, styles("a", "b"), 0.1, 0.1)
	ls.Offset = -0.2
	surfaces, _, err := Surfaces(ls)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, -0.1, -0.2}, levels(surfaces), 1e-12)
	assert.Nil(t, surfaces[0].Basis(), "a boundary on the reference is the reference")
	assert.NotNil(t, surfaces[1].Basis())
}

func TestSurfacesAroundCircle(t *testing.T) {
	axis := kernel.Circle(vec(0, 0, 0), vec(0, 0, 1), vec(1, 0, 0), 5)
	ls := &element.LayerSpec{Axis: &axis, Sense: element.SenseNegative,
		Layers: []element.Layer{{Thickness: 0.5}, {Thickness: 0.5}}}
	surfaces, _, err := Surfaces(ls)
	require.NoError(t, err)
	require.Len(t, surfaces, 3)
	for i, r := range []float64{5, 5.5, 6} {
		assert.True(t, surfaces[i].IsCylindrical())
		assert.InDelta(t, r, surfaces[i].Radius(), 1e-12)
	}
}

func TestSurfacesRejectUnsupportedReference(t *testing.T) {
	other := kernel.Curve{Kind: kernel.CurveOther}
	_, _, err := Surfaces(&element.LayerSpec{Axis: &other})
	assert.Error(t, err)

	_, _, err = Surfaces(&element.LayerSpec{})
	assert.Error(t, err)
}

func TestApplyNeedsThreeSurfaces(t *testing.T) {
	k, s, _ := setup()
	items := []element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(1, 1, 1))}}
	_, err := s.Apply(items, []*kernel.Surface{kernel.Plane(vec(0, 0, 0), vec(0, 1, 0))}, nil)
	assert.ErrorIs(t, err, ErrTooFewSurfaces)
}

func TestApplyThreeSurfaces(t *testing.T) {
	k, s, rec := setup()
	st := styles("inner", "outer")
	surfaces, layerStyles, err := Surfaces(wall(element.SensePositive, st, 0.1, 0.2))
	require.NoError(t, err)

	body := []element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 0.3, 3)), Style: &element.Style{ID: "brick"}}}
	out, err := s.Apply(body, surfaces, layerStyles)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "body.0", out[0].ID)
	assert.Same(t, st[1], out[0].Style, "the back side is the outer layer")
	assert.InDelta(t, 2.4, k.Volume(out[0].Shape), 1e-9)

	assert.Equal(t, "body.1", out[1].ID)
	assert.Same(t, st[0], out[1].Style)
	assert.InDelta(t, 1.2, k.Volume(out[1].Shape), 1e-9)
	assert.Zero(t, rec.Count(diag.SeverityError, ""))
}

func TestApplyFallsBackToItemStyle(t *testing.T) {
	k, s, _ := setup()
	surfaces, layerStyles, err := Surfaces(wall(element.SensePositive, []*element.Style{nil, nil}, 0.1, 0.2))
	require.NoError(t, err)

	brick := &element.Style{ID: "brick"}
	out, err := s.Apply([]element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 0.3, 3)), Style: brick}},
		surfaces, layerStyles)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Same(t, brick, out[0].Style)
	assert.Same(t, brick, out[1].Style)
}

func TestApplySkipsItemsThatCannotBeSplit(t *testing.T) {
	k, s, rec := setup()
	surfaces, layerStyles, err := Surfaces(wall(element.SensePositive, styles("a", "b"), 0.1, 0.2))
	require.NoError(t, err)

	loose := k.Compound(k.BoxFaces(vec(0, 0, 0), vec(4, 0.3, 3), false)...)
	items := []element.Item{
		{ID: "faces", Shape: loose},
		{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 0.3, 3))},
	}
	out, err := s.Apply(items, surfaces, layerStyles)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "body.0", out[0].ID)
	assert.Equal(t, 1, rec.Count(diag.SeverityWarning, "W1"))
}

func TestApplyFourSurfacesSlicesBlock(t *testing.T) {
	k, s, _ := setup()
	st := styles("inner", "core", "outer")
	surfaces, layerStyles, err := Surfaces(wall(element.SensePositive, st, 0.1, 0.1, 0.1))
	require.NoError(t, err)

	block := k.Box(vec(0, 0, 0), vec(4, 0.3, 3))
	out, err := s.Apply([]element.Item{{ID: "body", Shape: block}}, surfaces, layerStyles)
	require.NoError(t, err)
	require.Len(t, out, 3)

	total := 0.0
	for i, it := range out {
		v := k.Volume(it.Shape)
		assert.InDelta(t, 1.2, v, 1e-9)
		total += v
		assert.Same(t, st[2-i], it.Style)
	}
	assert.InDelta(t, k.Volume(block), total, 1e-3*k.Volume(block))
	assert.InDelta(t, 0.2, k.BoundingBox(out[0].Shape).Min.Y, 1e-9, "the first slice is the outer layer")
	assert.InDelta(t, 0.0, k.BoundingBox(out[2].Shape).Min.Y, 1e-9)
}

func TestApplyBakesItemPlacement(t *testing.T) {
	k, s, _ := setup()
	surfaces, layerStyles, err := Surfaces(wall(element.SensePositive, styles("a", "b", "c"), 0.1, 0.1, 0.1))
	require.NoError(t, err)

	it := element.Item{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 0.3, 3)),
		Placement: geom.Translation(vec(0, 0, 5))}
	out, err := s.Apply([]element.Item{it}, surfaces, layerStyles)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, sl := range out {
		assert.True(t, sl.Placement.IsIdentity())
		assert.InDelta(t, 5.0, k.BoundingBox(sl.Shape).Min.Z, 1e-9)
	}
}

func TestApplyAmbiguousMapping(t *testing.T) {
	k, s, rec := setup()
	n := vec(0, -1, 0)
	plane := func(y float64) *kernel.Surface { return kernel.Plane(vec(0, y, 0), n) }
	// The interior boundaries are out of order, so a slice lies between
	// the first and the third.
	surfaces := []*kernel.Surface{plane(0.4), plane(0.1), plane(0.3), plane(0.2), plane(0)}

	block := k.Box(vec(0, 0, 0), vec(4, 0.4, 3))
	_, err := s.Apply([]element.Item{{ID: "body", Shape: block}}, surfaces, styles("a", "b", "c", "d"))
	require.Error(t, err)
	assert.Equal(t, geomerr.AmbiguousMapping, geomerr.KindOf(err))
	assert.True(t, rec.Has("Unable to map layer geometry to material index"))
}

func TestApplySliceCountMustMatchStyles(t *testing.T) {
	k, s, _ := setup()
	surfaces, _, err := Surfaces(wall(element.SensePositive, styles("a", "b", "c"), 0.1, 0.1, 0.1))
	require.NoError(t, err)

	_, err = s.Apply([]element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 0.3, 3))}},
		surfaces, styles("a", "b"))
	assert.Error(t, err)
}

func TestSplitBySurfaceWithEmptySide(t *testing.T) {
	k, s, rec := setup()
	block := k.Box(vec(0, 0, 0), vec(4, 0.3, 3))

	front, back, err := s.SplitBySurface(block, kernel.Plane(vec(0, 1, 0), vec(0, -1, 0)))
	require.NoError(t, err)
	assert.Nil(t, back)
	require.NotNil(t, front)
	assert.InDelta(t, 3.6, k.Volume(front), 1e-9)
	assert.True(t, rec.Has("Null result obtained from layerset slicing"))
}

func TestSplitByShellNeedsShellOrSolid(t *testing.T) {
	k, s, _ := setup()
	block := k.Box(vec(0, 0, 0), vec(1, 1, 1))
	face, err := k.Rect(geom.Box{Min: vec(0, 0.5, 0), Max: vec(1, 0.5, 1)}, 1)
	require.NoError(t, err)

	_, _, err = s.SplitByShell(block, face)
	assert.Error(t, err)

	front, back, err := s.SplitByShell(block, k.Box(vec(0, 0.5, 0), vec(1, 2, 1)))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, k.Volume(front), 1e-9)
	assert.InDelta(t, 0.5, k.Volume(back), 1e-9)
}

func TestProjectWidens(t *testing.T) {
	k, s, _ := setup()
	s.Widen = 1
	block := k.Box(vec(0, 0, 0), vec(4, 1, 3))
	// u runs along z and v along -x on this plane.
	u1, u2, v1, v2, err := s.project(kernel.Plane(vec(0, 0.5, 0), vec(0, -1, 0)), block)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, 4, -5, 1}, []float64{u1, u2, v1, v2}, 1e-12)

	_, _, _, _, err = s.project(kernel.Other(), block)
	assert.Error(t, err)
}

func TestApplyFoldedSingleShell(t *testing.T) {
	k, s, rec := setup()
	st := styles("outside", "corner")
	// A fold along the corner x >= 2, y <= 1 of the body.
	group := []*kernel.Surface{
		kernel.Plane(vec(0, 1, 0), vec(0, -1, 0)),
		kernel.Plane(vec(2, 0, 0), vec(1, 0, 0)),
	}
	body := []element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 4, 4))}}

	out, err := s.ApplyFolded(body, [][]*kernel.Surface{group}, st)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Same(t, st[0], out[0].Style)
	assert.InDelta(t, 56.0, k.Volume(out[0].Shape), 1e-9)
	assert.Same(t, st[1], out[1].Style)
	assert.InDelta(t, 8.0, k.Volume(out[1].Shape), 1e-9)

	bb := k.BoundingBox(out[1].Shape)
	assert.InDelta(t, 2.0, bb.Min.X, 1e-9)
	assert.InDelta(t, 1.0, bb.Max.Y, 1e-9)
	assert.Zero(t, rec.Count(diag.SeverityError, ""))
}

func TestApplyFoldedSeveralShells(t *testing.T) {
	k, s, _ := setup()
	st := styles("a", "b", "c")
	n := vec(0, -1, 0)
	groups := [][]*kernel.Surface{
		{kernel.Plane(vec(0, 0.2, 0), n)},
		{kernel.Plane(vec(0, 0.1, 0), n)},
	}
	body := []element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 0.3, 3))}}

	out, err := s.ApplyFolded(body, groups, st)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, it := range out {
		assert.Same(t, st[i], it.Style)
		assert.InDelta(t, 1.2, k.Volume(it.Shape), 1e-9)
	}
}

func TestApplyFoldedWithoutShells(t *testing.T) {
	k, s, _ := setup()
	body := []element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(1, 1, 1))}}
	_, err := s.ApplyFolded(body, [][]*kernel.Surface{{kernel.Other()}}, styles("a", "b"))
	assert.Error(t, err)
}
