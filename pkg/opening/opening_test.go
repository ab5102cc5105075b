package opening

import (
	"testing"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/chazu/mortise/pkg/kernel/ortho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func vec(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }

func setup() (*ortho.Kernel, *Pipeline, *diag.Recorder) {
	k := ortho.New()
	rec := &diag.Recorder{}
	return k, New(k, config.Default(), diag.For(rec, "")), rec
}

// through returns an opening whose single item passes through a body
// lying in 0 <= y <= 10.
func through(k *ortho.Kernel, id string, x, z, size float64) element.Opening {
	return element.Opening{ID: id, Items: []element.Item{
		{ID: id, Shape: k.Box(vec(x, -30, z), vec(x+size, 40, z+size))},
	}}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		name  string
		sizes []float64
		ratio float64
		want  [][]int
	}{
		{"empty", nil, 10, nil},
		{"five openings", []float64{1.0, 1.1, 0.9, 50.0, 48.0}, 10, [][]int{{3, 4}, {1, 0, 2}}},
		{"ratio is inclusive", []float64{10, 1}, 10, [][]int{{0, 1}}},
		{"chain against first member", []float64{100, 20, 9}, 10, [][]int{{0, 1}, {2}}},
		{"ties keep order", []float64{2, 2, 2}, 10, [][]int{{0, 1, 2}}},
		{"zero size", []float64{1, 0}, 10, [][]int{{0}, {1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Batches(tt.sizes, tt.ratio))
		})
	}
}

func TestFiveOpeningsInTwoBatches(t *testing.T) {
	k, p, rec := setup()
	body := k.Box(vec(0, 0, 0), vec(200, 10, 200))
	e := &element.Element{
		ID:   "W1",
		Body: []element.Item{{ID: "body", Shape: body, Style: &element.Style{ID: "brick"}}},
		Openings: []element.Opening{
			through(k, "a", 10, 100, 1.0),
			through(k, "b", 20, 100, 1.1),
			through(k, "c", 30, 100, 0.9),
			through(k, "d", 10, 10, 50.0),
			through(k, "e", 100, 10, 48.0),
		},
	}

	items, rep, err := p.Subtract(e)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, rep.Voids)
	assert.Equal(t, 2, rep.Batches)
	assert.Zero(t, rep.Failed)
	assert.EqualValues(t, 2, k.BooleanCalls(), "one boolean call per batch")

	holes := 1.0*1.0 + 1.1*1.1 + 0.9*0.9 + 50*50 + 48*48
	assert.InDelta(t, 10*(200*200-holes), k.Volume(items[0].Shape), 1e-6)
	assert.Equal(t, "body", items[0].ID)
	assert.Equal(t, "brick", items[0].Style.ID)
	assert.Zero(t, rec.Count(diag.SeverityError, ""))
}

func TestNoOpeningsKeepsBody(t *testing.T) {
	k, p, _ := setup()
	body := k.Box(vec(0, 0, 0), vec(4, 1, 4))
	e := &element.Element{ID: "W1", Body: []element.Item{{ID: "body", Shape: body}}}

	items, rep, err := p.Subtract(e)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Same(t, body, items[0].Shape)
	assert.Equal(t, Report{}, rep)
	assert.Zero(t, k.BooleanCalls())
}

func TestOpeningsFollowPlacements(t *testing.T) {
	k, p, _ := setup()
	itemAt := geom.Translation(vec(5, 0, 0))
	e := &element.Element{
		ID:        "W1",
		Placement: geom.Translation(vec(10, 0, 0)),
		Body: []element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 1, 4)),
			Placement: itemAt}},
		Openings: []element.Opening{{
			ID:        "o",
			Placement: geom.Translation(vec(15, 0, 0)),
			Items:     []element.Item{{ID: "o", Shape: k.Box(vec(1, -1, 1), vec(3, 2, 3))}},
		}},
	}

	items, _, err := p.Subtract(e)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, k.Volume(items[0].Shape), 1e-9)
	assert.Equal(t, itemAt, items[0].Placement)

	bb := k.BoundingBox(items[0].Shape)
	assert.InDelta(t, 0.0, bb.Min.X, 1e-9, "the item stays in its own frame")
}

func TestFailedBatchKeepsGeometry(t *testing.T) {
	k, p, rec := setup()
	k.BooleanFault = func(kernel.Op, float64) ortho.Fault { return ortho.FailBuild }
	body := k.Box(vec(0, 0, 0), vec(200, 10, 200))
	e := &element.Element{
		ID:       "W1",
		Body:     []element.Item{{ID: "body", Shape: body}},
		Openings: []element.Opening{through(k, "a", 10, 10, 50)},
	}

	items, rep, err := p.Subtract(e)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 400000.0, k.Volume(items[0].Shape), 1e-6)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rec.Count(diag.SeverityError, "W1"))
	assert.True(t, rec.Has("Opening subtraction failed for 1 openings"))
}

func TestCompoundBodyIsProcessedPerPart(t *testing.T) {
	k, p, _ := setup()
	body := k.Compound(
		k.Box(vec(0, 0, 0), vec(4, 1, 4)),
		k.Box(vec(6, 0, 0), vec(10, 1, 4)),
	)
	e := &element.Element{
		ID:   "W1",
		Body: []element.Item{{ID: "body", Shape: body}},
		Openings: []element.Opening{{ID: "o", Items: []element.Item{
			{ID: "o", Shape: k.Box(vec(2, -1, 1), vec(8, 2, 3))},
		}}},
	}

	items, rep, err := p.Subtract(e)
	require.NoError(t, err)
	parts := k.Children(items[0].Shape)
	require.Len(t, parts, 2, "the number of constituents is preserved")
	assert.InDelta(t, 12.0, k.Volume(parts[0]), 1e-9)
	assert.InDelta(t, 12.0, k.Volume(parts[1]), 1e-9)
	assert.Equal(t, 2, rep.Batches)
}

func TestNonManifoldBodyIsRetriedAsFaces(t *testing.T) {
	k, p, rec := setup()
	faces := k.Compound(k.BoxFaces(vec(0, 0, 0), vec(4, 4, 4), false)...)
	e := &element.Element{
		ID:   "W1",
		Body: []element.Item{{ID: "body", Shape: faces}},
		Openings: []element.Opening{{ID: "o", Items: []element.Item{
			{ID: "o", Shape: k.Box(vec(-1, -1, -1), vec(5, 5, 5))},
		}}},
	}

	items, rep, err := p.Subtract(e)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, rec.Has("Non-manifold first operand"))
	assert.True(t, rec.Has("Retrying boolean operation on individual faces"))
	assert.Equal(t, 1, rep.Retried)
	assert.Equal(t, 2, rep.Batches)
	assert.Zero(t, kernel.Count(k, items[0].Shape, kernel.KindFace))
}

func TestSingularElementPlacement(t *testing.T) {
	k, p, rec := setup()
	body := k.Box(vec(0, 0, 0), vec(4, 1, 4))
	e := &element.Element{
		ID:        "W1",
		Placement: geom.Scaling(vec(0, 1, 1)),
		Body:      []element.Item{{ID: "body", Shape: body}},
		Openings:  []element.Opening{through(k, "a", 1, 1, 1)},
	}

	items, _, err := p.Subtract(e)
	require.Error(t, err)
	assert.Same(t, body, items[0].Shape)
	assert.True(t, rec.Has("Unable to invert element placement"))
}
