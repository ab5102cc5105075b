package convert

import (
	"context"
	"fmt"
	"testing"
	"time"

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

// layeredWall returns a wall 4 long, 0.3 thick and 3 high with an inner
// layer 0.1 and an outer layer 0.2 thick and one opening.
func layeredWall(k *ortho.Kernel, id string) element.Element {
	axis := kernel.Line(vec(0, 0, 0), vec(1, 0, 0))
	return element.Element{
		ID:   id,
		Kind: element.KindWall,
		Body: []element.Item{{ID: "body", Shape: k.Box(vec(0, 0, 0), vec(4, 0.3, 3))}},
		Openings: []element.Opening{{ID: "window", Items: []element.Item{
			{ID: "window", Shape: k.Box(vec(1, -1, 1), vec(2, 1, 2))},
		}}},
		Layers: &element.LayerSpec{Axis: &axis, Sense: element.SensePositive, Layers: []element.Layer{
			{Thickness: 0.1, Style: &element.Style{ID: "plaster"}},
			{Thickness: 0.2, Style: &element.Style{ID: "brick"}},
		}},
	}
}

func setup(cfg config.Settings) (*ortho.Kernel, *Converter, *diag.Recorder) {
	k := ortho.New()
	rec := &diag.Recorder{}
	return k, New(k, cfg, diag.For(rec, "")), rec
}

func TestElementLayersThenOpenings(t *testing.T) {
	k, c, rec := setup(config.Default())
	e := layeredWall(k, "W1")

	res := c.Element(&e)
	require.NoError(t, res.Err)
	assert.Equal(t, StatusConverted, res.Status)
	assert.True(t, res.Layered)
	assert.Equal(t, 1, res.Openings.Voids)
	assert.Equal(t, 2, res.Openings.Batches, "one batch per layer")

	require.Len(t, res.Items, 2)
	assert.Equal(t, "brick", res.Items[0].Style.ID)
	assert.InDelta(t, 2.4-0.2, k.Volume(res.Items[0].Shape), 1e-9)
	assert.Equal(t, "plaster", res.Items[1].Style.ID)
	assert.InDelta(t, 1.2-0.1, k.Volume(res.Items[1].Shape), 1e-9)
	assert.Zero(t, rec.Count(diag.SeverityError, ""))
}

func TestElementLayerFailureKeepsBody(t *testing.T) {
	k, c, rec := setup(config.Default())
	e := layeredWall(k, "W1")
	other := kernel.Curve{Kind: kernel.CurveOther}
	e.Layers.Axis = &other

	res := c.Element(&e)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Error(t, res.Err)
	assert.False(t, res.Layered)
	require.Len(t, res.Items, 1)
	assert.InDelta(t, 3.6-0.3, k.Volume(res.Items[0].Shape), 1e-9, "openings still apply")
	assert.True(t, rec.Has("Unable to apply layerset: layerset: unsupported axis curve"))
}

func TestElementSingleLayerIsNotSliced(t *testing.T) {
	k, c, _ := setup(config.Default())
	e := layeredWall(k, "W1")
	e.Layers.Layers = e.Layers.Layers[:1]
	e.Openings = nil

	res := c.Element(&e)
	assert.Equal(t, StatusConverted, res.Status)
	assert.False(t, res.Layered)
	assert.Same(t, e.Body[0].Shape, res.Items[0].Shape)
}

func TestElementHonoursSwitches(t *testing.T) {
	cfg := config.Default()
	cfg.ApplyLayersets = false
	cfg.DisableOpenings = true
	k, c, _ := setup(cfg)
	e := layeredWall(k, "W1")

	res := c.Element(&e)
	assert.Equal(t, StatusConverted, res.Status)
	assert.False(t, res.Layered)
	assert.Zero(t, res.Openings.Voids)
	assert.Zero(t, k.BooleanCalls())
	assert.Same(t, e.Body[0].Shape, res.Items[0].Shape)
}

func TestElementFailedOpeningsDegrade(t *testing.T) {
	cfg := config.Default()
	cfg.ApplyLayersets = false
	k, c, _ := setup(cfg)
	k.BooleanFault = func(kernel.Op, float64) ortho.Fault { return ortho.FailBuild }
	e := layeredWall(k, "W1")

	res := c.Element(&e)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, 1, res.Openings.Failed)
	assert.InDelta(t, 3.6, k.Volume(res.Items[0].Shape), 1e-9)
}

func TestPoolKeepsInputOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 3
	k, c, _ := setup(cfg)
	var elems []element.Element
	for i := 0; i < 8; i++ {
		elems = append(elems, layeredWall(k, fmt.Sprintf("W%d", i)))
	}

	rep := NewPool(c, cfg, diag.For(nil, "")).Run(context.Background(), elems)
	require.Len(t, rep.Results, len(elems))
	assert.NotEmpty(t, rep.ID)
	for i, r := range rep.Results {
		assert.Equal(t, elems[i].ID, r.Element)
		assert.Equal(t, StatusConverted, r.Status)
		assert.Len(t, r.Items, 2)
	}
	assert.Equal(t, len(elems), rep.Count(StatusConverted))
}

func TestPoolTimesOutSlowElements(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.ElementTimeout = config.Duration(20 * time.Millisecond)
	cfg.ApplyLayersets = false
	k, c, _ := setup(cfg)
	k.BooleanFault = func(kernel.Op, float64) ortho.Fault {
		time.Sleep(500 * time.Millisecond)
		return ortho.NoFault
	}
	slow := layeredWall(k, "slow")
	quick := layeredWall(k, "quick")
	quick.Openings = nil

	rec := &diag.Recorder{}
	rep := NewPool(c, cfg, diag.For(rec, "")).Run(context.Background(), []element.Element{slow, quick})
	require.Len(t, rep.Results, 2)

	assert.Equal(t, StatusTimedOut, rep.Results[0].Status)
	assert.Same(t, slow.Body[0].Shape, rep.Results[0].Items[0].Shape, "a timed out element keeps its body")
	assert.Equal(t, StatusConverted, rep.Results[1].Status)
	assert.Equal(t, 1, rec.Count(diag.SeverityWarning, "slow"))
}

func TestPoolCancelledRun(t *testing.T) {
	k, c, _ := setup(config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := layeredWall(k, "W1")
	rep := NewPool(c, config.Default(), diag.For(nil, "")).Run(ctx, []element.Element{e})
	require.Len(t, rep.Results, 1)
	assert.Equal(t, StatusSuperseded, rep.Results[0].Status)
	assert.Same(t, e.Body[0].Shape, rep.Results[0].Items[0].Shape)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "timed out", StatusTimedOut.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}
