// Package opening carves the openings of an element out of its body.
// Openings are ordered by feature size and subtracted in batches of
// similar scale, one boolean call per batch.
package opening

import (
	"fmt"
	"sort"

	"github.com/chazu/mortise/pkg/assembly"
	"github.com/chazu/mortise/pkg/boolean"
	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/chazu/mortise/pkg/validity"
	"github.com/samber/lo"
)

// Report summarises one Subtract call.
type Report struct {
	// Voids is the number of opening shapes that took part.
	Voids int
	// Batches counts the boolean calls made, one per batch and part.
	Batches int
	// Failed counts the batches whose subtraction was abandoned.
	Failed int
	// Retried counts the parts subtracted a second time as loose faces.
	Retried int
}

// Pipeline subtracts openings with a kernel.
type Pipeline struct {
	k   kernel.Kernel
	cfg config.Settings
	log diag.Logger
}

// New returns a Pipeline.
func New(k kernel.Kernel, cfg config.Settings, log diag.Logger) *Pipeline {
	return &Pipeline{k: k, cfg: cfg, log: log}
}

// Batches groups sizes for subtraction. Sizes are visited in descending
// order, ties keeping their input order, and a new group starts whenever
// the first size of the current group exceeds the visited one by more
// than ratio. The groups hold indices into sizes.
func Batches(sizes []float64, ratio float64) [][]int {
	order := make([]int, len(sizes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return sizes[order[i]] > sizes[order[j]] })

	var out [][]int
	for _, i := range order {
		if n := len(out); n > 0 && !(sizes[out[n-1][0]]/sizes[i] > ratio) {
			out[n-1] = append(out[n-1], i)
			continue
		}
		out = append(out, []int{i})
	}
	return out
}

// void is an opening shape in the element frame.
type void struct {
	shape kernel.Shape
	size  float64
}

// Subtract removes the openings of e from its body items. Every item of
// the body is returned, in order, keeping its identifier, placement and
// style; where a batch cannot be subtracted the item keeps the geometry
// it had before that batch.
func (p *Pipeline) Subtract(e *element.Element) ([]element.Item, Report, error) {
	var rep Report
	body := append([]element.Item(nil), e.Body...)
	if len(e.Openings) == 0 {
		return body, rep, nil
	}
	log := p.log.With(e.ID)
	asm := assembly.New(p.k, p.cfg, log)

	voids, err := p.voids(e, asm, log)
	if err != nil {
		return body, rep, err
	}
	rep.Voids = len(voids)
	if len(voids) == 0 {
		return body, rep, nil
	}

	groups := Batches(lo.Map(voids, func(v void, _ int) float64 { return v.size }), p.cfg.BatchRatio)
	engine := boolean.New(p.k, p.cfg, log)

	for i, it := range body {
		if it.Shape == nil {
			continue
		}
		local, err := p.toItem(it, voids, log)
		if err != nil {
			log.Errorf("Unable to place openings relative to item %s: %v", it.ID, err)
			continue
		}
		batches := lo.Map(groups, func(g []int, _ int) []kernel.Shape {
			return lo.Map(g, func(j int, _ int) kernel.Shape { return local[j] })
		})

		if isMultiple(p.k, it.Shape) {
			parts := p.k.Children(it.Shape)
			out := make([]kernel.Shape, len(parts))
			for j, part := range parts {
				out[j] = p.subtractPart(part, batches, engine, asm, log, &rep)
			}
			body[i] = it.WithShape(p.k.Compound(out...))
		} else {
			body[i] = it.WithShape(p.subtractPart(it.Shape, batches, engine, asm, log, &rep))
		}
	}
	return body, rep, nil
}

// voids brings every opening item into the element frame:
// inverse(element placement) * opening placement * item placement.
func (p *Pipeline) voids(e *element.Element, asm *assembly.Assembler, log diag.Logger) ([]void, error) {
	inv, err := e.Placement.Inverse()
	if err != nil {
		log.Errorf("Unable to invert element placement")
		return nil, fmt.Errorf("opening: element placement: %w", err)
	}
	var out []void
	for _, o := range e.Openings {
		toElement := inv.Mul(o.Placement)
		for _, it := range o.Items {
			if it.Shape == nil {
				continue
			}
			s := asm.EnsureFitForSubtraction(it.Shape)
			moved, err := kernel.Call("transform", func() (kernel.Shape, error) {
				return p.k.Transform(s, toElement.Mul(it.Placement))
			})
			if err != nil {
				log.Errorf("Failed to place opening %s: %v", o.ID, err)
				continue
			}
			out = append(out, void{shape: moved, size: validity.MinEdgeLength(p.k, moved)})
		}
	}
	return out, nil
}

// toItem moves the voids into the frame of a body item so that the item
// keeps its own placement.
func (p *Pipeline) toItem(it element.Item, voids []void, log diag.Logger) ([]kernel.Shape, error) {
	shapes := lo.Map(voids, func(v void, _ int) kernel.Shape { return v.shape })
	if it.Placement.IsIdentity() {
		return shapes, nil
	}
	if !it.Placement.IsUniform(p.cfg.Precision) {
		log.Warningf("Applying non uniform transformation to item %s", it.ID)
	}
	inv, err := it.Placement.Inverse()
	if err != nil {
		return nil, err
	}
	out := make([]kernel.Shape, len(shapes))
	for i, s := range shapes {
		moved, err := kernel.Call("transform", func() (kernel.Shape, error) {
			return p.k.Transform(s, inv)
		})
		if err != nil {
			return nil, err
		}
		out[i] = moved
	}
	return out, nil
}

// subtractPart subtracts the batches from one part of a body. A part
// that is not manifold is first made into a solid; if that leaves
// nothing, the batches are subtracted from its faces as they are.
func (p *Pipeline) subtractPart(part kernel.Shape, batches [][]kernel.Shape,
	engine *boolean.Engine, asm *assembly.Assembler, log diag.Logger, rep *Report) kernel.Shape {

	manifold := validity.IsManifold(p.k, part)
	if !manifold {
		log.Warningf("Non-manifold first operand")
	}

	var result kernel.Shape
	for asShell := 0; asShell < 2; asShell++ {
		result = part
		if asShell == 0 {
			result = asm.EnsureFitForSubtraction(part)
		}
		for _, b := range batches {
			rep.Batches++
			res, err := engine.Boolean(result, b, kernel.OpCut)
			if err != nil {
				rep.Failed++
				log.Errorf("Opening subtraction failed for %d openings", len(b))
				continue
			}
			result = res.Shape
		}
		if !manifold && asShell == 0 && validity.FaceCount(p.k, result) == 0 {
			log.Warningf("Retrying boolean operation on individual faces")
			rep.Retried++
			continue
		}
		break
	}
	return result
}

// isMultiple reports whether s is a non-empty compound whose leaves are
// all solids.
func isMultiple(k kernel.Kernel, s kernel.Shape) bool {
	if s == nil || s.Kind() != kernel.KindCompound || len(k.Children(s)) == 0 {
		return false
	}
	var leaves func(s kernel.Shape) bool
	leaves = func(s kernel.Shape) bool {
		switch s.Kind() {
		case kernel.KindSolid:
			return true
		case kernel.KindCompound:
			return lo.EveryBy(k.Children(s), leaves)
		}
		return false
	}
	return leaves(s)
}
