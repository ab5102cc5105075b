// Package boolean drives the kernel's set operations with adaptive
// tolerance. A call simplifies its operands, drops the ones that cannot
// change the result, picks a fuzziness below the smallest feature of the
// input and then checks the kernel's answer against independent signals
// before accepting it. Rejected answers are retried with a larger
// fuzziness until a ceiling is reached.
package boolean

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/geomerr"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/chazu/mortise/pkg/validity"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ulp absorbs rounding when comparing an escalated fuzziness against the
// ceiling.
const ulp = 1e-15

var (
	runID   = strings.SplitN(uuid.NewString(), "-", 2)[0]
	counter atomic.Int64
)

// Result describes a successful boolean call.
type Result struct {
	Shape kernel.Shape
	// Fuzziness is the fuzzy value of the accepted kernel call.
	Fuzziness float64
	// Attempts counts the 3D kernel calls made, including the accepted one.
	Attempts int
	// Used2D is set when through holes were cut from the profile of an
	// extrusion instead of the solid.
	Used2D             bool
	EliminatedDisjoint int
	EliminatedTouching int
}

// Engine runs boolean operations on a kernel. An Engine holds no mutable
// state and may be shared by goroutines working on distinct shapes.
type Engine struct {
	k   kernel.Kernel
	cfg config.Settings
	log diag.Logger
}

// New returns an Engine.
func New(k kernel.Kernel, cfg config.Settings, log diag.Logger) *Engine {
	return &Engine{k: k, cfg: cfg, log: log}
}

// Cut subtracts b from a.
func (e *Engine) Cut(a, b kernel.Shape) (Result, error) {
	return e.Boolean(a, []kernel.Shape{b}, kernel.OpCut)
}

// Common intersects a with b.
func (e *Engine) Common(a, b kernel.Shape) (Result, error) {
	return e.Boolean(a, []kernel.Shape{b}, kernel.OpCommon)
}

// Fuse unites a with b.
func (e *Engine) Fuse(a, b kernel.Shape) (Result, error) {
	return e.Boolean(a, []kernel.Shape{b}, kernel.OpFuse)
}

// Boolean applies op between a and every shape of bs, starting from the
// suggested fuzziness. The operands are never modified. Failures carry a
// geomerr kind; when all attempts were rejected it is ToleranceExhausted.
func (e *Engine) Boolean(a kernel.Shape, bs []kernel.Shape, op kernel.Op) (Result, error) {
	return e.run(a, bs, op, e.cfg.SuggestedFuzziness())
}

func (e *Engine) run(a kernel.Shape, bs []kernel.Shape, op kernel.Op, fuzziness float64) (Result, error) {
	var res Result
	if a == nil {
		return res, geomerr.Errorf(geomerr.KernelCallFailed, op.String(), "missing first operand")
	}

	var dbg string
	if e.cfg.DebugBoolean {
		dbg = fmt.Sprintf("bool-%s-%d", runID, counter.Add(1)-1)
		e.log.Noticef("Boolean debug identifier: %s", dbg)
	}

	if e.cfg.Unify {
		a, bs = e.unify(a, bs, fuzziness)
	}

	if op == kernel.OpCut {
		var n int
		if e.cfg.EliminateDisjoint {
			if bs, n = validity.EliminateDisjoint(e.k, a, bs, fuzziness); n > 0 {
				e.log.Noticef("Eliminated %d disjoint operands", n)
			}
			res.EliminatedDisjoint = n
		}
		if e.cfg.EliminateTouching {
			if bs, n = validity.EliminateTouching(e.k, a, bs, fuzziness); n > 0 {
				e.log.Noticef("Eliminated %d touching operands", n)
			}
			res.EliminatedTouching = n
		}
	}

	if len(bs) == 0 {
		res.Shape = a
		res.Fuzziness = fuzziness
		return res, nil
	}

	e.log.Noticef("Operand A is %smanifold", nonPrefix(validity.IsManifold(e.k, a)))
	for i, b := range bs {
		e.log.Noticef("Operand B %d is %smanifold", i, nonPrefix(validity.IsManifold(e.k, b)))
	}

	minLen := e.minFeature(a, bs)
	fuzz := math.Min(minLen/3, fuzziness)
	e.log.Noticef("Used fuzziness: %g", fuzz)

	if dbg != "" {
		e.dump(dbg, "a", []kernel.Shape{a})
		e.dump(dbg, "b", bs)
	}

	// Validation judges results against the operand as given, not the
	// prism left by the 2D pass.
	orig := a
	if op == kernel.OpCut && e.cfg.Attempt2D {
		if prism, rest, ok := e.attempt2D(a, bs, fuzz, fuzziness); ok {
			res.Used2D = true
			if len(rest) == 0 {
				res.Shape = prism
				res.Fuzziness = fuzz
				return res, nil
			}
			a, bs = prism, rest
		}
	}

	for {
		res.Attempts++
		r, ok := e.attempt(op, orig, a, bs, fuzz, fuzziness)
		if ok {
			if dbg != "" {
				e.dump(dbg, "r", []kernel.Shape{r})
			}
			res.Shape = r
			res.Fuzziness = fuzz
			return res, nil
		}

		next := fuzziness * e.cfg.EscalationFactor
		if !(next > fuzziness) || next-ulp > e.cfg.MaxFuzziness() || next >= minLen {
			e.log.Noticef("No longer attempting boolean operation with higher fuzziness")
			return res, geomerr.Errorf(geomerr.ToleranceExhausted, op.String(),
				"rejected %d attempts, last fuzziness %g", res.Attempts, fuzz)
		}
		fuzziness = next
		fuzz = math.Min(minLen/3, fuzziness)
		e.log.Noticef("Used fuzziness: %g", fuzz)
	}
}

func nonPrefix(manifold bool) string {
	if manifold {
		return ""
	}
	return "non-"
}

// unify merges coplanar faces of the operands. The first operand is
// simplified more aggressively than the tools.
func (e *Engine) unify(a kernel.Shape, bs []kernel.Shape, fuzziness float64) (kernel.Shape, []kernel.Shape) {
	simplify := func(name string, s kernel.Shape, tol float64) kernel.Shape {
		u, err := kernel.Call("unify", func() (kernel.Shape, error) {
			return e.k.Unify(s, tol)
		})
		if err != nil || u == nil {
			e.log.Debugf("Failed to simplify operand %s: %v", name, err)
			return s
		}
		e.log.Debugf("Simplified operand %s from %d to %d", name,
			validity.FaceCount(e.k, s), validity.FaceCount(e.k, u))
		return u
	}
	a = simplify("A", a, fuzziness*1000)
	out := make([]kernel.Shape, len(bs))
	for i, b := range bs {
		out[i] = simplify("B", b, fuzziness)
	}
	return a, out
}

// minFeature is the smallest edge length or vertex-edge gap of all
// operands. Vertex-edge gaps below the precision count as coincidence.
func (e *Engine) minFeature(a kernel.Shape, bs []kernel.Shape) float64 {
	all := append([]kernel.Shape{a}, bs...)
	m := math.Inf(1)
	for _, s := range all {
		m = math.Min(m, validity.MinEdgeLength(e.k, s))
	}
	for _, s := range all {
		m = math.Min(m, validity.MinVertexEdgeDistance(e.k, s, e.cfg.Precision, m))
	}
	return m
}

// attempt makes one kernel call on a and validates the outcome. The
// manifold and face gap checks compare against orig.
func (e *Engine) attempt(op kernel.Op, orig, a kernel.Shape, bs []kernel.Shape, fuzz, fuzziness float64) (kernel.Shape, bool) {
	type answer struct {
		shape kernel.Shape
		rep   kernel.Report
	}
	ans, err := kernel.Call(op.String(), func() (answer, error) {
		r, rep, err := e.k.Boolean(op, []kernel.Shape{a}, bs, fuzz)
		if err != nil && rep.HasError(kernel.AlertNotAllowed) {
			return answer{rep: rep}, nil
		}
		return answer{r, rep}, err
	})
	if err != nil {
		e.log.Noticef("%v", err)
		return nil, false
	}
	if ans.rep.HasError(kernel.AlertNotAllowed) {
		e.log.Errorf("Invalid operands. Using first operand")
		return a, true
	}
	if ans.rep.HasWarning(kernel.AlertSelfIntersection) {
		e.log.Noticef("Builder reports self-intersection in output")
		return nil, false
	}
	if ans.shape == nil {
		e.log.Noticef("Boolean operation yields no result")
		return nil, false
	}

	r := ans.shape
	healed, err := kernel.Call("heal", func() (kernel.Shape, error) {
		return e.k.Heal(r, fuzz)
	})
	if err != nil || healed == nil {
		e.log.Errorf("Shape healing failed on boolean result")
	} else {
		r = healed
	}

	if problems := e.k.Check(r); len(problems) > 0 {
		e.log.Noticef("Boolean operation yields invalid result")
		e.log.Noticef("%s", strings.Join(lo.Map(problems, func(p kernel.Problem, _ int) string {
			return p.String()
		}), ", "))
		return nil, false
	}

	if validity.IsManifold(e.k, orig) && !validity.IsManifold(e.k, r) {
		if op != kernel.OpCut || !e.toolsShareEdges(bs, fuzziness) {
			e.log.Noticef("Boolean operation yields non-manifold result")
			return nil, false
		}
	}

	if op == kernel.OpCut && e.onlyAddsFaces(a, r) {
		e.log.Noticef("Boolean result discarded because subtractions results in only the addition of faces")
		return nil, false
	}

	if reason, v, ok := e.features(orig, r, fuzz); !ok {
		e.log.Noticef("Boolean operation result failing %s interference check, with fuzziness %g with length %g",
			reason, fuzz, v)
		return nil, false
	}
	return r, true
}

// toolsShareEdges reports whether two tool edges overlap without their
// adjacent faces overlapping, which is how separate openings meeting
// along an edge legitimately produce a non-manifold cut. For every edge
// only the first overlapping edge found is considered.
func (e *Engine) toolsShareEdges(bs []kernel.Shape, tol float64) bool {
	var edges []kernel.Shape
	faces := make(map[kernel.Shape][]kernel.Shape)
	for _, b := range bs {
		for edge, fs := range e.k.Ancestors(b, kernel.KindEdge, kernel.KindFace) {
			if _, ok := faces[edge]; !ok {
				edges = append(edges, edge)
			}
			faces[edge] = append(faces[edge], fs...)
		}
	}
	idx := validity.NewIndex(e.k, edges, 0)
	for _, ei := range edges {
		for _, ej := range idx.Near(e.k.BoundingBox(ei).Enlarge(tol)) {
			if ej == ei {
				continue
			}
			if !e.k.EdgesOverlap(ei, ej, tol) && !e.k.EdgesOverlap(ej, ei, tol) {
				continue
			}
			if !e.anyFacesOverlap(faces[ei], faces[ej]) {
				return true
			}
			break
		}
	}
	return false
}

func (e *Engine) anyFacesOverlap(fs, gs []kernel.Shape) bool {
	for _, f := range fs {
		for _, g := range gs {
			if e.k.FacesOverlap(f, g) {
				return true
			}
		}
	}
	return false
}

// onlyAddsFaces reports whether cutting a, which has an open shell, gave
// a result that keeps every face of a and only adds new ones.
func (e *Engine) onlyAddsFaces(a, r kernel.Shape) bool {
	open := lo.ContainsBy(e.k.Explore(a, kernel.KindShell), func(sh kernel.Shape) bool {
		return !e.k.IsClosed(sh)
	})
	if !open {
		return false
	}
	kept := lo.SliceToMap(e.k.Explore(r, kernel.KindFace), func(f kernel.Shape) (kernel.Shape, bool) {
		return f, true
	})
	for _, f := range e.k.Explore(a, kernel.KindFace) {
		if !kept[f] {
			return false
		}
	}
	return validity.FaceCount(e.k, r) > validity.FaceCount(e.k, a)
}

// features checks the result for edges, vertex-edge gaps and face gaps
// that are too small to trust at this fuzziness.
func (e *Engine) features(a, r kernel.Shape, fuzz float64) (string, float64, bool) {
	limit := e.cfg.FeatureFactor * fuzz
	if v := validity.MinEdgeLength(e.k, r); v < limit {
		return "edge length", v, false
	}
	if v := validity.MinVertexEdgeDistance(e.k, r, e.cfg.Precision, limit); v < limit {
		return "vertex-edge", v, false
	}
	eps := e.cfg.FaceFaceEpsilon
	if v := validity.MinFaceFaceDistance(e.k, r, eps); v < eps {
		// The gap may already be present in the first operand.
		if v < validity.MinFaceFaceDistance(e.k, a, eps) {
			return "face-face", v, false
		}
	}
	return "", 0, true
}
