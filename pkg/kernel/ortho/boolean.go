package ortho

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
)

// operands splits shapes into solid boxes and free or shell faces.
func (k *Kernel) operands(shapes []kernel.Shape) ([]cuboid, []*Face, error) {
	var (
		cells []cuboid
		faces []*Face
		err   error
	)
	for _, s := range shapes {
		k.walk(s, func(x kernel.Shape) bool {
			switch x := x.(type) {
			case *Solid:
				cells = append(cells, x.cells...)
				return false
			case *Face:
				faces = append(faces, x)
				return false
			case *Edge, *Vertex:
				err = fmt.Errorf("ortho: %s is not a boolean operand", x.Kind())
				return false
			}
			return true
		})
	}
	return cells, faces, err
}

// Boolean implements kernel.Booleans. Solids combine with solids, faces
// with coplanar faces, and faces or shells may be cut by or intersected
// with solids. Tool coordinates within fuzz of an argument coordinate
// are snapped onto it.
func (k *Kernel) Boolean(op kernel.Op, args, tools []kernel.Shape, fuzz float64) (kernel.Shape, kernel.Report, error) {
	k.booleans.Add(1)
	var rep kernel.Report
	fault := NoFault
	if k.BooleanFault != nil {
		fault = k.BooleanFault(op, fuzz)
	}
	switch fault {
	case FailBuild:
		return nil, rep, fmt.Errorf("ortho: %s: builder is not done", op)
	case NotAllowed:
		rep.Errors = append(rep.Errors, kernel.AlertNotAllowed)
		return nil, rep, fmt.Errorf("ortho: %s: %s", op, kernel.AlertNotAllowed)
	}

	ac, af, err := k.operands(args)
	if err != nil {
		return nil, rep, err
	}
	tc, tf, err := k.operands(tools)
	if err != nil {
		return nil, rep, err
	}

	var res kernel.Shape
	switch {
	case len(af) == 0 && len(tf) == 0:
		res = solidBoolean(op, ac, snap(tc, ac, fuzz))
	case len(ac) == 0 && len(tc) == 0:
		res = faceBoolean(op, af, tf, fuzz)
	case len(ac) == 0 && len(tf) == 0 && op != kernel.OpFuse:
		res = shellBoolean(op, af, tc, fuzz, len(args) == 1 && args[0].Kind() == kernel.KindShell)
	default:
		rep.Errors = append(rep.Errors, kernel.AlertNotAllowed)
		return nil, rep, fmt.Errorf("ortho: %s of mixed dimensions: %s", op, kernel.AlertNotAllowed)
	}

	switch fault {
	case SelfIntersect:
		rep.Warnings = append(rep.Warnings, kernel.AlertSelfIntersection)
	case Corrupt:
		res = corrupt(res)
	case Imprint:
		res = k.imprint(args, tools)
	}
	return res, rep, nil
}

func (k *Kernel) imprint(args, tools []kernel.Shape) kernel.Shape {
	c := &Compound{parts: append([]kernel.Shape(nil), args...)}
	for _, t := range tools {
		for _, f := range k.faces(t) {
			c.parts = append(c.parts, f)
		}
	}
	return c
}

func solidBoolean(op kernel.Op, args, tools []cuboid) kernel.Shape {
	switch op {
	case kernel.OpCut:
		return result(subtract(args, tools))
	case kernel.OpCommon:
		return result(intersect(args, tools))
	default:
		return result(union(args, tools))
	}
}

func faceBoolean(op kernel.Op, args, tools []*Face, fuzz float64) kernel.Shape {
	p := seed(append(append([]*Face(nil), args...), tools...))
	var out []*Face
	for _, f := range args {
		var rs []rect
		for _, t := range tools {
			if coplanar(f, t, fuzz) {
				rs = append(rs, t.rect)
			}
		}
		switch op {
		case kernel.OpCut:
			out = append(out, cutFace(p, f, rs)...)
		case kernel.OpCommon:
			out = append(out, commonFace(p, f, rs)...)
		default:
			out = append(out, f)
		}
	}
	if op == kernel.OpFuse {
		for _, t := range tools {
			var rs []rect
			for _, f := range args {
				if coplanar(f, t, fuzz) {
					rs = append(rs, f.rect)
				}
			}
			out = append(out, cutFace(p, t, rs)...)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return faceCompound(out)
}

// shellBoolean cuts faces by solids, or keeps the parts inside them.
func shellBoolean(op kernel.Op, faces []*Face, tools []cuboid, fuzz float64, asShell bool) kernel.Shape {
	p := seed(faces)
	var out []*Face
	for _, f := range faces {
		var rs []rect
		for _, t := range tools {
			if crosses(t, f.axis, f.level, fuzz) {
				rs = append(rs, projection(t.box(), f.axis))
			}
		}
		if op == kernel.OpCut {
			out = append(out, cutFace(p, f, rs)...)
		} else {
			out = append(out, commonFace(p, f, rs)...)
		}
	}
	if asShell {
		return &Shell{faces: out}
	}
	return faceCompound(out)
}

func faceCompound(faces []*Face) *Compound {
	c := &Compound{}
	for _, f := range faces {
		c.parts = append(c.parts, f)
	}
	return c
}

// corrupt marks a result so that Check reports it.
func corrupt(s kernel.Shape) kernel.Shape {
	const flaw = "BRepCheck_NotClosed"
	switch s := s.(type) {
	case *Solid:
		c := newSolid(s.cells)
		c.reversed, c.flaw = s.reversed, flaw
		return c
	case *Compound:
		return &Compound{parts: s.parts, flaw: flaw}
	}
	return &Compound{parts: []kernel.Shape{s}, flaw: flaw}
}

// CutCommon implements kernel.Booleans.
func (k *Kernel) CutCommon(input, tool kernel.Shape) (kernel.Shape, kernel.Shape, error) {
	ic, _, err := k.operands([]kernel.Shape{input})
	if err != nil {
		return nil, nil, err
	}
	tc, _, err := k.operands([]kernel.Shape{tool})
	if err != nil {
		return nil, nil, err
	}
	if len(ic) == 0 || len(tc) == 0 {
		return nil, nil, errors.New("ortho: cut/common needs solid operands")
	}
	return result(subtract(ic, tc)), result(intersect(ic, tc)), nil
}

// Split implements kernel.Booleans. Every box crossed by a tool face is
// divided at the face plane, both halves carrying the tool surface; the
// pieces are the groups of boxes still connected without crossing a
// tool face.
func (k *Kernel) Split(args, tools []kernel.Shape, fuzz float64) (kernel.Shape, error) {
	cells, af, err := k.operands(args)
	if err != nil {
		return nil, err
	}
	if len(af) > 0 {
		return nil, errors.New("ortho: split arguments must be solids")
	}
	var tf []*Face
	for _, t := range tools {
		tf = append(tf, k.faces(t)...)
	}
	for _, f := range tf {
		var next []cuboid
		for _, c := range cells {
			if !crosses(c, f.axis, f.level, fuzz) {
				next = append(next, c)
				continue
			}
			if _, ok := rectOverlap(projection(c.box(), f.axis), f.rect); !ok {
				next = append(next, c)
				continue
			}
			lo, hi := c, c
			lo.hi = geom.Set(lo.hi, f.axis, f.level)
			lo.srf[sideIndex(f.axis, true)] = f.srf
			hi.lo = geom.Set(hi.lo, f.axis, f.level)
			hi.srf[sideIndex(f.axis, false)] = f.srf
			next = append(next, lo, hi)
		}
		cells = next
	}
	blocked := func(a, b cuboid, ax geom.Axis, level float64) bool {
		shared, ok := rectOverlap(projection(a.box(), ax), projection(b.box(), ax))
		if !ok {
			return false
		}
		for _, f := range tf {
			if f.axis != ax || math.Abs(f.level-level) > fuzz {
				continue
			}
			if _, ok := rectOverlap(f.rect, shared); ok {
				return true
			}
		}
		return false
	}
	out := &Compound{}
	for _, g := range components(cells, blocked) {
		out.parts = append(out.parts, newSolid(g))
	}
	return out, nil
}

// Sew implements kernel.Booleans. Face coordinates within tol are
// merged, after which faces with coincident edges share them. Connected
// groups of faces become shells; faces connected to nothing stay loose.
func (k *Kernel) Sew(faces []kernel.Shape, tol float64) (kernel.Shape, error) {
	var fs []*Face
	for _, s := range faces {
		fs = append(fs, k.faces(s)...)
	}
	if len(fs) == 0 {
		return nil, errors.New("ortho: nothing to sew")
	}

	var vals [3][]float64
	for _, f := range fs {
		b := f.box()
		for a := geom.X; a <= geom.Z; a++ {
			vals[a] = append(vals[a], geom.Get(b.Min, a), geom.Get(b.Max, a))
		}
	}
	var reps [3]map[float64]float64
	for a := range vals {
		reps[a] = make(map[float64]float64)
		var start float64
		for i, x := range uniq(vals[a]) {
			if i == 0 || x-start > tol {
				start = x
			}
			reps[a][x] = start
		}
	}

	p := newPool()
	var sewn []*Face
	for _, f := range fs {
		u, v := uAxis(f.axis), vAxis(f.axis)
		r := rect{
			{reps[u][f.rect[0][0]], reps[u][f.rect[0][1]]},
			{reps[v][f.rect[1][0]], reps[v][f.rect[1][1]]},
		}
		if rectArea(r) > 0 {
			sewn = append(sewn, newFace(p, f.axis, reps[f.axis][f.level], r, f.sign, f.srf))
		}
	}

	parent := make([]int, len(sewn))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	first := make(map[*Edge]int)
	for i, f := range sewn {
		for _, e := range f.edges {
			if j, ok := first[e]; ok {
				parent[find(i)] = find(j)
			} else {
				first[e] = i
			}
		}
	}
	groups := make(map[int][]*Face)
	var order []int
	for i, f := range sewn {
		r := find(i)
		if _, ok := groups[r]; !ok {
			order = append(order, r)
		}
		groups[r] = append(groups[r], f)
	}

	var shells, loose []kernel.Shape
	for _, r := range order {
		g := groups[r]
		if len(g) == 1 {
			loose = append(loose, g[0])
			continue
		}
		shells = append(shells, &Shell{faces: g})
	}
	if len(shells) == 1 && len(loose) == 0 {
		return shells[0], nil
	}
	return &Compound{parts: append(shells, loose...)}, nil
}

// Unify implements kernel.Booleans by merging boxes that together form
// a box, which removes the faces and edges between them.
func (k *Kernel) Unify(s kernel.Shape, tol float64) (kernel.Shape, error) {
	switch s := s.(type) {
	case *Solid:
		m := merge(s.cells)
		if len(m) == len(s.cells) {
			return s, nil
		}
		u := newSolid(m)
		u.reversed, u.flaw = s.reversed, s.flaw
		return u, nil
	case *Compound:
		c := &Compound{flaw: s.flaw}
		changed := false
		for _, p := range s.parts {
			u, err := k.Unify(p, tol)
			if err != nil {
				return nil, err
			}
			changed = changed || u != p
			c.parts = append(c.parts, u)
		}
		if !changed {
			return s, nil
		}
		return c, nil
	}
	return s, nil
}
