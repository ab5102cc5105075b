package engine

import (
	"errors"
	"fmt"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/kernel"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point or direction.
type sexpVec3 struct {
	vec r3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpRect is an extrusion profile in the coordinates of the profile
// plane.
type sexpRect struct {
	u0, v0, u1, v1 float64
}

func (r *sexpRect) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(rect %g %g %g %g)", r.u0, r.v0, r.u1, r.v1)
}
func (r *sexpRect) Type() *zygo.RegisteredType { return nil }

// sexpPlacement wraps a local coordinate system.
type sexpPlacement struct {
	t geom.Transform
}

func (p *sexpPlacement) SexpString(ps *zygo.PrintState) string {
	o := p.t.TranslationPart()
	return fmt.Sprintf("(placement :at (vec3 %g %g %g))", o.X, o.Y, o.Z)
}
func (p *sexpPlacement) Type() *zygo.RegisteredType { return nil }

// sexpStyle wraps an interned style.
type sexpStyle struct {
	style *element.Style
}

func (s *sexpStyle) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(style :id %q)", s.style.ID)
}
func (s *sexpStyle) Type() *zygo.RegisteredType { return nil }

// sexpCurve wraps a layer axis curve.
type sexpCurve struct {
	curve kernel.Curve
}

func (c *sexpCurve) SexpString(ps *zygo.PrintState) string {
	if c.curve.IsCircular() {
		return fmt.Sprintf("(circle :radius %g)", c.curve.Radius)
	}
	return fmt.Sprintf("(line length %g)", c.curve.Length())
}
func (c *sexpCurve) Type() *zygo.RegisteredType { return nil }

// sexpSurface wraps a layer reference surface.
type sexpSurface struct {
	srf *kernel.Surface
}

func (s *sexpSurface) SexpString(ps *zygo.PrintState) string {
	n := s.srf.Axis()
	return fmt.Sprintf("(plane :normal (vec3 %g %g %g))", n.X, n.Y, n.Z)
}
func (s *sexpSurface) Type() *zygo.RegisteredType { return nil }

// sexpItem wraps a representation item returned by the shape builtins.
type sexpItem struct {
	item element.Item
}

func (it *sexpItem) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(item %q)", it.item.ID)
}
func (it *sexpItem) Type() *zygo.RegisteredType { return nil }

// sexpLayer wraps one material layer.
type sexpLayer struct {
	layer element.Layer
}

func (l *sexpLayer) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(layer %g)", l.layer.Thickness)
}
func (l *sexpLayer) Type() *zygo.RegisteredType { return nil }

// sexpLayers wraps a layer specification.
type sexpLayers struct {
	spec *element.LayerSpec
}

func (l *sexpLayers) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(layers :sense :%s <%d layers>)", l.spec.Sense, len(l.spec.Layers))
}
func (l *sexpLayers) Type() *zygo.RegisteredType { return nil }

// sexpOpening wraps an opening.
type sexpOpening struct {
	opening element.Opening
}

func (o *sexpOpening) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(opening %q)", o.opening.ID)
}
func (o *sexpOpening) Type() *zygo.RegisteredType { return nil }

// sexpElementRef is returned by `element` once the element is recorded.
type sexpElementRef struct {
	id string
}

func (e *sexpElementRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(element %q)", e.id)
}
func (e *sexpElementRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	name, _ := isKW(str)
	if name == "" {
		name = str.S
	}
	return name, nil
}

// toAxis converts a keyword or string to a geom.Axis.
func toAxis(s zygo.Sexp) (geom.Axis, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected axis keyword (:x, :y, :z): %w", err)
	}
	switch name {
	case "x":
		return geom.X, nil
	case "y":
		return geom.Y, nil
	case "z":
		return geom.Z, nil
	}
	return 0, fmt.Errorf("invalid axis %q, expected x, y, or z", name)
}

// toVec3 extracts a vector from a sexpVec3.
func toVec3(s zygo.Sexp) (r3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return r3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toDirection extracts a non-zero vector.
func toDirection(s zygo.Sexp) (r3.Vec, error) {
	v, err := toVec3(s)
	if err != nil {
		return v, err
	}
	if r3.Norm(v) == 0 {
		return v, errors.New("zero direction")
	}
	return v, nil
}

func toPlacement(s zygo.Sexp) (geom.Transform, error) {
	if p, ok := s.(*sexpPlacement); ok {
		return p.t, nil
	}
	return geom.Identity(), fmt.Errorf("expected placement, got %T (%s)", s, s.SexpString(nil))
}

func toStyle(s zygo.Sexp) (*element.Style, error) {
	if st, ok := s.(*sexpStyle); ok {
		return st.style, nil
	}
	return nil, fmt.Errorf("expected style, got %T (%s)", s, s.SexpString(nil))
}

func toCurve(s zygo.Sexp) (kernel.Curve, error) {
	if c, ok := s.(*sexpCurve); ok {
		return c.curve, nil
	}
	return kernel.Curve{}, fmt.Errorf("expected line or circle, got %T (%s)", s, s.SexpString(nil))
}

func toSurface(s zygo.Sexp) (*kernel.Surface, error) {
	if srf, ok := s.(*sexpSurface); ok {
		return srf.srf, nil
	}
	return nil, fmt.Errorf("expected plane, got %T (%s)", s, s.SexpString(nil))
}

// toItems accepts a single shape item or a list of them.
func toItems(s zygo.Sexp) ([]element.Item, error) {
	if it, ok := s.(*sexpItem); ok {
		return []element.Item{it.item}, nil
	}
	list, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	items := make([]element.Item, 0, len(list))
	for i, x := range list {
		it, ok := x.(*sexpItem)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected shape, got %T (%s)", i, x, x.SexpString(nil))
		}
		items = append(items, it.item)
	}
	return items, nil
}

// toOpenings accepts a single opening or a list of them.
func toOpenings(s zygo.Sexp) ([]element.Opening, error) {
	if o, ok := s.(*sexpOpening); ok {
		return []element.Opening{o.opening}, nil
	}
	list, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	out := make([]element.Opening, 0, len(list))
	for i, x := range list {
		o, ok := x.(*sexpOpening)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected opening, got %T (%s)", i, x, x.SexpString(nil))
		}
		out = append(out, o.opening)
	}
	return out, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Model under construction
// ---------------------------------------------------------------------------

// model collects the elements declared by one evaluation.
type model struct {
	k        kernel.Builder
	styles   *element.StyleCache
	elements []element.Element
	seq      int
}

func newModel(k kernel.Builder, styles *element.StyleCache) *model {
	return &model{k: k, styles: styles, elements: []element.Element{}}
}

// nextID names anonymous items. Numbering restarts with every
// evaluation so identical sources give identical identifiers.
func (m *model) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_%d", prefix, m.seq)
}

func (m *model) intern(s *element.Style) *element.Style {
	if m.styles == nil {
		return s
	}
	return m.styles.Intern(s)
}

// extrude sweeps r along axis a from level from to level to. The
// profile coordinates (u, v) run along (y, z) for :x, (x, z) for :y and
// (x, y) for :z.
func (m *model) extrude(a geom.Axis, r sexpRect, from, to float64) (kernel.Shape, error) {
	if from == to {
		return nil, errors.New("zero extrusion length")
	}
	origin := geom.Set(r3.Vec{}, a, from)
	var srf *kernel.Surface
	switch a {
	case geom.X:
		srf = kernel.PlaneFrame(origin, geom.X.Unit(), geom.Y.Unit())
	case geom.Y:
		srf = kernel.PlaneFrame(origin, r3.Scale(-1, geom.Y.Unit()), geom.X.Unit())
	default:
		srf = kernel.PlaneFrame(origin, geom.Z.Unit(), geom.X.Unit())
	}
	face, err := m.k.MakeFace(srf, min(r.u0, r.u1), max(r.u0, r.u1), min(r.v0, r.v1), max(r.v0, r.v1))
	if err != nil {
		return nil, err
	}
	return m.k.Prism(face, r3.Scale(to-from, a.Unit()))
}

// item wraps shape with the keywords every shape builtin accepts.
func (m *model) item(fn string, pa kwArgs, shape kernel.Shape) (zygo.Sexp, error) {
	it := element.Item{Shape: shape}
	if v, ok := pa.kw["id"]; ok {
		s, err := toString(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: id: %w", fn, err)
		}
		it.ID = s
	} else {
		it.ID = m.nextID(fn)
	}
	if v, ok := pa.kw["style"]; ok {
		st, err := toStyle(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: style: %w", fn, err)
		}
		it.Style = st
	}
	if v, ok := pa.kw["placement"]; ok {
		p, err := toPlacement(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: placement: %w", fn, err)
		}
		it.Placement = p
	}
	return &sexpItem{item: it}, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs all Mortise DSL builtins into a zygomys
// environment. The builtins record elements in m during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, m *model) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", geom.Axis(i), err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (rect 0 0 4 3)
	// -----------------------------------------------------------------------
	env.AddFunction("rect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 4 {
			return zygo.SexpNull, fmt.Errorf("rect requires exactly 4 arguments, got %d", len(args))
		}
		var c [4]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("rect: argument %d: %w", i+1, err)
			}
			c[i] = f
		}
		return &sexpRect{u0: c[0], v0: c[1], u1: c[2], v1: c[3]}, nil
	})

	// -----------------------------------------------------------------------
	// (box :min (vec3 0 0 0) :max (vec3 4 0.3 3) :id "body" :style brick)
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("min", "max", "id", "style", "placement"); err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		var corners [2]r3.Vec
		for i, key := range []string{"min", "max"} {
			v, err := pa.required(key)
			if err == nil {
				corners[i], err = toVec3(v)
			}
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: %s: %w", key, err)
			}
		}
		b := geom.NewBox(corners[0], corners[1])
		shape, err := m.extrude(geom.Z, sexpRect{u0: b.Min.X, v0: b.Min.Y, u1: b.Max.X, v1: b.Max.Y}, b.Min.Z, b.Max.Z)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		return m.item("box", pa, shape)
	})

	// -----------------------------------------------------------------------
	// (extrude :profile (rect 0 0 4 3) :axis :y :from 0 :to 0.3)
	// -----------------------------------------------------------------------
	env.AddFunction("extrude", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("profile", "axis", "from", "to", "id", "style", "placement"); err != nil {
			return zygo.SexpNull, fmt.Errorf("extrude: %w", err)
		}
		v, err := pa.required("profile")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("extrude: %w", err)
		}
		r, ok := v.(*sexpRect)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("extrude: profile: expected rect, got %T (%s)", v, v.SexpString(nil))
		}
		axis := geom.Z
		if v, ok := pa.kw["axis"]; ok {
			if axis, err = toAxis(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("extrude: axis: %w", err)
			}
		}
		var levels [2]float64
		for i, key := range []string{"from", "to"} {
			v, err := pa.required(key)
			if err == nil {
				levels[i], err = toFloat64(v)
			}
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("extrude: %s: %w", key, err)
			}
		}
		shape, err := m.extrude(axis, *r, levels[0], levels[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("extrude: %w", err)
		}
		return m.item("extrude", pa, shape)
	})

	// -----------------------------------------------------------------------
	// (placement :at (vec3 0 0 0) :axis (vec3 0 0 1) :ref (vec3 1 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("placement", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("at", "axis", "ref"); err != nil {
			return zygo.SexpNull, fmt.Errorf("placement: %w", err)
		}
		var at, ref r3.Vec
		axis := geom.Z.Unit()
		var err error
		if v, ok := pa.kw["at"]; ok {
			if at, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("placement: at: %w", err)
			}
		}
		if v, ok := pa.kw["axis"]; ok {
			if axis, err = toDirection(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("placement: axis: %w", err)
			}
		}
		if v, ok := pa.kw["ref"]; ok {
			if ref, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("placement: ref: %w", err)
			}
		}
		return &sexpPlacement{t: geom.Placement(at, axis, ref)}, nil
	})

	// -----------------------------------------------------------------------
	// (style :id "brick" :name "Brick" :color "#aa5533" :transparency 0)
	// -----------------------------------------------------------------------
	env.AddFunction("style", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("id", "name", "color", "transparency"); err != nil {
			return zygo.SexpNull, fmt.Errorf("style: %w", err)
		}
		st := &element.Style{}
		if v, ok := pa.kw["id"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("style: id: %w", err)
			}
			st.ID = s
		}
		if v, ok := pa.kw["name"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("style: name: %w", err)
			}
			st.Name = s
		}
		if v, ok := pa.kw["color"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("style: color: %w", err)
			}
			c, err := element.ParseColor(s)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("style: %w", err)
			}
			st.Color = c
		}
		if v, ok := pa.kw["transparency"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("style: transparency: %w", err)
			}
			if f < 0 || f > 1 {
				return zygo.SexpNull, fmt.Errorf("style: transparency %g outside [0, 1]", f)
			}
			st.Transparency = f
		}
		return &sexpStyle{style: m.intern(st)}, nil
	})

	// -----------------------------------------------------------------------
	// (line (vec3 0 0 0) (vec3 4 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("line", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("line requires exactly 2 points, got %d", len(args))
		}
		a, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("line: start: %w", err)
		}
		b, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("line: end: %w", err)
		}
		if a == b {
			return zygo.SexpNull, errors.New("line: start and end coincide")
		}
		return &sexpCurve{curve: kernel.Line(a, b)}, nil
	})

	// -----------------------------------------------------------------------
	// (circle :center (vec3 0 0 0) :axis (vec3 0 0 1) :ref (vec3 1 0 0) :radius 5)
	// -----------------------------------------------------------------------
	env.AddFunction("circle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("center", "axis", "ref", "radius"); err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: %w", err)
		}
		var center r3.Vec
		axis, ref := geom.Z.Unit(), geom.X.Unit()
		var err error
		if v, ok := pa.kw["center"]; ok {
			if center, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("circle: center: %w", err)
			}
		}
		if v, ok := pa.kw["axis"]; ok {
			if axis, err = toDirection(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("circle: axis: %w", err)
			}
		}
		if v, ok := pa.kw["ref"]; ok {
			if ref, err = toDirection(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("circle: ref: %w", err)
			}
		}
		v, err := pa.required("radius")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: %w", err)
		}
		r, err := toFloat64(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: radius: %w", err)
		}
		if r <= 0 {
			return zygo.SexpNull, fmt.Errorf("circle: radius %g must be positive", r)
		}
		return &sexpCurve{curve: kernel.Circle(center, axis, ref, r)}, nil
	})

	// -----------------------------------------------------------------------
	// (plane :at (vec3 0 0.3 0) :normal (vec3 0 -1 0))
	// -----------------------------------------------------------------------
	env.AddFunction("plane", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("at", "normal", "xdir"); err != nil {
			return zygo.SexpNull, fmt.Errorf("plane: %w", err)
		}
		var at r3.Vec
		var err error
		if v, ok := pa.kw["at"]; ok {
			if at, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("plane: at: %w", err)
			}
		}
		v, err := pa.required("normal")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("plane: %w", err)
		}
		n, err := toDirection(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("plane: normal: %w", err)
		}
		if v, ok := pa.kw["xdir"]; ok {
			x, err := toDirection(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("plane: xdir: %w", err)
			}
			return &sexpSurface{srf: kernel.PlaneFrame(at, n, x)}, nil
		}
		return &sexpSurface{srf: kernel.Plane(at, n)}, nil
	})

	// -----------------------------------------------------------------------
	// (layer 0.1 plaster)
	// -----------------------------------------------------------------------
	env.AddFunction("layer", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 || len(args) > 2 {
			return zygo.SexpNull, fmt.Errorf("layer requires a thickness and an optional style, got %d arguments", len(args))
		}
		t, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("layer: thickness: %w", err)
		}
		l := element.Layer{Thickness: t}
		if len(args) == 2 {
			if l.Style, err = toStyle(args[1]); err != nil {
				return zygo.SexpNull, fmt.Errorf("layer: style: %w", err)
			}
		}
		return &sexpLayer{layer: l}, nil
	})

	// -----------------------------------------------------------------------
	// (layers :sense :positive :offset 0 :axis (line ...) (layer ...) ...)
	// (layers :folded (list (list p1 p2) ...) (layer ...) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("layers", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("sense", "offset", "axis", "reference", "folded"); err != nil {
			return zygo.SexpNull, fmt.Errorf("layers: %w", err)
		}
		ls := &element.LayerSpec{}
		if v, ok := pa.kw["sense"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("layers: sense: %w", err)
			}
			switch s {
			case "positive":
				ls.Sense = element.SensePositive
			case "negative":
				ls.Sense = element.SenseNegative
			default:
				return zygo.SexpNull, fmt.Errorf("layers: invalid sense %q, expected positive or negative", s)
			}
		}
		if v, ok := pa.kw["offset"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("layers: offset: %w", err)
			}
			ls.Offset = f
		}
		if v, ok := pa.kw["axis"]; ok {
			c, err := toCurve(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("layers: axis: %w", err)
			}
			ls.Axis = &c
		}
		if v, ok := pa.kw["reference"]; ok {
			srf, err := toSurface(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("layers: reference: %w", err)
			}
			ls.Reference = srf
		}
		if v, ok := pa.kw["folded"]; ok {
			groups, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("layers: folded: %w", err)
			}
			for i, g := range groups {
				list, err := sexpListToSlice(g)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("layers: folded group %d: %w", i, err)
				}
				var group []*kernel.Surface
				for _, x := range list {
					srf, err := toSurface(x)
					if err != nil {
						return zygo.SexpNull, fmt.Errorf("layers: folded group %d: %w", i, err)
					}
					group = append(group, srf)
				}
				ls.Folded = append(ls.Folded, group)
			}
		}
		for i, x := range pa.positional {
			l, ok := x.(*sexpLayer)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("layers: entry %d: expected layer, got %T (%s)", i, x, x.SexpString(nil))
			}
			ls.Layers = append(ls.Layers, l.layer)
		}
		return &sexpLayers{spec: ls}, nil
	})

	// -----------------------------------------------------------------------
	// (opening :id "window" :placement p (box ...) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("opening", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.only("id", "placement"); err != nil {
			return zygo.SexpNull, fmt.Errorf("opening: %w", err)
		}
		o := element.Opening{}
		if v, ok := pa.kw["id"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("opening: id: %w", err)
			}
			o.ID = s
		} else {
			o.ID = m.nextID("opening")
		}
		if v, ok := pa.kw["placement"]; ok {
			p, err := toPlacement(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("opening: placement: %w", err)
			}
			o.Placement = p
		}
		for _, x := range pa.positional {
			items, err := toItems(x)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("opening %s: %w", o.ID, err)
			}
			o.Items = append(o.Items, items...)
		}
		return &sexpOpening{opening: o}, nil
	})

	// -----------------------------------------------------------------------
	// (element "W1" :kind :wall :placement p :body (list ...)
	//          :openings (list ...) :layers ls)
	// -----------------------------------------------------------------------
	env.AddFunction("element", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("element requires an id argument")
		}
		id, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("element: id: %w", err)
		}
		if err := pa.only("kind", "placement", "body", "openings", "layers"); err != nil {
			return zygo.SexpNull, fmt.Errorf("element %s: %w", id, err)
		}

		e := element.Element{ID: id}
		if v, ok := pa.kw["kind"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("element %s: kind: %w", id, err)
			}
			if e.Kind, err = element.ParseKind(s); err != nil {
				return zygo.SexpNull, fmt.Errorf("element %s: %w", id, err)
			}
		}
		if v, ok := pa.kw["placement"]; ok {
			if e.Placement, err = toPlacement(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("element %s: placement: %w", id, err)
			}
		}
		if v, ok := pa.kw["body"]; ok {
			if e.Body, err = toItems(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("element %s: body: %w", id, err)
			}
		}
		if v, ok := pa.kw["openings"]; ok {
			if e.Openings, err = toOpenings(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("element %s: openings: %w", id, err)
			}
		}
		if v, ok := pa.kw["layers"]; ok {
			l, ok := v.(*sexpLayers)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("element %s: layers: expected layers, got %T (%s)", id, v, v.SexpString(nil))
			}
			e.Layers = l.spec
		}

		m.elements = append(m.elements, e)
		return &sexpElementRef{id: id}, nil
	})
}
