package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/kernel/ortho"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(style :id "brick")`,
			expect: `(style "__kw_id" "brick")`,
		},
		{
			name:   "multiple keywords",
			input:  `(extrude :from 0 :to 3)`,
			expect: `(extrude "__kw_from" 0 "__kw_to" 3)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(outer-wall :sense :positive)`,
			expect: `(outer_wall "__kw_sense" "__kw_positive")`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative number preserved",
			input:  `(vec3 0 -1 0)`,
			expect: `(vec3 0 -1 0)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:layer-set`,
			expect: `"__kw_layer-set"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// evaluate runs source and fails the test on any error.
func evaluate(t *testing.T, source string) []element.Element {
	t.Helper()
	elems, evalErrs, err := newEngine(t).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return elems
}

// evaluateErr runs source and returns the joined eval error messages.
func evaluateErr(t *testing.T, source string) string {
	t.Helper()
	elems, evalErrs, err := newEngine(t).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if elems != nil {
		t.Fatalf("expected nil elements, got %d", len(elems))
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval errors")
	}
	var msgs []string
	for _, e := range evalErrs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func nearVec(a, b r3.Vec) bool { return geom.EqualWithin(a, b, 1e-9) }

// ---------------------------------------------------------------------------
// Shape builtins
// ---------------------------------------------------------------------------

func TestBoxElement(t *testing.T) {
	source := `
(element "W1" :kind :wall
  :body (list (box :min (vec3 0 0 0) :max (vec3 4 0.3 3) :id "body")))
`
	elems := evaluate(t, source)
	if len(elems) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elems))
	}
	e := elems[0]
	if e.ID != "W1" {
		t.Errorf("id = %q, want W1", e.ID)
	}
	if e.Kind != element.KindWall {
		t.Errorf("kind = %s, want wall", e.Kind)
	}
	if len(e.Body) != 1 {
		t.Fatalf("expected 1 body item, got %d", len(e.Body))
	}
	if e.Body[0].ID != "body" {
		t.Errorf("item id = %q, want body", e.Body[0].ID)
	}
	k := ortho.New()
	if v := k.Volume(e.Body[0].Shape); !near(v, 3.6) {
		t.Errorf("volume = %g, want 3.6", v)
	}
	bb := k.BoundingBox(e.Body[0].Shape)
	if !nearVec(bb.Min, r3.Vec{}) || !nearVec(bb.Max, r3.Vec{X: 4, Y: 0.3, Z: 3}) {
		t.Errorf("bounding box = %v", bb)
	}
}

func TestBoxCornersInAnyOrder(t *testing.T) {
	elems := evaluate(t, `(element "C1" :kind :column :body (box :min (vec3 1 1 3) :max (vec3 0 0 0)))`)
	if v := ortho.New().Volume(elems[0].Body[0].Shape); !near(v, 3) {
		t.Errorf("volume = %g, want 3", v)
	}
}

func TestExtrudeAxes(t *testing.T) {
	tests := []struct {
		axis     string
		min, max r3.Vec
	}{
		// profile (u, v) runs along (y, z) for :x
		{axis: ":x", min: r3.Vec{X: 1, Y: 0, Z: 0}, max: r3.Vec{X: 2, Y: 4, Z: 3}},
		// (x, z) for :y
		{axis: ":y", min: r3.Vec{X: 0, Y: 1, Z: 0}, max: r3.Vec{X: 4, Y: 2, Z: 3}},
		// (x, y) for :z
		{axis: ":z", min: r3.Vec{X: 0, Y: 0, Z: 1}, max: r3.Vec{X: 4, Y: 3, Z: 2}},
	}
	k := ortho.New()
	for _, tt := range tests {
		t.Run(tt.axis, func(t *testing.T) {
			source := `(element "E" :body (extrude :profile (rect 0 0 4 3) :axis ` + tt.axis + ` :from 1 :to 2))`
			elems := evaluate(t, source)
			bb := k.BoundingBox(elems[0].Body[0].Shape)
			if !nearVec(bb.Min, tt.min) || !nearVec(bb.Max, tt.max) {
				t.Errorf("bounding box = %v, want %v..%v", bb, tt.min, tt.max)
			}
			if v := k.Volume(elems[0].Body[0].Shape); !near(v, 12) {
				t.Errorf("volume = %g, want 12", v)
			}
		})
	}
}

func TestExtrudeBackwards(t *testing.T) {
	elems := evaluate(t, `(element "E" :body (extrude :profile (rect 0 0 1 1) :axis :y :from 0.3 :to 0))`)
	bb := ortho.New().BoundingBox(elems[0].Body[0].Shape)
	if !near(bb.Min.Y, 0) || !near(bb.Max.Y, 0.3) {
		t.Errorf("bounding box = %v, want y in [0, 0.3]", bb)
	}
}

func TestExtrudeErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"zero length", `(extrude :profile (rect 0 0 1 1) :from 1 :to 1)`, "zero extrusion length"},
		{"missing profile", `(extrude :from 0 :to 1)`, "missing :profile"},
		{"bad axis", `(extrude :profile (rect 0 0 1 1) :axis :w :from 0 :to 1)`, `invalid axis "w"`},
		{"bad profile", `(extrude :profile (vec3 0 0 1) :from 0 :to 1)`, "expected rect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := evaluateErr(t, tt.source); !strings.Contains(msg, tt.want) {
				t.Errorf("error %q does not mention %q", msg, tt.want)
			}
		})
	}
}

func TestAnonymousItemsAreNumbered(t *testing.T) {
	source := `
(def a (box :min (vec3 0 0 0) :max (vec3 1 1 1)))
(def b (extrude :profile (rect 0 0 1 1) :from 0 :to 1))
(element "E" :body (list a b))
`
	elems := evaluate(t, source)
	if got := elems[0].Body[0].ID; got != "box_1" {
		t.Errorf("first id = %q, want box_1", got)
	}
	if got := elems[0].Body[1].ID; got != "extrude_2" {
		t.Errorf("second id = %q, want extrude_2", got)
	}
}

func TestVariableReference(t *testing.T) {
	source := `
(def h 3)
(def body (box :min (vec3 0 0 0) :max (vec3 4 0.3 h)))
(element "W1" :body body)
(element "W2" :body body)
`
	elems := evaluate(t, source)
	if len(elems) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elems))
	}
	if elems[0].Body[0].Shape != elems[1].Body[0].Shape {
		t.Error("expected the shared definition to give the same shape")
	}
	if v := ortho.New().Volume(elems[0].Body[0].Shape); !near(v, 3.6) {
		t.Errorf("volume = %g, want 3.6 (height from variable)", v)
	}
}

// ---------------------------------------------------------------------------
// Placement, styles and curves
// ---------------------------------------------------------------------------

func TestPlacement(t *testing.T) {
	source := `
(element "W1"
  :placement (placement :at (vec3 10 20 0))
  :body (box :min (vec3 0 0 0) :max (vec3 1 1 1)
             :placement (placement :at (vec3 0 0 5) :axis (vec3 1 0 0))))
`
	e := evaluate(t, source)[0]
	if got := e.Placement.TranslationPart(); !nearVec(got, r3.Vec{X: 10, Y: 20}) {
		t.Errorf("element translation = %v", got)
	}
	it := e.Body[0]
	if got := it.Placement.Apply(r3.Vec{Z: 1}); !nearVec(got, r3.Vec{X: 1, Z: 5}) {
		t.Errorf("item local z maps to %v, want (1, 0, 5)", got)
	}
}

func TestPlacementRejectsZeroAxis(t *testing.T) {
	msg := evaluateErr(t, `(placement :axis (vec3 0 0 0))`)
	if !strings.Contains(msg, "zero direction") {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestStyleInterned(t *testing.T) {
	source := `
(def a (style :id "brick" :name "Brick" :color "#aa5533"))
(def b (style :id "brick" :color "#000000"))
(element "W1" :body (list (box :min (vec3 0 0 0) :max (vec3 1 1 1) :style a)
                          (box :min (vec3 1 0 0) :max (vec3 2 1 1) :style b)))
`
	e := evaluate(t, source)[0]
	if e.Body[0].Style == nil || e.Body[0].Style != e.Body[1].Style {
		t.Fatal("expected both items to share the interned style")
	}
	st := e.Body[0].Style
	if st.Name != "Brick" {
		t.Errorf("name = %q, want Brick", st.Name)
	}
	if got := st.Color.Hex(); got != "#aa5533" {
		t.Errorf("color = %s, want #aa5533 (first definition wins)", got)
	}
}

func TestStyleErrors(t *testing.T) {
	if msg := evaluateErr(t, `(style :id "x" :color "red")`); !strings.Contains(msg, "expected #rrggbb") {
		t.Errorf("unexpected error %q", msg)
	}
	if msg := evaluateErr(t, `(style :id "x" :transparency 2)`); !strings.Contains(msg, "outside [0, 1]") {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestCircleDefaults(t *testing.T) {
	source := `
(element "W1"
  :body (box :min (vec3 0 0 0) :max (vec3 1 1 1))
  :layers (layers :axis (circle :radius 5) (layer 0.1) (layer 0.2)))
`
	c := evaluate(t, source)[0].Layers.Axis
	if c == nil || !c.IsCircular() {
		t.Fatalf("expected circular axis, got %+v", c)
	}
	if !near(c.Radius, 5) || !nearVec(c.Start, r3.Vec{X: 5}) || !nearVec(c.Axis, r3.Vec{Z: 1}) {
		t.Errorf("circle = %+v", c)
	}
}

func TestLineRejectsDegenerate(t *testing.T) {
	msg := evaluateErr(t, `(line (vec3 1 1 1) (vec3 1 1 1))`)
	if !strings.Contains(msg, "start and end coincide") {
		t.Errorf("unexpected error %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Layers, openings and elements
// ---------------------------------------------------------------------------

func TestLayers(t *testing.T) {
	source := `
(def plaster (style :id "plaster"))
(def brick (style :id "brick"))
(element "W1" :kind :wall
  :body (box :min (vec3 0 0 0) :max (vec3 4 0.3 3))
  :layers (layers :sense :negative :offset 0.3
                  :axis (line (vec3 0 0 0) (vec3 4 0 0))
                  (layer 0.1 plaster)
                  (layer 0.2 brick)))
`
	ls := evaluate(t, source)[0].Layers
	if ls == nil {
		t.Fatal("expected layers")
	}
	if ls.Sense != element.SenseNegative {
		t.Errorf("sense = %s, want negative", ls.Sense)
	}
	if !near(ls.Offset, 0.3) {
		t.Errorf("offset = %g, want 0.3", ls.Offset)
	}
	if ls.Axis == nil || !ls.Axis.IsLinear() {
		t.Fatalf("expected linear axis, got %+v", ls.Axis)
	}
	if len(ls.Layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(ls.Layers))
	}
	if !near(ls.Layers[0].Thickness, 0.1) || ls.Layers[0].Style.ID != "plaster" {
		t.Errorf("layer 0 = %+v", ls.Layers[0])
	}
	if !near(ls.Layers[1].Thickness, 0.2) || ls.Layers[1].Style.ID != "brick" {
		t.Errorf("layer 1 = %+v", ls.Layers[1])
	}
}

func TestLayersReferenceAndFolded(t *testing.T) {
	source := `
(def p1 (plane :at (vec3 0 1 0) :normal (vec3 0 -1 0)))
(def p2 (plane :at (vec3 2 0 0) :normal (vec3 1 0 0) :xdir (vec3 0 1 0)))
(element "W1"
  :body (box :min (vec3 0 0 0) :max (vec3 4 4 4))
  :layers (layers :reference p1 :folded (list (list p1 p2)) (layer 1) (layer 3)))
`
	ls := evaluate(t, source)[0].Layers
	if ls.Reference == nil || !ls.Reference.IsPlanar() {
		t.Fatalf("expected planar reference, got %v", ls.Reference)
	}
	if len(ls.Folded) != 1 || len(ls.Folded[0]) != 2 {
		t.Fatalf("folded = %v", ls.Folded)
	}
	if ls.Folded[0][0] != ls.Reference {
		t.Error("expected the folded group to reuse the reference plane")
	}
	if !nearVec(ls.Folded[0][1].XDir(), r3.Vec{Y: 1}) {
		t.Errorf("xdir = %v, want (0, 1, 0)", ls.Folded[0][1].XDir())
	}
}

func TestLayersErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"bad sense", `(layers :sense :sideways (layer 1))`, `invalid sense "sideways"`},
		{"bad entry", `(layers (vec3 0 0 0))`, "expected layer"},
		{"bad axis", `(layers :axis (vec3 0 0 0) (layer 1))`, "expected line or circle"},
		{"bad folded", `(layers :folded (list (list 1)) (layer 1))`, "expected plane"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := evaluateErr(t, tt.source); !strings.Contains(msg, tt.want) {
				t.Errorf("error %q does not mention %q", msg, tt.want)
			}
		})
	}
}

func TestOpenings(t *testing.T) {
	source := `
(element "W1" :kind :wall
  :body (box :min (vec3 0 0 0) :max (vec3 4 0.3 3))
  :openings (list
    (opening :id "window" :placement (placement :at (vec3 1 0 1))
      (box :min (vec3 0 -1 0) :max (vec3 1 1 1)))
    (opening (box :min (vec3 3 -1 0) :max (vec3 3.5 1 2))
             (box :min (vec3 3.5 -1 0) :max (vec3 3.8 1 2)))))
`
	e := evaluate(t, source)[0]
	if len(e.Openings) != 2 {
		t.Fatalf("expected 2 openings, got %d", len(e.Openings))
	}
	w := e.Openings[0]
	if w.ID != "window" || len(w.Items) != 1 {
		t.Errorf("window = %+v", w)
	}
	if got := w.Placement.TranslationPart(); !nearVec(got, r3.Vec{X: 1, Z: 1}) {
		t.Errorf("window translation = %v", got)
	}
	door := e.Openings[1]
	if !strings.HasPrefix(door.ID, "opening_") || len(door.Items) != 2 {
		t.Errorf("door = %+v", door)
	}
}

func TestElementErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"no id", `(element :kind :wall)`, "element requires an id"},
		{"bad kind", `(element "W1" :kind :roof)`, `unknown kind "roof"`},
		{"unknown keyword", `(element "W1" :colour 1)`, "element W1: unknown keyword :colour"},
		{"bad body", `(element "W1" :body (list 1 2))`, "element W1: body: entry 0: expected shape"},
		{"bad layers", `(element "W1" :layers (layer 1))`, "expected layers"},
		{"bad opening", `(element "W1" :openings (list (box :min (vec3 0 0 0) :max (vec3 1 1 1))))`, "expected opening"},
		{"box missing max", `(box :min (vec3 0 0 0))`, "box: max: missing :max"},
		{"vec3 arity", `(vec3 1 2)`, "vec3 requires exactly 3 arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := evaluateErr(t, tt.source); !strings.Contains(msg, tt.want) {
				t.Errorf("error %q does not mention %q", msg, tt.want)
			}
		})
	}
}

func TestFullWallExample(t *testing.T) {
	source := `
;; A layered wall with a window and a door.
(def plaster (style :id "plaster" :color "#eeeeee"))
(def brick (style :id "brick" :color "#aa5533"))

(def wall-layers
  (layers :sense :positive
          :axis (line (vec3 0 0 0) (vec3 6 0 0))
          (layer 0.02 plaster)
          (layer 0.24 brick)
          (layer 0.02 plaster)))

(element "W1" :kind :wall
  :body (extrude :profile (rect 0 0 6 3) :axis :y :from 0 :to 0.28 :id "body")
  :openings (list (opening :id "window" (box :min (vec3 1 -1 1) :max (vec3 2 1 2)))
                  (opening :id "door" (box :min (vec3 4 -1 0) :max (vec3 5 1 2.1))))
  :layers wall-layers)

(element "S1" :kind :slab
  :body (box :min (vec3 0 0 -0.2) :max (vec3 6 6 0) :style brick))
`
	elems := evaluate(t, source)
	if len(elems) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elems))
	}
	w := elems[0]
	if w.Kind != element.KindWall || len(w.Openings) != 2 || w.Layers == nil || len(w.Layers.Layers) != 3 {
		t.Fatalf("wall = %+v", w)
	}
	if w.Layers.Layers[0].Style != w.Layers.Layers[2].Style {
		t.Error("expected the plaster style to be shared")
	}
	if v := ortho.New().Volume(w.Body[0].Shape); !near(v, 6*3*0.28) {
		t.Errorf("wall volume = %g", v)
	}
	s := elems[1]
	if s.Kind != element.KindSlab || s.Body[0].Style == nil || s.Body[0].Style.ID != "brick" {
		t.Errorf("slab = %+v", s)
	}
	if errs := element.Validate(elems); len(errs) != 0 {
		t.Errorf("validation: %v", errs)
	}
}
