package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/mortise/pkg/config"
)

func newApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(config.Default(), nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// TestE2EHouseExample exercises the full pipeline: Lisp source, engine,
// layer slicing, openings and tessellation.
func TestE2EHouseExample(t *testing.T) {
	app := newApp(t)

	source, err := os.ReadFile("../../examples/house.lisp")
	if err != nil {
		t.Fatalf("failed to read house.lisp: %v", err)
	}

	result := app.Evaluate(context.Background(), string(source))
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("eval error (line %d): %s", e.Line, e.Message)
		}
		t.FailNow()
	}
	if result.Run == "" {
		t.Error("expected a run id")
	}

	want := []struct {
		id     string
		kind   string
		items  int
		volume float64
	}{
		{"W1", "wall", 3, 7.2 - 0.4 - 0.84},
		{"S1", "slab", 1, 7.2},
		{"C1", "column", 1, 0.27},
	}
	if len(result.Elements) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(result.Elements))
	}
	for i, w := range want {
		e := result.Elements[i]
		if e.ID != w.id || e.Kind != w.kind {
			t.Errorf("element %d = %s %s, want %s %s", i, e.ID, e.Kind, w.id, w.kind)
		}
		if e.Status != "converted" {
			t.Errorf("%s: status %s (%s)", e.ID, e.Status, e.Error)
		}
		if e.Items != w.items {
			t.Errorf("%s: %d items, want %d", e.ID, e.Items, w.items)
		}
		if !near(e.Volume, w.volume, 1e-6) {
			t.Errorf("%s: volume %g, want %g", e.ID, e.Volume, w.volume)
		}
	}
	if !result.Elements[0].Layered || result.Elements[0].Openings != 2 {
		t.Errorf("wall summary = %+v", result.Elements[0])
	}

	// One mesh per layer of the wall plus the slab and the column.
	if len(result.Meshes) != 5 {
		t.Fatalf("expected 5 meshes, got %d", len(result.Meshes))
	}
	byName := map[string]MeshData{}
	for _, m := range result.Meshes {
		byName[m.PartName] = m
		if m.Color == "" {
			t.Errorf("part %q: no color assigned", m.PartName)
		}
	}
	for _, name := range []string{"body.0", "body.1", "body.2", "slab", "shaft"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing mesh for part %q", name)
		}
	}
	if byName["body.0"].Color != "#eeeeee" || byName["body.1"].Color != "#aa5533" {
		t.Errorf("layer colours = %s, %s", byName["body.0"].Color, byName["body.1"].Color)
	}
	if byName["slab"].Color != colorPalette[0] || byName["shaft"].Color != colorPalette[1] {
		t.Errorf("palette colours = %s, %s", byName["slab"].Color, byName["shaft"].Color)
	}

	// The column is placed at (3, 3, 0) by its element.
	shaft := byName["shaft"]
	if len(shaft.Vertices) == 0 || len(shaft.Indices) == 0 {
		t.Fatal("shaft mesh is empty")
	}
	var cx, cy, cz float64
	n := len(shaft.Vertices) / 3
	for i := 0; i < n; i++ {
		cx += float64(shaft.Vertices[i*3])
		cy += float64(shaft.Vertices[i*3+1])
		cz += float64(shaft.Vertices[i*3+2])
	}
	cx, cy, cz = cx/float64(n), cy/float64(n), cz/float64(n)
	if !near(cx, 3, 0.2) || !near(cy, 3, 0.2) || !near(cz, 1.5, 0.3) {
		t.Errorf("shaft centroid = (%.2f, %.2f, %.2f), want near (3, 3, 1.5)", cx, cy, cz)
	}
}

// TestE2EEmptySource ensures the pipeline handles empty input gracefully.
func TestE2EEmptySource(t *testing.T) {
	result := newApp(t).Evaluate(context.Background(), "")
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
	if len(result.Elements) != 0 || len(result.Meshes) != 0 {
		t.Errorf("expected an empty report, got %d elements and %d meshes", len(result.Elements), len(result.Meshes))
	}
}

func TestE2ECommentsOnly(t *testing.T) {
	result := newApp(t).Evaluate(context.Background(), ";; nothing here\n; at all\n")
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
}

func TestE2ESyntaxError(t *testing.T) {
	result := newApp(t).Evaluate(context.Background(), `(element "W1" :body (box :min (vec3 0 0 0)`)
	if len(result.Errors) == 0 {
		t.Fatal("expected errors for malformed source")
	}
	if result.Errors[0].Message == "" {
		t.Error("error message should not be empty")
	}
	if len(result.Meshes) != 0 {
		t.Error("expected no meshes on error")
	}
}

func TestE2EBuiltinErrorStopsRun(t *testing.T) {
	source := `
(element "W1" :body (box :min (vec3 0 0 0) :max (vec3 1 1 1)))
(element "W2" :kind :roof)
`
	result := newApp(t).Evaluate(context.Background(), source)
	if len(result.Errors) == 0 {
		t.Fatal("expected an error for the unknown kind")
	}
	if !strings.Contains(result.Errors[0].Message, `unknown kind "roof"`) {
		t.Errorf("unexpected error %q", result.Errors[0].Message)
	}
	if len(result.Elements) != 0 {
		t.Errorf("expected no converted elements, got %d", len(result.Elements))
	}
}

func TestE2EDuplicateElements(t *testing.T) {
	source := `
(element "W1" :body (box :min (vec3 0 0 0) :max (vec3 1 1 1)))
(element "W1" :body (box :min (vec3 2 0 0) :max (vec3 3 1 1)))
`
	result := newApp(t).Evaluate(context.Background(), source)
	if len(result.Errors) == 0 {
		t.Fatal("expected an error for duplicate ids")
	}
	if !strings.Contains(result.Errors[0].Message, "duplicate identifier") {
		t.Errorf("unexpected error %q", result.Errors[0].Message)
	}
}

func TestE2ESingleLayerWarns(t *testing.T) {
	source := `
(element "W1" :kind :wall
  :body (box :min (vec3 0 0 0) :max (vec3 4 0.3 3))
  :layers (layers :axis (line (vec3 0 0 0) (vec3 4 0 0)) (layer 0.3)))
`
	result := newApp(t).Evaluate(context.Background(), source)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Warnings) == 0 || result.Warnings[0].Element != "W1" {
		t.Fatalf("expected a warning for W1, got %v", result.Warnings)
	}
	if result.Elements[0].Layered {
		t.Error("a single layer must not be sliced")
	}
}

func TestE2EDegradedElementReported(t *testing.T) {
	source := `
(element "W1" :kind :wall
  :body (box :min (vec3 0 0 0) :max (vec3 4 0.3 3))
  :layers (layers :axis (circle :radius 100) (layer 0.1) (layer 0.2)))
`
	result := newApp(t).Evaluate(context.Background(), source)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	e := result.Elements[0]
	if e.Status != "degraded" || e.Error == "" {
		t.Errorf("summary = %+v, want a degraded element with an error", e)
	}
	if !near(e.Volume, 3.6, 1e-9) {
		t.Errorf("volume = %g, want the unsliced body", e.Volume)
	}
	if len(result.Meshes) != 1 {
		t.Errorf("expected the body mesh, got %d meshes", len(result.Meshes))
	}
}

func TestE2ERapidEvaluation(t *testing.T) {
	app := newApp(t)
	for i := 1; i <= 5; i++ {
		var b strings.Builder
		for j := 0; j < i; j++ {
			b.WriteString(`(element "E` + string(rune('0'+j)) + `" :body (box :min (vec3 0 0 0) :max (vec3 1 1 1)))` + "\n")
		}
		result := app.Evaluate(context.Background(), b.String())
		if len(result.Errors) != 0 {
			t.Fatalf("iteration %d: %v", i, result.Errors)
		}
		if len(result.Elements) != i || len(result.Meshes) != i {
			t.Errorf("iteration %d: %d elements, %d meshes", i, len(result.Elements), len(result.Meshes))
		}
	}
}

func TestNewAppRejectsInvalidSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Precision = 0
	if _, err := NewApp(cfg, nil); err == nil {
		t.Fatal("expected an error for zero precision")
	}
}

// ---------------------------------------------------------------------------
// Command line
// ---------------------------------------------------------------------------

func writeModel(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.lisp")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunSummary(t *testing.T) {
	path := writeModel(t, `(element "S1" :kind :slab :body (box :min (vec3 0 0 0) :max (vec3 2 2 1)))`)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-workers", "1", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "ELEMENT") {
		t.Errorf("missing header in %q", out)
	}
	fields := strings.Fields(strings.Split(strings.TrimSpace(out), "\n")[1])
	if strings.Join(fields, " ") != "S1 slab converted 1 4" {
		t.Errorf("summary line = %v", fields)
	}
}

func TestRunJSON(t *testing.T) {
	path := writeModel(t, `(element "S1" :kind :slab :body (box :min (vec3 0 0 0) :max (vec3 2 2 1) :id "slab"))`)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-json", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	var res EvalResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(res.Elements) != 1 || len(res.Meshes) != 1 || res.Meshes[0].PartName != "slab" {
		t.Errorf("report = %+v", res)
	}
}

func TestRunModelErrors(t *testing.T) {
	path := writeModel(t, `(element "S1" :body (box :min (vec3 0 0 0)))`)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{path}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "error:") {
		t.Errorf("expected the error in the summary, got %q", stdout.String())
	}
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 2 {
		t.Errorf("exit code %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "usage: mortise") {
		t.Errorf("expected usage, got %q", stderr.String())
	}
	if code := run(context.Background(), []string{"missing.lisp"}, &stdout, &stderr); code != 2 {
		t.Errorf("missing file: exit code %d, want 2", code)
	}
	if code := run(context.Background(), []string{"-config", "missing.json", "x.lisp"}, &stdout, &stderr); code != 2 {
		t.Errorf("missing config: exit code %d, want 2", code)
	}
}
