package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/convert"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/engine"
	"github.com/chazu/mortise/pkg/kernel/ortho"
	"github.com/chazu/mortise/pkg/tessellate"
	"github.com/samber/lo"
)

// colorPalette is a default palette used for items without a style.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App runs the whole pipeline: evaluation, conversion and tessellation.
type App struct {
	engine *engine.Engine
	kernel *ortho.Kernel
	pool   *convert.Pool
	log    diag.Logger
}

// MeshData is the JSON-serializable mesh format of the report.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Element  string    `json:"element"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable error or warning.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
	Element string `json:"element,omitempty"`
}

// ElementData summarises the conversion of one element.
type ElementData struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Status   string  `json:"status"`
	Items    int     `json:"items"`
	Volume   float64 `json:"volume"`
	Layered  bool    `json:"layered"`
	Openings int     `json:"openings"`
	Error    string  `json:"error,omitempty"`
	Elapsed  string  `json:"elapsed"`
}

// EvalResult is the full report of one run.
type EvalResult struct {
	Run      string          `json:"run,omitempty"`
	Elements []ElementData   `json:"elements"`
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// NewApp creates an App on the reference kernel. Diagnostics go to sink.
func NewApp(cfg config.Settings, sink diag.Sink) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	styles, err := element.NewStyleCache(cfg.StyleCacheSize)
	if err != nil {
		return nil, err
	}
	k := ortho.New()
	log := diag.For(sink, "")
	return &App{
		engine: engine.NewEngine(k, styles),
		kernel: k,
		pool:   convert.NewPool(convert.New(k, cfg, log), cfg, log),
		log:    log,
	}, nil
}

// Evaluate takes Lisp source and returns the converted elements, their
// meshes and any errors.
func (a *App) Evaluate(ctx context.Context, source string) EvalResult {
	result := EvalResult{
		Elements: []ElementData{},
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	// Step 1: Evaluate the Lisp source into elements.
	ev := a.engine.EvaluateFull(source)
	for _, w := range ev.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Line: w.Line, Col: w.Col, Message: w.Message, Element: w.Element})
	}
	if len(ev.Errors) > 0 {
		for _, e := range ev.Errors {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}

	// Step 2: Slice layers and cut openings.
	rep := a.pool.Run(ctx, ev.Elements)
	result.Run = rep.ID

	// Step 3: Tessellate the converted items in world coordinates.
	next := 0
	for i, r := range rep.Results {
		e := &ev.Elements[i]
		result.Elements = append(result.Elements, a.summary(r))
		if r.Err != nil {
			result.Warnings = append(result.Warnings, EvalErrorData{Message: r.Err.Error(), Element: r.Element})
		}

		meshes, err := tessellate.Items(a.kernel, r.Items, e.Placement)
		if err != nil {
			a.log.With(e.ID).Errorf("Tessellation failed: %v", err)
			result.Errors = append(result.Errors, EvalErrorData{
				Message: "tessellation failed: " + err.Error(),
				Element: e.ID,
			})
			continue
		}
		for _, m := range meshes {
			color := m.Color
			if color == "" {
				color = colorPalette[next%len(colorPalette)]
				next++
			}
			result.Meshes = append(result.Meshes, MeshData{
				Vertices: m.Vertices,
				Normals:  m.Normals,
				Indices:  m.Indices,
				PartName: m.PartName,
				Element:  e.ID,
				Color:    color,
			})
		}
	}

	return result
}

func (a *App) summary(r convert.Result) ElementData {
	d := ElementData{
		ID:       r.Element,
		Kind:     r.Kind.String(),
		Status:   r.Status.String(),
		Items:    len(r.Items),
		Layered:  r.Layered,
		Openings: r.Openings.Voids,
		Elapsed:  r.Elapsed.Round(time.Microsecond).String(),
		Volume: lo.SumBy(r.Items, func(it element.Item) float64 {
			if it.Shape == nil {
				return 0
			}
			return a.kernel.Volume(it.Shape)
		}),
	}
	if r.Err != nil {
		d.Error = r.Err.Error()
	}
	return d
}

// String formats the summary as one line of the CLI table.
func (d ElementData) String() string {
	return fmt.Sprintf("%s\t%s\t%s\t%d\t%.6g", d.ID, d.Kind, d.Status, d.Items, d.Volume)
}
