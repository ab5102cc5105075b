// Package element defines the building elements the conversion pipeline
// works on: bodies made of representation items, the openings voiding
// them and the layer structure they are sliced into.
package element

import (
	"fmt"
	"strings"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
)

// Kind classifies an element.
type Kind int

const (
	KindOther Kind = iota
	KindWall
	KindSlab
	KindColumn
	KindBeam
)

func (k Kind) String() string {
	switch k {
	case KindWall:
		return "wall"
	case KindSlab:
		return "slab"
	case KindColumn:
		return "column"
	case KindBeam:
		return "beam"
	default:
		return "other"
	}
}

// ParseKind maps a kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "wall":
		return KindWall, nil
	case "slab":
		return KindSlab, nil
	case "column":
		return KindColumn, nil
	case "beam":
		return KindBeam, nil
	case "other", "":
		return KindOther, nil
	}
	return KindOther, fmt.Errorf("element: unknown kind %q", s)
}

// Item is a representation item: a shape placed in its parent frame.
// The order of items in a body carries no meaning.
type Item struct {
	ID        string
	Shape     kernel.Shape
	Placement geom.Transform
	Style     *Style // optional
}

// WithShape returns a copy of the item holding s.
func (it Item) WithShape(s kernel.Shape) Item {
	it.Shape = s
	return it
}

// WithStyle returns a copy of the item styled st, or keeping its own
// style when st is nil.
func (it Item) WithStyle(st *Style) Item {
	if st != nil {
		it.Style = st
	}
	return it
}

// Opening is a void subtracted from an element. Its items are placed
// relative to the opening placement, which is given in world
// coordinates like the element placement.
type Opening struct {
	ID        string
	Placement geom.Transform
	Items     []Item
}

// Sense is the direction in which layers are stacked from the
// reference.
type Sense int

const (
	SensePositive Sense = iota
	SenseNegative
)

func (s Sense) String() string {
	if s == SenseNegative {
		return "negative"
	}
	return "positive"
}

// Layer is one material layer.
type Layer struct {
	Thickness float64
	Style     *Style // optional
}

// LayerSpec describes how an element body is divided into layers.
// Surfaces are derived from the axis curve when one is given, otherwise
// from Reference. Folded, when non-empty, replaces the derived surfaces
// by groups of surfaces that together bound one layer boundary each.
type LayerSpec struct {
	Reference *kernel.Surface
	Axis      *kernel.Curve
	Sense     Sense
	Offset    float64
	Layers    []Layer
	Folded    [][]*kernel.Surface
}

// Styles returns the style of every layer in order.
func (ls *LayerSpec) Styles() []*Style {
	out := make([]*Style, len(ls.Layers))
	for i, l := range ls.Layers {
		out[i] = l.Style
	}
	return out
}

// Element is the unit of conversion. Body item placements are relative
// to the element placement.
type Element struct {
	ID        string
	Kind      Kind
	Placement geom.Transform
	Body      []Item
	Openings  []Opening
	Layers    *LayerSpec // optional
}

// Shapes returns the shapes of the body items.
func (e *Element) Shapes() []kernel.Shape {
	out := make([]kernel.Shape, 0, len(e.Body))
	for _, it := range e.Body {
		out = append(out, it.Shape)
	}
	return out
}
