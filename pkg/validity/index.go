package validity

import (
	"math"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/dhconnelly/rtreego"
)

// minSide keeps R-tree rectangles of flat or point-like shapes from
// having zero extent, which rtreego rejects.
const minSide = 1e-9

// Index is an R-tree over the bounding boxes of shapes.
type Index struct {
	tree *rtreego.Rtree
}

type entry struct {
	shape kernel.Shape
	rect  rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

func toRect(b geom.Box) rtreego.Rect {
	s := b.Size()
	r, err := rtreego.NewRect(
		rtreego.Point{b.Min.X, b.Min.Y, b.Min.Z},
		[]float64{math.Max(s.X, minSide), math.Max(s.Y, minSide), math.Max(s.Z, minSide)},
	)
	if err != nil {
		// Lengths are positive by construction.
		panic(err)
	}
	return r
}

// NewIndex indexes shapes by their bounding boxes enlarged by pad.
func NewIndex(k kernel.Analysis, shapes []kernel.Shape, pad float64) *Index {
	x := &Index{tree: rtreego.NewTree(3, 25, 50)}
	for _, s := range shapes {
		x.tree.Insert(&entry{shape: s, rect: toRect(k.BoundingBox(s).Enlarge(pad))})
	}
	return x
}

// Near returns the indexed shapes whose boxes intersect b.
func (x *Index) Near(b geom.Box) []kernel.Shape {
	hits := x.tree.SearchIntersect(toRect(b))
	out := make([]kernel.Shape, len(hits))
	for i, h := range hits {
		out[i] = h.(*entry).shape
	}
	return out
}

// Size returns the number of indexed shapes.
func (x *Index) Size() int { return x.tree.Size() }
