// Package tessellate turns representation items into triangle meshes in
// world coordinates using a geometry kernel. One mesh is produced per
// item.
package tessellate

import (
	"fmt"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// transformStack accumulates placements from the outermost frame inwards.
type transformStack struct {
	frames []geom.Transform
}

func (ts *transformStack) push(t geom.Transform) {
	ts.frames = append(ts.frames, t)
}

func (ts *transformStack) pop() {
	if len(ts.frames) > 0 {
		ts.frames = ts.frames[:len(ts.frames)-1]
	}
}

// accumulated maps the innermost frame to world coordinates.
func (ts *transformStack) accumulated() geom.Transform {
	t := geom.Identity()
	for _, f := range ts.frames {
		t = t.Mul(f)
	}
	return t
}

// Items meshes every item with t. Items are placed by their own
// placement inside parent. Meshes are named after the item and carry the
// item style colour when it has a style. Items without a shape are
// skipped. Placements are expected to be rigid motions.
func Items(t kernel.Tessellator, items []element.Item, parent geom.Transform) ([]*kernel.Mesh, error) {
	ts := &transformStack{}
	ts.push(parent)
	defer ts.pop()

	meshes := make([]*kernel.Mesh, 0, len(items))
	for _, it := range items {
		if it.Shape == nil {
			continue
		}
		ts.push(it.Placement)
		m, err := item(t, it, ts.accumulated())
		ts.pop()
		if err != nil {
			return nil, err
		}
		meshes = append(meshes, m)
	}
	return meshes, nil
}

func item(t kernel.Tessellator, it element.Item, place geom.Transform) (*kernel.Mesh, error) {
	m, err := t.ToMesh(it.Shape)
	if err != nil {
		return nil, fmt.Errorf("tessellate: ToMesh failed for item %s: %w", it.ID, err)
	}
	if !place.IsIdentity() {
		apply(m, place)
	}
	m.PartName = it.ID
	if it.Style != nil {
		m.Color = it.Style.Color.Hex()
	}
	return m, nil
}

// apply moves the mesh vertices by t and rotates its normals.
func apply(m *kernel.Mesh, t geom.Transform) {
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		p := t.Apply(r3.Vec{X: float64(m.Vertices[i]), Y: float64(m.Vertices[i+1]), Z: float64(m.Vertices[i+2])})
		m.Vertices[i], m.Vertices[i+1], m.Vertices[i+2] = float32(p.X), float32(p.Y), float32(p.Z)
	}
	for i := 0; i+2 < len(m.Normals); i += 3 {
		n := t.ApplyVector(r3.Vec{X: float64(m.Normals[i]), Y: float64(m.Normals[i+1]), Z: float64(m.Normals[i+2])})
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		m.Normals[i], m.Normals[i+1], m.Normals[i+2] = float32(n.X), float32(n.Y), float32(n.Z)
	}
}
