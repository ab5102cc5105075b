package ortho

import (
	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/chazu/mortise/pkg/kernel/sdfx"
)

// meshCells is the marching cubes resolution used for solids.
const meshCells = 120

// ToMesh implements kernel.Tessellator. Solids are rendered with marching
// cubes; free faces become two triangles each.
func (k *Kernel) ToMesh(s kernel.Shape) (*kernel.Mesh, error) {
	var boxes []geom.Box
	for _, x := range k.solids(s) {
		for _, c := range x.cells {
			boxes = append(boxes, c.box())
		}
	}
	m, err := (&sdfx.Mesher{Cells: meshCells}).Boxes(boxes)
	if err != nil {
		return nil, err
	}
	for _, f := range k.ExploreFree(s, kernel.KindFace, kernel.KindSolid) {
		appendQuad(m, f.(*Face))
	}
	return m, nil
}

func appendQuad(m *kernel.Mesh, f *Face) {
	base := uint32(m.VertexCount())
	n := f.normal()
	corners := [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for _, c := range corners {
		p := f.point(f.rect[0][c[0]], f.rect[1][c[1]])
		m.Vertices = append(m.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
		m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
	if f.sign > 0 {
		m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
	} else {
		m.Indices = append(m.Indices, base, base+3, base+2, base+2, base+1, base)
	}
}
