// Package sdfx renders solids given as unions of boxes to triangle
// meshes with the github.com/deadsy/sdfx marching cubes renderer.
package sdfx

import (
	"errors"
	"fmt"

	"github.com/chazu/mortise/internal/geom"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// maxExtent rejects unbounded input such as half-spaces.
const maxExtent = 1e6

// Mesher tessellates box unions.
type Mesher struct {
	// Cells is the marching cubes resolution along the longest side.
	Cells int
}

// New returns a Mesher with the default resolution.
func New() *Mesher {
	return &Mesher{Cells: defaultMeshCells}
}

// box returns the SDF of b. sdf.Box3D centers the box at the origin, so
// it is moved onto b's center.
func box(b geom.Box) (sdf.SDF3, error) {
	size := b.Size()
	s, err := sdf.Box3D(v3.Vec{X: size.X, Y: size.Y, Z: size.Z}, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx: box: %w", err)
	}
	c := b.Center()
	return sdf.Transform3D(s, sdf.Translate3d(v3.Vec{X: c.X, Y: c.Y, Z: c.Z})), nil
}

// Boxes converts the union of boxes to a triangle mesh using marching
// cubes.
func (m *Mesher) Boxes(bs []geom.Box) (*kernel.Mesh, error) {
	if len(bs) == 0 {
		return &kernel.Mesh{}, nil
	}
	parts := make([]sdf.SDF3, 0, len(bs))
	for _, b := range bs {
		s := b.Size()
		if s.X > maxExtent || s.Y > maxExtent || s.Z > maxExtent {
			return nil, errors.New("sdfx: cannot mesh unbounded geometry")
		}
		p, err := box(b)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	sdf3 := parts[0]
	if len(parts) > 1 {
		sdf3 = sdf.Union3D(parts...)
	}

	cells := m.Cells
	if cells <= 0 {
		cells = defaultMeshCells
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(sdf3, renderer)

	numVerts := len(triangles) * 3
	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}
