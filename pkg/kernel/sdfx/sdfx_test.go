package sdfx

import (
	"testing"

	"github.com/chazu/mortise/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxes(t *testing.T) {
	m := &Mesher{Cells: 40}
	mesh, err := m.Boxes([]geom.Box{{Max: r3.Vec{X: 100, Y: 50, Z: 25}}})
	if err != nil {
		t.Fatalf("Boxes failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	triCount := mesh.TriangleCount()
	if triCount == 0 {
		t.Fatal("expected non-zero triangle count")
	}
	if len(mesh.Vertices) != len(mesh.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(mesh.Vertices), len(mesh.Normals))
	}
	if len(mesh.Indices) != triCount*3 {
		t.Fatalf("indices length %d != triCount*3 %d", len(mesh.Indices), triCount*3)
	}
}

func TestBoxesStaysInsideBounds(t *testing.T) {
	m := &Mesher{Cells: 40}
	bs := []geom.Box{
		{Min: r3.Vec{}, Max: r3.Vec{X: 10, Y: 10, Z: 10}},
		{Min: r3.Vec{X: 10}, Max: r3.Vec{X: 20, Y: 5, Z: 5}},
	}
	mesh, err := m.Boxes(bs)
	if err != nil {
		t.Fatalf("Boxes failed: %v", err)
	}
	const slack = 1
	for i := 0; i < len(mesh.Vertices); i += 3 {
		x, y, z := mesh.Vertices[i], mesh.Vertices[i+1], mesh.Vertices[i+2]
		if x < -slack || x > 20+slack || y < -slack || y > 10+slack || z < -slack || z > 10+slack {
			t.Fatalf("vertex (%g,%g,%g) outside the union bounds", x, y, z)
		}
	}
}

func TestBoxesEmpty(t *testing.T) {
	mesh, err := New().Boxes(nil)
	if err != nil {
		t.Fatalf("Boxes(nil) failed: %v", err)
	}
	if !mesh.IsEmpty() {
		t.Fatal("expected empty mesh")
	}
}

func TestBoxesRejectsUnbounded(t *testing.T) {
	_, err := New().Boxes([]geom.Box{{Min: r3.Vec{X: -1e7}, Max: r3.Vec{X: 1e7, Y: 1, Z: 1}}})
	if err == nil {
		t.Fatal("expected error for unbounded box")
	}
}
