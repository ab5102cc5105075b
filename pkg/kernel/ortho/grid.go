package ortho

import (
	"sort"

	"github.com/chazu/mortise/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// grid is the rectilinear grid spanned by sorted coordinate lists.
type grid struct {
	c [3][]float64
	n [3]int
}

func uniq(v []float64) []float64 {
	sort.Float64s(v)
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

func newGrid(vals [3][]float64) grid {
	var g grid
	for a := range vals {
		g.c[a] = uniq(vals[a])
		g.n[a] = len(g.c[a]) - 1
		if g.n[a] < 0 {
			g.n[a] = 0
		}
	}
	return g
}

func (g grid) size() int { return g.n[0] * g.n[1] * g.n[2] }

func (g grid) id(i [3]int) int {
	return (i[2]*g.n[1]+i[1])*g.n[0] + i[0]
}

func (g grid) inside(i [3]int) bool {
	for a := 0; a < 3; a++ {
		if i[a] < 0 || i[a] >= g.n[a] {
			return false
		}
	}
	return true
}

// index returns the position of x in the coordinates of axis a. x must
// be one of them.
func (g grid) index(a geom.Axis, x float64) int {
	return sort.SearchFloat64s(g.c[a], x)
}

func (g grid) center(i [3]int) r3.Vec {
	var p r3.Vec
	for a := geom.X; a <= geom.Z; a++ {
		p = geom.Set(p, a, 0.5*(g.c[a][i[a]]+g.c[a][i[a]+1]))
	}
	return p
}

func (g grid) cellBox(i [3]int) geom.Box {
	var lo, hi r3.Vec
	for a := geom.X; a <= geom.Z; a++ {
		lo = geom.Set(lo, a, g.c[a][i[a]])
		hi = geom.Set(hi, a, g.c[a][i[a]+1])
	}
	return geom.Box{Min: lo, Max: hi}
}

// each calls f for every cell index.
func (g grid) each(f func(i [3]int)) {
	for z := 0; z < g.n[2]; z++ {
		for y := 0; y < g.n[1]; y++ {
			for x := 0; x < g.n[0]; x++ {
				f([3]int{x, y, z})
			}
		}
	}
}

// eachIn calls f for every cell index within the box, whose bounds must
// lie on grid coordinates.
func (g grid) eachIn(b geom.Box, f func(i [3]int)) {
	var lo, hi [3]int
	for a := geom.X; a <= geom.Z; a++ {
		lo[a] = g.index(a, geom.Get(b.Min, a))
		hi[a] = g.index(a, geom.Get(b.Max, a))
	}
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				f([3]int{x, y, z})
			}
		}
	}
}

// cellFaceRect is the rectangle between cell i and its neighbour below
// along a, in face coordinates.
func (g grid) cellFaceRect(a geom.Axis, i [3]int) [2][2]float64 {
	u, v := uAxis(a), vAxis(a)
	return [2][2]float64{
		{g.c[u][i[u]], g.c[u][i[u]+1]},
		{g.c[v][i[v]], g.c[v][i[v]+1]},
	}
}

func step(i [3]int, a geom.Axis, d int) [3]int {
	i[a] += d
	return i
}
