// Package kernel defines the B-rep geometry kernel the conversion
// pipeline drives. The pipeline decides when, in what order and with what
// tolerances to call the kernel; the kernel owns topology, booleans,
// sewing, healing and validity analysis. Implementations (ortho, or a
// binding to a native CAD kernel) live behind these interfaces.
package kernel

import (
	"fmt"

	"github.com/chazu/mortise/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind is the topological type of a shape.
type Kind int

const (
	KindCompound Kind = iota
	KindCompSolid
	KindSolid
	KindShell
	KindFace
	KindWire
	KindEdge
	KindVertex
)

func (k Kind) String() string {
	switch k {
	case KindCompound:
		return "compound"
	case KindCompSolid:
		return "compsolid"
	case KindSolid:
		return "solid"
	case KindShell:
		return "shell"
	case KindFace:
		return "face"
	case KindWire:
		return "wire"
	case KindEdge:
		return "edge"
	case KindVertex:
		return "vertex"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Shape is an opaque handle to kernel topology. Handles are comparable:
// two handles that compare equal denote the same topological entity, so
// shapes can key maps. Shapes are immutable; every operation returns a
// new handle and leaves its operands untouched.
type Shape interface {
	Kind() Kind
}

// Op is a boolean operation.
type Op int

const (
	OpCut Op = iota
	OpCommon
	OpFuse
)

func (o Op) String() string {
	switch o {
	case OpCut:
		return "cut"
	case OpCommon:
		return "common"
	case OpFuse:
		return "fuse"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Alert is a structured condition reported by a boolean builder.
type Alert int

const (
	// AlertSelfIntersection: an argument intersects itself; the output
	// cannot be trusted.
	AlertSelfIntersection Alert = iota + 1
	// AlertNotAllowed: the operation is not defined for the operand
	// types, for example a cut of a face by a solid of lower dimension.
	AlertNotAllowed
)

func (a Alert) String() string {
	switch a {
	case AlertSelfIntersection:
		return "self-intersection"
	case AlertNotAllowed:
		return "operation not allowed"
	}
	return fmt.Sprintf("alert(%d)", int(a))
}

// Report collects the alerts of a boolean call.
type Report struct {
	Warnings []Alert
	Errors   []Alert
}

// HasWarning reports whether a was raised as a warning.
func (r Report) HasWarning(a Alert) bool { return contains(r.Warnings, a) }

// HasError reports whether a was raised as an error.
func (r Report) HasError(a Alert) bool { return contains(r.Errors, a) }

func contains(as []Alert, a Alert) bool {
	for _, x := range as {
		if x == a {
			return true
		}
	}
	return false
}

// State is the result of classifying a point against a solid.
type State int

const (
	StateUnknown State = iota
	StateIn
	StateOut
	StateOn
)

// Problem is one finding of a validity analysis.
type Problem struct {
	On     Kind
	Status string
}

func (p Problem) String() string { return p.Status + " on " + p.On.String() }

// Topology navigates shape structure.
type Topology interface {
	// Explore returns the distinct sub-shapes of kind k in traversal
	// order, including s itself when it has kind k.
	Explore(s Shape, k Kind) []Shape
	// ExploreFree returns the sub-shapes of kind k that are not part of
	// any sub-shape of kind avoid.
	ExploreFree(s Shape, k, avoid Kind) []Shape
	// Children returns the direct sub-shapes of s.
	Children(s Shape) []Shape
	// Ancestors maps every sub-shape of kind k to the distinct
	// sub-shapes of kind anc containing it.
	Ancestors(s Shape, k, anc Kind) map[Shape][]Shape
	// IsClosed reports whether a shell has no free edges.
	IsClosed(shell Shape) bool
}

// Builder constructs topology.
type Builder interface {
	Compound(parts ...Shape) Shape
	// Shell groups faces into a shell without any stitching.
	Shell(faces ...Shape) Shape
	// MakeFace bounds a surface to the parameter rectangle.
	MakeFace(srf *Surface, u1, u2, v1, v2 float64) (Shape, error)
	// Prism sweeps a face or set of faces along v.
	Prism(s Shape, v r3.Vec) (Shape, error)
	// HalfSpace returns the infinite solid bounded by face on the side
	// containing ref.
	HalfSpace(face Shape, ref r3.Vec) (Shape, error)
	// MakeSolid wraps a closed shell as a solid without repair.
	MakeSolid(shell Shape) (Shape, error)
	// SolidFromShell builds a solid from a shell, fixing orientation
	// with tolerance at most tol.
	SolidFromShell(shell Shape, tol float64) (Shape, error)
	Transform(s Shape, t geom.Transform) (Shape, error)
	Reverse(s Shape) Shape
}

// Booleans are the set operations. All of them are non-destructive.
type Booleans interface {
	// Boolean applies op between the arguments and the tools with the
	// given fuzzy value. A non-nil error means the builder is not done;
	// the report may still carry alerts in either case.
	Boolean(op Op, args, tools []Shape, fuzz float64) (Shape, Report, error)
	// CutCommon computes input minus tool and input intersect tool from
	// one shared intersection so the two results partition the input.
	CutCommon(input, tool Shape) (cut, common Shape, err error)
	// Split partitions the arguments by the tools.
	Split(args, tools []Shape, fuzz float64) (Shape, error)
	// Sew stitches faces whose edges coincide within tol.
	Sew(faces []Shape, tol float64) (Shape, error)
	// Unify merges faces lying on the same surface within tol.
	Unify(s Shape, tol float64) (Shape, error)
}

// Analysis answers geometric queries.
type Analysis interface {
	BoundingBox(s Shape) geom.Box
	Volume(s Shape) float64
	Surface(face Shape) *Surface
	Curve(edge Shape) Curve
	Point(vertex Shape) r3.Vec
	// Distance is the minimum distance between two shapes.
	Distance(a, b Shape) float64
	// EdgesOverlap reports whether two edges share a stretch of curve
	// within tol.
	EdgesOverlap(a, b Shape, tol float64) bool
	// FacesOverlap reports whether two faces share a patch of surface.
	FacesOverlap(a, b Shape) bool
	// Check runs the topological validity analysis; no problems means
	// valid.
	Check(s Shape) []Problem
	// ClassifyInfinite classifies the point at infinity against solid.
	ClassifyInfinite(solid Shape, tol float64) (State, error)
}

// Repair heals shapes.
type Repair interface {
	Heal(s Shape, maxTol float64) (Shape, error)
	FixFaceOrientation(shell Shape) (Shape, error)
	// SetTolerance assigns tol to every sub-shape of s.
	SetTolerance(s Shape, tol float64) Shape
}

// Kernel is the full kernel surface the pipeline uses.
type Kernel interface {
	Topology
	Builder
	Booleans
	Analysis
	Repair
}

// Tessellator is implemented by kernels that can mesh shapes for
// display.
type Tessellator interface {
	ToMesh(s Shape) (*Mesh, error)
}

// Count returns the number of distinct sub-shapes of kind k in s.
func Count(k Topology, s Shape, kind Kind) int {
	if s == nil {
		return 0
	}
	return len(k.Explore(s, kind))
}

// IsValid reports whether s passes the validity analysis.
func IsValid(k Analysis, s Shape) bool {
	return s != nil && len(k.Check(s)) == 0
}
