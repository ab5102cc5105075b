// Package assembly turns loose face sets into solids suitable as boolean
// operands.
package assembly

import (
	"errors"

	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/geomerr"
	"github.com/chazu/mortise/pkg/kernel"
)

// ErrNoFaces is returned when there is nothing to assemble.
var ErrNoFaces = errors.New("assembly: no faces")

// Assembler builds solids from faces with a kernel.
type Assembler struct {
	k   kernel.Kernel
	cfg config.Settings
	log diag.Logger
}

// New returns an Assembler.
func New(k kernel.Kernel, cfg config.Settings, log diag.Logger) *Assembler {
	return &Assembler{k: k, cfg: cfg, log: log}
}

// SolidFromFaces assembles faces into a shape. A single face is
// returned as is. Faces that already share an edge are taken to be
// stitched and only have their orientation fixed; otherwise they are
// sewn with the modelling precision, unless forceSewing is set, in
// which case they are always sewn.
//
// Every shell of the stitched result becomes a solid, reversed if it
// contains the point at infinity. A shell that cannot be made into a
// solid is kept as a shell. Several components are returned as a
// compound, and faces that joined no shell are appended to it.
func (a *Assembler) SolidFromFaces(faces []kernel.Shape, forceSewing bool) (kernel.Shape, error) {
	switch len(faces) {
	case 0:
		return nil, ErrNoFaces
	case 1:
		return faces[0], nil
	}

	shape, err := a.stitch(faces, forceSewing)
	if err != nil {
		a.log.Errorf("Failed to sew faceset")
		return nil, err
	}

	var parts []kernel.Shape
	for _, sh := range a.k.Explore(shape, kernel.KindShell) {
		parts = append(parts, a.solidFromShell(sh))
	}
	if len(parts) > 1 {
		a.log.Warningf("Multiple components in connected face set")
	}
	loose := a.k.ExploreFree(shape, kernel.KindFace, kernel.KindShell)
	if len(loose) > 0 {
		if len(parts) == 1 {
			a.log.Warningf("Loose faces in connected face set")
		}
		parts = append(parts, loose...)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return a.k.Compound(parts...), nil
}

// stitch sews or orients the faces and checks the outcome, healing it
// once if needed. It fails unless a valid result with at least one shell
// comes out.
func (a *Assembler) stitch(faces []kernel.Shape, forceSewing bool) (kernel.Shape, error) {
	var shape kernel.Shape
	err := kernel.Guard("sew", func() error {
		var err error
		if !forceSewing && a.sharesEdges(faces) {
			shape, err = a.k.FixFaceOrientation(a.k.Shell(faces...))
		} else {
			shape, err = a.k.Sew(faces, a.cfg.Precision)
		}
		if err != nil {
			return err
		}
		if !kernel.IsValid(a.k, shape) {
			shape, err = a.k.Heal(shape, a.cfg.Precision)
			if err != nil {
				return err
			}
			if !kernel.IsValid(a.k, shape) {
				return geomerr.Errorf(geomerr.ValidityRejected, "sew", "stitched faces are invalid")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if kernel.Count(a.k, shape, kernel.KindShell) == 0 {
		return nil, geomerr.Errorf(geomerr.ValidityRejected, "sew", "no shell")
	}
	return shape, nil
}

// sharesEdges reports whether any edge occurs in two of the faces.
func (a *Assembler) sharesEdges(faces []kernel.Shape) bool {
	seen := make(map[kernel.Shape]bool)
	for _, f := range faces {
		for _, e := range a.k.Explore(f, kernel.KindEdge) {
			if seen[e] {
				return true
			}
			seen[e] = true
		}
	}
	return false
}

// solidFromShell makes sh into an outward oriented solid, falling back
// to the shell itself.
func (a *Assembler) solidFromShell(sh kernel.Shape) kernel.Shape {
	solid, err := kernel.Call("solid from shell", func() (kernel.Shape, error) {
		return a.k.SolidFromShell(sh, a.cfg.Precision)
	})
	if err != nil || solid == nil {
		if err != nil {
			a.log.Errorf("%v", err)
		}
		return sh
	}
	state, err := kernel.Call("classify", func() (kernel.State, error) {
		return a.k.ClassifyInfinite(solid, a.cfg.Precision)
	})
	if err != nil {
		a.log.Errorf("%v", err)
		return solid
	}
	if state == kernel.StateIn {
		solid = a.k.Reverse(solid)
	}
	return solid
}

// IsLooseFaceCompound reports whether s holds faces grouped only by
// compounds, without shells or solids.
func IsLooseFaceCompound(k kernel.Topology, s kernel.Shape) bool {
	has := func(kind kernel.Kind) bool { return len(k.Explore(s, kind)) > 0 }
	return has(kernel.KindCompound) && has(kernel.KindFace) &&
		!has(kernel.KindSolid) && !has(kernel.KindShell)
}

// SolidFromCompound assembles the faces of s.
func (a *Assembler) SolidFromCompound(s kernel.Shape) (kernel.Shape, error) {
	faces := a.k.Explore(s, kernel.KindFace)
	if len(faces) == 0 {
		return nil, ErrNoFaces
	}
	return a.SolidFromFaces(faces, false)
}

// EnsureFitForSubtraction converts a loose face compound into a solid
// and assigns it the modelling precision. Any other shape, or a compound
// that cannot be assembled, is returned unchanged.
func (a *Assembler) EnsureFitForSubtraction(s kernel.Shape) kernel.Shape {
	if !IsLooseFaceCompound(a.k, s) {
		return s
	}
	solid, err := a.SolidFromCompound(s)
	if err != nil {
		return s
	}
	return a.k.SetTolerance(solid, a.cfg.Precision)
}
