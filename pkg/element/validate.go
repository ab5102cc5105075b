package element

import (
	"fmt"
	"math"
)

// ValidationSeverity indicates whether a finding keeps an element from
// being converted or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // element is skipped
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Element  string // which element has the problem (empty if model-level)
	Message  string
	Severity ValidationSeverity
}

func (e ValidationError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] element %s: %s", e.Severity, e.Element, e.Message)
}

// Validate runs the structural checks on a set of elements. An empty
// result means every element can be converted. It never modifies the
// elements.
func Validate(elems []Element) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateIDs(elems)...)
	for i := range elems {
		errs = append(errs, validateBody(&elems[i])...)
		errs = append(errs, validateOpenings(&elems[i])...)
		errs = append(errs, validateLayers(&elems[i])...)
	}
	return errs
}

// HasErrors reports whether errs contains an error-severity finding for
// element id.
func HasErrors(errs []ValidationError, id string) bool {
	for _, e := range errs {
		if e.Severity == SeverityError && e.Element == id {
			return true
		}
	}
	return false
}

// validateIDs checks that identifiers are present and unique.
func validateIDs(elems []Element) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]int)
	for i, e := range elems {
		if e.ID == "" {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("element %d has no identifier", i),
				Severity: SeverityError,
			})
			continue
		}
		seen[e.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("duplicate identifier %q assigned to %d elements", id, n),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

func validateBody(e *Element) []ValidationError {
	var errs []ValidationError
	if len(e.Body) == 0 {
		errs = append(errs, ValidationError{
			Element:  e.ID,
			Message:  "body has no items",
			Severity: SeverityWarning,
		})
	}
	for i, it := range e.Body {
		if it.Shape == nil {
			errs = append(errs, ValidationError{
				Element:  e.ID,
				Message:  fmt.Sprintf("body item %d has no shape", i),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

func validateOpenings(e *Element) []ValidationError {
	var errs []ValidationError
	for i, o := range e.Openings {
		if len(o.Items) == 0 {
			errs = append(errs, ValidationError{
				Element:  e.ID,
				Message:  fmt.Sprintf("opening %d has no items", i),
				Severity: SeverityWarning,
			})
		}
		for j, it := range o.Items {
			if it.Shape == nil {
				errs = append(errs, ValidationError{
					Element:  e.ID,
					Message:  fmt.Sprintf("opening %d item %d has no shape", i, j),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateLayers checks the layer structure. Problems here are warnings:
// an element whose layers cannot be applied is still converted whole.
func validateLayers(e *Element) []ValidationError {
	ls := e.Layers
	if ls == nil {
		return nil
	}
	var errs []ValidationError
	warn := func(format string, args ...any) {
		errs = append(errs, ValidationError{
			Element:  e.ID,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityWarning,
		})
	}
	if ls.Axis == nil && ls.Reference == nil && len(ls.Folded) == 0 {
		warn("layers have neither an axis nor a reference surface")
	}
	if ls.Axis != nil && !ls.Axis.IsLinear() && !ls.Axis.IsCircular() {
		warn("unsupported axis curve for layers")
	}
	if len(ls.Layers) < 2 {
		warn("layer set with %d layers is not sliced", len(ls.Layers))
	}
	for i, l := range ls.Layers {
		if !(l.Thickness > 0) || math.IsInf(l.Thickness, 0) {
			warn("layer %d has invalid thickness %g", i, l.Thickness)
		}
	}
	return errs
}
