// Package geomerr defines the failure kinds shared by the conversion
// stages. Errors carry a Kind so that callers can choose a fallback
// without matching on messages.
package geomerr

import (
	"errors"
	"fmt"
)

// Kind classifies a geometric failure.
type Kind int

const (
	// KernelCallFailed: a kernel primitive reported an internal error
	// or panicked.
	KernelCallFailed Kind = iota + 1
	// ValidityRejected: the kernel reported success but the result
	// failed an independent validity check.
	ValidityRejected
	// AmbiguousMapping: geometry could not be attributed to a unique
	// index, for example a layer slice to a material.
	AmbiguousMapping
	// ToleranceExhausted: fuzziness escalation reached its ceiling.
	ToleranceExhausted
)

func (k Kind) String() string {
	switch k {
	case KernelCallFailed:
		return "kernel call failed"
	case ValidityRejected:
		return "validity rejected"
	case AmbiguousMapping:
		return "ambiguous mapping"
	case ToleranceExhausted:
		return "tolerance exhausted"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is.
var (
	ErrKernelCallFailed   = &Error{Kind: KernelCallFailed}
	ErrValidityRejected   = &Error{Kind: ValidityRejected}
	ErrAmbiguousMapping   = &Error{Kind: AmbiguousMapping}
	ErrToleranceExhausted = &Error{Kind: ToleranceExhausted}
)

// Error is a classified failure of operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New returns an error of kind k for op wrapping err, which may be nil.
func New(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf returns an error of kind k for op with a formatted cause.
func Errorf(k Kind, op, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels work with
// errors.Is regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
