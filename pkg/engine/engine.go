// Package engine provides the Lisp evaluation engine for Mortise.
// It wraps zygomys in a sandboxed environment and produces building
// elements from user source code.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/kernel"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	Element string
}

// EvalResult bundles the full output of an evaluation.
type EvalResult struct {
	Elements []element.Element
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter for Mortise evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	k      kernel.Builder
	styles *element.StyleCache

	// Timeout bounds a single evaluation.
	Timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewEngine creates an Engine building shapes with k. Styles are
// interned in styles, which may be shared between engines.
func NewEngine(k kernel.Builder, styles *element.StyleCache) *Engine {
	return &Engine{k: k, styles: styles, Timeout: EvalTimeout}
}

// Evaluate takes Lisp source code and produces the elements it declares.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns elements + nil errors + nil error
//   - On parse/eval failure: returns nil elements + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) ([]element.Element, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		elems, evalErrs, err := e.evaluate(source)
		ch <- evalResult{elements: elems, errors: evalErrs, err: err}
	}()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return waitWithTimeout(ch, timeout, gen, &e.mu, &e.generation)
}

// EvaluateFull evaluates source and validates the resulting elements.
// Fatal failures are reported as errors without line information.
func (e *Engine) EvaluateFull(source string) EvalResult {
	elems, evalErrs, err := e.Evaluate(source)
	res := EvalResult{Elements: elems, Errors: evalErrs}
	if err != nil {
		res.Errors = append(res.Errors, EvalError{Message: err.Error()})
		return res
	}
	for _, v := range element.Validate(elems) {
		if v.Severity == element.SeverityError {
			res.Errors = append(res.Errors, EvalError{Message: v.Error()})
			continue
		}
		res.Warnings = append(res.Warnings, EvalWarning{Message: v.Message, Element: v.Element})
	}
	return res
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) ([]element.Element, []EvalError, error) {
	// Empty source is a valid program that declares nothing.
	if strings.TrimSpace(source) == "" {
		return []element.Element{}, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	m := newModel(e.k, e.styles)
	registerBuiltins(env, m)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	return m.elements, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := p.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
