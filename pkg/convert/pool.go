package convert

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/element"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ErrSuperseded is the error of elements whose run was replaced by a
// newer one.
var ErrSuperseded = errors.New("convert: superseded by a newer run")

// Report is the outcome of one Pool run.
type Report struct {
	// ID identifies the run in log output.
	ID string
	// Results holds one result per element, in input order.
	Results []Result
}

// Count returns how many elements ended with status s.
func (r Report) Count(s Status) int {
	return lo.CountBy(r.Results, func(x Result) bool { return x.Status == s })
}

// Pool converts elements on a fixed number of workers, bounding each
// element by a deadline. A conversion that overruns keeps running in the
// background; its result is discarded when it arrives.
type Pool struct {
	conv    *Converter
	workers int
	timeout time.Duration
	log     diag.Logger

	mu         sync.Mutex
	generation uint64
}

// NewPool returns a pool sized by cfg.Workers, or one worker per CPU.
func NewPool(conv *Converter, cfg config.Settings, log diag.Logger) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{conv: conv, workers: n, timeout: time.Duration(cfg.ElementTimeout), log: log}
}

// Run converts elems. Starting a run supersedes any run still in
// progress: elements of the older run that have not finished are
// reported as StatusSuperseded. Cancelling ctx ends the run in the same
// way.
func (p *Pool) Run(ctx context.Context, elems []element.Element) Report {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.mu.Unlock()

	rep := Report{ID: uuid.NewString(), Results: make([]Result, len(elems))}
	workers := min(p.workers, max(len(elems), 1))
	p.log.Debugf("Run %s: %d elements on %d workers", rep.ID, len(elems), workers)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rep.Results[i] = p.one(ctx, &elems[i], gen)
			}
		}()
	}
	for i := range elems {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	p.log.Debugf("Run %s: %d converted, %d degraded, %d timed out, %d failed",
		rep.ID, rep.Count(StatusConverted), rep.Count(StatusDegraded),
		rep.Count(StatusTimedOut), rep.Count(StatusFailed))
	return rep
}

func (p *Pool) current() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// one converts a single element under the deadline.
func (p *Pool) one(ctx context.Context, e *element.Element, gen uint64) Result {
	unchanged := func(s Status, err error) Result {
		return Result{Element: e.ID, Kind: e.Kind, Items: e.Body, Status: s, Err: err}
	}
	if gen != p.current() || ctx.Err() != nil {
		return unchanged(StatusSuperseded, ErrSuperseded)
	}

	ch := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.With(e.ID).Errorf("Conversion panicked: %v", r)
				ch <- unchanged(StatusFailed, fmt.Errorf("convert: panic: %v", r))
			}
		}()
		ch <- p.conv.Element(e)
	}()

	var deadline <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case res := <-ch:
		if gen != p.current() {
			return unchanged(StatusSuperseded, ErrSuperseded)
		}
		return res
	case <-deadline:
		p.log.With(e.ID).Warningf("Conversion timed out after %s", p.timeout)
		return unchanged(StatusTimedOut, fmt.Errorf("convert: timed out after %s", p.timeout))
	case <-ctx.Done():
		return unchanged(StatusSuperseded, ctx.Err())
	}
}
