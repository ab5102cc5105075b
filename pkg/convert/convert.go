// Package convert turns elements into their final representation items:
// the body is sliced into material layers, then the openings are cut
// from it. A stage that fails leaves the geometry of the previous stage
// in place, so an element never disappears.
package convert

import (
	"fmt"
	"time"

	"github.com/chazu/mortise/pkg/config"
	"github.com/chazu/mortise/pkg/diag"
	"github.com/chazu/mortise/pkg/element"
	"github.com/chazu/mortise/pkg/kernel"
	"github.com/chazu/mortise/pkg/layerset"
	"github.com/chazu/mortise/pkg/opening"
)

// Status is the outcome of converting one element.
type Status int

const (
	// StatusConverted: every stage succeeded.
	StatusConverted Status = iota
	// StatusDegraded: a stage failed and its input geometry was kept.
	StatusDegraded
	// StatusTimedOut: the deadline passed; the body is returned as given.
	StatusTimedOut
	// StatusFailed: conversion aborted; the body is returned as given.
	StatusFailed
	// StatusSuperseded: a newer run started before the element finished.
	StatusSuperseded
)

func (s Status) String() string {
	switch s {
	case StatusConverted:
		return "converted"
	case StatusDegraded:
		return "degraded"
	case StatusTimedOut:
		return "timed out"
	case StatusFailed:
		return "failed"
	case StatusSuperseded:
		return "superseded"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the converted form of one element.
type Result struct {
	Element string
	Kind    element.Kind
	Items   []element.Item
	Status  Status
	// Layered is set when the body was sliced into layers.
	Layered  bool
	Openings opening.Report
	// Err is the first error met, if any.
	Err     error
	Elapsed time.Duration
}

// Converter runs the conversion stages on one element at a time. It
// holds no mutable state and may be shared by goroutines.
type Converter struct {
	k   kernel.Kernel
	cfg config.Settings
	log diag.Logger
}

// New returns a Converter.
func New(k kernel.Kernel, cfg config.Settings, log diag.Logger) *Converter {
	return &Converter{k: k, cfg: cfg, log: log}
}

// Element converts e.
func (c *Converter) Element(e *element.Element) Result {
	start := time.Now()
	log := c.log.With(e.ID)
	res := Result{Element: e.ID, Kind: e.Kind, Items: e.Body, Status: StatusConverted}
	fail := func(err error) {
		res.Status = StatusDegraded
		if res.Err == nil {
			res.Err = err
		}
	}

	if ls := e.Layers; ls != nil && c.cfg.ApplyLayersets && len(ls.Styles()) > 1 {
		items, err := c.layers(e, log)
		if err != nil {
			log.Warningf("Unable to apply layerset: %v", err)
			fail(err)
		} else {
			res.Items, res.Layered = items, true
		}
	}

	if len(e.Openings) > 0 && !c.cfg.DisableOpenings {
		withLayers := *e
		withLayers.Body = res.Items
		items, rep, err := opening.New(c.k, c.cfg, c.log).Subtract(&withLayers)
		res.Items, res.Openings = items, rep
		switch {
		case err != nil:
			log.Warningf("Unable to process openings: %v", err)
			fail(err)
		case rep.Failed > 0:
			fail(fmt.Errorf("convert: %d opening batches failed", rep.Failed))
		}
	}

	res.Elapsed = time.Since(start)
	log.Debugf("Converted in %s: %s", res.Elapsed, res.Status)
	return res
}

func (c *Converter) layers(e *element.Element, log diag.Logger) ([]element.Item, error) {
	ls := e.Layers
	s := layerset.New(c.k, c.cfg, log)
	if len(ls.Folded) > 0 {
		return s.ApplyFolded(e.Body, ls.Folded, ls.Styles())
	}
	surfaces, styles, err := layerset.Surfaces(ls)
	if err != nil {
		return nil, err
	}
	return s.Apply(e.Body, surfaces, styles)
}
