// Package config holds the conversion settings. Settings is a plain value:
// callers that need a temporary override copy it with one of the With
// methods instead of mutating shared state.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Modelling precision bounds. Precision below MinPrecision is clamped.
const (
	DefaultPrecision = 1e-5
	MinPrecision     = 1e-7
)

// Settings configures the boolean engine and the conversion pipeline.
type Settings struct {
	// Precision is the modelling precision used for sewing, healing and
	// the vertex-edge search window.
	Precision float64 `json:"precision"`

	// Fuzziness is the suggested boolean fuzziness. Zero or negative
	// means Precision/10.
	Fuzziness float64 `json:"fuzziness"`

	// FuzzinessCeiling bounds escalation at Precision*FuzzinessCeiling.
	FuzzinessCeiling float64 `json:"fuzziness_ceiling"`

	// EscalationFactor multiplies the fuzziness after a failed attempt.
	EscalationFactor float64 `json:"escalation_factor"`

	// FeatureFactor is the multiple of the fuzziness that result edges
	// and vertex-edge gaps must exceed.
	FeatureFactor float64 `json:"feature_factor"`

	// FaceFaceEpsilon is the face-face distance below which a result is
	// suspected of containing collapsed material.
	FaceFaceEpsilon float64 `json:"face_face_epsilon"`

	// VolumeTolerance is the relative tolerance of the split volume check.
	VolumeTolerance float64 `json:"volume_tolerance"`

	// BatchRatio bounds the feature-size ratio within an opening batch.
	BatchRatio float64 `json:"batch_ratio"`

	// Unify, EliminateDisjoint and EliminateTouching toggle the boolean
	// pre-processing stages.
	Unify             bool `json:"unify"`
	EliminateDisjoint bool `json:"eliminate_disjoint"`
	EliminateTouching bool `json:"eliminate_touching"`

	// Attempt2D enables the extrusion shortcut along ExtrusionAxis.
	Attempt2D     bool   `json:"attempt_2d"`
	ExtrusionAxis r3.Vec `json:"extrusion_axis"`

	// DebugBoolean tags every boolean call with an identifier and, when
	// DebugDir is set, writes operand meshes there.
	DebugBoolean bool   `json:"debug_boolean"`
	DebugDir     string `json:"debug_dir"`

	ApplyLayersets  bool `json:"apply_layersets"`
	DisableOpenings bool `json:"disable_openings"`

	// Workers is the conversion pool size; zero means one per CPU.
	Workers int `json:"workers"`

	// ElementTimeout bounds the conversion of a single element.
	ElementTimeout Duration `json:"element_timeout"`

	// StyleCacheSize bounds the number of interned styles. A style
	// evicted from a full cache is no longer shared: interning its id
	// again keeps the new definition. Size it above the number of styles
	// a model defines.
	StyleCacheSize int `json:"style_cache_size"`
}

// Duration is a time.Duration that reads and writes as a string such
// as "30s" in JSON.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x * float64(time.Second))
	case string:
		p, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("config: duration %q: %w", x, err)
		}
		*d = Duration(p)
	default:
		return fmt.Errorf("config: invalid duration %s", string(b))
	}
	return nil
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		Precision:         DefaultPrecision,
		Fuzziness:         -1,
		FuzzinessCeiling:  10000,
		EscalationFactor:  10,
		FeatureFactor:     3,
		FaceFaceEpsilon:   1e-4,
		VolumeTolerance:   1e-3,
		BatchRatio:        10,
		Unify:             true,
		EliminateDisjoint: true,
		EliminateTouching: true,
		Attempt2D:         false,
		ExtrusionAxis:     r3.Vec{Y: 1},
		ApplyLayersets:    true,
		ElementTimeout:    Duration(30 * time.Second),
		StyleCacheSize:    1024,
	}
}

// Validate checks the settings for values the pipeline cannot work with.
func (s Settings) Validate() error {
	switch {
	case !(s.Precision > 0) || math.IsInf(s.Precision, 0):
		return fmt.Errorf("config: precision must be positive, got %g", s.Precision)
	case math.IsNaN(s.Fuzziness) || math.IsInf(s.Fuzziness, 0):
		return fmt.Errorf("config: fuzziness must be finite, got %g", s.Fuzziness)
	case !(s.FuzzinessCeiling >= 1):
		return fmt.Errorf("config: fuzziness_ceiling must be at least 1, got %g", s.FuzzinessCeiling)
	case !(s.EscalationFactor > 1):
		return fmt.Errorf("config: escalation_factor must exceed 1, got %g", s.EscalationFactor)
	case !(s.FeatureFactor > 0):
		return fmt.Errorf("config: feature_factor must be positive, got %g", s.FeatureFactor)
	case !(s.BatchRatio >= 1):
		return fmt.Errorf("config: batch_ratio must be at least 1, got %g", s.BatchRatio)
	case !(s.VolumeTolerance > 0):
		return fmt.Errorf("config: volume_tolerance must be positive, got %g", s.VolumeTolerance)
	case !(s.FaceFaceEpsilon >= 0):
		return fmt.Errorf("config: face_face_epsilon must not be negative, got %g", s.FaceFaceEpsilon)
	case s.Attempt2D && r3.Norm(s.ExtrusionAxis) == 0:
		return fmt.Errorf("config: extrusion_axis must be non-zero when attempt_2d is set")
	case s.Workers < 0:
		return fmt.Errorf("config: workers must not be negative, got %d", s.Workers)
	case s.ElementTimeout < 0:
		return fmt.Errorf("config: element_timeout must not be negative")
	case s.StyleCacheSize < 1:
		return fmt.Errorf("config: style_cache_size must be positive, got %d", s.StyleCacheSize)
	}
	return nil
}

// Load reads settings from a JSON file on top of the defaults and
// validates the result.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("config: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("config: parse %s: %w", path, err)
	}
	s.Precision = math.Max(s.Precision, MinPrecision)
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// SuggestedFuzziness is the starting fuzziness for a boolean call.
func (s Settings) SuggestedFuzziness() float64 {
	if s.Fuzziness <= 0 {
		return s.Precision / 10
	}
	return s.Fuzziness
}

// MaxFuzziness is the escalation ceiling.
func (s Settings) MaxFuzziness() float64 {
	return s.Precision * s.FuzzinessCeiling
}

// MinFaceArea is the area below which faces are considered degenerate.
func (s Settings) MinFaceArea() float64 {
	return s.Precision * s.Precision / 20
}

// WithPrecision returns a copy using precision p, clamped to
// MinPrecision.
func (s Settings) WithPrecision(p float64) Settings {
	s.Precision = math.Max(p, MinPrecision)
	return s
}

// WithAttempt2D returns a copy with the extrusion shortcut toggled.
func (s Settings) WithAttempt2D(on bool) Settings {
	s.Attempt2D = on
	return s
}

// WithBatchRatio returns a copy using ratio r for opening batches.
func (s Settings) WithBatchRatio(r float64) Settings {
	s.BatchRatio = r
	return s
}

// WithDebug returns a copy with boolean debugging writing into dir.
func (s Settings) WithDebug(dir string) Settings {
	s.DebugBoolean = true
	s.DebugDir = dir
	return s
}
