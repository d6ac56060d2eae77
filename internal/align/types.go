package align

import (
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/learning"
)

// NoTarget marks a source sentence with no counterpart in the target.
const NoTarget = -1

// Method records how an entry was produced.
type Method int

const (
	MethodPosition Method = iota
	MethodDynamic
	MethodAnchored
	MethodUser
)

func (m Method) String() string {
	switch m {
	case MethodDynamic:
		return "dynamic-programming"
	case MethodAnchored:
		return "anchored"
	case MethodUser:
		return "user"
	default:
		return "position"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	switch string(b) {
	case "position":
		*m = MethodPosition
	case "dynamic-programming":
		*m = MethodDynamic
	case "anchored":
		*m = MethodAnchored
	case "user":
		*m = MethodUser
	default:
		return fmt.Errorf("unknown alignment method %q", b)
	}
	return nil
}

// Entry maps one source sentence to zero or one target sentence.
type Entry struct {
	Source      int     `json:"source"`
	Target      int     `json:"target"`
	Confidence  float64 `json:"confidence"`
	Method      Method  `json:"method"`
	Validated   bool    `json:"validated,omitempty"`
	NeedsReview bool    `json:"needs_review,omitempty"`
}

// Matched reports whether the entry has a target sentence.
func (e Entry) Matched() bool { return e.Target != NoTarget }

// Config holds the alignment thresholds. Feature weights are not part of
// Config; they come from the learning snapshot passed with each Input.
type Config struct {
	// ConfidenceThreshold separates trusted entries from those flagged for
	// review. Entries below it are kept.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// MaxLengthRatioDeviation bounds |actual/expected − 1| before an
	// entry's confidence is halved.
	MaxLengthRatioDeviation float64 `mapstructure:"max_length_ratio_deviation"`
	// AutoValidationThreshold marks entries at or above it as validated.
	AutoValidationThreshold float64 `mapstructure:"auto_validation_threshold"`
	// DivergenceThreshold selects position mode when the relative sentence
	// count difference is below it.
	DivergenceThreshold float64 `mapstructure:"divergence_threshold"`
	// GapPenalty is the DP cost of leaving a sentence unmatched.
	GapPenalty float64 `mapstructure:"gap_penalty"`
	// TieEpsilon is the tolerance under which two DP costs are equal.
	TieEpsilon float64 `mapstructure:"tie_epsilon"`
	// AnchorThreshold is the minimum term similarity (numbers, literals and
	// words) for anchored reassignment.
	AnchorThreshold float64 `mapstructure:"anchor_threshold"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:     0.7,
		MaxLengthRatioDeviation: 2.5,
		AutoValidationThreshold: 0.9,
		DivergenceThreshold:     0.2,
		GapPenalty:              0.4,
		TieEpsilon:              1e-9,
		AnchorThreshold:         0.5,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}
	unit("confidence_threshold", c.ConfidenceThreshold)
	unit("auto_validation_threshold", c.AutoValidationThreshold)
	unit("divergence_threshold", c.DivergenceThreshold)
	unit("anchor_threshold", c.AnchorThreshold)
	if c.MaxLengthRatioDeviation <= 0 {
		errs = append(errs, fmt.Errorf("max_length_ratio_deviation must be positive, got %v", c.MaxLengthRatioDeviation))
	}
	if c.GapPenalty <= 0 {
		errs = append(errs, fmt.Errorf("gap_penalty must be positive, got %v", c.GapPenalty))
	}
	if c.TieEpsilon < 0 {
		errs = append(errs, fmt.Errorf("tie_epsilon must not be negative, got %v", c.TieEpsilon))
	}
	return errors.Join(errs...)
}

// Version fingerprints the configuration for cache keys.
func (c Config) Version() uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%g|%g|%g|%g|%g|%g|%g",
		c.ConfidenceThreshold, c.MaxLengthRatioDeviation, c.AutoValidationThreshold,
		c.DivergenceThreshold, c.GapPenalty, c.TieEpsilon, c.AnchorThreshold))
}

// Input is one alignment request.
type Input struct {
	Source *document.Document
	Target *document.Document
	// Model supplies the feature weights and pinned corrections. A zero
	// snapshot uses learning.DefaultWeights.
	Model learning.Snapshot
}

// Result is the output of Align.
type Result struct {
	Entries          []Entry `json:"entries"`
	UnmatchedTargets []int   `json:"unmatched_targets,omitempty"`
	Mode             Method  `json:"mode"`
	Stats            Stats   `json:"stats"`
}

// Stats summarizes one alignment run.
type Stats struct {
	SourceLang        string        `json:"source_lang"`
	TargetLang        string        `json:"target_lang"`
	Total             int           `json:"total"`
	Aligned           int           `json:"aligned"`
	Validated         int           `json:"validated"`
	AverageConfidence float64       `json:"average_confidence"`
	Accuracy          float64       `json:"accuracy"`
	Duration          time.Duration `json:"duration"`
}
