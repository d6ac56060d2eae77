// Package quality scores an alignment and classifies its problem areas.
// Problems are data: nothing in this package returns an error.
package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/profile"
)

// Issue is the kind of a problem area.
type Issue int

const (
	LengthMismatch Issue = iota
	StructuralDivergence
	MissingSentence
	ExtraSentence
	OrderMismatch
	BoundaryDetectionError
)

func (i Issue) String() string {
	switch i {
	case LengthMismatch:
		return "length-mismatch"
	case StructuralDivergence:
		return "structural-divergence"
	case MissingSentence:
		return "missing-sentence"
	case ExtraSentence:
		return "extra-sentence"
	case OrderMismatch:
		return "order-mismatch"
	default:
		return "boundary-detection-error"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (i Issue) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Issue) UnmarshalText(b []byte) error {
	for c := LengthMismatch; c <= BoundaryDetectionError; c++ {
		if c.String() == string(b) {
			*i = c
			return nil
		}
	}
	return fmt.Errorf("unknown issue %q", b)
}

// AutoFixable reports whether re-running detection or alignment with
// adjusted parameters can resolve the issue.
func (i Issue) AutoFixable() bool {
	return i == LengthMismatch || i == BoundaryDetectionError
}

// Side says which pane a problem's span refers to.
type Side int

const (
	SideSource Side = iota
	SideTarget
)

func (s Side) String() string {
	if s == SideTarget {
		return "target"
	}
	return "source"
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "source":
		*s = SideSource
	case "target":
		*s = SideTarget
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// Problem is one flagged area of an alignment.
type Problem struct {
	Issue         Issue         `json:"issue"`
	Side          Side          `json:"side"`
	Span          internal.Span `json:"span"`
	SentenceIndex int           `json:"sentence_index"`
	Severity      float64       `json:"severity"`
	Suggestion    string        `json:"suggestion"`
	AutoFixable   bool          `json:"auto_fixable"`
}

// Indicator is the quality summary of one language pair.
type Indicator struct {
	Overall                float64   `json:"overall"`
	PositionConsistency    float64   `json:"position_consistency"`
	LengthRatioConsistency float64   `json:"length_ratio_consistency"`
	StructuralCoherence    float64   `json:"structural_coherence"`
	ValidationRate         float64   `json:"validation_rate"`
	Problems               []Problem `json:"problems,omitempty"`
}

// Count returns the number of problems of the given issue.
func (ind Indicator) Count(issue Issue) int {
	n := 0
	for _, p := range ind.Problems {
		if p.Issue == issue {
			n++
		}
	}
	return n
}

// Weights combine the three component scores into Overall.
type Weights struct {
	Position  float64 `mapstructure:"position"`
	Length    float64 `mapstructure:"length"`
	Structure float64 `mapstructure:"structure"`
}

// Config tunes the calculator.
type Config struct {
	Weights Weights `mapstructure:"weights"`
	// ConfidenceThreshold flags matched entries below it as boundary
	// detection errors.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// LengthDeviation flags matched entries whose |actual/expected − 1|
	// exceeds it.
	LengthDeviation float64 `mapstructure:"length_deviation"`
}

// DefaultConfig weighs the three components equally.
func DefaultConfig() Config {
	return Config{
		Weights:             Weights{Position: 1, Length: 1, Structure: 1},
		ConfidenceThreshold: 0.7,
		LengthDeviation:     0.5,
	}
}

// Calculator computes indicators. It holds no state beyond its config.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a Calculator. Non-positive weight sums fall back to
// equal weights.
func NewCalculator(cfg Config) *Calculator {
	if cfg.Weights.Position < 0 || cfg.Weights.Length < 0 || cfg.Weights.Structure < 0 ||
		cfg.Weights.Position+cfg.Weights.Length+cfg.Weights.Structure <= 0 {
		cfg.Weights = DefaultConfig().Weights
	}
	if cfg.LengthDeviation <= 0 {
		cfg.LengthDeviation = DefaultConfig().LengthDeviation
	}
	return &Calculator{cfg: cfg}
}

// Input is one alignment to score.
type Input struct {
	Result align.Result
	Source *document.Document
	Target *document.Document
}

// Compute scores in. An empty entry list yields a zero indicator, apart
// from ExtraSentence problems for every target sentence.
func (c *Calculator) Compute(in Input) Indicator {
	var ind Indicator
	entries := in.Result.Entries

	if in.Source != nil && in.Target != nil && len(entries) > 0 {
		expected := profile.ExpectedRatio(in.Source.Profile, in.Target.Profile)

		ind.PositionConsistency = positionConsistency(entries)
		ind.LengthRatioConsistency = c.lengthConsistency(in, entries, expected)
		ind.StructuralCoherence = structuralCoherence(in, entries)

		validated := 0
		for _, e := range entries {
			if e.Validated {
				validated++
			}
		}
		ind.ValidationRate = float64(validated) / float64(len(entries))

		w := c.cfg.Weights
		ind.Overall = clamp01((w.Position*ind.PositionConsistency +
			w.Length*ind.LengthRatioConsistency +
			w.Structure*ind.StructuralCoherence) / (w.Position + w.Length + w.Structure))

		ind.Problems = c.problems(in, entries, expected)
	}

	if in.Target != nil {
		for _, j := range in.Result.UnmatchedTargets {
			if j < 0 || j >= in.Target.Len() {
				continue
			}
			s := in.Target.Sentences[j]
			ind.Problems = append(ind.Problems, Problem{
				Issue:         ExtraSentence,
				Side:          SideTarget,
				Span:          s.Span,
				SentenceIndex: j,
				Severity:      sizeSeverity(s.Chars, in.Target.AverageChars()),
				Suggestion:    suggestion(ExtraSentence),
				AutoFixable:   ExtraSentence.AutoFixable(),
			})
		}
	}

	sort.SliceStable(ind.Problems, func(a, b int) bool {
		pa, pb := ind.Problems[a], ind.Problems[b]
		if pa.Side != pb.Side {
			return pa.Side < pb.Side
		}
		return pa.SentenceIndex < pb.SentenceIndex
	})
	return ind
}

// positionConsistency is the fraction of consecutive matched entries (in
// source order) whose target index does not decrease.
func positionConsistency(entries []align.Entry) float64 {
	prev := -1
	pairs, ordered := 0, 0
	for _, e := range entries {
		if !e.Matched() {
			continue
		}
		if prev >= 0 {
			pairs++
			if e.Target >= prev {
				ordered++
			}
		}
		prev = e.Target
	}
	if pairs == 0 {
		return 1
	}
	return float64(ordered) / float64(pairs)
}

func (c *Calculator) lengthConsistency(in Input, entries []align.Entry, expected float64) float64 {
	var sum float64
	n := 0
	for _, e := range entries {
		if !e.Matched() || !valid(in, e) {
			continue
		}
		sum += align.LengthDeviation(in.Source.Sentences[e.Source].Chars, in.Target.Sentences[e.Target].Chars, expected)
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp01(1 - sum/float64(n))
}

// structuralCoherence counts unmatched entries as mismatches.
func structuralCoherence(in Input, entries []align.Entry) float64 {
	match := 0
	for _, e := range entries {
		if !e.Matched() || !valid(in, e) {
			continue
		}
		if align.CategoryMatch(in.Source.Tags[e.Source], in.Target.Tags[e.Target]) {
			match++
		}
	}
	return float64(match) / float64(len(entries))
}

func valid(in Input, e align.Entry) bool {
	return e.Source >= 0 && e.Source < in.Source.Len() && e.Target >= 0 && e.Target < in.Target.Len()
}

func (c *Calculator) problems(in Input, entries []align.Entry, expected float64) []Problem {
	var out []Problem
	add := func(issue Issue, side Side, idx int, span internal.Span, severity float64) {
		out = append(out, Problem{
			Issue:         issue,
			Side:          side,
			Span:          span,
			SentenceIndex: idx,
			Severity:      clamp01(severity),
			Suggestion:    suggestion(issue),
			AutoFixable:   issue.AutoFixable(),
		})
	}

	prev := -1
	for _, e := range entries {
		if e.Source < 0 || e.Source >= in.Source.Len() {
			continue
		}
		src := in.Source.Sentences[e.Source]

		if !e.Matched() {
			add(MissingSentence, SideSource, e.Source, src.Span, sizeSeverity(src.Chars, in.Source.AverageChars()))
			continue
		}
		if !valid(in, e) {
			continue
		}
		tgt := in.Target.Sentences[e.Target]

		if dev := align.LengthDeviation(src.Chars, tgt.Chars, expected); dev > c.cfg.LengthDeviation {
			add(LengthMismatch, SideSource, e.Source, src.Span, dev/(2*c.cfg.LengthDeviation))
		}

		st, tt := in.Source.Tags[e.Source], in.Target.Tags[e.Target]
		if !align.CategoryMatch(st, tt) {
			severity := 0.5
			if st.Category == internal.CategoryCode || tt.Category == internal.CategoryCode ||
				st.Category == internal.CategoryHeading || tt.Category == internal.CategoryHeading {
				severity = 0.8
			}
			add(StructuralDivergence, SideSource, e.Source, src.Span, severity)
		}

		if prev >= 0 && e.Target < prev {
			drop := float64(prev-e.Target) / float64(max(in.Target.Len(), 1))
			add(OrderMismatch, SideTarget, e.Target, tgt.Span, 0.3+0.7*drop)
		}
		prev = e.Target

		if e.Confidence < c.cfg.ConfidenceThreshold && c.cfg.ConfidenceThreshold > 0 {
			add(BoundaryDetectionError, SideSource, e.Source, src.Span,
				(c.cfg.ConfidenceThreshold-e.Confidence)/c.cfg.ConfidenceThreshold)
		}
	}
	return out
}

// sizeSeverity grows with the sentence's share of typical length: losing
// a long sentence is worse than losing a fragment.
func sizeSeverity(chars int, avg float64) float64 {
	if avg <= 0 {
		return 0.5
	}
	return clamp01(0.5 + 0.5*float64(chars)/avg)
}

func suggestion(issue Issue) string {
	switch issue {
	case LengthMismatch:
		return "Check for omitted or added content; realign with a wider length tolerance"
	case StructuralDivergence:
		return "Make the target use the same block type (heading, list, code) as the source"
	case MissingSentence:
		return "Translate the source sentence or link it to an existing target sentence"
	case ExtraSentence:
		return "Remove the extra target sentence or link it to a source sentence"
	case OrderMismatch:
		return "Reorder the target sentences or confirm the reordering as intended"
	default:
		return "Re-run sentence detection; a boundary may have been missed or misplaced"
	}
}

// Merge averages indicators, for a session-wide summary. Problems are
// concatenated.
func Merge(inds []Indicator) Indicator {
	if len(inds) == 0 {
		return Indicator{}
	}
	var out Indicator
	for _, ind := range inds {
		out.Overall += ind.Overall
		out.PositionConsistency += ind.PositionConsistency
		out.LengthRatioConsistency += ind.LengthRatioConsistency
		out.StructuralCoherence += ind.StructuralCoherence
		out.ValidationRate += ind.ValidationRate
		out.Problems = append(out.Problems, ind.Problems...)
	}
	n := float64(len(inds))
	out.Overall /= n
	out.PositionConsistency /= n
	out.LengthRatioConsistency /= n
	out.StructuralCoherence /= n
	out.ValidationRate /= n
	return out
}

// Changed reports whether two indicators differ by more than eps in any
// score or in their problem count.
func Changed(a, b Indicator, eps float64) bool {
	if len(a.Problems) != len(b.Problems) {
		return true
	}
	for _, d := range []float64{
		a.Overall - b.Overall,
		a.PositionConsistency - b.PositionConsistency,
		a.LengthRatioConsistency - b.LengthRatioConsistency,
		a.StructuralCoherence - b.StructuralCoherence,
		a.ValidationRate - b.ValidationRate,
	} {
		if math.Abs(d) > eps {
			return true
		}
	}
	return false
}

// String renders the headline scores.
func (ind Indicator) String() string {
	return fmt.Sprintf("overall=%.2f position=%.2f length=%.2f structure=%.2f problems=%d",
		ind.Overall, ind.PositionConsistency, ind.LengthRatioConsistency, ind.StructuralCoherence, len(ind.Problems))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
