// Package align computes sentence correspondences between a source and a
// target document.
//
// Two modes exist. When the sentence counts are close (relative divergence
// below Config.DivergenceThreshold) source sentence i maps to target
// round(i·m/n). Otherwise a dynamic-programming alignment finds the
// minimum-cost monotone path, where a match costs 1 − score and leaving a
// sentence unmatched costs Config.GapPenalty.
//
// Both modes are followed by the same passes: anchored refinement, length
// ratio validation, learned rejections and pins, and auto-validation.
package align

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/valpere/panesync/internal/learning"
)

// Engine aligns documents. It is stateless apart from its configuration
// and safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine using cfg. Invalid configurations fall back
// to DefaultConfig.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if err := cfg.Validate(); err != nil {
		e.logger.Warn("invalid alignment config, using defaults", "error", err)
		e.cfg = DefaultConfig()
	}
	return e
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Features returns the feature vector of pair (i, j). Out-of-range indices
// and NoTarget yield zero features.
func (e *Engine) Features(in Input, i, j int) learning.Features {
	if in.Source == nil || in.Target == nil {
		return learning.Features{}
	}
	return newScorer(in).features(i, j)
}

// Score returns the weighted score of pair (i, j) under in.Model.
func (e *Engine) Score(in Input, i, j int) float64 {
	if in.Source == nil || in.Target == nil {
		return 0
	}
	s := newScorer(in)
	return s.features(i, j).Score(s.weights)
}

// Align computes the entry list for in. Every source sentence appears in
// exactly one entry, in source order. The context is checked once per DP
// row.
func (e *Engine) Align(ctx context.Context, in Input) (Result, error) {
	if in.Source == nil || in.Target == nil {
		return Result{}, fmt.Errorf("failed to align: source and target documents are required")
	}
	start := time.Now()
	s := newScorer(in)

	var res Result
	switch {
	case s.n == 0:
		res.Mode = MethodPosition
	case s.m == 0:
		res.Mode = MethodPosition
		res.Entries = make([]Entry, s.n)
		for i := range res.Entries {
			res.Entries[i] = Entry{Source: i, Target: NoTarget, Method: MethodPosition}
		}
	case Divergence(s.n, s.m) < e.cfg.DivergenceThreshold:
		res.Mode = MethodPosition
		res.Entries = e.byPosition(s)
	default:
		res.Mode = MethodDynamic
		entries, err := e.byDynamic(ctx, s)
		if err != nil {
			return Result{}, err
		}
		res.Entries = entries
	}

	e.refineAnchored(s, res.Entries)
	e.validateLengths(s, res.Entries)
	e.applyCorrections(s, in.Model, res.Entries)

	for i := range res.Entries {
		en := &res.Entries[i]
		en.Confidence = clamp01(en.Confidence)
		if en.Matched() && en.Confidence >= e.cfg.AutoValidationThreshold {
			en.Validated = true
		}
	}

	res.UnmatchedTargets = unmatched(res.Entries, s.m)
	res.Stats = e.stats(in, res.Entries, time.Since(start))

	e.logger.Debug("alignment computed",
		"mode", res.Mode.String(),
		"source", s.n,
		"target", s.m,
		"unmatched_targets", len(res.UnmatchedTargets),
		"duration", res.Stats.Duration,
	)
	return res, nil
}

// Divergence is |n − m| / max(n, m).
func Divergence(n, m int) float64 {
	if n == 0 && m == 0 {
		return 0
	}
	return math.Abs(float64(n-m)) / float64(max(n, m))
}

func (e *Engine) byPosition(s *scorer) []Entry {
	entries := make([]Entry, s.n)
	for i := range entries {
		j := int(math.Round(float64(i) * float64(s.m) / float64(s.n)))
		if j >= s.m {
			j = s.m - 1
		}
		entries[i] = Entry{Source: i, Target: j, Confidence: s.score(i, j), Method: MethodPosition}
	}
	return entries
}

// refineAnchored moves a source sentence to the target that shares
// strictly more terms (numbers, code spans, URLs, words and names) than its
// current one, provided the similarity reaches Config.AnchorThreshold.
// Reordered translations keep these terms, so this is what lets crossings
// appear.
func (e *Engine) refineAnchored(s *scorer, entries []Entry) {
	for k := range entries {
		en := &entries[k]
		if len(s.srcTerms[en.Source]) == 0 {
			continue
		}
		current := 0.0
		if en.Matched() {
			current = s.overlap(en.Source, en.Target)
		}
		best, bestSim := NoTarget, current
		for j := 0; j < s.m; j++ {
			if len(s.tgtTerms[j]) == 0 {
				continue
			}
			sim := s.overlap(en.Source, j)
			if sim < e.cfg.AnchorThreshold {
				continue
			}
			if sim > bestSim || (sim == bestSim && best != NoTarget && closer(s, en.Source, j, best)) {
				best, bestSim = j, sim
			}
		}
		if best != NoTarget && best != en.Target {
			en.Target = best
			en.Confidence = s.score(en.Source, best)
			en.Method = MethodAnchored
		}
	}
}

// closer reports whether target a is nearer than b to source i's
// proportional position.
func closer(s *scorer, i, a, b int) bool {
	return s.position(i, a) > s.position(i, b)
}

// validateLengths blends the length-ratio fit into each confidence, or
// halves it and flags the entry when the ratio is implausible.
func (e *Engine) validateLengths(s *scorer, entries []Entry) {
	maxDev := e.cfg.MaxLengthRatioDeviation
	for k := range entries {
		en := &entries[k]
		if !en.Matched() {
			continue
		}
		dev := s.lengthDeviation(en.Source, en.Target)
		if dev <= maxDev {
			fit := 1 - (dev/maxDev)*0.3
			en.Confidence = en.Confidence*0.7 + fit*0.3
			continue
		}
		en.Confidence *= 0.5
		en.NeedsReview = true
	}
}

// applyCorrections applies learned rejections, then pins. A pinned pair
// overrides the computed target.
func (e *Engine) applyCorrections(s *scorer, snap learning.Snapshot, entries []Entry) {
	if len(snap.Pins) == 0 && len(snap.Rejections) == 0 {
		return
	}

	srcHash := make([]uint64, s.n)
	for i, sent := range s.src.Sentences {
		srcHash[i] = learning.SentenceHash(sent.Text)
	}
	tgtHash := make([]uint64, s.m)
	byHash := make(map[uint64][]int)
	for j, sent := range s.tgt.Sentences {
		h := learning.SentenceHash(sent.Text)
		tgtHash[j] = h
		byHash[h] = append(byHash[h], j)
	}

	pinsBySource := make(map[uint64][]learning.PinKey)
	for key := range snap.Pins {
		pinsBySource[key.Source] = append(pinsBySource[key.Source], key)
	}
	for _, keys := range pinsBySource {
		sort.Slice(keys, func(a, b int) bool {
			pa, pb := snap.Pins[keys[a]], snap.Pins[keys[b]]
			if pa.Count != pb.Count {
				return pa.Count > pb.Count
			}
			return keys[a].Target < keys[b].Target
		})
	}

	for k := range entries {
		en := &entries[k]
		if en.Matched() {
			en.Confidence *= snap.RejectionFactor(learning.PinKey{Source: srcHash[en.Source], Target: tgtHash[en.Target]})
		}

		for _, key := range pinsBySource[srcHash[en.Source]] {
			pin := snap.Pins[key]
			if key.Target == 0 {
				en.Target = NoTarget
			} else {
				candidates := byHash[key.Target]
				if len(candidates) == 0 {
					continue
				}
				en.Target = nearest(s, en.Source, candidates)
			}
			en.Confidence = pin.Confidence()
			en.Method = MethodUser
			en.Validated = true
			en.NeedsReview = false
			break
		}
	}
}

func nearest(s *scorer, i int, candidates []int) int {
	best := candidates[0]
	for _, j := range candidates[1:] {
		if closer(s, i, j, best) {
			best = j
		}
	}
	return best
}

func unmatched(entries []Entry, m int) []int {
	used := make([]bool, m)
	for _, en := range entries {
		if en.Matched() && en.Target < m {
			used[en.Target] = true
		}
	}
	var out []int
	for j, u := range used {
		if !u {
			out = append(out, j)
		}
	}
	return out
}

func (e *Engine) stats(in Input, entries []Entry, d time.Duration) Stats {
	st := Stats{Total: len(entries), Duration: d}
	if in.Source.Profile != nil {
		st.SourceLang = in.Source.Profile.Code
	}
	if in.Target.Profile != nil {
		st.TargetLang = in.Target.Profile.Code
	}
	if len(entries) == 0 {
		return st
	}
	var sum float64
	trusted := 0
	for _, en := range entries {
		sum += en.Confidence
		if en.Matched() {
			st.Aligned++
			if en.Confidence >= e.cfg.ConfidenceThreshold {
				trusted++
			}
		}
		if en.Validated {
			st.Validated++
		}
	}
	st.AverageConfidence = sum / float64(len(entries))
	st.Accuracy = float64(trusted) / float64(len(entries))
	return st
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
