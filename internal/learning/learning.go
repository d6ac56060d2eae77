// Package learning holds the online correction-learning model that tunes
// alignment feature weights from user corrections.
//
// A Model has a single writer (Learn, under its mutex). Scorers never lock
// the model during scoring; they take a Snapshot, which is a deep copy.
package learning

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultLearningRate    = 0.01
	DefaultHistoryCapacity = 1000
)

// Features are the four per-pair similarity values the alignment score is
// built from. Each lies in [0,1].
type Features struct {
	Position  float64 `json:"position"`
	Length    float64 `json:"length"`
	Structure float64 `json:"structure"`
	Content   float64 `json:"content"`
}

// Score returns the weighted sum of f, clamped to [0,1].
func (f Features) Score(w Weights) float64 {
	s := f.Position*w.Position + f.Length*w.Length + f.Structure*w.Structure + f.Content*w.Content
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Weights are non-negative feature weights summing to 1.
type Weights struct {
	Position  float64 `json:"position" mapstructure:"position"`
	Length    float64 `json:"length" mapstructure:"length"`
	Structure float64 `json:"structure" mapstructure:"structure"`
	Content   float64 `json:"content" mapstructure:"content"`
}

// DefaultWeights seed a new model.
var DefaultWeights = Weights{Position: 0.4, Length: 0.3, Structure: 0.2, Content: 0.1}

func (w Weights) sum() float64 { return w.Position + w.Length + w.Structure + w.Content }

// Normalized clips negative weights to zero and rescales to sum 1. It
// returns false when every weight is zero.
func (w Weights) Normalized() (Weights, bool) {
	w.Position = math.Max(w.Position, 0)
	w.Length = math.Max(w.Length, 0)
	w.Structure = math.Max(w.Structure, 0)
	w.Content = math.Max(w.Content, 0)
	s := w.sum()
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return Weights{}, false
	}
	return Weights{
		Position:  w.Position / s,
		Length:    w.Length / s,
		Structure: w.Structure / s,
		Content:   w.Content / s,
	}, true
}

// Validate checks that w is usable as a model seed.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"position", w.Position}, {"length", w.Length}, {"structure", w.Structure}, {"content", w.Content},
	} {
		if f.v < 0 || math.IsNaN(f.v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", f.name, f.v)
		}
	}
	if w.sum() <= 0 {
		return fmt.Errorf("weights must not all be zero")
	}
	return nil
}

// PinKey identifies a (source sentence, target sentence) pair by content so
// that corrections survive reparsing. A zero Target means "no target".
type PinKey struct {
	Source uint64 `json:"source"`
	Target uint64 `json:"target"`
}

// SentenceHash fingerprints sentence text after NFC normalization and
// whitespace trimming. Empty text hashes to 0.
func SentenceHash(text string) uint64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return xxhash.Sum64String(norm.NFC.String(text))
}

// KeyOf returns the PinKey for a sentence pair.
func KeyOf(sourceText, targetText string) PinKey {
	return PinKey{Source: SentenceHash(sourceText), Target: SentenceHash(targetText)}
}

// Pin records repeated confirmations of one pair.
type Pin struct {
	Count int     `json:"count"`
	Base  float64 `json:"base"`
}

// Confidence is 1 − (1 − Base)·0.5^Count: strictly increasing in Count
// and always in [0,1].
func (p Pin) Confidence() float64 {
	base := math.Min(math.Max(p.Base, 0), 1)
	return 1 - (1-base)*math.Pow(0.5, float64(p.Count))
}

// Correction is one user correction of an alignment entry.
type Correction struct {
	Source          int       `json:"source"`
	OriginalTarget  int       `json:"original_target"`
	CorrectedTarget int       `json:"corrected_target"`
	SourceText      string    `json:"source_text"`
	OriginalText    string    `json:"original_text"`
	CorrectedText   string    `json:"corrected_text"`
	Original        Features  `json:"original"`
	Corrected       Features  `json:"corrected"`
	BaseConfidence  float64   `json:"base_confidence"`
	Reason          string    `json:"reason"`
	At              time.Time `json:"at"`
}

// Snapshot is an immutable copy of a model's state.
type Snapshot struct {
	Weights      Weights
	LearningRate float64
	Revision     uint64
	History      []Correction
	Pins         map[PinKey]Pin
	Rejections   map[PinKey]int
}

// PinFor returns the pin for key, if any.
func (s Snapshot) PinFor(key PinKey) (Pin, bool) {
	p, ok := s.Pins[key]
	return p, ok
}

// RejectionFactor returns the multiplier applied to the confidence of a
// pair the user moved away from: 0.5 per rejection, 1 when never rejected.
func (s Snapshot) RejectionFactor(key PinKey) float64 {
	n := s.Rejections[key]
	if n <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(n))
}

// Option configures a Model.
type Option func(*Model)

// WithWeights seeds the model. Invalid weights are ignored.
func WithWeights(w Weights) Option {
	return func(m *Model) {
		if nw, ok := w.Normalized(); ok {
			m.defaults = nw
			m.weights = nw
		}
	}
}

// WithLearningRate sets the learning rate. Non-positive values are ignored.
func WithLearningRate(lr float64) Option {
	return func(m *Model) {
		if lr > 0 {
			m.lr = lr
		}
	}
}

// WithHistoryCapacity bounds the correction history.
func WithHistoryCapacity(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.history = make([]Correction, n)
		}
	}
}

// Model is the correction-learning state for one (project, language pair).
type Model struct {
	mu sync.Mutex

	defaults Weights
	weights  Weights
	lr       float64

	history []Correction // ring buffer
	head    int          // next write position
	size    int

	revision   uint64
	pins       map[PinKey]Pin
	rejections map[PinKey]int
}

// NewModel returns a model seeded with DefaultWeights unless overridden.
func NewModel(opts ...Option) *Model {
	m := &Model{
		defaults:   DefaultWeights,
		weights:    DefaultWeights,
		lr:         DefaultLearningRate,
		history:    make([]Correction, DefaultHistoryCapacity),
		pins:       make(map[PinKey]Pin),
		rejections: make(map[PinKey]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Learn applies one correction: w += lr·(f(corrected) − f(original)),
// clipped and renormalized. Weights reset to the seed if they collapse to
// zero. The corrected pair is pinned and the original pair is rejected.
// It returns the updated weights.
func (m *Model) Learn(c Correction) Weights {
	if c.At.IsZero() {
		c.At = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := Weights{
		Position:  m.weights.Position + m.lr*(c.Corrected.Position-c.Original.Position),
		Length:    m.weights.Length + m.lr*(c.Corrected.Length-c.Original.Length),
		Structure: m.weights.Structure + m.lr*(c.Corrected.Structure-c.Original.Structure),
		Content:   m.weights.Content + m.lr*(c.Corrected.Content-c.Original.Content),
	}
	if nw, ok := next.Normalized(); ok {
		m.weights = nw
	} else {
		m.weights = m.defaults
	}

	m.history[m.head] = c
	m.head = (m.head + 1) % len(m.history)
	if m.size < len(m.history) {
		m.size++
	}

	corrected := KeyOf(c.SourceText, c.CorrectedText)
	pin := m.pins[corrected]
	if pin.Count == 0 {
		pin.Base = c.BaseConfidence
	}
	pin.Count++
	m.pins[corrected] = pin
	delete(m.rejections, corrected)

	if c.OriginalText != "" && c.OriginalTarget != c.CorrectedTarget {
		original := KeyOf(c.SourceText, c.OriginalText)
		if original != corrected {
			m.rejections[original]++
			delete(m.pins, original)
		}
	}

	m.revision++
	return m.weights
}

// Weights returns the current weights.
func (m *Model) Weights() Weights {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weights
}

// Revision increments on every Learn and Reset.
func (m *Model) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// Snapshot returns a deep copy of the model state. History is ordered
// oldest first.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := make([]Correction, 0, m.size)
	start := (m.head - m.size + len(m.history)) % len(m.history)
	for i := 0; i < m.size; i++ {
		hist = append(hist, m.history[(start+i)%len(m.history)])
	}
	pins := make(map[PinKey]Pin, len(m.pins))
	for k, v := range m.pins {
		pins[k] = v
	}
	rej := make(map[PinKey]int, len(m.rejections))
	for k, v := range m.rejections {
		rej[k] = v
	}
	return Snapshot{
		Weights:      m.weights,
		LearningRate: m.lr,
		Revision:     m.revision,
		History:      hist,
		Pins:         pins,
		Rejections:   rej,
	}
}

// Reset restores the seed weights and forgets history and pins.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = m.defaults
	m.head, m.size = 0, 0
	clear(m.history)
	m.pins = make(map[PinKey]Pin)
	m.rejections = make(map[PinKey]int)
	m.revision++
}
