// Package orchestrator owns multi-pane editing sessions: pane state,
// debounced realignment of every (source, target) pair through the cache,
// quality aggregation, cursor and selection projection, and user
// corrections feeding the learning models.
//
// Session methods are serialized by one mutex. Alignment runs outside it,
// one goroutine per pair, and never blocks callers; results are applied
// only if no newer update superseded them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/cache"
	"github.com/valpere/panesync/internal/detector"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/event"
	"github.com/valpere/panesync/internal/learning"
	"github.com/valpere/panesync/internal/profile"
	"github.com/valpere/panesync/internal/quality"
	"github.com/valpere/panesync/internal/validator"
)

// Recorder receives an audit record for every applied correction.
type Recorder interface {
	RecordCorrection(ctx context.Context, rec internal.CorrectionRecord) error
}

// Option configures a Session.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	profiles *profile.Registry
	models   *learning.Registry
	detector *detector.Detector
	recorder Recorder
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProfiles sets the language profile registry. The default is the
// shared built-in registry.
func WithProfiles(r *profile.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.profiles = r
		}
	}
}

// WithLearning shares a learning registry between sessions.
func WithLearning(r *learning.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.models = r
		}
	}
}

// WithDetector sets the language detector used for mismatch warnings.
func WithDetector(d *detector.Detector) Option {
	return func(o *options) { o.detector = d }
}

// WithRecorder sets the correction audit sink.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// pairState tracks one pair's scheduling and latest result. Guarded by
// Session.mu.
type pairState struct {
	pair       Pair
	generation uint64
	timer      *time.Timer
	cancel     context.CancelFunc
	pending    bool
	retries    int

	result  *Alignment
	srcDoc  *document.Document // documents result was computed from
	tgtDoc  *document.Document
	stale   bool
	err     error
	updated time.Time
}

// Session is one multi-pane editing session.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	engine *align.Engine
	calc   *quality.Calculator

	profiles  *profile.Registry
	models    *learning.Registry
	validator *validator.Validator
	cache     *cache.Cache[Alignment]
	events    *event.Queue
	recorder  Recorder
	logger    *slog.Logger

	panes  map[PaneID]*pane
	order  []PaneID
	source PaneID
	pairs  map[Pair]*pairState

	busy int
	idle chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	stats counters
}

// New creates a session and starts its cache maintenance.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	o := options{logger: slog.Default(), profiles: profile.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.models == nil {
		o.models = learning.NewRegistry(
			learning.WithWeights(cfg.Weights),
			learning.WithLearningRate(cfg.LearningRate),
		)
	}
	if o.detector == nil && cfg.DetectLanguage {
		codes := cfg.Languages
		if len(codes) == 0 {
			codes = o.profiles.Codes()
		}
		o.detector = detector.New(codes...)
	}
	if !cfg.DetectLanguage {
		o.detector = nil
	}

	s := &Session{
		cfg:       cfg,
		engine:    align.NewEngine(cfg.Align, align.WithLogger(o.logger)),
		calc:      quality.NewCalculator(cfg.Quality),
		profiles:  o.profiles,
		models:    o.models,
		validator: validator.New(o.detector, cfg.MaxContentBytes),
		events:    event.NewQueue(cfg.EventQueueSize, event.WithLogger(o.logger)),
		recorder:  o.recorder,
		logger:    o.logger,
		panes:     make(map[PaneID]*pane),
		pairs:     make(map[Pair]*pairState),
		idle:      make(chan struct{}),
	}
	close(s.idle)

	c, err := cache.New[Alignment](cfg.Cache,
		cache.WithLogger(o.logger),
		cache.WithAlertHandler(func(a cache.Alert) {
			s.alert(a.String())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	s.cache = c

	s.ctx, s.cancel = context.WithCancel(context.Background())
	if err := s.cache.Start(s.ctx); err != nil {
		s.cancel()
		return nil, fmt.Errorf("failed to start cache: %w", err)
	}
	return s, nil
}

// Events returns the session's event stream. It is closed by Close.
func (s *Session) Events() <-chan event.Event {
	return s.events.Events()
}

// AddPane adds a pane and schedules alignment of the pairs it completes.
// It fails with ErrInvalidPaneCount when the session is full or a second
// source pane is added, and with ErrMalformedContent when content fails
// validation. An unsupported language is a warning on the pane, not an
// error.
func (s *Session) AddPane(ctx context.Context, lang, content string, isSource bool) (PaneID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	if len(s.panes) >= s.cfg.MaxPanes {
		return "", fmt.Errorf("%w: session already holds %d panes", ErrInvalidPaneCount, len(s.panes))
	}
	if isSource && s.source != "" {
		return "", fmt.Errorf("%w: session already has source pane %s", ErrInvalidPaneCount, s.source)
	}
	if err := s.validator.Check(content); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedContent, err)
	}

	id := PaneID(uuid.NewString())
	prof, _ := s.profiles.Lookup(lang)
	p := &pane{
		id:       id,
		lang:     profile.Canonical(lang),
		isSource: isSource,
		state:    PaneAdded,
		warnings: s.languageWarnings(lang, content),
		doc:      document.Parse(string(id), content, prof),
	}
	s.panes[id] = p
	s.order = append(s.order, id)

	if isSource {
		s.source = id
		for _, other := range s.order {
			if other != id {
				s.addPair(Pair{Source: id, Target: other})
			}
		}
	} else if s.source != "" {
		s.addPair(Pair{Source: s.source, Target: id})
	}

	s.logger.Info("pane added",
		"pane", id,
		"lang", p.lang,
		"source", isSource,
		"sentences", p.doc.Len(),
		"warnings", len(p.warnings),
	)
	return id, nil
}

// languageWarnings lists non-fatal problems with a pane's language.
func (s *Session) languageWarnings(lang, content string) []string {
	var warnings []string
	if _, err := s.profiles.Lookup(lang); err != nil {
		warnings = append(warnings, err.Error())
	} else if len(s.cfg.Languages) > 0 && !slices.ContainsFunc(s.cfg.Languages, func(l string) bool {
		return profile.Canonical(l) == profile.Canonical(lang)
	}) {
		warnings = append(warnings, fmt.Errorf("%w: %s is not enabled for this session", ErrUnsupportedLanguage, lang).Error())
	}
	if err := s.validator.CheckLanguage(content, lang); err != nil {
		warnings = append(warnings, err.Error())
	}
	for _, w := range warnings {
		s.logger.Warn("pane language warning", "lang", lang, "warning", w)
	}
	return warnings
}

// UpdatePaneContent replaces a pane's content and schedules debounced
// realignment of its pairs. It returns immediately with the current,
// possibly pending, quality state. Invalid content leaves the pane
// unchanged.
func (s *Session) UpdatePaneContent(ctx context.Context, id PaneID, content string, cursor *int) (QualitySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return QualitySnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return QualitySnapshot{}, ErrSessionClosed
	}
	p, ok := s.panes[id]
	if !ok {
		return QualitySnapshot{}, paneError(id, ErrPaneNotFound)
	}
	if err := s.validator.Check(content); err != nil {
		return QualitySnapshot{}, paneError(id, fmt.Errorf("%w: %w", ErrMalformedContent, err))
	}

	p.warnings = s.languageWarnings(p.lang, content)
	p.doc = document.Parse(string(id), content, p.doc.Profile)
	p.revision++
	p.state = PaneActive
	if cursor != nil {
		p.cursor = clampOffset(*cursor, len(content))
	} else {
		p.cursor = clampOffset(p.cursor, len(content))
	}
	p.selection = internal.Span{
		Start: clampOffset(p.selection.Start, len(content)),
		End:   clampOffset(p.selection.End, len(content)),
	}

	for pair, ps := range s.pairs {
		if pair.Source == id || pair.Target == id {
			s.schedule(ps, s.cfg.Debounce)
		}
	}
	return s.snapshotLocked(), nil
}

// RemovePane removes a pane, cancelling the computations of its pairs.
func (s *Session) RemovePane(id PaneID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	p, ok := s.panes[id]
	if !ok {
		return paneError(id, ErrPaneNotFound)
	}

	for pair, ps := range s.pairs {
		if pair.Source == id || pair.Target == id {
			s.dropPair(ps)
			delete(s.pairs, pair)
		}
	}
	p.state = PaneRemoved
	delete(s.panes, id)
	s.order = slices.DeleteFunc(s.order, func(other PaneID) bool { return other == id })
	if s.source == id {
		s.source = ""
	}
	s.logger.Info("pane removed", "pane", id, "source", p.isSource)
	return nil
}

// Refresh recomputes every pair now, bypassing the debounce window, and
// waits for the results. Pair computations run concurrently.
func (s *Session) Refresh(ctx context.Context) error {
	type job struct {
		pair Pair
		gen  uint64
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	var jobs []job
	for _, pair := range s.pairsLocked() {
		jobs = append(jobs, job{pair: pair, gen: s.supersede(s.pairs[pair])})
	}
	s.wg.Add(len(jobs))
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			defer s.wg.Done()
			s.run(gctx, j.pair, j.gen)

			s.mu.Lock()
			defer s.mu.Unlock()
			if ps, ok := s.pairs[j.pair]; ok && ps.generation == j.gen && ps.err != nil {
				return fmt.Errorf("failed to align %s: %w", j.pair, ps.err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// WaitIdle blocks until no pair computation is scheduled or running.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	ch := s.idle
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels all computations, waits for them to finish and stops the
// cache and event stream.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, ps := range s.pairs {
		s.dropPair(ps)
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	return multierr.Combine(s.cache.Close(), s.events.Close())
}

// Tune applies a mid-session adjustment. Threshold changes invalidate
// every pair's cache key and trigger recomputation.
func (s *Session) Tune(t Tuning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	cfg := s.cfg
	if t.ConfidenceThreshold != nil {
		cfg.Align.ConfidenceThreshold = *t.ConfidenceThreshold
		cfg.Quality.ConfidenceThreshold = *t.ConfidenceThreshold
	}
	if t.AutoValidationThreshold != nil {
		cfg.Align.AutoValidationThreshold = *t.AutoValidationThreshold
	}
	if t.MaxLengthRatioDeviation != nil {
		cfg.Align.MaxLengthRatioDeviation = *t.MaxLengthRatioDeviation
	}
	if err := cfg.Align.Validate(); err != nil {
		return fmt.Errorf("invalid tuning: %w", err)
	}

	if t.CacheMaxEntries != nil || t.CacheMaxMemory != nil {
		if t.CacheMaxEntries != nil {
			cfg.Cache.MaxEntries = *t.CacheMaxEntries
		}
		if t.CacheMaxMemory != nil {
			cfg.Cache.MaxMemory = *t.CacheMaxMemory
		}
		if err := s.cache.Resize(cfg.Cache.MaxEntries, cfg.Cache.MaxMemory); err != nil {
			return fmt.Errorf("invalid tuning: %w", err)
		}
	}

	rescore := cfg.Align != s.cfg.Align || cfg.Quality != s.cfg.Quality
	s.cfg = cfg
	if rescore {
		s.engine = align.NewEngine(cfg.Align, align.WithLogger(s.logger))
		s.calc = quality.NewCalculator(cfg.Quality)
		for _, ps := range s.pairs {
			s.schedule(ps, 0)
		}
	}
	s.logger.Info("session tuned", "rescore", rescore, "cache_max_entries", cfg.Cache.MaxEntries)
	return nil
}

// Panes lists the session's panes in insertion order.
func (s *Session) Panes() []Pane {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pane, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.panes[id].view())
	}
	return out
}

// Pane returns one pane.
func (s *Session) Pane(id PaneID) (Pane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panes[id]
	if !ok {
		return Pane{}, paneError(id, ErrPaneNotFound)
	}
	return p.view(), nil
}

// Pairs lists the session's pairs in target pane order.
func (s *Session) Pairs() []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairsLocked()
}

func (s *Session) pairsLocked() []Pair {
	var out []Pair
	for _, id := range s.order {
		pair := Pair{Source: s.source, Target: id}
		if _, ok := s.pairs[pair]; ok {
			out = append(out, pair)
		}
	}
	return out
}

// pairLocked resolves pair to its state and panes.
func (s *Session) pairLocked(pair Pair) (*pairState, *pane, *pane, error) {
	src, ok := s.panes[pair.Source]
	if !ok {
		return nil, nil, nil, paneError(pair.Source, ErrPaneNotFound)
	}
	tgt, ok := s.panes[pair.Target]
	if !ok {
		return nil, nil, nil, paneError(pair.Target, ErrPaneNotFound)
	}
	ps, ok := s.pairs[pair]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s is not a source/target pair", ErrPaneNotFound, pair)
	}
	return ps, src, tgt, nil
}

// Alignment returns the latest alignment of pair. When the last attempt
// failed, the previous result is returned together with the error, which
// wraps ErrAlignmentTimeout for timeouts.
func (s *Session) Alignment(pair Pair) (Alignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, _, _, err := s.pairLocked(pair)
	if err != nil {
		return Alignment{}, err
	}
	var a Alignment
	if ps.result != nil {
		a = *ps.result
	}
	if ps.stale && ps.err != nil {
		return a, ps.err
	}
	return a, nil
}

// Quality returns the latest quality indicator of pair. It is the zero
// indicator until the first computation completes.
func (s *Session) Quality(pair Pair) (quality.Indicator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, _, _, err := s.pairLocked(pair)
	if err != nil {
		return quality.Indicator{}, err
	}
	if ps.result == nil {
		return quality.Indicator{}, nil
	}
	return ps.result.Quality, nil
}

// QualityAll returns the latest indicator of every pair.
func (s *Session) QualityAll() map[Pair]quality.Indicator {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Pair]quality.Indicator, len(s.pairs))
	for pair, ps := range s.pairs {
		if ps.result != nil {
			out[pair] = ps.result.Quality
		} else {
			out[pair] = quality.Indicator{}
		}
	}
	return out
}

// Status returns the scheduling state of pair.
func (s *Session) Status(pair Pair) (PairStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, _, _, err := s.pairLocked(pair)
	if err != nil {
		return PairStatus{}, err
	}
	return ps.status(), nil
}

func (ps *pairState) status() PairStatus {
	st := PairStatus{
		Ready:      ps.result != nil,
		Pending:    ps.pending,
		Stale:      ps.stale,
		Generation: ps.generation,
		UpdatedAt:  ps.updated,
	}
	if ps.result != nil {
		st.Quality = ps.result.Quality
	}
	return st
}

// Snapshot returns the session's quality state.
func (s *Session) Snapshot() QualitySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() QualitySnapshot {
	snap := QualitySnapshot{Pairs: make(map[Pair]PairStatus, len(s.pairs)), Pending: s.busy > 0}
	var ready []quality.Indicator
	for _, pair := range s.pairsLocked() {
		ps := s.pairs[pair]
		snap.Pairs[pair] = ps.status()
		if ps.result != nil {
			ready = append(ready, ps.result.Quality)
		}
	}
	snap.Overall = quality.Merge(ready)
	return snap
}

// Model returns the learning model pair trains.
func (s *Session) Model(pair Pair) (*learning.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, src, tgt, err := s.pairLocked(pair)
	if err != nil {
		return nil, err
	}
	return s.models.Model(s.cfg.Project, src.lang, tgt.lang), nil
}

// alert publishes a PerformanceAlert.
func (s *Session) alert(msg string) {
	if err := s.events.Publish(event.Event{Kind: event.PerformanceAlert, Message: msg}); err != nil && !errors.Is(err, event.ErrClosed) {
		s.logger.Warn("failed to publish alert", "error", err)
	}
}

// version fingerprints everything besides content and languages that
// determines an alignment result.
func version(a align.Config, q quality.Config, revision uint64) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%x|%+v|%d", a.Version(), q, revision))
}

func clampOffset(offset, n int) int {
	return max(0, min(offset, n))
}
