package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/cache"
	"github.com/valpere/panesync/internal/event"
	"github.com/valpere/panesync/internal/quality"
)

// qualityEpsilon is the smallest score difference reported as a change.
const qualityEpsilon = 1e-9

// addPair registers pair and schedules its first computation. Requires mu.
func (s *Session) addPair(pair Pair) {
	ps := &pairState{pair: pair}
	s.pairs[pair] = ps
	s.schedule(ps, s.cfg.Debounce)
}

// supersede starts a new generation for ps: a pending timer is stopped, an
// in-flight computation is cancelled and the pair is marked pending.
// Requires mu.
func (s *Session) supersede(ps *pairState) uint64 {
	ps.generation++
	if ps.cancel != nil {
		ps.cancel()
		ps.cancel = nil
	}
	if ps.timer != nil {
		if ps.timer.Stop() {
			s.wg.Done()
		}
		ps.timer = nil
	}
	if !ps.pending {
		ps.pending = true
		s.busyAdd(1)
	}
	return ps.generation
}

// schedule (re)arms the pair's debounce timer. Requires mu.
func (s *Session) schedule(ps *pairState, delay time.Duration) {
	gen := s.supersede(ps)
	pair := ps.pair
	s.wg.Add(1)
	ps.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.run(s.ctx, pair, gen)
	})
}

// dropPair cancels everything in flight for ps. Requires mu.
func (s *Session) dropPair(ps *pairState) {
	s.supersede(ps)
	s.donePending(ps)
}

// donePending requires mu.
func (s *Session) donePending(ps *pairState) {
	if ps.pending {
		ps.pending = false
		s.busyAdd(-1)
	}
}

// busyAdd tracks the number of pending pairs and the idle channel.
// Requires mu.
func (s *Session) busyAdd(d int) {
	was := s.busy
	s.busy += d
	switch {
	case was == 0 && s.busy > 0:
		s.idle = make(chan struct{})
	case was > 0 && s.busy == 0:
		close(s.idle)
	}
}

// run computes generation gen of pair, unless it was superseded before
// the computation started.
func (s *Session) run(parent context.Context, pair Pair, gen uint64) {
	s.mu.Lock()
	ps, ok := s.pairs[pair]
	if !ok || s.closed || ps.generation != gen {
		s.mu.Unlock()
		return
	}
	src, tgt := s.panes[pair.Source], s.panes[pair.Target]
	snap := s.models.Model(s.cfg.Project, src.lang, tgt.lang).Snapshot()
	in := align.Input{Source: src.doc, Target: tgt.doc, Model: snap}
	engine, calc := s.engine, s.calc
	key := cache.NewKey(src.doc.Text, tgt.doc.Text, src.lang, tgt.lang, version(s.cfg.Align, s.cfg.Quality, snap.Revision))
	timeout := s.cfg.ComputeTimeout

	ctx, cancel := context.WithTimeout(parent, timeout)
	stop := context.AfterFunc(s.ctx, cancel)
	ps.cancel = cancel
	s.mu.Unlock()
	defer stop()
	defer cancel()

	start := time.Now()
	val, hit, err := s.compute(ctx, key, engine, calc, in)
	s.finish(pair, gen, in, val, hit, err, time.Since(start))
}

func (s *Session) compute(ctx context.Context, key cache.Key, engine *align.Engine, calc *quality.Calculator, in align.Input) (Alignment, bool, error) {
	if err := ctx.Err(); err != nil {
		return Alignment{}, false, err
	}
	return s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (Alignment, error) {
		s.stats.computations.Add(1)
		res, err := engine.Align(ctx, in)
		if err != nil {
			return Alignment{}, err
		}
		ind := calc.Compute(quality.Input{Result: res, Source: in.Source, Target: in.Target})
		return Alignment{Result: res, Quality: ind}, nil
	})
}

// finish applies the outcome of generation gen. Outcomes of superseded
// generations are discarded.
func (s *Session) finish(pair Pair, gen uint64, in align.Input, val Alignment, hit bool, err error, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.pairs[pair]
	if !ok || s.closed || ps.generation != gen {
		return
	}
	ps.cancel = nil

	switch {
	case err == nil:
		prev := ps.result
		wasStale := ps.stale
		ps.result = &val
		ps.srcDoc, ps.tgtDoc = in.Source, in.Target
		ps.stale, ps.err, ps.retries = false, nil, 0
		ps.updated = time.Now()
		s.stats.recordAlignment(elapsed, hit)
		for _, id := range []PaneID{pair.Source, pair.Target} {
			if p := s.panes[id]; p.state == PaneAdded {
				p.state = PaneActive
			}
		}
		s.donePending(ps)

		if prev == nil || wasStale || quality.Changed(prev.Quality, val.Quality, qualityEpsilon) {
			s.publishQuality(ps)
		}
		if !hit && s.cfg.SlowAlignment > 0 && elapsed > s.cfg.SlowAlignment {
			s.alert(fmt.Sprintf("alignment of %s took %s", pair, elapsed.Round(time.Millisecond)))
		}

	case errors.Is(err, context.DeadlineExceeded):
		s.stats.timeouts.Add(1)
		ps.stale = true
		ps.err = fmt.Errorf("%w: %s after %s: %w", ErrAlignmentTimeout, pair, s.cfg.ComputeTimeout, err)
		s.logger.Warn("alignment timed out", "pair", pair.String(), "timeout", s.cfg.ComputeTimeout, "retry", ps.retries < s.cfg.MaxRetries)
		s.publishQuality(ps)
		if ps.retries < s.cfg.MaxRetries {
			ps.retries++
			s.schedule(ps, s.cfg.RetryDelay)
			return
		}
		s.donePending(ps)

	case errors.Is(err, context.Canceled):
		// A shared computation for the same key was cancelled by its
		// owner; start a fresh one.
		s.schedule(ps, 0)

	default:
		ps.stale = true
		ps.err = err
		s.logger.Error("alignment failed", "pair", pair.String(), "error", err)
		s.publishQuality(ps)
		s.donePending(ps)
	}
}

// publishQuality requires mu.
func (s *Session) publishQuality(ps *pairState) {
	var ind quality.Indicator
	if ps.result != nil {
		ind = ps.result.Quality
	}
	err := s.events.Publish(event.Event{
		Kind:    event.QualityChange,
		Pair:    ps.pair.String(),
		Quality: &ind,
		Stale:   ps.stale,
	})
	if err != nil && !errors.Is(err, event.ErrClosed) {
		s.logger.Warn("failed to publish quality change", "pair", ps.pair.String(), "error", err)
	}
}

type counters struct {
	computations  atomic.Uint64
	alignments    atomic.Uint64
	hits          atomic.Uint64
	timeouts      atomic.Uint64
	alignNanos    atomic.Int64
	syncs         atomic.Uint64
	syncNanos     atomic.Int64
	projections   atomic.Uint64
	sentenceLevel atomic.Uint64
}

func (c *counters) recordAlignment(d time.Duration, hit bool) {
	c.alignments.Add(1)
	c.alignNanos.Add(int64(d))
	if hit {
		c.hits.Add(1)
	}
}

// Metrics reports session performance.
type Metrics struct {
	// Computations counts alignments actually computed, i.e. cache misses.
	Computations uint64 `json:"computations"`
	// Alignments counts completed pair updates, computed or cached.
	Alignments           uint64        `json:"alignments"`
	CacheHits            uint64        `json:"cache_hits"`
	CacheHitRate         float64       `json:"cache_hit_rate"`
	Timeouts             uint64        `json:"timeouts"`
	AverageAlignmentTime time.Duration `json:"average_alignment_time"`
	Syncs                uint64        `json:"syncs"`
	AverageSyncTime      time.Duration `json:"average_sync_time"`
	// SentenceSyncRate is the fraction of projected positions mapped
	// through an alignment entry rather than by document proportion.
	SentenceSyncRate float64     `json:"sentence_sync_rate"`
	Panes            int         `json:"panes"`
	Pairs            int         `json:"pairs"`
	Pending          int         `json:"pending"`
	Cache            cache.Stats `json:"cache"`
	Events           event.Stats `json:"events"`
}

// Metrics returns a snapshot of the session counters.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	panes, pairs, pending := len(s.panes), len(s.pairs), s.busy
	s.mu.Unlock()

	c := &s.stats
	m := Metrics{
		Computations: c.computations.Load(),
		Alignments:   c.alignments.Load(),
		CacheHits:    c.hits.Load(),
		Timeouts:     c.timeouts.Load(),
		Syncs:        c.syncs.Load(),
		Panes:        panes,
		Pairs:        pairs,
		Pending:      pending,
		Cache:        s.cache.Stats(),
		Events:       s.events.Stats(),
	}
	if m.Alignments > 0 {
		m.CacheHitRate = float64(m.CacheHits) / float64(m.Alignments)
		m.AverageAlignmentTime = time.Duration(c.alignNanos.Load() / int64(m.Alignments))
	}
	if m.Syncs > 0 {
		m.AverageSyncTime = time.Duration(c.syncNanos.Load() / int64(m.Syncs))
	}
	if n := c.projections.Load(); n > 0 {
		m.SentenceSyncRate = float64(c.sentenceLevel.Load()) / float64(n)
	}
	return m
}
