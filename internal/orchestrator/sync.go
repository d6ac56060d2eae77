package orchestrator

import (
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/event"
)

// SynchronizeCursor moves the cursor of pane id to offset and projects it
// onto the other panes. From the source pane the offset is mapped onto
// every target; from a target pane it is mapped back to the source and
// from there onto the remaining targets.
//
// A position is mapped through the alignment entry of its sentence,
// interpolating within the target sentence. When the pair has no current
// alignment, or the entry is unmatched or below the confidence threshold,
// the document-proportional position is used instead.
func (s *Session) SynchronizeCursor(id PaneID, offset int) (map[PaneID]int, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	p, ok := s.panes[id]
	if !ok {
		return nil, paneError(id, ErrPaneNotFound)
	}
	offset = clampOffset(offset, len(p.doc.Text))
	p.cursor = offset

	projected := s.projectLocked(p, offset)
	out := make(map[PaneID]int, len(projected))
	offsets := make(map[string]int, len(projected))
	for pid, offs := range projected {
		out[pid] = offs[0]
		offsets[string(pid)] = offs[0]
	}

	s.publishSync(event.Event{Kind: event.SyncUpdate, Pane: string(id), Offsets: offsets})
	s.stats.syncs.Add(1)
	s.stats.syncNanos.Add(int64(time.Since(start)))
	return out, nil
}

// SynchronizeSelection projects both ends of a selection in pane id onto
// the other panes. The returned spans are never inverted.
func (s *Session) SynchronizeSelection(id PaneID, sel internal.Span) (map[PaneID]internal.Span, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	p, ok := s.panes[id]
	if !ok {
		return nil, paneError(id, ErrPaneNotFound)
	}
	n := len(p.doc.Text)
	sel = ordered(internal.Span{Start: clampOffset(sel.Start, n), End: clampOffset(sel.End, n)})
	p.selection = sel
	p.cursor = sel.End

	projected := s.projectLocked(p, sel.Start, sel.End)
	out := make(map[PaneID]internal.Span, len(projected))
	spans := make(map[string]internal.Span, len(projected))
	for pid, offs := range projected {
		span := ordered(internal.Span{Start: offs[0], End: offs[1]})
		out[pid] = span
		spans[string(pid)] = span
	}

	s.publishSync(event.Event{Kind: event.SyncUpdate, Pane: string(id), Selections: spans})
	s.stats.syncs.Add(1)
	s.stats.syncNanos.Add(int64(time.Since(start)))
	return out, nil
}

func ordered(sp internal.Span) internal.Span {
	if sp.Start > sp.End {
		sp.Start, sp.End = sp.End, sp.Start
	}
	return sp
}

// projectLocked maps offsets in pane p onto every other pane. Requires mu.
func (s *Session) projectLocked(p *pane, offsets ...int) map[PaneID][]int {
	out := make(map[PaneID][]int)
	threshold := s.cfg.Align.ConfidenceThreshold

	if p.isSource {
		for _, pair := range s.pairsLocked() {
			ps := s.pairs[pair]
			tgt := s.panes[pair.Target]
			out[pair.Target] = s.mapAll(offsets, func(o int) (int, bool) {
				return ps.forward(p.doc, tgt.doc, o, threshold)
			})
		}
		return out
	}

	ps, ok := s.pairs[Pair{Source: s.source, Target: p.id}]
	if !ok {
		return out
	}
	src := s.panes[s.source]
	back := s.mapAll(offsets, func(o int) (int, bool) {
		return ps.backward(src.doc, p.doc, o, threshold)
	})
	out[s.source] = back
	for _, pair := range s.pairsLocked() {
		if pair.Target == p.id {
			continue
		}
		other := s.pairs[pair]
		tgt := s.panes[pair.Target]
		fwd := make([]int, len(back))
		for i, o := range back {
			fwd[i] = s.count(other.forward(src.doc, tgt.doc, o, threshold))
		}
		out[pair.Target] = fwd
	}
	return out
}

func (s *Session) mapAll(offsets []int, fn func(int) (int, bool)) []int {
	out := make([]int, len(offsets))
	for i, o := range offsets {
		out[i] = s.count(fn(o))
	}
	return out
}

// count records whether a projection was sentence-level.
func (s *Session) count(offset int, sentence bool) int {
	s.stats.projections.Add(1)
	if sentence {
		s.stats.sentenceLevel.Add(1)
	}
	return offset
}

// publishSync requires mu.
func (s *Session) publishSync(e event.Event) {
	if err := s.events.Publish(e); err != nil && !errors.Is(err, event.ErrClosed) {
		s.logger.Warn("failed to publish sync update", "pane", e.Pane, "error", err)
	}
}

// current reports whether the pair's result was computed from the given
// documents, so its indices are valid for them.
func (ps *pairState) current(src, tgt *document.Document) bool {
	return ps.result != nil && ps.srcDoc == src && ps.tgtDoc == tgt
}

// forward maps a source offset onto the target. The boolean reports a
// sentence-level mapping.
func (ps *pairState) forward(src, tgt *document.Document, offset int, threshold float64) (int, bool) {
	if ps.current(src, tgt) {
		if o, ok := projectForward(src, tgt, ps.result.Result.Entries, offset, threshold); ok {
			return o, true
		}
	}
	return proportional(src.Text, tgt.Text, offset), false
}

// backward maps a target offset onto the source.
func (ps *pairState) backward(src, tgt *document.Document, offset int, threshold float64) (int, bool) {
	if ps.current(src, tgt) {
		if o, ok := projectBackward(src, tgt, ps.result.Result.Entries, offset, threshold); ok {
			return o, true
		}
	}
	return proportional(tgt.Text, src.Text, offset), false
}

func projectForward(src, tgt *document.Document, entries []align.Entry, offset int, threshold float64) (int, bool) {
	i, ok := src.SentenceAt(offset)
	if !ok {
		return 0, false
	}
	for _, e := range entries {
		if e.Source != i {
			continue
		}
		if !e.Matched() || e.Target >= tgt.Len() || e.Confidence < threshold {
			return 0, false
		}
		return interpolate(src.Sentences[i].Span, tgt.Sentences[e.Target].Span, offset, tgt.Text), true
	}
	return 0, false
}

// projectBackward picks the most confident entry ending in the target
// sentence at offset; ties go to the lower source index.
func projectBackward(src, tgt *document.Document, entries []align.Entry, offset int, threshold float64) (int, bool) {
	j, ok := tgt.SentenceAt(offset)
	if !ok {
		return 0, false
	}
	best := -1
	for k, e := range entries {
		if e.Target != j || e.Source >= src.Len() || e.Confidence < threshold {
			continue
		}
		if best < 0 || e.Confidence > entries[best].Confidence {
			best = k
		}
	}
	if best < 0 {
		return 0, false
	}
	i := entries[best].Source
	return interpolate(tgt.Sentences[j].Span, src.Sentences[i].Span, offset, src.Text), true
}

// interpolate maps offset from span from onto span to, keeping its
// relative position, and snaps the result to a rune boundary of text.
func interpolate(from, to internal.Span, offset int, text string) int {
	frac := 0.0
	if from.Len() > 0 {
		frac = math.Min(math.Max(float64(offset-from.Start)/float64(from.Len()), 0), 1)
	}
	return snapRune(text, to.Start+int(math.Round(frac*float64(to.Len()))))
}

// proportional maps offset by relative document position.
func proportional(from, to string, offset int) int {
	if len(from) == 0 || len(to) == 0 {
		return 0
	}
	frac := math.Min(math.Max(float64(offset)/float64(len(from)), 0), 1)
	return snapRune(to, int(math.Round(frac*float64(len(to)))))
}

// snapRune moves offset back to the start of the rune containing it.
func snapRune(text string, offset int) int {
	offset = clampOffset(offset, len(text))
	for offset > 0 && offset < len(text) && !utf8.RuneStart(text[offset]) {
		offset--
	}
	return offset
}
