package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/document"
	"github.com/valpere/panesync/internal/learning"
)

// ApplyUserCorrection teaches the pair's learning model that source
// sentence original.Source belongs with corrected.Target instead of
// original.Target. Every pair sharing the model is realigned, and the
// correction is passed to the recorder if one is set.
func (s *Session) ApplyUserCorrection(pair Pair, original, corrected align.Entry, reason string) error {
	rec, err := s.learn(pair, original, corrected, reason)
	if err != nil {
		return err
	}
	if s.recorder != nil {
		if err := s.recorder.RecordCorrection(s.ctx, rec); err != nil {
			s.logger.Warn("failed to record correction", "pair", pair.String(), "error", err)
		}
	}
	return nil
}

func (s *Session) learn(pair Pair, original, corrected align.Entry, reason string) (internal.CorrectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return internal.CorrectionRecord{}, ErrSessionClosed
	}
	_, src, tgt, err := s.pairLocked(pair)
	if err != nil {
		return internal.CorrectionRecord{}, err
	}
	if err := checkCorrection(src.doc, tgt.doc, original, corrected); err != nil {
		return internal.CorrectionRecord{}, err
	}

	i := corrected.Source
	model := s.models.Model(s.cfg.Project, src.lang, tgt.lang)
	in := align.Input{Source: src.doc, Target: tgt.doc, Model: model.Snapshot()}
	c := learning.Correction{
		Source:          i,
		OriginalTarget:  original.Target,
		CorrectedTarget: corrected.Target,
		SourceText:      src.doc.Sentences[i].Text,
		OriginalText:    sentenceText(tgt.doc, original.Target),
		CorrectedText:   sentenceText(tgt.doc, corrected.Target),
		Original:        s.engine.Features(in, i, original.Target),
		Corrected:       s.engine.Features(in, i, corrected.Target),
		BaseConfidence:  s.engine.Score(in, i, corrected.Target),
		Reason:          reason,
		At:              time.Now(),
	}
	w := model.Learn(c)
	revision := model.Revision()

	for p, ps := range s.pairs {
		if s.panes[p.Source].lang == src.lang && s.panes[p.Target].lang == tgt.lang {
			s.schedule(ps, 0)
		}
	}

	s.logger.Info("correction applied",
		"pair", pair.String(),
		"source", i,
		"from", original.Target,
		"to", corrected.Target,
		"revision", revision,
		"weights", fmt.Sprintf("%.3f/%.3f/%.3f/%.3f", w.Position, w.Length, w.Structure, w.Content),
	)

	return internal.CorrectionRecord{
		ID:              uuid.NewString(),
		Project:         s.cfg.Project,
		SourceLang:      src.lang,
		TargetLang:      tgt.lang,
		SourceIndex:     i,
		OriginalTarget:  original.Target,
		CorrectedTarget: corrected.Target,
		SourceText:      c.SourceText,
		CorrectedText:   c.CorrectedText,
		BaseConfidence:  c.BaseConfidence,
		Revision:        revision,
		Reason:          reason,
		Timestamp:       c.At,
	}, nil
}

func checkCorrection(src, tgt *document.Document, original, corrected align.Entry) error {
	i := corrected.Source
	if i < 0 || i >= src.Len() {
		return fmt.Errorf("%w: source sentence %d out of range [0,%d)", ErrInvalidCorrection, i, src.Len())
	}
	if original.Source != i {
		return fmt.Errorf("%w: original and corrected entries name different source sentences (%d, %d)", ErrInvalidCorrection, original.Source, i)
	}
	for _, j := range []int{original.Target, corrected.Target} {
		if j != align.NoTarget && (j < 0 || j >= tgt.Len()) {
			return fmt.Errorf("%w: target sentence %d out of range [0,%d)", ErrInvalidCorrection, j, tgt.Len())
		}
	}
	return nil
}

func sentenceText(d *document.Document, i int) string {
	if i < 0 || i >= d.Len() {
		return ""
	}
	return d.Sentences[i].Text
}
