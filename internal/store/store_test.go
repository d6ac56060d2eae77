package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/valpere/panesync/internal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func correction(id, src, tgt string, at time.Time) internal.CorrectionRecord {
	return internal.CorrectionRecord{
		ID:              id,
		Project:         "default",
		SourceLang:      src,
		TargetLang:      tgt,
		SourceIndex:     1,
		OriginalTarget:  1,
		CorrectedTarget: 2,
		SourceText:      "  How are you today?  ",
		CorrectedText:   "Espero que estés bien.",
		BaseConfidence:  0.42,
		Revision:        3,
		Reason:          "reviewer",
		Timestamp:       at,
	}
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.RecordCorrection(context.Background(), correction("c1", "en", "es", time.Now())); err != nil {
		t.Fatalf("RecordCorrection failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()
	got, err := s.ListCorrections(context.Background(), "", "", 0)
	if err != nil {
		t.Fatalf("ListCorrections failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 correction after reopen, got %d", len(got))
	}
}

func TestStore_RecordCorrection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.RecordCorrection(ctx, correction("c1", "en", "es", at)); err != nil {
		t.Fatalf("RecordCorrection failed: %v", err)
	}

	got, err := s.ListCorrections(ctx, "en", "es", 0)
	if err != nil {
		t.Fatalf("ListCorrections failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 correction, got %d", len(got))
	}
	r := got[0]
	if r.SourceText != "How are you today?" {
		t.Errorf("source text not normalized: %q", r.SourceText)
	}
	if r.CorrectedTarget != 2 || r.OriginalTarget != 1 || r.SourceIndex != 1 {
		t.Errorf("unexpected indices: %+v", r)
	}
	if r.Revision != 3 || r.Reason != "reviewer" {
		t.Errorf("unexpected revision/reason: %d %q", r.Revision, r.Reason)
	}
	if !r.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, at)
	}
}

func TestStore_RecordCorrection_RequiresID(t *testing.T) {
	s := newTestStore(t)
	if err := s.RecordCorrection(context.Background(), correction("", "en", "es", time.Now())); err == nil {
		t.Error("expected error for record without id")
	}
}

func TestStore_RecordCorrection_NormalizesNFC(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := correction("c1", "en", "fr", time.Now())
	rec.CorrectedText = "Cafe\u0301."
	if err := s.RecordCorrection(ctx, rec); err != nil {
		t.Fatalf("RecordCorrection failed: %v", err)
	}
	got, err := s.ListCorrections(ctx, "", "fr", 0)
	if err != nil {
		t.Fatalf("ListCorrections failed: %v", err)
	}
	if len(got) != 1 || got[0].CorrectedText != "Caf\u00e9." {
		t.Errorf("expected NFC text, got %+v", got)
	}
}

func TestStore_ListCorrections_Filter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, pair := range [][2]string{{"en", "es"}, {"en", "fr"}, {"de", "es"}, {"en", "es"}} {
		id := string(rune('a' + i))
		if err := s.RecordCorrection(ctx, correction(id, pair[0], pair[1], base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("RecordCorrection failed: %v", err)
		}
	}

	tests := []struct {
		name     string
		src, tgt string
		limit    int
		wantIDs  []string
	}{
		{"all newest first", "", "", 0, []string{"d", "c", "b", "a"}},
		{"pair", "en", "es", 0, []string{"d", "a"}},
		{"source only", "en", "", 0, []string{"d", "b", "a"}},
		{"target only", "", "es", 0, []string{"d", "c", "a"}},
		{"limit", "", "", 2, []string{"d", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListCorrections(ctx, tt.src, tt.tgt, tt.limit)
			if err != nil {
				t.Fatalf("ListCorrections failed: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d rows, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("row %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestStore_SaveRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:                "r1",
		Project:           "default",
		SourceLang:        "en",
		TargetLang:        "es",
		SourceFile:        "en.md",
		TargetFile:        "es.md",
		Mode:              "position",
		SourceSentences:   3,
		TargetSentences:   3,
		Aligned:           3,
		Validated:         2,
		AverageConfidence: 0.85,
		OverallQuality:    0.9,
		Duration:          1500 * time.Millisecond,
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := s.ListRuns(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.SourceFile != "en.md" || got.Mode != "position" || got.Validated != 2 {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %s", got.Duration)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	if err := s.SaveRun(ctx, Run{}); err == nil {
		t.Error("expected error for run without id")
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Corrections != 0 || stats.Runs != 0 || stats.AverageQuality != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	for i, q := range []float64{0.8, 0.6} {
		run := Run{ID: string(rune('a' + i)), Project: "p", SourceLang: "en", TargetLang: "es", Mode: "dp", OverallQuality: q, AverageConfidence: q}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}
	if err := s.RecordCorrection(ctx, correction("c1", "en", "fr", time.Now())); err != nil {
		t.Fatalf("RecordCorrection failed: %v", err)
	}

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Corrections != 1 || stats.Runs != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.LanguagePairs != 2 {
		t.Errorf("expected 2 language pairs, got %d", stats.LanguagePairs)
	}
	if d := stats.AverageQuality - 0.7; d > 1e-9 || d < -1e-9 {
		t.Errorf("average quality = %v, want 0.7", stats.AverageQuality)
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordCorrection(ctx, correction("c1", "en", "es", time.Now())); err != nil {
		t.Fatalf("RecordCorrection failed: %v", err)
	}
	if err := s.SaveRun(ctx, Run{ID: "r1", Project: "p", SourceLang: "en", TargetLang: "es", Mode: "position"}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows deleted, got %d", n)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Corrections != 0 || stats.Runs != 0 {
		t.Errorf("expected empty log after clear, got %+v", stats)
	}
}
