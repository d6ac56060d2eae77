// Package store keeps a SQLite audit log of alignment runs and user
// corrections.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/panesync/internal"
)

type Store struct {
	db             *sql.DB
	saveCorrection *sql.Stmt
	saveRun        *sql.Stmt
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to migrate: %w", err), db.Close())
	}
	if err := s.prepare(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to prepare statements: %w", err), s.Close())
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS corrections (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source_index INTEGER NOT NULL,
		original_target INTEGER NOT NULL,
		corrected_target INTEGER NOT NULL,
		source_text TEXT NOT NULL,
		corrected_text TEXT NOT NULL,
		base_confidence REAL,
		revision INTEGER,
		reason TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- alignment_runs records one aligned pair per row
	CREATE TABLE IF NOT EXISTS alignment_runs (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source_file TEXT,
		target_file TEXT,
		mode TEXT NOT NULL,
		source_sentences INTEGER NOT NULL,
		target_sentences INTEGER NOT NULL,
		aligned INTEGER NOT NULL,
		validated INTEGER NOT NULL,
		average_confidence REAL,
		overall_quality REAL,
		problems INTEGER DEFAULT 0,
		duration_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_corrections_pair ON corrections(source_lang, target_lang);
	CREATE INDEX IF NOT EXISTS idx_runs_pair ON alignment_runs(source_lang, target_lang);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepare() error {
	var err error
	s.saveCorrection, err = s.db.Prepare(
		`INSERT OR REPLACE INTO corrections (id, project, source_lang, target_lang, source_index, original_target, corrected_target, source_text, corrected_text, base_confidence, revision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	s.saveRun, err = s.db.Prepare(
		`INSERT OR REPLACE INTO alignment_runs (id, project, source_lang, target_lang, source_file, target_file, mode, source_sentences, target_sentences, aligned, validated, average_confidence, overall_quality, problems, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	return err
}

// RecordCorrection appends a correction to the audit log.
func (s *Store) RecordCorrection(ctx context.Context, rec internal.CorrectionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("correction record has no id")
	}
	at := rec.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.saveCorrection.ExecContext(ctx,
		rec.ID, rec.Project, rec.SourceLang, rec.TargetLang,
		rec.SourceIndex, rec.OriginalTarget, rec.CorrectedTarget,
		normalizeText(rec.SourceText), normalizeText(rec.CorrectedText),
		rec.BaseConfidence, int64(rec.Revision), rec.Reason, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record correction %s: %w", rec.ID, err)
	}
	return nil
}

// ListCorrections returns corrections, newest first, optionally filtered by
// language pair (pass empty strings to return everything). A positive
// limit caps the number of rows.
func (s *Store) ListCorrections(ctx context.Context, sourceLang, targetLang string, limit int) ([]internal.CorrectionRecord, error) {
	where, args := pairFilter(sourceLang, targetLang)
	query := `SELECT id, project, source_lang, target_lang, source_index, original_target, corrected_target, source_text, corrected_text, base_confidence, revision, reason, created_at FROM corrections` +
		where + ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CorrectionRecord
	for rows.Next() {
		var r internal.CorrectionRecord
		var revision int64
		var reason sql.NullString
		if err := rows.Scan(&r.ID, &r.Project, &r.SourceLang, &r.TargetLang, &r.SourceIndex, &r.OriginalTarget, &r.CorrectedTarget,
			&r.SourceText, &r.CorrectedText, &r.BaseConfidence, &revision, &reason, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Revision = uint64(revision)
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run is one aligned pair as recorded by the CLI.
type Run struct {
	ID                string
	Project           string
	SourceLang        string
	TargetLang        string
	SourceFile        string
	TargetFile        string
	Mode              string
	SourceSentences   int
	TargetSentences   int
	Aligned           int
	Validated         int
	AverageConfidence float64
	OverallQuality    float64
	Problems          int
	Duration          time.Duration
	CreatedAt         time.Time
}

// SaveRun records an alignment run.
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("run has no id")
	}
	at := r.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.saveRun.ExecContext(ctx,
		r.ID, r.Project, r.SourceLang, r.TargetLang, r.SourceFile, r.TargetFile, r.Mode,
		r.SourceSentences, r.TargetSentences, r.Aligned, r.Validated,
		r.AverageConfidence, r.OverallQuality, r.Problems, r.Duration.Milliseconds(), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns runs, newest first, optionally filtered by language pair.
func (s *Store) ListRuns(ctx context.Context, sourceLang, targetLang string, limit int) ([]Run, error) {
	where, args := pairFilter(sourceLang, targetLang)
	query := `SELECT id, project, source_lang, target_lang, source_file, target_file, mode, source_sentences, target_sentences, aligned, validated, average_confidence, overall_quality, problems, duration_ms, created_at FROM alignment_runs` +
		where + ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var srcFile, tgtFile sql.NullString
		var ms int64
		if err := rows.Scan(&r.ID, &r.Project, &r.SourceLang, &r.TargetLang, &srcFile, &tgtFile, &r.Mode,
			&r.SourceSentences, &r.TargetSentences, &r.Aligned, &r.Validated,
			&r.AverageConfidence, &r.OverallQuality, &r.Problems, &ms, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.SourceFile, r.TargetFile = srcFile.String, tgtFile.String
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarises the audit log.
type Stats struct {
	Corrections       int
	Runs              int
	LanguagePairs     int
	AverageQuality    float64
	AverageConfidence float64
}

// Stats returns summary statistics for the audit log.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM corrections),
			(SELECT COUNT(*) FROM alignment_runs),
			(SELECT COUNT(*) FROM (
				SELECT source_lang, target_lang FROM corrections
				UNION
				SELECT source_lang, target_lang FROM alignment_runs)),
			COALESCE((SELECT AVG(overall_quality) FROM alignment_runs), 0),
			COALESCE((SELECT AVG(average_confidence) FROM alignment_runs), 0)`).Scan(
		&stats.Corrections,
		&stats.Runs,
		&stats.LanguagePairs,
		&stats.AverageQuality,
		&stats.AverageConfidence,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Clear removes every correction and run and returns the number of rows
// deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"corrections", "alignment_runs"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table)
		if err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, tx.Commit()
}

func (s *Store) Close() error {
	var err error
	for _, stmt := range []*sql.Stmt{s.saveCorrection, s.saveRun} {
		if stmt != nil {
			err = multierr.Append(err, stmt.Close())
		}
	}
	return multierr.Append(err, s.db.Close())
}

func pairFilter(sourceLang, targetLang string) (string, []any) {
	switch {
	case sourceLang != "" && targetLang != "":
		return ` WHERE source_lang = ? AND target_lang = ?`, []any{sourceLang, targetLang}
	case sourceLang != "":
		return ` WHERE source_lang = ?`, []any{sourceLang}
	case targetLang != "":
		return ` WHERE target_lang = ?`, []any{targetLang}
	}
	return "", nil
}

// normalizeText trims whitespace and applies Unicode NFC normalization so
// logged sentences compare equal across input encodings.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
