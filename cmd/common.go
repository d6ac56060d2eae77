/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/detector"
	"github.com/valpere/panesync/internal/orchestrator"
	"github.com/valpere/panesync/internal/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	reviewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF00FF"))
)

// score renders a [0,1] value colored by band.
func score(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	switch {
	case v >= 0.8:
		return goodStyle.Render(s)
	case v >= 0.5:
		return warnStyle.Render(s)
	default:
		return badStyle.Render(s)
	}
}

// paneInput is one file given on the command line.
type paneInput struct {
	path    string
	lang    string
	content string
}

// readInputs reads the source file and its targets and resolves their
// languages. "auto" or an empty language is detected from the content.
func readInputs(paths []string, sourceLang string, targetLangs []string) ([]paneInput, error) {
	if len(paths) < orchestrator.MinPanes {
		return nil, fmt.Errorf("need a source file and at least one target file")
	}
	if len(targetLangs) > 0 && len(targetLangs) != len(paths)-1 {
		return nil, fmt.Errorf("got %d target languages for %d target files", len(targetLangs), len(paths)-1)
	}

	var det *detector.Detector
	inputs := make([]paneInput, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		in := paneInput{path: path, content: string(data)}

		switch {
		case i == 0:
			in.lang = sourceLang
		case len(targetLangs) > 0:
			in.lang = targetLangs[i-1]
		}
		if in.lang == "" || in.lang == "auto" {
			if det == nil {
				det = detector.New(loader.Config().Session.Languages...)
			}
			detected, ok := det.DetectISO(in.content)
			if !ok {
				return nil, fmt.Errorf("could not detect the language of %s, pass it explicitly", path)
			}
			in.lang = detected
			fmt.Fprintf(os.Stderr, "Detected %s language: %s\n", path, detected)
		}
		inputs[i] = in
	}
	return inputs, nil
}

// openSession creates a session from the loaded config holding one pane
// per input, the first being the source, and computes every pair.
func openSession(ctx context.Context, inputs []paneInput, opts ...orchestrator.Option) (*orchestrator.Session, []orchestrator.PaneID, error) {
	cfg := loader.Config()
	reg, codes, err := cfg.Profiles()
	if err != nil {
		return nil, nil, err
	}
	if len(codes) > 0 {
		slog.Debug("custom profiles loaded", "codes", codes)
	}

	opts = append([]orchestrator.Option{
		orchestrator.WithLogger(slog.Default()),
		orchestrator.WithProfiles(reg),
	}, opts...)
	s, err := orchestrator.New(cfg.Session, opts...)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]orchestrator.PaneID, len(inputs))
	for i, in := range inputs {
		id, err := s.AddPane(ctx, in.lang, in.content, i == 0)
		if err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("failed to add %s: %w", in.path, err)
		}
		ids[i] = id
		p, _ := s.Pane(id)
		for _, w := range p.Warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", in.path, w)
		}
	}

	if err := s.Refresh(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, ids, nil
}

// openStore opens the audit database, or returns nil when recording is
// disabled.
func openStore() (*store.Store, error) {
	if dbPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// replayCorrections re-applies stored corrections whose sentences occur in
// the pair's documents and returns how many were applied.
func replayCorrections(ctx context.Context, s *orchestrator.Session, db *store.Store, pair orchestrator.Pair) (int, error) {
	src, err := s.Pane(pair.Source)
	if err != nil {
		return 0, err
	}
	tgt, err := s.Pane(pair.Target)
	if err != nil {
		return 0, err
	}
	recs, err := db.ListCorrections(ctx, src.Language, tgt.Language, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list corrections: %w", err)
	}

	index := func(texts []string, want string) int {
		for i, t := range texts {
			if t == want {
				return i
			}
		}
		return -1
	}
	srcTexts := sentenceTexts(src)
	tgtTexts := sentenceTexts(tgt)

	applied := 0
	// Oldest first, so repeated confirmations accumulate in order.
	for k := len(recs) - 1; k >= 0; k-- {
		r := recs[k]
		i := index(srcTexts, r.SourceText)
		if i < 0 {
			continue
		}
		j := align.NoTarget
		if r.CorrectedTarget != align.NoTarget {
			if j = index(tgtTexts, r.CorrectedText); j < 0 {
				continue
			}
		}
		a, err := s.Alignment(pair)
		if err != nil && !errors.Is(err, orchestrator.ErrAlignmentTimeout) {
			return applied, err
		}
		original := align.Entry{Source: i, Target: align.NoTarget}
		for _, e := range a.Result.Entries {
			if e.Source == i {
				original = e
			}
		}
		if err := s.ApplyUserCorrection(pair, original, align.Entry{Source: i, Target: j}, r.Reason); err != nil {
			return applied, err
		}
		applied++
		if err := s.WaitIdle(ctx); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

func sentenceTexts(p orchestrator.Pane) []string {
	out := make([]string, len(p.Document.Sentences))
	for i, sent := range p.Document.Sentences {
		out[i] = norm.NFC.String(strings.TrimSpace(sent.Text))
	}
	return out
}

// snippet shortens text for table output.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return text
}
