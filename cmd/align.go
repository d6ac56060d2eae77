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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/config"
	"github.com/valpere/panesync/internal/event"
	"github.com/valpere/panesync/internal/orchestrator"
	"github.com/valpere/panesync/internal/store"
)

var (
	sourceLang  string
	targetLangs []string

	jsonOutput  bool
	showMetrics bool
	watchFiles  bool
	learn       bool
)

var alignCmd = &cobra.Command{
	Use:   "align SOURCE TARGET...",
	Short: "Align a source document with its translations",
	Long: `Align a source document with one to three translations sentence by sentence
and report the alignment, its quality score and the problems found.

Languages are detected when not given:
  panesync align en.md es.md fr.md -s en -t es,fr

With --db each aligned pair is recorded, and --learn first replays the
corrections stored for the language pair.

--watch keeps running and realigns whenever a file changes.`,
	Args: cobra.RangeArgs(orchestrator.MinPanes, orchestrator.MaxPanes),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		inputs, err := readInputs(args, sourceLang, targetLangs)
		if err != nil {
			return err
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		s, ids, err := openSession(ctx, inputs)
		if err != nil {
			return err
		}
		defer s.Close()

		if learn && db != nil {
			for _, pair := range s.Pairs() {
				n, err := replayCorrections(ctx, s, db, pair)
				if err != nil {
					return fmt.Errorf("failed to replay corrections: %w", err)
				}
				if n > 0 {
					fmt.Fprintf(os.Stderr, "Replayed %d stored corrections for %s\n", n, pairName(inputs, ids, pair))
				}
			}
		}

		if err := report(os.Stdout, s, inputs, ids); err != nil {
			return err
		}
		if db != nil {
			if err := recordRuns(ctx, db, s, inputs, ids); err != nil {
				return err
			}
		}
		if showMetrics && !jsonOutput {
			printMetrics(os.Stdout, s.Metrics())
		}
		if watchFiles {
			return watch(ctx, s, inputs, ids)
		}
		return nil
	},
}

type pairReport struct {
	Source    string                  `json:"source"`
	Target    string                  `json:"target"`
	Alignment orchestrator.Alignment  `json:"alignment"`
	Status    orchestrator.PairStatus `json:"status"`
	Error     string                  `json:"error,omitempty"`
}

type sessionReport struct {
	Pairs   []pairReport          `json:"pairs"`
	Overall float64               `json:"overall"`
	Metrics *orchestrator.Metrics `json:"metrics,omitempty"`
}

func report(w io.Writer, s *orchestrator.Session, inputs []paneInput, ids []orchestrator.PaneID) error {
	var rep sessionReport
	for _, pair := range s.Pairs() {
		a, err := s.Alignment(pair)
		st, _ := s.Status(pair)
		pr := pairReport{
			Source:    inputs[indexOf(ids, pair.Source)].path,
			Target:    inputs[indexOf(ids, pair.Target)].path,
			Alignment: a,
			Status:    st,
		}
		if err != nil {
			pr.Error = err.Error()
		}
		rep.Pairs = append(rep.Pairs, pr)
	}
	rep.Overall = s.Snapshot().Overall.Overall

	if jsonOutput {
		if showMetrics {
			m := s.Metrics()
			rep.Metrics = &m
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	for k, pr := range rep.Pairs {
		pair := s.Pairs()[k]
		src, _ := s.Pane(pair.Source)
		tgt, _ := s.Pane(pair.Target)
		printPair(w, pr, src, tgt)
	}
	if len(rep.Pairs) > 1 {
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Overall quality:"), score(rep.Overall))
	}
	return nil
}

func printPair(w io.Writer, pr pairReport, src, tgt orchestrator.Pane) {
	res := pr.Alignment.Result
	q := pr.Alignment.Quality

	fmt.Fprintf(w, "%s %s (%s) -> %s (%s)\n", titleStyle.Render("Pair"), pr.Source, src.Language, pr.Target, tgt.Language)
	if pr.Error != "" {
		fmt.Fprintf(w, "%s %s\n", badStyle.Render("Stale:"), pr.Error)
	}
	fmt.Fprintf(w, "%s %s  %s %d/%d aligned, %d validated\n",
		labelStyle.Render("mode"), res.Mode,
		labelStyle.Render("sentences"), res.Stats.Aligned, res.Stats.Total, res.Stats.Validated)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SRC\tTGT\tCONF\tMETHOD\tSOURCE\tTARGET")
	for _, e := range res.Entries {
		tgtIdx, tgtText := "-", ""
		if e.Matched() && e.Target < len(tgt.Document.Sentences) {
			tgtIdx = fmt.Sprint(e.Target)
			tgtText = tgt.Document.Sentences[e.Target].Text
		}
		conf := score(e.Confidence)
		if e.NeedsReview {
			conf += reviewStyle.Render("?")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Source, tgtIdx, conf, e.Method,
			snippet(src.Document.Sentences[e.Source].Text, 40), snippet(tgtText, 40))
	}
	for _, j := range res.UnmatchedTargets {
		fmt.Fprintf(tw, "-\t%d\t\t\t\t%s\n", j, snippet(tgt.Document.Sentences[j].Text, 40))
	}
	tw.Flush()

	fmt.Fprintf(w, "%s %s  (position %.2f, length %.2f, structure %.2f, validated %.0f%%)\n",
		labelStyle.Render("quality"), score(q.Overall),
		q.PositionConsistency, q.LengthRatioConsistency, q.StructuralCoherence, q.ValidationRate*100)
	for _, p := range q.Problems {
		fix := ""
		if p.AutoFixable {
			fix = goodStyle.Render(" [auto-fixable]")
		}
		fmt.Fprintf(w, "  %s %s sentence %d (severity %.2f)%s: %s\n",
			warnStyle.Render(p.Issue.String()), p.Side, p.SentenceIndex, p.Severity, fix, p.Suggestion)
	}
	fmt.Fprintln(w)
}

func printMetrics(w io.Writer, m orchestrator.Metrics) {
	fmt.Fprintln(w, titleStyle.Render("Metrics"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Alignments:\t%d (%d computed, %.0f%% cached)\n", m.Alignments, m.Computations, m.CacheHitRate*100)
	fmt.Fprintf(tw, "Average alignment time:\t%s\n", m.AverageAlignmentTime)
	fmt.Fprintf(tw, "Timeouts:\t%d\n", m.Timeouts)
	fmt.Fprintf(tw, "Cache entries:\t%s\n", humanize.Comma(int64(m.Cache.Entries)))
	fmt.Fprintf(tw, "Cache memory:\t%s (%.1f%%)\n", humanize.IBytes(uint64(m.Cache.Bytes)), m.Cache.MemoryPercent*100)
	fmt.Fprintf(tw, "Cache evictions:\t%d\n", m.Cache.Evictions)
	fmt.Fprintf(tw, "Events:\t%d published, %d dropped\n", m.Events.Published, m.Events.Dropped)
	tw.Flush()
}

func recordRuns(ctx context.Context, db *store.Store, s *orchestrator.Session, inputs []paneInput, ids []orchestrator.PaneID) error {
	project := loader.Config().Session.Project
	for _, pair := range s.Pairs() {
		a, err := s.Alignment(pair)
		if err != nil {
			continue
		}
		st := a.Result.Stats
		run := store.Run{
			ID:                uuid.NewString(),
			Project:           project,
			SourceLang:        st.SourceLang,
			TargetLang:        st.TargetLang,
			SourceFile:        inputs[indexOf(ids, pair.Source)].path,
			TargetFile:        inputs[indexOf(ids, pair.Target)].path,
			Mode:              a.Result.Mode.String(),
			SourceSentences:   st.Total,
			TargetSentences:   len(a.Result.UnmatchedTargets) + matched(a.Result.Entries),
			Aligned:           st.Aligned,
			Validated:         st.Validated,
			AverageConfidence: st.AverageConfidence,
			OverallQuality:    a.Quality.Overall,
			Problems:          len(a.Quality.Problems),
			Duration:          st.Duration,
		}
		if err := db.SaveRun(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// matched counts distinct target sentences used by entries.
func matched(entries []align.Entry) int {
	seen := make(map[int]bool)
	for _, e := range entries {
		if e.Matched() {
			seen[e.Target] = true
		}
	}
	return len(seen)
}

// watch realigns on file changes and prints every quality change until
// interrupted. Config file edits are applied to the session as tuning.
func watch(ctx context.Context, s *orchestrator.Session, inputs []paneInput, ids []orchestrator.PaneID) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	byPath := make(map[string]int, len(inputs))
	for i, in := range inputs {
		abs, err := filepath.Abs(in.path)
		if err != nil {
			return err
		}
		byPath[abs] = i
		// Editors often replace files, so watch the directory.
		if err := w.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", in.path, err)
		}
	}

	loader.Watch(func(old, cur config.Config) {
		if t, ok := config.Tuning(old.Session, cur.Session); ok {
			if err := s.Tune(t); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: config change rejected: %v\n", err)
			}
		}
	})

	fmt.Fprintln(os.Stderr, "Watching for changes, press Ctrl+C to stop")
	events := s.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			i, tracked := byPath[filepath.Clean(ev.Name)]
			if !tracked {
				continue
			}
			data, err := os.ReadFile(inputs[i].path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				continue
			}
			if _, err := s.UpdatePaneContent(ctx, ids[i], string(data), nil); err != nil {
				if errors.Is(err, orchestrator.ErrMalformedContent) {
					fmt.Fprintf(os.Stderr, "Warning: ignoring %s: %v\n", inputs[i].path, err)
					continue
				}
				return err
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Warning: watcher: %v\n", err)

		case e, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(s, inputs, ids, e)
		}
	}
}

func printEvent(s *orchestrator.Session, inputs []paneInput, ids []orchestrator.PaneID, e event.Event) {
	switch e.Kind {
	case event.QualityChange:
		for _, pair := range s.Pairs() {
			if pair.String() != e.Pair {
				continue
			}
			status := ""
			if e.Stale {
				status = badStyle.Render(" (stale)")
			}
			overall := 0.0
			if e.Quality != nil {
				overall = e.Quality.Overall
			}
			fmt.Printf("%s %s quality %s%s\n", e.At.Format("15:04:05"), pairName(inputs, ids, pair), score(overall), status)
		}
	case event.PerformanceAlert:
		fmt.Fprintf(os.Stderr, "%s %s\n", warnStyle.Render("alert:"), e.Message)
	}
}

func pairName(inputs []paneInput, ids []orchestrator.PaneID, pair orchestrator.Pair) string {
	return inputs[indexOf(ids, pair.Source)].path + " -> " + inputs[indexOf(ids, pair.Target)].path
}

func indexOf(ids []orchestrator.PaneID, id orchestrator.PaneID) int {
	for i, other := range ids {
		if other == id {
			return i
		}
	}
	return 0
}

func init() {
	rootCmd.AddCommand(alignCmd)

	alignCmd.Flags().StringVarP(&sourceLang, "source-lang", "s", "auto", "Source language code")
	alignCmd.Flags().StringSliceVarP(&targetLangs, "target-lang", "t", nil, "Target language codes, one per target file (comma-separated; detected if empty)")
	alignCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	alignCmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print session performance metrics")
	alignCmd.Flags().BoolVarP(&watchFiles, "watch", "w", false, "Keep running and realign when a file changes")
	alignCmd.Flags().BoolVar(&learn, "learn", false, "Replay corrections stored in --db before reporting")
}
