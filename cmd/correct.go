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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/orchestrator"
)

var (
	correctSentence int
	correctTarget   int
	correctReason   string
)

var correctCmd = &cobra.Command{
	Use:   "correct SOURCE TARGET",
	Short: "Teach the aligner that a source sentence belongs with another target sentence",
	Long: `Apply a manual correction to the alignment of SOURCE and TARGET and store it
in the audit database so later runs with --learn can replay it.

Sentence indices are those printed by "panesync align". Use --to -1 when the
source sentence has no translation:
  panesync correct en.md es.md --sentence 4 --to 5 --reason "merged sentence"`,
	Args: cobra.ExactArgs(orchestrator.MinPanes),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		inputs, err := readInputs(args, sourceLang, targetLangs)
		if err != nil {
			return err
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		var opts []orchestrator.Option
		if db != nil {
			defer db.Close()
			opts = append(opts, orchestrator.WithRecorder(db))
		} else {
			fmt.Fprintln(os.Stderr, "Warning: no --db configured, the correction will not be kept")
		}

		s, ids, err := openSession(ctx, inputs, opts...)
		if err != nil {
			return err
		}
		defer s.Close()

		pair := orchestrator.Pair{Source: ids[0], Target: ids[1]}
		before, err := s.Alignment(pair)
		if err != nil {
			return err
		}
		original, ok := entryFor(before.Result, correctSentence)
		if !ok {
			return fmt.Errorf("source sentence %d out of range (0-%d)", correctSentence, len(before.Result.Entries)-1)
		}
		corrected := align.Entry{Source: correctSentence, Target: correctTarget}
		if correctTarget < 0 {
			corrected.Target = align.NoTarget
		}

		if err := s.ApplyUserCorrection(pair, original, corrected, correctReason); err != nil {
			return fmt.Errorf("failed to apply correction: %w", err)
		}
		if err := s.WaitIdle(ctx); err != nil {
			return err
		}
		after, err := s.Alignment(pair)
		if err != nil {
			return err
		}
		updated, _ := entryFor(after.Result, correctSentence)

		model, err := s.Model(pair)
		if err != nil {
			return err
		}
		w := model.Weights()

		fmt.Printf("%s sentence %d: %s -> %s\n", titleStyle.Render("Corrected"), correctSentence, targetLabel(original.Target), targetLabel(updated.Target))
		fmt.Printf("%s %s -> %s\n", labelStyle.Render("confidence"), score(original.Confidence), score(updated.Confidence))
		fmt.Printf("%s %s -> %s\n", labelStyle.Render("quality"), score(before.Quality.Overall), score(after.Quality.Overall))
		fmt.Printf("%s position %.3f, length %.3f, structure %.3f, content %.3f (revision %d)\n",
			labelStyle.Render("weights"), w.Position, w.Length, w.Structure, w.Content, model.Revision())
		return nil
	},
}

func entryFor(res align.Result, source int) (align.Entry, bool) {
	for _, e := range res.Entries {
		if e.Source == source {
			return e, true
		}
	}
	return align.Entry{}, false
}

func targetLabel(target int) string {
	if target == align.NoTarget {
		return "none"
	}
	return fmt.Sprint(target)
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().StringVarP(&sourceLang, "source-lang", "s", "auto", "Source language code")
	correctCmd.Flags().StringSliceVarP(&targetLangs, "target-lang", "t", nil, "Target language code")
	correctCmd.Flags().IntVar(&correctSentence, "sentence", 0, "Source sentence index")
	correctCmd.Flags().IntVar(&correctTarget, "to", 0, "Correct target sentence index, -1 for none")
	correctCmd.Flags().StringVar(&correctReason, "reason", "", "Why the correction was made")
	correctCmd.MarkFlagRequired("sentence")
	correctCmd.MarkFlagRequired("to")
}
