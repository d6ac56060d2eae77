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
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/valpere/panesync/internal/store"
)

var (
	historyRuns   bool
	historyLimit  int
	historySource string
	historyTarget string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the audit database",
	Long:  `List, summarize and clear the corrections and alignment runs recorded in the SQLite audit database.`,
}

func mustStore() (*store.Store, error) {
	db, err := openStore()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("no audit database configured, pass --db")
	}
	return db, nil
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded corrections, or alignment runs with --runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := mustStore()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := context.Background()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if historyRuns {
			runs, err := db.ListRuns(ctx, historySource, historyTarget, historyLimit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("No alignment runs recorded.")
				return nil
			}
			fmt.Fprintln(w, "WHEN\tPAIR\tMODE\tALIGNED\tVALIDATED\tQUALITY\tPROBLEMS\tTOOK\tFILES")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s->%s\t%s\t%d/%d\t%d\t%.2f\t%d\t%s\t%s\n",
					humanize.Time(r.CreatedAt), r.SourceLang, r.TargetLang, r.Mode,
					r.Aligned, r.SourceSentences, r.Validated, r.OverallQuality, r.Problems,
					r.Duration, snippet(r.SourceFile+" "+r.TargetFile, 50))
			}
			return w.Flush()
		}

		recs, err := db.ListCorrections(ctx, historySource, historyTarget, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list corrections: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No corrections recorded.")
			return nil
		}
		fmt.Fprintln(w, "WHEN\tPAIR\tSRC\tFROM\tTO\tBASE\tREASON\tTEXT")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s->%s\t%d\t%s\t%s\t%.2f\t%s\t%s\n",
				humanize.Time(r.Timestamp), r.SourceLang, r.TargetLang, r.SourceIndex,
				targetLabel(r.OriginalTarget), targetLabel(r.CorrectedTarget),
				r.BaseConfidence, snippet(r.Reason, 24), snippet(r.SourceText, 40))
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := mustStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Corrections:        %s\n", humanize.Comma(int64(stats.Corrections)))
		fmt.Printf("Alignment runs:     %s\n", humanize.Comma(int64(stats.Runs)))
		fmt.Printf("Language pairs:     %d\n", stats.LanguagePairs)
		fmt.Printf("Average quality:    %.2f\n", stats.AverageQuality)
		fmt.Printf("Average confidence: %.2f\n", stats.AverageConfidence)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all corrections and runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := mustStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Clear(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Cleared %d records.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().BoolVar(&historyRuns, "runs", false, "List alignment runs instead of corrections")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum rows, 0 for all")
	historyListCmd.Flags().StringVarP(&historySource, "source-lang", "s", "", "Filter by source language")
	historyListCmd.Flags().StringVarP(&historyTarget, "target-lang", "t", "", "Filter by target language")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyClearCmd)
}
