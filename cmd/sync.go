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

	"github.com/spf13/cobra"

	"github.com/valpere/panesync/internal"
	"github.com/valpere/panesync/internal/orchestrator"
)

var (
	syncPane   int
	syncOffset int
	syncEnd    int
)

var syncCmd = &cobra.Command{
	Use:   "sync SOURCE TARGET...",
	Short: "Map a cursor or selection from one file to the others",
	Long: `Align the files, then map a byte offset in one of them to the
corresponding offsets in every other file.

--pane is the position of the file on the command line, 0 being the source.
With --end the range [offset, end) is mapped as a selection:
  panesync sync en.md es.md --pane 1 --offset 120
  panesync sync en.md es.md fr.md --pane 0 --offset 40 --end 95`,
	Args: cobra.RangeArgs(orchestrator.MinPanes, orchestrator.MaxPanes),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if syncPane < 0 || syncPane >= len(args) {
			return fmt.Errorf("--pane must be between 0 and %d", len(args)-1)
		}

		inputs, err := readInputs(args, sourceLang, targetLangs)
		if err != nil {
			return err
		}
		s, ids, err := openSession(ctx, inputs)
		if err != nil {
			return err
		}
		defer s.Close()

		from := ids[syncPane]
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer tw.Flush()

		if cmd.Flags().Changed("end") {
			sels, err := s.SynchronizeSelection(from, internal.Span{Start: syncOffset, End: syncEnd})
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "FILE\tSTART\tEND\tTEXT")
			for i, id := range ids {
				sel, ok := sels[id]
				if !ok {
					continue
				}
				p, _ := s.Pane(id)
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", inputs[i].path, sel.Start, sel.End, snippet(byteSlice(p.Content, sel.Start, sel.End), 60))
			}
			return nil
		}

		offsets, err := s.SynchronizeCursor(from, syncOffset)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "FILE\tOFFSET\tSENTENCE")
		for i, id := range ids {
			off, ok := offsets[id]
			if !ok {
				continue
			}
			p, _ := s.Pane(id)
			sentence := ""
			if k, ok := p.Document.SentenceAt(off); ok {
				sentence = p.Document.Sentences[k].Text
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", inputs[i].path, off, snippet(sentence, 60))
		}
		return nil
	},
}

// byteSlice returns s[start:end] clamped to s. Offsets are byte offsets
// snapped to rune starts by the session.
func byteSlice(s string, start, end int) string {
	start = max(0, min(start, len(s)))
	end = max(start, min(end, len(s)))
	return s[start:end]
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&sourceLang, "source-lang", "s", "auto", "Source language code")
	syncCmd.Flags().StringSliceVarP(&targetLangs, "target-lang", "t", nil, "Target language codes, one per target file")
	syncCmd.Flags().IntVarP(&syncPane, "pane", "p", 0, "Index of the file the offset belongs to (0 = source)")
	syncCmd.Flags().IntVarP(&syncOffset, "offset", "o", 0, "Byte offset to map")
	syncCmd.Flags().IntVarP(&syncEnd, "end", "e", 0, "End of a selection starting at --offset")
}
