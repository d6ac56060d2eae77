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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/panesync/internal/detector"
	"github.com/valpere/panesync/internal/document"
)

var detectCmd = &cobra.Command{
	Use:   "detect FILE...",
	Short: "Detect the language of each file and count its sentences",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loader.Config()
		reg, _, err := cfg.Profiles()
		if err != nil {
			return err
		}
		det := detector.New(cfg.Session.Languages...)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tLANGUAGE\tPROFILE\tSENTENCES\tAVG CHARS")
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			lang, ok := det.DetectISO(string(data))
			if !ok {
				fmt.Fprintf(w, "%s\t?\t-\t-\t-\n", path)
				continue
			}
			p, err := reg.Lookup(lang)
			if err != nil {
				fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", path, lang)
				continue
			}
			doc := document.Parse(path, string(data), p)
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.0f\n", path, lang, p.Name, doc.Len(), doc.AverageChars())
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
