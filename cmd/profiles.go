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
)

var profileDir string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the available language profiles",
	Long: `List the built-in language profiles and any custom profiles found in the
profile directory (profile_dir in the config, or --dir).

A custom profile is a TOML or YAML file that may extend a built-in one:
  code = "uk"
  name = "Ukrainian"
  extends = "en"
  abbreviations = ["т.д.", "т.п."]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loader.Config()
		if profileDir != "" {
			cfg.ProfileDir = profileDir
		}
		reg, custom, err := cfg.Profiles()
		if err != nil {
			return err
		}
		isCustom := make(map[string]bool, len(custom))
		for _, c := range custom {
			isCustom[c] = true
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tNAME\tKIND\tAVG LEN\tWORDS\tPATTERNS\tABBREV\tSOURCE")
		for _, code := range reg.Codes() {
			p, err := reg.Lookup(code)
			if err != nil {
				return err
			}
			origin := "built-in"
			if isCustom[code] {
				origin = cfg.ProfileDir
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%.0f\t%d\t%d\t%s\n",
				p.Code, p.Name, p.Kind, p.AverageSentenceLength, p.TypicalWordCount,
				len(p.Patterns), len(p.Abbreviations), origin)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)

	profilesCmd.Flags().StringVar(&profileDir, "dir", "", "Directory of custom profiles (default from config)")
}
