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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/panesync/internal/config"
)

var version = "0.1.0"

var (
	cfgFile  string
	envFile  string
	logLevel string
	dbPath   string

	loader *config.Loader
)

var rootCmd = &cobra.Command{
	Use:   "panesync",
	Short: "Multi-pane sentence alignment",
	Long: `A CLI application that aligns a source document with up to three translations
sentence by sentence, scores the alignment quality and maps cursor positions
between the panes.

Settings come from panesync.toml or panesync.yaml, a .env file and PANESYNC_*
environment variables.

Use "panesync align --help" for alignment options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := config.Load(config.WithFile(cfgFile), config.WithEnvFile(envFile))
		if err != nil {
			return err
		}
		loader = l

		cfg := l.Config()
		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		logger, err := config.NewLogger(os.Stderr, level)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		if !cmd.Flags().Changed("db") {
			dbPath = cfg.DB
		}
		if f := l.File(); f != "" {
			logger.Debug("using config file", "file", f)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: panesync.toml or panesync.yaml in . or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Audit database path; empty disables recording (default from config)")
}
