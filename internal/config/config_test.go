package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/panesync/internal/orchestrator"
)

// isolate makes sure no stray config or environment leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"PANESYNC_DB", "PANESYNC_LOG_LEVEL", "PANESYNC_SESSION_MAX_PANES"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	l, err := Load(WithSearchPaths(dir), WithEnvFile(""))
	require.NoError(t, err)
	assert.Empty(t, l.File())

	cfg, def := l.Config(), Default()
	assert.Equal(t, def.LogLevel, cfg.LogLevel)
	assert.Equal(t, def.DB, cfg.DB)
	assert.Equal(t, def.Session.Align, cfg.Session.Align)
	assert.Equal(t, def.Session.Quality, cfg.Session.Quality)
	assert.Equal(t, def.Session.Cache, cfg.Session.Cache)
	assert.Equal(t, def.Session.Weights, cfg.Session.Weights)
	assert.Equal(t, def.Session.Debounce, cfg.Session.Debounce)
	assert.Equal(t, def.Session.MaxPanes, cfg.Session.MaxPanes)
	assert.True(t, cfg.Session.DetectLanguage)
}

func TestLoad_TOML(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, "panesync.toml"), `
log_level = "debug"

[session]
debounce = "250ms"
languages = ["en", "es"]
max_panes = 3

[session.align]
confidence_threshold = 0.8

[session.cache]
max_entries = 500
ttl = "10m"
`)

	l, err := Load(WithSearchPaths(dir), WithEnvFile(""))
	require.NoError(t, err)
	cfg := l.Config()

	assert.Equal(t, filepath.Join(dir, "panesync.toml"), l.File())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.Debounce)
	assert.Equal(t, []string{"en", "es"}, cfg.Session.Languages)
	assert.Equal(t, 3, cfg.Session.MaxPanes)
	assert.Equal(t, 0.8, cfg.Session.Align.ConfidenceThreshold)
	assert.Equal(t, 500, cfg.Session.Cache.MaxEntries)
	assert.Equal(t, 10*time.Minute, cfg.Session.Cache.TTL)

	// Untouched keys keep their defaults.
	def := orchestrator.DefaultConfig()
	assert.Equal(t, def.Align.AutoValidationThreshold, cfg.Session.Align.AutoValidationThreshold)
	assert.Equal(t, def.Weights, cfg.Session.Weights)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	write(t, path, `
db: /tmp/panesync-test.db
session:
  project: docs
  detect_language: false
  weights:
    position: 0.25
    length: 0.25
    structure: 0.25
    content: 0.25
`)

	l, err := Load(WithFile(path), WithEnvFile(""))
	require.NoError(t, err)
	cfg := l.Config()
	assert.Equal(t, "/tmp/panesync-test.db", cfg.DB)
	assert.Equal(t, "docs", cfg.Session.Project)
	assert.False(t, cfg.Session.DetectLanguage)
	assert.Equal(t, 0.25, cfg.Session.Weights.Content)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(WithFile(filepath.Join(dir, "nope.toml")), WithEnvFile(""))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, "panesync.toml"), "[session]\nmax_panes = 3\n")
	t.Setenv("PANESYNC_SESSION_MAX_PANES", "2")
	t.Setenv("PANESYNC_SESSION_ALIGN_CONFIDENCE_THRESHOLD", "0.65")

	l, err := Load(WithSearchPaths(dir), WithEnvFile(""))
	require.NoError(t, err)
	assert.Equal(t, 2, l.Config().Session.MaxPanes)
	assert.Equal(t, 0.65, l.Config().Session.Align.ConfidenceThreshold)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, ".env")
	write(t, envFile, "PANESYNC_DB=/tmp/from-dotenv.db\n")
	t.Setenv("PANESYNC_LOG_LEVEL", "warn")
	write(t, filepath.Join(dir, ".env2"), "PANESYNC_LOG_LEVEL=debug\n")

	l, err := Load(WithSearchPaths(dir), WithEnvFile(envFile))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", l.Config().DB)

	// Variables already set in the environment win over .env entries.
	l, err = Load(WithSearchPaths(dir), WithEnvFile(filepath.Join(dir, ".env2")))
	require.NoError(t, err)
	assert.Equal(t, "warn", l.Config().LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, "panesync.toml"), "log_level = \"loud\"\n[session]\nmax_panes = 9\n")

	_, err := Load(WithSearchPaths(dir), WithEnvFile(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_panes")
	assert.Contains(t, err.Error(), "log_level")
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "panesync.toml")
	write(t, path, "[session.align]\nconfidence_threshold = 0.7\n")

	l, err := Load(WithSearchPaths(dir), WithEnvFile(""))
	require.NoError(t, err)

	changes := make(chan [2]Config, 4)
	l.Watch(func(old, cur Config) { changes <- [2]Config{old, cur} })

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	write(t, path, "[session.align]\nconfidence_threshold = 0.9\n")

	// A truncating write can surface as more than one event.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c[1].Session.Align.ConfidenceThreshold != 0.9 {
				continue
			}
			assert.Equal(t, 0.9, l.Config().Session.Align.ConfidenceThreshold)
			return
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}

func TestTuning(t *testing.T) {
	old := orchestrator.DefaultConfig()

	_, changed := Tuning(old, old)
	assert.False(t, changed)

	cur := old
	cur.Align.ConfidenceThreshold = 0.8
	cur.Cache.MaxEntries = 42
	cur.Debounce = time.Second

	tn, changed := Tuning(old, cur)
	require.True(t, changed)
	require.NotNil(t, tn.ConfidenceThreshold)
	assert.Equal(t, 0.8, *tn.ConfidenceThreshold)
	require.NotNil(t, tn.CacheMaxEntries)
	assert.Equal(t, 42, *tn.CacheMaxEntries)
	assert.Nil(t, tn.CacheMaxMemory)
	assert.Nil(t, tn.AutoValidationThreshold)
}

func TestProfiles(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "uk.toml"), `
code = "uk"
name = "Ukrainian"
extends = "en"
abbreviations = ["т.д.", "т.п."]
`)

	cfg := Default()
	reg, codes, err := cfg.Profiles()
	require.NoError(t, err)
	assert.Empty(t, codes)
	assert.False(t, reg.Has("uk"))

	cfg.ProfileDir = dir
	reg, codes, err = cfg.Profiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"uk"}, codes)
	assert.True(t, reg.Has("uk"))

	cfg.ProfileDir = filepath.Join(dir, "missing")
	_, _, err = cfg.Profiles()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "warn")
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = NewLogger(&buf, "verbose")
	assert.Error(t, err)

	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}
