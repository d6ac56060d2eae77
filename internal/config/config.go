// Package config loads panesync settings from defaults, an optional
// panesync.toml or panesync.yaml file, a .env file and PANESYNC_*
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/panesync/internal/orchestrator"
	"github.com/valpere/panesync/internal/profile"
)

// EnvPrefix prefixes every environment override, e.g.
// PANESYNC_SESSION_ALIGN_CONFIDENCE_THRESHOLD.
const EnvPrefix = "PANESYNC"

// Name is the config file base name searched for when no file is given.
const Name = "panesync"

// Config is the complete application configuration.
type Config struct {
	LogLevel   string              `mapstructure:"log_level"`
	DB         string              `mapstructure:"db"`
	ProfileDir string              `mapstructure:"profile_dir"`
	Session    orchestrator.Config `mapstructure:"session"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		DB:       "./data/panesync.db",
		Session:  orchestrator.DefaultConfig(),
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	return errors.Join(errs...)
}

// Option configures Load.
type Option func(*options)

type options struct {
	file     string
	envFile  string
	paths    []string
	logger   *slog.Logger
	required bool
}

// WithFile reads the given config file instead of searching for one. The
// file must exist.
func WithFile(path string) Option {
	return func(o *options) {
		if path != "" {
			o.file = path
			o.required = true
		}
	}
}

// WithEnvFile loads variables from path. The default is ".env" in the
// working directory, ignored when missing.
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

// WithSearchPaths replaces the directories searched for panesync.toml or
// panesync.yaml.
func WithSearchPaths(dirs ...string) Option {
	return func(o *options) { o.paths = dirs }
}

// WithLogger sets the logger used for reload messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Loader holds the loaded configuration and reloads it when the file
// changes.
type Loader struct {
	v      *viper.Viper
	logger *slog.Logger

	mu      sync.Mutex
	current Config
}

// Load reads the configuration.
func Load(opts ...Option) (*Loader, error) {
	o := options{envFile: ".env", logger: slog.Default()}
	if dir, err := os.UserConfigDir(); err == nil {
		o.paths = []string{".", filepath.Join(dir, Name)}
	} else {
		o.paths = []string{"."}
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", o.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.file != "" {
		v.SetConfigFile(o.file)
	} else {
		v.SetConfigName(Name)
		for _, p := range o.paths {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.required || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	l := &Loader{v: v, logger: o.logger}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	if f := v.ConfigFileUsed(); f != "" {
		o.logger.Debug("config loaded", "file", f)
	}
	return l, nil
}

func (l *Loader) decode() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch reloads the config file whenever it is written and calls fn with
// the previous and the new configuration. An invalid edit is logged and
// ignored. Watch is a no-op without a config file.
func (l *Loader) Watch(fn func(old, cur Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		if err != nil {
			l.mu.Unlock()
			l.logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		old := l.current
		l.current = cfg
		l.mu.Unlock()

		l.logger.Info("config reloaded", "file", e.Name)
		if fn != nil {
			fn(old, cfg)
		}
	})
	l.v.WatchConfig()
}

// Tuning returns the mid-session adjustments that turn old into cur. The
// boolean is false when no tunable field changed.
func Tuning(old, cur orchestrator.Config) (orchestrator.Tuning, bool) {
	var t orchestrator.Tuning
	changed := false
	if old.Cache.MaxEntries != cur.Cache.MaxEntries {
		t.CacheMaxEntries = &cur.Cache.MaxEntries
		changed = true
	}
	if old.Cache.MaxMemory != cur.Cache.MaxMemory {
		t.CacheMaxMemory = &cur.Cache.MaxMemory
		changed = true
	}
	if old.Align.ConfidenceThreshold != cur.Align.ConfidenceThreshold {
		t.ConfidenceThreshold = &cur.Align.ConfidenceThreshold
		changed = true
	}
	if old.Align.AutoValidationThreshold != cur.Align.AutoValidationThreshold {
		t.AutoValidationThreshold = &cur.Align.AutoValidationThreshold
		changed = true
	}
	if old.Align.MaxLengthRatioDeviation != cur.Align.MaxLengthRatioDeviation {
		t.MaxLengthRatioDeviation = &cur.Align.MaxLengthRatioDeviation
		changed = true
	}
	return t, changed
}

// Profiles returns a registry of the built-in profiles plus every custom
// profile in c.ProfileDir, and the codes loaded from it.
func (c Config) Profiles() (*profile.Registry, []string, error) {
	reg := profile.NewRegistry()
	if c.ProfileDir == "" {
		return reg, nil, nil
	}
	codes, err := reg.LoadDir(c.ProfileDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load profiles from %s: %w", c.ProfileDir, err)
	}
	return reg, codes, nil
}

// ParseLevel parses a slog level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger returns a text logger writing to w at the given level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// setDefaults registers every key, which also makes each one reachable
// through its environment variable.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("db", d.DB)
	v.SetDefault("profile_dir", d.ProfileDir)

	s := d.Session
	v.SetDefault("session.project", s.Project)
	v.SetDefault("session.max_panes", s.MaxPanes)
	v.SetDefault("session.languages", s.Languages)
	v.SetDefault("session.debounce", s.Debounce)
	v.SetDefault("session.compute_timeout", s.ComputeTimeout)
	v.SetDefault("session.retry_delay", s.RetryDelay)
	v.SetDefault("session.max_retries", s.MaxRetries)
	v.SetDefault("session.slow_alignment", s.SlowAlignment)
	v.SetDefault("session.event_queue_size", s.EventQueueSize)
	v.SetDefault("session.max_content_bytes", s.MaxContentBytes)
	v.SetDefault("session.detect_language", s.DetectLanguage)
	v.SetDefault("session.learning_rate", s.LearningRate)

	v.SetDefault("session.weights.position", s.Weights.Position)
	v.SetDefault("session.weights.length", s.Weights.Length)
	v.SetDefault("session.weights.structure", s.Weights.Structure)
	v.SetDefault("session.weights.content", s.Weights.Content)

	a := s.Align
	v.SetDefault("session.align.confidence_threshold", a.ConfidenceThreshold)
	v.SetDefault("session.align.max_length_ratio_deviation", a.MaxLengthRatioDeviation)
	v.SetDefault("session.align.auto_validation_threshold", a.AutoValidationThreshold)
	v.SetDefault("session.align.divergence_threshold", a.DivergenceThreshold)
	v.SetDefault("session.align.gap_penalty", a.GapPenalty)
	v.SetDefault("session.align.tie_epsilon", a.TieEpsilon)
	v.SetDefault("session.align.anchor_threshold", a.AnchorThreshold)

	q := s.Quality
	v.SetDefault("session.quality.weights.position", q.Weights.Position)
	v.SetDefault("session.quality.weights.length", q.Weights.Length)
	v.SetDefault("session.quality.weights.structure", q.Weights.Structure)
	v.SetDefault("session.quality.confidence_threshold", q.ConfidenceThreshold)
	v.SetDefault("session.quality.length_deviation", q.LengthDeviation)

	c := s.Cache
	v.SetDefault("session.cache.max_entries", c.MaxEntries)
	v.SetDefault("session.cache.max_memory", c.MaxMemory)
	v.SetDefault("session.cache.ttl", c.TTL)
	v.SetDefault("session.cache.cleanup_interval", c.CleanupInterval)
	v.SetDefault("session.cache.shards", c.Shards)
	v.SetDefault("session.cache.compress_threshold", c.CompressThreshold)
	v.SetDefault("session.cache.alert_percent", c.AlertPercent)
}
