package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/valpere/panesync/internal/align"
	"github.com/valpere/panesync/internal/cache"
	"github.com/valpere/panesync/internal/learning"
	"github.com/valpere/panesync/internal/quality"
)

const (
	MinPanes = 2
	MaxPanes = 4
)

// Config is the session configuration.
type Config struct {
	// Project scopes the learning models a session reads and trains.
	Project string `mapstructure:"project"`
	// MaxPanes is the pane limit, between MinPanes and MaxPanes.
	MaxPanes int `mapstructure:"max_panes"`
	// Languages lists the languages the session expects. A pane in any
	// other language gets an ErrUnsupportedLanguage warning. Empty allows
	// every registered profile.
	Languages []string `mapstructure:"languages"`

	// Debounce collapses content updates arriving within the window into
	// one recomputation per pair.
	Debounce time.Duration `mapstructure:"debounce"`
	// ComputeTimeout bounds one alignment computation.
	ComputeTimeout time.Duration `mapstructure:"compute_timeout"`
	// RetryDelay and MaxRetries govern recomputation after a timeout.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
	// SlowAlignment emits a PerformanceAlert for computations taking
	// longer. Zero disables the alert.
	SlowAlignment time.Duration `mapstructure:"slow_alignment"`

	EventQueueSize  int  `mapstructure:"event_queue_size"`
	MaxContentBytes int  `mapstructure:"max_content_bytes"`
	DetectLanguage  bool `mapstructure:"detect_language"`

	// Weights and LearningRate seed learning models created by the session.
	Weights      learning.Weights `mapstructure:"weights"`
	LearningRate float64          `mapstructure:"learning_rate"`

	Align   align.Config   `mapstructure:"align"`
	Quality quality.Config `mapstructure:"quality"`
	Cache   cache.Config   `mapstructure:"cache"`
}

// DefaultConfig returns the stock session configuration.
func DefaultConfig() Config {
	return Config{
		Project:         "default",
		MaxPanes:        MaxPanes,
		Debounce:        100 * time.Millisecond,
		ComputeTimeout:  5 * time.Second,
		RetryDelay:      250 * time.Millisecond,
		MaxRetries:      1,
		SlowAlignment:   500 * time.Millisecond,
		EventQueueSize:  256,
		MaxContentBytes: 8 << 20,
		DetectLanguage:  true,
		Weights:         learning.DefaultWeights,
		LearningRate:    learning.DefaultLearningRate,
		Align:           align.DefaultConfig(),
		Quality:         quality.DefaultConfig(),
		Cache:           cache.DefaultConfig(),
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.MaxPanes < MinPanes || c.MaxPanes > MaxPanes {
		errs = append(errs, fmt.Errorf("max_panes must be in [%d,%d], got %d", MinPanes, MaxPanes, c.MaxPanes))
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce must not be negative, got %s", c.Debounce))
	}
	if c.ComputeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("compute_timeout must be positive, got %s", c.ComputeTimeout))
	}
	if c.RetryDelay < 0 || c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry_delay and max_retries must not be negative"))
	}
	if c.EventQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("event_queue_size must be positive, got %d", c.EventQueueSize))
	}
	if c.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %v", c.LearningRate))
	}
	if err := c.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Align.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("align: %w", err))
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	return errors.Join(errs...)
}

// Tuning is a mid-session adjustment. Nil fields are left unchanged.
type Tuning struct {
	CacheMaxEntries         *int
	CacheMaxMemory          *int64
	ConfidenceThreshold     *float64
	AutoValidationThreshold *float64
	MaxLengthRatioDeviation *float64
}
