// Package cache memoizes alignment results keyed by content fingerprint.
//
// Keys are spread over independently locked shards, each an ARC instance
// with its share of the entry and memory budgets. Values are stored
// JSON-encoded with a checksum and gzip-compressed above a size threshold.
// Concurrent misses for one key share a single computation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/valpere/panesync/internal/profile"
)

// Config is the cache budget.
type Config struct {
	MaxEntries        int           `mapstructure:"max_entries"`
	MaxMemory         int64         `mapstructure:"max_memory"`
	TTL               time.Duration `mapstructure:"ttl"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	Shards            int           `mapstructure:"shards"`
	CompressThreshold int           `mapstructure:"compress_threshold"`
	// AlertPercent is the memory use, as a fraction of MaxMemory, above
	// which maintenance emits an alert.
	AlertPercent float64 `mapstructure:"alert_percent"`
}

// DefaultConfig returns the stock budget.
func DefaultConfig() Config {
	return Config{
		MaxEntries:        10000,
		MaxMemory:         256 << 20,
		TTL:               time.Hour,
		CleanupInterval:   5 * time.Minute,
		Shards:            16,
		CompressThreshold: 4 << 10,
		AlertPercent:      0.8,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("max_entries must be positive, got %d", c.MaxEntries))
	}
	if c.MaxMemory <= 0 {
		errs = append(errs, fmt.Errorf("max_memory must be positive, got %d", c.MaxMemory))
	}
	if c.TTL < 0 {
		errs = append(errs, fmt.Errorf("ttl must not be negative, got %s", c.TTL))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("cleanup_interval must be positive, got %s", c.CleanupInterval))
	}
	if c.Shards <= 0 {
		errs = append(errs, fmt.Errorf("shards must be positive, got %d", c.Shards))
	}
	if c.AlertPercent <= 0 || c.AlertPercent > 1 {
		errs = append(errs, fmt.Errorf("alert_percent must be in (0,1], got %v", c.AlertPercent))
	}
	return errors.Join(errs...)
}

// Alert reports memory pressure.
type Alert struct {
	MemoryPercent float64
	Bytes         int64
	MaxMemory     int64
	At            time.Time
}

func (a Alert) String() string {
	return fmt.Sprintf("cache memory at %.0f%% of budget (%d/%d bytes)", a.MemoryPercent*100, a.Bytes, a.MaxMemory)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	now           func() time.Time
	onAlert       func(Alert)
	alertInterval time.Duration
}

// WithLogger sets the logger used for corruption and maintenance messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithAlertHandler receives memory pressure alerts. It is called from the
// maintenance goroutine and must not block.
func WithAlertHandler(fn func(Alert)) Option {
	return func(o *options) { o.onAlert = fn }
}

// WithAlertInterval sets the minimum spacing between two alerts.
func WithAlertInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.alertInterval = d
		}
	}
}

// Cache is a sharded ARC cache of values of type V.
type Cache[V any] struct {
	mu     sync.RWMutex // guards cfg
	cfg    Config
	shards []*lockedShard

	group   singleflight.Group
	opts    options
	limiter *rate.Limiter

	hits        atomic.Uint64
	misses      atomic.Uint64
	expirations atomic.Uint64
	corruptions atomic.Uint64
	compressed  atomic.Uint64
	computes    atomic.Uint64

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

type lockedShard struct {
	mu sync.Mutex
	*shard
}

// New builds a cache. The shard count is lowered when MaxEntries is
// smaller than it, so every shard can hold at least one entry.
func New[V any](cfg Config, opts ...Option) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	o := options{
		logger:        slog.Default(),
		now:           time.Now,
		alertInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.MaxEntries < cfg.Shards {
		cfg.Shards = cfg.MaxEntries
	}
	c := &Cache[V]{
		cfg:     cfg,
		opts:    o,
		limiter: rate.NewLimiter(rate.Every(o.alertInterval), 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.shards = make([]*lockedShard, cfg.Shards)
	for i := range c.shards {
		entries, memory := budget(cfg, i)
		c.shards[i] = &lockedShard{shard: newShard(entries, memory)}
	}
	return c, nil
}

// budget splits the configured budgets across shards; the per-shard
// values sum exactly to the totals.
func budget(cfg Config, i int) (int, int64) {
	n := int64(cfg.Shards)
	entries := cfg.MaxEntries / cfg.Shards
	if i < cfg.MaxEntries%cfg.Shards {
		entries++
	}
	memory := cfg.MaxMemory / n
	if int64(i) < cfg.MaxMemory%n {
		memory++
	}
	return entries, memory
}

func (c *Cache[V]) shardFor(k Key) *lockedShard {
	return c.shards[k.hash()%uint64(len(c.shards))]
}

func (c *Cache[V]) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Get returns the cached value for key. Expired and corrupt entries are
// removed and reported as misses.
func (c *Cache[V]) Get(key Key) (V, bool) {
	var zero V
	now := c.opts.now()

	sh := c.shardFor(key)
	sh.mu.Lock()
	e, res := sh.get(key, now)
	sh.mu.Unlock()

	switch res {
	case lookupExpired:
		c.expirations.Add(1)
		c.misses.Add(1)
		return zero, false
	case lookupMiss:
		c.misses.Add(1)
		return zero, false
	}

	v, err := decode[V](e)
	if err != nil {
		c.corruptions.Add(1)
		c.misses.Add(1)
		c.opts.logger.Error("dropping corrupt cache entry", "key", key.String(), "error", err)
		sh.mu.Lock()
		sh.remove(key)
		sh.mu.Unlock()
		return zero, false
	}
	c.hits.Add(1)
	return v, true
}

// Put stores v under key.
func (c *Cache[V]) Put(key Key, v V) error {
	cfg := c.config()
	data, compressed, err := encode(v, cfg.CompressThreshold)
	if err != nil {
		return err
	}
	now := c.opts.now()
	e := &entry{
		data:       data,
		compressed: compressed,
		sum:        xxhash.Sum64(data),
		size:       int64(len(data)) + key.size() + entryOverhead,
		lastAccess: now,
	}
	if cfg.TTL > 0 {
		e.expires = now.Add(cfg.TTL)
	}

	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.maxMemory > 0 && e.size > sh.maxMemory {
		return fmt.Errorf("failed to store %s (%d bytes): %w", key, e.size, ErrValueTooLarge)
	}
	sh.put(key, e)
	if compressed {
		c.compressed.Add(1)
	}
	return nil
}

// GetOrCompute returns the cached value for key, or runs fn and caches its
// result. Concurrent callers with the same key share one fn invocation,
// which runs with the context of the caller that started it. The boolean
// reports a cache hit.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key Key, fn func(context.Context) (V, error)) (V, bool, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		c.computes.Add(1)
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(key, v); err != nil {
			c.opts.logger.Warn("alignment result not cached", "key", key.String(), "error", err)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, false, r.Err
		}
		return r.Val.(V), false, nil
	}
}

// Remove drops key.
func (c *Cache[V]) Remove(key Key) bool {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.remove(key)
}

// InvalidateLanguagePair drops every entry for the (source, target)
// language pair and returns how many resident entries were removed.
func (c *Cache[V]) InvalidateLanguagePair(source, target string) int {
	src, tgt := profile.Canonical(source), profile.Canonical(target)
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += sh.removeIf(func(k Key) bool { return k.SourceLang == src && k.TargetLang == tgt })
		sh.mu.Unlock()
	}
	return n
}

// Clear drops every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.reset()
		sh.mu.Unlock()
	}
}

// Resize changes the entry and memory budgets, evicting as needed. The
// shard count does not change; shards may end up with a zero entry budget.
func (c *Cache[V]) Resize(maxEntries int, maxMemory int64) error {
	c.mu.Lock()
	cfg := c.cfg
	cfg.MaxEntries = maxEntries
	cfg.MaxMemory = maxMemory
	if err := cfg.Validate(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("invalid cache budget: %w", err)
	}
	c.cfg = cfg
	c.mu.Unlock()

	evicted := 0
	for i, sh := range c.shards {
		entries, memory := budget(cfg, i)
		sh.mu.Lock()
		evicted += sh.resize(entries, memory)
		sh.mu.Unlock()
	}
	c.opts.logger.Debug("cache resized", "max_entries", maxEntries, "max_memory", maxMemory, "evicted", evicted)
	return nil
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Entries       int     `json:"entries"`
	Bytes         int64   `json:"bytes"`
	MaxEntries    int     `json:"max_entries"`
	MaxMemory     int64   `json:"max_memory"`
	MemoryPercent float64 `json:"memory_percent"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Evictions     uint64  `json:"evictions"`
	Expirations   uint64  `json:"expirations"`
	Corruptions   uint64  `json:"corruptions"`
	Compressed    uint64  `json:"compressed"`
	Computations  uint64  `json:"computations"`
	Recent        int     `json:"recent"`
	Frequent      int     `json:"frequent"`
	GhostRecent   int     `json:"ghost_recent"`
	GhostFrequent int     `json:"ghost_frequent"`
	// Target is the summed adaptive T1 target across shards.
	Target int `json:"target"`
}

// Stats collects counters from every shard.
func (c *Cache[V]) Stats() Stats {
	cfg := c.config()
	st := Stats{
		MaxEntries:   cfg.MaxEntries,
		MaxMemory:    cfg.MaxMemory,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Expirations:  c.expirations.Load(),
		Corruptions:  c.corruptions.Load(),
		Compressed:   c.compressed.Load(),
		Computations: c.computes.Load(),
	}
	for _, sh := range c.shards {
		sh.mu.Lock()
		st.Recent += sh.t1.Len()
		st.Frequent += sh.t2.Len()
		st.GhostRecent += sh.b1.Len()
		st.GhostFrequent += sh.b2.Len()
		st.Bytes += sh.bytes
		st.Evictions += sh.evictions
		st.Target += sh.p
		sh.mu.Unlock()
	}
	st.Entries = st.Recent + st.Frequent
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	if cfg.MaxMemory > 0 {
		st.MemoryPercent = float64(st.Bytes) / float64(cfg.MaxMemory)
	}
	return st
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += sh.resident()
		sh.mu.Unlock()
	}
	return n
}
