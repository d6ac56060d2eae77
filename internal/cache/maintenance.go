package cache

import (
	"context"
	"time"
)

// Start launches the maintenance loop. It runs every CleanupInterval until
// ctx is done or Close is called. Calling Start more than once has no
// effect.
func (c *Cache[V]) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.startOnce.Do(func() {
		go c.loop(ctx)
	})
	return nil
}

func (c *Cache[V]) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config().CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.Maintain()
		}
	}
}

// MaintenanceReport describes one maintenance pass.
type MaintenanceReport struct {
	Expired       int
	MemoryPercent float64
	Alerted       bool
}

// Maintain purges expired entries, trims the ghost lists and emits an
// alert when memory use is at or above AlertPercent of the budget.
func (c *Cache[V]) Maintain() MaintenanceReport {
	now := c.opts.now()
	var rep MaintenanceReport
	var bytes int64
	for _, sh := range c.shards {
		sh.mu.Lock()
		rep.Expired += sh.purgeExpired(now)
		sh.rebalance()
		bytes += sh.bytes
		sh.mu.Unlock()
	}
	c.expirations.Add(uint64(rep.Expired))

	cfg := c.config()
	if cfg.MaxMemory > 0 {
		rep.MemoryPercent = float64(bytes) / float64(cfg.MaxMemory)
	}
	if rep.MemoryPercent >= cfg.AlertPercent && c.limiter.Allow() {
		alert := Alert{MemoryPercent: rep.MemoryPercent, Bytes: bytes, MaxMemory: cfg.MaxMemory, At: now}
		c.opts.logger.Warn("cache memory pressure", "percent", rep.MemoryPercent, "bytes", bytes, "max_memory", cfg.MaxMemory)
		if c.opts.onAlert != nil {
			c.opts.onAlert(alert)
		}
		rep.Alerted = true
	}

	if rep.Expired > 0 {
		c.opts.logger.Debug("cache maintenance", "expired", rep.Expired, "memory_percent", rep.MemoryPercent)
	}
	return rep
}

// Close stops the maintenance loop and waits for it to exit.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
		started := true
		c.startOnce.Do(func() { started = false })
		if started {
			<-c.done
		}
	})
	return nil
}
