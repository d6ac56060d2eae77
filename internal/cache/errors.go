package cache

import "errors"

var (
	// ErrCacheCorruption marks a stored entry that failed its checksum or
	// could not be decoded. The entry is dropped and recomputed; callers of
	// GetOrCompute never see this error.
	ErrCacheCorruption = errors.New("cache entry corrupted")

	// ErrValueTooLarge is returned by Put when a single encoded value
	// exceeds a shard's memory budget.
	ErrValueTooLarge = errors.New("cache value exceeds shard memory budget")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("cache closed")
)
