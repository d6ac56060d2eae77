package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// entryOverhead approximates list node and bookkeeping bytes per entry.
const entryOverhead = 128

func encode[V any](v V, threshold int) ([]byte, bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode cache value: %w", err)
	}
	if threshold <= 0 || len(raw) <= threshold {
		return raw, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, false, fmt.Errorf("failed to compress cache value: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("failed to compress cache value: %w", err)
	}
	if buf.Len() >= len(raw) {
		return raw, false, nil
	}
	return buf.Bytes(), true, nil
}

func decode[V any](e *entry) (V, error) {
	var v V
	if xxhash.Sum64(e.data) != e.sum {
		return v, fmt.Errorf("%w: checksum mismatch", ErrCacheCorruption)
	}
	raw := e.data
	if e.compressed {
		zr, err := gzip.NewReader(bytes.NewReader(e.data))
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrCacheCorruption, err)
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrCacheCorruption, err)
		}
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrCacheCorruption, err)
	}
	return v, nil
}
