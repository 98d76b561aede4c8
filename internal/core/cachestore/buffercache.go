package cachestore

import (
	"context"
	"log/slog"

	"Medigate/internal/metrics"
)

// BufferProducer computes the payload for a cache key on a miss.
type BufferProducer func(ctx context.Context) ([]byte, error)

// WithBufferCache composes get -> (miss) -> producer -> set -> return as one
// operation. The cache is fail-soft on both sides: a Get error degrades to a
// miss and a Set error never reaches the caller; both are logged, so an
// unreachable engine costs origin fetches, not request failures. Producer
// errors propagate unchanged.
func WithBufferCache(ctx context.Context, store Store, key string, ttl TTL, producer BufferProducer) ([]byte, error) {
	data, found, err := store.Get(ctx, key)
	if err != nil {
		metrics.CacheRequestsTotal.WithLabelValues(metrics.CacheError).Inc()
		slog.Warn("[CACHE] get failed, treating as miss",
			"key", key,
			"error", err,
		)
	}
	if found {
		metrics.CacheRequestsTotal.WithLabelValues(metrics.CacheHit).Inc()
		return data, nil
	}
	if err == nil {
		metrics.CacheRequestsTotal.WithLabelValues(metrics.CacheMiss).Inc()
	}

	produced, err := producer(ctx)
	if err != nil {
		return nil, err
	}

	if setErr := store.Set(ctx, key, produced, ttl); setErr != nil {
		slog.Warn("[CACHE] set failed, entry not persisted",
			"key", key,
			"size_bytes", len(produced),
			"error", setErr,
		)
	}

	return produced, nil
}
