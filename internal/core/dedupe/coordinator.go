// Package dedupe collapses duplicate concurrent requests for the same derived
// asset into a single execution. Callers sharing a key observe the same
// eventual result; the producer runs at most once per key among concurrent
// arrivals and the key frees immediately on settlement so a retry re-executes.
package dedupe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"Medigate/internal/metrics"
)

const (
	// DefaultMaxAge is how long an in-flight entry may live before the sweep
	// discards it. Guards against hung producers leaking keys.
	DefaultMaxAge = 30 * time.Second

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 10 * time.Second
)

// Producer computes the result for a key. It receives a context detached from
// any single caller, so one caller timing out does not cancel the flight for
// the others.
type Producer[T any] func(ctx context.Context) (T, error)

// Coordinator deduplicates concurrent executions keyed by an arbitrary string.
// Construct with New and inject it; there is no package-level instance, so
// tests get fresh state per instance.
type Coordinator[T any] struct {
	group  singleflight.Group
	maxAge time.Duration

	mu      sync.Mutex
	started map[string]time.Time
}

// New creates a Coordinator whose sweep discards in-flight entries older than
// maxAge. A maxAge of 0 or less uses DefaultMaxAge.
func New[T any](maxAge time.Duration) *Coordinator[T] {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Coordinator[T]{
		maxAge:  maxAge,
		started: make(map[string]time.Time),
	}
}

// Do executes producer for key, collapsing concurrent callers onto one flight.
// Every waiter receives the identical result or the identical error. If the
// caller's context expires first, Do returns the context error but the flight
// continues for the remaining waiters and may still settle normally.
func (c *Coordinator[T]) Do(ctx context.Context, key string, producer Producer[T]) (T, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		c.started[key] = time.Now()
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.started, key)
			c.mu.Unlock()
		}()

		// Detached so no single caller's cancellation stops the flight for
		// everyone else.
		return producer(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.DedupeFlightsTotal.WithLabelValues(metrics.DedupeShared).Inc()
		} else {
			metrics.DedupeFlightsTotal.WithLabelValues(metrics.DedupeInitiated).Inc()
		}
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Forget removes key from the coordinator so the next Do re-executes the
// producer. Waiters already attached to an in-flight call are unaffected.
func (c *Coordinator[T]) Forget(key string) {
	c.group.Forget(key)
	c.mu.Lock()
	delete(c.started, key)
	c.mu.Unlock()
}

// InFlight reports the number of keys with an in-flight producer.
func (c *Coordinator[T]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.started)
}

// sweep forgets every in-flight key older than maxAge and returns how many
// were discarded. New callers for a swept key start a fresh flight.
func (c *Coordinator[T]) sweep() int {
	cutoff := time.Now().Add(-c.maxAge)

	c.mu.Lock()
	var stale []string
	for key, startedAt := range c.started {
		if startedAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(c.started, key)
	}
	c.mu.Unlock()

	for _, key := range stale {
		c.group.Forget(key)
		slog.Warn("[DEDUPE] discarded stale in-flight entry",
			"key", key,
			"max_age", c.maxAge,
		)
	}
	if n := len(stale); n > 0 {
		metrics.DedupeSweptTotal.Add(float64(n))
	}
	return len(stale)
}

// StartSweeper starts the background sweep that discards in-flight entries
// older than the coordinator's max age. Returns a cancel function to be called
// during graceful shutdown. An interval of 0 or less uses DefaultSweepInterval.
func (c *Coordinator[T]) StartSweeper(interval time.Duration) context.CancelFunc {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("[DEDUPE] sweeper started",
			"interval", interval,
			"max_age", c.maxAge,
		)

		for {
			select {
			case <-ctx.Done():
				slog.Info("[DEDUPE] sweeper stopped")
				return
			case <-ticker.C:
				if swept := c.sweep(); swept > 0 {
					slog.Info("[DEDUPE] sweep completed",
						"entries_discarded", swept,
					)
				}
			}
		}
	}()

	return cancel
}
