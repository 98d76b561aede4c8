// Package imageproxy serves resized, recompressed images on behalf of the
// application, sitting between page code and slow, unreliable external
// origins.
//
// The gateway layers three defenses between a request and the origin:
//   - the deduplication coordinator collapses concurrent identical requests
//     onto one flight,
//   - the TTL cache store answers repeat requests without refetching,
//   - a hard wall-clock budget bounds the caller-visible wait.
//
// Among concurrent arrivals for one derived asset, at most one origin fetch
// and one transcode ever run.
package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"Medigate/internal/core/cachekey"
	"Medigate/internal/core/cachestore"
	"Medigate/internal/core/dedupe"
	"Medigate/internal/core/transcode"
	"Medigate/internal/metrics"
)

// cacheNamespace prefixes every image proxy cache key.
const cacheNamespace = "imgproxy"

// Request describes one image proxy call. Width 0 selects the unscaled
// (banner) class; Quality 0 takes the default; Format "" defaults to webp.
type Request struct {
	SourceURL string
	Width     int
	Quality   int
	Format    transcode.Format
}

// DefaultQuality is used when a request does not specify quality.
const DefaultQuality = 50

// normalize applies defaults and clamps Quality into [1,100].
func (r Request) normalize() Request {
	if r.Quality == 0 {
		r.Quality = DefaultQuality
	}
	if r.Quality < 1 {
		r.Quality = 1
	}
	if r.Quality > 100 {
		r.Quality = 100
	}
	if r.Format == "" {
		r.Format = transcode.FormatWebP
	}
	if r.Width < 0 {
		r.Width = 0
	}
	return r
}

// cacheKey builds the deterministic key for the full transform tuple.
func (r Request) cacheKey() string {
	return cachekey.BuildParams(cacheNamespace, map[string]string{
		"url":    r.SourceURL,
		"w":      strconv.Itoa(r.Width),
		"q":      strconv.Itoa(r.Quality),
		"format": string(r.Format),
	})
}

// Result is the payload handed back to the handler.
type Result struct {
	Payload  []byte
	MimeType string
}

// Service defines the interface for the image proxy gateway.
type Service interface {
	// GetImage validates the request, then resolves it through dedup, cache
	// and origin fetch + transcode, bounded by the hard request timeout.
	GetImage(ctx context.Context, req Request) (Result, error)
}

// Gateway implements Service. All collaborators are injected; the composition
// root owns their lifetimes.
type Gateway struct {
	store       cachestore.Store
	coordinator *dedupe.Coordinator[cachestore.Envelope]
	fetcher     Fetcher
	transcoder  transcode.Transcoder
	config      Config
}

// NewGateway creates a Gateway with the provided dependencies.
// Returns an error if any required dependency is nil.
func NewGateway(
	store cachestore.Store,
	coordinator *dedupe.Coordinator[cachestore.Envelope],
	fetcher Fetcher,
	transcoder transcode.Transcoder,
	config Config,
) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store", ErrNilDependency)
	}
	if coordinator == nil {
		return nil, fmt.Errorf("%w: coordinator", ErrNilDependency)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher", ErrNilDependency)
	}
	if transcoder == nil {
		return nil, fmt.Errorf("%w: transcoder", ErrNilDependency)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Gateway{
		store:       store,
		coordinator: coordinator,
		fetcher:     fetcher,
		transcoder:  transcoder,
		config:      config,
	}, nil
}

// ValidateSourceURL rejects missing, blob-scheme, and unparseable source URLs.
// Blob references are transient and client-local; the GET path can never
// resolve them, so callers are directed to the upload path instead.
func ValidateSourceURL(sourceURL string) error {
	if sourceURL == "" {
		return ErrMissingURL
	}
	if strings.HasPrefix(strings.ToLower(sourceURL), "blob:") {
		return ErrBlobURL
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// GetImage resolves one image proxy request.
//
// The caller-visible wait is raced against the hard request timeout. On
// timeout only the wait is cancelled: the in-flight fetch continues on a
// detached context and still populates the cache for the next caller, since
// dedup already caps duplicate fetches at one. Wasted work is preferable to
// repeated failures under load.
func (g *Gateway) GetImage(ctx context.Context, req Request) (Result, error) {
	if err := ValidateSourceURL(req.SourceURL); err != nil {
		metrics.ImageRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return Result{}, err
	}
	req = req.normalize()
	key := req.cacheKey()

	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	env, err := g.coordinator.Do(ctx, key, func(pctx context.Context) (cachestore.Envelope, error) {
		produce := func(fctx context.Context) ([]byte, error) {
			raw, mimeType, err := g.fetcher.Fetch(fctx, req.SourceURL)
			if err != nil {
				return nil, err
			}
			res := g.transcoder.Transcode(raw, mimeType, transcode.ClassForWidth(req.Width), req.Quality, req.Format)
			return cachestore.Envelope{MimeType: res.MimeType, Payload: res.Payload}.Encode(), nil
		}

		data, err := cachestore.WithBufferCache(pctx, g.store, key, cachestore.TTLDay, produce)
		if err != nil {
			return cachestore.Envelope{}, err
		}
		env, decodeErr := cachestore.DecodeEnvelope(data)
		if decodeErr == nil {
			return env, nil
		}

		// A stored entry that no longer decodes is a cache-side failure:
		// drop it and rebuild from origin rather than failing every request
		// for this key until the TTL expires.
		slog.Warn("[IMAGE-PROXY] corrupt cache entry, rebuilding",
			"key", key,
			"error", decodeErr,
		)
		if delErr := g.store.Delete(pctx, key); delErr != nil {
			slog.Warn("[IMAGE-PROXY] failed to drop corrupt cache entry",
				"key", key,
				"error", delErr,
			)
		}
		fresh, err := produce(pctx)
		if err != nil {
			return cachestore.Envelope{}, err
		}
		if setErr := g.store.Set(pctx, key, fresh, cachestore.TTLDay); setErr != nil {
			slog.Warn("[IMAGE-PROXY] failed to restore cache entry",
				"key", key,
				"error", setErr,
			)
		}
		return cachestore.DecodeEnvelope(fresh)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The caller disconnected. Nothing went wrong on our side and
			// nobody is waiting for the answer.
			return Result{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.ImageRequestsTotal.WithLabelValues(metrics.OutcomeTimeout).Inc()
			slog.Warn("[IMAGE-PROXY] request exceeded hard budget",
				"url", req.SourceURL,
				"budget", g.config.RequestTimeout,
			)
			return Result{}, fmt.Errorf("%w: budget %v", ErrTimeout, g.config.RequestTimeout)
		}
		metrics.ImageRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return Result{}, err
	}

	// Final result must be a non-empty buffer with a known MIME type. A
	// violation is fatal for this request, not retried.
	if len(env.Payload) == 0 || env.MimeType == "" {
		metrics.ImageRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		slog.Error("[IMAGE-PROXY] invalid final result",
			"url", req.SourceURL,
			"size_bytes", len(env.Payload),
			"mime", env.MimeType,
		)
		return Result{}, ErrEmptyResult
	}

	metrics.ImageRequestsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return Result{Payload: env.Payload, MimeType: env.MimeType}, nil
}
