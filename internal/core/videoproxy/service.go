// Package videoproxy proxies video media and HLS playlists from external
// origins, preserving HTTP Range semantics. Playlists are rewritten so
// segment fetches stay on the proxy path; everything else is passed through
// as a live, cancellable byte stream. There is no re-encoding.
package videoproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Request describes one video proxy call. RangeHeader, when present, is
// forwarded to the origin verbatim. ProxyBaseURL is the externally visible
// origin of this gateway, used when rewriting manifest references.
type Request struct {
	ResourceURL  string
	RangeHeader  string
	ProxyBaseURL string
}

// PlaylistResult is a rewritten HLS manifest.
type PlaylistResult struct {
	Text          string
	ContentType   string
	ContentLength int64
}

// StreamResult is a live byte stream mirroring the origin response. The
// caller owns Body and must close it; cancelling the request context aborts
// the origin read immediately.
type StreamResult struct {
	Body          io.ReadCloser
	Status        int
	ContentType   string
	ContentLength int64
	ContentRange  string
	AcceptRanges  string
}

// Result is the tagged union of the two proxy branches: exactly one of
// Playlist or Stream is set.
type Result struct {
	Playlist *PlaylistResult
	Stream   *StreamResult
}

// Service defines the interface for the video proxy gateway.
type Service interface {
	Handle(ctx context.Context, req Request) (*Result, error)
}

// Config holds the configuration for the video proxy gateway.
type Config struct {
	// HeaderTimeout bounds the wait for origin response headers. The body
	// read is unbounded; long media streams outlive any fixed budget and are
	// ended by consumer cancellation instead.
	HeaderTimeout time.Duration

	// MaxManifestSizeMB caps playlist reads.
	MaxManifestSizeMB int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		HeaderTimeout:     10 * time.Second,
		MaxManifestSizeMB: 2,
	}
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults for anything missing or malformed.
//
// Environment variables:
//   - VIDEO_PROXY_HEADER_TIMEOUT_SECONDS: origin header wait budget (default: 10)
//   - VIDEO_PROXY_MAX_MANIFEST_SIZE_MB: playlist size cap (default: 2)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("VIDEO_PROXY_HEADER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HeaderTimeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("[VIDEO-PROXY] invalid VIDEO_PROXY_HEADER_TIMEOUT_SECONDS value, using default",
				"value", v,
				"default_seconds", int(cfg.HeaderTimeout.Seconds()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("VIDEO_PROXY_MAX_MANIFEST_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxManifestSizeMB = n
		} else {
			slog.Warn("[VIDEO-PROXY] invalid VIDEO_PROXY_MAX_MANIFEST_SIZE_MB value, using default",
				"value", v,
				"default", cfg.MaxManifestSizeMB,
				"error", err,
			)
		}
	}

	return cfg
}

// Gateway implements Service.
type Gateway struct {
	client *http.Client
	config Config
}

// NewGateway creates a Gateway. The HTTP client has no overall timeout:
// stream bodies may legitimately flow for a long time and are bounded by the
// consumer's context, not a fixed budget.
func NewGateway(config Config) *Gateway {
	if config.HeaderTimeout <= 0 {
		config.HeaderTimeout = DefaultConfig().HeaderTimeout
	}
	if config.MaxManifestSizeMB <= 0 {
		config.MaxManifestSizeMB = DefaultConfig().MaxManifestSizeMB
	}
	return &Gateway{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: config.HeaderTimeout,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		config: config,
	}
}

// validateResourceURL parses and checks the resource URL.
func validateResourceURL(resourceURL string) (*url.URL, error) {
	if resourceURL == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// Handle resolves one video proxy request. The inbound Range header is
// forwarded verbatim; 200 and 206 are the only acceptable origin statuses.
// The branch is chosen by URL suffix: manifests are read and rewritten,
// everything else comes back as a live stream tied to ctx. The returned
// stream's Body is the origin read handle; it is closed when ctx is
// cancelled, so a departing consumer releases the origin connection instead
// of leaking it.
func (g *Gateway) Handle(ctx context.Context, req Request) (*Result, error) {
	resourceURL, err := validateResourceURL(req.ResourceURL)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrOriginFetch, err)
	}
	httpReq.Header.Set("User-Agent", "Medigate-VideoProxy/1.0")
	if req.RangeHeader != "" {
		httpReq.Header.Set("Range", req.RangeHeader)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOriginFetch, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		// Drain a little so the connection can be reused, then fail loudly.
		io.CopyN(io.Discard, resp.Body, 1024) //nolint:errcheck
		resp.Body.Close()
		slog.Warn("[VIDEO-PROXY] origin returned non-success status",
			"url", req.ResourceURL,
			"status", resp.StatusCode,
		)
		return nil, fmt.Errorf("%w: %d", ErrOriginStatus, resp.StatusCode)
	}

	if isPlaylistURL(resourceURL) {
		return g.handlePlaylist(resp, resourceURL, req.ProxyBaseURL)
	}

	return &Result{
		Stream: &StreamResult{
			Body:          resp.Body,
			Status:        resp.StatusCode,
			ContentType:   resp.Header.Get("Content-Type"),
			ContentLength: resp.ContentLength,
			ContentRange:  resp.Header.Get("Content-Range"),
			AcceptRanges:  resp.Header.Get("Accept-Ranges"),
		},
	}, nil
}

// handlePlaylist reads the manifest text and rewrites its references.
func (g *Gateway) handlePlaylist(resp *http.Response, manifestURL *url.URL, proxyBaseURL string) (*Result, error) {
	defer resp.Body.Close()

	maxBytes := int64(g.config.MaxManifestSizeMB) * 1024 * 1024
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read manifest: %v", ErrOriginFetch, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrManifestTooLarge, maxBytes)
	}

	rewritten := RewriteManifest(string(data), manifestURL, proxyBaseURL)
	return &Result{
		Playlist: &PlaylistResult{
			Text:          rewritten,
			ContentType:   ManifestContentType,
			ContentLength: int64(len(rewritten)),
		},
	}, nil
}

var _ Service = (*Gateway)(nil)

// IsFatalOriginError reports whether err is one of the origin-side failures
// that must surface to the consumer rather than degrade to an empty stream.
func IsFatalOriginError(err error) bool {
	return errors.Is(err, ErrOriginStatus) || errors.Is(err, ErrOriginFetch)
}
