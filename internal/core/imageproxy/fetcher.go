package imageproxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher defines the interface for fetching source bytes from an origin.
type Fetcher interface {
	// Fetch retrieves the resource at sourceURL. Returns the payload and the
	// origin's declared Content-Type, or an error if the fetch fails.
	Fetch(ctx context.Context, sourceURL string) ([]byte, string, error)
}

// OriginFetcher implements Fetcher over plain HTTP with a per-fetch timeout
// and a size cap on the response body.
type OriginFetcher struct {
	client       *http.Client
	timeout      time.Duration
	maxSizeBytes int64
}

// DefaultMaxSourceSizeMB is the default maximum source size if not configured.
const DefaultMaxSourceSizeMB = 10

// NewOriginFetcher creates an OriginFetcher with the specified per-fetch
// timeout. maxSizeMB of 0 or less uses DefaultMaxSourceSizeMB.
func NewOriginFetcher(timeout time.Duration, maxSizeMB int) *OriginFetcher {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSourceSizeMB
	}
	return &OriginFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout:      timeout,
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
	}
}

// Fetch retrieves the resource at sourceURL.
// Returns:
//   - ErrOriginTimeout if the request times out or the context is cancelled
//   - ErrImageTooLarge if the payload exceeds the configured cap
//   - ErrOriginFetch for any other failure, including non-200 responses
func (f *OriginFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to create request: %v", ErrOriginFetch, err)
	}
	req.Header.Set("User-Agent", "Medigate-ImageProxy/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrOriginTimeout, ctx.Err())
		}
		if isTimeoutError(err) {
			return nil, "", fmt.Errorf("%w: request timed out", ErrOriginTimeout)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrOriginFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: unexpected status code %d", ErrOriginFetch, resp.StatusCode)
	}

	if resp.ContentLength > 0 && resp.ContentLength > f.maxSizeBytes {
		return nil, "", fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
			ErrImageTooLarge, resp.ContentLength, f.maxSizeBytes)
	}

	// Limited reader guards against missing or wrong Content-Length; reading
	// one extra byte detects payloads past the cap.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSizeBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrOriginTimeout, ctx.Err())
		}
		return nil, "", fmt.Errorf("%w: failed to read response body: %v", ErrOriginFetch, err)
	}
	if int64(len(data)) > f.maxSizeBytes {
		return nil, "", fmt.Errorf("%w: response body exceeds maximum %d bytes",
			ErrImageTooLarge, f.maxSizeBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// isTimeoutError checks if the error is a timeout-related error.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(interface{ Timeout() bool }); ok {
		return te.Timeout()
	}
	return false
}
