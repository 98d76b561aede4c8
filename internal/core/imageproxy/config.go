package imageproxy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config validation errors
var (
	// ErrInvalidFetchTimeout is returned when FetchTimeout is not positive.
	ErrInvalidFetchTimeout = errors.New("FetchTimeout must be positive")
	// ErrInvalidRequestTimeout is returned when RequestTimeout is not positive.
	ErrInvalidRequestTimeout = errors.New("RequestTimeout must be positive")
	// ErrInvalidMaxSourceSize is returned when MaxSourceSizeMB is not positive.
	ErrInvalidMaxSourceSize = errors.New("MaxSourceSizeMB must be positive")
	// ErrTimeoutOrder is returned when the request budget does not exceed the
	// per-fetch budget; the race would then never fire before the fetch gives up.
	ErrTimeoutOrder = errors.New("RequestTimeout must be greater than FetchTimeout")
)

// Config holds the configuration for the image proxy gateway.
type Config struct {
	// FetchTimeout bounds a single origin fetch.
	FetchTimeout time.Duration

	// RequestTimeout is the hard wall-clock budget for the caller-visible
	// wait. It must stay below the platform's own edge timeout so slow
	// origins fail predictably instead of hanging the edge request.
	RequestTimeout time.Duration

	// MaxSourceSizeMB is the maximum allowed size for source images.
	MaxSourceSizeMB int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:    5 * time.Second,
		RequestTimeout:  8 * time.Second,
		MaxSourceSizeMB: 10,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidFetchTimeout, c.FetchTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRequestTimeout, c.RequestTimeout)
	}
	if c.MaxSourceSizeMB <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSourceSize, c.MaxSourceSizeMB)
	}
	if c.RequestTimeout <= c.FetchTimeout {
		return fmt.Errorf("%w: %v <= %v", ErrTimeoutOrder, c.RequestTimeout, c.FetchTimeout)
	}
	return nil
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults for anything missing or malformed.
//
// Environment variables:
//   - IMAGE_PROXY_FETCH_TIMEOUT_SECONDS: single origin fetch budget (default: 5)
//   - IMAGE_PROXY_REQUEST_TIMEOUT_SECONDS: hard wall-clock budget (default: 8)
//   - IMAGE_PROXY_MAX_SOURCE_SIZE_MB: max source image size in MB (default: 10)
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("IMAGE_PROXY_FETCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchTimeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("[IMAGE-PROXY] invalid IMAGE_PROXY_FETCH_TIMEOUT_SECONDS value, using default",
				"value", v,
				"default_seconds", int(cfg.FetchTimeout.Seconds()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("IMAGE_PROXY_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RequestTimeout = time.Duration(n) * time.Second
		} else {
			slog.Warn("[IMAGE-PROXY] invalid IMAGE_PROXY_REQUEST_TIMEOUT_SECONDS value, using default",
				"value", v,
				"default_seconds", int(cfg.RequestTimeout.Seconds()),
				"error", err,
			)
		}
	}

	if v := os.Getenv("IMAGE_PROXY_MAX_SOURCE_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSourceSizeMB = n
		} else {
			slog.Warn("[IMAGE-PROXY] invalid IMAGE_PROXY_MAX_SOURCE_SIZE_MB value, using default",
				"value", v,
				"default", cfg.MaxSourceSizeMB,
				"error", err,
			)
		}
	}

	return cfg
}
