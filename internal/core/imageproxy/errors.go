package imageproxy

import "errors"

var (
	// ErrMissingURL is returned when a request has no source URL.
	ErrMissingURL = errors.New("missing source URL")

	// ErrBlobURL is returned when the source URL is a transient client-local
	// blob reference; those must go through the upload path instead.
	ErrBlobURL = errors.New("blob references cannot be proxied, use the upload path")

	// ErrInvalidURL is returned when the source URL cannot be parsed or uses
	// an unsupported scheme.
	ErrInvalidURL = errors.New("invalid source URL")

	// ErrOriginFetch is returned when fetching from the origin fails for any
	// reason other than a timeout.
	ErrOriginFetch = errors.New("failed to fetch from origin")

	// ErrOriginTimeout is returned when a single origin fetch exceeds the
	// configured fetch timeout.
	ErrOriginTimeout = errors.New("origin request timed out")

	// ErrTimeout is returned when the whole gateway call exceeds its hard
	// wall-clock budget. Reported distinctly from origin failures.
	ErrTimeout = errors.New("image proxy request timed out")

	// ErrImageTooLarge is returned when the source payload exceeds the
	// maximum allowed size.
	ErrImageTooLarge = errors.New("source image exceeds size limit")

	// ErrEmptyResult is returned when the final result is an empty buffer or
	// has no known MIME type. Fatal for the request, never retried.
	ErrEmptyResult = errors.New("empty or untyped proxy result")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
