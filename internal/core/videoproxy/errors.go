package videoproxy

import "errors"

var (
	// ErrMissingURL is returned when a request has no resource URL.
	ErrMissingURL = errors.New("missing resource URL")

	// ErrInvalidURL is returned when the resource URL cannot be parsed or
	// uses an unsupported scheme.
	ErrInvalidURL = errors.New("invalid resource URL")

	// ErrOriginFetch is returned when the origin request fails outright.
	ErrOriginFetch = errors.New("failed to fetch from origin")

	// ErrOriginStatus is returned when the origin answers with anything other
	// than 200 or 206. Fatal for the request; never silently treated as an
	// empty stream.
	ErrOriginStatus = errors.New("unexpected origin status")

	// ErrManifestTooLarge is returned when a playlist exceeds the manifest
	// size cap.
	ErrManifestTooLarge = errors.New("manifest exceeds size limit")
)
