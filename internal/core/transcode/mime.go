package transcode

import (
	"net/http"
	"strings"
)

// allowedMimeTypes is the fixed allow-list of source image types the
// transcoder will attempt to decode. Anything else passes through untouched.
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/tiff": true,
	"image/avif": true,
	"image/gif":  true,
}

// NormalizeMimeType lowercases a MIME type, strips parameters, and maps
// common aliases (image/jpg -> image/jpeg) onto their canonical form.
func NormalizeMimeType(mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(m, ';'); idx >= 0 {
		m = strings.TrimSpace(m[:idx])
	}
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}

// IsAllowedMimeType reports whether the normalized MIME type is on the
// transcoder's allow-list.
func IsAllowedMimeType(mimeType string) bool {
	return allowedMimeTypes[NormalizeMimeType(mimeType)]
}

// guessMimeType returns the best-guess MIME type for raw bytes: the declared
// type when it is on the allow-list, otherwise content sniffing.
func guessMimeType(data []byte, declared string) string {
	normalized := NormalizeMimeType(declared)
	if allowedMimeTypes[normalized] {
		return normalized
	}
	return http.DetectContentType(data)
}
