package videoproxy

import (
	"net/url"
	"strings"
)

// ManifestContentType is the MIME type served for rewritten HLS playlists.
const ManifestContentType = "application/vnd.apple.mpegurl"

// isPlaylistURL reports whether the resource URL identifies an HLS manifest
// by its path suffix.
func isPlaylistURL(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// isAbsoluteRef reports whether a manifest line is already an absolute URL.
func isAbsoluteRef(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// RewriteManifest rewrites every relative segment or sub-playlist reference
// in an HLS manifest into an absolute proxy URL, so segment fetches stay on
// the proxy path. Comment and tag lines (#...) and already-absolute
// references pass through untouched. Relative references are resolved against
// manifestURL before being embedded, query-escaped, in the proxy URL.
func RewriteManifest(text string, manifestURL *url.URL, proxyBaseURL string) string {
	base := strings.TrimSuffix(proxyBaseURL, "/")
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		ref := strings.TrimSpace(trimmed)
		if ref == "" || strings.HasPrefix(ref, "#") {
			lines[i] = trimmed
			continue
		}
		if isAbsoluteRef(ref) {
			lines[i] = trimmed
			continue
		}

		refURL, err := url.Parse(ref)
		if err != nil {
			// Leave lines we cannot parse alone rather than corrupting the
			// manifest.
			lines[i] = trimmed
			continue
		}
		resolved := manifestURL.ResolveReference(refURL)
		lines[i] = base + "/videoProxy?url=" + url.QueryEscape(resolved.String())
	}

	return strings.Join(lines, "\n")
}
