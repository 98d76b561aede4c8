// Package videoproxy provides the HTTP handler for the video gateway.
// Playlists come back as rewritten text; everything else is relayed as a
// live byte stream with Range semantics preserved end to end.
package videoproxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"Medigate/internal/core/videoproxy"
	"Medigate/internal/metrics"
)

// Handler handles HTTP requests for the video proxy.
type Handler struct {
	service videoproxy.Service

	// proxyBaseURL is the externally visible base of this gateway, embedded
	// into rewritten manifest references. Empty means derive from the request.
	proxyBaseURL string
}

// NewHandler creates a new video proxy handler.
func NewHandler(service videoproxy.Service, proxyBaseURL string) *Handler {
	return &Handler{
		service:      service,
		proxyBaseURL: proxyBaseURL,
	}
}

// HandleVideo handles GET /videoProxy?url=...
// The inbound Range header travels to the origin verbatim. Manifest
// responses are buffered and rewritten; stream responses are copied through
// as they arrive, ending when either side goes away.
func (h *Handler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	resourceURL := r.URL.Query().Get("url")
	if resourceURL == "" {
		writeErrorResponse(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	result, err := h.service.Handle(r.Context(), videoproxy.Request{
		ResourceURL:  resourceURL,
		RangeHeader:  r.Header.Get("Range"),
		ProxyBaseURL: h.baseURL(r),
	})
	if err != nil {
		handleServiceError(w, resourceURL, err)
		return
	}

	if result.Playlist != nil {
		h.writePlaylist(w, result.Playlist)
		return
	}
	h.relayStream(w, r, resourceURL, result.Stream)
}

// baseURL returns the configured proxy base, falling back to the request's
// own scheme and host.
func (h *Handler) baseURL(r *http.Request) string {
	if h.proxyBaseURL != "" {
		return h.proxyBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// writePlaylist sends a rewritten manifest. Manifests are small and already
// fully materialized, so they get the same long-lived caching treatment as
// proxied images.
func (h *Handler) writePlaylist(w http.ResponseWriter, playlist *videoproxy.PlaylistResult) {
	w.Header().Set("Content-Type", playlist.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, playlist.Text); err != nil {
		slog.Warn("[VIDEO-PROXY] failed to write playlist response", "error", err)
	}
	metrics.VideoRequestsTotal.WithLabelValues(metrics.VideoKindPlaylist, metrics.OutcomeOK).Inc()
}

// relayStream mirrors the origin response onto the client and copies bytes
// until one side ends. A departing client is normal for media streams; it is
// counted and the origin read is released.
func (h *Handler) relayStream(w http.ResponseWriter, r *http.Request, resourceURL string, stream *videoproxy.StreamResult) {
	defer stream.Body.Close()

	if stream.ContentType != "" {
		w.Header().Set("Content-Type", stream.ContentType)
	}
	if stream.ContentRange != "" {
		w.Header().Set("Content-Range", stream.ContentRange)
	}
	if stream.AcceptRanges != "" {
		w.Header().Set("Accept-Ranges", stream.AcceptRanges)
	}
	if stream.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	}
	w.WriteHeader(stream.Status)

	if _, err := io.Copy(w, stream.Body); err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			metrics.StreamCancellationsTotal.Inc()
			metrics.VideoRequestsTotal.WithLabelValues(metrics.VideoKindStream, metrics.OutcomeOK).Inc()
			return
		}
		slog.Warn("[VIDEO-PROXY] stream copy ended with error",
			"url", resourceURL,
			"error", err,
		)
		metrics.VideoRequestsTotal.WithLabelValues(metrics.VideoKindStream, metrics.OutcomeError).Inc()
		return
	}
	metrics.VideoRequestsTotal.WithLabelValues(metrics.VideoKindStream, metrics.OutcomeOK).Inc()
}

// handleServiceError converts gateway errors to HTTP responses. Origin
// failures surface as errors rather than degrading into an empty stream.
func handleServiceError(w http.ResponseWriter, resourceURL string, err error) {
	switch {
	case errors.Is(err, videoproxy.ErrMissingURL):
		writeErrorResponse(w, http.StatusBadRequest, "missing url parameter")
	case errors.Is(err, videoproxy.ErrInvalidURL):
		writeErrorResponse(w, http.StatusBadRequest, "invalid url parameter")
	case errors.Is(err, videoproxy.ErrManifestTooLarge):
		writeErrorResponse(w, http.StatusBadGateway, "manifest too large")
	case errors.Is(err, videoproxy.ErrOriginStatus):
		writeErrorResponse(w, http.StatusBadGateway, "origin returned an error")
	case errors.Is(err, videoproxy.ErrOriginFetch):
		writeErrorResponse(w, http.StatusBadGateway, "failed to reach origin")
	default:
		slog.Error("[VIDEO-PROXY] unhandled service error",
			"error", err,
		)
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
	}
	if videoproxy.IsFatalOriginError(err) {
		kind := metrics.VideoKindStream
		if strings.HasSuffix(strings.ToLower(resourceURL), ".m3u8") {
			kind = metrics.VideoKindPlaylist
		}
		metrics.VideoRequestsTotal.WithLabelValues(kind, metrics.OutcomeError).Inc()
	}
}

// writeErrorResponse writes a plain text error response.
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(message)); err != nil {
		slog.Warn("[VIDEO-PROXY] failed to write error response",
			"status", status,
			"message", message,
			"error", err,
		)
	}
}
