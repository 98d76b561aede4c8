// Package imageproxy provides HTTP handlers for the image gateway.
// It serves proxied, transcoded images from external origins and accepts
// direct uploads for client-local content that cannot be proxied.
package imageproxy

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"Medigate/internal/core/imageproxy"
	"Medigate/internal/core/transcode"
	"Medigate/internal/core/upload"
)

// DefaultMaxUploadBytes caps the request body read on the upload endpoint.
const DefaultMaxUploadBytes = 10 << 20

// Handler handles HTTP requests for the image gateway.
type Handler struct {
	service        imageproxy.Service
	transcoder     transcode.Transcoder
	uploader       upload.Service
	maxUploadBytes int64
}

// NewHandler creates a new image gateway handler. uploader may be nil when no
// object storage is configured; the upload endpoint then rejects persistence.
func NewHandler(service imageproxy.Service, transcoder transcode.Transcoder, uploader upload.Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		service:        service,
		transcoder:     transcoder,
		uploader:       uploader,
		maxUploadBytes: maxUploadBytes,
	}
}

// transformParams holds the parsed query parameters shared by both endpoints.
type transformParams struct {
	width   int
	quality int
	format  transcode.Format
}

// parseTransformParams reads w, q and format from the query string, applying
// the defaults here so both endpoints and the ETag see the same normalized
// tuple regardless of which parameters the caller spelled out.
func parseTransformParams(r *http.Request) (transformParams, error) {
	p := transformParams{quality: imageproxy.DefaultQuality}

	if v := r.URL.Query().Get("w"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("invalid width %q", v)
		}
		p.width = n
	}
	if v := r.URL.Query().Get("q"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return p, fmt.Errorf("invalid quality %q", v)
		}
		p.quality = n
	}
	format, ok := transcode.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		return p, fmt.Errorf("unsupported format %q", r.URL.Query().Get("format"))
	}
	p.format = format

	return p, nil
}

// HandleProxy handles GET /imgProxy?url=...&w=...&q=...&format=...
// It resolves the image through the gateway (dedup, cache, origin fetch,
// transcode) and returns the result with immutable caching headers.
func (h *Handler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		writeErrorResponse(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	params, err := parseTransformParams(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	// The transform tuple fully determines the payload, so the ETag is a
	// digest of it. Source content is treated as immutable per URL.
	etag := proxyETag(sourceURL, params)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	result, err := h.service.GetImage(r.Context(), imageproxy.Request{
		SourceURL: sourceURL,
		Width:     params.width,
		Quality:   params.quality,
		Format:    params.format,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", etag)

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Payload); err != nil {
		slog.Warn("[IMAGE-PROXY] failed to write image response",
			"url", sourceURL,
			"error", err,
		)
	}
}

// HandleUpload handles POST /imgUpload?w=...&q=...&format=...&name=...&persist=1
// The raw request body is transcoded synchronously. With persist=1 the result
// is stored in object storage under name and its permanent URL is returned as
// JSON; otherwise the transcoded bytes come back directly.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	params, err := parseTransformParams(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorResponse(w, http.StatusRequestEntityTooLarge, "upload body too large")
			return
		}
		writeErrorResponse(w, http.StatusBadRequest, "failed to read upload body")
		return
	}
	if len(body) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "empty upload body")
		return
	}

	result := h.transcoder.Transcode(body, r.Header.Get("Content-Type"),
		transcode.ClassForWidth(params.width), params.quality, params.format)

	if r.URL.Query().Get("persist") != "1" {
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result.Payload); err != nil {
			slog.Warn("[IMAGE-PROXY] failed to write upload response", "error", err)
		}
		return
	}

	if h.uploader == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "upload storage is not configured")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeErrorResponse(w, http.StatusBadRequest, "missing name parameter")
		return
	}

	publicURL, err := h.uploader.Upload(r.Context(), result.Payload, name, result.MimeType)
	if err != nil {
		slog.Error("[IMAGE-PROXY] upload to object storage failed",
			"name", name,
			"error", err,
		)
		writeErrorResponse(w, http.StatusBadGateway, "failed to store upload")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"url": publicURL}); err != nil {
		slog.Warn("[IMAGE-PROXY] failed to write upload URL response", "error", err)
	}
}

// proxyETag derives a strong ETag from the full transform tuple.
func proxyETag(sourceURL string, p transformParams) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s", sourceURL, p.width, p.quality, p.format)))
	return fmt.Sprintf(`"%x"`, sum[:16])
}

// handleServiceError converts gateway errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// The client went away; there is nobody left to answer.
		return
	case errors.Is(err, imageproxy.ErrMissingURL):
		writeErrorResponse(w, http.StatusBadRequest, "missing url parameter")
	case errors.Is(err, imageproxy.ErrBlobURL):
		writeErrorResponse(w, http.StatusBadRequest, imageproxy.ErrBlobURL.Error())
	case errors.Is(err, imageproxy.ErrInvalidURL):
		writeErrorResponse(w, http.StatusBadRequest, "invalid url parameter")
	case errors.Is(err, imageproxy.ErrImageTooLarge):
		writeErrorResponse(w, http.StatusBadRequest, "source image too large")
	case errors.Is(err, imageproxy.ErrTimeout):
		writeErrorResponse(w, http.StatusGatewayTimeout, "image request timed out")
	case errors.Is(err, imageproxy.ErrOriginTimeout):
		writeErrorResponse(w, http.StatusGatewayTimeout, "origin request timed out")
	case errors.Is(err, imageproxy.ErrOriginFetch):
		writeErrorResponse(w, http.StatusBadGateway, "failed to fetch from origin")
	case errors.Is(err, imageproxy.ErrEmptyResult):
		writeErrorResponse(w, http.StatusInternalServerError, "empty image result")
	default:
		slog.Error("[IMAGE-PROXY] unhandled service error",
			"error", err,
		)
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeErrorResponse writes a plain text error response.
// For the image proxy, we use simple text responses rather than JSON
// since the expected response is binary image data.
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(message)); err != nil {
		slog.Warn("[IMAGE-PROXY] failed to write error response",
			"status", status,
			"message", message,
			"error", err,
		)
	}
}
