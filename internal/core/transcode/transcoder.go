// Package transcode resizes and re-encodes source images into the gateway's
// two fixed output presets. A transform failure is never fatal: the original
// bytes come back with a best-guess MIME type, because image delivery must not
// hard-fail on a transform error.
package transcode

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"Medigate/internal/metrics"
)

// Result is the outcome of a transcode: the payload to serve and its MIME
// type. MimeType is always a supported output type, or the pass-through type
// for animated and unsupported inputs.
type Result struct {
	Payload  []byte
	MimeType string
}

// Transcoder transforms source image bytes into one of the output presets.
type Transcoder interface {
	Transcode(data []byte, mimeType string, class SizeClass, quality int, format Format) Result
}

// ImageTranscoder implements Transcoder using the imaging library for
// resizing and the webp/avif encoders for output.
type ImageTranscoder struct{}

// NewTranscoder creates a new ImageTranscoder.
func NewTranscoder() Transcoder {
	return &ImageTranscoder{}
}

// Transcode validates the declared MIME type against the allow-list, resizes
// supported static images to the preset width, and re-encodes them in the
// target format at the given quality. Animated and unsupported inputs pass
// through with a normalized MIME type. Any decode or encode failure degrades
// to the original bytes.
func (t *ImageTranscoder) Transcode(data []byte, mimeType string, class SizeClass, quality int, format Format) Result {
	normalized := NormalizeMimeType(mimeType)

	if !allowedMimeTypes[normalized] {
		return Result{Payload: data, MimeType: guessMimeType(data, mimeType)}
	}

	// Animated GIFs pass through: the gateway resizes stills only.
	if normalized == "image/gif" && isAnimatedGIF(data) {
		return Result{Payload: data, MimeType: "image/gif"}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return t.fallback(data, mimeType, "decode", err)
	}

	img = resizeToClass(img, class)

	var buf bytes.Buffer
	switch format {
	case FormatAVIF:
		err = avif.Encode(&buf, img, avif.Options{Quality: quality})
	default:
		err = webp.Encode(&buf, img, webp.Options{Quality: quality})
	}
	if err != nil {
		return t.fallback(data, mimeType, "encode", err)
	}
	if buf.Len() == 0 {
		return t.fallback(data, mimeType, "encode", errEmptyOutput)
	}

	return Result{Payload: buf.Bytes(), MimeType: format.MimeType()}
}

var errEmptyOutput = errors.New("encoder produced no output")

// fallback returns the original bytes when a transform step fails.
func (t *ImageTranscoder) fallback(data []byte, mimeType, stage string, err error) Result {
	metrics.TranscodeFallbacksTotal.Inc()
	slog.Warn("[TRANSCODE] falling back to original payload",
		"stage", stage,
		"declared_mime", mimeType,
		"size_bytes", len(data),
		"error", err,
	)
	return Result{Payload: data, MimeType: guessMimeType(data, mimeType)}
}

// resizeToClass scales img down to the preset's maximum width, preserving
// aspect ratio. Images already within bounds are not upscaled.
func resizeToClass(img image.Image, class SizeClass) image.Image {
	maxWidth := class.MaxWidth()
	if img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}

// isAnimatedGIF reports whether data is a GIF with more than one frame.
// Undecodable data is treated as animated so it passes through untouched.
func isAnimatedGIF(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return true
	}
	return len(g.Image) > 1
}
