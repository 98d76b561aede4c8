package transcode

// Format is the target output encoding for transcoded images.
type Format string

const (
	// FormatWebP is the default output format.
	FormatWebP Format = "webp"
	// FormatAVIF is the alternative output format.
	FormatAVIF Format = "avif"
)

// MimeType returns the MIME type for the output format.
func (f Format) MimeType() string {
	if f == FormatAVIF {
		return "image/avif"
	}
	return "image/webp"
}

// ParseFormat maps a request parameter onto a Format. Empty defaults to WebP;
// unknown values report ok=false.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "", "webp":
		return FormatWebP, true
	case "avif":
		return FormatAVIF, true
	default:
		return "", false
	}
}

// SizeClass is one of the two fixed output-size presets. There is no
// arbitrary-width resizing: every request maps onto banner or thumbnail.
type SizeClass int

const (
	// ClassBanner is the large preset used for full-width display.
	ClassBanner SizeClass = iota
	// ClassThumbnail is the small preset used for list and grid display.
	ClassThumbnail
)

const (
	bannerMaxWidth    = 1920
	thumbnailMaxWidth = 240

	// classThreshold splits requested widths between the two presets.
	classThreshold = 480
)

// MaxWidth returns the preset's maximum output width in pixels.
func (c SizeClass) MaxWidth() int {
	if c == ClassThumbnail {
		return thumbnailMaxWidth
	}
	return bannerMaxWidth
}

// String returns the preset name.
func (c SizeClass) String() string {
	if c == ClassThumbnail {
		return "thumbnail"
	}
	return "banner"
}

// ClassForWidth maps a requested width onto a preset. Zero means the unscaled
// class, which is the banner preset; small explicit widths select thumbnail.
func ClassForWidth(w int) SizeClass {
	if w > 0 && w < classThreshold {
		return ClassThumbnail
	}
	return ClassBanner
}
