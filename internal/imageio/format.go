package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"slices"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

var (
	// ErrUnsupportedFormat is returned for content that is not one of the accepted formats.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEmptyImage is returned for zero-length uploads.
	ErrEmptyImage = errors.New("empty image data")
)

var acceptedFormats = []string{FormatJPEG, FormatPNG, FormatBMP, FormatTIFF}

// AcceptedFormats returns the formats uploads may use.
func AcceptedFormats() []string {
	return slices.Clone(acceptedFormats)
}

// IsAccepted reports whether format is one of the accepted upload formats.
func IsAccepted(format string) bool {
	return slices.Contains(acceptedFormats, format)
}

// Info describes an image without decoding its pixels.
type Info struct {
	Format string
	Width  int
	Height int
}

// Sniff inspects the header of data and returns its format and dimensions.
// Content in a format outside AcceptedFormats yields ErrUnsupportedFormat.
func Sniff(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrEmptyImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if !IsAccepted(format) {
		return Info{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnsupportedFormat, cfg.Width, cfg.Height)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Extension returns the canonical file extension (without dot) for a format.
func Extension(format string) string {
	switch format {
	case FormatJPEG:
		return "jpg"
	case FormatTIFF:
		return "tiff"
	default:
		return format
	}
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// FormatFromName maps a file name or extension to a format name.
func FormatFromName(name string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(name, "."))
	}
	switch ext {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}
