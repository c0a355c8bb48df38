package imageio

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 92

// Decode sniffs and decodes data. EXIF orientation is applied so that pixel
// coordinates match what a browser displays for the same file.
func Decode(data []byte) (image.Image, Info, error) {
	info, err := Sniff(data)
	if err != nil {
		return nil, Info{}, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		slog.Error("imageio: failed to decode image", "format", info.Format, "error", err)
		return nil, Info{}, fmt.Errorf("failed to decode %s image: %w", info.Format, err)
	}

	bounds := img.Bounds()
	info.Width, info.Height = bounds.Dx(), bounds.Dy()
	slog.Debug("imageio: image decoded",
		"format", info.Format,
		"width", info.Width,
		"height", info.Height,
		"input_size_bytes", len(data))
	return img, info, nil
}

// Encode writes img in the given format. quality only applies to JPEG.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	target, err := imaging.FormatFromExtension(Extension(format))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, target, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %w", format, err)
	}
	slog.Debug("imageio: image encoded", "format", format, "output_size_bytes", buf.Len())
	return buf.Bytes(), nil
}
