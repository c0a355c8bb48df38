package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/jo-hoe/wallpaint/internal/paint"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const swatchTemplate = `<svg xmlns="http://www.w3.org/2000/svg" width="%[1]d" height="%[1]d" viewBox="0 0 100 100">
	<rect x="4" y="4" width="92" height="92" rx="12" ry="12" fill="%[2]s" stroke="#555555" stroke-width="2"/>
</svg>`

// RenderSwatch renders a rounded square preview of c as a PNG of size x size pixels.
func RenderSwatch(c paint.Color, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid swatch size: %d", size)
	}
	svg := fmt.Sprintf(swatchTemplate, size, c.StorageString())
	return renderSVGToPNG([]byte(svg), size, size)
}

// renderSVGToPNG renders an SVG byte slice into a PNG with the given target dimensions.
func renderSVGToPNG(svgData []byte, targetW, targetH int) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.Transparent}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
