package paint

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/clone"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// NativeOrder is the channel order of *image.RGBA pixel buffers.
const NativeOrder = RGB

// DefaultBlendAlpha is used when blending is enabled without an explicit alpha.
const DefaultBlendAlpha = 0.7

// BlendPolicy controls how covered pixels are recolored. When disabled every
// covered pixel is replaced by the paint color.
type BlendPolicy struct {
	Enabled bool
	Alpha   float64
}

func (p BlendPolicy) Validate() error {
	if p.Enabled && (p.Alpha < 0 || p.Alpha > 1) {
		return fmt.Errorf("blend alpha must be between 0 and 1, got %f", p.Alpha)
	}
	return nil
}

// ApplyColor returns a copy of src where every pixel covered by mask is set
// to c. Pixels outside the mask keep their original value and src itself is
// never modified.
func ApplyColor(src image.Image, mask Mask, c Color, policy BlendPolicy) (*image.RGBA, error) {
	bounds := src.Bounds()
	if err := mask.Validate(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	dst := clone.AsRGBA(src)

	r, g, b := c.DisplayOrder(NativeOrder)
	native := [3]uint8{uint8(r), uint8(g), uint8(b)}
	target := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}

	parallelFor(mask.Height, func(y int) {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+mask.Width*4]
		bits := mask.Bits[y*mask.Width : (y+1)*mask.Width]
		for x, covered := range bits {
			if !covered {
				continue
			}
			px := row[x*4 : x*4+4 : x*4+4]
			if policy.Enabled {
				original := colorful.Color{R: float64(px[0]) / 255, G: float64(px[1]) / 255, B: float64(px[2]) / 255}
				px[0], px[1], px[2] = original.BlendRgb(target, policy.Alpha).RGB255()
			} else {
				px[0], px[1], px[2] = native[0], native[1], native[2]
			}
			px[3] = 0xff
		}
	})

	return dst, nil
}
