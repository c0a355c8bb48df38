package segmentation

import (
	"fmt"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

// decodeRLE expands row-major run lengths into a mask. Runs alternate
// between uncovered and covered pixels, starting with an uncovered run
// (which may be zero).
func decodeRLE(counts []int, width, height int) (paint.Mask, error) {
	if width <= 0 || height <= 0 {
		return paint.Mask{}, fmt.Errorf("invalid mask size %dx%d", width, height)
	}
	mask := paint.NewMask(width, height)
	pos := 0
	covered := false
	for i, n := range counts {
		if n < 0 {
			return paint.Mask{}, fmt.Errorf("negative run length %d at index %d", n, i)
		}
		if pos+n > len(mask.Bits) {
			return paint.Mask{}, fmt.Errorf("run lengths exceed mask size %d", len(mask.Bits))
		}
		if covered {
			for j := pos; j < pos+n; j++ {
				mask.Bits[j] = true
			}
		}
		pos += n
		covered = !covered
	}
	if pos != len(mask.Bits) {
		return paint.Mask{}, fmt.Errorf("run lengths cover %d pixels, expected %d", pos, len(mask.Bits))
	}
	return mask, nil
}
