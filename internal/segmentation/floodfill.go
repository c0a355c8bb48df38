package segmentation

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

// DefaultTolerances are the CIELAB distances used when none are configured.
var DefaultTolerances = []float64{6, 12, 24}

const (
	// Regions covering more than this share of the image are likely a leak
	// through an edge rather than a single surface.
	leakCoverage = 0.9
	// Regions below this share of the image are likely noise around the seed.
	speckCoverage = 0.001
)

// FloodFill proposes one region per tolerance by growing a 4-connected area
// from the seed pixel, comparing colors in CIELAB. It needs no model and is
// useful for local runs and tests.
type FloodFill struct {
	tolerances []float64
}

func NewFloodFill(tolerances []float64) (*FloodFill, error) {
	if len(tolerances) == 0 {
		tolerances = DefaultTolerances
	}
	sorted := make([]float64, len(tolerances))
	copy(sorted, tolerances)
	sort.Float64s(sorted)
	for _, tol := range sorted {
		if tol <= 0 {
			return nil, fmt.Errorf("flood fill tolerance must be positive, got %v", tol)
		}
	}
	return &FloodFill{tolerances: sorted}, nil
}

func (f *FloodFill) Segment(ctx context.Context, img image.Image, pt image.Point) ([]paint.Candidate, error) {
	bounds := img.Bounds()
	if !pt.In(bounds) {
		return nil, fmt.Errorf("seed %v is outside image bounds %v", pt, bounds)
	}

	plane := labPlane(img)
	width, height := bounds.Dx(), bounds.Dy()
	seed := (pt.Y-bounds.Min.Y)*width + (pt.X - bounds.Min.X)
	total := float64(width * height)

	candidates := make([]paint.Candidate, 0, len(f.tolerances))
	for _, tol := range f.tolerances {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mask, meanDist := grow(plane, width, height, seed, tol)
		score := 1 - meanDist/tol
		coverage := float64(mask.Count()) / total
		if coverage > leakCoverage || coverage < speckCoverage {
			score /= 2
		}
		candidates = append(candidates, paint.Candidate{Mask: mask, Score: score})
	}
	return candidates, nil
}

// lab is a CIELAB triple scaled to the usual 0-100 lightness range.
type lab [3]float64

func (c lab) distance(o lab) float64 {
	dl, da, db := c[0]-o[0], c[1]-o[1], c[2]-o[2]
	return math.Sqrt(dl*dl + da*da + db*db)
}

func labPlane(img image.Image) []lab {
	bounds := img.Bounds()
	width := bounds.Dx()
	plane := make([]lab, width*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := (y - bounds.Min.Y) * width
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c, _ := colorful.MakeColor(img.At(x, y))
			l, a, b := c.Lab()
			plane[row+x-bounds.Min.X] = lab{l * 100, a * 100, b * 100}
		}
	}
	return plane
}

// grow runs a breadth-first fill from seed and returns the region together
// with the mean CIELAB distance of its pixels to the seed color.
func grow(plane []lab, width, height, seed int, tol float64) (paint.Mask, float64) {
	mask := paint.NewMask(width, height)
	ref := plane[seed]

	queue := []int{seed}
	mask.Bits[seed] = true
	sum := 0.0
	n := 0

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		sum += plane[i].distance(ref)
		n++

		x, y := i%width, i/width
		neighbours := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
		for _, nb := range neighbours {
			nx, ny := nb[0], nb[1]
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			j := ny*width + nx
			if mask.Bits[j] {
				continue
			}
			if plane[j].distance(ref) <= tol {
				mask.Bits[j] = true
				queue = append(queue, j)
			}
		}
	}
	return mask, sum / float64(n)
}
