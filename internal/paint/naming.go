package paint

import (
	"fmt"
	"image"
	"strings"
)

// ArtifactName derives the output identifier for a painted image. It encodes
// the record id and the point actually used, so repeated requests for the
// same record never collide with each other's artifacts unless they are
// identical.
func ArtifactName(recordID string, pt image.Point, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("painted_%s_%d_%d.%s", recordID, pt.X, pt.Y, ext)
}

// ClampPoint returns pt when it lies inside bounds and the center of bounds
// otherwise. The second return value reports whether a substitution happened.
func ClampPoint(pt image.Point, bounds image.Rectangle) (image.Point, bool) {
	if pt.In(bounds) {
		return pt, false
	}
	center := image.Point{
		X: bounds.Min.X + bounds.Dx()/2,
		Y: bounds.Min.Y + bounds.Dy()/2,
	}
	return center, true
}
