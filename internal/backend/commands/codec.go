package commands

import (
	"fmt"
	"image"

	"github.com/jo-hoe/wallpaint/internal/imageio"
)

func decodeImage(name string, data []byte) (image.Image, imageio.Info, error) {
	img, info, err := imageio.Decode(data)
	if err != nil {
		return nil, imageio.Info{}, fmt.Errorf("%s: failed to decode image: %w", name, err)
	}
	return img, info, nil
}

// encodeLike re-encodes img in the format the command received it in.
func encodeLike(name string, img image.Image, info imageio.Info, quality int) ([]byte, error) {
	out, err := imageio.Encode(img, info.Format, quality)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode image: %w", name, err)
	}
	return out, nil
}
