package commands

import (
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/wallpaint/internal/backend/commandstructure"
	"github.com/jo-hoe/wallpaint/internal/imageio"
)

const ScaleCommandName = "ScaleCommand"

// ScaleParams represents typed parameters for scale command. A zero bound is
// unconstrained; images already inside the bounds are left untouched.
type ScaleParams struct {
	MaxWidth    int
	MaxHeight   int
	JPEGQuality int
}

// NewScaleParamsFromMap creates ScaleParams from a generic map
func NewScaleParamsFromMap(params map[string]any) (*ScaleParams, error) {
	if err := commandstructure.ValidateAnyParam(params, []string{"maxWidth", "maxHeight"}); err != nil {
		return nil, err
	}

	maxWidth := commandstructure.GetIntParam(params, "maxWidth", 0)
	maxHeight := commandstructure.GetIntParam(params, "maxHeight", 0)
	quality := commandstructure.GetIntParam(params, "jpegQuality", imageio.DefaultJPEGQuality)

	return newScaleParams(maxWidth, maxHeight, quality)
}

func newScaleParams(maxWidth, maxHeight, quality int) (*ScaleParams, error) {
	if maxWidth < 0 || maxHeight < 0 {
		return nil, fmt.Errorf("bounds must not be negative, got %dx%d", maxWidth, maxHeight)
	}
	if maxWidth == 0 && maxHeight == 0 {
		return nil, fmt.Errorf("at least one of maxWidth or maxHeight must be positive")
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpegQuality must be between 1 and 100, got %d", quality)
	}
	return &ScaleParams{MaxWidth: maxWidth, MaxHeight: maxHeight, JPEGQuality: quality}, nil
}

// ScaleCommand shrinks an image to fit the configured bounds, keeping the
// aspect ratio.
type ScaleCommand struct {
	name   string
	params *ScaleParams
}

// NewScaleCommand creates a new scale command from configuration parameters
func NewScaleCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ScaleCommand{name: ScaleCommandName, params: typedParams}, nil
}

// NewScaleCommandWithParams creates a new scale command from concrete typed parameters
func NewScaleCommandWithParams(maxWidth, maxHeight int) (*ScaleCommand, error) {
	typedParams, err := newScaleParams(maxWidth, maxHeight, imageio.DefaultJPEGQuality)
	if err != nil {
		return nil, err
	}
	return &ScaleCommand{name: ScaleCommandName, params: typedParams}, nil
}

func (c *ScaleCommand) Name() string {
	return c.name
}

func (c *ScaleCommand) GetParams() *ScaleParams {
	return c.params
}

func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, info, err := decodeImage(c.name, imageData)
	if err != nil {
		return nil, err
	}

	width, height := fitDimensions(info.Width, info.Height, c.params.MaxWidth, c.params.MaxHeight)
	if width == info.Width && height == info.Height {
		slog.Debug("ScaleCommand: image already within bounds; skipping scaling",
			"width", info.Width,
			"height", info.Height)
		return imageData, nil
	}

	slog.Debug("ScaleCommand: scaling image",
		"original_width", info.Width,
		"original_height", info.Height,
		"scaled_width", width,
		"scaled_height", height)

	scaled := imaging.Resize(img, width, height, imaging.Lanczos)
	return encodeLike(c.name, scaled, info, c.params.JPEGQuality)
}

// fitDimensions returns the largest size inside the bounds that keeps the
// aspect ratio. Images never grow.
func fitDimensions(width, height, maxWidth, maxHeight int) (int, int) {
	scale := 1.0
	if maxWidth > 0 && width > maxWidth {
		scale = min(scale, float64(maxWidth)/float64(width))
	}
	if maxHeight > 0 && height > maxHeight {
		scale = min(scale, float64(maxHeight)/float64(height))
	}
	if scale == 1.0 {
		return width, height
	}
	return max(1, int(float64(width)*scale+0.5)), max(1, int(float64(height)*scale+0.5))
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(ScaleCommandName, NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", ScaleCommandName, err))
	}
}
