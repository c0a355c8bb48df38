package commands

import (
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/wallpaint/internal/backend/commandstructure"
	"github.com/jo-hoe/wallpaint/internal/imageio"
)

const CropCommandName = "CropCommand"

var cropAnchors = map[string]imaging.Anchor{
	"center":      imaging.Center,
	"top":         imaging.Top,
	"bottom":      imaging.Bottom,
	"left":        imaging.Left,
	"right":       imaging.Right,
	"topleft":     imaging.TopLeft,
	"topright":    imaging.TopRight,
	"bottomleft":  imaging.BottomLeft,
	"bottomright": imaging.BottomRight,
}

// CropParams represents typed parameters for crop command
type CropParams struct {
	Height      int
	Width       int
	Anchor      string
	JPEGQuality int
}

// NewCropParamsFromMap creates CropParams from a generic map
func NewCropParamsFromMap(params map[string]any) (*CropParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"height", "width"}); err != nil {
		return nil, err
	}

	p := &CropParams{
		Height:      commandstructure.GetIntParam(params, "height", 0),
		Width:       commandstructure.GetIntParam(params, "width", 0),
		Anchor:      commandstructure.GetStringParam(params, "anchor", "center"),
		JPEGQuality: commandstructure.GetIntParam(params, "jpegQuality", imageio.DefaultJPEGQuality),
	}
	if p.Height <= 0 {
		return nil, fmt.Errorf("height must be positive, got %d", p.Height)
	}
	if p.Width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", p.Width)
	}
	if _, ok := cropAnchors[p.Anchor]; !ok {
		return nil, fmt.Errorf("unsupported anchor: %s", p.Anchor)
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpegQuality must be between 1 and 100, got %d", p.JPEGQuality)
	}
	return p, nil
}

// CropCommand cuts the image down to a fixed frame. Dimensions larger than
// the image are limited to the image size.
type CropCommand struct {
	name   string
	params *CropParams
}

// NewCropCommand creates a new crop command from configuration parameters
func NewCropCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewCropParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &CropCommand{name: CropCommandName, params: typedParams}, nil
}

func (c *CropCommand) Name() string {
	return c.name
}

func (c *CropCommand) GetParams() *CropParams {
	return c.params
}

func (c *CropCommand) Execute(imageData []byte) ([]byte, error) {
	img, info, err := decodeImage(c.name, imageData)
	if err != nil {
		return nil, err
	}

	if c.params.Width >= info.Width && c.params.Height >= info.Height {
		slog.Debug("CropCommand: no crop needed, dimensions already smaller or equal",
			"width", info.Width,
			"height", info.Height)
		return imageData, nil
	}

	cropWidth := min(c.params.Width, info.Width)
	cropHeight := min(c.params.Height, info.Height)
	slog.Debug("CropCommand: cropping image",
		"original_width", info.Width,
		"original_height", info.Height,
		"crop_width", cropWidth,
		"crop_height", cropHeight,
		"anchor", c.params.Anchor)

	cropped := imaging.CropAnchor(img, cropWidth, cropHeight, cropAnchors[c.params.Anchor])
	return encodeLike(c.name, cropped, info, c.params.JPEGQuality)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(CropCommandName, NewCropCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", CropCommandName, err))
	}
}
