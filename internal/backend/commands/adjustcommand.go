package commands

import (
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/jo-hoe/wallpaint/internal/backend/commandstructure"
	"github.com/jo-hoe/wallpaint/internal/imageio"
)

const AdjustCommandName = "AdjustCommand"

// AdjustParams holds tonal corrections. Brightness, Contrast and Saturation
// are percentages in [-100, 100]; Gamma 1 and Sharpen 0 are no-ops.
type AdjustParams struct {
	Brightness  float64
	Contrast    float64
	Saturation  float64
	Gamma       float64
	Sharpen     float64
	JPEGQuality int
}

func NewAdjustParamsFromMap(params map[string]any) (*AdjustParams, error) {
	if err := commandstructure.ValidateAnyParam(params, []string{"brightness", "contrast", "saturation", "gamma", "sharpen"}); err != nil {
		return nil, err
	}

	p := &AdjustParams{
		Brightness:  commandstructure.GetFloatParam(params, "brightness", 0),
		Contrast:    commandstructure.GetFloatParam(params, "contrast", 0),
		Saturation:  commandstructure.GetFloatParam(params, "saturation", 0),
		Gamma:       commandstructure.GetFloatParam(params, "gamma", 1),
		Sharpen:     commandstructure.GetFloatParam(params, "sharpen", 0),
		JPEGQuality: commandstructure.GetIntParam(params, "jpegQuality", imageio.DefaultJPEGQuality),
	}

	for name, v := range map[string]float64{"brightness": p.Brightness, "contrast": p.Contrast, "saturation": p.Saturation} {
		if v < -100 || v > 100 {
			return nil, fmt.Errorf("%s must be between -100 and 100, got %v", name, v)
		}
	}
	if p.Gamma <= 0 {
		return nil, fmt.Errorf("gamma must be positive, got %v", p.Gamma)
	}
	if p.Sharpen < 0 {
		return nil, fmt.Errorf("sharpen must not be negative, got %v", p.Sharpen)
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpegQuality must be between 1 and 100, got %d", p.JPEGQuality)
	}
	return p, nil
}

// AdjustCommand applies brightness, contrast, saturation, gamma and
// sharpening to the painted result.
type AdjustCommand struct {
	name   string
	params *AdjustParams
}

func NewAdjustCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewAdjustParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &AdjustCommand{name: AdjustCommandName, params: typedParams}, nil
}

func (c *AdjustCommand) Name() string {
	return c.name
}

func (c *AdjustCommand) GetParams() *AdjustParams {
	return c.params
}

func (c *AdjustCommand) Execute(imageData []byte) ([]byte, error) {
	img, info, err := decodeImage(c.name, imageData)
	if err != nil {
		return nil, err
	}

	slog.Debug("AdjustCommand: adjusting image",
		"brightness", c.params.Brightness,
		"contrast", c.params.Contrast,
		"saturation", c.params.Saturation,
		"gamma", c.params.Gamma,
		"sharpen", c.params.Sharpen)

	out := imaging.Clone(img)
	if c.params.Brightness != 0 {
		out = imaging.AdjustBrightness(out, c.params.Brightness)
	}
	if c.params.Contrast != 0 {
		out = imaging.AdjustContrast(out, c.params.Contrast)
	}
	if c.params.Saturation != 0 {
		out = imaging.AdjustSaturation(out, c.params.Saturation)
	}
	if c.params.Gamma != 1 {
		out = imaging.AdjustGamma(out, c.params.Gamma)
	}
	if c.params.Sharpen > 0 {
		out = imaging.Sharpen(out, c.params.Sharpen)
	}

	return encodeLike(c.name, out, info, c.params.JPEGQuality)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register(AdjustCommandName, NewAdjustCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", AdjustCommandName, err))
	}
}
