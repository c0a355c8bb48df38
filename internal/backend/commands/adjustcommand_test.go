package commands

import (
	"testing"

	"github.com/jo-hoe/wallpaint/internal/imageio"
)

func TestNewAdjustCommand_Defaults(t *testing.T) {
	command, err := NewAdjustCommand(map[string]any{"brightness": 10})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	params := command.(*AdjustCommand).GetParams()
	if params.Brightness != 10 || params.Gamma != 1 || params.Sharpen != 0 || params.JPEGQuality != imageio.DefaultJPEGQuality {
		t.Errorf("unexpected params %+v", params)
	}
}

func TestNewAdjustCommand_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"no adjustments", map[string]any{}},
		{"brightness out of range", map[string]any{"brightness": 150}},
		{"contrast out of range", map[string]any{"contrast": -101}},
		{"zero gamma", map[string]any{"gamma": 0}},
		{"negative sharpen", map[string]any{"sharpen": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAdjustCommand(tt.params); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestAdjustCommand_Execute(t *testing.T) {
	input := createTestImage(t, 64, 32, imageio.FormatPNG)

	command, err := NewAdjustCommand(map[string]any{"brightness": 100})
	if err != nil {
		t.Fatalf("NewAdjustCommand error: %v", err)
	}
	out, err := command.Execute(input)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	img, info, err := imageio.Decode(out)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if info.Format != imageio.FormatPNG || info.Width != 64 || info.Height != 32 {
		t.Errorf("unexpected output %+v", info)
	}
	// Full brightness pushes every pixel to white.
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("Expected white pixel, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}
