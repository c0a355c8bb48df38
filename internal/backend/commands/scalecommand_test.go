package commands

import (
	"bytes"
	"testing"

	"github.com/jo-hoe/wallpaint/internal/imageio"
)

func TestNewScaleCommand_Params(t *testing.T) {
	command, err := NewScaleCommand(map[string]any{"maxWidth": 800, "jpegQuality": 80})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	scaleCmd, ok := command.(*ScaleCommand)
	if !ok {
		t.Fatal("Expected command to be *ScaleCommand")
	}
	if scaleCmd.Name() != ScaleCommandName {
		t.Errorf("Expected name %s, got %s", ScaleCommandName, scaleCmd.Name())
	}
	params := scaleCmd.GetParams()
	if params.MaxWidth != 800 || params.MaxHeight != 0 || params.JPEGQuality != 80 {
		t.Errorf("unexpected params %+v", params)
	}
}

func TestNewScaleCommand_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"no bounds", map[string]any{}},
		{"zero bounds", map[string]any{"maxWidth": 0, "maxHeight": 0}},
		{"negative", map[string]any{"maxWidth": -5}},
		{"bad quality", map[string]any{"maxWidth": 10, "jpegQuality": 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScaleCommand(tt.params); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestScaleCommand_Execute(t *testing.T) {
	tests := []struct {
		name       string
		maxWidth   int
		maxHeight  int
		wantWidth  int
		wantHeight int
	}{
		{"width bound", 100, 0, 100, 50},
		{"height bound", 0, 20, 40, 20},
		{"both bounds", 100, 10, 20, 10},
	}
	input := createTestImage(t, 400, 200, imageio.FormatPNG)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, err := NewScaleCommandWithParams(tt.maxWidth, tt.maxHeight)
			if err != nil {
				t.Fatalf("NewScaleCommandWithParams error: %v", err)
			}
			out, err := command.Execute(input)
			if err != nil {
				t.Fatalf("Execute error: %v", err)
			}
			info, err := imageio.Sniff(out)
			if err != nil {
				t.Fatalf("Sniff error: %v", err)
			}
			if info.Format != imageio.FormatPNG {
				t.Errorf("Expected format to be preserved, got %s", info.Format)
			}
			if info.Width != tt.wantWidth || info.Height != tt.wantHeight {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantWidth, tt.wantHeight, info.Width, info.Height)
			}
		})
	}
}

func TestScaleCommand_NoUpscale(t *testing.T) {
	input := createTestImage(t, 40, 30, imageio.FormatPNG)
	command, err := NewScaleCommandWithParams(400, 300)
	if err != nil {
		t.Fatalf("NewScaleCommandWithParams error: %v", err)
	}

	out, err := command.Execute(input)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Error("Expected image within bounds to be returned unchanged")
	}
}

func TestScaleCommand_InvalidImage(t *testing.T) {
	command, err := NewScaleCommandWithParams(10, 10)
	if err != nil {
		t.Fatalf("NewScaleCommandWithParams error: %v", err)
	}
	if _, err := command.Execute([]byte("not an image")); err == nil {
		t.Error("Expected error for invalid image data")
	}
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{1000, 500, 100, 0, 100, 50},
		{500, 1000, 0, 100, 50, 100},
		{100, 100, 200, 200, 100, 100},
		{3000, 1, 10, 0, 10, 1},
	}
	for _, tt := range tests {
		gotW, gotH := fitDimensions(tt.w, tt.h, tt.maxW, tt.maxH)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("fitDimensions(%d,%d,%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, tt.maxW, tt.maxH, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}
