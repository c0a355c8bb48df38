package commandstructure

import (
	"testing"
)

func TestGetStringParam(t *testing.T) {
	params := map[string]any{
		"format": "jpeg",
		"width":  123,
	}

	if val := GetStringParam(params, "format", "png"); val != "jpeg" {
		t.Errorf("Expected 'jpeg', got '%s'", val)
	}
	if val := GetStringParam(params, "width", "default"); val != "default" {
		t.Errorf("Expected 'default', got '%s'", val)
	}
	if val := GetStringParam(params, "missing", "default"); val != "default" {
		t.Errorf("Expected 'default', got '%s'", val)
	}
}

func TestGetIntParam(t *testing.T) {
	params := map[string]any{
		"int":     123,
		"int64":   int64(456),
		"float64": float64(789),
		"string":  "not-an-int",
	}

	if val := GetIntParam(params, "int", 0); val != 123 {
		t.Errorf("Expected 123, got %d", val)
	}
	if val := GetIntParam(params, "int64", 0); val != 456 {
		t.Errorf("Expected 456, got %d", val)
	}
	if val := GetIntParam(params, "float64", 0); val != 789 {
		t.Errorf("Expected 789, got %d", val)
	}
	if val := GetIntParam(params, "string", 999); val != 999 {
		t.Errorf("Expected 999, got %d", val)
	}
	if val := GetIntParam(params, "missing", 999); val != 999 {
		t.Errorf("Expected 999, got %d", val)
	}
}

func TestGetFloatParam(t *testing.T) {
	params := map[string]any{
		"float":  1.5,
		"int":    -20,
		"string": " 0.25 ",
		"bad":    "abc",
	}

	tests := []struct {
		key  string
		want float64
	}{
		{"float", 1.5},
		{"int", -20},
		{"string", 0.25},
		{"bad", 7},
		{"missing", 7},
	}
	for _, tt := range tests {
		if got := GetFloatParam(params, tt.key, 7); got != tt.want {
			t.Errorf("GetFloatParam(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestGetBoolParam(t *testing.T) {
	params := map[string]any{
		"native": true,
		"yes":    "Yes",
		"off":    "off",
		"junk":   "maybe",
		"number": 1,
	}

	if !GetBoolParam(params, "native", false) {
		t.Error("Expected native true")
	}
	if !GetBoolParam(params, "yes", false) {
		t.Error("Expected 'Yes' to be true")
	}
	if GetBoolParam(params, "off", true) {
		t.Error("Expected 'off' to be false")
	}
	if !GetBoolParam(params, "junk", true) {
		t.Error("Expected default for unrecognised string")
	}
	if GetBoolParam(params, "number", false) {
		t.Error("Expected default for non-bool type")
	}
}

func TestValidateRequiredParams(t *testing.T) {
	params := map[string]any{
		"width":  100,
		"height": 50,
	}

	if err := ValidateRequiredParams(params, []string{"width", "height"}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := ValidateRequiredParams(params, []string{"width", "quality"}); err == nil {
		t.Error("Expected error for missing required param")
	}
	if err := ValidateRequiredParams(params, []string{}); err != nil {
		t.Errorf("Expected no error for empty required list, got %v", err)
	}
}

func TestValidateAnyParam(t *testing.T) {
	params := map[string]any{"maxWidth": 100}

	if err := ValidateAnyParam(params, []string{"maxWidth", "maxHeight"}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := ValidateAnyParam(params, []string{"brightness", "contrast"}); err == nil {
		t.Error("Expected error when none of the params is present")
	}
}
