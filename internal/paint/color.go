package paint

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// FallbackColor is stored when an upload does not carry a color.
const FallbackColor = "#ff0000"

// Color is a paint color with 8-bit red, green and blue channels.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// ChannelOrder is the byte order a buffer consumer expects.
type ChannelOrder string

const (
	RGB ChannelOrder = "RGB"
	BGR ChannelOrder = "BGR"
)

// ParseChannelOrder parses a channel order name case-insensitively.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch ChannelOrder(strings.ToUpper(strings.TrimSpace(s))) {
	case RGB:
		return RGB, nil
	case BGR:
		return BGR, nil
	default:
		return "", fmt.Errorf("unsupported channel order: %q", s)
	}
}

// ParseHexColor parses "#rrggbb" or "rrggbb", case-insensitive.
func ParseHexColor(s string) (Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("%w: %q must contain exactly 6 hex digits", ErrInvalidColorFormat, s)
	}

	var channels [3]uint8
	for i := range channels {
		v, err := strconv.ParseUint(hex[2*i:2*i+2], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q contains a non-hex character", ErrInvalidColorFormat, s)
		}
		channels[i] = uint8(v)
	}
	return Color{R: channels[0], G: channels[1], B: channels[2]}, nil
}

// StorageString returns the lowercase "#rrggbb" form accepted by ParseHexColor.
func (c Color) StorageString() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string {
	return c.StorageString()
}

// DisplayOrder returns the three channel values in the order a consumer
// expects. Values are never altered, only reordered.
func (c Color) DisplayOrder(order ChannelOrder) (int, int, int) {
	if order == BGR {
		return int(c.B), int(c.G), int(c.R)
	}
	return int(c.R), int(c.G), int(c.B)
}

// RGBA returns the opaque color.RGBA value.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

// NormalizeHexColor validates s and returns its storage form. An empty
// string yields FallbackColor.
func NormalizeHexColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FallbackColor, nil
	}
	c, err := ParseHexColor(s)
	if err != nil {
		return "", err
	}
	return c.StorageString(), nil
}
