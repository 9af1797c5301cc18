package gifenc

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ParseTransparent parses "0xRRGGBB" or "0xRRGGBBAA". GIF transparency is a
// palette index, not an alpha value, so an alpha byte is accepted and dropped.
func ParseTransparent(s string) (color.NRGBA, error) {
	hex := strings.TrimSpace(s)
	if !strings.HasPrefix(hex, "0x") && !strings.HasPrefix(hex, "0X") {
		return color.NRGBA{}, fmt.Errorf("transparent color %q: want 0xRRGGBB or 0xRRGGBBAA", s)
	}
	hex = hex[2:]
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("transparent color %q: want 0xRRGGBB or 0xRRGGBBAA", s)
	}
	v, err := strconv.ParseUint(hex[:6], 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("transparent color %q: %w", s, err)
	}
	if len(hex) == 8 {
		if _, err := strconv.ParseUint(hex[6:], 16, 8); err != nil {
			return color.NRGBA{}, fmt.Errorf("transparent color %q: %w", s, err)
		}
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
