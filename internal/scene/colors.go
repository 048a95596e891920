package scene

import (
	"fmt"
	"math"
)

// Color is an sRGB triplet used for curve display.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex returns the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// wheelSize is the number of distinct hues on the auto-assignment
// wheel; the eighth curve reuses the first hue.
const wheelSize = 7

// WheelColor returns the auto-assigned color for the index-th curve:
// full-saturation hues spaced 360/7 degrees apart, cycling.
func WheelColor(index int) Color {
	if index < 0 {
		index = -index
	}
	hue := 360 * float64(index%wheelSize) / wheelSize
	return HSV(hue, 1, 1)
}

// HSV converts hue (degrees), saturation and value (both 0..1) to an
// sRGB color.
func HSV(h, s, v float64) Color {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return Color{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
	}
}
