package blocks

import (
	"strconv"
	"strings"
)

// Color is a non-premultiplied RGBA color.
type Color struct {
	R, G, B, A uint8
}

func RGBA(r, g, b, a uint8) Color { return Color{R: r, G: g, B: b, A: a} }

// Packed returns the color as 0xRRGGBBAA.
func (c Color) Packed() uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

func Unpacked(p uint32) Color {
	return Color{R: uint8(p >> 24), G: uint8(p >> 16), B: uint8(p >> 8), A: uint8(p)}
}

// ParseHex parses "#rrggbb", "rrggbb" or the same with a trailing alpha byte.
// A missing alpha channel means fully opaque.
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return Color{}, InvalidInput("hex color %q: want 6 or 8 digits", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, InvalidInput("hex color %q: %v", s, err)
	}
	if len(h) == 6 {
		v = v<<8 | 0xFF
	}
	return Unpacked(uint32(v)), nil
}

// Hex formats the color as "#rrggbb".
func (c Color) Hex() string {
	const digits = "0123456789abcdef"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range [3]uint8{c.R, c.G, c.B} {
		b[1+2*i] = digits[v>>4]
		b[2+2*i] = digits[v&0xF]
	}
	return string(b)
}
