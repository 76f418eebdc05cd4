// Package color provides the colors of boxes: parsing and printing them, and deriving outline shades in the Oklab
// color space.
package color

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// RGBA converts 0xRRGGBBAA to a color.
func RGBA(c uint32) color.NRGBA {
	return color.NRGBA{
		R: uint8(c >> 24 & 0xFF),
		G: uint8(c >> 16 & 0xFF),
		B: uint8(c >> 8 & 0xFF),
		A: uint8(c & 0xFF),
	}
}

// Parse parses colors of the forms #RRGGBB and #RRGGBBAA. The leading # is optional.
func Parse(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(s, "#")
	switch len(h) {
	case 6:
		h += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("invalid color %q: want #RRGGBB or #RRGGBBAA", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGBA(uint32(v)), nil
}

// Hex formats c as #RRGGBB, or #RRGGBBAA if it isn't opaque.
func Hex(c color.NRGBA) string {
	if c.A == 0xFF {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

type oklab struct {
	L, A, B float64
}

func linearize(c uint8) float64 {
	cp := float64(c) / 255
	if cp >= 0.04045 {
		return math.Pow((cp+0.055)/(1+0.055), 2.4)
	}
	return cp / 12.92
}

func delinearize(c float64) uint8 {
	if c >= 0.0031308 {
		c = 1.055*math.Pow(c, 1.0/2.4) - 0.055
	} else {
		c = 12.92 * c
	}
	return uint8(math.Round(math.Min(math.Max(c, 0), 1) * 255))
}

func toOklab(c color.NRGBA) oklab {
	r, g, b := linearize(c.R), linearize(c.G), linearize(c.B)

	l := math.Cbrt(0.4122214708*r + 0.5363325363*g + 0.0514459929*b)
	m := math.Cbrt(0.2119034982*r + 0.6806995451*g + 0.1073969566*b)
	s := math.Cbrt(0.0883024619*r + 0.2817188376*g + 0.6299787005*b)

	return oklab{
		L: 0.2104542553*l + 0.7936177850*m - 0.0040720468*s,
		A: 1.9779984951*l - 2.4285922050*m + 0.4505937099*s,
		B: 0.0259040371*l + 0.7827717662*m - 0.8086757660*s,
	}
}

// nrgba converts back to sRGB. Colors outside the sRGB gamut are clipped per channel.
func (c oklab) nrgba(alpha uint8) color.NRGBA {
	l := c.L + 0.3963377774*c.A + 0.2158037573*c.B
	m := c.L - 0.1055613458*c.A - 0.0638541728*c.B
	s := c.L - 0.0894841775*c.A - 1.2914855480*c.B
	l, m, s = l*l*l, m*m*m, s*s*s

	return color.NRGBA{
		R: delinearize(+4.0767416621*l - 3.3077115913*m + 0.2309699292*s),
		G: delinearize(-1.2684380046*l + 2.6097574011*m - 0.3413193965*s),
		B: delinearize(-0.0041960863*l - 0.7034186147*m + 1.7076147010*s),
		A: alpha,
	}
}

// Shade changes the perceptual lightness of c by delta, which is in the range [-1, 1].
func Shade(c color.NRGBA, delta float64) color.NRGBA {
	lab := toOklab(c)
	lab.L += delta
	switch {
	case lab.L <= 0:
		return color.NRGBA{A: c.A}
	case lab.L >= 1:
		return color.NRGBA{0xFF, 0xFF, 0xFF, c.A}
	}
	return lab.nrgba(c.A)
}

// Outline returns the color used to outline a box filled with c.
func Outline(c color.NRGBA) color.NRGBA {
	return Shade(c, -0.25)
}
