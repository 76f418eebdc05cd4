package color

import (
	"image/color"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#ff0000", color.NRGBA{255, 0, 0, 255}, true},
		{"00ff00", color.NRGBA{0, 255, 0, 255}, true},
		{"#80008080", color.NRGBA{128, 0, 128, 128}, true},
		{"#fff", color.NRGBA{}, false},
		{"#gg0000", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("Parse(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	for _, s := range []string{"#ffff00", "#80008080"} {
		c, err := Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		if got := Hex(c); got != s {
			t.Errorf("got %s, want %s", got, s)
		}
	}
}

func TestShade(t *testing.T) {
	// Converting to Oklab and back without changes must not drift noticeably.
	for _, c := range []color.NRGBA{RGBA(0xFF0000FF), RGBA(0x00FF00FF), RGBA(0x808080FF), RGBA(0xFFFF0080)} {
		got := Shade(c, 0)
		for i, pair := range [][2]uint8{{got.R, c.R}, {got.G, c.G}, {got.B, c.B}, {got.A, c.A}} {
			d := int(pair[0]) - int(pair[1])
			if d < -1 || d > 1 {
				t.Errorf("%v: channel %d drifted to %v", c, i, got)
			}
		}
	}

	c := RGBA(0x00FF00FF)
	out := Outline(c)
	if out.G >= c.G || out.A != c.A {
		t.Errorf("outline %v of %v isn't darker", out, c)
	}
	if got := Shade(c, -2); got.R != 0 || got.G != 0 || got.B != 0 {
		t.Errorf("got %v, want black", got)
	}
}
