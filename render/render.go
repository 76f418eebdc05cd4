// Package render draws boxes, either as Gio paint operations on top of a task's graph or as colored strips in a
// terminal.
package render

import (
	"gioui.org/f32"
	"gioui.org/op"
	"gioui.org/op/paint"

	"honnef.co/go/schedbox/color"
	"honnef.co/go/schedbox/sched"
)

const (
	// Boxes are drawn this much of the graph's height tall, at its base.
	BoxHeight = 0.3
	// Boxes narrower than this many pixels aren't drawn.
	MinWidth = 4
	// Width of the outline around boxes.
	OutlineWidth = 1
)

// Layout maps bins to pixels.
type Layout struct {
	// Top left corner of the graph.
	Origin   f32.Point
	BinWidth float32
	// Height of the graph.
	Height float32
}

// BinX returns the x coordinate of the start of a bin.
func (l Layout) BinX(bin int) float32 {
	return l.Origin.X + float32(bin)*l.BinWidth
}

// Rect returns the area covered by a box. It returns false if the box is too narrow to be drawn.
func (l Layout) Rect(b sched.Box) (FRect, bool) {
	x0, x1 := l.BinX(b.OpenBin), l.BinX(b.CloseBin)
	if x1-x0 < MinWidth {
		return FRect{}, false
	}
	base := l.Origin.Y + l.Height
	return FRect{
		Min: f32.Pt(x0, base-l.Height*BoxHeight),
		Max: f32.Pt(x1, base),
	}, true
}

// Paint records the drawing of boxes into ops and returns the number of boxes drawn. Each box is filled with its
// color and outlined with a darker shade of it.
func Paint(ops *op.Ops, l Layout, boxes []sched.Box) int {
	var n int
	for _, b := range boxes {
		r, ok := l.Rect(b)
		if !ok {
			continue
		}
		paint.FillShape(ops, b.Color, r.Op(ops))
		paint.FillShape(ops, color.Outline(b.Color), border{rect: r, width: OutlineWidth}.Op(ops))
		n++
	}
	return n
}
