package render

import (
	"gioui.org/f32"
	"gioui.org/op"
	"gioui.org/op/clip"
)

// FRect is a rectangle with floating point coordinates. Box edges fall on fractional pixels whenever bins are
// narrower than a pixel or not aligned to pixels.
type FRect struct {
	Min f32.Point
	Max f32.Point
}

func (r FRect) Dx() float32 { return r.Max.X - r.Min.X }
func (r FRect) Dy() float32 { return r.Max.Y - r.Min.Y }

// Inset shrinks r by d on all sides.
func (r FRect) Inset(d float32) FRect {
	return FRect{
		Min: f32.Pt(r.Min.X+d, r.Min.Y+d),
		Max: f32.Pt(r.Max.X-d, r.Max.Y-d),
	}
}

// trace adds the corners of r to p, clockwise if cw is set and counter-clockwise otherwise.
func (r FRect) trace(p *clip.Path, cw bool) {
	a, b := f32.Pt(r.Max.X, r.Min.Y), f32.Pt(r.Min.X, r.Max.Y)
	if !cw {
		a, b = b, a
	}
	p.MoveTo(r.Min)
	p.LineTo(a)
	p.LineTo(r.Max)
	p.LineTo(b)
	p.LineTo(r.Min)
}

// Op returns a clip op covering r.
func (r FRect) Op(ops *op.Ops) clip.Op {
	var p clip.Path
	p.Begin(ops)
	r.trace(&p, true)
	return clip.Outline{Path: p.End()}.Op()
}

// border is the area between a rectangle and the rectangle inset by width.
type border struct {
	rect  FRect
	width float32
}

func (b border) Op(ops *op.Ops) clip.Op {
	var p clip.Path
	p.Begin(ops)
	b.rect.trace(&p, true)
	// The inner rectangle winds the other way, cutting a hole.
	b.rect.Inset(b.width).trace(&p, false)
	p.Close()
	return clip.Outline{Path: p.End()}.Op()
}
